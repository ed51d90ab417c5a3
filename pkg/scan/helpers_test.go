package scan

import (
	"testing"
	"time"

	"github.com/OpenTraceLab/OpenTraceSEU/pkg/bus"
	"github.com/OpenTraceLab/OpenTraceSEU/pkg/eeprom"
	"github.com/OpenTraceLab/OpenTraceSEU/pkg/sink"
)

type fakeClock struct {
	t time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time { return c.t }

func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

type memorySink struct {
	records []sink.Record
}

func (m *memorySink) Append(rec sink.Record) error {
	m.records = append(m.records, rec)
	return nil
}

func (m *memorySink) Close() error { return nil }

// rig is a simulated board with every configured socket populated.
type rig struct {
	bus   *bus.SimBus
	pop   *eeprom.Population
	table eeprom.CapacityTable
	cfg   *Config
	clock *fakeClock
	out   *memorySink
}

func newRig(t *testing.T, banks, perBank int, table eeprom.CapacityTable) *rig {
	t.Helper()

	sim := bus.NewSimBus(bus.Info{Name: "sim"}, banks, perBank)
	for b := 0; b < banks; b++ {
		for s := 0; s < perBank; s++ {
			if capacity, err := table.Capacity(b, s); err == nil {
				sim.Populate(b, s, capacity, 0xFF)
			}
		}
	}

	pop, err := eeprom.NewPopulation(banks, perBank)
	if err != nil {
		t.Fatalf("NewPopulation: %v", err)
	}

	cfg := DefaultConfig()
	cfg.WriteBaseline = false

	return &rig{
		bus:   sim,
		pop:   pop,
		table: table,
		cfg:   cfg,
		clock: newFakeClock(),
		out:   &memorySink{},
	}
}

func uniformTable(banks, size int) eeprom.CapacityTable {
	table := eeprom.CapacityTable{Banks: map[int]eeprom.Tier{}}
	for b := 0; b < banks; b++ {
		table.Banks[b] = eeprom.Tier{Low: size, High: size}
	}
	return table
}

func (r *rig) initialize(t *testing.T) InitReport {
	t.Helper()
	report, err := Initialize(t.Context(), r.bus, r.pop, r.table, r.cfg)
	if err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	return report
}

func (r *rig) scanner() *Scanner {
	s := NewScanner(r.bus, r.pop, r.out, r.cfg)
	s.now = r.clock.Now
	return s
}

func (r *rig) device(t *testing.T, bank, slot int) *eeprom.Device {
	t.Helper()
	d, err := r.pop.Device(bank, slot)
	if err != nil {
		t.Fatalf("Device(%d, %d): %v", bank, slot, err)
	}
	return d
}

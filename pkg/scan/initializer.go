package scan

import (
	"context"
	"errors"
	"fmt"

	"github.com/OpenTraceLab/OpenTraceSEU/pkg/bus"
	"github.com/OpenTraceLab/OpenTraceSEU/pkg/eeprom"
)

// InitReport tallies device states after Initialize.
type InitReport struct {
	Ready        int
	Partial      int
	Absent       int
	Unconfigured int

	// Errors holds one entry per device that did not end up Ready.
	Errors []error
}

// Scannable returns the number of devices that take part in passes.
func (r InitReport) Scannable() int { return r.Ready + r.Partial }

// Initialize attaches every device of pop to b, bank by bank. Devices that
// cannot be opened or have no capacity are excluded; a failed baseline write
// only marks its own device partial. The context is checked between devices,
// and on cancellation the remaining devices are left pending.
func Initialize(ctx context.Context, b bus.Bus, pop *eeprom.Population, table eeprom.CapacityTable, cfg *Config) (InitReport, error) {
	var report InitReport

	if err := cfg.Validate(); err != nil {
		return report, err
	}
	log := cfg.logger()

	for bank := 0; bank < pop.Banks(); bank++ {
		devices := pop.Bank(bank)

		if err := b.SelectBank(bank); err != nil {
			log.Error("Invalid bank number", "bank", bank, "err", err)
			for _, d := range devices {
				d.Exclude(eeprom.StatusAbsent)
				report.Absent++
				report.Errors = append(report.Errors,
					fmt.Errorf("bank %d eeprom %d: %w: %w", bank, d.Slot, ErrDeviceAbsent, err))
			}
			continue
		}

		for _, d := range devices {
			select {
			case <-ctx.Done():
				return report, ctx.Err()
			default:
			}

			if err := initDevice(b, d, table, cfg); err != nil {
				report.Errors = append(report.Errors, err)
			}

			switch d.Status() {
			case eeprom.StatusReady:
				report.Ready++
				log.Debug(fmt.Sprintf("Initialized EEPROM %d in bank %d", d.Slot, d.Bank),
					"capacity", d.Capacity())
			case eeprom.StatusPartial:
				report.Partial++
			case eeprom.StatusAbsent:
				report.Absent++
			case eeprom.StatusUnconfigured:
				report.Unconfigured++
			}
		}
	}

	log.Info("initialization complete",
		"ready", report.Ready, "partial", report.Partial,
		"absent", report.Absent, "unconfigured", report.Unconfigured)

	return report, nil
}

func initDevice(b bus.Bus, d *eeprom.Device, table eeprom.CapacityTable, cfg *Config) error {
	log := cfg.logger()

	capacity, err := table.Capacity(d.Bank, d.Slot)
	if err != nil {
		d.Exclude(eeprom.StatusUnconfigured)
		log.Error("no capacity configured", "bank", d.Bank, "eeprom", d.Slot, "err", err)
		return &ConfigError{
			Field:  "capacity_table",
			Reason: fmt.Sprintf("bank %d eeprom %d: %v", d.Bank, d.Slot, err),
		}
	}

	conn, err := b.Open(bus.SlotAddress(cfg.BaseAddress, d.Slot))
	if err != nil {
		d.Exclude(eeprom.StatusAbsent)
		log.Error(fmt.Sprintf("Failed to initialize EEPROM %d in bank %d", d.Slot, d.Bank), "err", err)
		return fmt.Errorf("bank %d eeprom %d: %w: %w", d.Bank, d.Slot, ErrDeviceAbsent, err)
	}

	if err := d.Attach(conn, capacity); err != nil {
		_ = conn.Close()
		return err
	}

	if !cfg.WriteBaseline {
		return nil
	}

	for offset := 0; offset < capacity; offset++ {
		if err := conn.WriteByteAt(offset, cfg.Baseline); err != nil {
			d.MarkPartial()
			werr := &WriteError{Bank: d.Bank, Slot: d.Slot, Offset: offset, Err: err}
			log.Error(fmt.Sprintf("Failed to write to EEPROM %d in bank %d", d.Slot, d.Bank),
				"offset", offset, "err", err)
			return werr
		}
	}
	return nil
}

// IsAbsent reports whether err marks an excluded, unresponsive device.
func IsAbsent(err error) bool {
	return errors.Is(err, ErrDeviceAbsent)
}

package bus

import (
	"fmt"
	"math/rand/v2"
)

// ReadHook allows the simulator to emulate device-specific read behavior.
// It receives the stored value and returns what the bus should report.
type ReadHook func(offset int, stored byte) (byte, error)

// WriteHook can fail or intercept a simulated byte write.
type WriteHook func(offset int, value byte) error

// SimEEPROM is the in-memory image of one simulated device.
type SimEEPROM struct {
	Data []byte

	OnRead  ReadHook
	OnWrite WriteHook

	reads     int
	writes    int
	maxOffset int
}

// NewSimEEPROM allocates a device of the given capacity filled with fill.
func NewSimEEPROM(capacity int, fill byte) *SimEEPROM {
	data := make([]byte, capacity)
	for i := range data {
		data[i] = fill
	}
	return &SimEEPROM{Data: data, maxOffset: -1}
}

// Flip inverts one bit at offset, modelling a single-event upset.
func (e *SimEEPROM) Flip(offset int, bit uint) {
	e.Data[offset] ^= 1 << (bit & 7)
}

// Reads reports how many successful and failed reads reached the device.
func (e *SimEEPROM) Reads() int { return e.reads }

// Writes reports how many writes reached the device.
func (e *SimEEPROM) Writes() int { return e.writes }

// MaxOffsetRead returns the highest offset ever requested, or -1.
func (e *SimEEPROM) MaxOffsetRead() int { return e.maxOffset }

// SimBus is an in-memory bus useful for unit tests and bench dry runs. Slots
// without a device behave like an unpopulated socket and never acknowledge.
type SimBus struct {
	InfoData Info
	Base     uint16

	// OnSelect runs after every successful bank selection.
	OnSelect func(bank int)

	banks    [][]*SimEEPROM
	selected int
	selects  int
	closed   bool
}

// NewSimBus constructs a simulator with the given bank/slot geometry and no
// devices populated.
func NewSimBus(info Info, banks, perBank int) *SimBus {
	grid := make([][]*SimEEPROM, banks)
	for b := range grid {
		grid[b] = make([]*SimEEPROM, perBank)
	}
	if info.Banks == 0 {
		info.Banks = banks
	}
	return &SimBus{
		InfoData: info,
		Base:     DefaultBaseAddress,
		banks:    grid,
		selected: -1,
	}
}

// Populate places a device in the given socket and returns it.
func (s *SimBus) Populate(bank, slot, capacity int, fill byte) *SimEEPROM {
	dev := NewSimEEPROM(capacity, fill)
	s.banks[bank][slot] = dev
	return dev
}

// Device returns the simulated device in a socket, or nil when empty.
func (s *SimBus) Device(bank, slot int) *SimEEPROM {
	if bank < 0 || bank >= len(s.banks) || slot < 0 || slot >= len(s.banks[bank]) {
		return nil
	}
	return s.banks[bank][slot]
}

// Selected returns the active bank, or -1 before the first selection.
func (s *SimBus) Selected() int { return s.selected }

// SelectCount reports how many successful bank selections occurred.
func (s *SimBus) SelectCount() int { return s.selects }

// InjectUpsets flips n random bits across the populated devices of a bank.
func (s *SimBus) InjectUpsets(bank, n int, rng *rand.Rand) int {
	var devs []*SimEEPROM
	for _, dev := range s.banks[bank] {
		if dev != nil && len(dev.Data) > 0 {
			devs = append(devs, dev)
		}
	}
	if len(devs) == 0 {
		return 0
	}
	for i := 0; i < n; i++ {
		dev := devs[rng.IntN(len(devs))]
		dev.Flip(rng.IntN(len(dev.Data)), uint(rng.IntN(8)))
	}
	return n
}

// EnableUpsets makes every bank selection inject n random upsets into the
// selected bank, seeded for reproducible dry runs.
func (s *SimBus) EnableUpsets(n int, seed uint64) {
	rng := rand.New(rand.NewPCG(seed, seed^0x5eed))
	s.OnSelect = func(bank int) {
		s.InjectUpsets(bank, n, rng)
	}
}

func (s *SimBus) Info() (Info, error) {
	return s.InfoData, nil
}

func (s *SimBus) SelectBank(bank int) error {
	if bank < 0 || bank >= len(s.banks) {
		return fmt.Errorf("%w: %d", ErrInvalidBank, bank)
	}
	s.selected = bank
	s.selects++
	if s.OnSelect != nil {
		s.OnSelect(bank)
	}
	return nil
}

func (s *SimBus) Open(address uint16) (Conn, error) {
	if err := ValidateAddress(address); err != nil {
		return nil, err
	}
	if s.selected < 0 {
		return nil, fmt.Errorf("bus: no bank selected")
	}
	slot := int(address) - int(s.Base)
	dev := s.Device(s.selected, slot)
	if dev == nil {
		return nil, fmt.Errorf("%w at 0x%02X", ErrNoAck, address)
	}
	return &simConn{bus: s, bank: s.selected, dev: dev}, nil
}

func (s *SimBus) Close() error {
	s.closed = true
	return nil
}

type simConn struct {
	bus    *SimBus
	bank   int
	dev    *SimEEPROM
	closed bool
}

// ReadByteAt fails with ErrNoAck when the connection's bank is not selected,
// matching real hardware where the socket is electrically disconnected.
func (c *simConn) ReadByteAt(offset int) (byte, error) {
	if c.closed {
		return 0, ErrClosed
	}
	c.dev.reads++
	if offset > c.dev.maxOffset {
		c.dev.maxOffset = offset
	}
	if c.bus.selected != c.bank {
		return 0, ErrNoAck
	}
	if offset < 0 || offset >= len(c.dev.Data) {
		return 0, fmt.Errorf("bus: offset %d outside device of %d bytes", offset, len(c.dev.Data))
	}
	stored := c.dev.Data[offset]
	if c.dev.OnRead != nil {
		return c.dev.OnRead(offset, stored)
	}
	return stored, nil
}

func (c *simConn) WriteByteAt(offset int, value byte) error {
	if c.closed {
		return ErrClosed
	}
	c.dev.writes++
	if c.bus.selected != c.bank {
		return ErrNoAck
	}
	if offset < 0 || offset >= len(c.dev.Data) {
		return fmt.Errorf("bus: offset %d outside device of %d bytes", offset, len(c.dev.Data))
	}
	if c.dev.OnWrite != nil {
		if err := c.dev.OnWrite(offset, value); err != nil {
			return err
		}
	}
	c.dev.Data[offset] = value
	return nil
}

func (c *simConn) Close() error {
	c.closed = true
	return nil
}

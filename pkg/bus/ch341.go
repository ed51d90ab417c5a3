package bus

import (
	"fmt"
	"sync"
	"time"
)

// CH341Bus implements Bus for a CH341A USB-I2C bridge whose UIO lines drive
// the bank select multiplexer.
type CH341Bus struct {
	transport packetTransport
	protocol  *CH341Protocol

	info     Info
	selected int

	mu sync.Mutex
}

// CH341Options configures a CH341Bus.
type CH341Options struct {
	VendorID  uint16
	ProductID uint16
	Speed     byte
	Timeout   time.Duration
}

// DefaultCH341Options targets a stock CH341A at 100 kHz.
func DefaultCH341Options() CH341Options {
	return CH341Options{
		VendorID:  VendorIDWCH,
		ProductID: ProductIDCH341A,
		Speed:     I2CSpeed100k,
		Timeout:   DefaultTimeout,
	}
}

// NewCH341Bus opens the bridge and sets the I2C clock
func NewCH341Bus(opts CH341Options) (*CH341Bus, error) {
	if err := checkI2CMode(opts.VendorID, opts.ProductID); err != nil {
		return nil, err
	}

	transport, err := NewUSBTransport(opts.VendorID, opts.ProductID, opts.Timeout)
	if err != nil {
		return nil, fmt.Errorf("failed to open USB device: %w", err)
	}

	b, err := newCH341Bus(transport, transport.PacketSize(), opts.Speed)
	if err != nil {
		transport.Close()
		return nil, err
	}
	return b, nil
}

// checkI2CMode rejects bridges strapped for UART mode, which enumerate under a
// different PID and have no I2C stream interface.
func checkI2CMode(vid, pid uint16) error {
	if vid == VendorIDWCH && pid == ProductIDCH341A {
		return nil
	}
	return fmt.Errorf("%w: %04X:%04X is not a CH341A in I2C mode", ErrNotImplemented, vid, pid)
}

func newCH341Bus(transport packetTransport, packetSize int, speed byte) (*CH341Bus, error) {
	b := &CH341Bus{
		transport: transport,
		protocol:  NewCH341Protocol(packetSize),
		selected:  -1,
		info: Info{
			Name:         "CH341A USB-I2C",
			Vendor:       "WCH",
			Model:        "CH341A",
			Banks:        len(bankLines),
			MaxFrequency: 750_000,
		},
	}

	if _, err := transport.Write(b.protocol.EncodeSetSpeed(speed)); err != nil {
		return nil, fmt.Errorf("failed to set I2C speed: %w", err)
	}
	return b, nil
}

// Info returns bus capabilities
func (b *CH341Bus) Info() (Info, error) {
	return b.info, nil
}

// SelectBank drives the bank select lines
func (b *CH341Bus) SelectBank(bank int) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	cmd, err := b.protocol.EncodeSelectBank(bank)
	if err != nil {
		return err
	}
	if _, err := b.transport.Write(cmd); err != nil {
		return fmt.Errorf("select bank %d: %w", bank, err)
	}
	b.selected = bank
	return nil
}

// Open probes the address and returns a handle when the device acknowledges
func (b *CH341Bus) Open(address uint16) (Conn, error) {
	if err := ValidateAddress(address); err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	resp, err := b.transport.WriteRead(b.protocol.EncodeProbe(address), 1)
	if err != nil {
		return nil, fmt.Errorf("probe 0x%02X: %w", address, err)
	}
	if err := b.protocol.DecodeAck(resp); err != nil {
		return nil, fmt.Errorf("probe 0x%02X: %w", address, err)
	}
	return &ch341Conn{bus: b, address: address}, nil
}

// Close releases the USB transport
func (b *CH341Bus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.transport.Close()
}

type ch341Conn struct {
	bus     *CH341Bus
	address uint16
	closed  bool
}

func (c *ch341Conn) ReadByteAt(offset int) (byte, error) {
	if c.closed {
		return 0, ErrClosed
	}
	b := c.bus
	b.mu.Lock()
	defer b.mu.Unlock()

	resp, err := b.transport.WriteRead(b.protocol.EncodeRead(c.address, offset), 1)
	if err != nil {
		return 0, fmt.Errorf("read 0x%02X+%d: %w", c.address, offset, err)
	}
	return b.protocol.DecodeRead(resp)
}

func (c *ch341Conn) WriteByteAt(offset int, value byte) error {
	if c.closed {
		return ErrClosed
	}
	b := c.bus
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, err := b.transport.Write(b.protocol.EncodeWrite(c.address, offset, value)); err != nil {
		return fmt.Errorf("write 0x%02X+%d: %w", c.address, offset, err)
	}
	return nil
}

func (c *ch341Conn) Close() error {
	c.closed = true
	return nil
}

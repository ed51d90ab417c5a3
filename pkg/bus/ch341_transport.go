package bus

import (
	"context"
	"fmt"
	"time"

	"github.com/google/gousb"
)

const (
	// CH341A USB identifiers (I2C/SPI mode)
	VendorIDWCH      = 0x1A86
	ProductIDCH341A  = 0x5512
	DefaultPacketLen = 32
	DefaultTimeout   = time.Second
)

// packetTransport is the minimal bulk pipe CH341Bus needs. USBTransport
// implements it against real hardware.
type packetTransport interface {
	Write(data []byte) (int, error)
	WriteRead(cmd []byte, respLen int) ([]byte, error)
	Close() error
}

// USBTransport handles USB communication with a CH341A bridge
type USBTransport struct {
	ctx  *gousb.Context
	dev  *gousb.Device
	cfg  *gousb.Config
	intf *gousb.Interface

	epOut *gousb.OutEndpoint
	epIn  *gousb.InEndpoint

	packetSize int
	timeout    time.Duration
}

// NewUSBTransport opens the first CH341 matching vid/pid. Every transfer is
// bounded by timeout so a wedged bus cannot stall a scan forever.
func NewUSBTransport(vid, pid uint16, timeout time.Duration) (*USBTransport, error) {
	ctx := gousb.NewContext()

	dev, err := ctx.OpenDeviceWithVIDPID(gousb.ID(vid), gousb.ID(pid))
	if err != nil {
		ctx.Close()
		return nil, fmt.Errorf("USB error: %w", err)
	}
	if dev == nil {
		ctx.Close()
		return nil, fmt.Errorf("device not found (VID:0x%04X PID:0x%04X)", vid, pid)
	}

	// Not supported on every platform; ignore failures.
	_ = dev.SetAutoDetach(true)

	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	t := &USBTransport{
		ctx:        ctx,
		dev:        dev,
		packetSize: DefaultPacketLen,
		timeout:    timeout,
	}

	if err := t.claimInterface(); err != nil {
		dev.Close()
		ctx.Close()
		return nil, err
	}

	return t, nil
}

// claimInterface claims interface 0, the CH341 vendor interface
func (t *USBTransport) claimInterface() error {
	cfg, err := t.dev.Config(1)
	if err != nil {
		return fmt.Errorf("failed to get config: %w", err)
	}
	t.cfg = cfg

	intf, err := cfg.Interface(0, 0)
	if err != nil {
		cfg.Close()
		return fmt.Errorf("failed to claim interface 0: %w", err)
	}
	t.intf = intf

	if err := t.findEndpoints(); err != nil {
		intf.Close()
		cfg.Close()
		return err
	}
	return nil
}

// findEndpoints discovers the bulk IN and OUT endpoints
func (t *USBTransport) findEndpoints() error {
	var outAddr, inAddr int
	for _, ep := range t.intf.Setting.Endpoints {
		if ep.TransferType != gousb.TransferTypeBulk {
			continue
		}
		switch ep.Direction {
		case gousb.EndpointDirectionOut:
			if outAddr == 0 {
				outAddr = ep.Number
			}
		case gousb.EndpointDirectionIn:
			if inAddr == 0 {
				inAddr = ep.Number
				t.packetSize = ep.MaxPacketSize
			}
		}
	}

	if outAddr == 0 {
		return fmt.Errorf("bulk OUT endpoint not found")
	}
	if inAddr == 0 {
		return fmt.Errorf("bulk IN endpoint not found")
	}

	epOut, err := t.intf.OutEndpoint(outAddr)
	if err != nil {
		return fmt.Errorf("failed to open OUT endpoint: %w", err)
	}
	t.epOut = epOut

	epIn, err := t.intf.InEndpoint(inAddr)
	if err != nil {
		return fmt.Errorf("failed to open IN endpoint: %w", err)
	}
	t.epIn = epIn

	return nil
}

// Write sends a command stream to the bridge
func (t *USBTransport) Write(data []byte) (int, error) {
	ctx, cancel := context.WithTimeout(context.Background(), t.timeout)
	defer cancel()

	n, err := t.epOut.WriteContext(ctx, data)
	if err != nil {
		return 0, fmt.Errorf("USB write failed: %w", err)
	}
	return n, nil
}

// WriteRead sends a command stream and reads respLen bytes back
func (t *USBTransport) WriteRead(cmd []byte, respLen int) ([]byte, error) {
	if _, err := t.Write(cmd); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), t.timeout)
	defer cancel()

	buf := make([]byte, t.packetSize)
	n, err := t.epIn.ReadContext(ctx, buf)
	if err != nil {
		return nil, fmt.Errorf("USB read failed: %w", err)
	}
	if n > respLen {
		n = respLen
	}
	return buf[:n], nil
}

// PacketSize returns the bulk IN packet size
func (t *USBTransport) PacketSize() int {
	return t.packetSize
}

// Close releases USB resources
func (t *USBTransport) Close() error {
	if t.intf != nil {
		t.intf.Close()
		t.intf = nil
	}
	if t.cfg != nil {
		t.cfg.Close()
		t.cfg = nil
	}
	if t.dev != nil {
		t.dev.Close()
		t.dev = nil
	}
	if t.ctx != nil {
		t.ctx.Close()
		t.ctx = nil
	}
	return nil
}

// DeviceInfo represents a discovered USB device
type DeviceInfo struct {
	VID          uint16
	PID          uint16
	SerialNumber string
	Description  string
}

// EnumerateCH341 finds all connected CH341A bridges
func EnumerateCH341() ([]DeviceInfo, error) {
	ctx := gousb.NewContext()
	defer ctx.Close()

	devs, err := ctx.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		return desc.Vendor == VendorIDWCH && desc.Product == ProductIDCH341A
	})
	if err != nil && len(devs) == 0 {
		return nil, fmt.Errorf("failed to enumerate devices: %w", err)
	}

	devices := make([]DeviceInfo, 0, len(devs))
	for _, dev := range devs {
		serial, _ := dev.SerialNumber()
		manufacturer, _ := dev.Manufacturer()
		product, _ := dev.Product()

		devices = append(devices, DeviceInfo{
			VID:          uint16(dev.Desc.Vendor),
			PID:          uint16(dev.Desc.Product),
			SerialNumber: serial,
			Description:  fmt.Sprintf("%s %s", manufacturer, product),
		})
		dev.Close()
	}

	return devices, nil
}

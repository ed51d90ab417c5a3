package eeprom

import (
	"fmt"

	"github.com/OpenTraceLab/OpenTraceSEU/pkg/bus"
)

// SentinelFailures is reported in place of a count for excluded devices so
// they stand apart from devices with zero upsets.
const SentinelFailures = -1

// Status tracks how far a device got through initialization.
type Status int

const (
	// StatusPending means initialization has not reached the device yet.
	StatusPending Status = iota
	// StatusReady devices are fully initialized and scannable.
	StatusReady
	// StatusPartial devices are scannable but their baseline write aborted.
	StatusPartial
	// StatusAbsent devices did not answer when opened.
	StatusAbsent
	// StatusUnconfigured devices have no capacity table entry.
	StatusUnconfigured
)

var statusNames = map[Status]string{
	StatusPending:      "pending",
	StatusReady:        "ready",
	StatusPartial:      "partial",
	StatusAbsent:       "absent",
	StatusUnconfigured: "unconfigured",
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("Status(%d)", s)
}

// Device is the per-EEPROM record: geometry, cumulative failure count and
// the seen mask that keeps each address from being counted twice.
type Device struct {
	Bank int
	Slot int

	capacity int
	failures int
	seen     []bool
	conn     bus.Conn
	status   Status
}

func newDevice(bank, slot int) *Device {
	return &Device{Bank: bank, Slot: slot, status: StatusPending}
}

// Capacity returns the device size in bytes, or 0 before allocation.
func (d *Device) Capacity() int { return d.capacity }

// Failures returns the number of distinct addresses counted so far.
func (d *Device) Failures() int { return d.failures }

// Status returns the initialization status.
func (d *Device) Status() Status { return d.status }

// Conn returns the transport handle, nil for excluded devices.
func (d *Device) Conn() bus.Conn { return d.conn }

// Scannable reports whether the device takes part in scan passes.
func (d *Device) Scannable() bool {
	return d.conn != nil && (d.status == StatusReady || d.status == StatusPartial)
}

// Reported returns the value written to the output for this device.
func (d *Device) Reported() int {
	if !d.Scannable() {
		return SentinelFailures
	}
	return d.failures
}

// Attach stores the transport handle and sizes the seen mask. Capacity is
// fixed from here on.
func (d *Device) Attach(conn bus.Conn, capacity int) error {
	if d.status != StatusPending {
		return fmt.Errorf("eeprom: bank %d slot %d already initialized (%s)", d.Bank, d.Slot, d.status)
	}
	if conn == nil {
		return fmt.Errorf("eeprom: bank %d slot %d: nil connection", d.Bank, d.Slot)
	}
	if capacity <= 0 {
		return fmt.Errorf("eeprom: bank %d slot %d: invalid capacity %d", d.Bank, d.Slot, capacity)
	}
	d.conn = conn
	d.capacity = capacity
	d.seen = make([]bool, capacity)
	d.failures = 0
	d.status = StatusReady
	return nil
}

// MarkPartial records that the baseline write did not complete.
func (d *Device) MarkPartial() {
	if d.status == StatusReady {
		d.status = StatusPartial
	}
}

// Exclude permanently removes the device from scanning.
func (d *Device) Exclude(status Status) {
	if d.conn != nil {
		_ = d.conn.Close()
	}
	d.conn = nil
	d.seen = nil
	d.capacity = 0
	d.failures = 0
	d.status = status
}

// Observe compares a byte read at addr with the baseline. It returns true
// only when the address deviates for the first time in the run.
func (d *Device) Observe(addr int, value, baseline byte) bool {
	if value == baseline || addr < 0 || addr >= len(d.seen) {
		return false
	}
	if d.seen[addr] {
		return false
	}
	d.seen[addr] = true
	d.failures++
	return true
}

// Seen reports whether addr has already been counted.
func (d *Device) Seen(addr int) bool {
	return addr >= 0 && addr < len(d.seen) && d.seen[addr]
}

// SeenCount recounts the mask. It always equals Failures.
func (d *Device) SeenCount() int {
	n := 0
	for _, s := range d.seen {
		if s {
			n++
		}
	}
	return n
}

// Close releases the transport handle.
func (d *Device) Close() error {
	if d.conn == nil {
		return nil
	}
	err := d.conn.Close()
	d.conn = nil
	return err
}

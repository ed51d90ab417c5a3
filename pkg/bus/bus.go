package bus

import (
	"errors"
	"fmt"
)

// DefaultBaseAddress is the 7-bit I2C address of slot 0 on every bank.
const DefaultBaseAddress uint16 = 0x50

// Info describes capabilities reported by a bus implementation.
type Info struct {
	Name         string
	Vendor       string
	Model        string
	SerialNumber string
	Banks        int
	MaxFrequency int // Hertz
	Notes        string
}

// Bus abstracts the bank-select lines and the I2C segment shared by every
// EEPROM in the currently selected bank.
type Bus interface {
	Info() (Info, error)
	SelectBank(bank int) error
	Open(address uint16) (Conn, error)
	Close() error
}

// Conn is an open handle to a single EEPROM on the active bank.
type Conn interface {
	ReadByteAt(offset int) (byte, error)
	WriteByteAt(offset int, value byte) error
	Close() error
}

var (
	// ErrNotImplemented lets backends signal that a requested capability is
	// not yet available.
	ErrNotImplemented = errors.New("bus: not implemented")

	// ErrInvalidBank is returned by SelectBank for an index the bus has no
	// select-line encoding for.
	ErrInvalidBank = errors.New("bus: invalid bank")

	// ErrNoAck means the addressed device did not acknowledge.
	ErrNoAck = errors.New("bus: no acknowledge from device")

	// ErrClosed is returned by operations on a closed Conn.
	ErrClosed = errors.New("bus: connection closed")
)

// ValidateAddress checks that a 7-bit I2C address is usable for a device.
func ValidateAddress(address uint16) error {
	if address > 0x7F {
		return fmt.Errorf("bus: address 0x%02X exceeds 7 bits", address)
	}
	if address < 0x08 || address > 0x77 {
		return fmt.Errorf("bus: address 0x%02X is reserved", address)
	}
	return nil
}

// SlotAddress returns the I2C address of the EEPROM in the given slot.
func SlotAddress(base uint16, slot int) uint16 {
	return base + uint16(slot)
}

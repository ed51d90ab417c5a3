package eeprom

import (
	"errors"
	"fmt"
)

// Population is the fixed set of devices across every bank. It is created
// once and never resized.
type Population struct {
	banks   int
	perBank int
	devices []*Device
}

// NewPopulation allocates banks*perBank device records in bank-major order.
func NewPopulation(banks, perBank int) (*Population, error) {
	if banks <= 0 {
		return nil, fmt.Errorf("eeprom: bank count must be positive, got %d", banks)
	}
	if perBank <= 0 {
		return nil, fmt.Errorf("eeprom: devices per bank must be positive, got %d", perBank)
	}

	p := &Population{
		banks:   banks,
		perBank: perBank,
		devices: make([]*Device, banks*perBank),
	}
	for b := 0; b < banks; b++ {
		for s := 0; s < perBank; s++ {
			p.devices[p.Index(b, s)] = newDevice(b, s)
		}
	}
	return p, nil
}

// Index is the only place the flat position of (bank, slot) is computed.
func (p *Population) Index(bank, slot int) int {
	return bank*p.perBank + slot
}

// Banks returns the number of banks.
func (p *Population) Banks() int { return p.banks }

// PerBank returns the number of devices in each bank.
func (p *Population) PerBank() int { return p.perBank }

// Len returns the total device count.
func (p *Population) Len() int { return len(p.devices) }

// Device returns the record at (bank, slot).
func (p *Population) Device(bank, slot int) (*Device, error) {
	if bank < 0 || bank >= p.banks || slot < 0 || slot >= p.perBank {
		return nil, fmt.Errorf("eeprom: bank %d slot %d outside %dx%d population", bank, slot, p.banks, p.perBank)
	}
	return p.devices[p.Index(bank, slot)], nil
}

// Bank returns the devices of one bank in slot order.
func (p *Population) Bank(bank int) []*Device {
	if bank < 0 || bank >= p.banks {
		return nil
	}
	start := p.Index(bank, 0)
	out := make([]*Device, p.perBank)
	copy(out, p.devices[start:start+p.perBank])
	return out
}

// Devices returns every device in bank, then slot, order.
func (p *Population) Devices() []*Device {
	out := make([]*Device, len(p.devices))
	copy(out, p.devices)
	return out
}

// Counts tallies devices by status.
func (p *Population) Counts() map[Status]int {
	counts := make(map[Status]int)
	for _, d := range p.devices {
		counts[d.Status()]++
	}
	return counts
}

// TotalFailures sums the counts of scannable devices.
func (p *Population) TotalFailures() int {
	total := 0
	for _, d := range p.devices {
		if d.Scannable() {
			total += d.Failures()
		}
	}
	return total
}

// Close releases every transport handle.
func (p *Population) Close() error {
	var errs []error
	for _, d := range p.devices {
		if err := d.Close(); err != nil {
			errs = append(errs, fmt.Errorf("bank %d slot %d: %w", d.Bank, d.Slot, err))
		}
	}
	return errors.Join(errs...)
}

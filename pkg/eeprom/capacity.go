package eeprom

import (
	"errors"
	"fmt"
	"sort"
)

// DefaultTierSplit is the first slot that uses the High tier.
const DefaultTierSplit = 4

// ErrNoCapacity is returned when the table has no usable size for a slot.
var ErrNoCapacity = errors.New("eeprom: no capacity configured")

// Tier holds the two device sizes, in bytes, fitted to one bank.
type Tier struct {
	Low  int `yaml:"low" json:"low"`
	High int `yaml:"high" json:"high"`
}

// CapacityTable maps bank index to its size tiers.
type CapacityTable struct {
	Split int
	Banks map[int]Tier
}

// Capacity returns the size in bytes of the device at (bank, slot).
func (t CapacityTable) Capacity(bank, slot int) (int, error) {
	tier, ok := t.Banks[bank]
	if !ok {
		return 0, fmt.Errorf("%w: bank %d", ErrNoCapacity, bank)
	}
	if slot < 0 {
		return 0, fmt.Errorf("%w: slot %d", ErrNoCapacity, slot)
	}

	size := tier.High
	if slot < t.split() {
		size = tier.Low
	}
	if size <= 0 {
		return 0, fmt.Errorf("%w: bank %d slot %d has size %d", ErrNoCapacity, bank, slot, size)
	}
	return size, nil
}

// Largest returns the biggest size in the table.
func (t CapacityTable) Largest() int {
	largest := 0
	for _, tier := range t.Banks {
		largest = max(largest, tier.Low, tier.High)
	}
	return largest
}

// BankIndexes returns the configured banks in ascending order.
func (t CapacityTable) BankIndexes() []int {
	banks := make([]int, 0, len(t.Banks))
	for b := range t.Banks {
		banks = append(banks, b)
	}
	sort.Ints(banks)
	return banks
}

func (t CapacityTable) split() int {
	if t.Split <= 0 {
		return DefaultTierSplit
	}
	return t.Split
}

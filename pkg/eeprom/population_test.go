package eeprom

import "testing"

func TestNewPopulation(t *testing.T) {
	p, err := NewPopulation(3, 8)
	if err != nil {
		t.Fatalf("NewPopulation returned error: %v", err)
	}
	if p.Len() != 24 || p.Banks() != 3 || p.PerBank() != 8 {
		t.Fatalf("population geometry = %d devices, %d banks, %d per bank", p.Len(), p.Banks(), p.PerBank())
	}

	for i, d := range p.Devices() {
		if p.Index(d.Bank, d.Slot) != i {
			t.Fatalf("device %d is bank %d slot %d", i, d.Bank, d.Slot)
		}
		if d.Status() != StatusPending {
			t.Fatalf("device %d status = %s", i, d.Status())
		}
	}
}

func TestNewPopulationInvalid(t *testing.T) {
	if _, err := NewPopulation(0, 8); err == nil {
		t.Fatalf("expected error for zero banks")
	}
	if _, err := NewPopulation(2, -1); err == nil {
		t.Fatalf("expected error for negative devices per bank")
	}
}

func TestPopulationIndex(t *testing.T) {
	p, _ := NewPopulation(2, 8)

	tests := []struct {
		bank, slot, want int
	}{
		{0, 0, 0},
		{0, 7, 7},
		{1, 0, 8},
		{1, 5, 13},
	}
	for _, tt := range tests {
		if got := p.Index(tt.bank, tt.slot); got != tt.want {
			t.Errorf("Index(%d, %d) = %d, want %d", tt.bank, tt.slot, got, tt.want)
		}
		d, err := p.Device(tt.bank, tt.slot)
		if err != nil {
			t.Fatalf("Device(%d, %d) returned error: %v", tt.bank, tt.slot, err)
		}
		if d.Bank != tt.bank || d.Slot != tt.slot {
			t.Errorf("Device(%d, %d) = bank %d slot %d", tt.bank, tt.slot, d.Bank, d.Slot)
		}
	}

	if _, err := p.Device(2, 0); err == nil {
		t.Fatalf("expected error for bank out of range")
	}
	if _, err := p.Device(0, 8); err == nil {
		t.Fatalf("expected error for slot out of range")
	}
}

func TestPopulationBank(t *testing.T) {
	p, _ := NewPopulation(2, 4)
	bank := p.Bank(1)
	if len(bank) != 4 {
		t.Fatalf("Bank(1) has %d devices", len(bank))
	}
	for i, d := range bank {
		if d.Bank != 1 || d.Slot != i {
			t.Fatalf("Bank(1)[%d] = bank %d slot %d", i, d.Bank, d.Slot)
		}
	}
	if p.Bank(2) != nil {
		t.Fatalf("Bank(2) should be nil")
	}
}

func TestPopulationCounts(t *testing.T) {
	p, _ := NewPopulation(1, 3)
	d, _ := p.Device(0, 1)
	d.Exclude(StatusAbsent)

	counts := p.Counts()
	if counts[StatusPending] != 2 || counts[StatusAbsent] != 1 {
		t.Fatalf("Counts() = %v", counts)
	}
	if p.TotalFailures() != 0 {
		t.Fatalf("TotalFailures() = %d", p.TotalFailures())
	}
	if err := p.Close(); err != nil {
		t.Fatalf("Close returned error: %v", err)
	}
}

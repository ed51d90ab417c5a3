// Package eeprom models the devices under test: how large each one is, which
// of its addresses have already been counted as upset, and the fixed
// population of devices spread across the rig's banks.
//
// # Capacity
//
// Device size is configuration, not code. A CapacityTable maps each bank to
// a pair of tiers: slots below Split use the Low tier, the remaining slots use
// the High tier. Lookups outside the table fail with ErrNoCapacity.
//
//	table := eeprom.CapacityTable{
//		Split: 4,
//		Banks: map[int]eeprom.Tier{
//			0: {Low: 4_000, High: 512_000},
//			1: {Low: 32_000, High: 128_000},
//		},
//	}
//	size, err := table.Capacity(0, 5) // 512000
//
// # Accounting
//
// A Device keeps a seen mask with one entry per byte. Observe marks an
// address the first time it deviates from the baseline and increments the
// failure count exactly once; later deviations at the same address are
// ignored. Masks are never cleared during a run, so an upset that heals is
// still counted.
//
// Devices that never answered at initialization are excluded from scanning
// and report SentinelFailures instead of a count.
package eeprom

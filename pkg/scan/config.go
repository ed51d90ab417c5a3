package scan

import (
	"fmt"
	"time"

	"github.com/OpenTraceLab/OpenTraceSEU/pkg/bus"
)

// Config controls initialization and scanning.
type Config struct {
	Baseline      byte          // Value every address holds before irradiation (default: 0xFF)
	Policy        Policy        // Scan range policy, fixed for the run (default: Exhaustive)
	BoundedLimit  int           // Addresses read per device under Bounded (default: 32000)
	RunBudget     time.Duration // Run stops after the first pass ending past this (default: 30m)
	WriteBaseline bool          // Write Baseline to every address at startup (default: true)
	BaseAddress   uint16        // I2C address of slot 0 (default: 0x50)

	// Logger is optional; nil discards messages.
	Logger Logger
}

// DefaultConfig returns the settings the rig normally runs with.
func DefaultConfig() *Config {
	return &Config{
		Baseline:      0xFF,
		Policy:        Exhaustive,
		BoundedLimit:  32000,
		RunBudget:     30 * time.Minute,
		WriteBaseline: true,
		BaseAddress:   bus.DefaultBaseAddress,
	}
}

// Validate checks the configuration. The returned error is a *ConfigError.
func (c *Config) Validate() error {
	switch c.Policy {
	case Exhaustive, Bounded:
	default:
		return &ConfigError{Field: "scan_policy", Reason: c.Policy.String()}
	}
	if c.Policy == Bounded && c.BoundedLimit <= 0 {
		return &ConfigError{Field: "bounded_scan_limit_bytes", Reason: fmt.Sprintf("must be positive, got %d", c.BoundedLimit)}
	}
	if c.RunBudget < 0 {
		return &ConfigError{Field: "run_budget_seconds", Reason: "must not be negative"}
	}
	if err := bus.ValidateAddress(c.BaseAddress); err != nil {
		return &ConfigError{Field: "base_address", Reason: err.Error()}
	}
	return nil
}

func (c *Config) logger() Logger {
	if c.Logger == nil {
		return nopLogger{}
	}
	return c.Logger
}

package scan

import (
	"errors"
	"fmt"

	"github.com/OpenTraceLab/OpenTraceSEU/pkg/sink"
)

// ErrDeviceAbsent marks a device that did not answer when opened.
var ErrDeviceAbsent = errors.New("scan: device absent")

// ReadError is a failed single-byte read during a pass.
type ReadError struct {
	Bank   int
	Slot   int
	Offset int
	Err    error
}

func (e *ReadError) Error() string {
	return fmt.Sprintf("scan: read bank %d eeprom %d offset %d: %v", e.Bank, e.Slot, e.Offset, e.Err)
}

func (e *ReadError) Unwrap() error { return e.Err }

// WriteError is a failed baseline write during initialization.
type WriteError struct {
	Bank   int
	Slot   int
	Offset int
	Err    error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("scan: write bank %d eeprom %d offset %d: %v", e.Bank, e.Slot, e.Offset, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

// SinkError is a record that could not be appended, even after a reopen.
type SinkError struct {
	Record sink.Record
	Err    error
}

func (e *SinkError) Error() string {
	return fmt.Sprintf("scan: record (%s) dropped: %v", e.Record, e.Err)
}

func (e *SinkError) Unwrap() error { return e.Err }

// ConfigError reports an unusable configuration value.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("scan: invalid %s: %s", e.Field, e.Reason)
}

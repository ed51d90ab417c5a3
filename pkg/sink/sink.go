// Package sink records scan results. Every sink receives one Record per
// device per pass; the CSV sink is the rig's primary log and the others are
// optional mirrors for dashboards and offline analysis.
package sink

import (
	"errors"
	"fmt"
)

// Header is written once when a CSV sink is created.
const Header = "Elapsed Time, Bank, EEPROM, Failures"

// Record is one row of the scan log.
type Record struct {
	Elapsed  int `json:"elapsed"`
	Bank     int `json:"bank"`
	Slot     int `json:"eeprom"`
	Failures int `json:"failures"`
}

// String renders the record in the CSV row layout, without the newline.
func (r Record) String() string {
	return fmt.Sprintf("%d, %d, %d, %d", r.Elapsed, r.Bank, r.Slot, r.Failures)
}

// Sink is an append-only destination for records.
type Sink interface {
	Append(rec Record) error
	Close() error
}

// Reopener is implemented by sinks that can recover from a failed append by
// reacquiring their underlying resource.
type Reopener interface {
	Reopen() error
}

// AppendRetry appends rec to s. After a failure it reopens s once, when s
// supports it, and appends again. Sinks without Reopen get a single attempt.
func AppendRetry(s Sink, rec Record) error {
	err := s.Append(rec)
	if err == nil {
		return nil
	}
	r, ok := s.(Reopener)
	if !ok {
		return err
	}
	if rerr := r.Reopen(); rerr != nil {
		return errors.Join(err, fmt.Errorf("reopen: %w", rerr))
	}
	return s.Append(rec)
}

// MirrorError is returned by Fanout when the primary sink stored the record
// but one or more mirrors rejected it after their retry.
type MirrorError struct {
	Record Record
	Errs   []error
}

func (e *MirrorError) Error() string {
	return fmt.Sprintf("sink: %d mirror(s) rejected %s: %v", len(e.Errs), e.Record, errors.Join(e.Errs...))
}

func (e *MirrorError) Unwrap() []error { return e.Errs }

// Fanout duplicates records to several sinks. The first sink is the primary
// log; the rest are mirrors. Each sink is retried on its own through
// AppendRetry, so a sink that accepted a record never sees it twice.
// Fanout has no Reopen method, so a caller cannot re-append a record to the
// whole set.
type Fanout struct {
	sinks []Sink
}

// NewFanout creates a sink writing to every non-nil sink in order.
func NewFanout(sinks ...Sink) *Fanout {
	f := &Fanout{}
	for _, s := range sinks {
		if s != nil {
			f.sinks = append(f.sinks, s)
		}
	}
	return f
}

// Len returns the number of wrapped sinks.
func (f *Fanout) Len() int { return len(f.sinks) }

// Append writes rec to every sink. A primary failure is returned as a plain
// error; when only mirrors fail the error is a *MirrorError.
func (f *Fanout) Append(rec Record) error {
	var primary error
	var mirrors []error
	for i, s := range f.sinks {
		err := AppendRetry(s, rec)
		if err == nil {
			continue
		}
		if i == 0 {
			primary = err
		} else {
			mirrors = append(mirrors, err)
		}
	}

	if primary != nil {
		return errors.Join(append([]error{primary}, mirrors...)...)
	}
	if len(mirrors) > 0 {
		return &MirrorError{Record: rec, Errs: mirrors}
	}
	return nil
}

func (f *Fanout) Close() error {
	var errs []error
	for _, s := range f.sinks {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

package scan

import (
	"errors"
	"fmt"
	"time"

	"github.com/OpenTraceLab/OpenTraceSEU/pkg/bus"
	"github.com/OpenTraceLab/OpenTraceSEU/pkg/eeprom"
	"github.com/OpenTraceLab/OpenTraceSEU/pkg/sink"
)

// PassReport summarizes one scan pass.
type PassReport struct {
	Pass          int // 1-based
	Policy        Policy
	Elapsed       time.Duration // Since run start, at the end of the pass
	Devices       int           // Devices read this pass
	BytesRead     int
	Records       int // Records the sink accepted
	NewFailures   int // Addresses counted for the first time this pass
	TotalFailures int // Cumulative count over scannable devices
	ReadErrors    int
	SinkErrors    int // Records the primary sink dropped
	MirrorErrors  int // Records stored by the primary but rejected by a mirror

	// Errors holds at most one ReadError per device (its first failed
	// offset), every SinkError, every MirrorError and every bank select
	// failure.
	Errors []error
}

// Scanner runs scan passes over a Population and records the results.
// It is not safe for concurrent use; passes run strictly one at a time.
type Scanner struct {
	bus bus.Bus
	pop *eeprom.Population
	out sink.Sink
	cfg *Config
	log Logger
	now func() time.Time

	start  time.Time
	passes int
}

// NewScanner creates a scanner. cfg is assumed valid, as checked by
// Initialize.
func NewScanner(b bus.Bus, pop *eeprom.Population, out sink.Sink, cfg *Config) *Scanner {
	return &Scanner{
		bus: b,
		pop: pop,
		out: out,
		cfg: cfg,
		log: cfg.logger(),
		now: time.Now,
	}
}

// Start sets the run start time that record timestamps are measured from.
// Without it, the first pass starts the clock.
func (s *Scanner) Start(t time.Time) {
	s.start = t
}

// Passes returns the number of completed passes.
func (s *Scanner) Passes() int { return s.passes }

// Pass scans every device once with the configured policy.
func (s *Scanner) Pass() PassReport {
	return s.PassWith(s.cfg.Policy)
}

// PassWith scans every device once with the given policy. Counting is
// unaffected by switching policies between passes.
func (s *Scanner) PassWith(policy Policy) PassReport {
	if s.start.IsZero() {
		s.start = s.now()
	}
	s.passes++
	report := PassReport{Pass: s.passes, Policy: policy}

	for bank := 0; bank < s.pop.Banks(); bank++ {
		devices := s.pop.Bank(bank)

		var selectErr error
		if anyScannable(devices) {
			if selectErr = s.bus.SelectBank(bank); selectErr != nil {
				s.log.Error("bank select failed, skipping reads", "bank", bank, "err", selectErr)
				report.Errors = append(report.Errors, fmt.Errorf("select bank %d: %w", bank, selectErr))
			}
		}

		for _, d := range devices {
			if d.Scannable() && selectErr == nil {
				s.scanDevice(d, policy, &report)
			}
			s.record(d, &report)
		}
	}

	report.Elapsed = s.now().Sub(s.start)
	report.TotalFailures = s.pop.TotalFailures()

	s.log.Info("pass complete",
		"pass", report.Pass, "policy", policy.String(),
		"new", report.NewFailures, "total", report.TotalFailures,
		"read_errors", report.ReadErrors, "sink_errors", report.SinkErrors,
		"mirror_errors", report.MirrorErrors)

	return report
}

func (s *Scanner) scanDevice(d *eeprom.Device, policy Policy, report *PassReport) {
	conn := d.Conn()
	limit := policy.Range(d.Capacity(), s.cfg.BoundedLimit)
	report.Devices++

	var firstErr *ReadError
	failed := 0
	for addr := 0; addr < limit; addr++ {
		value, err := conn.ReadByteAt(addr)
		if err != nil {
			failed++
			if firstErr == nil {
				firstErr = &ReadError{Bank: d.Bank, Slot: d.Slot, Offset: addr, Err: err}
			}
			continue
		}
		report.BytesRead++
		if d.Observe(addr, value, s.cfg.Baseline) {
			report.NewFailures++
		}
	}

	if failed > 0 {
		report.ReadErrors += failed
		report.Errors = append(report.Errors, firstErr)
		s.log.Error("read failures", "bank", d.Bank, "eeprom", d.Slot,
			"count", failed, "first_offset", firstErr.Offset, "err", firstErr.Err)
	}
}

func (s *Scanner) record(d *eeprom.Device, report *PassReport) {
	rec := sink.Record{
		Elapsed:  int(s.now().Sub(s.start) / time.Second),
		Bank:     d.Bank,
		Slot:     d.Slot,
		Failures: d.Reported(),
	}

	err := sink.AppendRetry(s.out, rec)
	var mirrorErr *sink.MirrorError
	if errors.As(err, &mirrorErr) {
		report.MirrorErrors++
		report.Errors = append(report.Errors, err)
		s.log.Error("mirror sink failed", "record", rec.String(), "err", err)
		err = nil
	}
	if err != nil {
		report.SinkErrors++
		serr := &SinkError{Record: rec, Err: err}
		report.Errors = append(report.Errors, serr)
		s.log.Error("record dropped", "record", rec.String(), "err", err)
		return
	}

	report.Records++
	s.log.Debug(fmt.Sprintf("Bank %d, EEPROM %d, Failures: %d", d.Bank, d.Slot, rec.Failures))
}

func anyScannable(devices []*eeprom.Device) bool {
	for _, d := range devices {
		if d.Scannable() {
			return true
		}
	}
	return false
}

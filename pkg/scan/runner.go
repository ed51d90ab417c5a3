package scan

import (
	"context"
	"time"
)

// State is the run loop state.
type State int

const (
	Running State = iota
	Stopped
)

func (s State) String() string {
	if s == Running {
		return "running"
	}
	return "stopped"
}

// PassCallback is called after every pass. It runs on the scan goroutine
// and should return quickly.
type PassCallback func(PassReport)

// Stop reasons reported in RunReport.
const (
	StopBudget    = "budget"
	StopCancelled = "cancelled"
)

// RunReport summarizes a finished run.
type RunReport struct {
	Reason        string
	Passes        int
	Elapsed       time.Duration
	TotalFailures int
	ReadErrors    int
	SinkErrors    int
	MirrorErrors  int
}

// Runner repeats scan passes until the run budget is spent.
type Runner struct {
	scanner *Scanner
	budget  time.Duration
	state   State

	// OnPass is optional.
	OnPass PassCallback
}

// NewRunner creates a runner in the Stopped state.
func NewRunner(s *Scanner, budget time.Duration) *Runner {
	return &Runner{
		scanner: s,
		budget:  budget,
		state:   Stopped,
	}
}

// State returns the current state.
func (r *Runner) State() State { return r.state }

// Run performs passes back to back, with no pause between them, and stops
// after the first pass that ends at or past the budget. A zero budget runs
// exactly one pass. The context is only checked between passes; a cancelled
// run returns the report so far along with ctx.Err().
func (r *Runner) Run(ctx context.Context) (RunReport, error) {
	var report RunReport

	start := r.scanner.now()
	r.scanner.Start(start)
	r.state = Running
	defer func() { r.state = Stopped }()

	for {
		pass := r.scanner.Pass()

		report.Passes++
		report.ReadErrors += pass.ReadErrors
		report.SinkErrors += pass.SinkErrors
		report.MirrorErrors += pass.MirrorErrors
		report.TotalFailures = pass.TotalFailures
		report.Elapsed = r.scanner.now().Sub(start)

		if r.OnPass != nil {
			r.OnPass(pass)
		}

		if report.Elapsed >= r.budget {
			report.Reason = StopBudget
			return report, nil
		}

		select {
		case <-ctx.Done():
			report.Reason = StopCancelled
			return report, ctx.Err()
		default:
		}
	}
}

package scan

import (
	"fmt"
	"strings"
)

// Policy selects how much of each device a pass reads.
type Policy int

const (
	// Exhaustive reads every address of every device.
	Exhaustive Policy = iota
	// Bounded reads only the first BoundedLimit addresses, trading coverage
	// of large devices for more passes per hour.
	Bounded
)

func (p Policy) String() string {
	switch p {
	case Exhaustive:
		return "exhaustive"
	case Bounded:
		return "bounded"
	default:
		return fmt.Sprintf("Policy(%d)", int(p))
	}
}

// ParsePolicy accepts "exhaustive" or "bounded", plus the rig's older
// "full" and "fast" spellings.
func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "exhaustive", "full":
		return Exhaustive, nil
	case "bounded", "fast":
		return Bounded, nil
	}
	return 0, &ConfigError{Field: "scan_policy", Reason: fmt.Sprintf("unknown policy %q", s)}
}

// Range returns the number of leading addresses a pass reads from a device
// of the given capacity.
func (p Policy) Range(capacity, limit int) int {
	if p == Bounded && limit < capacity {
		return max(limit, 0)
	}
	return capacity
}

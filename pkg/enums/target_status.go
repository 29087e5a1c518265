package enums

import "fmt"

// TargetStatus is the funding target lifecycle. active is the only
// non-terminal state.
type TargetStatus string

const (
	TargetStatusActive    TargetStatus = "active"
	TargetStatusFunded    TargetStatus = "funded"
	TargetStatusCompleted TargetStatus = "completed"
)

var validTargetStatuses = []TargetStatus{
	TargetStatusActive,
	TargetStatusFunded,
	TargetStatusCompleted,
}

// String implements fmt.Stringer.
func (s TargetStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known TargetStatus.
func (s TargetStatus) IsValid() bool {
	for _, candidate := range validTargetStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the target has left the active state.
func (s TargetStatus) IsTerminal() bool {
	return s == TargetStatusFunded || s == TargetStatusCompleted
}

// ParseTargetStatus converts raw input into a TargetStatus.
func ParseTargetStatus(value string) (TargetStatus, error) {
	for _, candidate := range validTargetStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid target status %q", value)
}

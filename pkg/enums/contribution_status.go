package enums

import "fmt"

// ContributionStatus tracks a single payment attempt. pending is the only
// non-terminal state.
type ContributionStatus string

const (
	ContributionStatusPending   ContributionStatus = "pending"
	ContributionStatusCompleted ContributionStatus = "completed"
	ContributionStatusFailed    ContributionStatus = "failed"
)

var validContributionStatuses = []ContributionStatus{
	ContributionStatusPending,
	ContributionStatusCompleted,
	ContributionStatusFailed,
}

// String implements fmt.Stringer.
func (s ContributionStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known ContributionStatus.
func (s ContributionStatus) IsValid() bool {
	for _, candidate := range validContributionStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the status can no longer change.
func (s ContributionStatus) IsTerminal() bool {
	return s == ContributionStatusCompleted || s == ContributionStatusFailed
}

// ParseContributionStatus converts raw input into a ContributionStatus.
func ParseContributionStatus(value string) (ContributionStatus, error) {
	for _, candidate := range validContributionStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid contribution status %q", value)
}

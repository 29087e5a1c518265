package enums

import "fmt"

// TargetKind distinguishes donation goals from investment rounds.
type TargetKind string

const (
	TargetKindCommunityRequest      TargetKind = "community_request"
	TargetKindInvestmentOpportunity TargetKind = "investment_opportunity"
)

var validTargetKinds = []TargetKind{
	TargetKindCommunityRequest,
	TargetKindInvestmentOpportunity,
}

// String implements fmt.Stringer.
func (k TargetKind) String() string {
	return string(k)
}

// IsValid reports whether the value is a known TargetKind.
func (k TargetKind) IsValid() bool {
	for _, candidate := range validTargetKinds {
		if candidate == k {
			return true
		}
	}
	return false
}

// ThresholdStatus returns the terminal status a target of this kind moves to
// once its goal is reached.
func (k TargetKind) ThresholdStatus() TargetStatus {
	if k == TargetKindInvestmentOpportunity {
		return TargetStatusFunded
	}
	return TargetStatusCompleted
}

// ParseTargetKind converts raw input into a TargetKind.
func ParseTargetKind(value string) (TargetKind, error) {
	for _, candidate := range validTargetKinds {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid target kind %q", value)
}

package enums

import "fmt"

// OutboxAggregateType maps to the aggregate_type column of outbox_events.
type OutboxAggregateType string

const (
	AggregateContribution  OutboxAggregateType = "contribution"
	AggregateFundingTarget OutboxAggregateType = "funding_target"
)

var validAggregateTypes = []OutboxAggregateType{
	AggregateContribution,
	AggregateFundingTarget,
}

// IsValid reports whether the value matches a known aggregate type.
func (a OutboxAggregateType) IsValid() bool {
	for _, candidate := range validAggregateTypes {
		if candidate == a {
			return true
		}
	}
	return false
}

// ParseOutboxAggregateType converts raw input into OutboxAggregateType.
func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	for _, candidate := range validAggregateTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid aggregate type %q", value)
}

// OutboxEventType maps to the event_type column of outbox_events.
type OutboxEventType string

const (
	EventContributionInitiated OutboxEventType = "contribution_initiated"
	EventContributionSettled   OutboxEventType = "contribution_settled"
	EventTargetStatusChanged   OutboxEventType = "target_status_changed"
	EventTargetPlacedOnHold    OutboxEventType = "target_placed_on_hold"
)

var validOutboxEventTypes = []OutboxEventType{
	EventContributionInitiated,
	EventContributionSettled,
	EventTargetStatusChanged,
	EventTargetPlacedOnHold,
}

// IsValid reports whether the value matches a known event type.
func (e OutboxEventType) IsValid() bool {
	for _, candidate := range validOutboxEventTypes {
		if candidate == e {
			return true
		}
	}
	return false
}

// ParseOutboxEventType converts raw input into OutboxEventType.
func ParseOutboxEventType(value string) (OutboxEventType, error) {
	for _, candidate := range validOutboxEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid event type %q", value)
}

// OutboxDLQErrorReason records why a row left the outbox without publishing.
type OutboxDLQErrorReason string

const (
	// Publishing kept failing until the attempt budget ran out.
	OutboxDLQReasonMaxAttempts OutboxDLQErrorReason = "max_attempts"
	// The row can never publish: unknown type, bad envelope, or no topic.
	OutboxDLQReasonNonRetryable OutboxDLQErrorReason = "non_retryable"
)

func (r OutboxDLQErrorReason) IsValid() bool {
	switch r {
	case OutboxDLQReasonMaxAttempts, OutboxDLQReasonNonRetryable:
		return true
	}
	return false
}

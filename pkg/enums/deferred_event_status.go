package enums

// DeferredEventStatus tracks parked webhook events awaiting replay.
type DeferredEventStatus string

const (
	DeferredEventStatusPending   DeferredEventStatus = "pending"
	DeferredEventStatusResolved  DeferredEventStatus = "resolved"
	DeferredEventStatusAbandoned DeferredEventStatus = "abandoned"
)

// IsValid reports whether the value is a known DeferredEventStatus.
func (s DeferredEventStatus) IsValid() bool {
	switch s {
	case DeferredEventStatusPending, DeferredEventStatusResolved, DeferredEventStatusAbandoned:
		return true
	}
	return false
}

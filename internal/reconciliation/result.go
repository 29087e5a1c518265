package reconciliation

// ApplyResult is the non-error outcome of applying a settlement event.
type ApplyResult string

const (
	// Applied means this delivery moved the contribution out of pending.
	Applied ApplyResult = "applied"
	// AlreadyApplied means the contribution was already terminal; nothing changed.
	AlreadyApplied ApplyResult = "already_applied"
	// Deferred means no contribution carries the reference yet; the event was parked.
	Deferred ApplyResult = "deferred"
)

func (r ApplyResult) String() string {
	return string(r)
}

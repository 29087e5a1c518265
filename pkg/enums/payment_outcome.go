package enums

// PaymentOutcome is the terminal result a provider reports for a payment.
type PaymentOutcome string

const (
	PaymentOutcomeSucceeded PaymentOutcome = "succeeded"
	PaymentOutcomeFailed    PaymentOutcome = "failed"
)

// IsValid reports whether the value is a known PaymentOutcome.
func (o PaymentOutcome) IsValid() bool {
	return o == PaymentOutcomeSucceeded || o == PaymentOutcomeFailed
}

// ContributionStatus maps the outcome to the contribution status it produces.
func (o PaymentOutcome) ContributionStatus() ContributionStatus {
	if o == PaymentOutcomeSucceeded {
		return ContributionStatusCompleted
	}
	return ContributionStatusFailed
}

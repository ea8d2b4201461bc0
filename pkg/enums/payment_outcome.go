package enums

import "fmt"

// PaymentOutcome is the semantic result of a gateway notification.
type PaymentOutcome string

const (
	PaymentOutcomeUnknown    PaymentOutcome = "unknown"
	PaymentOutcomePending    PaymentOutcome = "pending"
	PaymentOutcomeChallenged PaymentOutcome = "challenged"
	PaymentOutcomeSucceeded  PaymentOutcome = "succeeded"
	PaymentOutcomeFailed     PaymentOutcome = "failed"
	PaymentOutcomeRefunded   PaymentOutcome = "refunded"
)

var validPaymentOutcomes = []PaymentOutcome{
	PaymentOutcomeUnknown,
	PaymentOutcomePending,
	PaymentOutcomeChallenged,
	PaymentOutcomeSucceeded,
	PaymentOutcomeFailed,
	PaymentOutcomeRefunded,
}

// String implements fmt.Stringer.
func (o PaymentOutcome) String() string {
	return string(o)
}

// IsValid reports whether the value is a known PaymentOutcome.
func (o PaymentOutcome) IsValid() bool {
	for _, candidate := range validPaymentOutcomes {
		if candidate == o {
			return true
		}
	}
	return false
}

// ParsePaymentOutcome converts raw input into a PaymentOutcome.
func ParsePaymentOutcome(value string) (PaymentOutcome, error) {
	for _, candidate := range validPaymentOutcomes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid payment outcome %q", value)
}

// Mutates reports whether the outcome changes entitlement state.
func (o PaymentOutcome) Mutates() bool {
	return o == PaymentOutcomeSucceeded || o == PaymentOutcomeFailed || o == PaymentOutcomeRefunded
}

package billing

import "github.com/faisalrasbihan/algosaham-4-sub001/pkg/enums"

// predecessors lists, for each outcome, the stored outcomes it may advance from.
// A transaction only moves forward; anything else is a duplicate delivery.
var predecessors = map[enums.PaymentOutcome][]enums.PaymentOutcome{
	enums.PaymentOutcomePending: {
		enums.PaymentOutcomeUnknown,
	},
	enums.PaymentOutcomeChallenged: {
		enums.PaymentOutcomeUnknown,
		enums.PaymentOutcomePending,
	},
	enums.PaymentOutcomeSucceeded: {
		enums.PaymentOutcomeUnknown,
		enums.PaymentOutcomePending,
		enums.PaymentOutcomeChallenged,
	},
	enums.PaymentOutcomeFailed: {
		enums.PaymentOutcomeUnknown,
		enums.PaymentOutcomePending,
		enums.PaymentOutcomeChallenged,
	},
	enums.PaymentOutcomeRefunded: {
		enums.PaymentOutcomeSucceeded,
	},
}

// CanAdvance reports whether a stored outcome may move to next.
func CanAdvance(from, next enums.PaymentOutcome) bool {
	for _, candidate := range predecessors[next] {
		if candidate == from {
			return true
		}
	}
	return false
}

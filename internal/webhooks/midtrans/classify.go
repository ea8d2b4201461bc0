package midtranswebhook

import (
	"strings"

	"github.com/faisalrasbihan/algosaham-4-sub001/pkg/enums"
	"github.com/faisalrasbihan/algosaham-4-sub001/pkg/midtrans"
)

// Classification is the semantic reading of one notification.
type Classification struct {
	Outcome enums.PaymentOutcome
	// Recurring is set for charges made by a gateway-side subscription.
	Recurring bool
	// DowngradeStatus is the status a Failed or Refunded outcome lands on.
	DowngradeStatus enums.EntitlementStatus
}

// Classify maps transaction_status and fraud_status to an outcome. It is pure.
func Classify(n midtrans.Notification) Classification {
	c := Classification{
		Outcome:   enums.PaymentOutcomeUnknown,
		Recurring: strings.TrimSpace(n.SubscriptionID) != "",
	}

	switch strings.ToLower(strings.TrimSpace(n.TransactionStatus)) {
	case "capture":
		switch strings.ToLower(strings.TrimSpace(n.FraudStatus)) {
		case "", "accept":
			c.Outcome = enums.PaymentOutcomeSucceeded
		case "challenge":
			c.Outcome = enums.PaymentOutcomeChallenged
		case "deny":
			c.Outcome = enums.PaymentOutcomeFailed
			c.DowngradeStatus = enums.EntitlementStatusCanceled
		}
	case "settlement":
		c.Outcome = enums.PaymentOutcomeSucceeded
	case "pending":
		c.Outcome = enums.PaymentOutcomePending
	case "deny", "cancel":
		c.Outcome = enums.PaymentOutcomeFailed
		c.DowngradeStatus = enums.EntitlementStatusCanceled
	case "expire":
		c.Outcome = enums.PaymentOutcomeFailed
		c.DowngradeStatus = enums.EntitlementStatusExpired
	case "refund", "partial_refund":
		c.Outcome = enums.PaymentOutcomeRefunded
		c.DowngradeStatus = enums.EntitlementStatusCanceled
	}
	return c
}

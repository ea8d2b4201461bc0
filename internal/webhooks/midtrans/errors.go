package midtranswebhook

import (
	"errors"

	"github.com/faisalrasbihan/algosaham-4-sub001/internal/subscriptions"
)

var (
	ErrInvalidSignature    = errors.New("invalid notification signature")
	ErrInvalidNotification = errors.New("invalid notification body")
	ErrMalformedOrderID    = errors.New("malformed order id")
	ErrUnknownUser         = errors.New("order does not resolve to a single user")
	ErrDuplicateOrderID    = errors.New("notification repeats a processed order state")
	ErrProvisioningFailure = subscriptions.ErrProvisioningFailure
	ErrTransientStore      = errors.New("entitlement store temporarily unavailable")
)

// OutcomeLabel names err for logs and metrics.
func OutcomeLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrInvalidSignature):
		return "InvalidSignature"
	case errors.Is(err, ErrInvalidNotification):
		return "InvalidNotification"
	case errors.Is(err, ErrMalformedOrderID):
		return "MalformedOrderId"
	case errors.Is(err, ErrUnknownUser):
		return "UnknownUser"
	case errors.Is(err, ErrDuplicateOrderID):
		return "DuplicateOrderId"
	case errors.Is(err, ErrProvisioningFailure):
		return "ProvisioningFailure"
	default:
		return "TransientStore"
	}
}

// IsTransient reports whether err may clear on a later attempt.
func IsTransient(err error) bool {
	return err != nil && OutcomeLabel(err) == "TransientStore"
}

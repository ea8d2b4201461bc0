package webhooks

import (
	"context"
	"errors"
	"net/http"

	"github.com/faisalrasbihan/algosaham-4-sub001/api/responses"
	"github.com/faisalrasbihan/algosaham-4-sub001/api/validators"
	midtranswebhook "github.com/faisalrasbihan/algosaham-4-sub001/internal/webhooks/midtrans"
	pkgerrors "github.com/faisalrasbihan/algosaham-4-sub001/pkg/errors"
	"github.com/faisalrasbihan/algosaham-4-sub001/pkg/logger"
	"github.com/faisalrasbihan/algosaham-4-sub001/pkg/midtrans"
)

type MidtransWebhookService interface {
	Verify(n midtrans.Notification) error
	HandleNotification(ctx context.Context, n midtrans.Notification) (midtranswebhook.Report, error)
}

// MidtransWebhookGuard drops redeliveries before they reach the service.
// A nil guard disables the short circuit.
type MidtransWebhookGuard interface {
	CheckAndMark(ctx context.Context, key string) (bool, error)
	Delete(ctx context.Context, key string) error
}

var acknowledged = map[string]string{"status": "ok"}

// MidtransWebhook receives gateway payment notifications. Every outcome other
// than a bad signature is acknowledged with 200 so the gateway stops retrying;
// failures are visible through logs and metrics instead.
func MidtransWebhook(svc MidtransWebhookService, guard MidtransWebhookGuard, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "webhook service unavailable"))
			return
		}

		var n midtrans.Notification
		decodeErr := validators.DecodeGatewayBody(r, &n)
		if err := svc.Verify(n); err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeSignature, err, "invalid notification signature"))
			return
		}
		if decodeErr != nil {
			if logg != nil {
				ctx = logg.WithField(ctx, "outcome", midtranswebhook.OutcomeLabel(midtranswebhook.ErrInvalidNotification))
				logg.Warn(logg.WithOrderID(ctx, n.OrderID), "midtrans notification rejected")
			}
			responses.WriteSuccess(w, acknowledged)
			return
		}

		key := midtranswebhook.DeliveryKey(n.OrderID, n.TransactionStatus)
		guarded := false
		if guard != nil {
			seen, err := guard.CheckAndMark(ctx, key)
			switch {
			case err != nil:
				// the unique order row still rejects duplicates without redis
				if logg != nil {
					logg.Warn(logg.WithField(ctx, "error", err.Error()), "webhook idempotency guard unavailable")
				}
			case seen:
				if logg != nil {
					ctx = logg.WithField(logg.WithOrderID(ctx, n.OrderID), "outcome", midtranswebhook.OutcomeLabel(midtranswebhook.ErrDuplicateOrderID))
					logg.Info(ctx, "midtrans delivery already processed")
				}
				responses.WriteSuccess(w, acknowledged)
				return
			default:
				guarded = true
			}
		}

		_, err := svc.HandleNotification(ctx, n)
		if err != nil && guarded && releaseGuard(err) {
			// free the key so a gateway retry or reconciliation can replay
			if delErr := guard.Delete(context.WithoutCancel(ctx), key); delErr != nil && logg != nil {
				logg.Error(ctx, "release webhook idempotency key", delErr)
			}
		}
		if errors.Is(err, midtranswebhook.ErrInvalidSignature) {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeSignature, err, "invalid notification signature"))
			return
		}
		responses.WriteSuccess(w, acknowledged)
	}
}

func releaseGuard(err error) bool {
	return !errors.Is(err, midtranswebhook.ErrDuplicateOrderID)
}

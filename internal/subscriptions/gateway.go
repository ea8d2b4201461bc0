package subscriptions

import (
	"context"

	"github.com/faisalrasbihan/algosaham-4-sub001/pkg/midtrans"
)

// Gateway is the subset of the Midtrans subscription API the provisioner relies on.
type Gateway interface {
	CreateSubscription(ctx context.Context, req midtrans.CreateSubscriptionRequest) (*midtrans.Subscription, error)
	GetSubscription(ctx context.Context, id string) (*midtrans.Subscription, error)
	DisableSubscription(ctx context.Context, id string) error
}

var _ Gateway = (*midtrans.Client)(nil)

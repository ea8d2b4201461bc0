package midtrans

import (
	"context"
	"strings"

	sdk "github.com/midtrans/midtrans-go"
	"github.com/midtrans/midtrans-go/coreapi"

	pkgerrors "github.com/faisalrasbihan/algosaham-4-sub001/pkg/errors"
)

// StartTimeLayout is the schedule start_time format the gateway expects.
const StartTimeLayout = "2006-01-02 15:04:05 -0700"

const paymentTypeCreditCard = "credit_card"

type Schedule struct {
	Interval     int
	IntervalUnit string
	MaxInterval  int
	StartTime    string
}

// CreateSubscriptionRequest registers a recurring card charge against a saved token.
type CreateSubscriptionRequest struct {
	Name     string
	Amount   int64
	Currency string
	Token    string
	Schedule Schedule
	Metadata map[string]string
}

type Subscription struct {
	ID     string
	Status string
}

func (c *Client) CreateSubscription(ctx context.Context, req CreateSubscriptionRequest) (*Subscription, error) {
	if c == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "midtrans client not configured")
	}
	if strings.TrimSpace(req.Token) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "subscription token is required")
	}
	if req.Schedule.Interval <= 0 || req.Schedule.IntervalUnit == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "subscription schedule is required")
	}

	payload := &coreapi.SubscriptionReq{
		Name:        req.Name,
		Amount:      req.Amount,
		Currency:    req.Currency,
		PaymentType: paymentTypeCreditCard,
		Token:       req.Token,
		Schedule: coreapi.ScheduleDetails{
			Interval:     req.Schedule.Interval,
			IntervalUnit: req.Schedule.IntervalUnit,
			MaxInterval:  req.Schedule.MaxInterval,
			StartTime:    req.Schedule.StartTime,
		},
		Metadata: req.Metadata,
	}

	var sub Subscription
	err := c.call(ctx, func(api *coreapi.Client) *sdk.Error {
		resp, sdkErr := api.CreateSubscription(payload)
		if sdkErr == nil && resp != nil {
			sub = Subscription{ID: resp.ID, Status: resp.Status}
		}
		return sdkErr
	})
	if err != nil {
		return nil, err
	}
	if sub.ID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "create subscription returned no id")
	}
	return &sub, nil
}

func (c *Client) GetSubscription(ctx context.Context, id string) (*Subscription, error) {
	if c == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "midtrans client not configured")
	}
	trimmed := strings.TrimSpace(id)
	if trimmed == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "subscription id is required")
	}

	var sub Subscription
	err := c.call(ctx, func(api *coreapi.Client) *sdk.Error {
		resp, sdkErr := api.GetSubscription(trimmed)
		if sdkErr == nil && resp != nil {
			sub = Subscription{ID: resp.ID, Status: resp.Status}
		}
		return sdkErr
	})
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

// DisableSubscription stops future charges; the handle stays readable.
func (c *Client) DisableSubscription(ctx context.Context, id string) error {
	if c == nil {
		return pkgerrors.New(pkgerrors.CodeDependency, "midtrans client not configured")
	}
	trimmed := strings.TrimSpace(id)
	if trimmed == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "subscription id is required")
	}
	return c.call(ctx, func(api *coreapi.Client) *sdk.Error {
		_, sdkErr := api.DisableSubscription(trimmed)
		return sdkErr
	})
}

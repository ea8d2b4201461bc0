package midtrans

import (
	"context"
	"strings"

	sdk "github.com/midtrans/midtrans-go"
	"github.com/midtrans/midtrans-go/coreapi"

	pkgerrors "github.com/faisalrasbihan/algosaham-4-sub001/pkg/errors"
)

// TransactionStatus is the gateway's current view of one order.
type TransactionStatus struct {
	OrderID           string
	TransactionStatus string
	FraudStatus       string
	StatusCode        string
	GrossAmount       string
	PaymentType       string
	TransactionID     string
}

// ApplyTo overlays the gateway's current state onto a stored notification.
// Fields the status endpoint does not report keep their notification values.
func (s TransactionStatus) ApplyTo(n Notification) Notification {
	n.TransactionStatus = s.TransactionStatus
	n.FraudStatus = s.FraudStatus
	if s.StatusCode != "" {
		n.StatusCode = s.StatusCode
	}
	if s.GrossAmount != "" {
		n.GrossAmount = s.GrossAmount
	}
	if s.PaymentType != "" {
		n.PaymentType = s.PaymentType
	}
	if s.TransactionID != "" {
		n.TransactionID = s.TransactionID
	}
	return n
}

// TransactionStatus fetches the state of record for orderID.
func (c *Client) TransactionStatus(ctx context.Context, orderID string) (*TransactionStatus, error) {
	if c == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "midtrans client not configured")
	}
	trimmed := strings.TrimSpace(orderID)
	if trimmed == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
	}

	var status TransactionStatus
	err := c.call(ctx, func(api *coreapi.Client) *sdk.Error {
		resp, sdkErr := api.CheckTransaction(trimmed)
		if sdkErr == nil && resp != nil {
			status = TransactionStatus{
				OrderID:           resp.OrderID,
				TransactionStatus: resp.TransactionStatus,
				FraudStatus:       resp.FraudStatus,
				StatusCode:        resp.StatusCode,
				GrossAmount:       resp.GrossAmount,
				PaymentType:       resp.PaymentType,
				TransactionID:     resp.TransactionID,
			}
		}
		return sdkErr
	})
	if err != nil {
		return nil, err
	}
	if status.TransactionStatus == "" {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "transaction status response was empty")
	}
	return &status, nil
}

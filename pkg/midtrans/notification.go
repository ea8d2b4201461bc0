package midtrans

// Notification is the HTTP notification body the gateway posts for transaction updates.
type Notification struct {
	OrderID           string `json:"order_id" validate:"required,max=50"`
	TransactionStatus string `json:"transaction_status" validate:"required"`
	StatusCode        string `json:"status_code" validate:"required"`
	GrossAmount       string `json:"gross_amount" validate:"required"`
	SignatureKey      string `json:"signature_key" validate:"required"`
	PaymentType       string `json:"payment_type"`
	FraudStatus       string `json:"fraud_status,omitempty"`
	SavedTokenID      string `json:"saved_token_id,omitempty"`
	SubscriptionID    string `json:"subscription_id,omitempty"`
	TransactionID     string `json:"transaction_id,omitempty"`
	TransactionTime   string `json:"transaction_time,omitempty"`
	Currency          string `json:"currency,omitempty"`
}

package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/faisalrasbihan/algosaham-4-sub001/pkg/enums"
)

// PaymentTransaction records one gateway payment attempt keyed by its order id.
type PaymentTransaction struct {
	ID                    uuid.UUID             `gorm:"column:id;type:uuid;primaryKey"`
	OrderID               string                `gorm:"column:order_id;not null;uniqueIndex"`
	UserID                string                `gorm:"column:user_id;not null;index"`
	Tier                  enums.Tier            `gorm:"column:tier;not null"`
	BillingInterval       enums.BillingInterval `gorm:"column:billing_interval;not null"`
	TransactionStatus     string                `gorm:"column:transaction_status;not null"`
	Outcome               enums.PaymentOutcome  `gorm:"column:outcome;not null"`
	GrossAmount           decimal.Decimal       `gorm:"column:gross_amount;type:numeric(14,2);not null"`
	PaymentType           string                `gorm:"column:payment_type"`
	GatewayTransactionID  *string               `gorm:"column:gateway_transaction_id"`
	SavedTokenID          *string               `gorm:"column:saved_token_id"`
	GatewaySubscriptionID *string               `gorm:"column:gateway_subscription_id"`
	ProcessedAt           time.Time             `gorm:"column:processed_at;not null"`
	CreatedAt             time.Time             `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt             time.Time             `gorm:"column:updated_at;autoUpdateTime"`
}

func (PaymentTransaction) TableName() string { return "payment_transactions" }

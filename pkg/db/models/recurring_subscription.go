package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/faisalrasbihan/algosaham-4-sub001/pkg/enums"
)

// RecurringSubscription is the local handle for a gateway-side charge schedule.
type RecurringSubscription struct {
	ID                    uuid.UUID                `gorm:"column:id;type:uuid;primaryKey"`
	GatewaySubscriptionID string                   `gorm:"column:gateway_subscription_id;not null;uniqueIndex"`
	UserID                string                   `gorm:"column:user_id;not null;index"`
	Tier                  enums.Tier               `gorm:"column:tier;not null"`
	BillingInterval       enums.BillingInterval    `gorm:"column:billing_interval;not null"`
	Amount                decimal.Decimal          `gorm:"column:amount;type:numeric(14,2);not null"`
	TokenID               string                   `gorm:"column:token_id;not null"`
	Interval              int                      `gorm:"column:schedule_interval;not null"`
	IntervalUnit          string                   `gorm:"column:schedule_interval_unit;not null"`
	MaxInterval           int                      `gorm:"column:schedule_max_interval;not null"`
	Status                enums.SubscriptionStatus `gorm:"column:status;not null"`
	OriginOrderID         string                   `gorm:"column:origin_order_id;not null"`
	LastSyncedAt          *time.Time               `gorm:"column:last_synced_at"`
	CreatedAt             time.Time                `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt             time.Time                `gorm:"column:updated_at;autoUpdateTime"`
}

func (RecurringSubscription) TableName() string { return "recurring_subscriptions" }

package models

import (
	"time"

	"github.com/faisalrasbihan/algosaham-4-sub001/pkg/enums"
)

// Entitlement is the per-user access record. Tier and limits are always written together.
type Entitlement struct {
	UserID          string                  `gorm:"column:user_id;primaryKey"`
	LookupKey       string                  `gorm:"column:lookup_key;not null;index"`
	Tier            enums.Tier              `gorm:"column:tier;not null;default:'ritel'"`
	Status          enums.EntitlementStatus `gorm:"column:status;not null;default:'active'"`
	PeriodEnd       *time.Time              `gorm:"column:period_end"`
	BillingInterval *enums.BillingInterval  `gorm:"column:billing_interval"`
	BacktestLimit   int                     `gorm:"column:backtest_limit;not null"`
	AIChatLimit     int                     `gorm:"column:ai_chat_limit;not null"`
	StrategyLimit   int                     `gorm:"column:strategy_limit;not null"`
	BacktestUsed    int                     `gorm:"column:backtest_used;not null;default:0"`
	BacktestResetAt time.Time               `gorm:"column:backtest_reset_at;not null"`
	AIChatUsed      int                     `gorm:"column:ai_chat_used;not null;default:0"`
	AIChatResetAt   time.Time               `gorm:"column:ai_chat_reset_at;not null"`
	GrantedOrderAt  *time.Time              `gorm:"column:granted_order_at"`
	Revision        int64                   `gorm:"column:revision;not null;default:0"`
	CreatedAt       time.Time               `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time               `gorm:"column:updated_at;autoUpdateTime"`
}

func (Entitlement) TableName() string { return "entitlements" }

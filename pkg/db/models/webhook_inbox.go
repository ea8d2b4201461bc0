package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// WebhookInbox holds a verified gateway notification until it has been
// applied. Rows with a nil ProcessedAt are replayed by the cron worker.
type WebhookInbox struct {
	ID                uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	OrderID           string          `gorm:"column:order_id;not null"`
	TransactionStatus string          `gorm:"column:transaction_status;not null"`
	Payload           json.RawMessage `gorm:"column:payload;type:jsonb;not null"`
	ReceivedAt        time.Time       `gorm:"column:received_at;not null"`
	ProcessedAt       *time.Time      `gorm:"column:processed_at"`
	Result            *string         `gorm:"column:result"`
	AttemptCount      int             `gorm:"column:attempt_count;not null;default:0"`
	LastError         *string         `gorm:"column:last_error"`
}

func (WebhookInbox) TableName() string { return "webhook_inbox" }

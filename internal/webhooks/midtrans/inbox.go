package midtranswebhook

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/faisalrasbihan/algosaham-4-sub001/internal/repo"
	"github.com/faisalrasbihan/algosaham-4-sub001/pkg/db/models"
	"github.com/faisalrasbihan/algosaham-4-sub001/pkg/midtrans"
)

// InboxRepository stores verified notifications so failed deliveries can be
// replayed after the gateway has already been acknowledged.
type InboxRepository interface {
	Record(ctx context.Context, n midtrans.Notification, receivedAt time.Time) (*models.WebhookInbox, error)
	MarkProcessed(ctx context.Context, id uuid.UUID, result string, processedAt time.Time) error
	MarkFailed(ctx context.Context, id uuid.UUID, cause error) error
	ListPending(ctx context.Context, receivedBefore time.Time, maxAttempts, limit int) ([]models.WebhookInbox, error)
}

type inboxRepository struct {
	base repo.Base
}

func NewInboxRepository(db *gorm.DB) InboxRepository {
	return &inboxRepository{base: repo.NewBase(db)}
}

// Record stores n once per delivery key and returns the stored row. A
// redelivery returns the row written by the first delivery.
func (r *inboxRepository) Record(ctx context.Context, n midtrans.Notification, receivedAt time.Time) (*models.WebhookInbox, error) {
	payload, err := json.Marshal(n)
	if err != nil {
		return nil, fmt.Errorf("encode notification: %w", err)
	}
	row := &models.WebhookInbox{
		ID:                uuid.New(),
		OrderID:           n.OrderID,
		TransactionStatus: n.TransactionStatus,
		Payload:           payload,
		ReceivedAt:        receivedAt.UTC(),
	}
	inserted, err := repo.AffectedOne(r.base.DB(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "order_id"}, {Name: "transaction_status"}},
			DoNothing: true,
		}).
		Create(row))
	if err != nil {
		return nil, err
	}
	if inserted {
		return row, nil
	}
	stored, err := repo.FirstOrNil[models.WebhookInbox](r.base.DB(ctx).
		Where("order_id = ? AND transaction_status = ?", n.OrderID, n.TransactionStatus))
	if err != nil {
		return nil, err
	}
	if stored == nil {
		return nil, fmt.Errorf("inbox row for %s vanished", DeliveryKey(n.OrderID, n.TransactionStatus))
	}
	return stored, nil
}

func (r *inboxRepository) MarkProcessed(ctx context.Context, id uuid.UUID, result string, processedAt time.Time) error {
	return r.base.DB(ctx).Model(&models.WebhookInbox{}).
		Where("id = ? AND processed_at IS NULL", id).
		Updates(map[string]any{
			"processed_at": processedAt.UTC(),
			"result":       result,
		}).Error
}

func (r *inboxRepository) MarkFailed(ctx context.Context, id uuid.UUID, cause error) error {
	return r.base.DB(ctx).Model(&models.WebhookInbox{}).
		Where("id = ? AND processed_at IS NULL", id).
		Updates(map[string]any{
			"last_error":    cause.Error(),
			"attempt_count": gorm.Expr("attempt_count + 1"),
		}).Error
}

// ListPending returns unprocessed rows received before receivedBefore that
// have not used up their attempts, oldest first.
func (r *inboxRepository) ListPending(ctx context.Context, receivedBefore time.Time, maxAttempts, limit int) ([]models.WebhookInbox, error) {
	var rows []models.WebhookInbox
	err := r.base.DB(ctx).
		Where("processed_at IS NULL AND received_at <= ? AND attempt_count < ?", receivedBefore.UTC(), maxAttempts).
		Order("received_at ASC").
		Order("id ASC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

func decodeInboxPayload(entry models.WebhookInbox) (midtrans.Notification, error) {
	var n midtrans.Notification
	if err := json.Unmarshal(entry.Payload, &n); err != nil {
		return midtrans.Notification{}, fmt.Errorf("%w: stored payload: %w", ErrInvalidNotification, err)
	}
	return n, nil
}

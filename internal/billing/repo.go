package billing

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/faisalrasbihan/algosaham-4-sub001/internal/repo"
	"github.com/faisalrasbihan/algosaham-4-sub001/pkg/db/models"
	"github.com/faisalrasbihan/algosaham-4-sub001/pkg/enums"
)

// Repository handles payment transactions and recurring subscription handles.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	RecordOutcome(ctx context.Context, txn *models.PaymentTransaction) (Recorded, error)
	FindTransaction(ctx context.Context, orderID string) (*models.PaymentTransaction, error)
	CreateSubscription(ctx context.Context, sub *models.RecurringSubscription) (bool, error)
	FindSubscriptionByGatewayID(ctx context.Context, gatewaySubscriptionID string) (*models.RecurringSubscription, error)
	ListActiveSubscriptionsByUser(ctx context.Context, userID string) ([]models.RecurringSubscription, error)
	ListSubscriptionsForReconcile(ctx context.Context, afterGatewayID string, limit int) ([]models.RecurringSubscription, error)
	UpdateSubscriptionStatus(ctx context.Context, gatewaySubscriptionID string, status enums.SubscriptionStatus, syncedAt time.Time) error
}

// Recorded describes what RecordOutcome did with a notification.
type Recorded struct {
	// Applied is false when the delivery repeats or regresses the stored outcome.
	Applied  bool
	Inserted bool
	Previous enums.PaymentOutcome
}

type repository struct {
	base repo.Base
}

// NewRepository returns a billing repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{base: repo.NewBase(db)}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{base: r.base.Tx(tx)}
}

// RecordOutcome inserts the transaction row for a new order id, or advances an
// existing row when txn.Outcome is a legal forward step from the stored one.
func (r *repository) RecordOutcome(ctx context.Context, txn *models.PaymentTransaction) (Recorded, error) {
	if txn.ID == uuid.Nil {
		txn.ID = uuid.New()
	}
	if txn.ProcessedAt.IsZero() {
		txn.ProcessedAt = time.Now().UTC()
	}

	inserted, err := repo.AffectedOne(r.base.DB(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "order_id"}}, DoNothing: true}).
		Create(txn))
	if err != nil {
		return Recorded{}, err
	}
	if inserted {
		return Recorded{Applied: true, Inserted: true, Previous: enums.PaymentOutcomeUnknown}, nil
	}

	stored, err := r.FindTransaction(ctx, txn.OrderID)
	if err != nil {
		return Recorded{}, err
	}
	if stored == nil || !CanAdvance(stored.Outcome, txn.Outcome) {
		previous := enums.PaymentOutcomeUnknown
		if stored != nil {
			previous = stored.Outcome
		}
		return Recorded{Previous: previous}, nil
	}

	updates := map[string]any{
		"transaction_status": txn.TransactionStatus,
		"outcome":            txn.Outcome,
		"processed_at":       txn.ProcessedAt.UTC(),
		"updated_at":         txn.ProcessedAt.UTC(),
	}
	if txn.PaymentType != "" {
		updates["payment_type"] = txn.PaymentType
	}
	if txn.GatewayTransactionID != nil {
		updates["gateway_transaction_id"] = txn.GatewayTransactionID
	}
	if txn.SavedTokenID != nil {
		updates["saved_token_id"] = txn.SavedTokenID
	}
	if txn.GatewaySubscriptionID != nil {
		updates["gateway_subscription_id"] = txn.GatewaySubscriptionID
	}

	advanced, err := repo.AffectedOne(r.base.DB(ctx).
		Model(&models.PaymentTransaction{}).
		Where("order_id = ? AND outcome = ?", txn.OrderID, stored.Outcome).
		Updates(updates))
	if err != nil {
		return Recorded{}, err
	}
	return Recorded{Applied: advanced, Previous: stored.Outcome}, nil
}

func (r *repository) FindTransaction(ctx context.Context, orderID string) (*models.PaymentTransaction, error) {
	return repo.FirstOrNil[models.PaymentTransaction](r.base.DB(ctx).Where("order_id = ?", orderID))
}

// CreateSubscription stores a gateway handle; false when it is already known.
func (r *repository) CreateSubscription(ctx context.Context, sub *models.RecurringSubscription) (bool, error) {
	if sub.ID == uuid.Nil {
		sub.ID = uuid.New()
	}
	return repo.AffectedOne(r.base.DB(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "gateway_subscription_id"}}, DoNothing: true}).
		Create(sub))
}

func (r *repository) FindSubscriptionByGatewayID(ctx context.Context, gatewaySubscriptionID string) (*models.RecurringSubscription, error) {
	if gatewaySubscriptionID == "" {
		return nil, nil
	}
	return repo.FirstOrNil[models.RecurringSubscription](r.base.DB(ctx).
		Where("gateway_subscription_id = ?", gatewaySubscriptionID))
}

func (r *repository) ListActiveSubscriptionsByUser(ctx context.Context, userID string) ([]models.RecurringSubscription, error) {
	var subs []models.RecurringSubscription
	if err := r.base.DB(ctx).
		Where("user_id = ? AND status = ?", userID, enums.SubscriptionStatusActive).
		Order("created_at DESC").
		Find(&subs).Error; err != nil {
		return nil, err
	}
	return subs, nil
}

// ListSubscriptionsForReconcile pages through active handles in gateway id order.
func (r *repository) ListSubscriptionsForReconcile(ctx context.Context, afterGatewayID string, limit int) ([]models.RecurringSubscription, error) {
	if limit <= 0 {
		limit = 250
	}
	var subs []models.RecurringSubscription
	if err := r.base.DB(ctx).
		Where("status = ? AND gateway_subscription_id > ?", enums.SubscriptionStatusActive, afterGatewayID).
		Order("gateway_subscription_id").
		Limit(limit).
		Find(&subs).Error; err != nil {
		return nil, err
	}
	return subs, nil
}

func (r *repository) UpdateSubscriptionStatus(ctx context.Context, gatewaySubscriptionID string, status enums.SubscriptionStatus, syncedAt time.Time) error {
	return r.base.DB(ctx).
		Model(&models.RecurringSubscription{}).
		Where("gateway_subscription_id = ?", gatewaySubscriptionID).
		Updates(map[string]any{
			"status":         status,
			"last_synced_at": syncedAt.UTC(),
			"updated_at":     syncedAt.UTC(),
		}).Error
}

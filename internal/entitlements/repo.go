package entitlements

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/faisalrasbihan/algosaham-4-sub001/pkg/db/models"
	"github.com/faisalrasbihan/algosaham-4-sub001/pkg/enums"
)

// Repository persists entitlements. Every mutation is a single conditional UPDATE.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, entitlement *models.Entitlement) (bool, error)
	FindByUserID(ctx context.Context, userID string) (*models.Entitlement, error)
	FindByLookupKey(ctx context.Context, key string, limit int) ([]models.Entitlement, error)
	FindByLookupPrefix(ctx context.Context, prefix string, limit int) ([]models.Entitlement, error)
	ApplyState(ctx context.Context, userID string, revision int64, state State, now time.Time) (bool, error)
	MarkCanceled(ctx context.Context, userID string, now time.Time) (bool, error)
	ListLapsedUserIDs(ctx context.Context, now time.Time, afterUserID string, limit int) ([]string, error)
	ExpireLapsed(ctx context.Context, userID string, now time.Time) (bool, error)
	ResetCounters(ctx context.Context, feature enums.Feature, cutoff, now time.Time) (int64, error)
	ResetCounterForUser(ctx context.Context, userID string, feature enums.Feature, cutoff, now time.Time) error
	IncrementUsage(ctx context.Context, userID string, feature enums.Feature) (bool, error)
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

type counterColumns struct {
	used    string
	resetAt string
	limit   string
}

var counters = map[enums.Feature]counterColumns{
	enums.FeatureBacktest: {used: "backtest_used", resetAt: "backtest_reset_at", limit: "backtest_limit"},
	enums.FeatureAIChat:   {used: "ai_chat_used", resetAt: "ai_chat_reset_at", limit: "ai_chat_limit"},
}

func columnsFor(feature enums.Feature) (counterColumns, error) {
	cols, ok := counters[feature]
	if !ok {
		return counterColumns{}, fmt.Errorf("feature %q has no daily counter", feature)
	}
	return cols, nil
}

// lapsedStatuses are the statuses the expiry sweep demotes once period_end passes.
var lapsedStatuses = []enums.EntitlementStatus{
	enums.EntitlementStatusActive,
	enums.EntitlementStatusCanceled,
}

// Create inserts entitlement unless the user already has one.
func (r *repository) Create(ctx context.Context, entitlement *models.Entitlement) (bool, error) {
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "user_id"}}, DoNothing: true}).
		Create(entitlement)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) FindByUserID(ctx context.Context, userID string) (*models.Entitlement, error) {
	var entitlement models.Entitlement
	if err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		First(&entitlement).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &entitlement, nil
}

func (r *repository) FindByLookupKey(ctx context.Context, key string, limit int) ([]models.Entitlement, error) {
	if limit <= 0 {
		limit = 2
	}
	var rows []models.Entitlement
	if err := r.db.WithContext(ctx).
		Where("lookup_key = ?", key).
		Order("user_id").
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) FindByLookupPrefix(ctx context.Context, prefix string, limit int) ([]models.Entitlement, error) {
	if limit <= 0 {
		limit = 2
	}
	var rows []models.Entitlement
	if err := r.db.WithContext(ctx).
		Where("lookup_key LIKE ?", prefix+"%").
		Order("user_id").
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// ApplyState writes tier, status, period and every limit together, provided
// the row still carries revision.
func (r *repository) ApplyState(ctx context.Context, userID string, revision int64, state State, now time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Entitlement{}).
		Where("user_id = ? AND revision = ?", userID, revision).
		Updates(map[string]any{
			"tier":             state.Tier,
			"status":           state.Status,
			"period_end":       state.PeriodEnd,
			"billing_interval": state.BillingInterval,
			"backtest_limit":   state.Quotas.Backtest,
			"ai_chat_limit":    state.Quotas.AIChat,
			"strategy_limit":   state.Quotas.Strategy,
			"granted_order_at": state.GrantedOrderAt,
			"revision":         gorm.Expr("revision + 1"),
			"updated_at":       now.UTC(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// MarkCanceled flags a paid, active entitlement as canceled. Tier and limits
// stay until the expiry sweep reaches period_end.
func (r *repository) MarkCanceled(ctx context.Context, userID string, now time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Entitlement{}).
		Where("user_id = ? AND tier <> ? AND status = ?", userID, enums.TierRitel, enums.EntitlementStatusActive).
		Updates(map[string]any{
			"status":     enums.EntitlementStatusCanceled,
			"revision":   gorm.Expr("revision + 1"),
			"updated_at": now.UTC(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) lapsed(db *gorm.DB, now time.Time) *gorm.DB {
	return db.Where("tier <> ? AND status IN ? AND period_end IS NOT NULL AND period_end < ?",
		enums.TierRitel, lapsedStatuses, now.UTC())
}

// ListLapsedUserIDs pages through lapsed users in user_id order.
func (r *repository) ListLapsedUserIDs(ctx context.Context, now time.Time, afterUserID string, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 200
	}
	var ids []string
	query := r.lapsed(r.db.WithContext(ctx).Model(&models.Entitlement{}), now).
		Where("user_id > ?", afterUserID).
		Order("user_id").
		Limit(limit)
	if err := query.Pluck("user_id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}

// ExpireLapsed applies the past-due cascade, re-checking the lapse predicate
// so a renewal that landed after the scan wins.
func (r *repository) ExpireLapsed(ctx context.Context, userID string, now time.Time) (bool, error) {
	next := PastDue()
	free := QuotasFor(next.Tier)
	res := r.lapsed(r.db.WithContext(ctx).Model(&models.Entitlement{}), now).
		Where("user_id = ?", userID).
		Updates(map[string]any{
			"tier":             next.Tier,
			"status":           next.Status,
			"period_end":       nil,
			"billing_interval": nil,
			"backtest_limit":   free.Backtest,
			"ai_chat_limit":    free.AIChat,
			"strategy_limit":   free.Strategy,
			"revision":         gorm.Expr("revision + 1"),
			"updated_at":       now.UTC(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// ResetCounters zeroes one daily counter for every row last reset before cutoff.
func (r *repository) ResetCounters(ctx context.Context, feature enums.Feature, cutoff, now time.Time) (int64, error) {
	cols, err := columnsFor(feature)
	if err != nil {
		return 0, err
	}
	res := r.db.WithContext(ctx).
		Model(&models.Entitlement{}).
		Where(cols.resetAt+" < ?", cutoff.UTC()).
		UpdateColumns(map[string]any{
			cols.used:    0,
			cols.resetAt: now.UTC(),
		})
	return res.RowsAffected, res.Error
}

func (r *repository) ResetCounterForUser(ctx context.Context, userID string, feature enums.Feature, cutoff, now time.Time) error {
	cols, err := columnsFor(feature)
	if err != nil {
		return err
	}
	return r.db.WithContext(ctx).
		Model(&models.Entitlement{}).
		Where("user_id = ? AND "+cols.resetAt+" < ?", userID, cutoff.UTC()).
		UpdateColumns(map[string]any{
			cols.used:    0,
			cols.resetAt: now.UTC(),
		}).Error
}

// IncrementUsage bumps a counter only while it is under its limit.
func (r *repository) IncrementUsage(ctx context.Context, userID string, feature enums.Feature) (bool, error) {
	cols, err := columnsFor(feature)
	if err != nil {
		return false, err
	}
	res := r.db.WithContext(ctx).
		Model(&models.Entitlement{}).
		Where(fmt.Sprintf("user_id = ? AND (%s = ? OR %s < %s)", cols.limit, cols.used, cols.limit), userID, Unlimited).
		UpdateColumn(cols.used, gorm.Expr(cols.used+" + 1"))
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

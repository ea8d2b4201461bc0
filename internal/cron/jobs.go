package cron

import (
	"context"
	"time"

	"github.com/faisalrasbihan/algosaham-4-sub001/pkg/db/models"
	"github.com/faisalrasbihan/algosaham-4-sub001/pkg/enums"
)

const (
	usageResetJobName     = "usage-reset"
	expiryJobName         = "entitlement-expiry"
	reconcileJobName      = "subscription-reconcile"
	webhookReplayJobName  = "webhook-replay"
	defaultSweepBatchSize = 200
)

// affectedRecorder receives row counts; *metrics.CronJobMetrics satisfies it.
type affectedRecorder interface {
	AddAffected(job string, rows int64)
}

type counterResetter interface {
	ResetCounters(ctx context.Context, feature enums.Feature, cutoff, now time.Time) (int64, error)
}

type lapseSweeper interface {
	ListLapsedUserIDs(ctx context.Context, now time.Time, afterUserID string, limit int) ([]string, error)
	ExpireLapsed(ctx context.Context, userID string, now time.Time) (bool, error)
}

type subscriptionLister interface {
	ListSubscriptionsForReconcile(ctx context.Context, afterGatewayID string, limit int) ([]models.RecurringSubscription, error)
}

type subscriptionSyncer interface {
	Sync(ctx context.Context, sub models.RecurringSubscription) (enums.SubscriptionStatus, error)
}

type inboxLister interface {
	ListPending(ctx context.Context, receivedBefore time.Time, maxAttempts, limit int) ([]models.WebhookInbox, error)
}

type notificationReplayer interface {
	Replay(ctx context.Context, entry models.WebhookInbox) error
}

func batchSize(size int) int {
	if size <= 0 {
		return defaultSweepBatchSize
	}
	return size
}

func recordAffected(rec affectedRecorder, job string, rows int64) {
	if rec == nil {
		return
	}
	rec.AddAffected(job, rows)
}

package cron

import (
	"context"
	"fmt"

	"go.uber.org/multierr"

	"github.com/faisalrasbihan/algosaham-4-sub001/pkg/logger"
)

type SubscriptionReconcileJobParams struct {
	Logger    *logger.Logger
	Repo      subscriptionLister
	Syncer    subscriptionSyncer
	Metrics   affectedRecorder
	BatchSize int
}

// SubscriptionReconcileJob refreshes active recurring handles from the gateway
// so handles disabled out of band stop being treated as active.
type SubscriptionReconcileJob struct {
	logg      *logger.Logger
	repo      subscriptionLister
	syncer    subscriptionSyncer
	metrics   affectedRecorder
	batchSize int
}

func NewSubscriptionReconcileJob(params SubscriptionReconcileJobParams) (*SubscriptionReconcileJob, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Repo == nil {
		return nil, fmt.Errorf("billing repository required")
	}
	if params.Syncer == nil {
		return nil, fmt.Errorf("subscription syncer required")
	}
	return &SubscriptionReconcileJob{
		logg:      params.Logger,
		repo:      params.Repo,
		syncer:    params.Syncer,
		metrics:   params.Metrics,
		batchSize: batchSize(params.BatchSize),
	}, nil
}

func (j *SubscriptionReconcileJob) Name() string { return reconcileJobName }

func (j *SubscriptionReconcileJob) Run(ctx context.Context) error {
	var (
		cursor  string
		changed int64
		errs    error
	)
	defer func() { recordAffected(j.metrics, j.Name(), changed) }()

	for {
		subs, err := j.repo.ListSubscriptionsForReconcile(ctx, cursor, j.batchSize)
		if err != nil {
			return multierr.Append(errs, fmt.Errorf("list subscriptions: %w", err))
		}
		for _, sub := range subs {
			if err := ctx.Err(); err != nil {
				return multierr.Append(errs, err)
			}
			status, err := j.syncer.Sync(ctx, sub)
			if err != nil {
				errs = multierr.Append(errs, fmt.Errorf("sync %s: %w", sub.GatewaySubscriptionID, err))
				continue
			}
			if status != sub.Status {
				changed++
				fields := map[string]any{
					"subscription_id": sub.GatewaySubscriptionID,
					"from":            string(sub.Status),
					"to":              string(status),
				}
				j.logg.Info(j.logg.WithFields(j.logg.WithUserID(ctx, sub.UserID), fields), "subscription status refreshed")
			}
		}
		if len(subs) < j.batchSize {
			break
		}
		cursor = subs[len(subs)-1].GatewaySubscriptionID
	}
	return errs
}

package cron

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"

	"github.com/faisalrasbihan/algosaham-4-sub001/pkg/logger"
)

type EntitlementExpiryJobParams struct {
	Logger    *logger.Logger
	Repo      lapseSweeper
	Metrics   affectedRecorder
	BatchSize int
}

// EntitlementExpiryJob drops paid entitlements whose period has ended back to
// ritel/expired. Each user is expired by its own conditional update, so a
// renewal committed between the scan and the update is left intact.
type EntitlementExpiryJob struct {
	logg      *logger.Logger
	repo      lapseSweeper
	metrics   affectedRecorder
	batchSize int
	now       func() time.Time
}

func NewEntitlementExpiryJob(params EntitlementExpiryJobParams) (*EntitlementExpiryJob, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Repo == nil {
		return nil, fmt.Errorf("entitlement repository required")
	}
	return &EntitlementExpiryJob{
		logg:      params.Logger,
		repo:      params.Repo,
		metrics:   params.Metrics,
		batchSize: batchSize(params.BatchSize),
		now:       time.Now,
	}, nil
}

func (j *EntitlementExpiryJob) Name() string { return expiryJobName }

func (j *EntitlementExpiryJob) Run(ctx context.Context) error {
	now := j.now()
	var (
		cursor  string
		expired int64
		errs    error
	)
	defer func() { recordAffected(j.metrics, j.Name(), expired) }()

	for {
		ids, err := j.repo.ListLapsedUserIDs(ctx, now, cursor, j.batchSize)
		if err != nil {
			return multierr.Append(errs, fmt.Errorf("list lapsed entitlements: %w", err))
		}
		for _, userID := range ids {
			if err := ctx.Err(); err != nil {
				return multierr.Append(errs, err)
			}
			changed, err := j.repo.ExpireLapsed(ctx, userID, now)
			if err != nil {
				errs = multierr.Append(errs, fmt.Errorf("expire %s: %w", userID, err))
				continue
			}
			if changed {
				expired++
				j.logg.Info(j.logg.WithUserID(ctx, userID), "entitlement expired")
			}
		}
		if len(ids) < j.batchSize {
			break
		}
		cursor = ids[len(ids)-1]
	}
	return errs
}

package cron

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"

	"github.com/faisalrasbihan/algosaham-4-sub001/pkg/logger"
)

const (
	defaultReplayGrace       = 2 * time.Minute
	defaultReplayMaxAttempts = 10
)

type WebhookReplayJobParams struct {
	Logger      *logger.Logger
	Inbox       inboxLister
	Replayer    notificationReplayer
	Metrics     affectedRecorder
	BatchSize   int
	Grace       time.Duration
	MaxAttempts int
}

// WebhookReplayJob re-applies stored gateway notifications whose first
// processing failed after the gateway had been acknowledged.
type WebhookReplayJob struct {
	logg        *logger.Logger
	inbox       inboxLister
	replayer    notificationReplayer
	metrics     affectedRecorder
	batchSize   int
	grace       time.Duration
	maxAttempts int
	now         func() time.Time
}

func NewWebhookReplayJob(params WebhookReplayJobParams) (*WebhookReplayJob, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Inbox == nil {
		return nil, fmt.Errorf("webhook inbox required")
	}
	if params.Replayer == nil {
		return nil, fmt.Errorf("notification replayer required")
	}
	grace := params.Grace
	if grace <= 0 {
		grace = defaultReplayGrace
	}
	maxAttempts := params.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultReplayMaxAttempts
	}
	return &WebhookReplayJob{
		logg:        params.Logger,
		inbox:       params.Inbox,
		replayer:    params.Replayer,
		metrics:     params.Metrics,
		batchSize:   batchSize(params.BatchSize),
		grace:       grace,
		maxAttempts: maxAttempts,
		now:         time.Now,
	}, nil
}

func (j *WebhookReplayJob) Name() string { return webhookReplayJobName }

// Run replays one batch of the oldest pending rows. Rows that fail again stay
// pending until they use up their attempts.
func (j *WebhookReplayJob) Run(ctx context.Context) error {
	var (
		replayed int64
		errs     error
	)
	defer func() { recordAffected(j.metrics, j.Name(), replayed) }()

	rows, err := j.inbox.ListPending(ctx, j.now().Add(-j.grace), j.maxAttempts, j.batchSize)
	if err != nil {
		return fmt.Errorf("list pending notifications: %w", err)
	}
	for _, row := range rows {
		if err := ctx.Err(); err != nil {
			return multierr.Append(errs, err)
		}
		if err := j.replayer.Replay(ctx, row); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("replay %s: %w", row.OrderID, err))
			if row.AttemptCount+1 >= j.maxAttempts {
				fields := map[string]any{
					"order_id":      row.OrderID,
					"attempt_count": row.AttemptCount + 1,
					"manual_review": true,
				}
				j.logg.Warn(j.logg.WithFields(ctx, fields), "webhook.replay_exhausted")
			}
			continue
		}
		replayed++
	}
	return errs
}

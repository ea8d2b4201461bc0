package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/faisalrasbihan/algosaham-4-sub001/internal/entitlements"
	"github.com/faisalrasbihan/algosaham-4-sub001/pkg/enums"
	"github.com/faisalrasbihan/algosaham-4-sub001/pkg/logger"
)

// UsageResetJobParams wires the daily counter reset.
type UsageResetJobParams struct {
	Logger   *logger.Logger
	Repo     counterResetter
	Metrics  affectedRecorder
	Location *time.Location
	Features []enums.Feature
}

// UsageResetJob zeroes daily counters whose last reset predates the start of
// today in the billing timezone. Rerunning it on the same day changes nothing.
type UsageResetJob struct {
	logg     *logger.Logger
	repo     counterResetter
	metrics  affectedRecorder
	loc      *time.Location
	features []enums.Feature
	now      func() time.Time
}

func NewUsageResetJob(params UsageResetJobParams) (*UsageResetJob, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Repo == nil {
		return nil, fmt.Errorf("entitlement repository required")
	}
	loc := params.Location
	if loc == nil {
		loc = time.UTC
	}
	features := params.Features
	if len(features) == 0 {
		features = []enums.Feature{enums.FeatureBacktest, enums.FeatureAIChat}
	}
	return &UsageResetJob{
		logg:     params.Logger,
		repo:     params.Repo,
		metrics:  params.Metrics,
		loc:      loc,
		features: features,
		now:      time.Now,
	}, nil
}

func (j *UsageResetJob) Name() string { return usageResetJobName }

func (j *UsageResetJob) Run(ctx context.Context) error {
	now := j.now()
	cutoff := entitlements.StartOfDay(now, j.loc)

	var total int64
	for _, feature := range j.features {
		rows, err := j.repo.ResetCounters(ctx, feature, cutoff, now)
		if err != nil {
			return fmt.Errorf("reset %s counters: %w", feature, err)
		}
		total += rows
		if rows > 0 {
			fields := map[string]any{"feature": feature.String(), "rows": rows}
			j.logg.Info(j.logg.WithFields(ctx, fields), "daily counters reset")
		}
	}
	recordAffected(j.metrics, j.Name(), total)
	return nil
}

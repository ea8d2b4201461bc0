package entitlements

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/faisalrasbihan/algosaham-4-sub001/internal/orderid"
	"github.com/faisalrasbihan/algosaham-4-sub001/pkg/db/models"
	"github.com/faisalrasbihan/algosaham-4-sub001/pkg/enums"
	pkgerrors "github.com/faisalrasbihan/algosaham-4-sub001/pkg/errors"
	"github.com/faisalrasbihan/algosaham-4-sub001/pkg/logger"
)

const (
	maxApplyAttempts = 3
	prefixScanLimit  = 8
)

var (
	ErrNotFound         = errors.New("entitlement not found")
	ErrAmbiguousUser    = errors.New("user fragment matches more than one entitlement")
	ErrConcurrentUpdate = errors.New("entitlement changed concurrently")
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// RecurringCanceler stops gateway-side charges for a user.
type RecurringCanceler interface {
	DisableForUser(ctx context.Context, userID string) error
}

type ServiceParams struct {
	Repo     Repository
	DB       txRunner
	Logger   *logger.Logger
	Location *time.Location
	Canceler RecurringCanceler
}

type Service struct {
	repo     Repository
	db       txRunner
	logg     *logger.Logger
	loc      *time.Location
	canceler RecurringCanceler
	now      func() time.Time
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "entitlement repository required")
	}
	if params.DB == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction runner required")
	}
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "logger required")
	}
	loc := params.Location
	if loc == nil {
		loc = time.UTC
	}
	return &Service{
		repo:     params.Repo,
		db:       params.DB,
		logg:     params.Logger,
		loc:      loc,
		canceler: params.Canceler,
		now:      time.Now,
	}, nil
}

// Usage is the consumption of the daily counters for the current day.
type Usage struct {
	Backtest int `json:"backtest"`
	AIChat   int `json:"aiChat"`
}

// View is the read model quota-gated features consume.
type View struct {
	UserID          string                  `json:"userId"`
	Tier            enums.Tier              `json:"tier"`
	Status          enums.EntitlementStatus `json:"status"`
	Limits          Quotas                  `json:"limits"`
	Usage           Usage                   `json:"usage"`
	PeriodEnd       *time.Time              `json:"periodEnd"`
	BillingInterval *enums.BillingInterval  `json:"billingInterval,omitempty"`
}

// Allows reports whether one more unit of feature fits today's limit.
func (v *View) Allows(feature enums.Feature) bool {
	used := v.Usage.Backtest
	if feature == enums.FeatureAIChat {
		used = v.Usage.AIChat
	}
	return allows(v.Limits.LimitFor(feature), used)
}

// Result describes what Apply did.
type Result struct {
	Applied bool
	Skipped SkipReason
	Before  State
	After   State
}

func (s *Service) Get(ctx context.Context, userID string) (*View, error) {
	entitlement, err := s.repo.FindByUserID(ctx, userID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load entitlement")
	}
	if entitlement == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "entitlement not found")
	}
	return s.view(entitlement), nil
}

// Ensure creates the free entitlement on first sign-up. It is idempotent.
func (s *Service) Ensure(ctx context.Context, userID string) (*View, bool, error) {
	if orderid.LookupKey(userID) == "" {
		return nil, false, pkgerrors.New(pkgerrors.CodeValidation, "user id has no alphanumeric characters")
	}
	now := s.now().UTC()
	free := QuotasFor(enums.TierRitel)
	created, err := s.repo.Create(ctx, &models.Entitlement{
		UserID:          userID,
		LookupKey:       orderid.LookupKey(userID),
		Tier:            enums.TierRitel,
		Status:          enums.EntitlementStatusActive,
		BacktestLimit:   free.Backtest,
		AIChatLimit:     free.AIChat,
		StrategyLimit:   free.Strategy,
		BacktestResetAt: now,
		AIChatResetAt:   now,
	})
	if err != nil {
		return nil, false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create entitlement")
	}
	if created {
		s.logg.Info(s.logg.WithUserID(ctx, userID), "entitlement.created")
	}
	view, err := s.Get(ctx, userID)
	return view, created, err
}

// Apply runs one tagged transition for userID inside tx. The write is a
// compare-and-set on the row revision, retried when another writer won.
func (s *Service) Apply(ctx context.Context, tx *gorm.DB, userID string, t Transition) (Result, error) {
	repo := s.repo.WithTx(tx)
	for attempt := 0; attempt < maxApplyAttempts; attempt++ {
		current, err := repo.FindByUserID(ctx, userID)
		if err != nil {
			return Result{}, fmt.Errorf("load entitlement: %w", err)
		}
		if current == nil {
			return Result{}, ErrNotFound
		}

		now := s.now()
		next, skip := t.Next(*current, now)
		before := StateOf(*current)
		if skip != SkipNone {
			return Result{Skipped: skip, Before: before, After: before}, nil
		}

		ok, err := repo.ApplyState(ctx, userID, current.Revision, next, now)
		if err != nil {
			return Result{}, fmt.Errorf("apply %s: %w", t.Kind, err)
		}
		if ok {
			return Result{Applied: true, Before: before, After: next}, nil
		}
	}
	return Result{}, ErrConcurrentUpdate
}

// ResolveUser maps a decoded order id to the single user it was issued for.
// An exact lookup key match wins; prefix matching only applies when the
// fragment was cut to fit the order id.
func (s *Service) ResolveUser(ctx context.Context, tx *gorm.DB, id orderid.OrderID) (string, error) {
	fragment := id.UserFragment
	if fragment == "" || orderid.LookupKey(fragment) != fragment {
		return "", ErrNotFound
	}
	repo := s.repo.WithTx(tx)

	exact, err := repo.FindByLookupKey(ctx, fragment, 2)
	if err != nil {
		return "", fmt.Errorf("lookup user: %w", err)
	}
	switch len(exact) {
	case 0:
	case 1:
		return exact[0].UserID, nil
	default:
		return "", ErrAmbiguousUser
	}
	if !id.Truncated {
		return "", ErrNotFound
	}

	rows, err := repo.FindByLookupPrefix(ctx, fragment, prefixScanLimit)
	if err != nil {
		return "", fmt.Errorf("lookup user: %w", err)
	}
	// LIKE folds case on some drivers; keep only exact-case prefixes
	var matched []string
	for _, row := range rows {
		if orderid.MatchesUser(fragment, row.UserID) {
			matched = append(matched, row.UserID)
		}
	}
	switch len(matched) {
	case 0:
		return "", ErrNotFound
	case 1:
		return matched[0], nil
	default:
		return "", ErrAmbiguousUser
	}
}

// Cancel stops renewals and marks the entitlement canceled. Paid access
// remains until period_end, when the expiry sweep demotes it.
func (s *Service) Cancel(ctx context.Context, userID string) (*View, error) {
	current, err := s.repo.FindByUserID(ctx, userID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load entitlement")
	}
	if current == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "entitlement not found")
	}
	if current.Tier == enums.TierRitel {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "free tier has nothing to cancel").
			WithDetails(map[string]any{"tier": current.Tier})
	}
	if current.Status == enums.EntitlementStatusCanceled {
		return s.view(current), nil
	}

	ctx = s.logg.WithUserID(ctx, userID)
	if s.canceler != nil {
		if err := s.canceler.DisableForUser(ctx, userID); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "disable recurring subscription")
		}
	}

	if _, err := s.repo.MarkCanceled(ctx, userID, s.now()); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "cancel entitlement")
	}
	s.logg.Info(ctx, "entitlement.canceled")
	return s.Get(ctx, userID)
}

// ConsumeUsage spends one unit of a daily counter, rolling it over first when
// the last reset predates today.
func (s *Service) ConsumeUsage(ctx context.Context, userID string, feature enums.Feature) (*View, error) {
	if !feature.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unknown feature").
			WithDetails(map[string]any{"feature": feature})
	}

	now := s.now()
	cutoff := StartOfDay(now, s.loc)
	var updated *models.Entitlement
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		current, err := repo.FindByUserID(ctx, userID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load entitlement")
		}
		if current == nil {
			return pkgerrors.New(pkgerrors.CodeNotFound, "entitlement not found")
		}
		if err := repo.ResetCounterForUser(ctx, userID, feature, cutoff, now); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "roll over usage counter")
		}
		ok, err := repo.IncrementUsage(ctx, userID, feature)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "consume usage")
		}
		if !ok {
			return pkgerrors.New(pkgerrors.CodeQuotaExceeded, fmt.Sprintf("%s quota exhausted", feature)).
				WithDetails(map[string]any{
					"feature":  feature,
					"limit":    QuotasFor(current.Tier).LimitFor(feature),
					"resetsAt": cutoff.AddDate(0, 0, 1),
				})
		}
		updated, err = repo.FindByUserID(ctx, userID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload entitlement")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.view(updated), nil
}

// StartOfDay returns local midnight of t in loc.
func StartOfDay(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	local := t.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
}

func (s *Service) view(e *models.Entitlement) *View {
	cutoff := StartOfDay(s.now(), s.loc)
	usage := Usage{}
	if !e.BacktestResetAt.Before(cutoff) {
		usage.Backtest = e.BacktestUsed
	}
	if !e.AIChatResetAt.Before(cutoff) {
		usage.AIChat = e.AIChatUsed
	}
	return &View{
		UserID:          e.UserID,
		Tier:            e.Tier,
		Status:          e.Status,
		Limits:          StateOf(*e).Quotas,
		Usage:           usage,
		PeriodEnd:       e.PeriodEnd,
		BillingInterval: e.BillingInterval,
	}
}

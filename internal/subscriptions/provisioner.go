package subscriptions

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sethvargo/go-retry"
	"github.com/shopspring/decimal"
	"go.uber.org/multierr"

	"github.com/faisalrasbihan/algosaham-4-sub001/internal/billing"
	"github.com/faisalrasbihan/algosaham-4-sub001/pkg/db/models"
	"github.com/faisalrasbihan/algosaham-4-sub001/pkg/enums"
	"github.com/faisalrasbihan/algosaham-4-sub001/pkg/logger"
	"github.com/faisalrasbihan/algosaham-4-sub001/pkg/midtrans"
)

// ErrProvisioningFailure marks a recurring subscription that could not be
// created. The paid entitlement is kept regardless.
var ErrProvisioningFailure = errors.New("recurring subscription provisioning failed")

const (
	defaultTimeout     = 20 * time.Second
	defaultAttempts    = 3
	defaultBaseBackoff = 500 * time.Millisecond
	maxBackoff         = 5 * time.Second
)

type handleRepository interface {
	CreateSubscription(ctx context.Context, sub *models.RecurringSubscription) (bool, error)
	FindSubscriptionByGatewayID(ctx context.Context, gatewaySubscriptionID string) (*models.RecurringSubscription, error)
	ListActiveSubscriptionsByUser(ctx context.Context, userID string) ([]models.RecurringSubscription, error)
	UpdateSubscriptionStatus(ctx context.Context, gatewaySubscriptionID string, status enums.SubscriptionStatus, syncedAt time.Time) error
}

type provisioningMetrics interface {
	IncProvisioning(result string)
}

// Request describes the settled payment a recurring schedule is created from.
type Request struct {
	UserID      string
	OrderID     string
	TokenID     string
	Tier        enums.Tier
	Interval    enums.BillingInterval
	GrossAmount decimal.Decimal
}

type ProvisionerParams struct {
	Gateway           Gateway
	Repo              handleRepository
	Logger            *logger.Logger
	Metrics           provisioningMetrics
	Prices            billing.PriceTable
	Currency          string
	Location          *time.Location
	Timeout           time.Duration
	Attempts          uint64
	BaseBackoff       time.Duration
	MonthlyMaxCharges int
	AnnualMaxCharges  int
}

// Provisioner creates gateway-side recurring charges after a successful
// initial payment, off the request path.
type Provisioner struct {
	gateway    Gateway
	repo       handleRepository
	logg       *logger.Logger
	metrics    provisioningMetrics
	prices     billing.PriceTable
	currency   string
	loc        *time.Location
	timeout    time.Duration
	attempts   uint64
	backoff    time.Duration
	monthlyMax int
	annualMax  int
	now        func() time.Time
	dispatch   func(func())
	wg         sync.WaitGroup
}

func NewProvisioner(params ProvisionerParams) (*Provisioner, error) {
	if params.Gateway == nil {
		return nil, fmt.Errorf("subscription gateway required")
	}
	if params.Repo == nil {
		return nil, fmt.Errorf("subscription repository required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	p := &Provisioner{
		gateway:    params.Gateway,
		repo:       params.Repo,
		logg:       params.Logger,
		metrics:    params.Metrics,
		prices:     params.Prices,
		currency:   params.Currency,
		loc:        params.Location,
		timeout:    params.Timeout,
		attempts:   params.Attempts,
		backoff:    params.BaseBackoff,
		monthlyMax: params.MonthlyMaxCharges,
		annualMax:  params.AnnualMaxCharges,
		now:        time.Now,
	}
	if p.prices == nil {
		p.prices = billing.DefaultPrices()
	}
	if p.currency == "" {
		p.currency = "IDR"
	}
	if p.loc == nil {
		p.loc = time.UTC
	}
	if p.timeout <= 0 {
		p.timeout = defaultTimeout
	}
	if p.attempts == 0 {
		p.attempts = defaultAttempts
	}
	if p.backoff <= 0 {
		p.backoff = defaultBaseBackoff
	}
	if p.monthlyMax <= 0 {
		p.monthlyMax = 12
	}
	if p.annualMax <= 0 {
		p.annualMax = 5
	}
	p.dispatch = func(fn func()) { go fn() }
	return p, nil
}

// Schedule provisions req in the background. The caller's cancellation does
// not reach the work; the provisioner's own timeout bounds it.
func (p *Provisioner) Schedule(ctx context.Context, req Request) {
	detached := context.WithoutCancel(ctx)
	p.wg.Add(1)
	p.dispatch(func() {
		defer p.wg.Done()
		runCtx, cancel := context.WithTimeout(detached, p.timeout)
		defer cancel()
		if _, err := p.Provision(runCtx, req); err != nil {
			p.logg.Error(p.logg.WithField(runCtx, "outcome", "ProvisioningFailure"), "subscription.provisioning_failed", err)
		}
	})
}

// Wait blocks until every scheduled provisioning has finished.
func (p *Provisioner) Wait() {
	p.wg.Wait()
}

// Provision creates the recurring charge and stores its handle, retrying
// transient gateway failures with exponential backoff.
func (p *Provisioner) Provision(ctx context.Context, req Request) (*models.RecurringSubscription, error) {
	ctx = p.logg.WithFields(ctx, map[string]any{
		"user_id":  req.UserID,
		"order_id": req.OrderID,
	})
	if req.TokenID == "" || req.UserID == "" {
		p.record("invalid")
		return nil, fmt.Errorf("%w: token and user are required", ErrProvisioningFailure)
	}

	amount, ok := p.prices.Amount(req.Tier, req.Interval)
	if !ok {
		amount = req.GrossAmount
	}
	now := p.now()
	schedule := ScheduleFor(req.Interval, p.monthlyMax, p.annualMax, now, p.loc)
	gatewayReq := midtrans.CreateSubscriptionRequest{
		Name:     SubscriptionName(req.Tier, req.Interval),
		Amount:   WholeAmount(amount),
		Currency: p.currency,
		Token:    req.TokenID,
		Schedule: schedule,
		Metadata: map[string]string{
			"user_id":  req.UserID,
			"order_id": req.OrderID,
			"tier":     req.Tier.String(),
			"interval": req.Interval.String(),
		},
	}

	// create is not idempotent at the gateway: only failures that provably
	// created nothing are repeated
	var created *midtrans.Subscription
	backoff := retry.WithMaxRetries(p.attempts-1, retry.WithCappedDuration(maxBackoff, retry.NewExponential(p.backoff)))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		sub, err := p.gateway.CreateSubscription(ctx, gatewayReq)
		if err != nil {
			if midtrans.IsRetryableCreate(err) {
				p.logg.Warn(p.logg.WithField(ctx, "error", err.Error()), "subscription.create_retry")
				return retry.RetryableError(err)
			}
			return err
		}
		created = sub
		return nil
	})
	if err != nil {
		if midtrans.IsRetryable(err) && !midtrans.IsRetryableCreate(err) {
			// the gateway may hold a schedule we never learned the id of
			p.record("unconfirmed")
			p.logg.Warn(p.logg.WithFields(ctx, map[string]any{
				"error":         err.Error(),
				"token_id":      req.TokenID,
				"manual_review": true,
			}), "subscription.create_unconfirmed")
			return nil, fmt.Errorf("%w: outcome unknown: %w", ErrProvisioningFailure, err)
		}
		p.record("failed")
		return nil, fmt.Errorf("%w: %w", ErrProvisioningFailure, err)
	}

	status, mapErr := mapGatewayStatus(created.Status)
	if mapErr != nil {
		status = enums.SubscriptionStatusActive
	}
	handle := &models.RecurringSubscription{
		GatewaySubscriptionID: created.ID,
		UserID:                req.UserID,
		Tier:                  req.Tier,
		BillingInterval:       req.Interval,
		Amount:                amount,
		TokenID:               req.TokenID,
		Interval:              schedule.Interval,
		IntervalUnit:          schedule.IntervalUnit,
		MaxInterval:           schedule.MaxInterval,
		Status:                status,
		OriginOrderID:         req.OrderID,
	}
	if _, err := p.repo.CreateSubscription(ctx, handle); err != nil {
		p.record("persist_failed")
		return nil, fmt.Errorf("%w: store handle %s: %w", ErrProvisioningFailure, created.ID, err)
	}

	p.record("created")
	p.logg.Info(p.logg.WithField(ctx, "gateway_subscription_id", created.ID), "subscription.provisioned")
	return handle, nil
}

func (p *Provisioner) record(result string) {
	if p.metrics != nil {
		p.metrics.IncProvisioning(result)
	}
}

// DisableForUser stops every active recurring charge of userID at the gateway
// and marks the local handles disabled.
func (p *Provisioner) DisableForUser(ctx context.Context, userID string) error {
	subs, err := p.repo.ListActiveSubscriptionsByUser(ctx, userID)
	if err != nil {
		return fmt.Errorf("list recurring subscriptions: %w", err)
	}
	var errs error
	for _, sub := range subs {
		if err := p.gateway.DisableSubscription(ctx, sub.GatewaySubscriptionID); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("disable %s: %w", sub.GatewaySubscriptionID, err))
			continue
		}
		if err := p.repo.UpdateSubscriptionStatus(ctx, sub.GatewaySubscriptionID, enums.SubscriptionStatusDisabled, p.now()); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("mark %s disabled: %w", sub.GatewaySubscriptionID, err))
		}
	}
	return errs
}

// Sync refreshes a handle's status from the gateway and returns the new status.
func (p *Provisioner) Sync(ctx context.Context, sub models.RecurringSubscription) (enums.SubscriptionStatus, error) {
	remote, err := p.gateway.GetSubscription(ctx, sub.GatewaySubscriptionID)
	if err != nil {
		return sub.Status, err
	}
	status, err := mapGatewayStatus(remote.Status)
	if err != nil {
		return sub.Status, err
	}
	if err := p.repo.UpdateSubscriptionStatus(ctx, sub.GatewaySubscriptionID, status, p.now()); err != nil {
		return sub.Status, err
	}
	return status, nil
}

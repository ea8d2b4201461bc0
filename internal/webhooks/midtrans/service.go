package midtranswebhook

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/faisalrasbihan/algosaham-4-sub001/internal/billing"
	"github.com/faisalrasbihan/algosaham-4-sub001/internal/entitlements"
	"github.com/faisalrasbihan/algosaham-4-sub001/internal/orderid"
	"github.com/faisalrasbihan/algosaham-4-sub001/internal/subscriptions"
	"github.com/faisalrasbihan/algosaham-4-sub001/pkg/db/models"
	"github.com/faisalrasbihan/algosaham-4-sub001/pkg/enums"
	pkgerrors "github.com/faisalrasbihan/algosaham-4-sub001/pkg/errors"
	"github.com/faisalrasbihan/algosaham-4-sub001/pkg/logger"
	"github.com/faisalrasbihan/algosaham-4-sub001/pkg/midtrans"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type entitlementService interface {
	Apply(ctx context.Context, tx *gorm.DB, userID string, t entitlements.Transition) (entitlements.Result, error)
	ResolveUser(ctx context.Context, tx *gorm.DB, id orderid.OrderID) (string, error)
}

type provisioner interface {
	Schedule(ctx context.Context, req subscriptions.Request)
}

type notificationMetrics interface {
	IncNotification(outcome, result string)
}

// statusChecker reads the gateway's state of record; *midtrans.Client satisfies it.
type statusChecker interface {
	TransactionStatus(ctx context.Context, orderID string) (*midtrans.TransactionStatus, error)
}

type ServiceParams struct {
	Entitlements      entitlementService
	BillingRepo       billing.Repository
	TransactionRunner txRunner
	Provisioner       provisioner
	Logger            *logger.Logger
	Metrics           notificationMetrics
	Prices            billing.PriceTable
	ServerKey         string
	// Inbox keeps verified notifications for replay. Optional.
	Inbox InboxRepository
	// StatusChecker confirms replayed notifications with the gateway. Optional.
	StatusChecker statusChecker
}

// Service applies verified gateway notifications to entitlements.
type Service struct {
	entitlements entitlementService
	billingRepo  billing.Repository
	txRunner     txRunner
	provisioner  provisioner
	logg         *logger.Logger
	metrics      notificationMetrics
	prices       billing.PriceTable
	serverKey    string
	inbox        InboxRepository
	checker      statusChecker
	now          func() time.Time
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Entitlements == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "entitlement service required")
	}
	if params.BillingRepo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "billing repo required")
	}
	if params.TransactionRunner == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction runner required")
	}
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "logger required")
	}
	if strings.TrimSpace(params.ServerKey) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "server key required")
	}
	prices := params.Prices
	if prices == nil {
		prices = billing.DefaultPrices()
	}
	return &Service{
		entitlements: params.Entitlements,
		billingRepo:  params.BillingRepo,
		txRunner:     params.TransactionRunner,
		provisioner:  params.Provisioner,
		logg:         params.Logger,
		metrics:      params.Metrics,
		prices:       prices,
		serverKey:    params.ServerKey,
		inbox:        params.Inbox,
		checker:      params.StatusChecker,
		now:          time.Now,
	}, nil
}

// Verify checks the notification signature against the server key.
func (s *Service) Verify(n midtrans.Notification) error {
	if !midtrans.VerifySignature(n, s.serverKey) {
		return ErrInvalidSignature
	}
	return nil
}

// Report summarizes how a notification was handled.
type Report struct {
	Outcome enums.PaymentOutcome
	UserID  string
	Applied bool
	Skipped entitlements.SkipReason
}

// order is the plan context a notification resolves to.
type order struct {
	userID   string
	decoded  orderid.OrderID
	tier     enums.Tier
	interval enums.BillingInterval
	issuedAt time.Time
}

// HandleNotification verifies, stores and applies n. The transaction row and
// the entitlement change commit together; provisioning runs afterwards. A
// transient failure leaves the stored notification pending for Replay.
func (s *Service) HandleNotification(ctx context.Context, n midtrans.Notification) (Report, error) {
	ctx = s.logg.WithOrderID(ctx, n.OrderID)
	if err := s.Verify(n); err != nil {
		report := Report{Outcome: Classify(n).Outcome}
		s.observe(ctx, report, err)
		return report, err
	}

	entry := s.receive(ctx, n)
	report, err := s.process(ctx, n)
	s.settle(ctx, entry, err)
	return report, err
}

// Replay applies a stored notification that has not been processed yet. When
// a status checker is configured the gateway's current state replaces the
// stored one. The returned error is non-nil only while entry stays pending.
func (s *Service) Replay(ctx context.Context, entry models.WebhookInbox) error {
	ctx = s.logg.WithFields(s.logg.WithOrderID(ctx, entry.OrderID), map[string]any{
		"inbox_id": entry.ID.String(),
		"attempt":  entry.AttemptCount + 1,
	})
	n, err := decodeInboxPayload(entry)
	if err != nil {
		s.settle(ctx, &entry, err)
		return nil
	}
	if s.checker != nil {
		status, checkErr := s.checker.TransactionStatus(ctx, n.OrderID)
		if checkErr != nil {
			// the stored copy was verified on receipt
			s.logg.Warn(s.logg.WithField(ctx, "error", checkErr.Error()), "webhook.replay_status_unavailable")
		} else {
			n = status.ApplyTo(n)
		}
	}

	_, err = s.process(ctx, n)
	s.settle(ctx, &entry, err)
	if IsTransient(err) {
		return err
	}
	return nil
}

// receive stores n in the inbox. A failed write is logged and processing
// continues; the gateway redelivery is then the only retry.
func (s *Service) receive(ctx context.Context, n midtrans.Notification) *models.WebhookInbox {
	if s.inbox == nil {
		return nil
	}
	entry, err := s.inbox.Record(ctx, n, s.now())
	if err != nil {
		s.logg.Error(ctx, "webhook.inbox_record_failed", err)
		return nil
	}
	return entry
}

// settle closes the inbox row unless err is transient, in which case the
// attempt is counted and the row stays pending.
func (s *Service) settle(ctx context.Context, entry *models.WebhookInbox, err error) {
	if s.inbox == nil || entry == nil {
		return
	}
	// the caller may already be gone; the bookkeeping still has to land
	ctx = context.WithoutCancel(ctx)
	var writeErr error
	if IsTransient(err) {
		writeErr = s.inbox.MarkFailed(ctx, entry.ID, err)
	} else {
		writeErr = s.inbox.MarkProcessed(ctx, entry.ID, OutcomeLabel(err), s.now())
	}
	if writeErr != nil {
		s.logg.Error(ctx, "webhook.inbox_update_failed", writeErr)
	}
}

func (s *Service) process(ctx context.Context, n midtrans.Notification) (report Report, err error) {
	class := Classify(n)
	report.Outcome = class.Outcome
	defer func() {
		s.observe(ctx, report, err)
	}()

	gross, err := decimal.NewFromString(strings.TrimSpace(n.GrossAmount))
	if err != nil {
		return report, fmt.Errorf("%w: gross_amount %q", ErrInvalidNotification, n.GrossAmount)
	}
	if class.Outcome == enums.PaymentOutcomeUnknown {
		return report, nil
	}

	var ord order
	if class.Recurring {
		ord, err = s.recurringOrder(ctx, n)
	} else {
		ord, err = s.initialOrder(ctx, n, gross)
	}
	if err != nil {
		return report, err
	}

	err = s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		if ord.userID == "" {
			userID, err := s.entitlements.ResolveUser(ctx, tx, ord.decoded)
			if err != nil {
				return classifyStoreError(err)
			}
			ord.userID = userID
		}
		report.UserID = ord.userID

		recorded, err := s.billingRepo.WithTx(tx).RecordOutcome(ctx, buildTransaction(n, class, ord, gross, s.now()))
		if err != nil {
			return fmt.Errorf("%w: record transaction: %w", ErrTransientStore, err)
		}
		if !recorded.Applied {
			return fmt.Errorf("%w: stored outcome %s", ErrDuplicateOrderID, recorded.Previous)
		}
		if !class.Outcome.Mutates() {
			return nil
		}

		res, err := s.entitlements.Apply(ctx, tx, ord.userID, transitionFor(class, ord))
		if err != nil {
			return classifyStoreError(err)
		}
		report.Applied = res.Applied
		report.Skipped = res.Skipped
		return nil
	})
	if err != nil {
		return report, err
	}

	if s.shouldProvision(class, n) {
		s.provisioner.Schedule(s.logg.WithUserID(ctx, ord.userID), subscriptions.Request{
			UserID:      ord.userID,
			OrderID:     n.OrderID,
			TokenID:     strings.TrimSpace(n.SavedTokenID),
			Tier:        ord.tier,
			Interval:    ord.interval,
			GrossAmount: gross,
		})
	}
	return report, nil
}

func (s *Service) initialOrder(ctx context.Context, n midtrans.Notification, gross decimal.Decimal) (order, error) {
	decoded, err := orderid.Decode(n.OrderID)
	if err != nil || !decoded.Plan.IsPaid() {
		return order{}, fmt.Errorf("%w: %q", ErrMalformedOrderID, n.OrderID)
	}

	interval := decoded.Interval
	if !decoded.HasInterval() {
		inferred, matched := s.prices.InferInterval(decoded.Plan, gross)
		if !matched {
			s.logg.Warn(s.logg.WithField(ctx, "gross_amount", gross.String()), "webhook.interval_inferred_default")
		}
		interval = inferred
	}
	return order{
		decoded:  decoded,
		tier:     decoded.Plan,
		interval: interval,
		issuedAt: decoded.IssuedAt,
	}, nil
}

// recurringOrder resolves a renewal through its subscription handle; renewal
// order ids are generated by the gateway and carry no plan.
func (s *Service) recurringOrder(ctx context.Context, n midtrans.Notification) (order, error) {
	handle, err := s.billingRepo.FindSubscriptionByGatewayID(ctx, strings.TrimSpace(n.SubscriptionID))
	if err != nil {
		return order{}, fmt.Errorf("%w: load subscription handle: %w", ErrTransientStore, err)
	}
	if handle == nil {
		return order{}, fmt.Errorf("%w: subscription %s has no handle", ErrUnknownUser, n.SubscriptionID)
	}
	return order{
		userID:   handle.UserID,
		tier:     handle.Tier,
		interval: handle.BillingInterval,
	}, nil
}

func (s *Service) shouldProvision(class Classification, n midtrans.Notification) bool {
	return s.provisioner != nil &&
		class.Outcome == enums.PaymentOutcomeSucceeded &&
		!class.Recurring &&
		strings.TrimSpace(n.SavedTokenID) != ""
}

func (s *Service) observe(ctx context.Context, report Report, err error) {
	label := OutcomeLabel(err)
	if s.metrics != nil {
		s.metrics.IncNotification(report.Outcome.String(), label)
	}
	ctx = s.logg.WithFields(ctx, map[string]any{
		"outcome":         label,
		"payment_outcome": report.Outcome.String(),
		"applied":         report.Applied,
	})
	if report.Skipped != entitlements.SkipNone {
		ctx = s.logg.WithField(ctx, "skipped", string(report.Skipped))
	}
	switch {
	case err == nil:
		s.logg.Info(ctx, "webhook.notification_processed")
	case errors.Is(err, ErrTransientStore):
		s.logg.Error(ctx, "webhook.notification_failed", err)
	default:
		s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "webhook.notification_rejected")
	}
}

func transitionFor(class Classification, ord order) entitlements.Transition {
	switch class.Outcome {
	case enums.PaymentOutcomeSucceeded:
		return entitlements.Upgrade(ord.tier, ord.interval, ord.issuedAt)
	case enums.PaymentOutcomeFailed:
		if class.Recurring {
			return entitlements.PastDue()
		}
		return entitlements.Downgrade(class.DowngradeStatus, ord.issuedAt)
	default:
		return entitlements.Downgrade(class.DowngradeStatus, ord.issuedAt)
	}
}

func buildTransaction(n midtrans.Notification, class Classification, ord order, gross decimal.Decimal, now time.Time) *models.PaymentTransaction {
	return &models.PaymentTransaction{
		OrderID:               n.OrderID,
		UserID:                ord.userID,
		Tier:                  ord.tier,
		BillingInterval:       ord.interval,
		TransactionStatus:     strings.ToLower(strings.TrimSpace(n.TransactionStatus)),
		Outcome:               class.Outcome,
		GrossAmount:           gross,
		PaymentType:           n.PaymentType,
		GatewayTransactionID:  optional(n.TransactionID),
		SavedTokenID:          optional(n.SavedTokenID),
		GatewaySubscriptionID: optional(n.SubscriptionID),
		ProcessedAt:           now.UTC(),
	}
}

func classifyStoreError(err error) error {
	switch {
	case errors.Is(err, entitlements.ErrNotFound), errors.Is(err, entitlements.ErrAmbiguousUser):
		return fmt.Errorf("%w: %w", ErrUnknownUser, err)
	default:
		return fmt.Errorf("%w: %w", ErrTransientStore, err)
	}
}

func optional(value string) *string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

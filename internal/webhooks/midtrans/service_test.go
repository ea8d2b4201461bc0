package midtranswebhook

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/faisalrasbihan/algosaham-4-sub001/internal/billing"
	"github.com/faisalrasbihan/algosaham-4-sub001/internal/entitlements"
	"github.com/faisalrasbihan/algosaham-4-sub001/internal/orderid"
	"github.com/faisalrasbihan/algosaham-4-sub001/internal/subscriptions"
	"github.com/faisalrasbihan/algosaham-4-sub001/pkg/db"
	"github.com/faisalrasbihan/algosaham-4-sub001/pkg/db/dbtest"
	"github.com/faisalrasbihan/algosaham-4-sub001/pkg/db/models"
	"github.com/faisalrasbihan/algosaham-4-sub001/pkg/enums"
	"github.com/faisalrasbihan/algosaham-4-sub001/pkg/logger"
	"github.com/faisalrasbihan/algosaham-4-sub001/pkg/midtrans"
)

const testServerKey = "SB-Mid-server-test"

type recordingProvisioner struct {
	mu       sync.Mutex
	requests []subscriptions.Request
}

func (r *recordingProvisioner) Schedule(ctx context.Context, req subscriptions.Request) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.requests = append(r.requests, req)
}

type countingNotifications struct {
	mu     sync.Mutex
	counts map[string]int
}

func (c *countingNotifications) IncNotification(outcome, result string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.counts == nil {
		c.counts = map[string]int{}
	}
	c.counts[result]++
}

// flakyRunner fails the next failures transactions before delegating.
type flakyRunner struct {
	mu       sync.Mutex
	next     *db.Client
	failures int
}

func (r *flakyRunner) failNext(n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures = n
}

func (r *flakyRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	r.mu.Lock()
	fail := r.failures > 0
	if fail {
		r.failures--
	}
	r.mu.Unlock()
	if fail {
		return errors.New("connection reset by peer")
	}
	return r.next.WithTx(ctx, fn)
}

type stubStatusChecker struct {
	status *midtrans.TransactionStatus
	err    error
	calls  []string
}

func (s *stubStatusChecker) TransactionStatus(_ context.Context, orderID string) (*midtrans.TransactionStatus, error) {
	s.calls = append(s.calls, orderID)
	if s.status == nil && s.err == nil {
		return nil, errors.New("no gateway status configured")
	}
	return s.status, s.err
}

type webhookFixture struct {
	svc          *Service
	conn         *gorm.DB
	entitlements *entitlements.Service
	billing      billing.Repository
	inbox        InboxRepository
	runner       *flakyRunner
	checker      *stubStatusChecker
	provisioner  *recordingProvisioner
	metrics      *countingNotifications
}

func newWebhookFixture(t *testing.T) *webhookFixture {
	t.Helper()
	conn := dbtest.Open(t)
	client := db.FromConn(conn)
	logg := logger.New(logger.Options{ServiceName: "test", Level: zerolog.InfoLevel, Output: io.Discard})

	ents, err := entitlements.NewService(entitlements.ServiceParams{
		Repo:   entitlements.NewRepository(conn),
		DB:     client,
		Logger: logg,
	})
	require.NoError(t, err)

	billingRepo := billing.NewRepository(conn)
	inbox := NewInboxRepository(conn)
	runner := &flakyRunner{next: client}
	checker := &stubStatusChecker{}
	prov := &recordingProvisioner{}
	metrics := &countingNotifications{}
	svc, err := NewService(ServiceParams{
		Entitlements:      ents,
		BillingRepo:       billingRepo,
		TransactionRunner: runner,
		Provisioner:       prov,
		Logger:            logg,
		Metrics:           metrics,
		ServerKey:         testServerKey,
		Inbox:             inbox,
		StatusChecker:     checker,
	})
	require.NoError(t, err)
	return &webhookFixture{
		svc:          svc,
		conn:         conn,
		entitlements: ents,
		billing:      billingRepo,
		inbox:        inbox,
		runner:       runner,
		checker:      checker,
		provisioner:  prov,
		metrics:      metrics,
	}
}

func (f *webhookFixture) ensure(t *testing.T, userID string) {
	t.Helper()
	_, _, err := f.entitlements.Ensure(context.Background(), userID)
	require.NoError(t, err)
}

func (f *webhookFixture) view(t *testing.T, userID string) *entitlements.View {
	t.Helper()
	view, err := f.entitlements.Get(context.Background(), userID)
	require.NoError(t, err)
	return view
}

func (f *webhookFixture) countTransactions(t *testing.T, orderID string) int64 {
	t.Helper()
	var count int64
	require.NoError(t, f.conn.Model(&models.PaymentTransaction{}).Where("order_id = ?", orderID).Count(&count).Error)
	return count
}

func (f *webhookFixture) pending(t *testing.T) []models.WebhookInbox {
	t.Helper()
	rows, err := f.inbox.ListPending(context.Background(), time.Now().Add(time.Minute), 5, 10)
	require.NoError(t, err)
	return rows
}

func (f *webhookFixture) inboxRow(t *testing.T, orderID, status string) models.WebhookInbox {
	t.Helper()
	var row models.WebhookInbox
	require.NoError(t, f.conn.Where("order_id = ? AND transaction_status = ?", orderID, status).First(&row).Error)
	return row
}

func signed(n midtrans.Notification) midtrans.Notification {
	if n.StatusCode == "" {
		n.StatusCode = "200"
	}
	n.SignatureKey = midtrans.SignatureKey(n.OrderID, n.StatusCode, n.GrossAmount, testServerKey)
	return n
}

func notification(orderID, status, gross string) midtrans.Notification {
	return signed(midtrans.Notification{
		OrderID:           orderID,
		TransactionStatus: status,
		GrossAmount:       gross,
		PaymentType:       "bank_transfer",
	})
}

func orderFor(t *testing.T, tier enums.Tier, interval enums.BillingInterval, userID string, issuedAt time.Time) string {
	t.Helper()
	id, err := orderid.Encode(tier, interval, userID, issuedAt)
	require.NoError(t, err)
	return id
}

func TestSettlementUpgradesResolvedUser(t *testing.T) {
	f := newWebhookFixture(t)
	f.ensure(t, "u1234567")
	before := time.Now().UTC()

	report, err := f.svc.HandleNotification(context.Background(),
		notification("AS-S-u1234567-1700000000000", "settlement", "89500"))
	require.NoError(t, err)
	require.True(t, report.Applied)
	require.Equal(t, "u1234567", report.UserID)

	view := f.view(t, "u1234567")
	require.Equal(t, enums.TierSuhu, view.Tier)
	require.Equal(t, enums.EntitlementStatusActive, view.Status)
	require.Equal(t, entitlements.QuotasFor(enums.TierSuhu), view.Limits)
	require.NotNil(t, view.PeriodEnd)
	require.WithinDuration(t, before.AddDate(0, 1, 0), *view.PeriodEnd, time.Minute)
	require.Equal(t, enums.BillingIntervalMonthly, *view.BillingInterval)
	require.Equal(t, int64(1), f.countTransactions(t, "AS-S-u1234567-1700000000000"))
}

func TestSettlementResolvesExactUserWithLongerSibling(t *testing.T) {
	f := newWebhookFixture(t)
	f.ensure(t, "u1234567")
	f.ensure(t, "u12345678")

	report, err := f.svc.HandleNotification(context.Background(),
		notification("AS-S-u1234567-1700000000000", "settlement", "89500"))
	require.NoError(t, err)
	require.True(t, report.Applied)
	require.Equal(t, "u1234567", report.UserID)
	require.Equal(t, enums.TierSuhu, f.view(t, "u1234567").Tier)
	require.Equal(t, enums.TierRitel, f.view(t, "u12345678").Tier)
}

func TestRedeliveredSettlementIsDuplicate(t *testing.T) {
	f := newWebhookFixture(t)
	f.ensure(t, "u1234567")
	n := notification("AS-S-u1234567-1700000000000", "settlement", "89500")

	_, err := f.svc.HandleNotification(context.Background(), n)
	require.NoError(t, err)
	first := f.view(t, "u1234567")

	_, err = f.svc.HandleNotification(context.Background(), n)
	require.ErrorIs(t, err, ErrDuplicateOrderID)

	second := f.view(t, "u1234567")
	require.True(t, first.PeriodEnd.Equal(*second.PeriodEnd), "redelivery must not extend the period")
	require.Equal(t, int64(1), f.countTransactions(t, n.OrderID))
	require.Equal(t, 1, f.metrics.counts["DuplicateOrderId"])
}

func TestExpireDowngradesBandarUser(t *testing.T) {
	f := newWebhookFixture(t)
	f.ensure(t, "u7654321")
	paidAt := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

	_, err := f.svc.HandleNotification(context.Background(),
		notification(orderFor(t, enums.TierBandar, enums.BillingIntervalMonthly, "u7654321", paidAt), "settlement", "189500"))
	require.NoError(t, err)
	require.Equal(t, enums.TierBandar, f.view(t, "u7654321").Tier)

	renewal := orderFor(t, enums.TierBandar, enums.BillingIntervalMonthly, "u7654321", paidAt.Add(time.Hour))
	report, err := f.svc.HandleNotification(context.Background(), notification(renewal, "expire", "189500"))
	require.NoError(t, err)
	require.True(t, report.Applied)

	view := f.view(t, "u7654321")
	require.Equal(t, enums.TierRitel, view.Tier)
	require.Equal(t, enums.EntitlementStatusExpired, view.Status)
	require.Equal(t, entitlements.QuotasFor(enums.TierRitel), view.Limits)
	require.Nil(t, view.PeriodEnd)
}

func TestInvalidSignatureIsRejectedWithoutMutation(t *testing.T) {
	f := newWebhookFixture(t)
	f.ensure(t, "u1234567")
	n := notification("AS-S-u1234567-1700000000000", "settlement", "89500")
	n.GrossAmount = "1"

	_, err := f.svc.HandleNotification(context.Background(), n)
	require.ErrorIs(t, err, ErrInvalidSignature)
	require.Equal(t, enums.TierRitel, f.view(t, "u1234567").Tier)
	require.Zero(t, f.countTransactions(t, n.OrderID))
}

func TestMalformedOrderID(t *testing.T) {
	f := newWebhookFixture(t)
	for _, id := range []string{"ORDER-123", "AS-X-u1-1700000000000", "AS-R-u1-1700000000000"} {
		_, err := f.svc.HandleNotification(context.Background(), notification(id, "settlement", "89500"))
		require.ErrorIs(t, err, ErrMalformedOrderID, id)
	}
}

func TestUnknownAndAmbiguousUsers(t *testing.T) {
	f := newWebhookFixture(t)
	f.ensure(t, "abc-111")
	f.ensure(t, "abc-222")

	_, err := f.svc.HandleNotification(context.Background(), notification("AS-S-zzz-1700000000000", "settlement", "89500"))
	require.ErrorIs(t, err, ErrUnknownUser)

	_, err = f.svc.HandleNotification(context.Background(), notification("AS-S-abc-1700000000000", "settlement", "89500"))
	require.ErrorIs(t, err, ErrUnknownUser)
	require.Zero(t, f.countTransactions(t, "AS-S-abc-1700000000000"))
}

func TestPendingThenSettlement(t *testing.T) {
	f := newWebhookFixture(t)
	f.ensure(t, "u1")
	id := orderFor(t, enums.TierSuhu, enums.BillingIntervalYearly, "u1", time.Now())

	report, err := f.svc.HandleNotification(context.Background(), notification(id, "pending", "859200"))
	require.NoError(t, err)
	require.False(t, report.Applied)
	require.Equal(t, enums.TierRitel, f.view(t, "u1").Tier)

	_, err = f.svc.HandleNotification(context.Background(), notification(id, "settlement", "859200"))
	require.NoError(t, err)
	view := f.view(t, "u1")
	require.Equal(t, enums.TierSuhu, view.Tier)
	require.Equal(t, enums.BillingIntervalYearly, *view.BillingInterval)

	txn, err := f.billing.FindTransaction(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, enums.PaymentOutcomeSucceeded, txn.Outcome)
}

func TestChallengeDoesNotMutate(t *testing.T) {
	f := newWebhookFixture(t)
	f.ensure(t, "u1")
	n := notification("AS-B-u1-1700000000000", "capture", "189500")
	n.FraudStatus = "challenge"
	n = signed(n)

	report, err := f.svc.HandleNotification(context.Background(), n)
	require.NoError(t, err)
	require.Equal(t, enums.PaymentOutcomeChallenged, report.Outcome)
	require.Equal(t, enums.TierRitel, f.view(t, "u1").Tier)
}

func TestUnknownStatusIsNoOp(t *testing.T) {
	f := newWebhookFixture(t)
	f.ensure(t, "u1")
	report, err := f.svc.HandleNotification(context.Background(), notification("AS-S-u1-1700000000000", "authorize", "89500"))
	require.NoError(t, err)
	require.Equal(t, enums.PaymentOutcomeUnknown, report.Outcome)
	require.Zero(t, f.countTransactions(t, "AS-S-u1-1700000000000"))
}

func TestLegacyOrderInfersIntervalFromAmount(t *testing.T) {
	f := newWebhookFixture(t)
	f.ensure(t, "u1")
	before := time.Now().UTC()

	_, err := f.svc.HandleNotification(context.Background(), notification("AS-B-u1-1700000000000", "settlement", "1819200.00"))
	require.NoError(t, err)

	view := f.view(t, "u1")
	require.Equal(t, enums.BillingIntervalYearly, *view.BillingInterval)
	require.WithinDuration(t, before.AddDate(1, 0, 0), *view.PeriodEnd, time.Minute)
}

func TestSavedTokenSchedulesProvisioning(t *testing.T) {
	f := newWebhookFixture(t)
	f.ensure(t, "u1")
	n := notification(orderFor(t, enums.TierSuhu, enums.BillingIntervalMonthly, "u1", time.Now()), "capture", "89500")
	n.FraudStatus = "accept"
	n.SavedTokenID = "481111-1114-token"
	n = signed(n)

	_, err := f.svc.HandleNotification(context.Background(), n)
	require.NoError(t, err)
	require.Len(t, f.provisioner.requests, 1)
	req := f.provisioner.requests[0]
	require.Equal(t, "u1", req.UserID)
	require.Equal(t, enums.TierSuhu, req.Tier)
	require.Equal(t, enums.BillingIntervalMonthly, req.Interval)
	require.Equal(t, "481111-1114-token", req.TokenID)
}

func seedHandle(t *testing.T, f *webhookFixture, userID string) {
	t.Helper()
	_, err := f.billing.CreateSubscription(context.Background(), &models.RecurringSubscription{
		GatewaySubscriptionID: "sub-1",
		UserID:                userID,
		Tier:                  enums.TierSuhu,
		BillingInterval:       enums.BillingIntervalMonthly,
		Amount:                decimal.NewFromInt(89500),
		TokenID:               "tok",
		Interval:              1,
		IntervalUnit:          "month",
		MaxInterval:           12,
		Status:                enums.SubscriptionStatusActive,
		OriginOrderID:         "AS-SM-u1-1700000000000",
	})
	require.NoError(t, err)
}

func TestRecurringRenewalExtendsThroughHandle(t *testing.T) {
	f := newWebhookFixture(t)
	f.ensure(t, "u1")
	seedHandle(t, f, "u1")

	_, err := f.svc.HandleNotification(context.Background(), notification("AS-SM-u1-1700000000000", "settlement", "89500"))
	require.NoError(t, err)
	firstEnd := *f.view(t, "u1").PeriodEnd

	n := notification("a2f1c3-renewal-1", "settlement", "89500")
	n.SubscriptionID = "sub-1"
	n.SavedTokenID = "tok"
	n = signed(n)
	_, err = f.svc.HandleNotification(context.Background(), n)
	require.NoError(t, err)

	view := f.view(t, "u1")
	require.Equal(t, enums.TierSuhu, view.Tier)
	require.True(t, view.PeriodEnd.Equal(firstEnd.AddDate(0, 1, 0)))
	require.Empty(t, f.provisioner.requests, "renewals must not provision another schedule")
}

func TestRecurringFailureCascadesPastDue(t *testing.T) {
	f := newWebhookFixture(t)
	f.ensure(t, "u1")
	seedHandle(t, f, "u1")
	_, err := f.svc.HandleNotification(context.Background(), notification("AS-SM-u1-1700000000000", "settlement", "89500"))
	require.NoError(t, err)

	n := notification("a2f1c3-renewal-2", "deny", "89500")
	n.SubscriptionID = "sub-1"
	n = signed(n)
	_, err = f.svc.HandleNotification(context.Background(), n)
	require.NoError(t, err)

	view := f.view(t, "u1")
	require.Equal(t, enums.TierRitel, view.Tier)
	require.Equal(t, enums.EntitlementStatusExpired, view.Status)
	require.NotEqual(t, enums.EntitlementStatusPastDue, view.Status)
}

func TestRecurringWithoutHandleIsUnknownUser(t *testing.T) {
	f := newWebhookFixture(t)
	n := notification("renewal-x", "settlement", "89500")
	n.SubscriptionID = "sub-missing"
	n = signed(n)
	_, err := f.svc.HandleNotification(context.Background(), n)
	require.ErrorIs(t, err, ErrUnknownUser)
}

func TestStaleRefundIsSkipped(t *testing.T) {
	f := newWebhookFixture(t)
	f.ensure(t, "u1")
	older := orderFor(t, enums.TierSuhu, enums.BillingIntervalMonthly, "u1", time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	newer := orderFor(t, enums.TierBandar, enums.BillingIntervalMonthly, "u1", time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC))

	_, err := f.svc.HandleNotification(context.Background(), notification(older, "settlement", "89500"))
	require.NoError(t, err)
	_, err = f.svc.HandleNotification(context.Background(), notification(newer, "settlement", "189500"))
	require.NoError(t, err)

	report, err := f.svc.HandleNotification(context.Background(), notification(older, "refund", "89500"))
	require.NoError(t, err)
	require.False(t, report.Applied)
	require.Equal(t, entitlements.SkipStale, report.Skipped)
	require.Equal(t, enums.TierBandar, f.view(t, "u1").Tier)
}

func TestConcurrentDuplicatesMutateOnce(t *testing.T) {
	f := newWebhookFixture(t)
	f.ensure(t, "u1")
	n := notification("AS-S-u1-1700000000000", "settlement", "89500")

	const workers = 6
	var (
		wg         sync.WaitGroup
		mu         sync.Mutex
		applied    int
		duplicates int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			report, err := f.svc.HandleNotification(context.Background(), n)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil && report.Applied:
				applied++
			case errors.Is(err, ErrDuplicateOrderID):
				duplicates++
			default:
				t.Errorf("unexpected result %+v %v", report, err)
			}
		}()
	}
	wg.Wait()

	require.Equal(t, 1, applied)
	require.Equal(t, workers-1, duplicates)
	view := f.view(t, "u1")
	require.WithinDuration(t, time.Now().UTC().AddDate(0, 1, 0), *view.PeriodEnd, time.Minute)
}

func TestTransientFailureIsReplayedFromInbox(t *testing.T) {
	f := newWebhookFixture(t)
	f.ensure(t, "u1")
	id := orderFor(t, enums.TierSuhu, enums.BillingIntervalMonthly, "u1", time.Now())
	f.runner.failNext(1)

	_, err := f.svc.HandleNotification(context.Background(), notification(id, "settlement", "89500"))
	require.True(t, IsTransient(err), "got %v", err)
	require.Equal(t, enums.TierRitel, f.view(t, "u1").Tier)
	require.Zero(t, f.countTransactions(t, id))

	pending := f.pending(t)
	require.Len(t, pending, 1)
	require.Equal(t, id, pending[0].OrderID)
	require.Equal(t, 1, pending[0].AttemptCount)
	require.NotNil(t, pending[0].LastError)

	// gateway unreachable: the stored copy is applied
	require.NoError(t, f.svc.Replay(context.Background(), pending[0]))
	require.Equal(t, []string{id}, f.checker.calls)
	require.Equal(t, enums.TierSuhu, f.view(t, "u1").Tier)
	require.Equal(t, int64(1), f.countTransactions(t, id))
	require.Empty(t, f.pending(t))

	row := f.inboxRow(t, id, "settlement")
	require.NotNil(t, row.ProcessedAt)
	require.Equal(t, "ok", *row.Result)
}

func TestReplayAppliesGatewayStatusOfRecord(t *testing.T) {
	f := newWebhookFixture(t)
	f.ensure(t, "u1")
	id := orderFor(t, enums.TierBandar, enums.BillingIntervalMonthly, "u1", time.Now())
	f.runner.failNext(1)

	n := notification(id, "pending", "189500")
	n.StatusCode = "201"
	_, err := f.svc.HandleNotification(context.Background(), signed(n))
	require.True(t, IsTransient(err), "got %v", err)

	f.checker.status = &midtrans.TransactionStatus{OrderID: id, TransactionStatus: "settlement", StatusCode: "200", GrossAmount: "189500.00"}
	pending := f.pending(t)
	require.Len(t, pending, 1)
	require.NoError(t, f.svc.Replay(context.Background(), pending[0]))

	require.Equal(t, enums.TierBandar, f.view(t, "u1").Tier)
	txn, err := f.billing.FindTransaction(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, enums.PaymentOutcomeSucceeded, txn.Outcome)

	// the live settlement that follows is a repeat
	_, err = f.svc.HandleNotification(context.Background(), notification(id, "settlement", "189500"))
	require.ErrorIs(t, err, ErrDuplicateOrderID)
	require.Empty(t, f.pending(t))
}

func TestReplayKeepsRowPendingWhileStoreFails(t *testing.T) {
	f := newWebhookFixture(t)
	f.ensure(t, "u1")
	id := orderFor(t, enums.TierSuhu, enums.BillingIntervalMonthly, "u1", time.Now())
	f.runner.failNext(2)

	_, err := f.svc.HandleNotification(context.Background(), notification(id, "settlement", "89500"))
	require.Error(t, err)
	pending := f.pending(t)
	require.Len(t, pending, 1)

	require.Error(t, f.svc.Replay(context.Background(), pending[0]))
	pending = f.pending(t)
	require.Len(t, pending, 1)
	require.Equal(t, 2, pending[0].AttemptCount)
	require.Equal(t, enums.TierRitel, f.view(t, "u1").Tier)
}

func TestRejectedNotificationIsSettledInInbox(t *testing.T) {
	f := newWebhookFixture(t)
	_, err := f.svc.HandleNotification(context.Background(), notification("AS-S-zzz-1700000000000", "settlement", "89500"))
	require.ErrorIs(t, err, ErrUnknownUser)

	require.Empty(t, f.pending(t))
	row := f.inboxRow(t, "AS-S-zzz-1700000000000", "settlement")
	require.NotNil(t, row.ProcessedAt)
	require.Equal(t, "UnknownUser", *row.Result)
}

func TestBadSignatureIsNotStored(t *testing.T) {
	f := newWebhookFixture(t)
	n := notification("AS-S-u1-1700000000000", "settlement", "89500")
	n.SignatureKey = "forged"
	_, err := f.svc.HandleNotification(context.Background(), n)
	require.ErrorIs(t, err, ErrInvalidSignature)

	var count int64
	require.NoError(t, f.conn.Model(&models.WebhookInbox{}).Count(&count).Error)
	require.Zero(t, count)
}

func TestOutcomeLabel(t *testing.T) {
	require.Equal(t, "ok", OutcomeLabel(nil))
	require.Equal(t, "ProvisioningFailure", OutcomeLabel(subscriptions.ErrProvisioningFailure))
	require.Equal(t, "TransientStore", OutcomeLabel(errors.New("boom")))
	require.True(t, IsTransient(errors.New("boom")))
	require.False(t, IsTransient(ErrUnknownUser))
	require.False(t, IsTransient(nil))
}

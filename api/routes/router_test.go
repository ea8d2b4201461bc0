package routes

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	webhookcontrollers "github.com/faisalrasbihan/algosaham-4-sub001/api/controllers/webhooks"
	"github.com/faisalrasbihan/algosaham-4-sub001/internal/entitlements"
	midtranswebhook "github.com/faisalrasbihan/algosaham-4-sub001/internal/webhooks/midtrans"
	"github.com/faisalrasbihan/algosaham-4-sub001/pkg/auth"
	"github.com/faisalrasbihan/algosaham-4-sub001/pkg/config"
	"github.com/faisalrasbihan/algosaham-4-sub001/pkg/enums"
	"github.com/faisalrasbihan/algosaham-4-sub001/pkg/logger"
	"github.com/faisalrasbihan/algosaham-4-sub001/pkg/midtrans"
)

type stubPinger struct{}

func (stubPinger) Ping(context.Context) error { return nil }

type stubRedis struct {
	stubPinger
	data map[string]string
}

func (s *stubRedis) Get(_ context.Context, key string) (string, error) {
	if v, ok := s.data[key]; ok {
		return v, nil
	}
	return "", redis.Nil
}

func (s *stubRedis) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	if _, ok := s.data[key]; ok {
		return false, nil
	}
	s.data[key] = fmt.Sprint(value)
	return true, nil
}

func (s *stubRedis) IdempotencyKey(scope, id string) string { return scope + ":" + id }

func (s *stubRedis) Del(_ context.Context, keys ...string) error {
	for _, key := range keys {
		delete(s.data, key)
	}
	return nil
}

type stubEntitlements struct {
	consumes int
}

func (s *stubEntitlements) Get(_ context.Context, userID string) (*entitlements.View, error) {
	return &entitlements.View{UserID: userID, Tier: enums.TierRitel}, nil
}

func (s *stubEntitlements) Ensure(_ context.Context, userID string) (*entitlements.View, bool, error) {
	return &entitlements.View{UserID: userID}, true, nil
}

func (s *stubEntitlements) Cancel(_ context.Context, userID string) (*entitlements.View, error) {
	return &entitlements.View{UserID: userID}, nil
}

func (s *stubEntitlements) ConsumeUsage(_ context.Context, userID string, _ enums.Feature) (*entitlements.View, error) {
	s.consumes++
	return &entitlements.View{UserID: userID}, nil
}

type stubWebhookService struct{}

func (stubWebhookService) Verify(midtrans.Notification) error {
	return midtranswebhook.ErrInvalidSignature
}

func (stubWebhookService) HandleNotification(context.Context, midtrans.Notification) (midtranswebhook.Report, error) {
	return midtranswebhook.Report{}, nil
}

func testConfig() *config.Config {
	return &config.Config{
		App:      config.AppConfig{Env: "dev"},
		Identity: config.IdentityConfig{JWTSecret: "secret", Issuer: "identity"},
	}
}

type acceptingWebhookService struct {
	handled int
}

func (s *acceptingWebhookService) Verify(midtrans.Notification) error { return nil }

func (s *acceptingWebhookService) HandleNotification(context.Context, midtrans.Notification) (midtranswebhook.Report, error) {
	s.handled++
	return midtranswebhook.Report{}, nil
}

func newTestRouter(t *testing.T, svc *stubEntitlements) http.Handler {
	t.Helper()
	store := &stubRedis{data: map[string]string{}}
	guard, err := midtranswebhook.NewIdempotencyGuard(store, time.Hour, "midtrans-webhook")
	if err != nil {
		t.Fatalf("guard: %v", err)
	}
	return buildRouter(store, svc, stubWebhookService{}, guard)
}

func buildRouter(store *stubRedis, svc *stubEntitlements, webhooks webhookcontrollers.MidtransWebhookService, guard webhookcontrollers.MidtransWebhookGuard) http.Handler {
	reg := prometheus.NewRegistry()
	return NewRouter(
		testConfig(),
		logger.New(logger.Options{ServiceName: "router-test"}),
		stubPinger{},
		store,
		svc,
		webhooks,
		guard,
		promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
	)
}

func bearer(t *testing.T, userID string) string {
	t.Helper()
	token, err := auth.MintIdentityToken(testConfig().Identity, time.Now(), userID, "", time.Hour)
	if err != nil {
		t.Fatalf("mint token: %v", err)
	}
	return "Bearer " + token
}

func TestHealthRoutes(t *testing.T) {
	router := newTestRouter(t, &stubEntitlements{})
	for _, path := range []string{"/health/live", "/health/ready", "/metrics"} {
		resp := httptest.NewRecorder()
		router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, path, nil))
		if resp.Code != http.StatusOK {
			t.Fatalf("%s: expected 200 got %d", path, resp.Code)
		}
	}
}

func TestEntitlementRoutesRequireToken(t *testing.T) {
	router := newTestRouter(t, &stubEntitlements{})
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/v1/entitlements/me", nil))
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", resp.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/entitlements/me", nil)
	req.Header.Set("Authorization", bearer(t, "u-1"))
	resp = httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if !strings.Contains(resp.Body.String(), `"userId":"u-1"`) {
		t.Fatalf("unexpected body %s", resp.Body.String())
	}
}

func TestUsageRouteReplaysByIdempotencyKey(t *testing.T) {
	svc := &stubEntitlements{}
	router := newTestRouter(t, svc)

	send := func(key string) int {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/entitlements/me/usage/backtest", nil)
		req.Header.Set("Authorization", bearer(t, "u-1"))
		if key != "" {
			req.Header.Set("Idempotency-Key", key)
		}
		resp := httptest.NewRecorder()
		router.ServeHTTP(resp, req)
		return resp.Code
	}

	if code := send(""); code != http.StatusBadRequest {
		t.Fatalf("expected 400 without key got %d", code)
	}
	if code := send("k1"); code != http.StatusOK {
		t.Fatalf("expected 200 got %d", code)
	}
	if code := send("k1"); code != http.StatusOK {
		t.Fatalf("expected replay 200 got %d", code)
	}
	if svc.consumes != 1 {
		t.Fatalf("expected one consume, got %d", svc.consumes)
	}
}

func TestWebhookRouteIsPublic(t *testing.T) {
	router := newTestRouter(t, &stubEntitlements{})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/midtrans", strings.NewReader(`{}`))
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	// reaches the handler without auth; the stub rejects the signature
	if resp.Code != http.StatusForbidden {
		t.Fatalf("expected 403 got %d", resp.Code)
	}
}

func TestWebhookRouteWithoutGuard(t *testing.T) {
	var typedNil *midtranswebhook.IdempotencyGuard
	guards := map[string]webhookcontrollers.MidtransWebhookGuard{
		"nil interface": nil,
		"nil guard":     typedNil,
	}
	body := `{"order_id":"AS-S-u1-1700000000000","transaction_status":"settlement","status_code":"200","gross_amount":"89500.00","signature_key":"sig"}`

	for name, guard := range guards {
		t.Run(name, func(t *testing.T) {
			webhooks := &acceptingWebhookService{}
			router := buildRouter(&stubRedis{data: map[string]string{}}, &stubEntitlements{}, webhooks, guard)
			for i := 0; i < 2; i++ {
				resp := httptest.NewRecorder()
				router.ServeHTTP(resp, httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/midtrans", strings.NewReader(body)))
				if resp.Code != http.StatusOK {
					t.Fatalf("expected 200 got %d", resp.Code)
				}
			}
			if webhooks.handled != 2 {
				t.Fatalf("expected every delivery handled without a guard, got %d", webhooks.handled)
			}
		})
	}
}

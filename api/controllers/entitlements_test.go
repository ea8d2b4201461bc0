package controllers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/faisalrasbihan/algosaham-4-sub001/api/middleware"
	"github.com/faisalrasbihan/algosaham-4-sub001/internal/entitlements"
	"github.com/faisalrasbihan/algosaham-4-sub001/pkg/enums"
	pkgerrors "github.com/faisalrasbihan/algosaham-4-sub001/pkg/errors"
	"github.com/faisalrasbihan/algosaham-4-sub001/pkg/logger"
)

type stubEntitlements struct {
	view     *entitlements.View
	created  bool
	err      error
	consumed enums.Feature
	userID   string
}

func (s *stubEntitlements) Get(_ context.Context, userID string) (*entitlements.View, error) {
	s.userID = userID
	return s.view, s.err
}

func (s *stubEntitlements) Ensure(_ context.Context, userID string) (*entitlements.View, bool, error) {
	s.userID = userID
	return s.view, s.created, s.err
}

func (s *stubEntitlements) Cancel(_ context.Context, userID string) (*entitlements.View, error) {
	s.userID = userID
	return s.view, s.err
}

func (s *stubEntitlements) ConsumeUsage(_ context.Context, userID string, feature enums.Feature) (*entitlements.View, error) {
	s.userID = userID
	s.consumed = feature
	return s.view, s.err
}

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "test"})
}

func authed(req *http.Request, userID string) *http.Request {
	return req.WithContext(middleware.WithUserID(req.Context(), userID))
}

func withFeature(req *http.Request, feature string) *http.Request {
	rc := chi.NewRouteContext()
	rc.URLParams.Add("feature", feature)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rc))
}

func TestEntitlementMeReturnsView(t *testing.T) {
	svc := &stubEntitlements{view: &entitlements.View{
		UserID: "u-1",
		Tier:   enums.TierSuhu,
		Status: enums.EntitlementStatusActive,
		Limits: entitlements.QuotasFor(enums.TierSuhu),
	}}
	resp := httptest.NewRecorder()
	EntitlementMe(svc, testLogger()).ServeHTTP(resp, authed(httptest.NewRequest(http.MethodGet, "/api/v1/entitlements/me", nil), "u-1"))

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	var envelope struct {
		Data struct {
			Tier   string         `json:"tier"`
			Limits map[string]int `json:"limits"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if envelope.Data.Tier != "suhu" {
		t.Fatalf("unexpected tier %q", envelope.Data.Tier)
	}
	if len(envelope.Data.Limits) == 0 {
		t.Fatalf("expected limits in payload")
	}
	if svc.userID != "u-1" {
		t.Fatalf("expected user id from context, got %q", svc.userID)
	}
}

func TestEntitlementMeRequiresUser(t *testing.T) {
	resp := httptest.NewRecorder()
	EntitlementMe(&stubEntitlements{}, testLogger()).ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/", nil))
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", resp.Code)
	}
}

func TestEntitlementEnsureStatus(t *testing.T) {
	svc := &stubEntitlements{view: &entitlements.View{UserID: "u-1"}, created: true}
	resp := httptest.NewRecorder()
	EntitlementEnsure(svc, testLogger()).ServeHTTP(resp, authed(httptest.NewRequest(http.MethodPost, "/", nil), "u-1"))
	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d", resp.Code)
	}

	svc.created = false
	resp = httptest.NewRecorder()
	EntitlementEnsure(svc, testLogger()).ServeHTTP(resp, authed(httptest.NewRequest(http.MethodPost, "/", nil), "u-1"))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 on repeat got %d", resp.Code)
	}
}

func TestEntitlementCancelMapsStateConflict(t *testing.T) {
	svc := &stubEntitlements{err: pkgerrors.New(pkgerrors.CodeStateConflict, "free tier has nothing to cancel")}
	resp := httptest.NewRecorder()
	EntitlementCancel(svc, testLogger()).ServeHTTP(resp, authed(httptest.NewRequest(http.MethodPost, "/", nil), "u-1"))
	if resp.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 got %d", resp.Code)
	}
}

func TestEntitlementConsumeParsesFeature(t *testing.T) {
	svc := &stubEntitlements{view: &entitlements.View{UserID: "u-1"}}
	req := withFeature(authed(httptest.NewRequest(http.MethodPost, "/", nil), "u-1"), "ai_chat")
	resp := httptest.NewRecorder()
	EntitlementConsume(svc, testLogger()).ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if svc.consumed != enums.FeatureAIChat {
		t.Fatalf("unexpected feature %q", svc.consumed)
	}
}

func TestEntitlementConsumeRejectsUnknownFeature(t *testing.T) {
	svc := &stubEntitlements{}
	req := withFeature(authed(httptest.NewRequest(http.MethodPost, "/", nil), "u-1"), "strategy")
	resp := httptest.NewRecorder()
	EntitlementConsume(svc, testLogger()).ServeHTTP(resp, req)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
	if svc.consumed != "" {
		t.Fatalf("service should not be called")
	}
}

func TestEntitlementConsumeQuotaExceeded(t *testing.T) {
	svc := &stubEntitlements{err: pkgerrors.New(pkgerrors.CodeQuotaExceeded, "backtest quota exhausted").
		WithDetails(map[string]any{"limit": 3})}
	req := withFeature(authed(httptest.NewRequest(http.MethodPost, "/", nil), "u-1"), "backtest")
	resp := httptest.NewRecorder()
	EntitlementConsume(svc, testLogger()).ServeHTTP(resp, req)
	if resp.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 got %d", resp.Code)
	}
}

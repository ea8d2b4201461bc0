package controllers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/faisalrasbihan/algosaham-4-sub001/api/middleware"
	"github.com/faisalrasbihan/algosaham-4-sub001/api/responses"
	"github.com/faisalrasbihan/algosaham-4-sub001/internal/entitlements"
	"github.com/faisalrasbihan/algosaham-4-sub001/pkg/enums"
	pkgerrors "github.com/faisalrasbihan/algosaham-4-sub001/pkg/errors"
	"github.com/faisalrasbihan/algosaham-4-sub001/pkg/logger"
)

// EntitlementService is the surface the entitlement endpoints need.
type EntitlementService interface {
	Get(ctx context.Context, userID string) (*entitlements.View, error)
	Ensure(ctx context.Context, userID string) (*entitlements.View, bool, error)
	Cancel(ctx context.Context, userID string) (*entitlements.View, error)
	ConsumeUsage(ctx context.Context, userID string, feature enums.Feature) (*entitlements.View, error)
}

func requireUser(w http.ResponseWriter, r *http.Request, logg *logger.Logger) (string, bool) {
	userID := middleware.UserIDFromContext(r.Context())
	if userID == "" {
		responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "user context missing"))
		return "", false
	}
	return userID, true
}

func EntitlementMe(svc EntitlementService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "entitlement service unavailable"))
			return
		}
		userID, ok := requireUser(w, r, logg)
		if !ok {
			return
		}
		view, err := svc.Get(r.Context(), userID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, view)
	}
}

// EntitlementEnsure creates the free-tier record at sign-up. Repeat calls
// return the existing record with 200.
func EntitlementEnsure(svc EntitlementService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "entitlement service unavailable"))
			return
		}
		userID, ok := requireUser(w, r, logg)
		if !ok {
			return
		}
		view, created, err := svc.Ensure(r.Context(), userID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if created {
			responses.WriteSuccessStatus(w, http.StatusCreated, view)
			return
		}
		responses.WriteSuccess(w, view)
	}
}

func EntitlementCancel(svc EntitlementService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "entitlement service unavailable"))
			return
		}
		userID, ok := requireUser(w, r, logg)
		if !ok {
			return
		}
		view, err := svc.Cancel(r.Context(), userID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, view)
	}
}

func EntitlementConsume(svc EntitlementService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "entitlement service unavailable"))
			return
		}
		userID, ok := requireUser(w, r, logg)
		if !ok {
			return
		}
		feature, err := enums.ParseFeature(chi.URLParam(r, "feature"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "unknown feature"))
			return
		}
		view, err := svc.ConsumeUsage(r.Context(), userID, feature)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, view)
	}
}

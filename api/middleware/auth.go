package middleware

import (
	"net/http"
	"strings"

	"github.com/faisalrasbihan/algosaham-4-sub001/api/responses"
	pkgAuth "github.com/faisalrasbihan/algosaham-4-sub001/pkg/auth"
	"github.com/faisalrasbihan/algosaham-4-sub001/pkg/config"
	pkgerrors "github.com/faisalrasbihan/algosaham-4-sub001/pkg/errors"
	"github.com/faisalrasbihan/algosaham-4-sub001/pkg/logger"
)

// Auth validates an identity-provider bearer token and seeds the request
// context with the token subject as user id.
func Auth(cfg config.IdentityConfig, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := strings.TrimSpace(r.Header.Get("Authorization"))
			if raw == "" {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
				return
			}

			token := raw
			if strings.HasPrefix(strings.ToLower(token), "bearer ") {
				token = strings.TrimSpace(token[7:])
			}
			if token == "" {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
				return
			}

			claims, err := pkgAuth.ParseIdentityToken(cfg, token)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid token"))
				return
			}

			ctx := WithUserID(r.Context(), claims.UserID())
			if logg != nil {
				ctx = logg.WithUserID(ctx, claims.UserID())
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

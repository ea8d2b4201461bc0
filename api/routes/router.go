package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/faisalrasbihan/algosaham-4-sub001/api/controllers"
	webhookcontrollers "github.com/faisalrasbihan/algosaham-4-sub001/api/controllers/webhooks"
	"github.com/faisalrasbihan/algosaham-4-sub001/api/middleware"
	"github.com/faisalrasbihan/algosaham-4-sub001/pkg/config"
	"github.com/faisalrasbihan/algosaham-4-sub001/pkg/db"
	"github.com/faisalrasbihan/algosaham-4-sub001/pkg/logger"
	"github.com/faisalrasbihan/algosaham-4-sub001/pkg/redis"
)

// RedisStore is the redis surface the router needs: readiness and
// request idempotency.
type RedisStore interface {
	redis.Pinger
	redis.IdempotencyStore
}

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP db.Pinger,
	redisStore RedisStore,
	entitlementService controllers.EntitlementService,
	midtransWebhookService webhookcontrollers.MidtransWebhookService,
	midtransWebhookGuard webhookcontrollers.MidtransWebhookGuard,
	metricsHandler http.Handler,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.App.CORSOrigins),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, map[string]controllers.Pinger{
			"db":    dbP,
			"redis": redisStore,
		}))
	})

	if metricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", metricsHandler)
	}

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Post("/midtrans", webhookcontrollers.MidtransWebhook(midtransWebhookService, midtransWebhookGuard, logg))
	})

	r.Route("/api/v1/entitlements", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.Identity, logg))

		r.Get("/me", controllers.EntitlementMe(entitlementService, logg))
		r.Post("/me", controllers.EntitlementEnsure(entitlementService, logg))

		// inline so the idempotency rules see the full route pattern
		idempotent := r.With(middleware.Idempotency(redisStore, logg))
		idempotent.Post("/me/cancel", controllers.EntitlementCancel(entitlementService, logg))
		idempotent.Post("/me/usage/{feature}", controllers.EntitlementConsume(entitlementService, logg))
	})

	return r
}

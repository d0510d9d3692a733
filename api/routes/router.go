package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lukaskovac/motormarkt-backend/api/controllers"
	webhookcontrollers "github.com/lukaskovac/motormarkt-backend/api/controllers/webhooks"
	"github.com/lukaskovac/motormarkt-backend/api/middleware"
	"github.com/lukaskovac/motormarkt-backend/internal/webhooks/guard"
	"github.com/lukaskovac/motormarkt-backend/pkg/config"
	"github.com/lukaskovac/motormarkt-backend/pkg/db"
	"github.com/lukaskovac/motormarkt-backend/pkg/logger"
	"github.com/lukaskovac/motormarkt-backend/pkg/redis"
	"github.com/lukaskovac/motormarkt-backend/pkg/stripe"
)

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP db.Pinger,
	redisP redis.Pinger,
	stripeClient *stripe.Client,
	webhookService webhookcontrollers.StripeWebhookService,
	webhookGuard *guard.Guard,
	metricsRegistry *prometheus.Registry,
) http.Handler {
	r := chi.NewRouter()

	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, dbP, redisP))
	})

	r.Route("/api/public", func(r chi.Router) {
		r.Get("/ping", controllers.PublicPing())
	})

	if metricsRegistry != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(metricsRegistry, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Get("/stripe", webhookcontrollers.StripeWebhookProbe())
		r.Post("/stripe", webhookcontrollers.StripeWebhook(webhookService, stripeClient, webhookGuard, stripe.ScopeGeneral, logg))
		r.Post("/stripe/company", webhookcontrollers.StripeWebhook(webhookService, stripeClient, webhookGuard, stripe.ScopeCompany, logg))
	})

	return r
}

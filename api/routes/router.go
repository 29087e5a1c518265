package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/fundledger-backend/api/controllers"
	webhookcontrollers "github.com/angelmondragon/fundledger-backend/api/controllers/webhooks"
	"github.com/angelmondragon/fundledger-backend/api/middleware"
	"github.com/angelmondragon/fundledger-backend/internal/contributions"
	"github.com/angelmondragon/fundledger-backend/internal/reconciliation"
	"github.com/angelmondragon/fundledger-backend/internal/targets"
	"github.com/angelmondragon/fundledger-backend/internal/webhooks"
	"github.com/angelmondragon/fundledger-backend/internal/webhooks/verifier"
	"github.com/angelmondragon/fundledger-backend/pkg/config"
	"github.com/angelmondragon/fundledger-backend/pkg/db"
	"github.com/angelmondragon/fundledger-backend/pkg/enums"
	"github.com/angelmondragon/fundledger-backend/pkg/logger"
	"github.com/angelmondragon/fundledger-backend/pkg/metrics"
	"github.com/angelmondragon/fundledger-backend/pkg/redis"
)

// cacheStore is the redis surface the HTTP layer uses for readiness,
// idempotent replays and rate limiting.
type cacheStore interface {
	redis.Pinger
	redis.IdempotencyStore
	FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error)
}

// RouterParams carries everything the HTTP surface needs from cmd/api.
type RouterParams struct {
	Config        *config.Config
	Logger        *logger.Logger
	DB            db.Pinger
	Redis         cacheStore
	Gatherer      prometheus.Gatherer
	Metrics       *metrics.ReconciliationMetrics
	Verifiers     *verifier.Registry
	Applier       *reconciliation.Applier
	Recomputer    *reconciliation.Recomputer
	EventGuard    *webhooks.EventGuard
	Contributions contributions.Service
	Targets       targets.Service
	DeadLetters   controllers.DeadLetterReader
}

func NewRouter(p RouterParams) http.Handler {
	cfg := p.Config
	logg := p.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, p.DB, p.Redis))
	})
	if p.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(p.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Use(chimw.Timeout(cfg.Webhooks.Timeout))
		r.Post("/{provider}", webhookcontrollers.PaymentWebhook(webhookcontrollers.PaymentWebhookParams{
			Verifiers:    p.Verifiers,
			Applier:      p.Applier,
			Guard:        p.EventGuard,
			Metrics:      p.Metrics,
			MaxBodyBytes: cfg.Webhooks.MaxBodyBytes,
			Logger:       logg,
		}))
	})

	initiatePolicy := middleware.NewRateLimitPolicy("initiate", cfg.RateLimit.InitiateWindow, cfg.RateLimit.InitiateIPMax)
	idempotency := middleware.Idempotency(p.Redis, logg)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.CORS(cfg.App.CORSOrigins))
		r.With(
			middleware.RateLimit(initiatePolicy, p.Redis, logg),
			idempotency,
		).Post("/contributions", controllers.ContributionInitiate(p.Contributions, logg))
		r.Get("/contributions/{contributionId}", controllers.ContributionGet(p.Contributions, logg))
		r.Get("/targets/{targetId}", controllers.TargetPublicGet(p.Targets, logg))
	})

	r.Route("/api/admin/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.RequireRole(logg, enums.ActorRoleAdmin))
		r.With(idempotency).Post("/targets", controllers.AdminTargetCreate(p.Targets, logg))
		r.Get("/targets/{targetId}", controllers.AdminTargetGet(p.Targets, logg))
		r.Post("/targets/{targetId}/recompute", controllers.AdminTargetRecompute(p.Recomputer, logg))
		r.With(idempotency).Post("/targets/{targetId}/release-hold", controllers.AdminTargetReleaseHold(p.Targets, logg))
		r.Get("/outbox/dead-letters", controllers.AdminDeadLetterList(p.DeadLetters, logg))
		r.Get("/outbox/dead-letters/{eventId}", controllers.AdminDeadLetterGet(p.DeadLetters, logg))
	})

	return r
}

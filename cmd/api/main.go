package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/fundledger-backend/api/routes"
	"github.com/angelmondragon/fundledger-backend/internal/contributions"
	"github.com/angelmondragon/fundledger-backend/internal/reconciliation"
	"github.com/angelmondragon/fundledger-backend/internal/targets"
	"github.com/angelmondragon/fundledger-backend/internal/webhooks"
	"github.com/angelmondragon/fundledger-backend/internal/webhooks/verifier"
	"github.com/angelmondragon/fundledger-backend/pkg/config"
	"github.com/angelmondragon/fundledger-backend/pkg/db"
	"github.com/angelmondragon/fundledger-backend/pkg/enums"
	"github.com/angelmondragon/fundledger-backend/pkg/instance"
	"github.com/angelmondragon/fundledger-backend/pkg/lock"
	"github.com/angelmondragon/fundledger-backend/pkg/logger"
	"github.com/angelmondragon/fundledger-backend/pkg/metrics"
	"github.com/angelmondragon/fundledger-backend/pkg/migrate"
	"github.com/angelmondragon/fundledger-backend/pkg/outbox"
	"github.com/angelmondragon/fundledger-backend/pkg/redis"
	"github.com/angelmondragon/fundledger-backend/pkg/square"
	"github.com/angelmondragon/fundledger-backend/pkg/stripe"
)

const (
	serviceKind     = "api"
	shutdownTimeout = 15 * time.Second
)

func main() {
	bootCtx := context.Background()
	logg := logger.New(logger.Options{ServiceName: serviceKind})

	if err := godotenv.Load(); err != nil {
		logg.Warn(bootCtx, ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		fatal(bootCtx, logg, "failed to load config", err)
	}

	logg = logger.New(logger.Options{
		ServiceName: serviceKind,
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(bootCtx, cfg.DB, logg)
	if err != nil {
		fatal(bootCtx, logg, "failed to bootstrap database", err)
	}
	defer closeQuietly(logg, "database", dbClient.Close)

	if err := migrate.MaybeRunDev(bootCtx, cfg, logg, dbClient); err != nil {
		fatal(bootCtx, logg, "failed to run dev migrations", err)
	}

	redisClient, err := redis.New(bootCtx, cfg.Redis, logg)
	if err != nil {
		fatal(bootCtx, logg, "failed to bootstrap redis", err)
	}
	defer closeQuietly(logg, "redis", redisClient.Close)

	registry := prometheus.NewRegistry()
	reconMetrics := metrics.NewReconciliationMetrics(registry)

	initiators := map[enums.PaymentProvider]contributions.PaymentInitiator{}
	var verifiers []verifier.Verifier
	if cfg.Stripe.Enabled() {
		stripeClient, err := stripe.NewClient(bootCtx, cfg.Stripe, logg)
		if err != nil {
			fatal(bootCtx, logg, "failed to bootstrap stripe", err)
		}
		initiator, err := contributions.NewStripeInitiator(stripeClient)
		if err != nil {
			fatal(bootCtx, logg, "failed to create stripe initiator", err)
		}
		initiators[enums.PaymentProviderStripe] = initiator
		verifiers = append(verifiers, verifier.NewStripeVerifier(stripeClient.SigningSecret()))
	}
	if cfg.Square.Enabled() {
		squareClient, err := square.NewClient(bootCtx, cfg.Square, logg)
		if err != nil {
			fatal(bootCtx, logg, "failed to bootstrap square", err)
		}
		initiator, err := contributions.NewSquareInitiator(squareClient)
		if err != nil {
			fatal(bootCtx, logg, "failed to create square initiator", err)
		}
		initiators[enums.PaymentProviderSquare] = initiator
		verifiers = append(verifiers, verifier.NewSquareVerifier(squareClient.SigningSecret(), squareClient.NotificationURL()))
	}
	verifierRegistry, err := verifier.NewRegistry(verifiers...)
	if err != nil {
		fatal(bootCtx, logg, "failed to build verifier registry", err)
	}

	locks := lock.Locker(lock.NewKeyedMutex())
	var targetLocker lock.Locker
	if cfg.FeatureFlags.DistributedLocks {
		redisLocker, err := lock.NewRedisLocker(lock.RedisLockerParams{
			Client:    redisClient.Raw(),
			Namespace: redisClient.Namespace(),
			TTL:       cfg.Reconciliation.TargetLockTTL,
			Logger:    logg,
		})
		if err != nil {
			fatal(bootCtx, logg, "failed to create redis locker", err)
		}
		locks = lock.Chain{locks, redisLocker}
		targetLocker = redisLocker
	}

	emitter := outbox.NewService(outbox.NewRepository(dbClient.DB()), logg)
	contributionRepo := contributions.NewRepository(dbClient.DB())
	targetRepo := targets.NewRepository(dbClient.DB())

	recomputer, err := reconciliation.NewRecomputer(reconciliation.RecomputerParams{
		Contributions:     contributionRepo,
		Targets:           targetRepo,
		Outbox:            emitter,
		TransactionRunner: dbClient,
		Locker:            targetLocker,
		Metrics:           reconMetrics,
		Logger:            logg,
		MaxAttempts:       cfg.Reconciliation.RecomputeMaxAttempts,
	})
	if err != nil {
		fatal(bootCtx, logg, "failed to create recomputer", err)
	}
	applier, err := reconciliation.NewApplier(reconciliation.ApplierParams{
		Contributions:     contributionRepo,
		Deferred:          reconciliation.NewDeferredRepository(dbClient.DB()),
		Recomputer:        recomputer,
		Outbox:            emitter,
		TransactionRunner: dbClient,
		Locks:             locks,
		Metrics:           reconMetrics,
		Logger:            logg,
	})
	if err != nil {
		fatal(bootCtx, logg, "failed to create applier", err)
	}

	guard, err := webhooks.NewEventGuard(redisClient, cfg.Webhooks.IdempotencyTTL)
	if err != nil {
		fatal(bootCtx, logg, "failed to create webhook event guard", err)
	}

	contributionService, err := contributions.NewService(contributions.ServiceParams{
		Repo:              contributionRepo,
		Targets:           targetRepo,
		Initiators:        initiators,
		Outbox:            emitter,
		TransactionRunner: dbClient,
		Logger:            logg,
	})
	if err != nil {
		fatal(bootCtx, logg, "failed to create contribution service", err)
	}
	targetService, err := targets.NewService(targetRepo, logg)
	if err != nil {
		fatal(bootCtx, logg, "failed to create target service", err)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port

	ctx, stop := signal.NotifyContext(bootCtx, os.Interrupt)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":       cfg.App.Env,
		"addr":      addr,
		"instance":  instance.GetID(),
		"providers": verifierRegistry.Providers(),
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(routes.RouterParams{
			Config:        cfg,
			Logger:        logg,
			DB:            dbClient,
			Redis:         redisClient,
			Gatherer:      registry,
			Metrics:       reconMetrics,
			Verifiers:     verifierRegistry,
			Applier:       applier,
			Recomputer:    recomputer,
			EventGuard:    guard,
			Contributions: contributionService,
			Targets:       targetService,
			DeadLetters:   outbox.NewDLQRepository(dbClient.DB()),
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(shutdownCtx, "api server shutdown failed", err)
		}
	}()

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
	logg.Info(ctx, "api server shut down gracefully")
}

func fatal(ctx context.Context, logg *logger.Logger, msg string, err error) {
	logg.Error(ctx, msg, err)
	os.Exit(1)
}

func closeQuietly(logg *logger.Logger, name string, closeFn func() error) {
	if err := closeFn(); err != nil {
		logg.Error(context.Background(), "error closing "+name, err)
	}
}

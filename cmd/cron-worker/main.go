package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/fundledger-backend/internal/contributions"
	"github.com/angelmondragon/fundledger-backend/internal/cron"
	"github.com/angelmondragon/fundledger-backend/internal/reconciliation"
	"github.com/angelmondragon/fundledger-backend/internal/targets"
	"github.com/angelmondragon/fundledger-backend/pkg/config"
	"github.com/angelmondragon/fundledger-backend/pkg/db"
	"github.com/angelmondragon/fundledger-backend/pkg/instance"
	"github.com/angelmondragon/fundledger-backend/pkg/lock"
	"github.com/angelmondragon/fundledger-backend/pkg/logger"
	"github.com/angelmondragon/fundledger-backend/pkg/metrics"
	"github.com/angelmondragon/fundledger-backend/pkg/migrate"
	"github.com/angelmondragon/fundledger-backend/pkg/outbox"
	"github.com/angelmondragon/fundledger-backend/pkg/redis"
)

const (
	serviceKind     = "cron-worker"
	cycleLockFormat = serviceKind + ":%s"
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

	cfg.Service.Kind = serviceKind

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

	registry := prometheus.NewRegistry()
	cronMetrics := metrics.NewCronJobMetrics(registry)
	reconMetrics := metrics.NewReconciliationMetrics(registry)

	var (
		cycleLocker  lock.Locker
		targetLocker lock.Locker
	)
	if cfg.FeatureFlags.DistributedLocks {
		redisClient, err := redis.New(bootCtx, cfg.Redis, logg)
		if err != nil {
			fatal(bootCtx, logg, "failed to bootstrap redis", err)
		}
		defer closeQuietly(logg, "redis", redisClient.Close)
		cycleLocker, err = lock.NewRedisLocker(lock.RedisLockerParams{
			Client:    redisClient.Raw(),
			Namespace: redisClient.Namespace(),
			TTL:       cfg.Reconciliation.CronLockTTL,
			TryOnce:   true,
			Logger:    logg,
		})
		if err != nil {
			fatal(bootCtx, logg, "failed to create cron lock", err)
		}
		targetLocker, err = lock.NewRedisLocker(lock.RedisLockerParams{
			Client:    redisClient.Raw(),
			Namespace: redisClient.Namespace(),
			TTL:       cfg.Reconciliation.TargetLockTTL,
			Logger:    logg,
		})
		if err != nil {
			fatal(bootCtx, logg, "failed to create redis locker", err)
		}
	}

	outboxRepo := outbox.NewRepository(dbClient.DB())
	emitter := outbox.NewService(outboxRepo, logg)
	contributionRepo := contributions.NewRepository(dbClient.DB())
	targetRepo := targets.NewRepository(dbClient.DB())
	deferredRepo := reconciliation.NewDeferredRepository(dbClient.DB())

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
		Deferred:          deferredRepo,
		Recomputer:        recomputer,
		Outbox:            emitter,
		TransactionRunner: dbClient,
		Metrics:           reconMetrics,
		Logger:            logg,
	})
	if err != nil {
		fatal(bootCtx, logg, "failed to create applier", err)
	}
	replayer, err := reconciliation.NewReplayer(applier, deferredRepo, cfg.Reconciliation.DeferredMaxAttempts)
	if err != nil {
		fatal(bootCtx, logg, "failed to create deferred replayer", err)
	}

	replayJob, err := cron.NewDeferredReplayJob(cron.DeferredReplayJobParams{
		Logger:    logg,
		Replayer:  replayer,
		BatchSize: cfg.Reconciliation.DeferredBatchSize,
	})
	if err != nil {
		fatal(bootCtx, logg, "failed to create deferred replay job", err)
	}
	auditJob, err := cron.NewAggregateAuditJob(cron.AggregateAuditJobParams{
		Logger:            logg,
		Targets:           targetRepo,
		Recomputer:        recomputer,
		Contributions:     contributionRepo,
		BatchSize:         cfg.Reconciliation.AuditBatchSize,
		StalePendingAfter: cfg.Reconciliation.StalePendingAfter,
	})
	if err != nil {
		fatal(bootCtx, logg, "failed to create aggregate audit job", err)
	}
	retentionJob, err := cron.NewOutboxRetentionJob(cron.OutboxRetentionJobParams{
		Logger:      logg,
		DB:          dbClient,
		Repository:  outboxRepo,
		DeadLetters: outbox.NewDLQRepository(dbClient.DB()),
		Retention:   cfg.Outbox.RetentionDays,
		MinAttempts: cfg.Outbox.MaxAttempts,
	})
	if err != nil {
		fatal(bootCtx, logg, "failed to create outbox retention job", err)
	}

	jobs, err := cron.NewRegistry(replayJob, auditJob, retentionJob)
	if err != nil {
		fatal(bootCtx, logg, "failed to register cron jobs", err)
	}
	service, err := cron.NewService(cron.ServiceParams{
		Logger:     logg,
		Registry:   jobs,
		Locker:     cycleLocker,
		LockKey:    cycleLockKey(cfg.App.Env),
		Metrics:    cronMetrics,
		Interval:   cfg.Reconciliation.CronInterval,
		JobTimeout: cfg.Reconciliation.CronJobTimeout,
	})
	if err != nil {
		fatal(bootCtx, logg, "failed to create cron service", err)
	}

	ctx, stop := signal.NotifyContext(bootCtx, os.Interrupt)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
		"instance":    instance.GetID(),
	})

	metricsServer := &http.Server{
		Addr:              ":" + cfg.App.Port,
		Handler:           promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(ctx, "metrics server stopped", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}()

	logg.Info(ctx, "starting cron worker")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "cron worker shutting down gracefully")
}

// cycleLockKey scopes the cycle lock per environment so staging and
// production workers sharing a redis never block each other.
func cycleLockKey(env string) string {
	if env == "" {
		env = "local"
	}
	return fmt.Sprintf(cycleLockFormat, env)
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

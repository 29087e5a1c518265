package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App            AppConfig
	Service        ServiceConfig
	DB             DBConfig
	Redis          RedisConfig
	JWT            JWTConfig
	RateLimit      RateLimitConfig
	FeatureFlags   FeatureFlagsConfig
	Webhooks       WebhookConfig
	Reconciliation ReconciliationConfig
	GCP            GCPConfig
	PubSub         PubSubConfig
	Stripe         StripeConfig
	Square         SquareConfig
	Outbox         OutboxConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(cfg.FeatureFlags.UseSQLite); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"FUNDLEDGER_APP_ENV" required:"true"`
	Port         string `envconfig:"FUNDLEDGER_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"FUNDLEDGER_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"FUNDLEDGER_LOG_WARN_STACK" default:"false"`
	// CORSOrigins is a comma-separated allow list for the contributor API.
	CORSOrigins []string `envconfig:"FUNDLEDGER_CORS_ALLOWED_ORIGINS"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd) || strings.EqualFold(a.Env, "production")
}

type ServiceConfig struct {
	Kind string `envconfig:"FUNDLEDGER_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"FUNDLEDGER_DB_DSN"`
	Driver string `envconfig:"FUNDLEDGER_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"FUNDLEDGER_DB_HOST"`
	LegacyPort     int    `envconfig:"FUNDLEDGER_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"FUNDLEDGER_DB_USER"`
	LegacyPassword string `envconfig:"FUNDLEDGER_DB_PASSWORD"`
	LegacyName     string `envconfig:"FUNDLEDGER_DB_NAME"`
	LegacySSLMode  string `envconfig:"FUNDLEDGER_DB_SSLMODE" default:"disable"`

	SQLitePath string `envconfig:"FUNDLEDGER_SQLITE_PATH" default:"fundledger.db"`

	MaxOpenConns    int           `envconfig:"FUNDLEDGER_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"FUNDLEDGER_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"FUNDLEDGER_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"FUNDLEDGER_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

// IsSQLite reports whether the configured driver is the embedded SQLite engine.
func (db DBConfig) IsSQLite() bool {
	return strings.EqualFold(db.Driver, DBDriverSQLite)
}

type RedisConfig struct {
	URL          string        `envconfig:"FUNDLEDGER_REDIS_URL" required:"true"`
	Address      string        `envconfig:"FUNDLEDGER_REDIS_ADDR"`
	Password     string        `envconfig:"FUNDLEDGER_REDIS_PASSWORD"`
	DB           int           `envconfig:"FUNDLEDGER_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"FUNDLEDGER_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"FUNDLEDGER_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"FUNDLEDGER_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"FUNDLEDGER_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"FUNDLEDGER_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"FUNDLEDGER_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"FUNDLEDGER_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"FUNDLEDGER_JWT_EXPIRATION_MINUTES" required:"true"`
}

type RateLimitConfig struct {
	InitiateWindow time.Duration `envconfig:"FUNDLEDGER_RATE_LIMIT_INITIATE_WINDOW" default:"1m"`
	InitiateIPMax  int           `envconfig:"FUNDLEDGER_RATE_LIMIT_INITIATE_IP_LIMIT" default:"30"`
}

type FeatureFlagsConfig struct {
	UseSQLite        bool `envconfig:"FUNDLEDGER_USE_SQLITE" default:"false"`
	AutoMigrate      bool `envconfig:"FUNDLEDGER_AUTO_MIGRATE" default:"false"`
	DistributedLocks bool `envconfig:"FUNDLEDGER_DISTRIBUTED_LOCKS" default:"true"`
}

type WebhookConfig struct {
	Timeout        time.Duration `envconfig:"FUNDLEDGER_WEBHOOK_TIMEOUT" default:"8s"`
	IdempotencyTTL time.Duration `envconfig:"FUNDLEDGER_WEBHOOK_IDEMPOTENCY_TTL" default:"72h"`
	MaxBodyBytes   int64         `envconfig:"FUNDLEDGER_WEBHOOK_MAX_BODY_BYTES" default:"65536"`
}

type ReconciliationConfig struct {
	TargetLockTTL        time.Duration `envconfig:"FUNDLEDGER_TARGET_LOCK_TTL" default:"10s"`
	RecomputeMaxAttempts int           `envconfig:"FUNDLEDGER_RECOMPUTE_MAX_ATTEMPTS" default:"3"`
	DeferredBatchSize    int           `envconfig:"FUNDLEDGER_DEFERRED_BATCH_SIZE" default:"100"`
	DeferredMaxAttempts  int           `envconfig:"FUNDLEDGER_DEFERRED_MAX_ATTEMPTS" default:"20"`
	AuditBatchSize       int           `envconfig:"FUNDLEDGER_AUDIT_BATCH_SIZE" default:"200"`
	StalePendingAfter    time.Duration `envconfig:"FUNDLEDGER_STALE_PENDING_AFTER" default:"48h"`
	CronInterval         time.Duration `envconfig:"FUNDLEDGER_CRON_INTERVAL" default:"5m"`
	CronJobTimeout       time.Duration `envconfig:"FUNDLEDGER_CRON_JOB_TIMEOUT" default:"2m"`
	CronLockTTL          time.Duration `envconfig:"FUNDLEDGER_CRON_LOCK_TTL" default:"10m"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"FUNDLEDGER_GCP_PROJECT_ID"`
	CredentialsJSON        string `envconfig:"FUNDLEDGER_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"FUNDLEDGER_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	ReconciliationTopic        string `envconfig:"FUNDLEDGER_PUBSUB_RECONCILIATION_TOPIC" default:"fl-reconciliation-events"`
	NotificationTopic          string `envconfig:"FUNDLEDGER_PUBSUB_NOTIFICATION_TOPIC" default:"fl-notification-events"`
	NotificationSubscription   string `envconfig:"FUNDLEDGER_PUBSUB_NOTIFICATION_SUBSCRIPTION"`
	ReconciliationSubscription string `envconfig:"FUNDLEDGER_PUBSUB_RECONCILIATION_SUBSCRIPTION"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"FUNDLEDGER_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"FUNDLEDGER_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"FUNDLEDGER_OUTBOX_MAX_ATTEMPTS" default:"10"`
	RetentionDays  int `envconfig:"FUNDLEDGER_OUTBOX_RETENTION_DAYS" default:"30"`
}

type StripeConfig struct {
	APIKey string `envconfig:"FUNDLEDGER_STRIPE_API_KEY"`
	Secret string `envconfig:"FUNDLEDGER_STRIPE_SECRET"`
	Env    string `envconfig:"FUNDLEDGER_STRIPE_ENV" default:"test"`
}

// Environment returns the normalized Stripe environment (test/live).
func (s StripeConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(s.Env))
	if env == "" {
		return "test"
	}
	return env
}

// Enabled reports whether Stripe credentials are configured.
func (s StripeConfig) Enabled() bool {
	return strings.TrimSpace(s.APIKey) != "" || strings.TrimSpace(s.Secret) != ""
}

type SquareConfig struct {
	AccessToken     string `envconfig:"FUNDLEDGER_SQUARE_ACCESS_TOKEN"`
	WebhookSecret   string `envconfig:"FUNDLEDGER_SQUARE_WEBHOOK_SECRET"`
	NotificationURL string `envconfig:"FUNDLEDGER_SQUARE_NOTIFICATION_URL"`
	LocationID      string `envconfig:"FUNDLEDGER_SQUARE_LOCATION_ID"`
	Env             string `envconfig:"FUNDLEDGER_SQUARE_ENV" default:"sandbox"`
}

// Environment returns the normalized Square environment (sandbox/production).
func (s SquareConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(s.Env))
	if env == "" {
		return "sandbox"
	}
	return env
}

// Enabled reports whether Square credentials are configured.
func (s SquareConfig) Enabled() bool {
	return strings.TrimSpace(s.AccessToken) != "" || strings.TrimSpace(s.WebhookSecret) != ""
}

func (db *DBConfig) ensureDSN(useSQLite bool) error {
	if useSQLite {
		db.Driver = DBDriverSQLite
	}
	if db.IsSQLite() {
		if db.DSN == "" {
			db.DSN = db.SQLitePath
		}
		return nil
	}
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	legacyValues := map[string]string{
		EnvDBHost: db.LegacyHost,
		EnvDBUser: db.LegacyUser,
		EnvDBName: db.LegacyName,
	}
	for _, env := range legacyDBEnvVars {
		if legacyValues[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.LegacyUser)
	if db.LegacyPassword != "" {
		userInfo = url.UserPassword(db.LegacyUser, db.LegacyPassword)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.LegacyHost, db.LegacyPort),
		Path:   db.LegacyName,
	}

	if db.LegacySSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.LegacySSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}

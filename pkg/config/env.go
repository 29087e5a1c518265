package config

const (
	EnvPrefix = "FUNDLEDGER"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	DBDriverPostgres = "postgres"
	DBDriverSQLite   = "sqlite"

	EnvAppEnv   = "FUNDLEDGER_APP_ENV"
	EnvPort     = "FUNDLEDGER_APP_PORT"
	EnvLogLevel = "FUNDLEDGER_LOG_LEVEL"

	EnvDBDSN     = "FUNDLEDGER_DB_DSN"
	EnvDBDriver  = "FUNDLEDGER_DB_DRIVER"
	EnvDBHost    = "FUNDLEDGER_DB_HOST"
	EnvDBUser    = "FUNDLEDGER_DB_USER"
	EnvDBName    = "FUNDLEDGER_DB_NAME"
	EnvUseSQLite = "FUNDLEDGER_USE_SQLITE"

	EnvRedisURL = "FUNDLEDGER_REDIS_URL"

	EnvJWTSecret  = "FUNDLEDGER_JWT_SECRET"
	EnvJWTIssuer  = "FUNDLEDGER_JWT_ISSUER"
	EnvJWTExpMins = "FUNDLEDGER_JWT_EXPIRATION_MINUTES"

	EnvWebhookTimeout = "FUNDLEDGER_WEBHOOK_TIMEOUT"

	EnvStripeAPIKey = "FUNDLEDGER_STRIPE_API_KEY"
	EnvStripeSecret = "FUNDLEDGER_STRIPE_SECRET"

	EnvSquareAccessToken     = "FUNDLEDGER_SQUARE_ACCESS_TOKEN"
	EnvSquareWebhookSecret   = "FUNDLEDGER_SQUARE_WEBHOOK_SECRET"
	EnvSquareNotificationURL = "FUNDLEDGER_SQUARE_NOTIFICATION_URL"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}

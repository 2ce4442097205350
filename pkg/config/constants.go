package config

// EnvPrefix is empty because every field carries its full variable name.
const EnvPrefix = ""

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	DBDriverPostgres = "postgres"
	DBDriverSQLite   = "sqlite"
)

const (
	EnvAppEnv   = "POKEFLIP_APP_ENV"
	EnvPort     = "POKEFLIP_APP_PORT"
	EnvLogLevel = "POKEFLIP_LOG_LEVEL"

	EnvDBDSN    = "POKEFLIP_DB_DSN"
	EnvDBDriver = "POKEFLIP_DB_DRIVER"
	EnvDBHost   = "POKEFLIP_DB_HOST"
	EnvDBUser   = "POKEFLIP_DB_USER"
	EnvDBName   = "POKEFLIP_DB_NAME"
	EnvDBPass   = "POKEFLIP_DB_PASSWORD"

	EnvUseSQLite  = "POKEFLIP_USE_SQLITE"
	EnvSQLitePath = "POKEFLIP_SQLITE_PATH"

	EnvRedisURL = "POKEFLIP_REDIS_URL"

	EnvGCPProjectID         = "POKEFLIP_GCP_PROJECT_ID"
	EnvPubSubInventoryTopic = "POKEFLIP_PUBSUB_INVENTORY_TOPIC"
	EnvPubSubSalesTopic     = "POKEFLIP_PUBSUB_SALES_TOPIC"

	EnvOutboxBatchSize     = "POKEFLIP_OUTBOX_PUBLISH_BATCH_SIZE"
	EnvOutboxPollMS        = "POKEFLIP_OUTBOX_PUBLISH_POLL_MS"
	EnvOutboxMaxAttempts   = "POKEFLIP_OUTBOX_MAX_ATTEMPTS"
	EnvOutboxRetentionDays = "POKEFLIP_OUTBOX_RETENTION_DAYS"
	EnvCronInterval        = "POKEFLIP_CRON_INTERVAL"
	EnvCronJobTimeout      = "POKEFLIP_CRON_JOB_TIMEOUT"
	EnvCORSOrigins         = "POKEFLIP_CORS_ALLOWED_ORIGINS"
	EnvMetricsAddr         = "POKEFLIP_METRICS_ADDR"
)

package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"go.uber.org/multierr"
)

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	FeatureFlags FeatureFlagsConfig
	CORS         CORSConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Outbox       OutboxConfig
	Cron         CronConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(cfg.FeatureFlags.UseSQLite); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// validate reports every out-of-range setting at once so a bad deploy shows
// the full list on the first crash.
func (c *Config) validate() error {
	var err error
	check := func(ok bool, env, msg string) {
		if !ok {
			err = multierr.Append(err, fmt.Errorf("%s %s", env, msg))
		}
	}
	check(c.Outbox.BatchSize > 0, EnvOutboxBatchSize, "must be positive")
	check(c.Outbox.PollIntervalMS > 0, EnvOutboxPollMS, "must be positive")
	check(c.Outbox.MaxAttempts > 0, EnvOutboxMaxAttempts, "must be positive")
	check(c.Outbox.RetentionDays > 0, EnvOutboxRetentionDays, "must be positive")
	check(c.Cron.Interval > 0, EnvCronInterval, "must be positive")
	check(c.Cron.JobTimeout >= 0, EnvCronJobTimeout, "must not be negative")
	if _, perr := strconv.Atoi(c.App.Port); perr != nil {
		err = multierr.Append(err, fmt.Errorf("%s %q is not a port number", EnvPort, c.App.Port))
	}
	if addr := c.Service.MetricsAddr; addr != "" {
		if _, _, serr := net.SplitHostPort(addr); serr != nil {
			err = multierr.Append(err, fmt.Errorf("%s: %w", EnvMetricsAddr, serr))
		}
	}
	if err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// PollInterval is the outbox poll interval as a duration.
func (o OutboxConfig) PollInterval() time.Duration {
	return time.Duration(o.PollIntervalMS) * time.Millisecond
}

type AppConfig struct {
	Env          string `envconfig:"POKEFLIP_APP_ENV" required:"true"`
	Port         string `envconfig:"POKEFLIP_APP_PORT" default:"8080"`
	LogLevel     string `envconfig:"POKEFLIP_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"POKEFLIP_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"POKEFLIP_SERVICE_KIND" default:"api"`
	// MetricsAddr is the host:port the workers serve /metrics on. Empty
	// disables the listener; the api exposes metrics on its own router.
	MetricsAddr string `envconfig:"POKEFLIP_METRICS_ADDR"`
}

type DBConfig struct {
	DSN    string `envconfig:"POKEFLIP_DB_DSN"`
	Driver string `envconfig:"POKEFLIP_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"POKEFLIP_DB_HOST"`
	LegacyPort     int    `envconfig:"POKEFLIP_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"POKEFLIP_DB_USER"`
	LegacyPassword string `envconfig:"POKEFLIP_DB_PASSWORD"`
	LegacyName     string `envconfig:"POKEFLIP_DB_NAME"`
	LegacySSLMode  string `envconfig:"POKEFLIP_DB_SSLMODE" default:"disable"`

	SQLitePath string `envconfig:"POKEFLIP_SQLITE_PATH" default:"pokeflip.db"`

	MaxOpenConns    int           `envconfig:"POKEFLIP_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"POKEFLIP_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"POKEFLIP_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"POKEFLIP_DB_CONN_MAX_IDLE_TIME" default:"10m"`

	// SlowQueryThreshold logs statements slower than this; zero disables it.
	SlowQueryThreshold time.Duration `envconfig:"POKEFLIP_DB_SLOW_QUERY" default:"200ms"`
	// LogQueries logs every statement at debug level.
	LogQueries bool `envconfig:"POKEFLIP_DB_LOG_QUERIES" default:"false"`
}

// IsSQLite reports whether the configured driver targets sqlite.
func (db DBConfig) IsSQLite() bool {
	return strings.EqualFold(strings.TrimSpace(db.Driver), DBDriverSQLite)
}

type RedisConfig struct {
	URL          string        `envconfig:"POKEFLIP_REDIS_URL"`
	Address      string        `envconfig:"POKEFLIP_REDIS_ADDR"`
	Password     string        `envconfig:"POKEFLIP_REDIS_PASSWORD"`
	DB           int           `envconfig:"POKEFLIP_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"POKEFLIP_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"POKEFLIP_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"POKEFLIP_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"POKEFLIP_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"POKEFLIP_REDIS_WRITE_TIMEOUT" default:"5s"`
	// commands slower than this are logged; zero disables the check
	SlowThreshold time.Duration `envconfig:"POKEFLIP_REDIS_SLOW_THRESHOLD" default:"100ms"`
}

// Enabled reports whether any redis endpoint is configured.
func (r RedisConfig) Enabled() bool {
	return strings.TrimSpace(r.URL) != "" || strings.TrimSpace(r.Address) != ""
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"POKEFLIP_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"POKEFLIP_AUTO_MIGRATE" default:"false"`
	// RequireIdempotency rejects ledger writes that omit Idempotency-Key.
	RequireIdempotency bool `envconfig:"POKEFLIP_REQUIRE_IDEMPOTENCY" default:"true"`
}

type CORSConfig struct {
	AllowedOrigins []string `envconfig:"POKEFLIP_CORS_ALLOWED_ORIGINS" default:"http://localhost:3000"`
}

type GCPConfig struct {
	ProjectID       string `envconfig:"POKEFLIP_GCP_PROJECT_ID"`
	CredentialsJSON string `envconfig:"POKEFLIP_GCP_CREDENTIALS_JSON"`
}

type PubSubConfig struct {
	InventoryTopic string `envconfig:"POKEFLIP_PUBSUB_INVENTORY_TOPIC" default:"pokeflip-inventory-events"`
	SalesTopic     string `envconfig:"POKEFLIP_PUBSUB_SALES_TOPIC" default:"pokeflip-sales-events"`
	// EmulatorHost points the client at a local emulator without credentials.
	EmulatorHost string `envconfig:"POKEFLIP_PUBSUB_EMULATOR_HOST"`
	CreateTopics bool   `envconfig:"POKEFLIP_PUBSUB_CREATE_TOPICS" default:"false"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"POKEFLIP_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"POKEFLIP_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"POKEFLIP_OUTBOX_MAX_ATTEMPTS" default:"10"`
	RetentionDays  int `envconfig:"POKEFLIP_OUTBOX_RETENTION_DAYS" default:"30"`
	// RetentionBatch caps rows pruned per transaction.
	RetentionBatch int `envconfig:"POKEFLIP_OUTBOX_RETENTION_BATCH" default:"5000"`
}

type CronConfig struct {
	Interval         time.Duration `envconfig:"POKEFLIP_CRON_INTERVAL" default:"1h"`
	JobTimeout       time.Duration `envconfig:"POKEFLIP_CRON_JOB_TIMEOUT" default:"10m"`
	IntegrityEnabled bool          `envconfig:"POKEFLIP_CRON_INTEGRITY_ENABLED" default:"true"`
}

func (db *DBConfig) ensureDSN(useSQLite bool) error {
	if useSQLite {
		db.Driver = DBDriverSQLite
	}
	switch {
	case db.IsSQLite():
		if db.DSN == "" {
			db.DSN = db.SQLitePath
		}
		return nil
	case db.DSN != "":
		return nil
	}

	var missing []string
	for env, value := range map[string]string{
		EnvDBHost: db.LegacyHost,
		EnvDBUser: db.LegacyUser,
		EnvDBName: db.LegacyName,
	} {
		if value == "" {
			missing = append(missing, env)
		}
	}
	if len(missing) > 0 {
		slices.Sort(missing)
		return errors.New("either " + EnvDBDSN + " or " + strings.Join(missing, ", ") + " are required")
	}
	db.DSN = db.legacyDSN()
	return nil
}

// legacyDSN assembles a postgres URL from the split host/user/name variables
// older deployments still set.
func (db DBConfig) legacyDSN() string {
	user := url.User(db.LegacyUser)
	if db.LegacyPassword != "" {
		user = url.UserPassword(db.LegacyUser, db.LegacyPassword)
	}
	u := url.URL{
		Scheme: "postgres",
		User:   user,
		Host:   net.JoinHostPort(db.LegacyHost, strconv.Itoa(db.LegacyPort)),
		Path:   db.LegacyName,
	}
	if db.LegacySSLMode != "" {
		u.RawQuery = url.Values{"sslmode": {db.LegacySSLMode}}.Encode()
	}
	return u.String()
}

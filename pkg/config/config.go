package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	FeatureFlags FeatureFlagsConfig
	Eventing     EventingConfig
	Negotiation  NegotiationConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	BigQuery     BigQueryConfig
	Outbox       OutboxConfig
	Cron         CronConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.Negotiation.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string   `envconfig:"TAPPING_APP_ENV" required:"true"`
	Port         string   `envconfig:"TAPPING_APP_PORT" required:"true"`
	LogLevel     string   `envconfig:"TAPPING_LOG_LEVEL" default:"info"`
	LogWarnStack bool     `envconfig:"TAPPING_LOG_WARN_STACK" default:"false"`
	LogFormat    string   `envconfig:"TAPPING_LOG_FORMAT" default:"json"`
	CORSOrigins  []string `envconfig:"TAPPING_CORS_ORIGINS"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"TAPPING_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"TAPPING_DB_DSN"`
	Driver string `envconfig:"TAPPING_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"TAPPING_DB_HOST"`
	LegacyPort     int    `envconfig:"TAPPING_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"TAPPING_DB_USER"`
	LegacyPassword string `envconfig:"TAPPING_DB_PASSWORD"`
	LegacyName     string `envconfig:"TAPPING_DB_NAME"`
	LegacySSLMode  string `envconfig:"TAPPING_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"TAPPING_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"TAPPING_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"TAPPING_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"TAPPING_DB_CONN_MAX_IDLE_TIME" default:"10m"`
	SlowQuery       time.Duration `envconfig:"TAPPING_DB_SLOW_QUERY" default:"200ms"`
}

type RedisConfig struct {
	URL          string        `envconfig:"TAPPING_REDIS_URL" required:"true"`
	Address      string        `envconfig:"TAPPING_REDIS_ADDR"`
	Password     string        `envconfig:"TAPPING_REDIS_PASSWORD"`
	DB           int           `envconfig:"TAPPING_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"TAPPING_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"TAPPING_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"TAPPING_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"TAPPING_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"TAPPING_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// JWTConfig holds the verification settings for bearer tokens minted by the
// identity service. Tokens are only minted locally by tests and dev tooling.
type JWTConfig struct {
	Secret            string `envconfig:"TAPPING_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"TAPPING_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"TAPPING_JWT_EXPIRATION_MINUTES" default:"60"`
}

// Expiration returns the token lifetime configured in minutes.
func (j JWTConfig) Expiration() time.Duration {
	if j.ExpirationMinutes <= 0 {
		return 0
	}
	return time.Duration(j.ExpirationMinutes) * time.Minute
}

type FeatureFlagsConfig struct {
	AutoMigrate   bool `envconfig:"TAPPING_AUTO_MIGRATE" default:"false"`
	UseRedisLocks bool `envconfig:"TAPPING_USE_REDIS_LOCKS" default:"true"`
}

type EventingConfig struct {
	OutboxIdempotencyTTL time.Duration `envconfig:"TAPPING_EVENTING_IDEMPOTENCY_TTL" default:"720h"`
}

// NegotiationConfig tunes the per-application lock and the stale reminder job.
type NegotiationConfig struct {
	LockTTL      time.Duration `envconfig:"TAPPING_NEGOTIATION_LOCK_TTL" default:"10s"`
	LockWait     time.Duration `envconfig:"TAPPING_NEGOTIATION_LOCK_WAIT" default:"2s"`
	LockPoll     time.Duration `envconfig:"TAPPING_NEGOTIATION_LOCK_POLL" default:"50ms"`
	StaleAfter   time.Duration `envconfig:"TAPPING_NEGOTIATION_STALE_AFTER" default:"72h"`
	MaxNotesSize int           `envconfig:"TAPPING_NEGOTIATION_MAX_NOTES" default:"2000"`
}

func (n NegotiationConfig) validate() error {
	if n.LockTTL <= 0 {
		return fmt.Errorf("%s must be positive", EnvNegotiationLockTTL)
	}
	if n.LockWait < 0 {
		return fmt.Errorf("%s must not be negative", EnvNegotiationLockWait)
	}
	if n.LockWait >= n.LockTTL {
		return fmt.Errorf("%s must be shorter than %s", EnvNegotiationLockWait, EnvNegotiationLockTTL)
	}
	return nil
}

type GCPConfig struct {
	ProjectID              string `envconfig:"TAPPING_GCP_PROJECT_ID" required:"true"`
	CredentialsJSON        string `envconfig:"TAPPING_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"TAPPING_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	DomainTopic              string `envconfig:"TAPPING_PUBSUB_DOMAIN_TOPIC" required:"true"`
	DomainSubscription       string `envconfig:"TAPPING_PUBSUB_DOMAIN_SUBSCRIPTION" required:"true"`
	NotificationTopic        string `envconfig:"TAPPING_PUBSUB_NOTIFICATION_TOPIC" default:"tp-notification-events"`
	NotificationSubscription string `envconfig:"TAPPING_PUBSUB_NOTIFICATION_SUBSCRIPTION" required:"true"`
	AnalyticsTopic           string `envconfig:"TAPPING_PUBSUB_ANALYTICS_TOPIC" required:"true"`
	AnalyticsSubscription    string `envconfig:"TAPPING_PUBSUB_ANALYTICS_SUBSCRIPTION" required:"true"`
}

type BigQueryConfig struct {
	Dataset                string `envconfig:"TAPPING_BIGQUERY_DATASET" default:"tapping"`
	NegotiationEventsTable string `envconfig:"TAPPING_BIGQUERY_NEGOTIATION_TABLE" default:"negotiation_events"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"TAPPING_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"TAPPING_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"TAPPING_OUTBOX_MAX_ATTEMPTS" default:"10"`
}

type CronConfig struct {
	Interval                  time.Duration `envconfig:"TAPPING_CRON_INTERVAL" default:"1h"`
	OutboxRetentionDays       int           `envconfig:"TAPPING_CRON_OUTBOX_RETENTION_DAYS" default:"30"`
	NotificationRetentionDays int           `envconfig:"TAPPING_CRON_NOTIFICATION_RETENTION_DAYS" default:"90"`
}

func (db *DBConfig) ensureDSN() error {
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

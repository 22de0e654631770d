package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	EnvPrefix = "STOCKPOOL"

	AppEnvDev  = "development"
	AppEnvProd = "production"

	EnvAppEnv = "STOCKPOOL_APP_ENV"
	EnvDBDSN  = "STOCKPOOL_DB_DSN"
	EnvDBHost = "STOCKPOOL_DB_HOST"
	EnvDBUser = "STOCKPOOL_DB_USER"
	EnvDBName = "STOCKPOOL_DB_NAME"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Webhook      WebhookConfig
	Sync         SyncConfig
	Recon        ReconConfig
	FeatureFlags FeatureFlagsConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"STOCKPOOL_APP_ENV" required:"true"`
	Port         string `envconfig:"STOCKPOOL_APP_PORT" required:"true"`
	MetricsPort  string `envconfig:"STOCKPOOL_METRICS_PORT" default:"9091"`
	LogLevel     string `envconfig:"STOCKPOOL_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"STOCKPOOL_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"STOCKPOOL_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"STOCKPOOL_DB_DSN"`
	Driver string `envconfig:"STOCKPOOL_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"STOCKPOOL_DB_HOST"`
	LegacyPort     int    `envconfig:"STOCKPOOL_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"STOCKPOOL_DB_USER"`
	LegacyPassword string `envconfig:"STOCKPOOL_DB_PASSWORD"`
	LegacyName     string `envconfig:"STOCKPOOL_DB_NAME"`
	LegacySSLMode  string `envconfig:"STOCKPOOL_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"STOCKPOOL_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"STOCKPOOL_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"STOCKPOOL_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"STOCKPOOL_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"STOCKPOOL_REDIS_URL" required:"true"`
	Address      string        `envconfig:"STOCKPOOL_REDIS_ADDR"`
	Password     string        `envconfig:"STOCKPOOL_REDIS_PASSWORD"`
	DB           int           `envconfig:"STOCKPOOL_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"STOCKPOOL_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"STOCKPOOL_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"STOCKPOOL_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"STOCKPOOL_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"STOCKPOOL_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"STOCKPOOL_GCP_PROJECT_ID" required:"true"`
	CredentialsJSON        string `envconfig:"STOCKPOOL_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"STOCKPOOL_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	InventoryTopic        string `envconfig:"STOCKPOOL_PUBSUB_INVENTORY_TOPIC" default:"sp-inventory-events"`
	InventorySubscription string `envconfig:"STOCKPOOL_PUBSUB_INVENTORY_SUBSCRIPTION" required:"true"`
}

type WebhookConfig struct {
	SigningSecret string `envconfig:"STOCKPOOL_WEBHOOK_SIGNING_SECRET" required:"true"`
	// Redis-side duplicate suppression window for raw deliveries. The
	// idempotency ledger in Postgres stays the authoritative gate.
	DuplicateTTL time.Duration `envconfig:"STOCKPOOL_WEBHOOK_DUPLICATE_TTL" default:"24h"`
}

type SyncConfig struct {
	// SnapshotTTL bounds how old an observed inventory level may be before
	// pool arithmetic requires a fresh provider read.
	SnapshotTTL time.Duration `envconfig:"STOCKPOOL_SYNC_SNAPSHOT_TTL" default:"10s"`
	// EchoWindow is how far back the push ledger is consulted when deciding
	// whether a notification is feedback from our own write.
	EchoWindow     time.Duration `envconfig:"STOCKPOOL_SYNC_ECHO_WINDOW" default:"60s"`
	EventDeadline  time.Duration `envconfig:"STOCKPOOL_SYNC_EVENT_DEADLINE" default:"30s"`
	MaxConcurrency int           `envconfig:"STOCKPOOL_SYNC_MAX_CONCURRENCY" default:"16"`
	StatusTTL      time.Duration `envconfig:"STOCKPOOL_SYNC_STATUS_TTL" default:"15m"`
}

type ReconConfig struct {
	Interval    time.Duration `envconfig:"STOCKPOOL_RECON_INTERVAL" default:"1h"`
	LockTTL     time.Duration `envconfig:"STOCKPOOL_RECON_LOCK_TTL" default:"50m"`
	ReadTimeout time.Duration `envconfig:"STOCKPOOL_RECON_READ_TIMEOUT" default:"30s"`
	Parallelism int           `envconfig:"STOCKPOOL_RECON_PARALLELISM" default:"4"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"STOCKPOOL_AUTO_MIGRATE" default:"false"`
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

package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"
)

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	Auth         AuthConfig
	RateLimit    RateLimitConfig
	Ledger       LedgerConfig
	Outbox       OutboxConfig
	PubSub       PubSubConfig
	GCP          GCPConfig
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
	Env          string `envconfig:"WALLETCORE_APP_ENV" required:"true"`
	Port         string `envconfig:"WALLETCORE_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"WALLETCORE_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"WALLETCORE_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"WALLETCORE_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"WALLETCORE_DB_DSN"`
	Driver string `envconfig:"WALLETCORE_DB_DRIVER" default:"postgres"`

	Host     string `envconfig:"WALLETCORE_DB_HOST"`
	Port     int    `envconfig:"WALLETCORE_DB_PORT" default:"5432"`
	User     string `envconfig:"WALLETCORE_DB_USER"`
	Password string `envconfig:"WALLETCORE_DB_PASSWORD"`
	Name     string `envconfig:"WALLETCORE_DB_NAME"`
	SSLMode  string `envconfig:"WALLETCORE_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"WALLETCORE_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"WALLETCORE_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"WALLETCORE_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"WALLETCORE_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"WALLETCORE_REDIS_URL" required:"true"`
	Address      string        `envconfig:"WALLETCORE_REDIS_ADDR"`
	Password     string        `envconfig:"WALLETCORE_REDIS_PASSWORD"`
	DB           int           `envconfig:"WALLETCORE_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"WALLETCORE_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"WALLETCORE_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"WALLETCORE_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"WALLETCORE_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"WALLETCORE_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// AuthConfig configures the service-to-service bearer token check. The
// ledger is an internal service; callers present a signed JWT minted by the
// platform gateway.
type AuthConfig struct {
	Secret string `envconfig:"WALLETCORE_AUTH_SECRET" required:"true"`
	Issuer string `envconfig:"WALLETCORE_AUTH_ISSUER" default:"walletcore"`
}

// RateLimitConfig throttles the unauthenticated webhook surface.
type RateLimitConfig struct {
	WebhookWindow time.Duration `envconfig:"WALLETCORE_WEBHOOK_RATE_WINDOW" default:"1m"`
	WebhookLimit  int64         `envconfig:"WALLETCORE_WEBHOOK_RATE_LIMIT" default:"120"`
}

// LedgerConfig holds the mutation engine policy knobs.
type LedgerConfig struct {
	DefaultDailyLimit   decimal.Decimal `envconfig:"WALLETCORE_LEDGER_DAILY_LIMIT" default:"10000"`
	DefaultMonthlyLimit decimal.Decimal `envconfig:"WALLETCORE_LEDGER_MONTHLY_LIMIT" default:"100000"`

	// MaxRetries bounds the optimistic-concurrency retry loop before
	// CONCURRENT_MODIFICATION surfaces to the caller.
	MaxRetries int `envconfig:"WALLETCORE_LEDGER_MAX_RETRIES" default:"3"`

	// ValidityDays maps transaction purposes to entitlement window lengths,
	// e.g. "compliance_payment:30,subscription:365".
	ValidityDays map[string]int `envconfig:"WALLETCORE_LEDGER_VALIDITY_DAYS" default:"compliance_payment:30"`

	// OutstandingGrace is reported to reconciliation callers; the ledger
	// itself never flips transactions on a timer.
	OutstandingGrace time.Duration `envconfig:"WALLETCORE_LEDGER_OUTSTANDING_GRACE" default:"24h"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"WALLETCORE_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"WALLETCORE_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"WALLETCORE_OUTBOX_MAX_ATTEMPTS" default:"10"`
}

type PubSubConfig struct {
	LedgerTopic        string `envconfig:"WALLETCORE_PUBSUB_LEDGER_TOPIC" default:"wc-ledger-events"`
	LedgerSubscription string `envconfig:"WALLETCORE_PUBSUB_LEDGER_SUBSCRIPTION"`
}

type GCPConfig struct {
	ProjectID string `envconfig:"WALLETCORE_GCP_PROJECT_ID"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"WALLETCORE_AUTO_MIGRATE" default:"false"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	parts := map[string]string{
		EnvDBHost: db.Host,
		EnvDBUser: db.User,
		EnvDBName: db.Name,
	}
	for _, env := range requiredDBEnvVars {
		if parts[env] == "" {
			missing = append(missing, env)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.User)
	if db.Password != "" {
		userInfo = url.UserPassword(db.User, db.Password)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.Host, db.Port),
		Path:   db.Name,
	}

	if db.SSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.SSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}

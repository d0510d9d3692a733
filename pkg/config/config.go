package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App     AppConfig
	DB      DBConfig
	Redis   RedisConfig
	Stripe  StripeConfig
	Webhook WebhookConfig
	GCP     GCPConfig
	PubSub  PubSubConfig
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
	Env          string `envconfig:"MOTORMARKT_APP_ENV" required:"true"`
	Port         string `envconfig:"MOTORMARKT_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"MOTORMARKT_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"MOTORMARKT_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN    string `envconfig:"MOTORMARKT_DB_DSN"`
	Driver string `envconfig:"MOTORMARKT_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"MOTORMARKT_DB_HOST"`
	LegacyPort     int    `envconfig:"MOTORMARKT_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"MOTORMARKT_DB_USER"`
	LegacyPassword string `envconfig:"MOTORMARKT_DB_PASSWORD"`
	LegacyName     string `envconfig:"MOTORMARKT_DB_NAME"`
	LegacySSLMode  string `envconfig:"MOTORMARKT_DB_SSLMODE" default:"disable"`

	UseSQLite  bool   `envconfig:"MOTORMARKT_USE_SQLITE" default:"false"`
	SQLitePath string `envconfig:"MOTORMARKT_SQLITE_PATH" default:"motormarkt.db"`

	AutoMigrate bool `envconfig:"MOTORMARKT_AUTO_MIGRATE" default:"false"`

	MaxOpenConns    int           `envconfig:"MOTORMARKT_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"MOTORMARKT_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"MOTORMARKT_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"MOTORMARKT_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"MOTORMARKT_REDIS_URL" required:"true"`
	Address      string        `envconfig:"MOTORMARKT_REDIS_ADDR"`
	Password     string        `envconfig:"MOTORMARKT_REDIS_PASSWORD"`
	DB           int           `envconfig:"MOTORMARKT_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"MOTORMARKT_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"MOTORMARKT_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"MOTORMARKT_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"MOTORMARKT_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"MOTORMARKT_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// StripeConfig carries one signing secret per logical sub-webhook: the
// general endpoint (listing payments plus individual subscriptions) and the
// company-subscription endpoint use separate secrets upstream.
type StripeConfig struct {
	APIKey        string `envconfig:"MOTORMARKT_STRIPE_API_KEY"`
	Secret        string `envconfig:"MOTORMARKT_STRIPE_SECRET"`
	CompanySecret string `envconfig:"MOTORMARKT_STRIPE_COMPANY_SECRET"`
	Env           string `envconfig:"MOTORMARKT_STRIPE_ENV" default:"test"`
}

// Environment returns the normalized Stripe environment (test/live).
func (s StripeConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(s.Env))
	if env == "" {
		return "test"
	}
	return env
}

type WebhookConfig struct {
	// ProcessingTimeout bounds one event end to end; past it the handler
	// answers with a retryable failure so the provider redelivers.
	ProcessingTimeout time.Duration `envconfig:"MOTORMARKT_WEBHOOK_PROCESSING_TIMEOUT" default:"25s"`
	// MaxAttempts caps ledger re-claims of a failed event.
	MaxAttempts int `envconfig:"MOTORMARKT_WEBHOOK_MAX_ATTEMPTS" default:"5"`
	// StaleClaimAfter is how long a ledger claim may stay at processing
	// with no terminal write before a redelivery may take the event over.
	// Keep it well above ProcessingTimeout.
	StaleClaimAfter time.Duration `envconfig:"MOTORMARKT_WEBHOOK_STALE_CLAIM_AFTER" default:"5m"`
	// GuardTTL is the redis duplicate-guard key lifetime.
	GuardTTL time.Duration `envconfig:"MOTORMARKT_WEBHOOK_GUARD_TTL" default:"720h"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"MOTORMARKT_GCP_PROJECT_ID"`
	CredentialsJSON        string `envconfig:"MOTORMARKT_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"MOTORMARKT_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	NotificationTopic string `envconfig:"MOTORMARKT_PUBSUB_NOTIFICATION_TOPIC" default:"mm-notification-events"`
}

func (db *DBConfig) ensureDSN() error {
	if db.UseSQLite {
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

package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App      AppConfig
	Service  ServiceConfig
	DB       DBConfig
	Redis    RedisConfig
	Identity IdentityConfig
	Midtrans MidtransConfig
	Billing  BillingConfig
	Cron     CronConfig
	Flags    FeatureFlagsConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if _, err := cfg.Billing.Location(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"ALGOSAHAM_APP_ENV" required:"true"`
	Port         string `envconfig:"ALGOSAHAM_APP_PORT" default:"8080"`
	LogLevel     string `envconfig:"ALGOSAHAM_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"ALGOSAHAM_LOG_WARN_STACK" default:"false"`
	// CORSOrigins lists web client origins, comma separated.
	CORSOrigins []string `envconfig:"ALGOSAHAM_CORS_ORIGINS"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"ALGOSAHAM_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN string `envconfig:"ALGOSAHAM_DB_DSN"`

	LegacyHost     string `envconfig:"ALGOSAHAM_DB_HOST"`
	LegacyPort     int    `envconfig:"ALGOSAHAM_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"ALGOSAHAM_DB_USER"`
	LegacyPassword string `envconfig:"ALGOSAHAM_DB_PASSWORD"`
	LegacyName     string `envconfig:"ALGOSAHAM_DB_NAME"`
	LegacySSLMode  string `envconfig:"ALGOSAHAM_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"ALGOSAHAM_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"ALGOSAHAM_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"ALGOSAHAM_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"ALGOSAHAM_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"ALGOSAHAM_REDIS_URL"`
	Address      string        `envconfig:"ALGOSAHAM_REDIS_ADDR"`
	Password     string        `envconfig:"ALGOSAHAM_REDIS_PASSWORD"`
	DB           int           `envconfig:"ALGOSAHAM_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"ALGOSAHAM_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"ALGOSAHAM_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"ALGOSAHAM_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"ALGOSAHAM_REDIS_READ_TIMEOUT" default:"3s"`
	WriteTimeout time.Duration `envconfig:"ALGOSAHAM_REDIS_WRITE_TIMEOUT" default:"3s"`
}

// IdentityConfig describes the tokens minted by the external identity provider.
type IdentityConfig struct {
	JWTSecret string `envconfig:"ALGOSAHAM_IDENTITY_JWT_SECRET" required:"true"`
	Issuer    string `envconfig:"ALGOSAHAM_IDENTITY_ISSUER" required:"true"`
}

type MidtransConfig struct {
	ServerKey string `envconfig:"ALGOSAHAM_MIDTRANS_SERVER_KEY" required:"true"`
	Env       string `envconfig:"ALGOSAHAM_MIDTRANS_ENV" default:"sandbox"`
	// BaseURL overrides the environment default; used against local fakes.
	BaseURL        string        `envconfig:"ALGOSAHAM_MIDTRANS_BASE_URL"`
	RequestTimeout time.Duration `envconfig:"ALGOSAHAM_MIDTRANS_REQUEST_TIMEOUT" default:"10s"`
}

// Environment returns the normalized Midtrans environment (sandbox/production).
func (m MidtransConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(m.Env))
	if env == "" {
		return "sandbox"
	}
	return env
}

type BillingConfig struct {
	Timezone             string        `envconfig:"ALGOSAHAM_BILLING_TIMEZONE" default:"Asia/Jakarta"`
	Currency             string        `envconfig:"ALGOSAHAM_BILLING_CURRENCY" default:"IDR"`
	ProvisioningTimeout  time.Duration `envconfig:"ALGOSAHAM_BILLING_PROVISIONING_TIMEOUT" default:"20s"`
	ProvisioningAttempts uint64        `envconfig:"ALGOSAHAM_BILLING_PROVISIONING_ATTEMPTS" default:"3"`
	MonthlyMaxCharges    int           `envconfig:"ALGOSAHAM_BILLING_MONTHLY_MAX_CHARGES" default:"12"`
	AnnualMaxCharges     int           `envconfig:"ALGOSAHAM_BILLING_ANNUAL_MAX_CHARGES" default:"5"`
	WebhookDedupeTTL     time.Duration `envconfig:"ALGOSAHAM_BILLING_WEBHOOK_DEDUPE_TTL" default:"24h"`
	// PriceOverrides replaces list prices, e.g. "suhu_monthly:99000,bandar_yearly:1900000".
	PriceOverrides map[string]string `envconfig:"ALGOSAHAM_BILLING_PRICE_OVERRIDES"`
}

// Location resolves the calendar timezone used for daily usage windows.
func (b BillingConfig) Location() (*time.Location, error) {
	name := strings.TrimSpace(b.Timezone)
	if name == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("loading billing timezone %q: %w", name, err)
	}
	return loc, nil
}

type CronConfig struct {
	Interval          time.Duration `envconfig:"ALGOSAHAM_CRON_INTERVAL" default:"1h"`
	LockTTL           time.Duration `envconfig:"ALGOSAHAM_CRON_LOCK_TTL" default:"55m"`
	SweepBatchSize    int           `envconfig:"ALGOSAHAM_CRON_SWEEP_BATCH_SIZE" default:"200"`
	ReplayMaxAttempts int           `envconfig:"ALGOSAHAM_CRON_REPLAY_MAX_ATTEMPTS" default:"10"`
	// ReplayGrace skips inbox rows young enough to still be in flight.
	ReplayGrace time.Duration `envconfig:"ALGOSAHAM_CRON_REPLAY_GRACE" default:"2m"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"ALGOSAHAM_AUTO_MIGRATE" default:"false"`
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

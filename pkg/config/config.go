package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
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
	RateLimit    RateLimitConfig
	FeatureFlags FeatureFlagsConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Outbox       OutboxConfig
	Payment      PaymentConfig
	Gateway      GatewayConfig
	Square       SquareConfig
	Payout       PayoutConfig
	NATS         NATSConfig
	Cron         CronConfig
}

type validator interface {
	validate() error
}

// Load reads every TICKETPAY_* variable and reports all invalid sections at
// once rather than stopping at the first.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.resolveDSN(); err != nil {
		return nil, err
	}
	var problems []error
	sections := []validator{
		cfg.Payment,
		cfg.Payout,
		cfg.Cron,
		cfg.RateLimit,
		orderLockBudget{lockTTL: cfg.Redis.LockTTL, gatewayTimeout: cfg.Gateway.Timeout},
	}
	for _, section := range sections {
		if err := section.validate(); err != nil {
			problems = append(problems, err)
		}
	}
	if err := errors.Join(problems...); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string   `envconfig:"TICKETPAY_APP_ENV" required:"true"`
	Port         string   `envconfig:"TICKETPAY_APP_PORT" required:"true"`
	LogLevel     string   `envconfig:"TICKETPAY_LOG_LEVEL" default:"info"`
	LogWarnStack bool     `envconfig:"TICKETPAY_LOG_WARN_STACK" default:"false"`
	LogFormat    string   `envconfig:"TICKETPAY_LOG_FORMAT" default:"json"`
	CORSOrigins  []string `envconfig:"TICKETPAY_CORS_ORIGINS"`
	// MetricsAddr exposes /metrics from background workers; empty disables it.
	MetricsAddr string `envconfig:"TICKETPAY_METRICS_ADDR"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"TICKETPAY_SERVICE_KIND" default:"api"`
}

// DBConfig takes a full DSN, or the discrete host/user/name parts used by
// older deploy manifests.
type DBConfig struct {
	DSN    string `envconfig:"TICKETPAY_DB_DSN"`
	Driver string `envconfig:"TICKETPAY_DB_DRIVER" default:"postgres"`

	Host     string `envconfig:"TICKETPAY_DB_HOST"`
	Port     int    `envconfig:"TICKETPAY_DB_PORT" default:"5432"`
	User     string `envconfig:"TICKETPAY_DB_USER"`
	Password string `envconfig:"TICKETPAY_DB_PASSWORD"`
	Name     string `envconfig:"TICKETPAY_DB_NAME"`
	SSLMode  string `envconfig:"TICKETPAY_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"TICKETPAY_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"TICKETPAY_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"TICKETPAY_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"TICKETPAY_DB_CONN_MAX_IDLE_TIME" default:"10m"`
	SlowQuery       time.Duration `envconfig:"TICKETPAY_DB_SLOW_QUERY" default:"500ms"`
}

type RedisConfig struct {
	URL          string        `envconfig:"TICKETPAY_REDIS_URL" required:"true"`
	Address      string        `envconfig:"TICKETPAY_REDIS_ADDR"`
	Password     string        `envconfig:"TICKETPAY_REDIS_PASSWORD"`
	DB           int           `envconfig:"TICKETPAY_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"TICKETPAY_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"TICKETPAY_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"TICKETPAY_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"TICKETPAY_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"TICKETPAY_REDIS_WRITE_TIMEOUT" default:"5s"`
	LockTTL      time.Duration `envconfig:"TICKETPAY_REDIS_LOCK_TTL" default:"1m"`
}

// orderLockBudget ties the order lock lease to the gateway timeout. A refund
// can make two gateway calls while holding the lock.
type orderLockBudget struct {
	lockTTL        time.Duration
	gatewayTimeout time.Duration
}

func (b orderLockBudget) validate() error {
	if b.lockTTL <= 2*b.gatewayTimeout {
		return fmt.Errorf("%s (%s) must exceed twice %s (%s)", EnvRedisLockTTL, b.lockTTL, EnvGatewayTimeout, b.gatewayTimeout)
	}
	return nil
}

type JWTConfig struct {
	Secret            string `envconfig:"TICKETPAY_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"TICKETPAY_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"TICKETPAY_JWT_EXPIRATION_MINUTES" required:"true"`
}

// RateLimitConfig throttles the payment endpoints per client address and per
// authenticated user. A zero limit disables that counter.
type RateLimitConfig struct {
	Window    time.Duration `envconfig:"TICKETPAY_RATE_LIMIT_WINDOW" default:"1m"`
	IPLimit   int           `envconfig:"TICKETPAY_RATE_LIMIT_IP" default:"120"`
	UserLimit int           `envconfig:"TICKETPAY_RATE_LIMIT_USER" default:"30"`
}

func (r RateLimitConfig) validate() error {
	if r.Window <= 0 && (r.IPLimit > 0 || r.UserLimit > 0) {
		return errors.New("TICKETPAY_RATE_LIMIT_WINDOW must be positive when a limit is set")
	}
	return nil
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"TICKETPAY_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"TICKETPAY_AUTO_MIGRATE" default:"false"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"TICKETPAY_GCP_PROJECT_ID" required:"true"`
	CredentialsJSON        string `envconfig:"TICKETPAY_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"TICKETPAY_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	DomainTopic        string `envconfig:"TICKETPAY_PUBSUB_DOMAIN_TOPIC" default:"ticketpay-payment-events"`
	DomainSubscription string `envconfig:"TICKETPAY_PUBSUB_DOMAIN_SUBSCRIPTION"`
	MaxOutstanding     int    `envconfig:"TICKETPAY_PUBSUB_MAX_OUTSTANDING" default:"100"`
	ReceiveGoroutines  int    `envconfig:"TICKETPAY_PUBSUB_RECEIVE_GOROUTINES" default:"2"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"TICKETPAY_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"TICKETPAY_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"TICKETPAY_OUTBOX_MAX_ATTEMPTS" default:"10"`
}

// PaymentConfig holds the pricing and lifetime rules applied to intents.
type PaymentConfig struct {
	IntentTTL     time.Duration `envconfig:"TICKETPAY_PAYMENT_INTENT_TTL" default:"30m"`
	GraceWindow   time.Duration `envconfig:"TICKETPAY_PAYMENT_GRACE_WINDOW" default:"10m"`
	DepositAmount int64         `envconfig:"TICKETPAY_PAYMENT_DEPOSIT_AMOUNT" default:"10000"`
	Currency      string        `envconfig:"TICKETPAY_PAYMENT_CURRENCY" default:"KRW"`
	CancelFeeRate string        `envconfig:"TICKETPAY_PAYMENT_CANCEL_FEE_RATE" default:"0.10"`
	PlatformFee   string        `envconfig:"TICKETPAY_PAYMENT_PLATFORM_FEE_RATE" default:"0"`
}

func (p PaymentConfig) validate() error {
	if p.IntentTTL <= 0 {
		return fmt.Errorf("%s must be positive", EnvPaymentIntentTTL)
	}
	if p.DepositAmount < 0 {
		return fmt.Errorf("%s must not be negative", EnvPaymentDepositValue)
	}
	return nil
}

type GatewayConfig struct {
	Provider  string        `envconfig:"TICKETPAY_GATEWAY_PROVIDER" default:"toss"`
	BaseURL   string        `envconfig:"TICKETPAY_GATEWAY_BASE_URL" default:"https://api.tosspayments.com"`
	SecretKey string        `envconfig:"TICKETPAY_GATEWAY_SECRET_KEY"`
	Timeout   time.Duration `envconfig:"TICKETPAY_GATEWAY_TIMEOUT" default:"15s"`
}

type SquareConfig struct {
	AccessToken string `envconfig:"TICKETPAY_SQUARE_ACCESS_TOKEN"`
	Env         string `envconfig:"TICKETPAY_SQUARE_ENV" default:"sandbox"`
	LocationID  string `envconfig:"TICKETPAY_SQUARE_LOCATION_ID"`
}

// Environment returns the normalized Square environment (sandbox/production).
func (s SquareConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(s.Env))
	if env == "" {
		return "sandbox"
	}
	return env
}

type PayoutConfig struct {
	Enabled          bool          `envconfig:"TICKETPAY_PAYOUT_ENABLED" default:"true"`
	Provider         string        `envconfig:"TICKETPAY_PAYOUT_PROVIDER" default:"sim"`
	BaseURL          string        `envconfig:"TICKETPAY_PAYOUT_BASE_URL" default:"https://api.tosspayments.com"`
	SecretKey        string        `envconfig:"TICKETPAY_PAYOUT_SECRET_KEY"`
	SecurityMode     string        `envconfig:"TICKETPAY_PAYOUT_SECURITY_MODE" default:"NONE"`
	Timeout          time.Duration `envconfig:"TICKETPAY_PAYOUT_TIMEOUT" default:"15s"`
	BaseDelay        time.Duration `envconfig:"TICKETPAY_PAYOUT_BASE_DELAY" default:"30s"`
	MaxDelay         time.Duration `envconfig:"TICKETPAY_PAYOUT_MAX_DELAY" default:"1h"`
	MaxRetries       int           `envconfig:"TICKETPAY_PAYOUT_MAX_RETRIES" default:"5"`
	StaleRequest     time.Duration `envconfig:"TICKETPAY_PAYOUT_STALE_REQUEST" default:"1h"`
	SettlementHold   time.Duration `envconfig:"TICKETPAY_PAYOUT_SETTLEMENT_HOLD" default:"24h"`
	RequestOnConfirm bool          `envconfig:"TICKETPAY_PAYOUT_REQUEST_ON_CONFIRM" default:"false"`
}

func (p PayoutConfig) validate() error {
	switch {
	case p.MaxRetries < 0:
		return fmt.Errorf("%s must not be negative", EnvPayoutMaxRetries)
	case p.BaseDelay <= 0 || p.MaxDelay < p.BaseDelay:
		return errors.New("payout retry delays must satisfy 0 < base <= max")
	}
	return nil
}

type NATSConfig struct {
	URL           string        `envconfig:"TICKETPAY_NATS_URL" default:"nats://localhost:4222"`
	PayoutSubject string        `envconfig:"TICKETPAY_NATS_PAYOUT_SUBJECT" default:"payouts.request"`
	Timeout       time.Duration `envconfig:"TICKETPAY_NATS_TIMEOUT" default:"10s"`
}

type CronConfig struct {
	Interval  time.Duration `envconfig:"TICKETPAY_CRON_INTERVAL" default:"15m"`
	BatchSize int           `envconfig:"TICKETPAY_CRON_BATCH_SIZE" default:"100"`
	LockTTL   time.Duration `envconfig:"TICKETPAY_CRON_LOCK_TTL" default:"14m"`

	MaintenanceEvery      time.Duration `envconfig:"TICKETPAY_CRON_MAINTENANCE_EVERY" default:"24h"`
	OutboxRetention       time.Duration `envconfig:"TICKETPAY_CRON_OUTBOX_RETENTION" default:"720h"`
	NotificationRetention time.Duration `envconfig:"TICKETPAY_CRON_NOTIFICATION_RETENTION" default:"2160h"`
}

// validate keeps the cycle lock shorter than the cycle so a crashed holder
// never blocks the next tick.
func (c CronConfig) validate() error {
	if c.Interval <= 0 {
		return fmt.Errorf("%s must be positive", EnvCronInterval)
	}
	if c.LockTTL <= 0 || c.LockTTL >= c.Interval {
		return errors.New("TICKETPAY_CRON_LOCK_TTL must be positive and shorter than the cron interval")
	}
	return nil
}

func (db *DBConfig) resolveDSN() error {
	if db.DSN != "" {
		return nil
	}
	parts := map[string]string{EnvDBHost: db.Host, EnvDBUser: db.User, EnvDBName: db.Name}
	var missing []string
	for _, env := range dsnPartEnvVars {
		if parts[env] == "" {
			missing = append(missing, env)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("set %s or all of %s", EnvDBDSN, strings.Join(missing, ", "))
	}

	dsn := url.URL{
		Scheme: "postgres",
		User:   url.User(db.User),
		Host:   net.JoinHostPort(db.Host, strconv.Itoa(db.Port)),
		Path:   "/" + db.Name,
	}
	if db.Password != "" {
		dsn.User = url.UserPassword(db.User, db.Password)
	}
	if db.SSLMode != "" {
		dsn.RawQuery = url.Values{"sslmode": {db.SSLMode}}.Encode()
	}
	db.DSN = dsn.String()
	return nil
}

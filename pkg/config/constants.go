package config

const (
	EnvPrefix = "TICKETPAY"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvAppEnv       = "TICKETPAY_APP_ENV"
	EnvPort         = "TICKETPAY_APP_PORT"
	EnvLogLevel     = "TICKETPAY_LOG_LEVEL"
	EnvLogWarnStack = "TICKETPAY_LOG_WARN_STACK"
	EnvServiceKind  = "TICKETPAY_SERVICE_KIND"

	EnvDBDSN      = "TICKETPAY_DB_DSN"
	EnvDBDriver   = "TICKETPAY_DB_DRIVER"
	EnvDBHost     = "TICKETPAY_DB_HOST"
	EnvDBPort     = "TICKETPAY_DB_PORT"
	EnvDBUser     = "TICKETPAY_DB_USER"
	EnvDBPassword = "TICKETPAY_DB_PASSWORD"
	EnvDBName     = "TICKETPAY_DB_NAME"
	EnvDBSSLMode  = "TICKETPAY_DB_SSLMODE"

	EnvRedisURL     = "TICKETPAY_REDIS_URL"
	EnvRedisLockTTL = "TICKETPAY_REDIS_LOCK_TTL"

	EnvJWTSecret  = "TICKETPAY_JWT_SECRET"
	EnvJWTIssuer  = "TICKETPAY_JWT_ISSUER"
	EnvJWTExpMins = "TICKETPAY_JWT_EXPIRATION_MINUTES"

	EnvGCPProjectID      = "TICKETPAY_GCP_PROJECT_ID"
	EnvPubSubDomainTopic = "TICKETPAY_PUBSUB_DOMAIN_TOPIC"
	EnvPubSubDomainSub   = "TICKETPAY_PUBSUB_DOMAIN_SUBSCRIPTION"

	EnvPaymentIntentTTL    = "TICKETPAY_PAYMENT_INTENT_TTL"
	EnvPaymentCancelFee    = "TICKETPAY_PAYMENT_CANCEL_FEE_RATE"
	EnvGatewayProvider     = "TICKETPAY_GATEWAY_PROVIDER"
	EnvGatewaySecretKey    = "TICKETPAY_GATEWAY_SECRET_KEY"
	EnvPayoutProvider      = "TICKETPAY_PAYOUT_PROVIDER"
	EnvPayoutMaxRetries    = "TICKETPAY_PAYOUT_MAX_RETRIES"
	EnvCronInterval        = "TICKETPAY_CRON_INTERVAL"
	EnvSquareAccessToken   = "TICKETPAY_SQUARE_ACCESS_TOKEN"
	EnvNATSURL             = "TICKETPAY_NATS_URL"
	EnvPayoutEnabled       = "TICKETPAY_PAYOUT_ENABLED"
	EnvGatewayTimeout      = "TICKETPAY_GATEWAY_TIMEOUT"
	EnvPaymentDepositValue = "TICKETPAY_PAYMENT_DEPOSIT_AMOUNT"
)

var dsnPartEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}

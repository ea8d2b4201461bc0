package config

// EnvPrefix is empty because every field carries its fully qualified variable name.
const EnvPrefix = ""

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	EnvAppEnv   = "ALGOSAHAM_APP_ENV"
	EnvPort     = "ALGOSAHAM_APP_PORT"
	EnvDBDSN    = "ALGOSAHAM_DB_DSN"
	EnvDBHost   = "ALGOSAHAM_DB_HOST"
	EnvDBUser   = "ALGOSAHAM_DB_USER"
	EnvDBName   = "ALGOSAHAM_DB_NAME"
	EnvRedisURL = "ALGOSAHAM_REDIS_URL"

	EnvIdentitySecret = "ALGOSAHAM_IDENTITY_JWT_SECRET"
	EnvIdentityIssuer = "ALGOSAHAM_IDENTITY_ISSUER"

	EnvMidtransServerKey = "ALGOSAHAM_MIDTRANS_SERVER_KEY"
	EnvBillingTimezone   = "ALGOSAHAM_BILLING_TIMEZONE"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}

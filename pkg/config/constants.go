package config

// EnvPrefix namespaces every environment variable the service reads.
const EnvPrefix = "WALLETCORE"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	EnvAppEnv      = "WALLETCORE_APP_ENV"
	EnvPort        = "WALLETCORE_APP_PORT"
	EnvDBDSN       = "WALLETCORE_DB_DSN"
	EnvDBHost      = "WALLETCORE_DB_HOST"
	EnvDBUser      = "WALLETCORE_DB_USER"
	EnvDBName      = "WALLETCORE_DB_NAME"
	EnvRedisURL    = "WALLETCORE_REDIS_URL"
	EnvAuthSecret  = "WALLETCORE_AUTH_SECRET"
	EnvAuthIssuer  = "WALLETCORE_AUTH_ISSUER"
	EnvLedgerDaily = "WALLETCORE_LEDGER_DAILY_LIMIT"
)

var requiredDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}

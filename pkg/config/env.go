package config

const (
	EnvPrefix = "SHOPDESK"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	DBDriverPostgres = "postgres"
	DBDriverSQLite   = "sqlite"
)

const (
	EnvAppEnv                 = "SHOPDESK_APP_ENV"
	EnvPort                   = "SHOPDESK_APP_PORT"
	EnvDBDSN                  = "SHOPDESK_DB_DSN"
	EnvDBHost                 = "SHOPDESK_DB_HOST"
	EnvDBUser                 = "SHOPDESK_DB_USER"
	EnvDBName                 = "SHOPDESK_DB_NAME"
	EnvRedisURL               = "SHOPDESK_REDIS_URL"
	EnvJWTSecret              = "SHOPDESK_JWT_SECRET"
	EnvJWTIssuer              = "SHOPDESK_JWT_ISSUER"
	EnvJWTExpMins             = "SHOPDESK_JWT_EXPIRATION_MINUTES"
	EnvRefreshTokenTTLMinutes = "SHOPDESK_REFRESH_TOKEN_TTL_MINUTES"
	EnvAdminEmail             = "SHOPDESK_ADMIN_EMAIL"
	EnvUseSQLite              = "SHOPDESK_USE_SQLITE"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}

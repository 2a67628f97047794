package config

const (
	EnvPrefix = "WISHLIST"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	EnvAppEnv    = "WISHLIST_APP_ENV"
	EnvPort      = "WISHLIST_APP_PORT"
	EnvDBDSN     = "WISHLIST_DB_DSN"
	EnvDBHost    = "WISHLIST_DB_HOST"
	EnvDBUser    = "WISHLIST_DB_USER"
	EnvDBName    = "WISHLIST_DB_NAME"
	EnvRedisURL  = "WISHLIST_REDIS_URL"
	EnvJWTSecret = "WISHLIST_JWT_SECRET"
	EnvJWTIssuer = "WISHLIST_JWT_ISSUER"

	EnvSyncRemoteBaseURL = "WISHLIST_SYNC_REMOTE_BASE_URL"
	EnvSyncCallTimeout   = "WISHLIST_SYNC_CALL_TIMEOUT"
	EnvPubSubTopic       = "WISHLIST_PUBSUB_NOTIFICATION_TOPIC"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}

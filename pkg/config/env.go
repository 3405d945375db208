package config

const EnvPrefix = "TAPPING"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	EnvAppEnv   = "TAPPING_APP_ENV"
	EnvPort     = "TAPPING_APP_PORT"
	EnvLogLevel = "TAPPING_LOG_LEVEL"

	EnvDBDSN  = "TAPPING_DB_DSN"
	EnvDBHost = "TAPPING_DB_HOST"
	EnvDBUser = "TAPPING_DB_USER"
	EnvDBName = "TAPPING_DB_NAME"

	EnvRedisURL = "TAPPING_REDIS_URL"

	EnvJWTSecret  = "TAPPING_JWT_SECRET"
	EnvJWTIssuer  = "TAPPING_JWT_ISSUER"
	EnvJWTExpMins = "TAPPING_JWT_EXPIRATION_MINUTES"

	EnvNegotiationLockTTL  = "TAPPING_NEGOTIATION_LOCK_TTL"
	EnvNegotiationLockWait = "TAPPING_NEGOTIATION_LOCK_WAIT"
	EnvNegotiationStale    = "TAPPING_NEGOTIATION_STALE_AFTER"

	EnvGCPProjectID = "TAPPING_GCP_PROJECT_ID"

	EnvPubSubDomainTopic = "TAPPING_PUBSUB_DOMAIN_TOPIC"
	EnvPubSubDomainSub   = "TAPPING_PUBSUB_DOMAIN_SUBSCRIPTION"
	EnvPubSubNotifSub    = "TAPPING_PUBSUB_NOTIFICATION_SUBSCRIPTION"
	EnvPubSubAnalyticsT  = "TAPPING_PUBSUB_ANALYTICS_TOPIC"
	EnvPubSubAnalyticsS  = "TAPPING_PUBSUB_ANALYTICS_SUBSCRIPTION"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}

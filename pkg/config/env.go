package config

const EnvPrefix = "FIELDSYNC"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"

	SettingsBackendGorm  = "gorm"
	SettingsBackendRedis = "redis"
)

const (
	EnvAppEnv             = "FIELDSYNC_APP_ENV"
	EnvLogLevel           = "FIELDSYNC_LOG_LEVEL"
	EnvLogFormat          = "FIELDSYNC_LOG_FORMAT"
	EnvAPIAddr            = "FIELDSYNC_API_ADDR"
	EnvDBDriver           = "FIELDSYNC_DB_DRIVER"
	EnvDBDSN              = "FIELDSYNC_DB_DSN"
	EnvSettingsBackend    = "FIELDSYNC_SETTINGS_BACKEND"
	EnvRedisURL           = "FIELDSYNC_REDIS_URL"
	EnvRemoteBaseURL      = "FIELDSYNC_REMOTE_BASE_URL"
	EnvRemoteSessionToken = "FIELDSYNC_REMOTE_SESSION_TOKEN"
	EnvSyncDrainInterval  = "FIELDSYNC_SYNC_DRAIN_INTERVAL"
	EnvSyncAttemptTimeout = "FIELDSYNC_SYNC_ATTEMPT_TIMEOUT"
	EnvSyncMaxAttempts    = "FIELDSYNC_SYNC_MAX_ATTEMPTS"
	EnvDevJWTSecret       = "FIELDSYNC_DEV_JWT_SECRET"
)

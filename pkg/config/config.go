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
	API      APIConfig
	DB       DBConfig
	Settings SettingsConfig
	Redis    RedisConfig
	Remote   RemoteConfig
	Sync     SyncConfig
	Metrics  MetricsConfig
	DevAuth  DevAuthConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadDevAuth reads only the dev remote section, so cmd/dev-remote starts
// without a remote base URL.
func LoadDevAuth() (DevAuthConfig, error) {
	var cfg DevAuthConfig
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return DevAuthConfig{}, fmt.Errorf("parsing dev auth config: %w", err)
	}
	if strings.TrimSpace(cfg.Secret) == "" {
		return DevAuthConfig{}, fmt.Errorf("%s is required", EnvDevJWTSecret)
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if err := c.DB.normalize(); err != nil {
		return err
	}
	if err := c.Settings.normalize(); err != nil {
		return err
	}
	if c.Settings.Backend == SettingsBackendRedis && strings.TrimSpace(c.Redis.URL) == "" {
		return fmt.Errorf("%s is required when %s=%s", EnvRedisURL, EnvSettingsBackend, SettingsBackendRedis)
	}
	if err := c.Remote.validate(); err != nil {
		return err
	}
	if c.Sync.MaxAttempts < 0 {
		return fmt.Errorf("%s must be >= 0", EnvSyncMaxAttempts)
	}
	if c.Sync.AttemptTimeout <= 0 {
		return fmt.Errorf("%s must be positive", EnvSyncAttemptTimeout)
	}
	return nil
}

type AppConfig struct {
	Env          string `envconfig:"FIELDSYNC_APP_ENV" default:"dev"`
	LogLevel     string `envconfig:"FIELDSYNC_LOG_LEVEL" default:"info"`
	LogFormat    string `envconfig:"FIELDSYNC_LOG_FORMAT" default:"json"`
	LogWarnStack bool   `envconfig:"FIELDSYNC_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type APIConfig struct {
	Addr            string        `envconfig:"FIELDSYNC_API_ADDR" default:"127.0.0.1:8089"`
	ShutdownTimeout time.Duration `envconfig:"FIELDSYNC_API_SHUTDOWN_TIMEOUT" default:"10s"`
}

type DBConfig struct {
	Driver string `envconfig:"FIELDSYNC_DB_DRIVER" default:"sqlite"`
	DSN    string `envconfig:"FIELDSYNC_DB_DSN" default:"fieldsync.db"`

	MaxOpenConns    int           `envconfig:"FIELDSYNC_DB_MAX_OPEN_CONNS" default:"10"`
	MaxIdleConns    int           `envconfig:"FIELDSYNC_DB_MAX_IDLE_CONNS" default:"5"`
	ConnMaxLifetime time.Duration `envconfig:"FIELDSYNC_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"FIELDSYNC_DB_CONN_MAX_IDLE_TIME" default:"10m"`
	AutoMigrate     bool          `envconfig:"FIELDSYNC_DB_AUTO_MIGRATE" default:"true"`
}

func (db *DBConfig) normalize() error {
	db.Driver = strings.ToLower(strings.TrimSpace(db.Driver))
	switch db.Driver {
	case DriverSQLite, DriverPostgres:
	default:
		return fmt.Errorf("%s must be %q or %q, got %q", EnvDBDriver, DriverSQLite, DriverPostgres, db.Driver)
	}
	if strings.TrimSpace(db.DSN) == "" {
		return fmt.Errorf("%s is required", EnvDBDSN)
	}
	return nil
}

type SettingsConfig struct {
	Backend string `envconfig:"FIELDSYNC_SETTINGS_BACKEND" default:"gorm"`
}

func (s *SettingsConfig) normalize() error {
	s.Backend = strings.ToLower(strings.TrimSpace(s.Backend))
	switch s.Backend {
	case SettingsBackendGorm, SettingsBackendRedis:
		return nil
	default:
		return fmt.Errorf("%s must be %q or %q, got %q", EnvSettingsBackend, SettingsBackendGorm, SettingsBackendRedis, s.Backend)
	}
}

type RedisConfig struct {
	URL          string        `envconfig:"FIELDSYNC_REDIS_URL"`
	Password     string        `envconfig:"FIELDSYNC_REDIS_PASSWORD"`
	DB           int           `envconfig:"FIELDSYNC_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"FIELDSYNC_REDIS_POOL_SIZE" default:"4"`
	MinIdleConns int           `envconfig:"FIELDSYNC_REDIS_MIN_IDLE_CONNS" default:"1"`
	DialTimeout  time.Duration `envconfig:"FIELDSYNC_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"FIELDSYNC_REDIS_READ_TIMEOUT" default:"3s"`
	WriteTimeout time.Duration `envconfig:"FIELDSYNC_REDIS_WRITE_TIMEOUT" default:"3s"`
}

type RemoteConfig struct {
	BaseURL      string `envconfig:"FIELDSYNC_REMOTE_BASE_URL" required:"true"`
	SessionToken string `envconfig:"FIELDSYNC_REMOTE_SESSION_TOKEN"`
	LoginPath    string `envconfig:"FIELDSYNC_REMOTE_LOGIN_PATH" default:"/Identity/Account/Login"`
}

func (r RemoteConfig) validate() error {
	u, err := url.Parse(strings.TrimSpace(r.BaseURL))
	if err != nil {
		return fmt.Errorf("%s: %w", EnvRemoteBaseURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%s must be an http(s) URL, got %q", EnvRemoteBaseURL, r.BaseURL)
	}
	if u.Host == "" {
		return fmt.Errorf("%s is missing a host", EnvRemoteBaseURL)
	}
	return nil
}

type SyncConfig struct {
	DrainInterval  time.Duration `envconfig:"FIELDSYNC_SYNC_DRAIN_INTERVAL" default:"1m"`
	AttemptTimeout time.Duration `envconfig:"FIELDSYNC_SYNC_ATTEMPT_TIMEOUT" default:"15s"`
	ProbeInterval  time.Duration `envconfig:"FIELDSYNC_SYNC_PROBE_INTERVAL" default:"10s"`
	// 0 keeps client-rejected entries queued forever.
	MaxAttempts int `envconfig:"FIELDSYNC_SYNC_MAX_ATTEMPTS" default:"0"`
}

type MetricsConfig struct {
	Enabled bool `envconfig:"FIELDSYNC_METRICS_ENABLED" default:"true"`
}

// DevAuthConfig is only read by cmd/dev-remote.
type DevAuthConfig struct {
	Addr              string `envconfig:"FIELDSYNC_DEV_REMOTE_ADDR" default:"127.0.0.1:8090"`
	Secret            string `envconfig:"FIELDSYNC_DEV_JWT_SECRET" default:"dev-secret"`
	Issuer            string `envconfig:"FIELDSYNC_DEV_JWT_ISSUER" default:"fieldsync-dev"`
	ExpirationMinutes int    `envconfig:"FIELDSYNC_DEV_JWT_EXPIRATION_MINUTES" default:"720"`
}

func (d DevAuthConfig) TokenTTL() time.Duration {
	if d.ExpirationMinutes <= 0 {
		return 0
	}
	return time.Duration(d.ExpirationMinutes) * time.Minute
}

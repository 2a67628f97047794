package config

import (
	"fmt"
	"net/url"
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
	FeatureFlags FeatureFlagsConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	BigQuery     BigQueryConfig
	Sync         SyncConfig
	Share        ShareConfig
	Cron         CronConfig
}

// Load reads the server configuration (API, cron worker, migrate).
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ClientConfig is the subset of settings a client process embedding the
// sync engine needs. It never requires database or Redis settings.
type ClientConfig struct {
	App  AppConfig
	Sync SyncConfig
}

// LoadClient reads the client configuration used by wishlistctl.
func LoadClient() (*ClientConfig, error) {
	var cfg ClientConfig
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing client config: %w", err)
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"WISHLIST_APP_ENV" required:"true"`
	Port         string `envconfig:"WISHLIST_APP_PORT" default:"8080"`
	LogLevel     string `envconfig:"WISHLIST_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"WISHLIST_LOG_WARN_STACK" default:"false"`
	LogFile      string `envconfig:"WISHLIST_LOG_FILE"`

	CORSOrigins []string `envconfig:"WISHLIST_CORS_ORIGINS"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"WISHLIST_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"WISHLIST_DB_DSN"`
	Driver string `envconfig:"WISHLIST_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"WISHLIST_DB_HOST"`
	LegacyPort     int    `envconfig:"WISHLIST_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"WISHLIST_DB_USER"`
	LegacyPassword string `envconfig:"WISHLIST_DB_PASSWORD"`
	LegacyName     string `envconfig:"WISHLIST_DB_NAME"`
	LegacySSLMode  string `envconfig:"WISHLIST_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"WISHLIST_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"WISHLIST_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"WISHLIST_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"WISHLIST_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"WISHLIST_REDIS_URL" required:"true"`
	Address      string        `envconfig:"WISHLIST_REDIS_ADDR"`
	Password     string        `envconfig:"WISHLIST_REDIS_PASSWORD"`
	DB           int           `envconfig:"WISHLIST_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"WISHLIST_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"WISHLIST_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"WISHLIST_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"WISHLIST_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"WISHLIST_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"WISHLIST_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"WISHLIST_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"WISHLIST_JWT_EXPIRATION_MINUTES" default:"60"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"WISHLIST_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"WISHLIST_AUTO_MIGRATE" default:"false"`
	PubSubAlert bool `envconfig:"WISHLIST_FEATURE_PUBSUB_ALERTS" default:"false"`

	// BigQueryAlerts streams every fired alert into the audit table.
	BigQueryAlerts bool `envconfig:"WISHLIST_FEATURE_BIGQUERY_ALERTS" default:"false"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"WISHLIST_GCP_PROJECT_ID"`
	CredentialsJSON        string `envconfig:"WISHLIST_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"WISHLIST_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	NotificationTopic string `envconfig:"WISHLIST_PUBSUB_NOTIFICATION_TOPIC" default:"wishlist-alerts"`
}

type BigQueryConfig struct {
	Dataset     string `envconfig:"WISHLIST_BIGQUERY_DATASET" default:"wishlist"`
	AlertsTable string `envconfig:"WISHLIST_BIGQUERY_ALERTS_TABLE" default:"alert_events"`
}

// SyncConfig drives the client-side synchronization engine.
type SyncConfig struct {
	RemoteBaseURL   string        `envconfig:"WISHLIST_SYNC_REMOTE_BASE_URL" default:"http://localhost:8080"`
	CallTimeout     time.Duration `envconfig:"WISHLIST_SYNC_CALL_TIMEOUT" default:"10s"`
	GuestStorePath  string        `envconfig:"WISHLIST_SYNC_GUEST_STORE_PATH" default:".wishlist/guest.json"`
	GuestSessionTTL time.Duration `envconfig:"WISHLIST_SYNC_GUEST_SESSION_TTL" default:"720h"`
	RateLimitRPS    float64       `envconfig:"WISHLIST_SYNC_RATE_LIMIT_RPS" default:"10"`
	RateLimitBurst  int           `envconfig:"WISHLIST_SYNC_RATE_LIMIT_BURST" default:"20"`
	RetryAttempts   uint          `envconfig:"WISHLIST_SYNC_RETRY_ATTEMPTS" default:"3"`
	RetryDelay      time.Duration `envconfig:"WISHLIST_SYNC_RETRY_DELAY" default:"200ms"`
	AccessToken     string        `envconfig:"WISHLIST_SYNC_ACCESS_TOKEN"`
}

type ShareConfig struct {
	TTL          time.Duration `envconfig:"WISHLIST_SHARE_TTL" default:"720h"`
	ViewCacheTTL time.Duration `envconfig:"WISHLIST_SHARE_VIEW_CACHE_TTL" default:"5m"`
	PublicURL    string        `envconfig:"WISHLIST_SHARE_PUBLIC_URL" default:"http://localhost:8080/api/public/shares"`

	ViewRateLimit  int           `envconfig:"WISHLIST_SHARE_VIEW_RATE_LIMIT" default:"60"`
	ViewRateWindow time.Duration `envconfig:"WISHLIST_SHARE_VIEW_RATE_WINDOW" default:"1m"`
}

type CronConfig struct {
	Interval         time.Duration `envconfig:"WISHLIST_CRON_INTERVAL" default:"15m"`
	LockTTL          time.Duration `envconfig:"WISHLIST_CRON_LOCK_TTL" default:"10m"`
	PriceWatchWorker int           `envconfig:"WISHLIST_CRON_PRICE_WATCH_WORKERS" default:"4"`
	NotificationTTL  time.Duration `envconfig:"WISHLIST_CRON_NOTIFICATION_TTL" default:"720h"`
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

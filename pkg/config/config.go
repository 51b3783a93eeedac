package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	EnvPrefix = "crewdesk"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvDBDSN  = "CREWDESK_DB_DSN"
	EnvDBHost = "CREWDESK_DB_HOST"
	EnvDBUser = "CREWDESK_DB_USER"
	EnvDBName = "CREWDESK_DB_NAME"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}

type Config struct {
	App           AppConfig
	DB            DBConfig
	Redis         RedisConfig
	JWT           JWTConfig
	Password      PasswordConfig
	AuthRateLimit AuthRateLimitConfig
	Session       SessionConfig
	Kiosk         KioskConfig
	FeatureFlags  FeatureFlagsConfig
}

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

type AppConfig struct {
	Env          string `envconfig:"CREWDESK_APP_ENV" required:"true"`
	Port         string `envconfig:"CREWDESK_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"CREWDESK_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"CREWDESK_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN    string `envconfig:"CREWDESK_DB_DSN"`
	Driver string `envconfig:"CREWDESK_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"CREWDESK_DB_HOST"`
	LegacyPort     int    `envconfig:"CREWDESK_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"CREWDESK_DB_USER"`
	LegacyPassword string `envconfig:"CREWDESK_DB_PASSWORD"`
	LegacyName     string `envconfig:"CREWDESK_DB_NAME"`
	LegacySSLMode  string `envconfig:"CREWDESK_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"CREWDESK_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"CREWDESK_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"CREWDESK_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"CREWDESK_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"CREWDESK_REDIS_URL" required:"true"`
	Address      string        `envconfig:"CREWDESK_REDIS_ADDR"`
	Password     string        `envconfig:"CREWDESK_REDIS_PASSWORD"`
	DB           int           `envconfig:"CREWDESK_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"CREWDESK_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"CREWDESK_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"CREWDESK_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"CREWDESK_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"CREWDESK_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret                 string `envconfig:"CREWDESK_JWT_SECRET" required:"true"`
	Issuer                 string `envconfig:"CREWDESK_JWT_ISSUER" required:"true"`
	ExpirationMinutes      int    `envconfig:"CREWDESK_JWT_EXPIRATION_MINUTES" required:"true"`
	RefreshTokenTTLMinutes int    `envconfig:"CREWDESK_REFRESH_TOKEN_TTL_MINUTES" default:"43200"`
}

// RefreshTokenTTL returns the refresh token TTL configured in minutes.
func (j JWTConfig) RefreshTokenTTL() time.Duration {
	if j.RefreshTokenTTLMinutes <= 0 {
		return 0
	}
	return time.Duration(j.RefreshTokenTTLMinutes) * time.Minute
}

type PasswordConfig struct {
	ArgonMemoryKB    int `envconfig:"CREWDESK_ARGON_MEMORY_KB" default:"65536"`
	ArgonTime        int `envconfig:"CREWDESK_ARGON_TIME" default:"3"`
	ArgonParallelism int `envconfig:"CREWDESK_ARGON_PARALLELISM" default:"2"`
	ArgonSaltLen     int `envconfig:"CREWDESK_ARGON_SALT_LEN" default:"16"`
	ArgonKeyLen      int `envconfig:"CREWDESK_ARGON_KEY_LEN" default:"32"`
}

type AuthRateLimitConfig struct {
	LoginWindow        time.Duration `envconfig:"CREWDESK_AUTH_RATE_LIMIT_LOGIN_WINDOW" default:"1m"`
	LoginEmailLimit    int           `envconfig:"CREWDESK_AUTH_RATE_LIMIT_LOGIN_EMAIL_LIMIT" default:"5"`
	LoginIPLimit       int           `envconfig:"CREWDESK_AUTH_RATE_LIMIT_LOGIN_IP_LIMIT" default:"20"`
	RegisterWindow     time.Duration `envconfig:"CREWDESK_AUTH_RATE_LIMIT_REGISTER_WINDOW" default:"5m"`
	RegisterEmailLimit int           `envconfig:"CREWDESK_AUTH_RATE_LIMIT_REGISTER_EMAIL_LIMIT" default:"3"`
	RegisterIPLimit    int           `envconfig:"CREWDESK_AUTH_RATE_LIMIT_REGISTER_IP_LIMIT" default:"20"`
}

// SessionConfig governs the inactivity watchdog thresholds. The forced-logout
// threshold is measured from the same last-activity instant as the warning.
type SessionConfig struct {
	InactivityWarning time.Duration `envconfig:"CREWDESK_SESSION_INACTIVITY_WARNING" default:"5m"`
	InactivityTimeout time.Duration `envconfig:"CREWDESK_SESSION_INACTIVITY_TIMEOUT" default:"10m"`
}

func (s SessionConfig) Validate() error {
	if s.InactivityWarning <= 0 || s.InactivityTimeout <= 0 {
		return fmt.Errorf("inactivity thresholds must be positive")
	}
	if s.InactivityTimeout <= s.InactivityWarning {
		return fmt.Errorf("inactivity timeout (%s) must exceed warning (%s)", s.InactivityTimeout, s.InactivityWarning)
	}
	return nil
}

type KioskConfig struct {
	DeviceID  string `envconfig:"CREWDESK_KIOSK_DEVICE_ID" default:"kiosk-local"`
	Addr      string `envconfig:"CREWDESK_KIOSK_ADDR" default:"127.0.0.1:8490"`
	LoginPath string `envconfig:"CREWDESK_KIOSK_LOGIN_PATH" default:"/login"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"CREWDESK_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"CREWDESK_AUTO_MIGRATE" default:"false"`
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

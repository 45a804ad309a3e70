package discoveryd

import (
	"fmt"

	"github.com/joho/godotenv"

	"github.com/user/paybeacon/util"
)

// Config aggregates runtime configuration for the discovery daemon.
type Config struct {
	App      AppConfig
	Redis    RedisConfig
	Postgres PostgresConfig
	Auth     AuthConfig
	Logger   LoggerConfig
	Beacon   BeaconConfig
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name string
	Env  string
	Host string
	Port string
}

// RedisConfig holds Redis connection values for the token registry.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// PostgresConfig holds the profile store connection values. An empty DSN
// selects the in-memory profile store (development only).
type PostgresConfig struct {
	DSN           string
	RunMigrations bool
}

// AuthConfig defines bearer authentication parameters.
type AuthConfig struct {
	JWTSecret       string
	TokenTTLMinutes int
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level string
}

// BeaconConfig bounds beacon registrations and lookups.
type BeaconConfig struct {
	MaxTTLSeconds     int
	DefaultTTLSeconds int
	LookupBatchLimit  int
	LookupRateLimit   int
	RateWindowSeconds int
}

// Load reads configuration from environment variables, applying defaults.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		App: AppConfig{
			Name: util.GetEnv("APP_NAME", "paybeacon-discoveryd"),
			Env:  util.GetEnv("APP_ENV", "development"),
			Host: util.GetEnv("APP_HOST", "0.0.0.0"),
			Port: util.GetEnv("APP_PORT", "8080"),
		},
		Redis: RedisConfig{
			Addr:     util.GetEnv("REDIS_ADDR", "127.0.0.1:6379"),
			Password: util.GetEnv("REDIS_PASSWORD", ""),
			DB:       util.GetEnvInt("REDIS_DB", 0),
		},
		Postgres: PostgresConfig{
			DSN:           util.GetEnv("POSTGRES_DSN", ""),
			RunMigrations: util.GetEnvBool("POSTGRES_RUN_MIGRATIONS", true),
		},
		Auth: AuthConfig{
			JWTSecret:       util.GetEnv("AUTH_JWT_SECRET", "dev-secret"),
			TokenTTLMinutes: util.GetEnvInt("AUTH_TOKEN_TTL_MINUTES", 60),
		},
		Logger: LoggerConfig{
			Level: util.GetEnv("LOG_LEVEL", "info"),
		},
		Beacon: BeaconConfig{
			MaxTTLSeconds:     util.GetEnvInt("BEACON_MAX_TTL_SECONDS", 600),
			DefaultTTLSeconds: util.GetEnvInt("BEACON_DEFAULT_TTL_SECONDS", 300),
			LookupBatchLimit:  util.GetEnvInt("BEACON_LOOKUP_BATCH_LIMIT", 20),
			LookupRateLimit:   util.GetEnvInt("BEACON_LOOKUP_RATE_LIMIT", 60),
			RateWindowSeconds: util.GetEnvInt("BEACON_RATE_WINDOW_SECONDS", 60),
		},
	}

	if cfg.Beacon.MaxTTLSeconds <= 0 {
		return nil, fmt.Errorf("BEACON_MAX_TTL_SECONDS must be positive")
	}
	if cfg.Beacon.DefaultTTLSeconds > cfg.Beacon.MaxTTLSeconds {
		cfg.Beacon.DefaultTTLSeconds = cfg.Beacon.MaxTTLSeconds
	}

	return cfg, nil
}

// Addr returns the HTTP bind address.
func (a AppConfig) Addr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.Port)
}

package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

// Config holds all runtime settings. Struct defaults are applied first,
// then environment variables override them.
type Config struct {
	Port        string `default:"8080"`
	Environment string `default:"development"`
	LogLevel    string `default:"info"`

	DatabaseURL string
	DBHost      string
	DBPort      string `default:"5432"`
	DBUser      string `default:"postgres"`
	DBPassword  string
	DBName      string `default:"signals_db"`
	DBSSLMode   string `default:"disable"`

	JWTSecret     string        `default:"change-me-in-production"`
	JWTExpiration time.Duration `default:"24h"`
	WebhookSecret string

	RedisURL       string
	MongoURI       string
	MongoDatabase  string `default:"signals_archive"`
	BinanceAPIKey  string
	BinanceSecret  string
	BinanceBaseURL string

	WSMaxClients        int `default:"0"`
	SignalRetentionDays int `default:"90"`

	AdminEmail    string `default:"admin@signals.local"`
	AdminPassword string
	CORSOrigins   []string
}

var AppConfig *Config

// LoadConfig loads environment variables
func LoadConfig() (*Config, error) {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Debug().Msg("No .env file found, using environment variables")
	}

	cfg := &Config{}
	if err := defaults.Set(cfg); err != nil {
		return nil, err
	}

	cfg.Port = getEnv("PORT", cfg.Port)
	cfg.Environment = getEnv("ENVIRONMENT", cfg.Environment)
	cfg.LogLevel = getEnv("LOG_LEVEL", cfg.LogLevel)

	cfg.DatabaseURL = getEnv("DATABASE_URL", cfg.DatabaseURL)
	cfg.DBHost = getEnv("DB_HOST", cfg.DBHost)
	cfg.DBPort = getEnv("DB_PORT", cfg.DBPort)
	cfg.DBUser = getEnv("DB_USER", cfg.DBUser)
	cfg.DBPassword = getEnv("DB_PASSWORD", cfg.DBPassword)
	cfg.DBName = getEnv("DB_NAME", cfg.DBName)
	cfg.DBSSLMode = getEnv("DB_SSLMODE", cfg.DBSSLMode)

	cfg.JWTSecret = getEnv("JWT_SECRET", cfg.JWTSecret)
	cfg.JWTExpiration = getEnvDuration("JWT_EXPIRATION", cfg.JWTExpiration)
	cfg.WebhookSecret = getEnv("WEBHOOK_SECRET", cfg.WebhookSecret)

	cfg.RedisURL = getEnv("REDIS_URL", cfg.RedisURL)
	cfg.MongoURI = getEnv("MONGODB_URI", cfg.MongoURI)
	cfg.MongoDatabase = getEnv("MONGODB_DATABASE", cfg.MongoDatabase)
	cfg.BinanceAPIKey = getEnv("BINANCE_API_KEY", cfg.BinanceAPIKey)
	cfg.BinanceSecret = getEnv("BINANCE_SECRET_KEY", cfg.BinanceSecret)
	cfg.BinanceBaseURL = getEnv("BINANCE_BASE_URL", cfg.BinanceBaseURL)

	cfg.WSMaxClients = getEnvInt("WS_MAX_CLIENTS", cfg.WSMaxClients)
	cfg.SignalRetentionDays = getEnvInt("SIGNAL_RETENTION_DAYS", cfg.SignalRetentionDays)

	cfg.AdminEmail = getEnv("ADMIN_EMAIL", cfg.AdminEmail)
	cfg.AdminPassword = getEnv("ADMIN_PASSWORD", cfg.AdminPassword)
	cfg.CORSOrigins = splitAndTrim(getEnv("CORS_ORIGINS", ""), ",")

	AppConfig = cfg
	return cfg, nil
}

// IsProduction reports whether the service runs in production mode
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// UsesInMemoryDB reports whether no database was configured
func (c *Config) UsesInMemoryDB() bool {
	return c.DatabaseURL == "" && c.DBHost == ""
}

// getEnv gets an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		log.Warn().Str("key", key).Str("value", value).Msg("Invalid integer in environment, using default")
		return defaultValue
	}
	return n
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		log.Warn().Str("key", key).Str("value", value).Msg("Invalid duration in environment, using default")
		return defaultValue
	}
	return d
}

func splitAndTrim(s, sep string) []string {
	var out []string
	for _, part := range strings.Split(s, sep) {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

package config

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var DB *gorm.DB

// InitDB opens PostgreSQL when a database is configured and falls back to
// an in-memory SQLite database otherwise.
func InitDB(cfg *Config) (*gorm.DB, error) {
	var logLevel logger.LogLevel
	if cfg.IsProduction() {
		logLevel = logger.Error
	} else {
		logLevel = logger.Warn
	}
	gormCfg := &gorm.Config{
		Logger:         logger.Default.LogMode(logLevel),
		TranslateError: true,
	}

	if cfg.UsesInMemoryDB() {
		log.Warn().Msg("No database configured, using in-memory store (data is lost on restart)")
		db, err := OpenInMemoryDB(gormCfg)
		if err != nil {
			return nil, err
		}
		DB = db
		return db, nil
	}

	dsn := cfg.DatabaseURL
	if dsn == "" {
		log.Info().
			Str("host", maskHost(cfg.DBHost)).
			Str("port", cfg.DBPort).
			Str("user", cfg.DBUser).
			Str("dbname", cfg.DBName).
			Msg("Connecting to database")

		dsn = fmt.Sprintf(
			"host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=UTC",
			cfg.DBHost, cfg.DBUser, cfg.DBPassword, cfg.DBName, cfg.DBPort, cfg.DBSSLMode,
		)
	}

	db, err := gorm.Open(postgres.Open(dsn), gormCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database: %w", err)
	}
	sqlDB.SetMaxOpenConns(20)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)

	if err := CheckDatabase(context.Background(), sqlDB); err != nil {
		return nil, err
	}

	log.Info().Msg("Database connection verified successfully")
	DB = db
	return db, nil
}

// OpenInMemoryDB opens a private SQLite database living in memory. A single
// connection is kept so every query sees the same database.
func OpenInMemoryDB(gormCfg *gorm.Config) (*gorm.DB, error) {
	if gormCfg == nil {
		gormCfg = &gorm.Config{
			Logger:         logger.Default.LogMode(logger.Silent),
			TranslateError: true,
		}
	}

	db, err := gorm.Open(sqlite.Open("file::memory:?_foreign_keys=on"), gormCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open in-memory database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetConnMaxLifetime(0)

	return db, nil
}

// CheckDatabase pings the database with a short timeout
func CheckDatabase(ctx context.Context, sqlDB *sql.DB) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := sqlDB.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	return nil
}

// CloseDB closes the global connection, if any
func CloseDB() {
	if DB == nil {
		return
	}
	sqlDB, err := DB.DB()
	if err == nil {
		sqlDB.Close()
		log.Info().Msg("Database connection closed")
	}
}

// maskHost masks host for logging, preserving domain structure
func maskHost(host string) string {
	if len(host) <= 3 {
		return "***"
	}
	if len(host) <= 15 {
		return host[:3] + "***"
	}
	return host[:8] + "***" + host[len(host)-10:]
}

package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"crypto_signals_backend/config"
	"crypto_signals_backend/middleware"
	"crypto_signals_backend/models"
	"crypto_signals_backend/routes"
	"crypto_signals_backend/scheduler"
	"crypto_signals_backend/services/archive"
	"crypto_signals_backend/services/cache"
	"crypto_signals_backend/services/forecast"
	"crypto_signals_backend/services/hub"
	"crypto_signals_backend/services/market"
	"crypto_signals_backend/services/signals"
	"crypto_signals_backend/validators"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// dbReady is flipped once migrations finish so /ready can report it
var dbReady atomic.Bool

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	config.InitLogger(cfg)

	log.Info().Str("environment", cfg.Environment).Msg("Signals API starting...")

	// Set Gin mode based on environment
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize database connection
	db, err := config.InitDB(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Database connection failed")
	}

	log.Info().Msg("Running database migrations...")
	if err := models.MigrateAll(db); err != nil {
		log.Fatal().Err(err).Msg("Migration failed")
	}
	dbReady.Store(true)

	if seeded, err := models.SeedDefaultAdminUser(db, cfg.AdminEmail, cfg.AdminPassword); err != nil {
		log.Warn().Err(err).Msg("Could not seed admin user")
	} else if seeded {
		log.Info().Str("email", cfg.AdminEmail).Msg("Seeded default admin user")
	}

	validators.Register()

	// WebSocket hub, fanned out through Redis when configured
	wsHub := hub.New(cfg.WSMaxClients)
	var publisher hub.Publisher = wsHub
	memCache := cache.NewMemoryCache()
	defer memCache.Close()
	var priceCache cache.Cache = memCache

	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		redisClient, err = cache.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			log.Warn().Err(err).Msg("Redis unavailable, using in-process cache and broadcast")
		} else {
			priceCache = cache.NewRedisCache(redisClient, "signals:")
			relay := hub.NewRedisRelay(redisClient, wsHub)
			publisher = relay
			go func() {
				if err := relay.Run(ctx); err != nil {
					log.Error().Err(err).Msg("Redis relay stopped")
				}
			}()
		}
	}

	alertArchive, err := archive.Open(ctx, cfg.MongoURI, cfg.MongoDatabase)
	if err != nil {
		log.Warn().Err(err).Msg("Alert archive unavailable, continuing without it")
		alertArchive = archive.Noop{}
	}

	exchange := market.NewBinanceExchange(cfg.BinanceAPIKey, cfg.BinanceSecret, cfg.BinanceBaseURL)
	marketService := market.NewService(exchange, db, priceCache)
	signalService := signals.NewService(db, publisher)
	forecastService := forecast.NewService(db, marketService)

	loginLimiter := middleware.NewRateLimiter(5, 15*time.Minute, 15*time.Minute)
	go loginLimiter.StartCleanup(ctx)

	// Create Gin router
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.CORS(cfg.CORSOrigins))
	router.Use(middleware.RequestLogger())
	router.Use(middleware.Metrics())

	setupHealthEndpoints(router)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	routes.SetupRoutes(router, routes.Dependencies{
		DB:            db,
		Tokens:        middleware.NewTokenManager(cfg.JWTSecret, cfg.JWTExpiration),
		LoginLimiter:  loginLimiter,
		Hub:           wsHub,
		Publisher:     publisher,
		Signals:       signalService,
		Market:        marketService,
		Forecasts:     forecastService,
		Archive:       alertArchive,
		WebhookSecret: cfg.WebhookSecret,
	})

	jobScheduler := scheduler.NewScheduler(db, marketService, forecastService, signalService, cfg.SignalRetentionDays)
	if err := jobScheduler.Start(); err != nil {
		log.Error().Err(err).Msg("Failed to start scheduler")
	}

	server := &http.Server{
		Addr:              "0.0.0.0:" + cfg.Port,
		Handler:           router,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		MaxHeaderBytes:    1 << 20, // 1 MB
	}

	go func() {
		log.Info().Str("addr", server.Addr).Msg("Server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Server error")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down gracefully...")

	// Stop scheduler first
	jobScheduler.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	wsHub.Shutdown()

	if err := alertArchive.Close(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("Failed to close alert archive")
	}
	if redisClient != nil {
		redisClient.Close()
	}
	config.CloseDB()

	log.Info().Msg("Server shutdown completed")
}

// setupHealthEndpoints sets up liveness, readiness and startup probes
func setupHealthEndpoints(router *gin.Engine) {
	router.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"message": "Crypto Signals API",
			"version": "1.0.0",
		})
	})

	// Liveness probe - always returns OK if server is running
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// Readiness probe - checks the database is reachable
	router.GET("/ready", func(c *gin.Context) {
		if !dbReady.Load() || config.DB == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":  "not_ready",
				"message": "Database not connected",
			})
			return
		}

		sqlDB, err := config.DB.DB()
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":  "not_ready",
				"message": "Database connection error",
			})
			return
		}
		if err := config.CheckDatabase(c.Request.Context(), sqlDB); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":  "not_ready",
				"message": "Database ping failed",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})

	router.GET("/startup", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "started"})
	})
}

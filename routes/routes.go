package routes

import (
	"crypto_signals_backend/admin"
	"crypto_signals_backend/controllers"
	"crypto_signals_backend/middleware"
	"crypto_signals_backend/models"
	"crypto_signals_backend/services/archive"
	"crypto_signals_backend/services/forecast"
	"crypto_signals_backend/services/hub"
	"crypto_signals_backend/services/market"
	"crypto_signals_backend/services/signals"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// Dependencies bundles what the HTTP layer needs from the rest of the app
type Dependencies struct {
	DB            *gorm.DB
	Tokens        *middleware.TokenManager
	LoginLimiter  *middleware.RateLimiter
	Hub           *hub.Hub
	Publisher     hub.Publisher
	Signals       *signals.Service
	Market        *market.Service
	Forecasts     *forecast.Service
	Archive       archive.Archive
	WebhookSecret string
}

// SetupRoutes sets up all API routes
func SetupRoutes(router *gin.Engine, deps Dependencies) {
	db := deps.DB
	publisher := deps.Publisher
	if publisher == nil && deps.Hub != nil {
		publisher = deps.Hub
	}

	// Initialize controllers
	authController := controllers.NewAuthController(db, deps.Tokens, deps.LoginLimiter)
	userController := controllers.NewUserController(db)
	tickerController := controllers.NewTickerController(db)
	signalController := controllers.NewSignalController(deps.Signals)
	chartController := controllers.NewChartController(deps.Market)
	forecastController := controllers.NewForecastController(deps.Forecasts)
	notificationController := controllers.NewNotificationController(db)
	webhookController := controllers.NewWebhookController(deps.WebhookSecret, deps.Signals, deps.Archive)

	// Initialize admin controllers
	var hubStats admin.HubStats
	if deps.Hub != nil {
		hubStats = deps.Hub
	}
	adminController := admin.NewAdminController(db, hubStats, deps.Archive)
	userManagementController := admin.NewUserManagementController(db)
	adminTickerController := admin.NewTickerController(db)
	adminSignalController := admin.NewSignalController(db, deps.Signals)
	adminNotificationController := admin.NewNotificationController(db, publisher)

	if deps.Hub != nil {
		router.GET("/ws", deps.Hub.ServeWS)
	}

	api := router.Group("/api")
	{
		// Auth routes (public)
		auth := api.Group("/auth")
		{
			auth.POST("/register", authController.Register)
			if deps.LoginLimiter != nil {
				auth.POST("/login", middleware.LoginRateLimitMiddleware(deps.LoginLimiter), authController.Login)
			} else {
				auth.POST("/login", authController.Login)
			}
			auth.POST("/refresh", middleware.JWTAuthMiddleware(deps.Tokens), authController.Refresh)
			auth.GET("/me", middleware.JWTAuthMiddleware(deps.Tokens), authController.Me)
		}

		// Webhooks authenticate with a shared secret instead of a token
		api.POST("/webhook/tradingview", webhookController.TradingView)

		protected := api.Group("")
		protected.Use(middleware.JWTAuthMiddleware(deps.Tokens), middleware.AccountStatusMiddleware(db))
		{
			user := protected.Group("/user")
			{
				user.GET("/settings", userController.GetSettings)
				user.PUT("/settings", userController.UpdateSettings)
				user.PUT("/profile", userController.UpdateProfile)
				user.PUT("/password", userController.ChangePassword)
			}

			protected.GET("/tickers", tickerController.GetTickers)
			protected.GET("/tickers/:symbol", tickerController.GetTicker)

			protected.GET("/signals", signalController.GetSignals)
			protected.GET("/signals/latest", signalController.GetLatestSignals)
			protected.GET("/signals/:id", signalController.GetSignal)

			charts := protected.Group("/charts/:symbol")
			{
				charts.GET("/klines", chartController.GetKlines)
				charts.GET("/price", chartController.GetPrice)
				charts.GET("/indicators", chartController.GetIndicators)
			}

			forecasts := protected.Group("/forecasts/:symbol")
			{
				forecasts.GET("/cycle", forecastController.ForecastHandler(models.ForecastCycle))
				forecasts.GET("/elliott", forecastController.ForecastHandler(models.ForecastElliott))
				forecasts.GET("/gann", forecastController.ForecastHandler(models.ForecastGann))
			}
			protected.GET("/heatmap", forecastController.GetHeatmap)

			protected.GET("/notifications", notificationController.GetNotifications)
		}

		adminGroup := api.Group("/admin")
		adminGroup.Use(
			middleware.JWTAuthMiddleware(deps.Tokens),
			middleware.AccountStatusMiddleware(db),
			middleware.AdminRoleMiddleware(),
		)
		{
			users := adminGroup.Group("/users")
			{
				users.GET("", userManagementController.ListUsers)
				users.POST("", userManagementController.CreateUser)
				users.GET("/:id", userManagementController.GetUser)
				users.PUT("/:id", userManagementController.UpdateUser)
				users.DELETE("/:id", userManagementController.DeleteUser)
			}

			tickers := adminGroup.Group("/tickers")
			{
				tickers.GET("", adminTickerController.ListTickers)
				tickers.POST("", adminTickerController.CreateTicker)
				tickers.PUT("/:id", adminTickerController.UpdateTicker)
				tickers.DELETE("/:id", adminTickerController.DeleteTicker)
			}

			signalRoutes := adminGroup.Group("/signals")
			{
				signalRoutes.GET("", adminSignalController.ListSignals)
				signalRoutes.POST("", adminSignalController.CreateSignal)
				signalRoutes.DELETE("/:id", adminSignalController.DeleteSignal)
			}

			notifications := adminGroup.Group("/notifications")
			{
				notifications.GET("", adminNotificationController.ListNotifications)
				notifications.POST("", adminNotificationController.CreateNotification)
				notifications.PUT("/:id", adminNotificationController.UpdateNotification)
				notifications.DELETE("/:id", adminNotificationController.DeleteNotification)
				notifications.POST("/:id/publish", adminNotificationController.PublishNotification)
			}

			adminGroup.GET("/analytics", adminController.Analytics)
			adminGroup.GET("/logs", adminController.Logs)
			adminGroup.GET("/ws/status", adminController.WSStatus)
			adminGroup.GET("/webhook/alerts", adminController.WebhookAlerts)
		}
	}
}

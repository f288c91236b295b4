package admin

import (
	"net/http"
	"strconv"
	"time"

	"crypto_signals_backend/controllers"
	"crypto_signals_backend/models"
	"crypto_signals_backend/services/archive"
	"crypto_signals_backend/services/hub"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// HubStats is the part of the hub the admin API reads
type HubStats interface {
	Stats() hub.Stats
}

// AdminController serves analytics, audit logs and runtime status
type AdminController struct {
	db      *gorm.DB
	hub     HubStats
	archive archive.Archive
}

// NewAdminController creates a new admin controller
func NewAdminController(db *gorm.DB, h HubStats, arc archive.Archive) *AdminController {
	if arc == nil {
		arc = archive.Noop{}
	}
	return &AdminController{db: db, hub: h, archive: arc}
}

type groupCount struct {
	Name  string `json:"name"`
	Count int64  `json:"count"`
}

// Analytics handles GET /api/admin/analytics
func (ac *AdminController) Analytics(c *gin.Context) {
	var (
		userTotal, activeUsers, tickerCount, activeTickers int64
		signalTotal, signals24h, notificationCount      int64
		byRole, byAction, bySource                      []groupCount
	)

	db := ac.db.WithContext(c.Request.Context())
	since := time.Now().UTC().Add(-24 * time.Hour)
	queries := []*gorm.DB{
		db.Model(&models.User{}).Count(&userTotal),
		db.Model(&models.User{}).Where("is_active = ?", true).Count(&activeUsers),
		db.Model(&models.User{}).Select("role AS name, COUNT(*) AS count").Group("role").Scan(&byRole),

		db.Model(&models.Ticker{}).Count(&tickerCount),
		db.Model(&models.Ticker{}).Where("is_active = ?", true).Count(&activeTickers),

		db.Model(&models.Signal{}).Count(&signalTotal),
		db.Model(&models.Signal{}).Where("signal_time >= ?", since).Count(&signals24h),
		db.Model(&models.Signal{}).Select("action AS name, COUNT(*) AS count").Group("action").Scan(&byAction),
		db.Model(&models.Signal{}).Select("source AS name, COUNT(*) AS count").Group("source").Scan(&bySource),

		db.Model(&models.Notification{}).Where("published_at IS NOT NULL").Count(&notificationCount),
	}
	for _, q := range queries {
		if q.Error != nil {
			log.Error().Err(q.Error).Msg("Failed to compute analytics")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to compute analytics"})
			return
		}
	}

	data := gin.H{
		"users": gin.H{
			"total":   userTotal,
			"active":  activeUsers,
			"by_role": byRole,
		},
		"tickers": gin.H{
			"total":  tickerCount,
			"active": activeTickers,
		},
		"signals": gin.H{
			"total":     signalTotal,
			"last_24h":  signals24h,
			"by_action": byAction,
			"by_source": bySource,
		},
		"notifications_published": notificationCount,
	}
	if ac.hub != nil {
		data["websocket"] = ac.hub.Stats()
	}

	c.JSON(http.StatusOK, gin.H{"data": data})
}

// Logs handles GET /api/admin/logs?entity=ticker&admin_id=1
func (ac *AdminController) Logs(c *gin.Context) {
	page, limit := controllers.ParsePagination(c)

	query := ac.db.Model(&models.AdminLog{})
	if entity := c.Query("entity"); entity != "" {
		query = query.Where("entity = ?", entity)
	}
	if action := c.Query("action"); action != "" {
		query = query.Where("action = ?", action)
	}
	if adminID, err := strconv.ParseUint(c.Query("admin_id"), 10, 64); err == nil {
		query = query.Where("admin_id = ?", adminID)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch logs"})
		return
	}

	var logs []models.AdminLog
	if err := query.Preload("Admin").Order("created_at DESC, id DESC").Limit(limit).Offset((page - 1) * limit).Find(&logs).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch logs"})
		return
	}

	controllers.Paginated(c, logs, page, limit, total)
}

// WSStatus handles GET /api/admin/ws/status
func (ac *AdminController) WSStatus(c *gin.Context) {
	if ac.hub == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "WebSocket hub not running"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": ac.hub.Stats()})
}

// WebhookAlerts handles GET /api/admin/webhook/alerts
func (ac *AdminController) WebhookAlerts(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	alerts, err := ac.archive.Recent(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "Failed to read alert archive"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data":    alerts,
		"count":   len(alerts),
		"archive": ac.archive.Status(),
	})
}

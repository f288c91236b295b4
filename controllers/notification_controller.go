package controllers

import (
	"net/http"

	"crypto_signals_backend/middleware"
	"crypto_signals_backend/models"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// NotificationController lists published notifications for users
type NotificationController struct {
	db *gorm.DB
}

// NewNotificationController creates a new notification controller
func NewNotificationController(db *gorm.DB) *NotificationController {
	return &NotificationController{db: db}
}

// GetNotifications lists published notifications visible to the caller
// GET /api/notifications
func (nc *NotificationController) GetNotifications(c *gin.Context) {
	claims, ok := middleware.GetClaims(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	page, limit := ParsePagination(c)

	query := nc.db.Model(&models.Notification{}).
		Where("published_at IS NOT NULL").
		Where("audience IN ?", models.AudiencesForRole(claims.Role))

	var total int64
	if err := query.Count(&total).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch notifications"})
		return
	}

	var list []models.Notification
	if err := query.Order("published_at DESC").Limit(limit).Offset((page - 1) * limit).Find(&list).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch notifications"})
		return
	}

	Paginated(c, list, page, limit, total)
}

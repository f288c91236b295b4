package admin

import (
	"context"
	"net/http"
	"strings"
	"time"

	"crypto_signals_backend/controllers"
	"crypto_signals_backend/middleware"
	"crypto_signals_backend/models"
	"crypto_signals_backend/services/hub"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// NotificationController manages announcements and their broadcast
type NotificationController struct {
	db        *gorm.DB
	publisher hub.Publisher
}

// NewNotificationController creates a new admin notification controller
func NewNotificationController(db *gorm.DB, publisher hub.Publisher) *NotificationController {
	return &NotificationController{db: db, publisher: publisher}
}

// ListNotifications handles GET /api/admin/notifications
func (nc *NotificationController) ListNotifications(c *gin.Context) {
	page, limit := controllers.ParsePagination(c)

	query := nc.db.Model(&models.Notification{})
	switch c.Query("status") {
	case "published":
		query = query.Where("published_at IS NOT NULL")
	case "draft":
		query = query.Where("published_at IS NULL")
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch notifications"})
		return
	}

	var list []models.Notification
	if err := query.Order("created_at DESC").Limit(limit).Offset((page - 1) * limit).Find(&list).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch notifications"})
		return
	}

	controllers.Paginated(c, list, page, limit, total)
}

// CreateNotification handles POST /api/admin/notifications
func (nc *NotificationController) CreateNotification(c *gin.Context) {
	var request struct {
		Title    string `json:"title" binding:"required,max=200"`
		Body     string `json:"body" binding:"max=5000"`
		Level    string `json:"level" binding:"omitempty,oneof=info warning alert"`
		Audience string `json:"audience" binding:"omitempty,oneof=all premium"`
	}
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	adminID, _ := middleware.GetUserID(c)
	n := models.Notification{
		Title:     strings.TrimSpace(request.Title),
		Body:      request.Body,
		Level:     request.Level,
		Audience:  request.Audience,
		CreatedBy: adminID,
	}
	if n.Level == "" {
		n.Level = models.LevelInfo
	}
	if n.Audience == "" {
		n.Audience = models.AudienceAll
	}

	if err := nc.db.Create(&n).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create notification"})
		return
	}

	recordAction(nc.db, c, ActionCreate, "notification", n.ID, gin.H{"title": n.Title})
	c.JSON(http.StatusCreated, gin.H{"data": n})
}

// UpdateNotification handles PUT /api/admin/notifications/:id
func (nc *NotificationController) UpdateNotification(c *gin.Context) {
	id, ok := controllers.ParseID(c, "id")
	if !ok {
		return
	}

	var n models.Notification
	if err := nc.db.First(&n, id).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Notification not found"})
		return
	}

	var request struct {
		Title    *string `json:"title" binding:"omitempty,min=1,max=200"`
		Body     *string `json:"body" binding:"omitempty,max=5000"`
		Level    *string `json:"level" binding:"omitempty,oneof=info warning alert"`
		Audience *string `json:"audience" binding:"omitempty,oneof=all premium"`
	}
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	updates := make(map[string]interface{})
	if request.Title != nil {
		updates["title"] = strings.TrimSpace(*request.Title)
	}
	if request.Body != nil {
		updates["body"] = *request.Body
	}
	if request.Level != nil {
		updates["level"] = *request.Level
	}
	if request.Audience != nil {
		updates["audience"] = *request.Audience
	}

	if len(updates) > 0 {
		if err := nc.db.Model(&n).Updates(updates).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update notification"})
			return
		}
		nc.db.First(&n, id)
	}

	recordAction(nc.db, c, ActionUpdate, "notification", n.ID, updates)
	c.JSON(http.StatusOK, gin.H{"data": n})
}

// DeleteNotification handles DELETE /api/admin/notifications/:id
func (nc *NotificationController) DeleteNotification(c *gin.Context) {
	id, ok := controllers.ParseID(c, "id")
	if !ok {
		return
	}

	result := nc.db.Delete(&models.Notification{}, id)
	if result.Error != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete notification"})
		return
	}
	if result.RowsAffected == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "Notification not found"})
		return
	}

	recordAction(nc.db, c, ActionDelete, "notification", id, nil)
	c.JSON(http.StatusOK, gin.H{"message": "Notification deleted"})
}

// PublishNotification handles POST /api/admin/notifications/:id/publish.
// It stamps published_at. Notifications for everyone are also pushed to
// WebSocket clients; /ws is anonymous, so premium ones stay REST-only.
func (nc *NotificationController) PublishNotification(c *gin.Context) {
	id, ok := controllers.ParseID(c, "id")
	if !ok {
		return
	}

	var n models.Notification
	if err := nc.db.First(&n, id).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Notification not found"})
		return
	}

	now := time.Now().UTC()
	if err := nc.db.Model(&n).Update("published_at", now).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to publish notification"})
		return
	}
	n.PublishedAt = &now

	broadcast := nc.publisher != nil && n.Audience == models.AudienceAll
	if broadcast {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
		defer cancel()
		if err := nc.publisher.Publish(ctx, hub.Envelope{Type: hub.TypeNotification, Notification: &n}); err != nil {
			log.Error().Err(err).Uint("notification_id", n.ID).Msg("Failed to broadcast notification")
		}
	}

	recordAction(nc.db, c, ActionPublish, "notification", n.ID, gin.H{"title": n.Title, "audience": n.Audience})
	c.JSON(http.StatusOK, gin.H{"data": n, "broadcast": broadcast})
}

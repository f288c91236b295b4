package admin

import (
	"encoding/json"

	"crypto_signals_backend/middleware"
	"crypto_signals_backend/models"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// Audit actions
const (
	ActionCreate  = "create"
	ActionUpdate  = "update"
	ActionDelete  = "delete"
	ActionPublish = "publish"
)

// recordAction writes an audit log entry for the calling admin. Failures
// are logged and never fail the request.
func recordAction(db *gorm.DB, c *gin.Context, action, entity string, entityID uint, details interface{}) {
	adminID, err := middleware.GetUserID(c)
	if err != nil {
		return
	}

	var detailText string
	switch d := details.(type) {
	case nil:
	case string:
		detailText = d
	default:
		if b, err := json.Marshal(d); err == nil {
			detailText = string(b)
		}
	}

	entry := models.AdminLog{
		AdminID:   adminID,
		Action:    action,
		Entity:    entity,
		EntityID:  entityID,
		Details:   detailText,
		IPAddress: c.ClientIP(),
	}
	if err := db.Create(&entry).Error; err != nil {
		log.Error().Err(err).Str("action", action).Str("entity", entity).Msg("Failed to write admin log")
	}
}

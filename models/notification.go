package models

import (
	"time"

	"gorm.io/gorm"
)

// Notification levels and audiences
const (
	LevelInfo    = "info"
	LevelWarning = "warning"
	LevelAlert   = "alert"

	AudienceAll     = "all"
	AudiencePremium = "premium"
)

// Notification is an announcement authored by an admin
type Notification struct {
	ID          uint       `gorm:"primaryKey" json:"id"`
	Title       string     `gorm:"not null" json:"title"`
	Body        string     `gorm:"type:text" json:"body"`
	Level       string     `gorm:"default:'info'" json:"level"`   // info, warning, alert
	Audience    string     `gorm:"default:'all'" json:"audience"` // all, premium
	PublishedAt *time.Time `gorm:"index" json:"published_at"`
	CreatedBy   uint       `json:"created_by"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// IsPublished reports whether the notification was broadcast
func (n *Notification) IsPublished() bool {
	return n.PublishedAt != nil
}

// IsValidLevel checks if the notification level is valid
func IsValidLevel(level string) bool {
	switch level {
	case LevelInfo, LevelWarning, LevelAlert:
		return true
	}
	return false
}

// IsValidAudience checks if the audience is valid
func IsValidAudience(audience string) bool {
	return audience == AudienceAll || audience == AudiencePremium
}

// AudiencesForRole returns the audiences a user with the given role can see
func AudiencesForRole(role string) []string {
	if role == RolePremium || role == RoleAdmin {
		return []string{AudienceAll, AudiencePremium}
	}
	return []string{AudienceAll}
}

// MigrateNotificationModels runs database migrations for notification models
func MigrateNotificationModels(db *gorm.DB) error {
	return db.AutoMigrate(&Notification{})
}

package models

import (
	"time"

	"gorm.io/gorm"
)

// AdminLog records a mutation performed by an administrator
type AdminLog struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	AdminID   uint      `gorm:"index" json:"admin_id"`
	Admin     *User     `gorm:"foreignKey:AdminID" json:"admin,omitempty"`
	Action    string    `gorm:"index;not null" json:"action"` // create, update, delete, publish
	Entity    string    `gorm:"index;not null" json:"entity"` // user, ticker, signal, notification
	EntityID  uint      `json:"entity_id"`
	Details   string    `gorm:"type:text" json:"details"`
	IPAddress string    `json:"ip_address"`
	CreatedAt time.Time `gorm:"index" json:"created_at"`
}

// MigrateAdminModels runs database migrations for admin-related models
func MigrateAdminModels(db *gorm.DB) error {
	return db.AutoMigrate(&AdminLog{})
}

// MigrateAll runs every model migration in dependency order
func MigrateAll(db *gorm.DB) error {
	migrations := []func(*gorm.DB) error{
		MigrateUserModels,
		MigrateTickerModels,
		MigrateSignalModels,
		MigrateForecastModels,
		MigrateNotificationModels,
		MigrateAdminModels,
	}
	for _, migrate := range migrations {
		if err := migrate(db); err != nil {
			return err
		}
	}
	return nil
}

package models

import (
	"time"

	"gorm.io/gorm"
)

// Forecast kinds
const (
	ForecastCycle   = "cycle"
	ForecastElliott = "elliott"
	ForecastGann    = "gann"
)

// Forecast stores a generated forecast for one symbol, kind and day
type Forecast struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Symbol    string    `gorm:"uniqueIndex:idx_forecast_key;not null" json:"symbol"`
	Kind      string    `gorm:"uniqueIndex:idx_forecast_key;not null" json:"kind"`
	Date      string    `gorm:"uniqueIndex:idx_forecast_key;not null" json:"date"` // YYYY-MM-DD, UTC
	Payload   string    `gorm:"type:text" json:"-"`                                // JSON document
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsValidForecastKind checks if the kind is known
func IsValidForecastKind(kind string) bool {
	switch kind {
	case ForecastCycle, ForecastElliott, ForecastGann:
		return true
	}
	return false
}

// MigrateForecastModels runs database migrations for forecast models
func MigrateForecastModels(db *gorm.DB) error {
	return db.AutoMigrate(&Forecast{})
}

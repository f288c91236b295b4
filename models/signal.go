package models

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Signal actions
const (
	ActionBuy  = "buy"
	ActionSell = "sell"
)

// Signal sources
const (
	SourceTradingView = "tradingview"
	SourceAdmin       = "admin"
)

// Signal represents a buy/sell event shown to users
type Signal struct {
	ID         uint            `gorm:"primaryKey" json:"id"`
	TickerID   *uint           `gorm:"index" json:"ticker_id,omitempty"`
	Ticker     *Ticker         `gorm:"foreignKey:TickerID;constraint:OnDelete:SET NULL" json:"ticker,omitempty"`
	Symbol     string          `gorm:"index;not null" json:"symbol"`
	Action     string          `gorm:"index;not null" json:"action"` // buy, sell
	Price      decimal.Decimal `gorm:"type:decimal(24,8)" json:"price"`
	Interval   string          `gorm:"column:timeframe" json:"interval,omitempty"`
	Strategy   string          `json:"strategy,omitempty"`
	Source     string          `gorm:"index;not null" json:"source"` // tradingview, admin
	Message    string          `json:"message,omitempty"`
	SignalTime time.Time       `gorm:"index" json:"signal_time"`
	CreatedBy  *uint           `json:"created_by,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
}

// NormalizeAction maps alert wording to a signal action. The second return
// value is false when the wording is not recognised.
func NormalizeAction(action string) (string, bool) {
	switch strings.ToLower(strings.TrimSpace(action)) {
	case "buy", "long":
		return ActionBuy, true
	case "sell", "short", "exit":
		return ActionSell, true
	}
	return "", false
}

// MigrateSignalModels runs database migrations for signal models
func MigrateSignalModels(db *gorm.DB) error {
	return db.AutoMigrate(&Signal{})
}

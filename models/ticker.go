package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Ticker represents a tradable pair followed by the service
type Ticker struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	Symbol      string    `gorm:"uniqueIndex;not null" json:"symbol"` // BTCUSDT
	BaseAsset   string    `json:"base_asset"`
	QuoteAsset  string    `json:"quote_asset"`
	Name        string    `json:"name"`
	Exchange    string    `gorm:"default:'binance'" json:"exchange"`
	IsActive    bool      `gorm:"default:true" json:"is_active"`
	IsPremium   bool      `gorm:"default:false" json:"is_premium"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// OHLCCandle is a cached candle from the exchange
type OHLCCandle struct {
	ID        uint            `gorm:"primaryKey" json:"-"`
	Symbol    string          `gorm:"uniqueIndex:idx_candle_key;not null" json:"symbol"`
	Interval  string          `gorm:"column:timeframe;uniqueIndex:idx_candle_key;not null" json:"interval"`
	OpenTime  time.Time       `gorm:"uniqueIndex:idx_candle_key;not null" json:"open_time"`
	CloseTime time.Time       `json:"close_time"`
	Open      decimal.Decimal `gorm:"type:decimal(24,8)" json:"open"`
	High      decimal.Decimal `gorm:"type:decimal(24,8)" json:"high"`
	Low       decimal.Decimal `gorm:"type:decimal(24,8)" json:"low"`
	Close     decimal.Decimal `gorm:"type:decimal(24,8)" json:"close"`
	Volume    decimal.Decimal `gorm:"type:decimal(32,8)" json:"volume"`
	CreatedAt time.Time       `json:"-"`
	UpdatedAt time.Time       `json:"-"`
}

// HeatmapSnapshot stores the 24h change of a ticker at snapshot time
type HeatmapSnapshot struct {
	ID            uint            `gorm:"primaryKey" json:"id"`
	Symbol        string          `gorm:"index;not null" json:"symbol"`
	LastPrice     decimal.Decimal `gorm:"type:decimal(24,8)" json:"last_price"`
	ChangePercent float64         `json:"change_percent"`
	QuoteVolume   decimal.Decimal `gorm:"type:decimal(32,8)" json:"quote_volume"`
	Source        string          `json:"source"` // exchange, mock
	TakenAt       time.Time       `gorm:"index" json:"taken_at"`
}

// MigrateTickerModels runs database migrations for ticker and market data models
func MigrateTickerModels(db *gorm.DB) error {
	return db.AutoMigrate(
		&Ticker{},
		&OHLCCandle{},
		&HeatmapSnapshot{},
	)
}

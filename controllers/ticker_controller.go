package controllers

import (
	"errors"
	"net/http"

	"crypto_signals_backend/models"
	"crypto_signals_backend/validators"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// TickerController serves the ticker catalogue to users
type TickerController struct {
	db *gorm.DB
}

// NewTickerController creates a new ticker controller
func NewTickerController(db *gorm.DB) *TickerController {
	return &TickerController{db: db}
}

// GetTickers lists active tickers
// GET /api/tickers?search=btc&premium=true
func (tc *TickerController) GetTickers(c *gin.Context) {
	page, limit := ParsePagination(c)

	query := tc.db.Model(&models.Ticker{}).Where("is_active = ?", true)
	if search := c.Query("search"); search != "" {
		like := "%" + search + "%"
		query = query.Where("LOWER(symbol) LIKE LOWER(?) OR LOWER(name) LIKE LOWER(?)", like, like)
	}
	if premium := c.Query("premium"); premium != "" {
		query = query.Where("is_premium = ?", premium == "true")
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch tickers"})
		return
	}

	var tickers []models.Ticker
	if err := query.Order("symbol ASC").Limit(limit).Offset((page - 1) * limit).Find(&tickers).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch tickers"})
		return
	}

	Paginated(c, tickers, page, limit, total)
}

// GetTicker returns one active ticker by symbol
// GET /api/tickers/:symbol
func (tc *TickerController) GetTicker(c *gin.Context) {
	symbol := validators.NormalizeSymbol(c.Param("symbol"))

	var ticker models.Ticker
	if err := tc.db.Where("symbol = ? AND is_active = ?", symbol, true).First(&ticker).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Ticker not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch ticker"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": ticker})
}

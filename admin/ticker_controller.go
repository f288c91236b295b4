package admin

import (
	"errors"
	"net/http"
	"strings"

	"crypto_signals_backend/controllers"
	"crypto_signals_backend/models"
	"crypto_signals_backend/validators"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// TickerController manages the ticker catalogue
type TickerController struct {
	db *gorm.DB
}

// NewTickerController creates a new admin ticker controller
func NewTickerController(db *gorm.DB) *TickerController {
	return &TickerController{db: db}
}

type tickerRequest struct {
	Symbol      string `json:"symbol" binding:"required,symbol"`
	BaseAsset   string `json:"base_asset" binding:"max=20"`
	QuoteAsset  string `json:"quote_asset" binding:"max=20"`
	Name        string `json:"name" binding:"max=100"`
	Exchange    string `json:"exchange" binding:"max=30"`
	IsActive    *bool  `json:"is_active"`
	IsPremium   bool   `json:"is_premium"`
	Description string `json:"description" binding:"max=1000"`
}

// ListTickers handles GET /api/admin/tickers, including inactive tickers
func (tc *TickerController) ListTickers(c *gin.Context) {
	page, limit := controllers.ParsePagination(c)

	query := tc.db.Model(&models.Ticker{})
	if search := c.Query("search"); search != "" {
		like := "%" + search + "%"
		query = query.Where("LOWER(symbol) LIKE LOWER(?) OR LOWER(name) LIKE LOWER(?)", like, like)
	}
	if isActive := c.Query("is_active"); isActive != "" {
		query = query.Where("is_active = ?", isActive == "true")
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

	controllers.Paginated(c, tickers, page, limit, total)
}

// CreateTicker handles POST /api/admin/tickers. Duplicate symbols get 409.
func (tc *TickerController) CreateTicker(c *gin.Context) {
	var request tickerRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	symbol := validators.NormalizeSymbol(request.Symbol)

	var existing models.Ticker
	if err := tc.db.Where("symbol = ?", symbol).First(&existing).Error; err == nil {
		c.JSON(http.StatusConflict, gin.H{"error": "Ticker with this symbol already exists"})
		return
	}

	exchange := strings.ToLower(strings.TrimSpace(request.Exchange))
	if exchange == "" {
		exchange = "binance"
	}

	ticker := models.Ticker{
		Symbol:      symbol,
		BaseAsset:   strings.ToUpper(strings.TrimSpace(request.BaseAsset)),
		QuoteAsset:  strings.ToUpper(strings.TrimSpace(request.QuoteAsset)),
		Name:        strings.TrimSpace(request.Name),
		Exchange:    exchange,
		IsActive:    true,
		IsPremium:   request.IsPremium,
		Description: request.Description,
	}

	if err := tc.db.Create(&ticker).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			c.JSON(http.StatusConflict, gin.H{"error": "Ticker with this symbol already exists"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create ticker"})
		return
	}
	if request.IsActive != nil && !*request.IsActive {
		tc.db.Model(&ticker).Update("is_active", false)
		ticker.IsActive = false
	}

	recordAction(tc.db, c, ActionCreate, "ticker", ticker.ID, gin.H{"symbol": ticker.Symbol})
	c.JSON(http.StatusCreated, gin.H{"data": ticker})
}

// UpdateTicker handles PUT /api/admin/tickers/:id
func (tc *TickerController) UpdateTicker(c *gin.Context) {
	id, ok := controllers.ParseID(c, "id")
	if !ok {
		return
	}

	var ticker models.Ticker
	if err := tc.db.First(&ticker, id).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Ticker not found"})
		return
	}

	var request struct {
		Symbol      *string `json:"symbol" binding:"omitempty,symbol"`
		BaseAsset   *string `json:"base_asset" binding:"omitempty,max=20"`
		QuoteAsset  *string `json:"quote_asset" binding:"omitempty,max=20"`
		Name        *string `json:"name" binding:"omitempty,max=100"`
		Exchange    *string `json:"exchange" binding:"omitempty,max=30"`
		IsActive    *bool   `json:"is_active"`
		IsPremium   *bool   `json:"is_premium"`
		Description *string `json:"description" binding:"omitempty,max=1000"`
	}
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	updates := make(map[string]interface{})
	if request.Symbol != nil {
		symbol := validators.NormalizeSymbol(*request.Symbol)
		if symbol != ticker.Symbol {
			var count int64
			tc.db.Model(&models.Ticker{}).Where("symbol = ? AND id <> ?", symbol, ticker.ID).Count(&count)
			if count > 0 {
				c.JSON(http.StatusConflict, gin.H{"error": "Ticker with this symbol already exists"})
				return
			}
			updates["symbol"] = symbol
		}
	}
	if request.BaseAsset != nil {
		updates["base_asset"] = strings.ToUpper(strings.TrimSpace(*request.BaseAsset))
	}
	if request.QuoteAsset != nil {
		updates["quote_asset"] = strings.ToUpper(strings.TrimSpace(*request.QuoteAsset))
	}
	if request.Name != nil {
		updates["name"] = strings.TrimSpace(*request.Name)
	}
	if request.Exchange != nil {
		updates["exchange"] = strings.ToLower(strings.TrimSpace(*request.Exchange))
	}
	if request.IsActive != nil {
		updates["is_active"] = *request.IsActive
	}
	if request.IsPremium != nil {
		updates["is_premium"] = *request.IsPremium
	}
	if request.Description != nil {
		updates["description"] = *request.Description
	}

	if len(updates) > 0 {
		if err := tc.db.Model(&ticker).Updates(updates).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				c.JSON(http.StatusConflict, gin.H{"error": "Ticker with this symbol already exists"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update ticker"})
			return
		}
		tc.db.First(&ticker, id)
	}

	recordAction(tc.db, c, ActionUpdate, "ticker", ticker.ID, updates)
	c.JSON(http.StatusOK, gin.H{"data": ticker})
}

// DeleteTicker handles DELETE /api/admin/tickers/:id. Signals keep their
// symbol and lose the ticker reference.
func (tc *TickerController) DeleteTicker(c *gin.Context) {
	id, ok := controllers.ParseID(c, "id")
	if !ok {
		return
	}

	var ticker models.Ticker
	if err := tc.db.First(&ticker, id).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Ticker not found"})
		return
	}

	err := tc.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.Signal{}).Where("ticker_id = ?", ticker.ID).Update("ticker_id", nil).Error; err != nil {
			return err
		}
		return tx.Delete(&ticker).Error
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete ticker"})
		return
	}

	recordAction(tc.db, c, ActionDelete, "ticker", ticker.ID, gin.H{"symbol": ticker.Symbol})
	c.JSON(http.StatusOK, gin.H{"message": "Ticker deleted"})
}

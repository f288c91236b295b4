package controllers

import (
	"errors"
	"net/http"
	"strconv"

	"crypto_signals_backend/services/analysis"
	"crypto_signals_backend/services/market"
	"crypto_signals_backend/validators"

	"github.com/gin-gonic/gin"
)

const indicatorCandles = 200

// ChartController passes exchange market data through to clients
type ChartController struct {
	market *market.Service
}

// NewChartController creates a new chart controller
func NewChartController(svc *market.Service) *ChartController {
	return &ChartController{market: svc}
}

// GetKlines returns OHLC candles
// GET /api/charts/:symbol/klines?interval=1h&limit=100
func (cc *ChartController) GetKlines(c *gin.Context) {
	symbol, ok := symbolParam(c)
	if !ok {
		return
	}
	interval := c.DefaultQuery("interval", "1h")
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))

	klines, err := cc.market.Klines(c.Request.Context(), symbol, interval, limit)
	if err != nil {
		if errors.Is(err, market.ErrInvalidInterval) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch klines"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": klines})
}

// GetPrice returns the last price
// GET /api/charts/:symbol/price
func (cc *ChartController) GetPrice(c *gin.Context) {
	symbol, ok := symbolParam(c)
	if !ok {
		return
	}

	price, err := cc.market.Price(c.Request.Context(), symbol)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch price"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": price})
}

// GetIndicators computes indicators over recent candles
// GET /api/charts/:symbol/indicators?interval=1h
func (cc *ChartController) GetIndicators(c *gin.Context) {
	symbol, ok := symbolParam(c)
	if !ok {
		return
	}
	interval := c.DefaultQuery("interval", "1h")

	klines, err := cc.market.Klines(c.Request.Context(), symbol, interval, indicatorCandles)
	if err != nil {
		if errors.Is(err, market.ErrInvalidInterval) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch klines"})
		return
	}

	indicators, err := analysis.Calculate(klines.Candles)
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data": gin.H{
			"symbol":     symbol,
			"interval":   interval,
			"source":     klines.Source,
			"indicators": indicators,
		},
	})
}

func symbolParam(c *gin.Context) (string, bool) {
	symbol := validators.NormalizeSymbol(c.Param("symbol"))
	if !validators.IsValidSymbol(symbol) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid symbol"})
		return "", false
	}
	return symbol, true
}

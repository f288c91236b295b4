package controllers

import (
	"net/http"

	"crypto_signals_backend/services/forecast"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// ForecastController serves placeholder forecasts and the heatmap
type ForecastController struct {
	forecasts *forecast.Service
}

// NewForecastController creates a new forecast controller
func NewForecastController(svc *forecast.Service) *ForecastController {
	return &ForecastController{forecasts: svc}
}

// ForecastHandler returns a handler for one forecast kind
// GET /api/forecasts/:symbol/{cycle,elliott,gann}
func (fc *ForecastController) ForecastHandler(kind string) gin.HandlerFunc {
	return func(c *gin.Context) {
		symbol, ok := symbolParam(c)
		if !ok {
			return
		}

		result, err := fc.forecasts.Get(c.Request.Context(), symbol, kind)
		if err != nil {
			log.Error().Err(err).Str("symbol", symbol).Str("kind", kind).Msg("Forecast failed")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate forecast"})
			return
		}

		c.JSON(http.StatusOK, gin.H{"data": result})
	}
}

// GetHeatmap returns the latest 24h change per active ticker
// GET /api/heatmap
func (fc *ForecastController) GetHeatmap(c *gin.Context) {
	rows, err := fc.forecasts.Heatmap(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load heatmap"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": rows, "count": len(rows)})
}

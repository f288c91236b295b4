package controllers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"crypto_signals_backend/services/signals"

	"github.com/gin-gonic/gin"
)

// SignalController serves stored signals to authenticated users
type SignalController struct {
	signals *signals.Service
}

// NewSignalController creates a new signal controller
func NewSignalController(svc *signals.Service) *SignalController {
	return &SignalController{signals: svc}
}

// GetSignals lists signals with optional filters
// GET /api/signals?symbol=BTCUSDT&action=buy&source=tradingview&since=2024-01-01T00:00:00Z
func (ctrl *SignalController) GetSignals(c *gin.Context) {
	page, limit := ParsePagination(c)
	filter := signals.Filter{
		Symbol: c.Query("symbol"),
		Action: c.Query("action"),
		Source: c.Query("source"),
		Page:   page,
		Limit:  limit,
	}
	if since := c.Query("since"); since != "" {
		t, err := time.Parse(time.RFC3339, since)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "since must be an RFC3339 timestamp"})
			return
		}
		filter.Since = t
	}

	list, total, err := ctrl.signals.List(c.Request.Context(), filter)
	if err != nil {
		if errors.Is(err, signals.ErrInvalidInput) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch signals"})
		return
	}

	Paginated(c, list, page, limit, total)
}

// GetLatestSignals returns the most recent signals
// GET /api/signals/latest?limit=20
func (ctrl *SignalController) GetLatestSignals(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))

	list, err := ctrl.signals.Latest(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch signals"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": list, "count": len(list)})
}

// GetSignal returns one signal
// GET /api/signals/:id
func (ctrl *SignalController) GetSignal(c *gin.Context) {
	id, ok := ParseID(c, "id")
	if !ok {
		return
	}

	signal, err := ctrl.signals.Get(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, signals.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Signal not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch signal"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": signal})
}

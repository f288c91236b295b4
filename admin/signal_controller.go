package admin

import (
	"errors"
	"net/http"

	"crypto_signals_backend/controllers"
	"crypto_signals_backend/middleware"
	"crypto_signals_backend/models"
	"crypto_signals_backend/services/signals"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// SignalController lets admins post and retract signals
type SignalController struct {
	db      *gorm.DB
	signals *signals.Service
}

// NewSignalController creates a new admin signal controller
func NewSignalController(db *gorm.DB, svc *signals.Service) *SignalController {
	return &SignalController{db: db, signals: svc}
}

// CreateSignal handles POST /api/admin/signals
func (sc *SignalController) CreateSignal(c *gin.Context) {
	var request struct {
		Symbol   string          `json:"symbol" binding:"required,symbol"`
		Action   string          `json:"action" binding:"required,signal_action"`
		Price    decimal.Decimal `json:"price"`
		Interval string          `json:"interval" binding:"max=10"`
		Strategy string          `json:"strategy" binding:"max=100"`
		Message  string          `json:"message" binding:"max=1000"`
	}
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	adminID, _ := middleware.GetUserID(c)
	signal, err := sc.signals.Create(c.Request.Context(), signals.CreateInput{
		Symbol:    request.Symbol,
		Action:    request.Action,
		Price:     request.Price,
		Interval:  request.Interval,
		Strategy:  request.Strategy,
		Source:    models.SourceAdmin,
		Message:   request.Message,
		CreatedBy: &adminID,
	})
	if err != nil {
		if errors.Is(err, signals.ErrInvalidInput) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create signal"})
		return
	}

	recordAction(sc.db, c, ActionCreate, "signal", signal.ID, gin.H{"symbol": signal.Symbol, "action": signal.Action})
	c.JSON(http.StatusCreated, gin.H{"data": signal})
}

// ListSignals handles GET /api/admin/signals
func (sc *SignalController) ListSignals(c *gin.Context) {
	page, limit := controllers.ParsePagination(c)
	list, total, err := sc.signals.List(c.Request.Context(), signals.Filter{
		Symbol: c.Query("symbol"),
		Action: c.Query("action"),
		Source: c.Query("source"),
		Page:   page,
		Limit:  limit,
	})
	if err != nil {
		if errors.Is(err, signals.ErrInvalidInput) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch signals"})
		return
	}

	controllers.Paginated(c, list, page, limit, total)
}

// DeleteSignal handles DELETE /api/admin/signals/:id
func (sc *SignalController) DeleteSignal(c *gin.Context) {
	id, ok := controllers.ParseID(c, "id")
	if !ok {
		return
	}

	signal, err := sc.signals.Delete(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, signals.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Signal not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete signal"})
		return
	}

	recordAction(sc.db, c, ActionDelete, "signal", signal.ID, gin.H{"symbol": signal.Symbol})
	c.JSON(http.StatusOK, gin.H{"message": "Signal deleted"})
}

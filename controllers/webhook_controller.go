package controllers

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"crypto_signals_backend/metrics"
	"crypto_signals_backend/models"
	"crypto_signals_backend/services/archive"
	"crypto_signals_backend/services/signals"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

const (
	WebhookSecretHeader = "X-Webhook-Secret"
	maxWebhookBody      = 64 << 10
)

// tradingViewAlert is the JSON body configured in a TradingView alert
type tradingViewAlert struct {
	Secret   string          `json:"secret"`
	Ticker   string          `json:"ticker"`
	Symbol   string          `json:"symbol"`
	Action   string          `json:"action"`
	Price    decimal.Decimal `json:"price"`
	Time     string          `json:"time"`
	Strategy string          `json:"strategy"`
	Interval string          `json:"interval"`
	Message  string          `json:"message"`
}

// WebhookController ingests alerts from charting services
type WebhookController struct {
	secret  string
	signals *signals.Service
	archive archive.Archive
}

// NewWebhookController creates a webhook controller. An empty secret
// rejects every request.
func NewWebhookController(secret string, svc *signals.Service, arc archive.Archive) *WebhookController {
	if arc == nil {
		arc = archive.Noop{}
	}
	return &WebhookController{secret: secret, signals: svc, archive: arc}
}

// TradingView turns an alert into a broadcast signal
// POST /api/webhook/tradingview
func (wc *WebhookController) TradingView(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		metrics.WebhookAlerts.WithLabelValues("invalid").Inc()
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read body"})
		return
	}

	var alert tradingViewAlert
	parseErr := json.Unmarshal(body, &alert)

	provided := c.GetHeader(WebhookSecretHeader)
	if provided == "" {
		provided = alert.Secret
	}
	if !wc.validSecret(provided) {
		metrics.WebhookAlerts.WithLabelValues("unauthorized").Inc()
		log.Warn().Str("ip", c.ClientIP()).Msg("Webhook rejected: invalid secret")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid webhook secret"})
		return
	}

	if parseErr != nil {
		wc.reject(c, body, "", "Invalid JSON payload")
		return
	}

	symbol := alert.Ticker
	if symbol == "" {
		symbol = alert.Symbol
	}
	if symbol == "" {
		wc.reject(c, body, "", "ticker is required")
		return
	}
	if _, ok := models.NormalizeAction(alert.Action); !ok {
		wc.reject(c, body, symbol, "action must be one of buy, long, sell, short, exit")
		return
	}

	signal, err := wc.signals.Create(c.Request.Context(), signals.CreateInput{
		Symbol:     symbol,
		Action:     alert.Action,
		Price:      alert.Price,
		Interval:   alert.Interval,
		Strategy:   alert.Strategy,
		Source:     models.SourceTradingView,
		Message:    alert.Message,
		SignalTime: parseAlertTime(alert.Time),
	})
	if err != nil {
		if errors.Is(err, signals.ErrInvalidInput) {
			wc.reject(c, body, symbol, err.Error())
			return
		}
		metrics.WebhookAlerts.WithLabelValues("error").Inc()
		log.Error().Err(err).Str("symbol", symbol).Msg("Failed to store webhook signal")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to store signal"})
		return
	}

	metrics.WebhookAlerts.WithLabelValues("accepted").Inc()
	wc.record(c, body, archive.Alert{Result: "accepted", SignalID: signal.ID, Symbol: signal.Symbol})

	c.JSON(http.StatusCreated, gin.H{"data": signal})
}

func (wc *WebhookController) validSecret(provided string) bool {
	if wc.secret == "" || provided == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(provided), []byte(wc.secret)) == 1
}

func (wc *WebhookController) reject(c *gin.Context, body []byte, symbol, message string) {
	metrics.WebhookAlerts.WithLabelValues("invalid").Inc()
	wc.record(c, body, archive.Alert{Result: "invalid", Symbol: symbol})
	c.JSON(http.StatusBadRequest, gin.H{"error": message})
}

// record archives the alert in the background with the secret removed
func (wc *WebhookController) record(c *gin.Context, body []byte, alert archive.Alert) {
	alert.ReceivedAt = time.Now().UTC()
	alert.Source = models.SourceTradingView
	alert.RemoteIP = c.ClientIP()
	alert.Payload = redactSecret(body)

	ctx := context.WithoutCancel(c.Request.Context())
	go func() {
		if err := wc.archive.Record(ctx, alert); err != nil {
			log.Warn().Err(err).Msg("Failed to archive webhook alert")
		}
	}()
}

func redactSecret(body []byte) string {
	var doc map[string]interface{}
	if err := json.Unmarshal(body, &doc); err != nil {
		return strings.TrimSpace(string(body))
	}
	if _, ok := doc["secret"]; ok {
		doc["secret"] = "***"
	}
	out, err := json.Marshal(doc)
	if err != nil {
		return ""
	}
	return string(out)
}

// parseAlertTime accepts RFC3339 or unix milliseconds; zero when absent
func parseAlertTime(value string) time.Time {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t
	}
	var ms int64
	if err := json.Unmarshal([]byte(value), &ms); err == nil && ms > 0 {
		return time.UnixMilli(ms)
	}
	return time.Time{}
}

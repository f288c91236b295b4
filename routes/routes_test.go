package routes

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"crypto_signals_backend/config"
	"crypto_signals_backend/middleware"
	"crypto_signals_backend/models"
	"crypto_signals_backend/services/archive"
	"crypto_signals_backend/services/forecast"
	"crypto_signals_backend/services/hub"
	"crypto_signals_backend/services/market"
	"crypto_signals_backend/services/signals"
	"crypto_signals_backend/validators"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

const webhookSecret = "route-test-secret"

type testServer struct {
	srv    *httptest.Server
	db     *gorm.DB
	hub    *hub.Hub
	tokens *middleware.TokenManager
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)
	validators.Register()

	db, err := config.OpenInMemoryDB(nil)
	require.NoError(t, err)
	require.NoError(t, models.MigrateAll(db))

	h := hub.New(0)
	tokens := middleware.NewTokenManager("route-test-jwt", time.Hour)
	md := market.NewService(nil, db, nil)

	router := gin.New()
	SetupRoutes(router, Dependencies{
		DB:            db,
		Tokens:        tokens,
		Hub:           h,
		Signals:       signals.NewService(db, h),
		Market:        md,
		Forecasts:     forecast.NewService(db, md),
		Archive:       archive.Noop{},
		WebhookSecret: webhookSecret,
	})

	srv := httptest.NewServer(router)
	t.Cleanup(func() {
		srv.Close()
		h.Shutdown()
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return &testServer{srv: srv, db: db, hub: h, tokens: tokens}
}

func (ts *testServer) tokenFor(t *testing.T, email, role string) string {
	t.Helper()
	user := models.User{Email: email, FullName: role, Role: role, IsActive: true}
	require.NoError(t, user.SetPassword("password123"))
	require.NoError(t, ts.db.Create(&user).Error)
	token, _, err := ts.tokens.GenerateToken(&user)
	require.NoError(t, err)
	return token
}

func (ts *testServer) do(t *testing.T, method, path, token string, body interface{}) (int, map[string]interface{}) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, ts.srv.URL+path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]interface{}
	json.NewDecoder(resp.Body).Decode(&out)
	return resp.StatusCode, out
}

func TestAdminRoutesRequireAdminRole(t *testing.T) {
	ts := newTestServer(t)
	userToken := ts.tokenFor(t, "user@example.com", models.RoleUser)

	status, _ := ts.do(t, http.MethodGet, "/api/admin/tickers", "", nil)
	assert.Equal(t, http.StatusUnauthorized, status)

	status, _ = ts.do(t, http.MethodGet, "/api/admin/tickers", userToken, nil)
	assert.Equal(t, http.StatusForbidden, status)

	status, _ = ts.do(t, http.MethodGet, "/api/signals", userToken, nil)
	assert.Equal(t, http.StatusOK, status)

	status, _ = ts.do(t, http.MethodGet, "/api/signals?action=hold", userToken, nil)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestDeactivatedUserTokenIsRejected(t *testing.T) {
	ts := newTestServer(t)
	userToken := ts.tokenFor(t, "leaver@example.com", models.RoleUser)

	status, _ := ts.do(t, http.MethodGet, "/api/tickers", userToken, nil)
	require.Equal(t, http.StatusOK, status)

	require.NoError(t, ts.db.Model(&models.User{}).Where("email = ?", "leaver@example.com").Update("is_active", false).Error)
	status, _ = ts.do(t, http.MethodGet, "/api/tickers", userToken, nil)
	assert.Equal(t, http.StatusForbidden, status)
}

func TestWebhookSignalReachesSubscribers(t *testing.T) {
	ts := newTestServer(t)
	adminToken := ts.tokenFor(t, "admin@example.com", models.RoleAdmin)

	status, body := ts.do(t, http.MethodPost, "/api/admin/tickers", adminToken, gin.H{
		"symbol": "btc/usdt", "base_asset": "btc", "quote_asset": "usdt", "name": "Bitcoin",
	})
	require.Equal(t, http.StatusCreated, status, body)
	ticker := body["data"].(map[string]interface{})
	assert.Equal(t, "BTCUSDT", ticker["symbol"])
	assert.Equal(t, "binance", ticker["exchange"])

	status, _ = ts.do(t, http.MethodPost, "/api/admin/tickers", adminToken, gin.H{"symbol": "BTCUSDT"})
	assert.Equal(t, http.StatusConflict, status)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.srv.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	defer conn.Close()
	require.Eventually(t, func() bool { return ts.hub.Stats().Clients == 1 }, 2*time.Second, 10*time.Millisecond)

	status, body = ts.do(t, http.MethodPost, "/api/webhook/tradingview", "", gin.H{
		"secret": webhookSecret, "ticker": "BTCUSDT", "action": "buy", "price": "65000",
	})
	require.Equal(t, http.StatusCreated, status, body)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var env hub.Envelope
	require.NoError(t, conn.ReadJSON(&env))
	assert.Equal(t, hub.TypeSignal, env.Type)
	require.NotNil(t, env.Signal)
	assert.Equal(t, "BTCUSDT", env.Signal.Symbol)
	require.NotNil(t, env.Signal.TickerID)
	assert.Equal(t, uint(ticker["id"].(float64)), *env.Signal.TickerID)

	var logs int64
	ts.db.Model(&models.AdminLog{}).Where("entity = ?", "ticker").Count(&logs)
	assert.Equal(t, int64(1), logs)
}

func TestAdminSignalDeleteIsBroadcast(t *testing.T) {
	ts := newTestServer(t)
	adminToken := ts.tokenFor(t, "admin@example.com", models.RoleAdmin)

	status, body := ts.do(t, http.MethodPost, "/api/admin/signals", adminToken, gin.H{"symbol": "ETHUSDT", "action": "sell", "price": "3000"})
	require.Equal(t, http.StatusCreated, status, body)
	id := int(body["data"].(map[string]interface{})["id"].(float64))

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.srv.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	defer conn.Close()
	require.Eventually(t, func() bool { return ts.hub.Stats().Clients == 1 }, 2*time.Second, 10*time.Millisecond)

	status, _ = ts.do(t, http.MethodDelete, "/api/admin/signals/"+strconv.Itoa(id), adminToken, nil)
	require.Equal(t, http.StatusOK, status)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var env hub.Envelope
	require.NoError(t, conn.ReadJSON(&env))
	assert.Equal(t, hub.TypeSignalDeleted, env.Type)

	userToken := ts.tokenFor(t, "user@example.com", models.RoleUser)
	status, _ = ts.do(t, http.MethodGet, "/api/signals/"+strconv.Itoa(id), userToken, nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestChartAndForecastRoutesWorkWithoutExchange(t *testing.T) {
	ts := newTestServer(t)
	userToken := ts.tokenFor(t, "user@example.com", models.RoleUser)

	status, body := ts.do(t, http.MethodGet, "/api/charts/BTCUSDT/klines?interval=1h&limit=60", userToken, nil)
	require.Equal(t, http.StatusOK, status, body)

	status, _ = ts.do(t, http.MethodGet, "/api/charts/BTCUSDT/indicators?interval=1h", userToken, nil)
	assert.Equal(t, http.StatusOK, status)

	status, body = ts.do(t, http.MethodGet, "/api/forecasts/BTCUSDT/elliott", userToken, nil)
	require.Equal(t, http.StatusOK, status, body)
	assert.Equal(t, "elliott", body["data"].(map[string]interface{})["kind"])
}

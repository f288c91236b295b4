package controllers

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"crypto_signals_backend/middleware"
	"crypto_signals_backend/models"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newAuthRouter(t *testing.T) (*gin.Engine, *gorm.DB, *middleware.TokenManager) {
	t.Helper()
	db := newTestDB(t)
	tokens := middleware.NewTokenManager("test-secret", time.Hour)
	ac := NewAuthController(db, tokens, middleware.NewRateLimiter(5, 15*time.Minute, 15*time.Minute))

	r := gin.New()
	r.POST("/api/auth/register", ac.Register)
	r.POST("/api/auth/login", ac.Login)
	authed := r.Group("/api/auth", middleware.JWTAuthMiddleware(tokens))
	authed.GET("/me", ac.Me)
	authed.POST("/refresh", ac.Refresh)
	return r, db, tokens
}

func TestRegister(t *testing.T) {
	r, db, tokens := newAuthRouter(t)

	w := postJSON(r, "/api/auth/register", gin.H{
		"email": "Trader@Example.com", "password": "hunter2hunter2", "full_name": "Trader Joe",
	}, nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	body := decodeBody(t, w)
	assert.Equal(t, "Bearer", body["token_type"])
	claims, err := tokens.ValidateToken(body["token"].(string))
	require.NoError(t, err)
	assert.Equal(t, models.RoleUser, claims.Role)

	var user models.User
	require.NoError(t, db.Preload("Settings").Where("email = ?", "trader@example.com").First(&user).Error)
	require.NotNil(t, user.Settings)
	assert.Equal(t, "dark", user.Settings.Theme)
	assert.NotContains(t, w.Body.String(), user.PasswordHash)

	w = postJSON(r, "/api/auth/register", gin.H{
		"email": "trader@example.com", "password": "another-password", "full_name": "Copy",
	}, nil)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestRegisterValidation(t *testing.T) {
	r, _, _ := newAuthRouter(t)

	w := postJSON(r, "/api/auth/register", gin.H{"email": "not-an-email", "password": "hunter2hunter2", "full_name": "X"}, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = postJSON(r, "/api/auth/register", gin.H{"email": "a@b.co", "password": "short", "full_name": "X"}, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestLogin(t *testing.T) {
	r, db, _ := newAuthRouter(t)

	user := models.User{Email: "ops@example.com", FullName: "Ops", Role: models.RoleAdmin, IsActive: true}
	require.NoError(t, user.SetPassword("correct-horse"))
	require.NoError(t, db.Create(&user).Error)

	w := postJSON(r, "/api/auth/login", gin.H{"email": "ops@example.com", "password": "wrong-horse"}, nil)
	require.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, float64(4), decodeBody(t, w)["remaining_attempts"])

	w = postJSON(r, "/api/auth/login", gin.H{"email": "nobody@example.com", "password": "correct-horse"}, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = postJSON(r, "/api/auth/login", gin.H{"email": "OPS@example.com", "password": "correct-horse"}, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	token := decodeBody(t, w)["token"].(string)

	var stored models.User
	require.NoError(t, db.First(&stored, user.ID).Error)
	assert.NotNil(t, stored.LastLoginAt)

	req := httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	me := httptest.NewRecorder()
	r.ServeHTTP(me, req)
	require.Equal(t, http.StatusOK, me.Code)
	data := decodeBody(t, me)["data"].(map[string]interface{})
	assert.Equal(t, "ops@example.com", data["email"])
	assert.Equal(t, models.RoleAdmin, data["role"])
}

func TestLoginDisabledAccount(t *testing.T) {
	r, db, tokens := newAuthRouter(t)

	user := models.User{Email: "gone@example.com", FullName: "Gone", IsActive: true}
	require.NoError(t, user.SetPassword("correct-horse"))
	require.NoError(t, db.Create(&user).Error)
	token, _, err := tokens.GenerateToken(&user)
	require.NoError(t, err)
	require.NoError(t, db.Model(&user).Update("is_active", false).Error)

	w := postJSON(r, "/api/auth/login", gin.H{"email": "gone@example.com", "password": "correct-horse"}, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	req := httptest.NewRequest(http.MethodPost, "/api/auth/refresh", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	refresh := httptest.NewRecorder()
	r.ServeHTTP(refresh, req)
	assert.Equal(t, http.StatusForbidden, refresh.Code)
}

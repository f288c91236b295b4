package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"crypto_signals_backend/config"
	"crypto_signals_backend/models"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newAuthRouter(tm *TokenManager) *gin.Engine {
	r := gin.New()
	r.GET("/me", JWTAuthMiddleware(tm), func(c *gin.Context) {
		id, err := GetUserID(c)
		if err != nil {
			c.Status(http.StatusInternalServerError)
			return
		}
		c.JSON(http.StatusOK, gin.H{"user_id": id})
	})
	r.GET("/admin", JWTAuthMiddleware(tm), AdminRoleMiddleware(), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
	return r
}

func doRequest(r http.Handler, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestTokenRoundTrip(t *testing.T) {
	tm := NewTokenManager("test-secret", time.Hour)
	user := &models.User{ID: 42, Email: "trader@example.com", Role: models.RolePremium}

	token, expiresAt, err := tm.GenerateToken(user)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), expiresAt, 5*time.Second)

	claims, err := tm.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, uint(42), claims.UserID)
	assert.Equal(t, "trader@example.com", claims.Email)
	assert.True(t, claims.HasRole(models.RoleUser, models.RolePremium))
	assert.False(t, claims.HasRole(models.RoleAdmin))
}

func TestValidateTokenRejectsForeignSecret(t *testing.T) {
	token, _, err := NewTokenManager("one", time.Hour).GenerateToken(&models.User{ID: 1})
	require.NoError(t, err)

	_, err = NewTokenManager("two", time.Hour).ValidateToken(token)
	assert.Error(t, err)
}

func TestValidateTokenRejectsExpired(t *testing.T) {
	tm := NewTokenManager("secret", time.Hour)
	claims := Claims{
		UserID: 1,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("secret"))
	require.NoError(t, err)

	_, err = tm.ValidateToken(token)
	assert.Error(t, err)
}

func TestJWTAuthMiddleware(t *testing.T) {
	tm := NewTokenManager("secret", time.Hour)
	r := newAuthRouter(tm)

	t.Run("missing header", func(t *testing.T) {
		w := doRequest(r, "/me", "")
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Contains(t, w.Body.String(), "unauthorized")
	})

	t.Run("malformed header", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/me", nil)
		req.Header.Set("Authorization", "Token abc")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("garbage token", func(t *testing.T) {
		w := doRequest(r, "/me", "not-a-jwt")
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("valid token", func(t *testing.T) {
		token, _, err := tm.GenerateToken(&models.User{ID: 7, Role: models.RoleUser})
		require.NoError(t, err)
		w := doRequest(r, "/me", token)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"user_id":7}`, w.Body.String())
	})
}

func TestAdminRoleMiddleware(t *testing.T) {
	tm := NewTokenManager("secret", time.Hour)
	r := newAuthRouter(tm)

	userToken, _, err := tm.GenerateToken(&models.User{ID: 1, Role: models.RoleUser})
	require.NoError(t, err)
	adminToken, _, err := tm.GenerateToken(&models.User{ID: 2, Role: models.RoleAdmin})
	require.NoError(t, err)

	assert.Equal(t, http.StatusForbidden, doRequest(r, "/admin", userToken).Code)
	assert.Equal(t, http.StatusNoContent, doRequest(r, "/admin", adminToken).Code)
	assert.Equal(t, http.StatusUnauthorized, doRequest(r, "/admin", "").Code)
}

func TestAccountStatusMiddleware(t *testing.T) {
	db, err := config.OpenInMemoryDB(nil)
	require.NoError(t, err)
	require.NoError(t, models.MigrateAll(db))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})

	staff := models.User{Email: "staff@example.com", Role: models.RoleAdmin, IsActive: true}
	require.NoError(t, db.Create(&staff).Error)

	tm := NewTokenManager("secret", time.Hour)
	token, _, err := tm.GenerateToken(&staff)
	require.NoError(t, err)

	r := gin.New()
	r.GET("/admin", JWTAuthMiddleware(tm), AccountStatusMiddleware(db), AdminRoleMiddleware(), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})

	assert.Equal(t, http.StatusNoContent, doRequest(r, "/admin", token).Code)

	// Demoted: the old token still says admin
	require.NoError(t, db.Model(&staff).Update("role", models.RoleUser).Error)
	assert.Equal(t, http.StatusForbidden, doRequest(r, "/admin", token).Code)

	require.NoError(t, db.Model(&staff).Updates(map[string]interface{}{"role": models.RoleAdmin, "is_active": false}).Error)
	w := doRequest(r, "/admin", token)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Contains(t, w.Body.String(), "Account is disabled")

	ghost, _, err := tm.GenerateToken(&models.User{ID: 999, Role: models.RoleAdmin})
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, doRequest(r, "/admin", ghost).Code)
}

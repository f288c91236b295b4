package controllers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"crypto_signals_backend/middleware"
	"crypto_signals_backend/models"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// AuthController handles account registration and token issuance
type AuthController struct {
	db      *gorm.DB
	tokens  *middleware.TokenManager
	limiter *middleware.RateLimiter
}

// NewAuthController creates a new auth controller
func NewAuthController(db *gorm.DB, tokens *middleware.TokenManager, limiter *middleware.RateLimiter) *AuthController {
	return &AuthController{db: db, tokens: tokens, limiter: limiter}
}

type registerRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=8,max=72"`
	FullName string `json:"full_name" binding:"required,max=100"`
}

type loginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// Register creates a user account
// POST /api/auth/register
func (ac *AuthController) Register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	email := models.NormalizeEmail(req.Email)
	var existing models.User
	if err := ac.db.Where("email = ?", email).First(&existing).Error; err == nil {
		c.JSON(http.StatusConflict, gin.H{"error": "Email already registered"})
		return
	}

	user := models.User{
		Email:    email,
		FullName: strings.TrimSpace(req.FullName),
		Role:     models.RoleUser,
		IsActive: true,
	}
	if err := user.SetPassword(req.Password); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create account"})
		return
	}

	err := ac.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&user).Error; err != nil {
			return err
		}
		settings := models.DefaultUserSettings(user.ID)
		if err := tx.Create(&settings).Error; err != nil {
			return err
		}
		user.Settings = &settings
		return nil
	})
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			c.JSON(http.StatusConflict, gin.H{"error": "Email already registered"})
			return
		}
		log.Error().Err(err).Str("email", email).Msg("Registration failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create account"})
		return
	}

	ac.respondWithToken(c, http.StatusCreated, &user)
}

// Login exchanges credentials for a token
// POST /api/auth/login
func (ac *AuthController) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ip := c.ClientIP()
	var user models.User
	if err := ac.db.Where("email = ?", models.NormalizeEmail(req.Email)).First(&user).Error; err != nil || !user.CheckPassword(req.Password) {
		ac.limiter.RecordAttempt(ip, false)
		log.Info().Str("ip", ip).Msg("Login failed: invalid credentials")
		c.JSON(http.StatusUnauthorized, gin.H{
			"error":              "Invalid email or password",
			"remaining_attempts": ac.limiter.GetRemainingAttempts(ip),
		})
		return
	}

	if !user.IsActive {
		c.JSON(http.StatusForbidden, gin.H{"error": "Account is disabled"})
		return
	}

	ac.limiter.RecordAttempt(ip, true)

	now := time.Now()
	ac.db.Model(&user).Update("last_login_at", now)
	user.LastLoginAt = &now

	ac.respondWithToken(c, http.StatusOK, &user)
}

// Refresh issues a new token for a still-valid one
// POST /api/auth/refresh
func (ac *AuthController) Refresh(c *gin.Context) {
	user, ok := ac.currentUser(c)
	if !ok {
		return
	}
	ac.respondWithToken(c, http.StatusOK, user)
}

// Me returns the authenticated user
// GET /api/auth/me
func (ac *AuthController) Me(c *gin.Context) {
	user, ok := ac.currentUser(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": user})
}

// currentUser loads the token's user and rejects missing or disabled accounts
func (ac *AuthController) currentUser(c *gin.Context) (*models.User, bool) {
	userID, err := middleware.GetUserID(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return nil, false
	}

	var user models.User
	if err := ac.db.Preload("Settings").First(&user, userID).Error; err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User no longer exists"})
		return nil, false
	}
	if !user.IsActive {
		c.JSON(http.StatusForbidden, gin.H{"error": "Account is disabled"})
		return nil, false
	}
	return &user, true
}

func (ac *AuthController) respondWithToken(c *gin.Context, status int, user *models.User) {
	token, expiresAt, err := ac.tokens.GenerateToken(user)
	if err != nil {
		log.Error().Err(err).Uint("user_id", user.ID).Msg("Failed to issue token")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to issue token"})
		return
	}

	c.JSON(status, gin.H{
		"token":      token,
		"token_type": "Bearer",
		"expires_at": expiresAt,
		"user":       user,
	})
}

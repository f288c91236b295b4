package controllers

import (
	"errors"
	"net/http"
	"strings"

	"crypto_signals_backend/middleware"
	"crypto_signals_backend/models"
	"crypto_signals_backend/validators"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// UserController handles the authenticated user's own profile and settings
type UserController struct {
	db *gorm.DB
}

// NewUserController creates a new user controller
func NewUserController(db *gorm.DB) *UserController {
	return &UserController{db: db}
}

// GetSettings returns the user's settings, creating defaults on first access
// GET /api/user/settings
func (uc *UserController) GetSettings(c *gin.Context) {
	userID, err := middleware.GetUserID(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	settings, err := uc.loadSettings(userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load settings"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": settings})
}

// UpdateSettings changes the provided settings fields
// PUT /api/user/settings
func (uc *UserController) UpdateSettings(c *gin.Context) {
	userID, err := middleware.GetUserID(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	var request struct {
		Theme           *string  `json:"theme" binding:"omitempty,oneof=dark light"`
		Language        *string  `json:"language" binding:"omitempty,min=2,max=10"`
		Timezone        *string  `json:"timezone" binding:"omitempty,max=64"`
		NotifyEmail     *bool    `json:"notify_email"`
		NotifyTelegram  *bool    `json:"notify_telegram"`
		FavoriteTickers []string `json:"favorite_tickers" binding:"omitempty,max=50,dive,symbol"`
	}
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	settings, err := uc.loadSettings(userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load settings"})
		return
	}

	if request.Theme != nil {
		settings.Theme = *request.Theme
	}
	if request.Language != nil {
		settings.Language = *request.Language
	}
	if request.Timezone != nil {
		settings.Timezone = *request.Timezone
	}
	if request.NotifyEmail != nil {
		settings.NotifyEmail = *request.NotifyEmail
	}
	if request.NotifyTelegram != nil {
		settings.NotifyTelegram = *request.NotifyTelegram
	}
	if request.FavoriteTickers != nil {
		symbols := make([]string, 0, len(request.FavoriteTickers))
		for _, s := range request.FavoriteTickers {
			symbols = append(symbols, validators.NormalizeSymbol(s))
		}
		settings.FavoriteTickers = strings.Join(symbols, ",")
	}

	if err := uc.db.Save(settings).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update settings"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": settings})
}

// UpdateProfile changes the user's contact details
// PUT /api/user/profile
func (uc *UserController) UpdateProfile(c *gin.Context) {
	userID, err := middleware.GetUserID(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	var request struct {
		FullName       *string `json:"full_name" binding:"omitempty,min=1,max=100"`
		Phone          *string `json:"phone" binding:"omitempty,max=20"`
		TelegramHandle *string `json:"telegram_handle" binding:"omitempty,max=64"`
	}
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var user models.User
	if err := uc.db.First(&user, userID).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		return
	}

	updates := make(map[string]interface{})
	if request.FullName != nil {
		updates["full_name"] = strings.TrimSpace(*request.FullName)
	}
	if request.Phone != nil {
		updates["phone"] = strings.TrimSpace(*request.Phone)
	}
	if request.TelegramHandle != nil {
		updates["telegram_handle"] = strings.TrimPrefix(strings.TrimSpace(*request.TelegramHandle), "@")
	}

	if len(updates) > 0 {
		if err := uc.db.Model(&user).Updates(updates).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update profile"})
			return
		}
		uc.db.First(&user, userID)
	}

	c.JSON(http.StatusOK, gin.H{"data": user})
}

// ChangePassword replaces the password after checking the current one
// PUT /api/user/password
func (uc *UserController) ChangePassword(c *gin.Context) {
	userID, err := middleware.GetUserID(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	var request struct {
		CurrentPassword string `json:"current_password" binding:"required"`
		NewPassword     string `json:"new_password" binding:"required,min=8,max=72"`
	}
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var user models.User
	if err := uc.db.First(&user, userID).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		return
	}

	if !user.CheckPassword(request.CurrentPassword) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Current password is incorrect"})
		return
	}

	if err := user.SetPassword(request.NewPassword); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update password"})
		return
	}
	if err := uc.db.Model(&user).Update("password_hash", user.PasswordHash).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update password"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Password updated"})
}

func (uc *UserController) loadSettings(userID uint) (*models.UserSettings, error) {
	var settings models.UserSettings
	err := uc.db.Where("user_id = ?", userID).First(&settings).Error
	if err == nil {
		return &settings, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	settings = models.DefaultUserSettings(userID)
	if err := uc.db.Create(&settings).Error; err != nil {
		return nil, err
	}
	return &settings, nil
}

package admin

import (
	"errors"
	"net/http"
	"strings"

	"crypto_signals_backend/controllers"
	"crypto_signals_backend/middleware"
	"crypto_signals_backend/models"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// UserManagementController handles user management operations
type UserManagementController struct {
	db *gorm.DB
}

// NewUserManagementController creates a new user management controller
func NewUserManagementController(db *gorm.DB) *UserManagementController {
	return &UserManagementController{db: db}
}

// ListUsers handles GET /api/admin/users
func (ctrl *UserManagementController) ListUsers(c *gin.Context) {
	page, limit := controllers.ParsePagination(c)

	query := ctrl.db.Model(&models.User{})
	if role := c.Query("role"); role != "" {
		query = query.Where("role = ?", role)
	}
	if isActive := c.Query("is_active"); isActive != "" {
		query = query.Where("is_active = ?", isActive == "true")
	}
	if search := c.Query("search"); search != "" {
		like := "%" + search + "%"
		query = query.Where("LOWER(email) LIKE LOWER(?) OR LOWER(full_name) LIKE LOWER(?)", like, like)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch users"})
		return
	}

	var users []models.User
	if err := query.Order("created_at DESC").Limit(limit).Offset((page - 1) * limit).Find(&users).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch users"})
		return
	}

	controllers.Paginated(c, users, page, limit, total)
}

// GetUser handles GET /api/admin/users/:id
func (ctrl *UserManagementController) GetUser(c *gin.Context) {
	id, ok := controllers.ParseID(c, "id")
	if !ok {
		return
	}

	var user models.User
	if err := ctrl.db.Preload("Settings").First(&user, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch user"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": user})
}

// CreateUser handles POST /api/admin/users
func (ctrl *UserManagementController) CreateUser(c *gin.Context) {
	var request struct {
		Email    string `json:"email" binding:"required,email"`
		Password string `json:"password" binding:"required,min=8,max=72"`
		FullName string `json:"full_name" binding:"max=100"`
		Phone    string `json:"phone" binding:"max=20"`
		Role     string `json:"role" binding:"omitempty,oneof=user premium admin"`
		IsActive *bool  `json:"is_active"`
	}
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	role := request.Role
	if role == "" {
		role = models.RoleUser
	}

	user := models.User{
		Email:    models.NormalizeEmail(request.Email),
		FullName: strings.TrimSpace(request.FullName),
		Phone:    strings.TrimSpace(request.Phone),
		Role:     role,
		IsActive: true,
	}
	if err := user.SetPassword(request.Password); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create user"})
		return
	}

	if err := ctrl.db.Create(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			c.JSON(http.StatusConflict, gin.H{"error": "Email already registered"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create user"})
		return
	}
	// is_active has a column default, so false must be written separately
	if request.IsActive != nil && !*request.IsActive {
		ctrl.db.Model(&user).Update("is_active", false)
		user.IsActive = false
	}
	settings := models.DefaultUserSettings(user.ID)
	ctrl.db.Create(&settings)

	recordAction(ctrl.db, c, ActionCreate, "user", user.ID, gin.H{"email": user.Email, "role": user.Role})
	c.JSON(http.StatusCreated, gin.H{"data": user})
}

// UpdateUser handles PUT /api/admin/users/:id
func (ctrl *UserManagementController) UpdateUser(c *gin.Context) {
	id, ok := controllers.ParseID(c, "id")
	if !ok {
		return
	}

	var user models.User
	if err := ctrl.db.First(&user, id).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		return
	}

	var request struct {
		FullName       *string `json:"full_name" binding:"omitempty,max=100"`
		Phone          *string `json:"phone" binding:"omitempty,max=20"`
		TelegramHandle *string `json:"telegram_handle" binding:"omitempty,max=64"`
		Role           *string `json:"role" binding:"omitempty,oneof=user premium admin"`
		IsActive       *bool   `json:"is_active"`
		Password       *string `json:"password" binding:"omitempty,min=8,max=72"`
	}
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	selfID, _ := middleware.GetUserID(c)
	if user.ID == selfID {
		if (request.Role != nil && *request.Role != models.RoleAdmin) || (request.IsActive != nil && !*request.IsActive) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "You cannot demote or deactivate yourself"})
			return
		}
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
	if request.Role != nil {
		updates["role"] = *request.Role
	}
	if request.IsActive != nil {
		updates["is_active"] = *request.IsActive
	}
	if request.Password != nil {
		if err := user.SetPassword(*request.Password); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update user"})
			return
		}
		updates["password_hash"] = user.PasswordHash
	}

	if len(updates) > 0 {
		if err := ctrl.db.Model(&user).Updates(updates).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update user"})
			return
		}
		ctrl.db.First(&user, id)
	}

	delete(updates, "password_hash")
	recordAction(ctrl.db, c, ActionUpdate, "user", user.ID, updates)
	c.JSON(http.StatusOK, gin.H{"data": user})
}

// DeleteUser handles DELETE /api/admin/users/:id. Users are deactivated,
// never removed.
func (ctrl *UserManagementController) DeleteUser(c *gin.Context) {
	id, ok := controllers.ParseID(c, "id")
	if !ok {
		return
	}

	if selfID, _ := middleware.GetUserID(c); selfID == id {
		c.JSON(http.StatusBadRequest, gin.H{"error": "You cannot deactivate yourself"})
		return
	}

	var user models.User
	if err := ctrl.db.First(&user, id).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		return
	}

	if err := ctrl.db.Model(&user).Update("is_active", false).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to deactivate user"})
		return
	}

	recordAction(ctrl.db, c, ActionDelete, "user", user.ID, gin.H{"email": user.Email})
	c.JSON(http.StatusOK, gin.H{"message": "User deactivated"})
}

package models

import (
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// Role constants
const (
	RoleUser    = "user"
	RolePremium = "premium"
	RoleAdmin   = "admin"
)

// User represents an account of the signals service
type User struct {
	ID             uint          `gorm:"primaryKey" json:"id"`
	Email          string        `gorm:"uniqueIndex;not null" json:"email"`
	PasswordHash   string        `gorm:"not null" json:"-"`
	FullName       string        `json:"full_name"`
	Phone          string        `json:"phone"`
	TelegramHandle string        `json:"telegram_handle"`
	Role           string        `gorm:"default:'user'" json:"role"` // user, premium, admin
	IsActive       bool          `gorm:"default:true" json:"is_active"`
	LastLoginAt    *time.Time    `json:"last_login_at"`
	Settings       *UserSettings `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"settings,omitempty"`
	CreatedAt      time.Time     `json:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at"`
}

// UserSettings holds per-user preferences
type UserSettings struct {
	ID              uint      `gorm:"primaryKey" json:"id"`
	UserID          uint      `gorm:"uniqueIndex;not null" json:"user_id"`
	Theme           string    `gorm:"default:'dark'" json:"theme"` // dark, light
	Language        string    `gorm:"default:'en'" json:"language"`
	Timezone        string    `gorm:"default:'UTC'" json:"timezone"`
	NotifyEmail     bool      `gorm:"default:true" json:"notify_email"`
	NotifyTelegram  bool      `gorm:"default:false" json:"notify_telegram"`
	FavoriteTickers string    `gorm:"type:text" json:"favorite_tickers"` // comma separated symbols
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// DefaultUserSettings returns the settings a new user starts with
func DefaultUserSettings(userID uint) UserSettings {
	return UserSettings{
		UserID:      userID,
		Theme:       "dark",
		Language:    "en",
		Timezone:    "UTC",
		NotifyEmail: true,
	}
}

// SetPassword hashes and sets the password for the user
func (u *User) SetPassword(password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u.PasswordHash = string(hash)
	return nil
}

// CheckPassword verifies the provided password against the stored hash
func (u *User) CheckPassword(password string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password))
	return err == nil
}

// IsAdmin reports whether the user has the admin role
func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// NormalizeEmail lower-cases and trims an email address
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ValidRoles returns the assignable roles
func ValidRoles() []string {
	return []string{RoleUser, RolePremium, RoleAdmin}
}

// IsValidRole checks if the role is valid
func IsValidRole(role string) bool {
	for _, valid := range ValidRoles() {
		if role == valid {
			return true
		}
	}
	return false
}

// MigrateUserModels runs database migrations for user-related models
func MigrateUserModels(db *gorm.DB) error {
	return db.AutoMigrate(
		&User{},
		&UserSettings{},
	)
}

// SeedDefaultAdminUser creates the default admin user if no admin exists.
// Without a configured password nothing is seeded.
func SeedDefaultAdminUser(db *gorm.DB, email, password string) (bool, error) {
	if password == "" {
		return false, nil
	}

	var count int64
	if err := db.Model(&User{}).Where("role = ?", RoleAdmin).Count(&count).Error; err != nil {
		return false, err
	}
	if count > 0 {
		return false, nil
	}

	admin := &User{
		Email:    NormalizeEmail(email),
		FullName: "Administrator",
		Role:     RoleAdmin,
		IsActive: true,
	}
	if err := admin.SetPassword(password); err != nil {
		return false, err
	}

	if err := db.Create(admin).Error; err != nil {
		return false, err
	}
	return true, nil
}

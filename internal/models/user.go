package models

import "time"

// UserRole determines what operations a user may perform.
type UserRole string

const (
	RoleAdmin    UserRole = "admin"
	RoleReadOnly UserRole = "read_only"
)

// User represents an authenticated back-office operator.
type User struct {
	Base
	Email               string     `gorm:"uniqueIndex;not null" json:"email"`
	Username            string     `gorm:"uniqueIndex;not null" json:"username"`
	Password            string     `gorm:"not null" json:"-"`
	FullName            string     `json:"full_name"`
	Role                UserRole   `gorm:"not null;default:'read_only'" json:"role"`
	IsActive            bool       `gorm:"default:true" json:"is_active"`
	IsVerified          bool       `gorm:"default:false" json:"is_verified"`
	RefreshTokenHash    string     `gorm:"size:64" json:"-"`
	FailedLoginAttempts int        `gorm:"default:0" json:"-"`
	LockedUntil         *time.Time `json:"-"`
	LastLoginAt         *time.Time `json:"last_login_at,omitempty"`
}

// CanWrite reports whether the user may perform mutating operations.
func (u *User) CanWrite() bool {
	return u.Role == RoleAdmin
}

package domain

import (
	"time"

	"gorm.io/gorm"
)

// Security scopes carried in access tokens
const (
	ScopeAdmin = "admin"
	ScopeStaff = "staff"
)

// User represents a staff or admin account
type User struct {
	ID             uint       `gorm:"primaryKey" json:"id"`
	Username       string     `gorm:"uniqueIndex;not null" json:"username"`
	Email          string     `gorm:"uniqueIndex;not null" json:"email"`
	HashedPassword string     `gorm:"not null" json:"-"`
	FullName       *string    `json:"full_name"`
	IsActive       bool       `gorm:"not null" json:"is_active"`
	IsAdmin        bool       `gorm:"not null" json:"is_admin"`
	IsStaff        bool       `gorm:"not null" json:"is_staff"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
	LastLogin      *time.Time `json:"last_login"`
}

// TableName specifies the table name for User
func (User) TableName() string {
	return "users"
}

// BeforeCreate hook
func (u *User) BeforeCreate(tx *gorm.DB) error {
	now := time.Now().UTC()
	u.CreatedAt = now
	u.UpdatedAt = now
	return nil
}

// BeforeUpdate hook
func (u *User) BeforeUpdate(tx *gorm.DB) error {
	u.UpdatedAt = time.Now().UTC()
	return nil
}

// HasScope reports whether the user satisfies scope. Admins satisfy staff.
func (u *User) HasScope(scope string) bool {
	switch scope {
	case ScopeAdmin:
		return u.IsAdmin
	case ScopeStaff:
		return u.IsStaff || u.IsAdmin
	}
	return false
}

// Scopes lists the scopes granted to the user.
func (u *User) Scopes() []string {
	var scopes []string
	if u.IsAdmin {
		scopes = append(scopes, ScopeAdmin)
	}
	if u.IsStaff || u.IsAdmin {
		scopes = append(scopes, ScopeStaff)
	}
	return scopes
}

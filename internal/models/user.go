// Package models defines persisted entities and the shared API error type.
package models

import (
	"time"
)

// Plan tiers.
const (
	PlanFree = "free"
	PlanPro  = "pro"
)

// Auth provider tags stored on User.AuthProvider.
const (
	ProviderEmail  = "email"
	ProviderGitHub = "github"
	ProviderGoogle = "google"
)

// User is an account that owns pages.
type User struct {
	ID           uint       `gorm:"primaryKey" json:"id"`
	Email        string     `gorm:"uniqueIndex;size:254;not null" json:"email"`
	DisplayName  string     `gorm:"size:120" json:"display_name"`
	Username     string     `gorm:"uniqueIndex;size:40;not null" json:"username"`
	AvatarURL    string     `gorm:"size:512" json:"avatar_url"`
	Plan         string     `gorm:"size:16;not null;default:free" json:"plan"`
	IsAdmin      bool       `gorm:"not null;default:false" json:"is_admin"`
	Password     string     `gorm:"size:255" json:"-"`
	AuthProvider string     `gorm:"size:32;not null;default:email" json:"auth_provider"`
	SignInCount  int        `gorm:"not null;default:0" json:"sign_in_count"`
	LastSignInAt *time.Time `json:"last_sign_in_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`

	Pages []Page `gorm:"foreignKey:UserID" json:"pages,omitempty"`
}

// TableName pins the table name used by migrations.
func (User) TableName() string {
	return "users"
}

// Identity is the authenticated caller as resolved from a session token.
type Identity struct {
	ID       uint   `json:"id"`
	Email    string `json:"email"`
	Provider string `json:"provider"`
}

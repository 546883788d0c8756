package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Page status values.
const (
	PageStatusDraft    = "draft"
	PageStatusLive     = "live"
	PageStatusArchived = "archived"
)

// Page visibility values.
const (
	VisibilityPublic   = "public"
	VisibilityUnlisted = "unlisted"
	VisibilityPrivate  = "private"
)

// Page is a published resume. OwnerID duplicates UserID for rows written by
// older clients and is honoured on every ownership lookup.
type Page struct {
	ID          string         `gorm:"primaryKey;type:uuid" json:"id"`
	UserID      uint           `gorm:"not null;uniqueIndex:idx_pages_user_slug" json:"user_id"`
	OwnerID     *uint          `gorm:"index" json:"owner_id,omitempty"`
	Slug        string         `gorm:"size:40;not null;uniqueIndex:idx_pages_user_slug" json:"slug"`
	Title       string         `gorm:"size:200" json:"title"`
	Status      string         `gorm:"size:16;not null;default:draft" json:"status"`
	Visibility  string         `gorm:"size:16;not null;default:public" json:"visibility"`
	ThemeID     string         `gorm:"size:64;not null" json:"theme_id"`
	ResumeData  map[string]any `gorm:"type:jsonb;serializer:json" json:"resume_data"`
	RawText     string         `gorm:"type:text" json:"raw_text"`
	PageConfig  map[string]any `gorm:"type:jsonb;serializer:json" json:"page_config"`
	ViewCount   int64          `gorm:"not null;default:0" json:"view_count"`
	PublishedAt *time.Time     `json:"published_at,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

func (Page) TableName() string {
	return "pages"
}

// BeforeCreate assigns a UUID when the caller did not supply one.
func (p *Page) BeforeCreate(_ *gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	return nil
}

// OwnedBy reports whether either ownership column names userID.
func (p *Page) OwnedBy(userID uint) bool {
	if p == nil || userID == 0 {
		return false
	}
	if p.UserID == userID {
		return true
	}
	return p.OwnerID != nil && *p.OwnerID == userID
}

// IsPubliclyVisible reports whether anonymous visitors may fetch the page.
func (p *Page) IsPubliclyVisible() bool {
	return p.Status == PageStatusLive && p.Visibility != VisibilityPrivate
}

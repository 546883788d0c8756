package models

import "time"

// PageView is an append-only visit record. IPHash is the hex SHA-256 of the
// client address; raw addresses are never stored.
type PageView struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	PageID    string    `gorm:"type:uuid;not null;index:idx_page_views_page_created" json:"page_id"`
	IPHash    string    `gorm:"size:64;not null" json:"ip_hash"`
	Referrer  string    `gorm:"size:2048" json:"referrer"`
	UserAgent string    `gorm:"size:1024" json:"user_agent"`
	CreatedAt time.Time `gorm:"index:idx_page_views_page_created" json:"created_at"`
}

func (PageView) TableName() string {
	return "page_views"
}

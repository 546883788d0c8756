package models

import "time"

// WaitlistEntry captures an email address before launch.
type WaitlistEntry struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	Email        string    `gorm:"uniqueIndex;size:254;not null" json:"email"`
	ReferralCode string    `gorm:"size:64" json:"referral_code,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

func (WaitlistEntry) TableName() string {
	return "waitlist_entries"
}

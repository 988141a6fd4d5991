package models

import "time"

// VerificationCode is a one-time code an operator hands to a user so the user
// can claim access to ChannelID.
type VerificationCode struct {
	Code      string    `gorm:"primaryKey;size:16"`
	AdminID   int64     `gorm:"not null"`
	ChannelID int64     `gorm:"not null;index"`
	ExpiresAt time.Time `gorm:"not null;index"`
	CreatedAt time.Time
}

// PendingRequest remembers a claimed code until the user's join request arrives.
type PendingRequest struct {
	ID        uint `gorm:"primaryKey"`
	CreatedAt time.Time

	UserID    int64 `gorm:"not null;uniqueIndex:idx_pending_user_channel"`
	ChannelID int64 `gorm:"not null;uniqueIndex:idx_pending_user_channel"`
	AdminID   int64 `gorm:"not null"`
}

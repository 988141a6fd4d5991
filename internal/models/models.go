package models

import (
	"time"

	"gorm.io/datatypes"
)

// Channel is a Telegram channel or group the bot manages. ID is the platform chat id.
type Channel struct {
	ID        int64 `gorm:"primaryKey;autoIncrement:false"`
	CreatedAt time.Time

	Name       string `gorm:"not null"`
	IsChannel  bool   // false for groups/supergroups
	InviteLink *string

	Subscriptions   []Subscription   `gorm:"constraint:OnDelete:CASCADE"`
	PendingRequests []PendingRequest `gorm:"constraint:OnDelete:CASCADE"`
	Admins          []ChannelAdmin   `gorm:"constraint:OnDelete:CASCADE"`
}

// ChannelAdmin marks an operator as responsible for a channel.
type ChannelAdmin struct {
	ChannelID int64 `gorm:"primaryKey;autoIncrement:false"`
	AdminID   int64 `gorm:"primaryKey;autoIncrement:false;index"`
	CreatedAt time.Time
}

// User is a Telegram user known to the ledger. ID is the platform user id.
type User struct {
	ID        int64 `gorm:"primaryKey;autoIncrement:false"`
	CreatedAt time.Time

	Username string
	FullName string

	Subscriptions   []Subscription   `gorm:"constraint:OnDelete:CASCADE"`
	PendingRequests []PendingRequest `gorm:"constraint:OnDelete:CASCADE"`
}

// Subscription grants a user access to a channel until ExpiryDate (inclusive day).
type Subscription struct {
	ID        uint `gorm:"primaryKey"`
	CreatedAt time.Time

	UserID     int64          `gorm:"not null;uniqueIndex:idx_sub_user_channel"`
	ChannelID  int64          `gorm:"not null;uniqueIndex:idx_sub_user_channel;index"`
	ExpiryDate datatypes.Date `gorm:"not null;index"`
}

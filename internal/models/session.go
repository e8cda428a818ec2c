// Package models defines the GORM data model for Parley.
package models

import "time"

// Session status values.
const (
	SessionActive   = "active"
	SessionArchived = "archived"
)

// Session is one conversation between a user and a provider model.
type Session struct {
	ID                string    `gorm:"primaryKey;size:36"`
	OwnerID           string    `gorm:"size:64;not null;index"`
	ProviderID        string    `gorm:"size:64;not null"`
	ProviderKind      string    `gorm:"size:16;not null"`
	ModelID           string    `gorm:"size:128;not null"`
	Title             string    `gorm:"size:256"`
	LastInteractionAt time.Time `gorm:"index"`
	Pinned            bool      `gorm:"default:false"`
	Status            string    `gorm:"size:16;default:active;index"` // active, archived
	LiveConnectionID  *string   `gorm:"size:36"`
	// Version guards every metadata write. A write only succeeds when the
	// caller's loaded version matches the stored one; success increments it.
	Version int64 `gorm:"not null;default:1"`
	// TurnLeaseUntil serializes turns on one session. While a turn holds the
	// lease no second turn may start.
	TurnLeaseUntil *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time

	Events []SessionEvent `gorm:"foreignKey:SessionID"`
}

// SessionEvent is one append-only turn record. Rows are immutable once written.
type SessionEvent struct {
	ID           uint      `gorm:"primaryKey;autoIncrement"`
	SessionID    string    `gorm:"size:36;not null;index"`
	MessageID    string    `gorm:"size:36;not null;index"`
	Role         string    `gorm:"size:16;not null"` // user, assistant, system
	Content      string    `gorm:"type:mediumtext"`
	PartsJSON    string    `gorm:"type:json"` // multimodal parts, empty for plain text
	ImageRef     string    `gorm:"size:512"`
	InputTokens  int       `gorm:"default:0"`
	OutputTokens int       `gorm:"default:0"`
	CreatedBy    string    `gorm:"size:64"`
	CreatedAt    time.Time `gorm:"index"`

	Session Session `gorm:"foreignKey:SessionID"`
}

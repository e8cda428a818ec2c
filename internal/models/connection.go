package models

import "time"

// ConnectionRegistration tracks a live realtime push connection. Rows are
// deleted on graceful disconnect or stale-send detection; the expiry lets
// garbage collection work without an explicit disconnect signal.
type ConnectionRegistration struct {
	ConnectionID string    `gorm:"primaryKey;size:36"`
	OwnerID      string    `gorm:"size:64;not null;index"`
	ExpiresAt    time.Time `gorm:"index"`
	CreatedAt    time.Time
}

// Package session provides conversation persistence primitives.
package session

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/quarterwave/parley/internal/models"
	"gorm.io/gorm"
)

// ErrVersionConflict means a concurrent writer won; the caller holds a stale
// Session and must reload before retrying.
var ErrVersionConflict = errors.New("session: version conflict")

// ErrNotFound means the session does not exist.
var ErrNotFound = errors.New("session: not found")

// ErrTurnInProgress means another turn currently holds the session's lease.
var ErrTurnInProgress = errors.New("session: turn in progress")

// DefaultTurnLease bounds how long one turn may hold a session before a
// competing turn can reclaim it.
const DefaultTurnLease = 5 * time.Minute

// Create inserts a new active session and returns it.
func Create(db *gorm.DB, ownerID, providerID, providerKind, modelID string) (*models.Session, error) {
	if ownerID == "" {
		return nil, fmt.Errorf("session: ownerID is required")
	}
	if providerID == "" {
		return nil, fmt.Errorf("session: providerID is required")
	}
	if modelID == "" {
		return nil, fmt.Errorf("session: modelID is required")
	}
	s := models.Session{
		ID:                uuid.NewString(),
		OwnerID:           ownerID,
		ProviderID:        providerID,
		ProviderKind:      providerKind,
		ModelID:           modelID,
		Status:            "active",
		LastInteractionAt: time.Now(),
		Version:           1,
	}
	if err := db.Create(&s).Error; err != nil {
		return nil, fmt.Errorf("session: create: %w", err)
	}
	return &s, nil
}

// Get loads a session by id.
func Get(db *gorm.DB, id string) (*models.Session, error) {
	var s models.Session
	err := db.First(&s, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("session: get %s: %w", id, err)
	}
	return &s, nil
}

// ListByOwner returns the owner's sessions, most recently used first.
func ListByOwner(db *gorm.DB, ownerID string) ([]models.Session, error) {
	var out []models.Session
	if err := db.Where("owner_id = ?", ownerID).
		Order("pinned DESC, last_interaction_at DESC").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("session: list for %s: %w", ownerID, err)
	}
	return out, nil
}

// UpdateMeta applies a metadata write guarded by the optimistic version
// check. The write succeeds only when s.Version matches the stored row; on
// success the stored version increments by exactly one and s is updated in
// place. A lost race returns ErrVersionConflict.
func UpdateMeta(db *gorm.DB, s *models.Session, set map[string]interface{}) error {
	if s == nil || s.ID == "" {
		return fmt.Errorf("session: session is required")
	}
	updates := make(map[string]interface{}, len(set)+1)
	for k, v := range set {
		updates[k] = v
	}
	updates["version"] = s.Version + 1

	result := db.Model(&models.Session{}).
		Where("id = ? AND version = ?", s.ID, s.Version).
		Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("session: update %s: %w", s.ID, result.Error)
	}
	if result.RowsAffected == 0 {
		if _, err := Get(db, s.ID); err != nil {
			return err
		}
		return ErrVersionConflict
	}
	s.Version++
	return nil
}

// AppendEvent writes one immutable turn record.
func AppendEvent(db *gorm.DB, evt *models.SessionEvent) error {
	if evt.SessionID == "" {
		return fmt.Errorf("session: event sessionID is required")
	}
	if evt.Role == "" {
		return fmt.Errorf("session: event role is required")
	}
	if evt.MessageID == "" {
		evt.MessageID = uuid.NewString()
	}
	if evt.CreatedAt.IsZero() {
		evt.CreatedAt = time.Now()
	}
	if err := db.Create(evt).Error; err != nil {
		return fmt.Errorf("session: append event: %w", err)
	}
	return nil
}

// History returns a session's events in chronological order. limit > 0
// keeps only the most recent events.
func History(db *gorm.DB, sessionID string, limit int) ([]models.SessionEvent, error) {
	q := db.Where("session_id = ?", sessionID)
	if limit > 0 {
		q = q.Order("created_at DESC, id DESC").Limit(limit)
	} else {
		q = q.Order("created_at ASC, id ASC")
	}
	var out []models.SessionEvent
	if err := q.Find(&out).Error; err != nil {
		return nil, fmt.Errorf("session: history %s: %w", sessionID, err)
	}
	if limit > 0 {
		for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
			out[i], out[j] = out[j], out[i]
		}
	}
	return out, nil
}

// Delete removes a session and all its events. Attachment blobs are the
// caller's responsibility (they live outside the database).
func Delete(db *gorm.DB, id string) error {
	return db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("session_id = ?", id).Delete(&models.SessionEvent{}).Error; err != nil {
			return fmt.Errorf("session: delete events for %s: %w", id, err)
		}
		result := tx.Delete(&models.Session{}, "id = ?", id)
		if result.Error != nil {
			return fmt.Errorf("session: delete %s: %w", id, result.Error)
		}
		if result.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
}

// AcquireTurnLease claims the session's turn lease so concurrent turns on
// one session cannot interleave metadata writes. Expired leases are
// reclaimed; an unexpired lease returns ErrTurnInProgress.
func AcquireTurnLease(db *gorm.DB, sessionID string, ttl time.Duration, now time.Time) error {
	if ttl <= 0 {
		ttl = DefaultTurnLease
	}
	until := now.Add(ttl)
	result := db.Model(&models.Session{}).
		Where("id = ? AND (turn_lease_until IS NULL OR turn_lease_until < ?)", sessionID, now).
		Update("turn_lease_until", until)
	if result.Error != nil {
		return fmt.Errorf("session: acquire lease %s: %w", sessionID, result.Error)
	}
	if result.RowsAffected == 0 {
		if _, err := Get(db, sessionID); err != nil {
			return err
		}
		return ErrTurnInProgress
	}
	return nil
}

// ReleaseTurnLease clears the session's turn lease.
func ReleaseTurnLease(db *gorm.DB, sessionID string) error {
	if err := db.Model(&models.Session{}).
		Where("id = ?", sessionID).
		Update("turn_lease_until", nil).Error; err != nil {
		return fmt.Errorf("session: release lease %s: %w", sessionID, err)
	}
	return nil
}

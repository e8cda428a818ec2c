package catalog

import (
	"errors"
	"fmt"
	"time"

	"github.com/quarterwave/parley/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// StaleAfter is the catalog freshness window.
const StaleAfter = 7 * 24 * time.Hour

// ErrNotFound means no cache entry exists for the provider.
var ErrNotFound = errors.New("catalog: not found")

// ErrModelNotFound means the model id is not in the provider's cache.
var ErrModelNotFound = errors.New("catalog: model not found")

// IsStale reports whether the cache entry is older than the freshness
// window, strictly greater-than: an entry exactly StaleAfter old is not
// stale. A never-refreshed entry is always stale.
func IsStale(entry *models.ModelCache, now time.Time) bool {
	if entry == nil || entry.LastRefreshed == nil {
		return true
	}
	return now.Sub(*entry.LastRefreshed) > StaleAfter
}

// Merge builds the next model list from curated output and the previous
// cache: curated entries become fresh rows with all capability flags reset
// to unknown, existing blacklist flags are re-applied by id, and every
// previously stored manual entry is appended unmodified.
func Merge(curated []CuratedModel, previous []models.ModelData) []models.ModelData {
	blacklisted := make(map[string]bool)
	for _, prev := range previous {
		if prev.Blacklisted {
			blacklisted[prev.ID] = true
		}
	}

	out := make([]models.ModelData, 0, len(curated))
	for _, c := range curated {
		out = append(out, models.ModelData{
			ID:                      c.ID,
			Label:                   c.DisplayName,
			SupportsImageGeneration: models.CapUnknown,
			SupportsTTS:             models.CapUnknown,
			SupportsTranscription:   models.CapUnknown,
			SupportsFileUpload:      models.CapUnknown,
			Source:                  models.SourceCurated,
			Blacklisted:             blacklisted[c.ID],
		})
	}
	for _, prev := range previous {
		if prev.Source == models.SourceManual {
			out = append(out, prev)
		}
	}
	return out
}

// Get loads the cache entry for a provider.
func Get(db *gorm.DB, providerID string) (*models.ModelCache, error) {
	var entry models.ModelCache
	err := db.First(&entry, "provider_id = ?", providerID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("catalog: get %s: %w", providerID, err)
	}
	return &entry, nil
}

// SaveSuccess overwrites the provider's cache entry with the merged list and
// records success metadata.
func SaveSuccess(db *gorm.DB, providerID string, data []models.ModelData, source string, now time.Time) error {
	entry := models.ModelCache{
		ProviderID:         providerID,
		RefreshSource:      source,
		LastRefreshed:      &now,
		LastRefreshAttempt: &now,
		LastRefreshStatus:  models.RefreshOK,
		LastRefreshError:   "",
	}
	if err := entry.SetModels(data); err != nil {
		return err
	}
	result := db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "provider_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"models_json", "refresh_source", "last_refreshed",
			"last_refresh_attempt", "last_refresh_status", "last_refresh_error",
		}),
	}).Create(&entry)
	if result.Error != nil {
		return fmt.Errorf("catalog: save %s: %w", providerID, result.Error)
	}
	return nil
}

// RecordFailure records refresh failure metadata while leaving the cached
// model list and its last-refreshed timestamp untouched. Stale-but-valid
// data always beats an empty cache.
func RecordFailure(db *gorm.DB, providerID string, now time.Time, cause error) error {
	entry := models.ModelCache{
		ProviderID:         providerID,
		LastRefreshAttempt: &now,
		LastRefreshStatus:  models.RefreshError,
		LastRefreshError:   cause.Error(),
	}
	result := db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "provider_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"last_refresh_attempt", "last_refresh_status", "last_refresh_error",
		}),
	}).Create(&entry)
	if result.Error != nil {
		return fmt.Errorf("catalog: record failure %s: %w", providerID, result.Error)
	}
	return nil
}

// ReplaceModels rewrites only the provider's model list, preserving refresh
// metadata. Used by the capability prober's bulk write.
func ReplaceModels(db *gorm.DB, providerID string, data []models.ModelData) error {
	entry := models.ModelCache{ProviderID: providerID}
	if err := entry.SetModels(data); err != nil {
		return err
	}
	result := db.Model(&models.ModelCache{}).
		Where("provider_id = ?", providerID).
		Update("models_json", entry.ModelsJSON)
	if result.Error != nil {
		return fmt.Errorf("catalog: replace models %s: %w", providerID, result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateModelCapabilities writes one model's probed capability flags back to
// the cache, leaving every other entry untouched.
func UpdateModelCapabilities(db *gorm.DB, providerID string, updated models.ModelData) error {
	entry, err := Get(db, providerID)
	if err != nil {
		return err
	}
	list, err := entry.Models()
	if err != nil {
		return err
	}
	found := false
	for i := range list {
		if list[i].ID == updated.ID {
			list[i].SupportsImageGeneration = updated.SupportsImageGeneration
			list[i].SupportsTTS = updated.SupportsTTS
			list[i].SupportsTranscription = updated.SupportsTranscription
			list[i].SupportsFileUpload = updated.SupportsFileUpload
			found = true
			break
		}
	}
	if !found {
		return ErrModelNotFound
	}
	return ReplaceModels(db, providerID, list)
}

// AddManualModel appends a manually curated model to the provider's cache.
// Manual entries persist across refreshes untouched.
func AddManualModel(db *gorm.DB, providerID, modelID, label string) error {
	if modelID == "" {
		return fmt.Errorf("catalog: modelID is required")
	}
	if label == "" {
		label = modelID
	}
	entry, err := Get(db, providerID)
	if errors.Is(err, ErrNotFound) {
		entry = &models.ModelCache{ProviderID: providerID}
	} else if err != nil {
		return err
	}
	list, err := entry.Models()
	if err != nil {
		return err
	}
	for _, m := range list {
		if m.ID == modelID {
			return fmt.Errorf("catalog: model %s already present for %s", modelID, providerID)
		}
	}
	list = append(list, models.ModelData{
		ID:                      modelID,
		Label:                   label,
		SupportsImageGeneration: models.CapUnknown,
		SupportsTTS:             models.CapUnknown,
		SupportsTranscription:   models.CapUnknown,
		SupportsFileUpload:      models.CapUnknown,
		Source:                  models.SourceManual,
	})
	if err := entry.SetModels(list); err != nil {
		return err
	}
	result := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "provider_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"models_json"}),
	}).Create(entry)
	if result.Error != nil {
		return fmt.Errorf("catalog: add manual model %s: %w", modelID, result.Error)
	}
	return nil
}

// SetBlacklisted toggles a model's blacklist flag by id.
func SetBlacklisted(db *gorm.DB, providerID, modelID string, blacklisted bool) error {
	entry, err := Get(db, providerID)
	if err != nil {
		return err
	}
	list, err := entry.Models()
	if err != nil {
		return err
	}
	for i := range list {
		if list[i].ID == modelID {
			list[i].Blacklisted = blacklisted
			return ReplaceModels(db, providerID, list)
		}
	}
	return ErrModelNotFound
}

package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// Capability is a tri-state probe result. Unknown means "not yet tested",
// which is distinct from a tested negative.
type Capability string

const (
	CapYes     Capability = "yes"
	CapNo      Capability = "no"
	CapUnknown Capability = "unknown"
)

// Valid reports whether c is one of the three capability states.
func (c Capability) Valid() bool {
	return c == CapYes || c == CapNo || c == CapUnknown
}

// Model sources.
const (
	SourceCurated = "curated"
	SourceManual  = "manual"
)

// Refresh trigger sources and statuses.
const (
	RefreshScheduled = "scheduled"
	RefreshManual    = "manual"
	RefreshOK        = "ok"
	RefreshError     = "error"
)

// ModelData is one catalog entry for a provider model. Stored as JSON inside
// ModelCache, not as its own table.
type ModelData struct {
	ID                      string     `json:"id"`
	Label                   string     `json:"label"`
	SupportsImageGeneration Capability `json:"supportsImageGeneration"`
	SupportsTTS             Capability `json:"supportsTTS"`
	SupportsTranscription   Capability `json:"supportsTranscription"`
	SupportsFileUpload      Capability `json:"supportsFileUpload"`
	Source                  string     `json:"source"` // curated, manual
	Blacklisted             bool       `json:"blacklisted"`
}

// ModelCache holds the cached model list for one provider. The models list is
// fully overwritten on a successful refresh and preserved on failure.
type ModelCache struct {
	ProviderID         string `gorm:"primaryKey;size:64"`
	ModelsJSON         string `gorm:"type:json"`
	LastRefreshed      *time.Time
	RefreshSource      string `gorm:"size:16"` // scheduled, manual
	LastRefreshAttempt *time.Time
	LastRefreshStatus  string `gorm:"size:16"` // ok, error
	LastRefreshError   string `gorm:"type:text"`
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// Models decodes the cached model list. An empty cache decodes to nil.
func (m *ModelCache) Models() ([]ModelData, error) {
	if m.ModelsJSON == "" {
		return nil, nil
	}
	var out []ModelData
	if err := json.Unmarshal([]byte(m.ModelsJSON), &out); err != nil {
		return nil, fmt.Errorf("models: decode cache for %s: %w", m.ProviderID, err)
	}
	return out, nil
}

// SetModels encodes the model list into ModelsJSON.
func (m *ModelCache) SetModels(data []ModelData) error {
	b, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("models: encode cache for %s: %w", m.ProviderID, err)
	}
	m.ModelsJSON = string(b)
	return nil
}

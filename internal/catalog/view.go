package catalog

import (
	"errors"
	"time"

	"github.com/quarterwave/parley/internal/config"
	"github.com/quarterwave/parley/internal/models"
	"gorm.io/gorm"
)

// ModelView is one catalog row shaped for polling admin clients.
type ModelView struct {
	ID                      string            `json:"id"`
	Label                   string            `json:"label"`
	SupportsImageGeneration models.Capability `json:"supportsImageGeneration"`
	SupportsTTS             models.Capability `json:"supportsTTS"`
	SupportsTranscription   models.Capability `json:"supportsTranscription"`
	SupportsFileUpload      models.Capability `json:"supportsFileUpload"`
	Source                  string            `json:"source"`
	Blacklisted             bool              `json:"blacklisted"`
}

// ProviderView is one provider's catalog entry with refresh metadata.
type ProviderView struct {
	ProviderID        string      `json:"providerId"`
	ProviderName      string      `json:"providerName"`
	Models            []ModelView `json:"models"`
	LastRefreshed     *time.Time  `json:"lastRefreshed"`
	LastRefreshStatus string      `json:"lastRefreshStatus"`
	LastRefreshError  string      `json:"lastRefreshError,omitempty"`
	Stale             bool        `json:"stale"`
}

// View assembles the catalog read model for every configured provider.
// Providers without a cache entry appear with an empty model list.
func View(db *gorm.DB, providers []config.ProviderConfig, now time.Time) ([]ProviderView, error) {
	out := make([]ProviderView, 0, len(providers))
	for _, p := range providers {
		view := ProviderView{
			ProviderID:   p.ID,
			ProviderName: p.Name,
			Models:       []ModelView{},
			Stale:        true,
		}
		entry, err := Get(db, p.ID)
		if errors.Is(err, ErrNotFound) {
			out = append(out, view)
			continue
		}
		if err != nil {
			return nil, err
		}
		list, err := entry.Models()
		if err != nil {
			return nil, err
		}
		for _, m := range list {
			view.Models = append(view.Models, ModelView{
				ID:                      m.ID,
				Label:                   m.Label,
				SupportsImageGeneration: m.SupportsImageGeneration,
				SupportsTTS:             m.SupportsTTS,
				SupportsTranscription:   m.SupportsTranscription,
				SupportsFileUpload:      m.SupportsFileUpload,
				Source:                  m.Source,
				Blacklisted:             m.Blacklisted,
			})
		}
		view.LastRefreshed = entry.LastRefreshed
		view.LastRefreshStatus = entry.LastRefreshStatus
		view.LastRefreshError = entry.LastRefreshError
		view.Stale = IsStale(entry, now)
		out = append(out, view)
	}
	return out, nil
}

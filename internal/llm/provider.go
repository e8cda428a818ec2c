package llm

import (
	"fmt"

	"github.com/quarterwave/parley/internal/config"
)

// ClientFor resolves a configured provider to a ready client: credential
// from the source, kind through the registry.
func (r *Registry) ClientFor(p config.ProviderConfig, creds CredentialSource) (Client, error) {
	key, err := creds.APIKey(p.ID)
	if err != nil {
		return nil, fmt.Errorf("llm: client for %s: %w", p.ID, err)
	}
	return r.New(ParseKind(p.Kind), key, p.BaseURL)
}

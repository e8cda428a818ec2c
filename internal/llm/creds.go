package llm

import (
	"fmt"
	"os"
	"sync"
)

// CredentialSource resolves a per-provider API credential.
type CredentialSource interface {
	APIKey(providerID string) (string, error)
}

// EnvCredentialSource resolves credentials from environment variables and
// caches resolved values.
type EnvCredentialSource struct {
	mu    sync.Mutex
	vars  map[string]string // provider id -> env var name
	cache map[string]string
}

// NewEnvCredentialSource builds a source from a provider-id to env-var map.
func NewEnvCredentialSource(vars map[string]string) *EnvCredentialSource {
	return &EnvCredentialSource{
		vars:  vars,
		cache: make(map[string]string),
	}
}

// APIKey returns the credential for a provider, reading the mapped
// environment variable on first use.
func (s *EnvCredentialSource) APIKey(providerID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if key, ok := s.cache[providerID]; ok {
		return key, nil
	}
	envName, ok := s.vars[providerID]
	if !ok {
		return "", fmt.Errorf("llm: no credential configured for provider %q", providerID)
	}
	key := os.Getenv(envName)
	if key == "" {
		return "", fmt.Errorf("llm: env var %s for provider %q is empty", envName, providerID)
	}
	s.cache[providerID] = key
	return key, nil
}

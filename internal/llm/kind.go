package llm

import (
	"fmt"
	"strings"
	"sync"
)

// Kind is a closed enum of supported provider kinds. Adapter dispatch is
// keyed by Kind through a Registry rather than ad hoc string switches.
type Kind string

const (
	// KindOpenAI talks to api.openai.com.
	KindOpenAI Kind = "openai"
	// KindCompatible talks to any OpenAI-compatible endpoint via a custom
	// base URL (DeepSeek, Ollama, vLLM and friends).
	KindCompatible Kind = "compatible"
)

// ParseKind maps a configuration string to a Kind. Unknown values resolve
// deterministically to KindCompatible.
func ParseKind(s string) Kind {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "openai":
		return KindOpenAI
	case "compatible":
		return KindCompatible
	default:
		return KindCompatible
	}
}

// Constructor builds a Client for one provider kind.
type Constructor func(apiKey, baseURL string) (Client, error)

// Registry resolves provider kinds to client constructors.
type Registry struct {
	mu    sync.RWMutex
	ctors map[Kind]Constructor
}

// NewRegistry returns a Registry with the built-in kinds registered.
func NewRegistry() *Registry {
	r := &Registry{ctors: make(map[Kind]Constructor)}
	r.Register(KindOpenAI, func(apiKey, baseURL string) (Client, error) {
		return NewOpenAIClient(apiKey, baseURL)
	})
	r.Register(KindCompatible, func(apiKey, baseURL string) (Client, error) {
		return NewOpenAIClient(apiKey, baseURL)
	})
	return r
}

// Register installs a constructor for a kind, replacing any existing one.
func (r *Registry) Register(k Kind, c Constructor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ctors[k] = c
}

// New builds a client for the kind. Unregistered kinds fall back to the
// KindCompatible constructor.
func (r *Registry) New(k Kind, apiKey, baseURL string) (Client, error) {
	r.mu.RLock()
	ctor, ok := r.ctors[k]
	if !ok {
		ctor = r.ctors[KindCompatible]
	}
	r.mu.RUnlock()
	if ctor == nil {
		return nil, fmt.Errorf("llm: no constructor registered for kind %q", k)
	}
	return ctor(apiKey, baseURL)
}

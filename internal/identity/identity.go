// Package identity resolves opaque caller tokens to owner ids. Real
// verification (JWT validation, session claims) is an external collaborator
// in front of this service.
package identity

import (
	"context"
	"fmt"
)

// Resolver maps an opaque caller token to an owner id.
type Resolver interface {
	Resolve(ctx context.Context, token string) (string, error)
}

// StaticResolver resolves from a fixed token to owner-id map. Suitable for
// tests and single-tenant deployments.
type StaticResolver map[string]string

// Resolve implements Resolver.
func (r StaticResolver) Resolve(ctx context.Context, token string) (string, error) {
	if token == "" {
		return "", fmt.Errorf("identity: token is required")
	}
	owner, ok := r[token]
	if !ok {
		return "", fmt.Errorf("identity: unknown token")
	}
	return owner, nil
}

// TrustedResolver treats the token itself as the owner id. For deployments
// where an authenticating proxy already verified the caller and injects the
// resolved subject.
type TrustedResolver struct{}

// Resolve implements Resolver.
func (TrustedResolver) Resolve(ctx context.Context, token string) (string, error) {
	if token == "" {
		return "", fmt.Errorf("identity: token is required")
	}
	return token, nil
}

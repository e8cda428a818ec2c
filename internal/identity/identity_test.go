package identity

import (
	"context"
	"testing"
)

func TestStaticResolver(t *testing.T) {
	r := StaticResolver{"token-1": "alice"}

	owner, err := r.Resolve(context.Background(), "token-1")
	if err != nil || owner != "alice" {
		t.Errorf("Resolve(token-1) = %q, %v, want alice", owner, err)
	}
	if _, err := r.Resolve(context.Background(), "unknown"); err == nil {
		t.Error("Resolve(unknown) error = nil, want rejection")
	}
	if _, err := r.Resolve(context.Background(), ""); err == nil {
		t.Error("Resolve(empty) error = nil, want rejection")
	}
}

func TestTrustedResolver(t *testing.T) {
	r := TrustedResolver{}
	owner, err := r.Resolve(context.Background(), "alice")
	if err != nil || owner != "alice" {
		t.Errorf("Resolve(alice) = %q, %v, want the token back", owner, err)
	}
	if _, err := r.Resolve(context.Background(), ""); err == nil {
		t.Error("Resolve(empty) error = nil, want rejection")
	}
}

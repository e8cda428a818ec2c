package blob

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestFSStore_PutGetURL(t *testing.T) {
	store, err := NewFSStore(t.TempDir(), "http://localhost:8080/blobs/")
	if err != nil {
		t.Fatalf("NewFSStore() error = %v", err)
	}
	ctx := context.Background()

	url, err := store.Put(ctx, "images/s1/m1.png", []byte("png-bytes"), "image/png")
	if err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	want := "http://localhost:8080/blobs/images/s1/m1.png"
	if url != want {
		t.Errorf("Put() url = %q, want %q", url, want)
	}
	if got := store.URL("images/s1/m1.png"); got != want {
		t.Errorf("URL() = %q, want %q", got, want)
	}

	data, err := store.Get(ctx, "images/s1/m1.png")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if string(data) != "png-bytes" {
		t.Errorf("Get() = %q, want png-bytes", data)
	}
}

func TestFSStore_RejectsTraversal(t *testing.T) {
	dir := t.TempDir()
	store, _ := NewFSStore(dir, "http://test")
	ctx := context.Background()

	// Traversal segments are collapsed inside the root.
	if _, err := store.Put(ctx, "../escape.txt", []byte("x"), "text/plain"); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if _, err := os.Stat(filepath.Join(filepath.Dir(dir), "escape.txt")); err == nil {
		t.Error("Put() wrote outside the store root")
	}
	if _, err := os.Stat(filepath.Join(dir, "escape.txt")); err != nil {
		t.Errorf("collapsed key not written inside the root: %v", err)
	}

	if _, err := store.Put(ctx, "", []byte("x"), "text/plain"); err == nil {
		t.Error("Put(empty key) error = nil, want rejection")
	}
	if _, err := store.Put(ctx, "..", []byte("x"), "text/plain"); err == nil {
		t.Error("Put(..) error = nil, want rejection")
	}
}

func TestFSStore_DeletePrefix(t *testing.T) {
	store, _ := NewFSStore(t.TempDir(), "http://test")
	ctx := context.Background()

	store.Put(ctx, "uploads/alice/s1/a.txt", []byte("a"), "text/plain")
	store.Put(ctx, "uploads/alice/s1/b.txt", []byte("b"), "text/plain")
	store.Put(ctx, "uploads/alice/s2/c.txt", []byte("c"), "text/plain")

	if err := store.DeletePrefix(ctx, "uploads/alice/s1"); err != nil {
		t.Fatalf("DeletePrefix() error = %v", err)
	}
	if _, err := store.Get(ctx, "uploads/alice/s1/a.txt"); err == nil {
		t.Error("Get() after DeletePrefix succeeded, want gone")
	}
	if _, err := store.Get(ctx, "uploads/alice/s2/c.txt"); err != nil {
		t.Errorf("sibling prefix deleted too: %v", err)
	}
}

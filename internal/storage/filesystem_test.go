package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func newTestStore(t *testing.T) *FileStore {
	t.Helper()
	store, err := NewFileStore(FileStoreConfig{
		RootDir:       t.TempDir(),
		PublicBaseURL: "https://cdn.pulse.example/",
	})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	return store
}

func TestUploadWritesObjectBytes(t *testing.T) {
	store := newTestStore(t)

	payload := []byte("avatar-bytes")
	if err := store.Upload(context.Background(), "profile_pictures/u1/avatar.png", payload, true); err != nil {
		t.Fatalf("upload failed: %v", err)
	}

	written, err := os.ReadFile(filepath.Join(store.RootDir(), "profile_pictures", "u1", "avatar.png"))
	if err != nil {
		t.Fatalf("failed to read stored object: %v", err)
	}
	if string(written) != string(payload) {
		t.Fatalf("stored bytes mismatch: %q", written)
	}
}

func TestUploadOverwriteReplacesExistingObject(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.Upload(ctx, "profile_pictures/u1/avatar.png", []byte("old"), true); err != nil {
		t.Fatalf("first upload failed: %v", err)
	}
	if err := store.Upload(ctx, "profile_pictures/u1/avatar.png", []byte("new"), true); err != nil {
		t.Fatalf("overwrite upload failed: %v", err)
	}

	written, err := os.ReadFile(filepath.Join(store.RootDir(), "profile_pictures", "u1", "avatar.png"))
	if err != nil {
		t.Fatalf("failed to read stored object: %v", err)
	}
	if string(written) != "new" {
		t.Fatalf("expected latest upload to win, got %q", written)
	}
}

func TestUploadWithoutOverwriteKeepsExistingObject(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.Upload(ctx, "docs/report.txt", []byte("original"), false); err != nil {
		t.Fatalf("first upload failed: %v", err)
	}
	if err := store.Upload(ctx, "docs/report.txt", []byte("replacement"), false); !errors.Is(err, ErrObjectExists) {
		t.Fatalf("expected ErrObjectExists, got %v", err)
	}

	written, err := os.ReadFile(filepath.Join(store.RootDir(), "docs", "report.txt"))
	if err != nil {
		t.Fatalf("failed to read stored object: %v", err)
	}
	if string(written) != "original" {
		t.Fatalf("expected original bytes to survive, got %q", written)
	}
}

func TestUploadRejectsEscapingPaths(t *testing.T) {
	store := newTestStore(t)

	if err := store.Upload(context.Background(), "../outside.txt", []byte("x"), true); !errors.Is(err, ErrInvalidPath) {
		t.Fatalf("expected ErrInvalidPath, got %v", err)
	}
	if err := store.Upload(context.Background(), "   ", []byte("x"), true); !errors.Is(err, ErrInvalidPath) {
		t.Fatalf("expected ErrInvalidPath for blank path, got %v", err)
	}
}

func TestPublicURLJoinsBaseAndPath(t *testing.T) {
	store := newTestStore(t)

	url := store.PublicURL("/profile_pictures/u1/avatar.png")
	if url != "https://cdn.pulse.example/media/profile_pictures/u1/avatar.png" {
		t.Fatalf("unexpected public url %q", url)
	}
}

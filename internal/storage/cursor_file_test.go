package storage

import (
	"context"
	"path/filepath"
	"testing"
)

func TestFileCursorRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "cursor.json")
	store := &FileCursorStore{Path: path}
	ctx := context.Background()

	_, ok, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("load empty: %v", err)
	}
	if ok {
		t.Fatalf("expected no cursor before first save")
	}

	if err := store.Save(ctx, 12345); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := store.Save(ctx, 12400); err != nil {
		t.Fatalf("save again: %v", err)
	}

	block, ok, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !ok || block != 12400 {
		t.Fatalf("cursor mismatch: ok=%v block=%d", ok, block)
	}
}

func TestFileCursorEmptyPath(t *testing.T) {
	store := &FileCursorStore{}
	ctx := context.Background()

	if err := store.Save(ctx, 1); err != nil {
		t.Fatalf("save with empty path should be a no-op: %v", err)
	}
	_, ok, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("load with empty path: %v", err)
	}
	if ok {
		t.Fatalf("expected no cursor for empty path")
	}
}

package objstore

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestFSStore_PutFetchDelete(t *testing.T) {
	ctx := context.Background()
	store, err := NewFSStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFSStore failed: %v", err)
	}

	data := []byte("%PDF-1.4 resumen")
	path, err := store.Put(ctx, "statements/user-1/abc-resumen.pdf", data, "application/pdf")
	if err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	got, err := store.Fetch(ctx, path)
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if string(got) != string(data) {
		t.Errorf("Fetch returned %q, want %q", got, data)
	}

	if err := store.Delete(ctx, path); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := store.Fetch(ctx, path); err == nil {
		t.Error("Fetch succeeded after Delete")
	}
}

func TestFSStore_RejectsEscapingPaths(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	store, err := NewFSStore(filepath.Join(root, "uploads"))
	if err != nil {
		t.Fatalf("NewFSStore failed: %v", err)
	}

	for _, name := range []string{"../outside.pdf", "/etc/passwd", "a/../../outside"} {
		if _, err := store.Put(ctx, name, []byte("x"), ""); err == nil {
			t.Errorf("Put(%q) should have been rejected", name)
		}
	}

	if _, err := os.Stat(filepath.Join(root, "outside.pdf")); err == nil {
		t.Error("escaping path was written outside the root")
	}
}

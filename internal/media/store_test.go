package media

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestStoreSave(t *testing.T) {
	store, err := NewStore(t.TempDir(), 0)
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}

	path, err := store.Save("clinic-a", "results.pdf", strings.NewReader("%PDF-1.4 fake"))
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if filepath.Ext(path) != ".pdf" {
		t.Errorf("stored extension = %q, want .pdf", filepath.Ext(path))
	}
	if base := filepath.Base(path); strings.Contains(base, "results") {
		t.Errorf("stored name %q leaks the original filename", base)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading stored file: %v", err)
	}
	if string(data) != "%PDF-1.4 fake" {
		t.Errorf("stored content = %q, want original bytes", data)
	}
}

func TestStoreSaveRejectsUnsupportedType(t *testing.T) {
	store, _ := NewStore(t.TempDir(), 0)

	for _, name := range []string{"script.exe", "payload.sh", "noext", "archive.zip"} {
		if _, err := store.Save("clinic-a", name, strings.NewReader("x")); !errors.Is(err, ErrUnsupportedType) {
			t.Errorf("Save(%q) error = %v, want ErrUnsupportedType", name, err)
		}
	}
}

func TestStoreSaveEnforcesSizeCeiling(t *testing.T) {
	dir := t.TempDir()
	store, _ := NewStore(dir, 10)

	if _, err := store.Save("clinic-a", "small.txt", strings.NewReader("under ten")); err != nil {
		t.Errorf("Save(under limit) error = %v", err)
	}

	_, err := store.Save("clinic-a", "big.txt", strings.NewReader("well over the ten byte limit"))
	if !errors.Is(err, ErrTooLarge) {
		t.Fatalf("Save(over limit) error = %v, want ErrTooLarge", err)
	}

	// The oversized partial write must not linger on disk.
	entries, _ := os.ReadDir(filepath.Join(dir, "clinic-a"))
	if len(entries) != 1 {
		t.Errorf("tenant dir holds %d files, want 1 (oversized upload removed)", len(entries))
	}
}

func TestStorePurgeTenant(t *testing.T) {
	dir := t.TempDir()
	store, _ := NewStore(dir, 0)

	store.Save("clinic-a", "a.txt", strings.NewReader("x"))
	store.Save("clinic-b", "b.txt", strings.NewReader("y"))

	if err := store.PurgeTenant("clinic-a"); err != nil {
		t.Fatalf("PurgeTenant() error = %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "clinic-a")); !os.IsNotExist(err) {
		t.Error("clinic-a dir still present after purge")
	}
	if _, err := os.Stat(filepath.Join(dir, "clinic-b")); err != nil {
		t.Errorf("clinic-b dir disturbed by another tenant's purge: %v", err)
	}
}

func TestAllowed(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{"photo.JPG", true},
		{"doc.pdf", true},
		{"voice.ogg", true},
		{"binary.exe", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := Allowed(tt.name); got != tt.want {
			t.Errorf("Allowed(%q) = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestSweeperRemovesExpiredFiles(t *testing.T) {
	dir := t.TempDir()
	store, _ := NewStore(dir, 0)

	oldPath, _ := store.Save("clinic-a", "old.txt", strings.NewReader("old"))
	freshPath, _ := store.Save("clinic-a", "fresh.txt", strings.NewReader("fresh"))
	otherOld, _ := store.Save("clinic-b", "old.txt", strings.NewReader("old"))

	expired := time.Now().Add(-2 * time.Hour)
	os.Chtimes(oldPath, expired, expired)
	os.Chtimes(otherOld, expired, expired)

	sweeper := NewSweeper(store, time.Hour, time.Minute)
	removed, err := sweeper.Sweep(context.Background())
	if err != nil {
		t.Fatalf("Sweep() error = %v", err)
	}
	if removed != 2 {
		t.Errorf("Sweep() removed %d files, want 2", removed)
	}

	if _, err := os.Stat(oldPath); !os.IsNotExist(err) {
		t.Error("expired file survived the sweep")
	}
	if _, err := os.Stat(freshPath); err != nil {
		t.Errorf("fresh file removed by sweep: %v", err)
	}
	// clinic-b is now empty, so its directory goes too.
	if _, err := os.Stat(filepath.Join(dir, "clinic-b")); !os.IsNotExist(err) {
		t.Error("emptied tenant dir survived the sweep")
	}
}

func TestSweeperEmptyRoot(t *testing.T) {
	store, _ := NewStore(t.TempDir(), 0)
	sweeper := NewSweeper(store, time.Hour, time.Minute)

	removed, err := sweeper.Sweep(context.Background())
	if err != nil {
		t.Errorf("Sweep() error = %v", err)
	}
	if removed != 0 {
		t.Errorf("Sweep() removed %d, want 0", removed)
	}
}

package transport

import (
	"os"
	"testing"
)

func TestCursorLoadMissingIsZero(t *testing.T) {
	dir := t.TempDir()
	pos, err := loadCursor(dir, "builder-1")
	if err != nil {
		t.Fatalf("loadCursor: %v", err)
	}
	if pos != 0 {
		t.Fatalf("expected 0 for a missing cursor file, got %d", pos)
	}
}

func TestCursorSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	if err := saveCursor(dir, "builder-1", 42); err != nil {
		t.Fatalf("saveCursor: %v", err)
	}

	pos, err := loadCursor(dir, "builder-1")
	if err != nil {
		t.Fatalf("loadCursor: %v", err)
	}
	if pos != 42 {
		t.Fatalf("expected 42, got %d", pos)
	}
}

func TestCursorCorruptFileTreatedAsZero(t *testing.T) {
	dir := t.TempDir()
	path := cursorPath(dir, "builder-1")
	if err := os.WriteFile(path, []byte("not json"), 0o644); err != nil {
		t.Fatalf("os.WriteFile: %v", err)
	}

	pos, err := loadCursor(dir, "builder-1")
	if err != nil {
		t.Fatalf("loadCursor: %v", err)
	}
	if pos != 0 {
		t.Fatalf("expected a corrupt cursor file to be treated as position 0, got %d", pos)
	}
}

package fsutil

import (
	"os"
	"path/filepath"
	"testing"
)

func TestExpandHomeNoTilde(t *testing.T) {
	got, err := ExpandHome("/tmp/models")
	if err != nil {
		t.Fatalf("ExpandHome: %v", err)
	}
	if got != "/tmp/models" {
		t.Fatalf("expected passthrough, got %q", got)
	}
}

func TestExpandHomeTilde(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skipf("no home dir: %v", err)
	}
	got, err := ExpandHome("~/models")
	if err != nil {
		t.Fatalf("ExpandHome: %v", err)
	}
	if got != filepath.Join(home, "models") {
		t.Fatalf("expected %q, got %q", filepath.Join(home, "models"), got)
	}
}

func TestSafeIDRoundTrip(t *testing.T) {
	id := "Systran/faster-whisper-tiny"
	safe := SafeID(id)
	if safe != "Systran--faster-whisper-tiny" {
		t.Fatalf("SafeID = %q", safe)
	}
	if back := UnsafeID(safe); back != id {
		t.Fatalf("UnsafeID = %q, want %q", back, id)
	}
}

func TestDirSize(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "a.bin"), make([]byte, 100), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	sub := filepath.Join(dir, "sub")
	if err := os.MkdirAll(sub, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(sub, "b.bin"), make([]byte, 50), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if got := DirSize(dir); got != 150 {
		t.Fatalf("DirSize = %d, want 150", got)
	}
}

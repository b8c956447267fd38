package consumer

import (
	"os"
	"path/filepath"
	"testing"
)

func TestCursorStore_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cursors.json")

	s, err := OpenCursorStore(path)
	if err != nil {
		t.Fatalf("open missing file: %v", err)
	}
	if got := s.Get(CursorKeyOutbox); got != "" {
		t.Errorf("fresh store: got %q, want empty", got)
	}

	if err := s.Set(CursorKeyOutbox, "tok-1"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := s.Set(CursorKeyInbound, "msg-99"); err != nil {
		t.Fatalf("set: %v", err)
	}

	// A reopened store sees both keys.
	reopened, err := OpenCursorStore(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if got := reopened.Get(CursorKeyOutbox); got != "tok-1" {
		t.Errorf("outbox cursor: got %q, want tok-1", got)
	}
	if got := reopened.Get(CursorKeyInbound); got != "msg-99" {
		t.Errorf("inbound offset: got %q, want msg-99", got)
	}
}

func TestCursorStore_NoTempFilesLeftBehind(t *testing.T) {
	dir := t.TempDir()
	s, err := OpenCursorStore(filepath.Join(dir, "cursors.json"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := s.Set(CursorKeyOutbox, "tok"); err != nil {
		t.Fatalf("set: %v", err)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("readdir: %v", err)
	}
	if len(entries) != 1 || entries[0].Name() != "cursors.json" {
		names := make([]string, 0, len(entries))
		for _, e := range entries {
			names = append(names, e.Name())
		}
		t.Errorf("directory contents: %v, want only cursors.json", names)
	}
}

func TestCursorStore_RejectsCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cursors.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := OpenCursorStore(path); err == nil {
		t.Error("expected error for corrupt cursor file")
	}
}

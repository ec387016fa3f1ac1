package prefs

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestFileStore_MissingFileIsEmpty(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	s, err := NewFileStore("HaikuPlus-HaikuSession", "")
	if err != nil {
		t.Fatalf("NewFileStore returned error: %v", err)
	}
	if !strings.HasPrefix(s.Path(), home) {
		t.Fatalf("Path = %q, want it under HOME %q", s.Path(), home)
	}
	_, ok, err := s.Get("accountName")
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if ok {
		t.Fatalf("Get ok = true, want false for missing file")
	}
}

func TestFileStore_PutGetRemove(t *testing.T) {
	path := filepath.Join(t.TempDir(), "subdir", "session.toml")
	s, err := NewFileStore("session", path)
	if err != nil {
		t.Fatalf("NewFileStore returned error: %v", err)
	}

	if err := s.Put("accountName", "alice@example.com"); err != nil {
		t.Fatalf("Put returned error: %v", err)
	}
	if err := s.Put("sessionId", "abc"); err != nil {
		t.Fatalf("Put returned error: %v", err)
	}

	// A second store on the same file sees the durable write.
	other, err := NewFileStore("session", path)
	if err != nil {
		t.Fatalf("NewFileStore returned error: %v", err)
	}
	got, ok, err := other.Get("accountName")
	if err != nil || !ok || got != "alice@example.com" {
		t.Fatalf("Get = %q, %v, %v; want alice@example.com, true, nil", got, ok, err)
	}

	if err := s.Remove("sessionId"); err != nil {
		t.Fatalf("Remove returned error: %v", err)
	}
	if _, ok, _ := other.Get("sessionId"); ok {
		t.Fatalf("sessionId still present after Remove")
	}
	if got, ok, _ := other.Get("accountName"); !ok || got != "alice@example.com" {
		t.Fatalf("Remove cleared unrelated key: %q, %v", got, ok)
	}

	if err := s.Remove("missing"); err != nil {
		t.Fatalf("Remove missing key returned error: %v", err)
	}
}

func TestFileStore_InvalidTOMLFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prefs.toml")
	if err := os.WriteFile(path, []byte("not valid toml {{{\n"), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	s, err := NewFileStore("prefs", path)
	if err != nil {
		t.Fatalf("NewFileStore returned error: %v", err)
	}
	_, _, err = s.Get("accountName")
	if err == nil || !strings.Contains(err.Error(), "parse prefs") {
		t.Fatalf("Get error = %v, want parse prefs error", err)
	}
}

func TestNewFileStore_EmptyNameFails(t *testing.T) {
	if _, err := NewFileStore("  ", ""); err == nil {
		t.Fatalf("NewFileStore returned nil error, want error")
	}
}

func TestMemoryStore(t *testing.T) {
	s := NewMemoryStore("mem")
	if s.Name() != "mem" {
		t.Fatalf("Name = %q, want mem", s.Name())
	}
	_ = s.Put("k", "v")
	if got, ok, _ := s.Get("k"); !ok || got != "v" {
		t.Fatalf("Get = %q, %v; want v, true", got, ok)
	}
	_ = s.Remove("k")
	if _, ok, _ := s.Get("k"); ok {
		t.Fatalf("Get ok = true after Remove")
	}
}

func TestOpen_Backends(t *testing.T) {
	dir := t.TempDir()

	s, err := Open("", "a", filepath.Join(dir, "a.toml"))
	if err != nil {
		t.Fatalf("Open file returned error: %v", err)
	}
	if _, ok := s.(*FileStore); !ok {
		t.Fatalf("Open(\"\") = %T, want *FileStore", s)
	}

	s, err = Open("MEMORY", "b", "")
	if err != nil {
		t.Fatalf("Open memory returned error: %v", err)
	}
	if _, ok := s.(*MemoryStore); !ok {
		t.Fatalf("Open(memory) = %T, want *MemoryStore", s)
	}

	s, err = Open("sqlite", "c", filepath.Join(dir, "prefs.db"))
	if err != nil {
		t.Fatalf("Open sqlite returned error: %v", err)
	}
	sq, ok := s.(*SQLiteStore)
	if !ok {
		t.Fatalf("Open(sqlite) = %T, want *SQLiteStore", s)
	}
	t.Cleanup(func() { _ = sq.Close() })

	if _, err := Open("etcd", "d", ""); err == nil {
		t.Fatalf("Open unknown backend returned nil error")
	}
}

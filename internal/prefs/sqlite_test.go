package prefs

import (
	"path/filepath"
	"testing"
)

func newTestSQLiteStore(t *testing.T, name, dbPath string) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(name, dbPath)
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestSQLiteStore_CRUD(t *testing.T) {
	store := newTestSQLiteStore(t, "HaikuPlus-HaikuSession", filepath.Join(t.TempDir(), "prefs.db"))

	if _, ok, err := store.Get("sessionId"); err != nil || ok {
		t.Fatalf("Get on empty store = %v, %v; want false, nil", ok, err)
	}

	if err := store.Put("sessionId", "abc"); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := store.Put("sessionId", "xyz"); err != nil {
		t.Fatalf("Put overwrite: %v", err)
	}
	got, ok, err := store.Get("sessionId")
	if err != nil || !ok || got != "xyz" {
		t.Fatalf("Get = %q, %v, %v; want xyz, true, nil", got, ok, err)
	}

	if err := store.Remove("sessionId"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if _, ok, _ := store.Get("sessionId"); ok {
		t.Fatalf("Get ok = true after Remove")
	}
}

func TestSQLiteStore_StoresAreIsolated(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "prefs.db")
	a := newTestSQLiteStore(t, "a", dbPath)
	b := newTestSQLiteStore(t, "b", dbPath)

	if err := a.Put("accountName", "alice@example.com"); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if _, ok, _ := b.Get("accountName"); ok {
		t.Fatalf("store b sees store a's key")
	}
}

func TestNewSQLiteStore_EmptyPathFails(t *testing.T) {
	if _, err := NewSQLiteStore("a", " "); err == nil {
		t.Fatalf("NewSQLiteStore returned nil error, want error")
	}
}

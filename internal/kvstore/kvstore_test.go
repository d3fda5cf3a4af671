package kvstore

import (
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/starford/geotracker/internal/settings"
	"github.com/starford/geotracker/internal/storage"
)

func openDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "kv.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func openFile(t *testing.T) (*File, storage.Provider) {
	t.Helper()
	fs, err := storage.NewFS(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	f, err := OpenFile(fs, "settings.json")
	if err != nil {
		t.Fatal(err)
	}
	return f, fs
}

// exerciseStore runs the same contract checks against any backend.
func exerciseStore(t *testing.T, s settings.Store) {
	t.Helper()

	if _, ok, err := s.Get("missing"); err != nil || ok {
		t.Fatalf("Get(missing) = ok %v, err %v", ok, err)
	}

	if err := s.Apply(settings.Set("a", "1"), settings.Set("b", "2")); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if v, ok, _ := s.Get("a"); !ok || v != "1" {
		t.Errorf("a = %q, %v", v, ok)
	}

	if err := s.Apply(settings.Set("a", "3"), settings.Unset("b")); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if v, _, _ := s.Get("a"); v != "3" {
		t.Errorf("a = %q, want 3", v)
	}
	if _, ok, _ := s.Get("b"); ok {
		t.Error("b should be removed")
	}

	// Removing an absent key is fine.
	if err := s.Apply(settings.Unset("never")); err != nil {
		t.Errorf("Unset absent: %v", err)
	}
}

func TestDB_Contract(t *testing.T) {
	exerciseStore(t, openDB(t))
}

func TestFile_Contract(t *testing.T) {
	f, _ := openFile(t)
	exerciseStore(t, f)
}

func TestMemory_Contract(t *testing.T) {
	exerciseStore(t, NewMemory())
}

func TestDB_PersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kv.db")
	db, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := db.Apply(settings.Set("k", "v")); err != nil {
		t.Fatal(err)
	}
	db.Close()

	db, err = Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	if v, ok, _ := db.Get("k"); !ok || v != "v" {
		t.Errorf("k = %q, %v after reopen", v, ok)
	}
	keys, err := db.Keys()
	if err != nil || len(keys) != 1 || keys[0] != "k" {
		t.Errorf("Keys = %v, %v", keys, err)
	}
}

func TestFile_PersistsAcrossReopen(t *testing.T) {
	f, fs := openFile(t)
	if err := f.Apply(settings.Set("k", "v")); err != nil {
		t.Fatal(err)
	}
	raw, err := fs.Read("settings.json")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(raw), `"k": "v"`) {
		t.Errorf("file content = %s", raw)
	}

	again, err := OpenFile(fs, "settings.json")
	if err != nil {
		t.Fatal(err)
	}
	if v, ok, _ := again.Get("k"); !ok || v != "v" {
		t.Errorf("k = %q, %v after reopen", v, ok)
	}
}

func TestFile_CorruptBundle(t *testing.T) {
	fs, err := storage.NewFS(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if err := fs.Write("settings.json", []byte("{nope")); err != nil {
		t.Fatal(err)
	}
	if _, err := OpenFile(fs, "settings.json"); err == nil {
		t.Error("expected decode error")
	}
}

func TestMemory_FailNext(t *testing.T) {
	m := NewMemory()
	boom := errors.New("disk full")
	m.FailNext = boom
	if err := m.Apply(settings.Set("a", "1")); !errors.Is(err, boom) {
		t.Fatalf("err = %v", err)
	}
	if _, ok, _ := m.Get("a"); ok {
		t.Error("failed Apply must not change state")
	}
	if err := m.Apply(settings.Set("a", "1")); err != nil {
		t.Errorf("second Apply: %v", err)
	}
}

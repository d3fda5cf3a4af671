package kvstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/starford/geotracker/internal/settings"
	"github.com/starford/geotracker/internal/storage"
)

// File keeps the whole settings bundle in one JSON file that is replaced
// atomically on every Apply.
type File struct {
	fs   storage.Provider
	name string

	mu     sync.Mutex
	values map[string]string
}

var _ settings.Store = (*File)(nil)

// OpenFile loads name from fs, starting empty when it does not exist.
func OpenFile(fs storage.Provider, name string) (*File, error) {
	f := &File{fs: fs, name: name, values: make(map[string]string)}
	data, err := fs.Read(name)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return f, nil
		}
		return nil, fmt.Errorf("kvstore: load %s: %w", name, err)
	}
	if len(data) == 0 {
		return f, nil
	}
	if err := json.Unmarshal(data, &f.values); err != nil {
		return nil, fmt.Errorf("kvstore: decode %s: %w", name, err)
	}
	return f, nil
}

// Get returns the value stored under key.
func (f *File) Get(key string) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.values[key]
	return v, ok, nil
}

// Apply writes the updated bundle; the in-memory view only changes when
// the write succeeded.
func (f *File) Apply(changes ...settings.Change) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	next := make(map[string]string, len(f.values)+len(changes))
	for k, v := range f.values {
		next[k] = v
	}
	applyChanges(next, changes)

	data, err := json.MarshalIndent(next, "", "  ")
	if err != nil {
		return fmt.Errorf("kvstore: encode: %w", err)
	}
	if err := f.fs.Write(f.name, append(data, '\n')); err != nil {
		return fmt.Errorf("kvstore: write %s: %w", f.name, err)
	}
	f.values = next
	return nil
}

// Close is a no-op; every Apply is already durable.
func (f *File) Close() error { return nil }

func applyChanges(m map[string]string, changes []settings.Change) {
	for _, c := range changes {
		if c.Value == nil {
			delete(m, c.Key)
			continue
		}
		m[c.Key] = *c.Value
	}
}

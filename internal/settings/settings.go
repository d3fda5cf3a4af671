// Package settings is a typed facade over a string-keyed persistent store.
package settings

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/starford/geotracker/internal/models"
)

// Keys of the persisted configuration bundle.
const (
	KeyTracks      = "tracks_json"
	KeyVisible     = "tracks_visible_json"
	KeyCurrentName = "tracks_current_name"
	KeyContinuous  = "continuous_mode"
)

// Change is a single key mutation. A nil Value removes the key.
type Change struct {
	Key   string
	Value *string
}

// Set returns a Change storing value under key.
func Set(key, value string) Change { return Change{Key: key, Value: &value} }

// Unset returns a Change removing key.
func Unset(key string) Change { return Change{Key: key} }

// Store is a persistent string→string map. Apply commits all changes
// together where the backend can, last writer wins otherwise.
type Store interface {
	Get(key string) (value string, ok bool, err error)
	Apply(changes ...Change) error
}

// Settings reads and writes the typed configuration keys.
type Settings struct {
	store Store
}

// New wraps store.
func New(store Store) *Settings {
	return &Settings{store: store}
}

// CatalogState is the persisted form of the track catalog.
type CatalogState struct {
	Tracks []models.TrackDescriptor
	// Visible is nil when the key was absent or empty; the catalog then
	// rebuilds it.
	Visible []bool
	// Current is empty when unset.
	Current string
}

// Catalog loads the catalog keys. A malformed visibility value is treated
// as absent; malformed tracks JSON is an error.
func (s *Settings) Catalog() (CatalogState, error) {
	var st CatalogState

	raw, ok, err := s.store.Get(KeyTracks)
	if err != nil {
		return st, fmt.Errorf("settings: get %s: %w", KeyTracks, err)
	}
	if !ok || raw == "" {
		raw = "[]"
	}
	if err := json.Unmarshal([]byte(raw), &st.Tracks); err != nil {
		return st, fmt.Errorf("settings: decode %s: %w", KeyTracks, err)
	}

	raw, ok, err = s.store.Get(KeyVisible)
	if err != nil {
		return st, fmt.Errorf("settings: get %s: %w", KeyVisible, err)
	}
	if ok && raw != "" {
		var vis []bool
		if json.Unmarshal([]byte(raw), &vis) == nil {
			st.Visible = vis
		}
	}

	raw, ok, err = s.store.Get(KeyCurrentName)
	if err != nil {
		return st, fmt.Errorf("settings: get %s: %w", KeyCurrentName, err)
	}
	if ok {
		st.Current = raw
	}
	return st, nil
}

// SaveCatalog writes all catalog keys in one Apply call.
func (s *Settings) SaveCatalog(st CatalogState) error {
	tracks := st.Tracks
	if tracks == nil {
		tracks = []models.TrackDescriptor{}
	}
	visible := st.Visible
	if visible == nil {
		visible = []bool{}
	}
	tracksJSON, err := json.Marshal(tracks)
	if err != nil {
		return fmt.Errorf("settings: encode %s: %w", KeyTracks, err)
	}
	visibleJSON, err := json.Marshal(visible)
	if err != nil {
		return fmt.Errorf("settings: encode %s: %w", KeyVisible, err)
	}
	current := Unset(KeyCurrentName)
	if st.Current != "" {
		current = Set(KeyCurrentName, st.Current)
	}
	if err := s.store.Apply(
		Set(KeyTracks, string(tracksJSON)),
		Set(KeyVisible, string(visibleJSON)),
		current,
	); err != nil {
		return fmt.Errorf("settings: save catalog: %w", err)
	}
	return nil
}

// Mode returns the persisted acquisition mode, manual by default.
func (s *Settings) Mode() (models.Mode, error) {
	raw, ok, err := s.store.Get(KeyContinuous)
	if err != nil {
		return models.Mode{}, fmt.Errorf("settings: get %s: %w", KeyContinuous, err)
	}
	if !ok {
		return models.Mode{}, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return models.Mode{}, nil
	}
	return models.Mode{Continuous: v}, nil
}

// SetMode persists the acquisition mode.
func (s *Settings) SetMode(m models.Mode) error {
	if err := s.store.Apply(Set(KeyContinuous, strconv.FormatBool(m.Continuous))); err != nil {
		return fmt.Errorf("settings: save %s: %w", KeyContinuous, err)
	}
	return nil
}

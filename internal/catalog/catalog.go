// Package catalog keeps the ordered set of tracks, their visibility flags and
// the current track, and persists all three together after every mutation.
package catalog

import (
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"sync"
	"unicode"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/geotracker/internal/apperr"
	"github.com/starford/geotracker/internal/models"
	"github.com/starford/geotracker/internal/settings"
)

// Default is the descriptor created when the persisted catalog is empty.
var Default = models.TrackDescriptor{
	Name:     "Standard",
	Filename: "track_standard.csv",
	Color:    0xFF0000FF,
}

const maxNameLen = 128

var whitespaceRun = regexp.MustCompile(`\s+`)

// Slug turns a track name into the filename-safe form used on disk.
func Slug(name string) string {
	return whitespaceRun.ReplaceAllString(name, "_")
}

// Filename returns the track file name for name.
func Filename(name string) string {
	return "track_" + Slug(name) + ".csv"
}

// Files is the part of the track file store the catalog drives.
type Files interface {
	EnsureExists(filename string) error
	Remove(filename string) error
}

// Persister loads and saves the catalog bundle.
type Persister interface {
	Catalog() (settings.CatalogState, error)
	SaveCatalog(settings.CatalogState) error
}

// Snapshot is a read-only copy of the catalog.
type Snapshot struct {
	Tracks  []models.TrackDescriptor
	Visible []bool
	Current string
}

// CurrentTrack returns the descriptor of the current track.
func (s Snapshot) CurrentTrack() (models.TrackDescriptor, bool) {
	for _, t := range s.Tracks {
		if t.Name == s.Current {
			return t, true
		}
	}
	return models.TrackDescriptor{}, false
}

// Catalog is safe for concurrent use.
type Catalog struct {
	files  Files
	store  Persister
	logger *slog.Logger

	mu      sync.RWMutex
	tracks  []models.TrackDescriptor
	visible []bool
	current string
}

// New creates an empty catalog. Call Load before use.
func New(files Files, store Persister, logger *slog.Logger) *Catalog {
	return &Catalog{files: files, store: store, logger: logger}
}

// Load reads the persisted catalog. Visibility is rebuilt when its length
// does not match, an unresolvable current name is cleared and an empty
// catalog is bootstrapped with Default.
func (c *Catalog) Load() error {
	st, err := c.store.Catalog()
	if err != nil {
		return fmt.Errorf("catalog: load: %w", err)
	}

	tracks, visible := dedupe(st.Tracks, st.Visible)
	if len(visible) != len(tracks) {
		visible = allVisible(len(tracks))
	}
	current := st.Current
	if indexOf(tracks, current) < 0 {
		current = ""
	}

	if len(tracks) == 0 {
		tracks = []models.TrackDescriptor{Default}
		visible = []bool{true}
		current = Default.Name
		if err := c.files.EnsureExists(Default.Filename); err != nil {
			return apperr.Persist(fmt.Errorf("catalog: bootstrap: %w", err))
		}
		if err := c.persist(tracks, visible, current); err != nil {
			return err
		}
		c.logger.Info("catalog bootstrapped", slog.String("track", Default.Name))
	}

	c.mu.Lock()
	c.tracks, c.visible, c.current = tracks, visible, current
	c.mu.Unlock()
	return nil
}

// dedupe drops repeated names, keeping the first. visible is trimmed in step
// when it is aligned with tracks.
func dedupe(tracks []models.TrackDescriptor, visible []bool) ([]models.TrackDescriptor, []bool) {
	aligned := len(visible) == len(tracks)
	seen := make(map[string]bool, len(tracks))
	outT := make([]models.TrackDescriptor, 0, len(tracks))
	var outV []bool
	for i, t := range tracks {
		if seen[t.Name] {
			continue
		}
		seen[t.Name] = true
		outT = append(outT, t)
		if aligned {
			outV = append(outV, visible[i])
		}
	}
	if !aligned {
		return outT, visible
	}
	return outT, outV
}

// Snapshot returns a copy of the current state.
func (c *Catalog) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return Snapshot{
		Tracks:  append([]models.TrackDescriptor(nil), c.tracks...),
		Visible: append([]bool(nil), c.visible...),
		Current: c.current,
	}
}

// Current returns the current descriptor, if any.
func (c *Catalog) Current() (models.TrackDescriptor, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if i := indexOf(c.tracks, c.current); i >= 0 {
		return c.tracks[i], true
	}
	return models.TrackDescriptor{}, false
}

// Get looks up a descriptor by name.
func (c *Catalog) Get(name string) (models.TrackDescriptor, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	i := indexOf(c.tracks, name)
	if i < 0 {
		return models.TrackDescriptor{}, fmt.Errorf("track %q: %w", name, apperr.ErrNotFound)
	}
	return c.tracks[i], nil
}

// ByFilename looks up a descriptor by its file name.
func (c *Catalog) ByFilename(filename string) (models.TrackDescriptor, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, t := range c.tracks {
		if t.Filename == filename {
			return t, true
		}
	}
	return models.TrackDescriptor{}, false
}

// Create adds a visible track, makes it current and creates its file.
func (c *Catalog) Create(name string, color models.Color) (models.TrackDescriptor, error) {
	name = strings.TrimSpace(name)
	if err := ValidateName(name); err != nil {
		return models.TrackDescriptor{}, err
	}
	d := models.TrackDescriptor{Name: name, Filename: Filename(name), Color: color}

	c.mu.Lock()
	defer c.mu.Unlock()

	for _, t := range c.tracks {
		if t.Name == d.Name {
			return models.TrackDescriptor{}, fmt.Errorf("track %q: %w", name, apperr.ErrDuplicateName)
		}
		if t.Filename == d.Filename {
			return models.TrackDescriptor{}, fmt.Errorf("track %q shares file %s with %q: %w",
				name, d.Filename, t.Name, apperr.ErrDuplicateName)
		}
	}

	if err := c.files.EnsureExists(d.Filename); err != nil {
		return models.TrackDescriptor{}, apperr.Persist(fmt.Errorf("catalog: create %s: %w", d.Filename, err))
	}

	tracks := append(append([]models.TrackDescriptor(nil), c.tracks...), d)
	visible := append(append([]bool(nil), c.visible...), true)
	if err := c.commit(tracks, visible, d.Name); err != nil {
		return models.TrackDescriptor{}, err
	}
	return d, nil
}

// SetCurrent selects an existing track as the recording target.
func (c *Catalog) SetCurrent(name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if indexOf(c.tracks, name) < 0 {
		return fmt.Errorf("track %q: %w", name, apperr.ErrNotFound)
	}
	return c.commit(c.tracks, c.visible, name)
}

// SetVisibility updates the visibility flag of the i-th track.
func (c *Catalog) SetVisibility(i int, visible bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.setVisibility(i, visible)
}

func (c *Catalog) setVisibility(i int, visible bool) error {
	if i < 0 || i >= len(c.tracks) {
		return fmt.Errorf("track index %d: %w", i, apperr.ErrNotFound)
	}
	vis := append([]bool(nil), c.visible...)
	vis[i] = visible
	return c.commit(c.tracks, vis, c.current)
}

// SetVisibilityByName is SetVisibility addressed by track name.
func (c *Catalog) SetVisibilityByName(name string, visible bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	i := indexOf(c.tracks, name)
	if i < 0 {
		return fmt.Errorf("track %q: %w", name, apperr.ErrNotFound)
	}
	return c.setVisibility(i, visible)
}

// Remove deletes a track and its file. When the removed track was current
// the first remaining track becomes current. The file is deleted only after
// the catalog is saved; a file that cannot be deleted is logged and left.
func (c *Catalog) Remove(name string) (models.TrackDescriptor, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	i := indexOf(c.tracks, name)
	if i < 0 {
		return models.TrackDescriptor{}, fmt.Errorf("track %q: %w", name, apperr.ErrNotFound)
	}
	d := c.tracks[i]

	tracks := append(append([]models.TrackDescriptor(nil), c.tracks[:i]...), c.tracks[i+1:]...)
	visible := append(append([]bool(nil), c.visible[:i]...), c.visible[i+1:]...)
	current := c.current
	if current == name {
		current = ""
		if len(tracks) > 0 {
			current = tracks[0].Name
		}
	}
	if err := c.commit(tracks, visible, current); err != nil {
		return models.TrackDescriptor{}, err
	}
	if err := c.files.Remove(d.Filename); err != nil {
		c.logger.Warn("catalog: track file left behind",
			slog.String("file", d.Filename),
			slog.String("error", err.Error()))
	}
	return d, nil
}

// commit persists the next state and installs it in memory only on success.
// Callers hold c.mu.
func (c *Catalog) commit(tracks []models.TrackDescriptor, visible []bool, current string) error {
	if err := c.persist(tracks, visible, current); err != nil {
		return err
	}
	c.tracks, c.visible, c.current = tracks, visible, current
	return nil
}

func (c *Catalog) persist(tracks []models.TrackDescriptor, visible []bool, current string) error {
	err := c.store.SaveCatalog(settings.CatalogState{Tracks: tracks, Visible: visible, Current: current})
	if err != nil {
		c.logger.Error("catalog persist failed", slog.String("error", err.Error()))
		return apperr.Persist(err)
	}
	return nil
}

// ValidateName checks an already trimmed track name.
func ValidateName(name string) error {
	err := validation.Validate(name,
		validation.Required,
		validation.RuneLength(1, maxNameLen),
		validation.By(flatName),
	)
	if err != nil {
		return fmt.Errorf("%w: %v", apperr.ErrInvalidName, err)
	}
	return nil
}

func flatName(v any) error {
	s, _ := v.(string)
	if strings.ContainsAny(s, `/\`) {
		return errors.New("must not contain path separators")
	}
	for _, r := range s {
		if unicode.IsControl(r) && !unicode.IsSpace(r) {
			return errors.New("must not contain control characters")
		}
	}
	return nil
}

func indexOf(tracks []models.TrackDescriptor, name string) int {
	if name == "" {
		return -1
	}
	for i, t := range tracks {
		if t.Name == name {
			return i
		}
	}
	return -1
}

func allVisible(n int) []bool {
	v := make([]bool, n)
	for i := range v {
		v[i] = true
	}
	return v
}

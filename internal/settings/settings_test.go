package settings_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/starford/geotracker/internal/kvstore"
	"github.com/starford/geotracker/internal/models"
	"github.com/starford/geotracker/internal/settings"
)

func TestCatalog_Empty(t *testing.T) {
	s := settings.New(kvstore.NewMemory())
	st, err := s.Catalog()
	if err != nil {
		t.Fatal(err)
	}
	if len(st.Tracks) != 0 || st.Visible != nil || st.Current != "" {
		t.Errorf("state = %+v", st)
	}
	m, err := s.Mode()
	if err != nil || m.Continuous {
		t.Errorf("Mode = %+v, %v", m, err)
	}
}

func TestCatalog_RoundTrip(t *testing.T) {
	store := kvstore.NewMemory()
	s := settings.New(store)
	want := settings.CatalogState{
		Tracks: []models.TrackDescriptor{
			{Name: "Standard", Filename: "track_standard.csv", Color: 0xFF0000FF},
			{Name: "Hike", Filename: "track_hike.csv", Color: 0xFFFF0000},
		},
		Visible: []bool{true, false},
		Current: "Hike",
	}
	if err := s.SaveCatalog(want); err != nil {
		t.Fatal(err)
	}
	got, err := s.Catalog()
	if err != nil {
		t.Fatal(err)
	}
	if len(got.Tracks) != 2 || got.Tracks[1] != want.Tracks[1] {
		t.Errorf("tracks = %+v", got.Tracks)
	}
	if len(got.Visible) != 2 || got.Visible[0] != true || got.Visible[1] != false {
		t.Errorf("visible = %v", got.Visible)
	}
	if got.Current != "Hike" {
		t.Errorf("current = %q", got.Current)
	}

	// Colours are stored as signed 32-bit integers.
	raw, _, _ := store.Get(settings.KeyTracks)
	if want := `"color":-16776961`; !strings.Contains(raw, want) {
		t.Errorf("tracks json %s missing %s", raw, want)
	}

	want.Current = ""
	if err := s.SaveCatalog(want); err != nil {
		t.Fatal(err)
	}
	if _, ok, _ := store.Get(settings.KeyCurrentName); ok {
		t.Error("current name should be removed")
	}
}

func TestCatalog_BadVisibilityIsAbsent(t *testing.T) {
	store := kvstore.NewMemory()
	store.Put(settings.KeyTracks, `[{"name":"A","filename":"track_a.csv","color":-65536}]`)
	store.Put(settings.KeyVisible, `not json`)
	st, err := settings.New(store).Catalog()
	if err != nil {
		t.Fatal(err)
	}
	if st.Visible != nil {
		t.Errorf("visible = %v, want nil", st.Visible)
	}
	if len(st.Tracks) != 1 || st.Tracks[0].Color != 0xFFFF0000 {
		t.Errorf("tracks = %+v", st.Tracks)
	}
}

func TestCatalog_BadTracksIsError(t *testing.T) {
	store := kvstore.NewMemory()
	store.Put(settings.KeyTracks, `{`)
	if _, err := settings.New(store).Catalog(); err == nil {
		t.Error("expected decode error")
	}
}

func TestMode_Persisted(t *testing.T) {
	store := kvstore.NewMemory()
	s := settings.New(store)
	if err := s.SetMode(models.Mode{Continuous: true}); err != nil {
		t.Fatal(err)
	}
	m, _ := settings.New(store).Mode()
	if !m.Continuous {
		t.Error("continuous mode not persisted")
	}

	store.Put(settings.KeyContinuous, "maybe")
	m, err := s.Mode()
	if err != nil || m.Continuous {
		t.Errorf("garbage mode = %+v, %v", m, err)
	}
}

func TestSaveCatalog_PropagatesFailure(t *testing.T) {
	store := kvstore.NewMemory()
	boom := errors.New("io")
	store.FailNext = boom
	err := settings.New(store).SaveCatalog(settings.CatalogState{})
	if !errors.Is(err, boom) {
		t.Errorf("err = %v", err)
	}
}

// Package trackservice coordinates the catalog, the recorder, the track files
// and the share sink for the HTTP and MCP surfaces.
package trackservice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"time"

	geom "github.com/peterstace/simplefeatures/geom"

	"github.com/starford/geotracker/internal/apperr"
	"github.com/starford/geotracker/internal/catalog"
	"github.com/starford/geotracker/internal/geo"
	"github.com/starford/geotracker/internal/location"
	"github.com/starford/geotracker/internal/models"
	"github.com/starford/geotracker/internal/projection"
	"github.com/starford/geotracker/internal/recorder"
	"github.com/starford/geotracker/internal/settings"
	"github.com/starford/geotracker/internal/share"
	"github.com/starford/geotracker/internal/sse"
	"github.com/starford/geotracker/internal/trackfile"
)

// Publisher receives live events. *sse.Broker implements it.
type Publisher interface {
	Publish(sse.Event)
	PublishTrackEvent(kind, name, filename string)
}

type nopPublisher struct{}

func (nopPublisher) Publish(sse.Event) {}

func (nopPublisher) PublishTrackEvent(_, _, _ string) {}

// TrackInfo is a catalog entry as shown to clients.
type TrackInfo struct {
	Name      string       `json:"name"`
	Filename  string       `json:"filename"`
	Color     models.Color `json:"color"`
	Hex       string       `json:"hex"`
	Visible   bool         `json:"visible"`
	Current   bool         `json:"current"`
	Size      int64        `json:"size"`
	UpdatedAt *time.Time   `json:"updated_at,omitempty"`
}

// PointResult is a point written by SavePoint.
type PointResult struct {
	Track  string             `json:"track"`
	Record models.PointRecord `json:"record"`
}

// Status is the live recording state.
type Status struct {
	Label   string           `json:"label"`
	Latest  *location.Sample `json:"latest,omitempty"`
	Mode    models.Mode      `json:"mode"`
	Session recorder.State   `json:"session"`
	Current string           `json:"current,omitempty"`
}

// Deps are the collaborators of a Service. Feed may be nil when samples come
// from another source; PushSample then fails with apperr.ErrUnavailable.
type Deps struct {
	Catalog  *catalog.Catalog
	Files    *trackfile.Store
	Settings *settings.Settings
	Source   location.Source
	Feed     *location.Feed
	Sink     share.Sink
	Events   Publisher
	Logger   *slog.Logger
}

// Service is safe for concurrent use.
type Service struct {
	cat    *catalog.Catalog
	files  *trackfile.Store
	eng    *recorder.Engine
	feed   *location.Feed
	sink   share.Sink
	events Publisher
	logger *slog.Logger
}

// New builds the service and its recording engine. Call Start to subscribe
// to the location source.
func New(d Deps, opts ...recorder.Option) (*Service, error) {
	s := &Service{
		cat:    d.Catalog,
		files:  d.Files,
		feed:   d.Feed,
		sink:   d.Sink,
		events: d.Events,
		logger: d.Logger,
	}
	if s.events == nil {
		s.events = nopPublisher{}
	}
	opts = append([]recorder.Option{
		recorder.WithRecordHook(s.recorded),
		recorder.WithSampleHook(s.sampled),
	}, opts...)
	eng, err := recorder.New(d.Source, d.Catalog, d.Files, d.Settings, d.Logger, opts...)
	if err != nil {
		return nil, err
	}
	s.eng = eng
	return s, nil
}

// Start subscribes the recorder to the location source.
func (s *Service) Start(_ context.Context) error {
	return s.eng.Start()
}

// Stop ends the location subscription.
func (s *Service) Stop(_ context.Context) error {
	return s.eng.Stop()
}

func (s *Service) recorded(d models.TrackDescriptor, _ models.PointRecord) {
	s.events.PublishTrackEvent(sse.ChangeUpdated, d.Name, d.Filename)
}

func (s *Service) sampled(smp location.Sample) {
	s.events.Publish(sse.Event{Type: sse.TypeSample, Data: map[string]any{
		"sample": smp,
		"label":  recorder.FormatLabel(smp.Lat, smp.Lon),
	}})
}

// ListTracks returns the catalog in order with file sizes.
func (s *Service) ListTracks(_ context.Context) ([]TrackInfo, error) {
	snap := s.cat.Snapshot()
	files, err := s.files.List()
	if err != nil {
		return nil, err
	}
	byName := make(map[string]int, len(files))
	for i, f := range files {
		byName[f.Name] = i
	}
	out := make([]TrackInfo, len(snap.Tracks))
	for i, t := range snap.Tracks {
		out[i] = TrackInfo{
			Name:     t.Name,
			Filename: t.Filename,
			Color:    t.Color,
			Hex:      t.Color.Hex(),
			Visible:  i < len(snap.Visible) && snap.Visible[i],
			Current:  t.Name == snap.Current,
		}
		if j, ok := byName[t.Filename]; ok {
			out[i].Size = files[j].Size
			ts := files[j].UpdatedAt
			out[i].UpdatedAt = &ts
		}
	}
	return out, nil
}

// CreateTrack adds a track. color is a palette name, #RRGGBB or #AARRGGBB;
// empty picks the first palette colour.
func (s *Service) CreateTrack(ctx context.Context, name, color string) (TrackInfo, error) {
	c := models.Palette[0].Color
	if color != "" {
		var err error
		if c, err = models.ParseColor(color); err != nil {
			return TrackInfo{}, fmt.Errorf("%w: %v", apperr.ErrInvalidInput, err)
		}
	}
	d, err := s.cat.Create(name, c)
	if err != nil {
		return TrackInfo{}, err
	}
	s.logger.Info("track created", slog.String("name", d.Name), slog.String("file", d.Filename))
	s.events.PublishTrackEvent(sse.ChangeCreated, d.Name, d.Filename)
	return s.info(ctx, d.Name)
}

// DeleteTrack removes a track and its file.
func (s *Service) DeleteTrack(_ context.Context, name string) error {
	d, err := s.cat.Remove(name)
	if err != nil {
		return err
	}
	s.logger.Info("track deleted", slog.String("name", d.Name), slog.String("file", d.Filename))
	s.events.PublishTrackEvent(sse.ChangeDeleted, d.Name, d.Filename)
	return nil
}

// SelectTrack makes name the recording target.
func (s *Service) SelectTrack(ctx context.Context, name string) (TrackInfo, error) {
	if err := s.cat.SetCurrent(name); err != nil {
		return TrackInfo{}, err
	}
	d, _ := s.cat.Current()
	s.events.PublishTrackEvent(sse.ChangeUpdated, d.Name, d.Filename)
	return s.info(ctx, name)
}

// SetVisibility shows or hides a track on the map.
func (s *Service) SetVisibility(ctx context.Context, name string, visible bool) (TrackInfo, error) {
	if err := s.cat.SetVisibilityByName(name, visible); err != nil {
		return TrackInfo{}, err
	}
	d, _ := s.cat.Get(name)
	s.events.PublishTrackEvent(sse.ChangeUpdated, d.Name, d.Filename)
	return s.info(ctx, name)
}

func (s *Service) info(ctx context.Context, name string) (TrackInfo, error) {
	all, err := s.ListTracks(ctx)
	if err != nil {
		return TrackInfo{}, err
	}
	for _, t := range all {
		if t.Name == name {
			return t, nil
		}
	}
	return TrackInfo{}, fmt.Errorf("track %q: %w", name, apperr.ErrNotFound)
}

// Points returns every readable record of a track.
func (s *Service) Points(_ context.Context, name string) ([]models.PointRecord, error) {
	d, err := s.cat.Get(name)
	if err != nil {
		return nil, err
	}
	recs, err := s.files.ReadAll(d.Filename)
	if err != nil {
		return nil, err
	}
	if recs == nil {
		recs = []models.PointRecord{}
	}
	return recs, nil
}

// GeoJSON exports one track, or every visible track when name is empty.
func (s *Service) GeoJSON(_ context.Context, name string) (geom.GeoJSONFeatureCollection, error) {
	snap := s.cat.Snapshot()
	var tracks []geo.Track
	for i, t := range snap.Tracks {
		if name != "" && t.Name != name {
			continue
		}
		if name == "" && (i >= len(snap.Visible) || !snap.Visible[i]) {
			continue
		}
		recs, err := s.files.ReadAll(t.Filename)
		if err != nil {
			return nil, err
		}
		tracks = append(tracks, geo.Track{Descriptor: t, Records: recs})
	}
	if name != "" && len(tracks) == 0 {
		return nil, fmt.Errorf("track %q: %w", name, apperr.ErrNotFound)
	}
	return geo.FeatureCollection(tracks...), nil
}

// Share hands a track file to the share sink.
func (s *Service) Share(ctx context.Context, name string) (share.Shared, error) {
	d, err := s.cat.Get(name)
	if err != nil {
		return share.Shared{}, err
	}
	return s.sink.Share(ctx, d.Filename)
}

// Export returns the raw CSV of a track file.
func (s *Service) Export(_ context.Context, filename string) ([]byte, error) {
	if ok, _ := path.Match(trackfile.Pattern, filename); !ok {
		return nil, fmt.Errorf("export %q: %w", filename, apperr.ErrNotFound)
	}
	data, err := s.files.Raw(filename)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("export %q: %w", filename, apperr.ErrNotFound)
		}
		return nil, err
	}
	return data, nil
}

// Mode returns the acquisition mode.
func (s *Service) Mode(_ context.Context) models.Mode {
	return s.eng.Mode()
}

// SetMode switches between manual and continuous acquisition.
func (s *Service) SetMode(_ context.Context, m models.Mode) (models.Mode, error) {
	if err := s.eng.SetMode(m); err != nil {
		return s.eng.Mode(), err
	}
	s.events.Publish(sse.Event{Type: sse.TypeModeChanged, Data: m})
	return m, nil
}

// PushSample hands a location fix to the push feed. It reports whether the
// sample reached the recorder. A continuous-mode write failure comes back as
// the recorder's PersistError.
func (s *Service) PushSample(_ context.Context, smp location.Sample) (bool, error) {
	if s.feed == nil {
		return false, fmt.Errorf("sample feed: %w", apperr.ErrUnavailable)
	}
	if err := smp.Validate(); err != nil {
		return false, fmt.Errorf("%w: %v", apperr.ErrInvalidInput, err)
	}
	return s.feed.Push(smp)
}

// SavePoint records the latest fix on the current track.
func (s *Service) SavePoint(_ context.Context) (PointResult, error) {
	d, rec, err := s.eng.ManualTrigger()
	if err != nil {
		return PointResult{}, err
	}
	return PointResult{Track: d.Name, Record: rec}, nil
}

// Scene projects the visible tracks for the map renderer. Tracks that cannot
// be read are logged and drawn empty.
func (s *Service) Scene(_ context.Context) projection.Scene {
	snap := s.cat.Snapshot()
	view := projection.View{Tracks: snap.Tracks, Visible: snap.Visible, Current: snap.Current}
	scene, err := projection.Project(view, s.eng.Mode(), s.files.ReadAll)
	if err != nil {
		s.logger.Warn("scene: track read failed", slog.String("error", err.Error()))
	}
	return scene
}

// Status reports the live label, the latest fix and the session state.
func (s *Service) Status(_ context.Context) Status {
	st := Status{
		Label:   s.eng.LiveLabel(),
		Mode:    s.eng.Mode(),
		Session: s.eng.State(),
	}
	if smp, ok := s.eng.Latest(); ok {
		st.Latest = &smp
	}
	if d, ok := s.cat.Current(); ok {
		st.Current = d.Name
	}
	return st
}

// Pause suspends the location subscription while the client is away.
func (s *Service) Pause(ctx context.Context) (Status, error) {
	if err := s.eng.Pause(); err != nil {
		return Status{}, err
	}
	return s.Status(ctx), nil
}

// Resume restores the location subscription after Pause.
func (s *Service) Resume(ctx context.Context) (Status, error) {
	if err := s.eng.Resume(); err != nil {
		return Status{}, err
	}
	return s.Status(ctx), nil
}

// Palette lists the named colours offered for new tracks.
func (s *Service) Palette(_ context.Context) []models.NamedColor {
	return models.Palette
}

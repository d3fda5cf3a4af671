// Package recorder routes location samples and manual triggers into the
// current track according to the acquisition mode.
package recorder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/starford/geotracker/internal/apperr"
	"github.com/starford/geotracker/internal/location"
	"github.com/starford/geotracker/internal/models"
)

// NoFixLabel is the live label shown before the first sample arrives.
const NoFixLabel = "location unavailable"

// CurrentTrack resolves the track that receives new points.
type CurrentTrack interface {
	Current() (models.TrackDescriptor, bool)
}

// Appender writes one record to a track file.
type Appender interface {
	Append(filename string, rec models.PointRecord) error
}

// ModeStore persists the acquisition mode.
type ModeStore interface {
	Mode() (models.Mode, error)
	SetMode(models.Mode) error
}

// State is the lifecycle of the location subscription.
type State string

const (
	StateIdle    State = "idle"
	StateRunning State = "running"
	StatePaused  State = "paused"
	StateStopped State = "stopped"
)

// RateFor returns the source configuration used in mode m.
func RateFor(m models.Mode) location.Request {
	if m.Continuous {
		return location.Request{Interval: 2000 * time.Millisecond, Fastest: 1000 * time.Millisecond, Priority: location.PriorityHigh}
	}
	return location.Request{Interval: 1000 * time.Millisecond, Fastest: 500 * time.Millisecond, Priority: location.PriorityHigh}
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock overrides the time source used for manual points.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithRecordHook is called after every successful write.
func WithRecordHook(fn func(models.TrackDescriptor, models.PointRecord)) Option {
	return func(e *Engine) { e.onRecord = fn }
}

// WithSampleHook is called for every accepted sample.
func WithSampleHook(fn func(location.Sample)) Option {
	return func(e *Engine) { e.onSample = fn }
}

// Engine is safe for concurrent use. Source callbacks, manual triggers and
// mode changes are serialised so writes to a track keep event order.
type Engine struct {
	src    location.Source
	tracks CurrentTrack
	files  Appender
	modes  ModeStore
	logger *slog.Logger

	now      func() time.Time
	onRecord func(models.TrackDescriptor, models.PointRecord)
	onSample func(location.Sample)

	// life guards subscription changes. Source calls happen outside mu
	// because a source may block until an in-flight callback returns.
	life sync.Mutex

	mu     sync.Mutex
	mode   models.Mode
	latest *location.Sample
	state  State

	samples metric.Int64Counter
	written metric.Int64Counter
	failed  metric.Int64Counter
}

// New creates an engine in the persisted mode. The source is not touched
// until Start.
func New(src location.Source, tracks CurrentTrack, files Appender, modes ModeStore, logger *slog.Logger, opts ...Option) (*Engine, error) {
	e := &Engine{
		src:    src,
		tracks: tracks,
		files:  files,
		modes:  modes,
		logger: logger,
		now:    time.Now,
		state:  StateIdle,
	}
	for _, opt := range opts {
		opt(e)
	}

	mode, err := modes.Mode()
	if err != nil {
		return nil, fmt.Errorf("recorder: load mode: %w", err)
	}
	e.mode = mode

	m := meter()
	e.samples, err = m.Int64Counter("recorder.samples.received",
		metric.WithDescription("Location samples delivered to the recorder"))
	if err != nil {
		return nil, fmt.Errorf("creating samples counter: %w", err)
	}
	e.written, err = m.Int64Counter("recorder.records.written",
		metric.WithDescription("Points appended to track files"))
	if err != nil {
		return nil, fmt.Errorf("creating written counter: %w", err)
	}
	e.failed, err = m.Int64Counter("recorder.records.failed",
		metric.WithDescription("Point writes that failed"))
	if err != nil {
		return nil, fmt.Errorf("creating failed counter: %w", err)
	}
	return e, nil
}

// Start configures the source for the current mode and subscribes.
func (e *Engine) Start() error {
	e.life.Lock()
	defer e.life.Unlock()

	e.mu.Lock()
	req := RateFor(e.mode)
	e.mu.Unlock()

	if err := e.src.Configure(req); err != nil {
		return fmt.Errorf("recorder: configure source: %w", err)
	}
	if err := e.src.Subscribe(e.handleSample); err != nil {
		return fmt.Errorf("recorder: subscribe: %w", err)
	}
	e.setState(StateRunning)
	e.logger.Info("recorder started",
		slog.String("interval", req.Interval.String()),
		slog.String("priority", req.Priority.String()))
	return nil
}

// Pause unsubscribes while the host is in the background. Writes already
// in progress complete first.
func (e *Engine) Pause() error {
	e.life.Lock()
	defer e.life.Unlock()
	if e.State() != StateRunning {
		return nil
	}
	if err := e.src.Unsubscribe(); err != nil {
		return fmt.Errorf("recorder: unsubscribe: %w", err)
	}
	e.setState(StatePaused)
	return nil
}

// Resume subscribes again after Pause.
func (e *Engine) Resume() error {
	e.life.Lock()
	defer e.life.Unlock()
	if e.State() != StatePaused {
		return nil
	}
	if err := e.src.Subscribe(e.handleSample); err != nil {
		return fmt.Errorf("recorder: subscribe: %w", err)
	}
	e.setState(StateRunning)
	return nil
}

// Stop ends the subscription, as when location permission is revoked.
// Persisted points are not affected; Start subscribes again.
func (e *Engine) Stop() error {
	e.life.Lock()
	defer e.life.Unlock()
	if s := e.State(); s == StateStopped || s == StateIdle {
		e.setState(StateStopped)
		return nil
	}
	if err := e.src.Unsubscribe(); err != nil {
		return fmt.Errorf("recorder: unsubscribe: %w", err)
	}
	e.setState(StateStopped)
	return nil
}

// State returns the subscription state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

func (e *Engine) setState(s State) {
	e.mu.Lock()
	e.state = s
	e.mu.Unlock()
}

// Mode returns the active acquisition mode.
func (e *Engine) Mode() models.Mode {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.mode
}

// SetMode persists m and reconfigures the source rate. The subscription
// stays in place so no sample is lost across the switch.
func (e *Engine) SetMode(m models.Mode) error {
	e.life.Lock()
	defer e.life.Unlock()

	e.mu.Lock()
	if err := e.modes.SetMode(m); err != nil {
		e.mu.Unlock()
		return apperr.Persist(err)
	}
	e.mode = m
	running := e.state == StateRunning || e.state == StatePaused
	e.mu.Unlock()

	if running {
		if err := e.src.Configure(RateFor(m)); err != nil {
			e.logger.Warn("recorder: reconfigure source failed", slog.String("error", err.Error()))
		}
	}
	e.logger.Info("mode changed", slog.Bool("continuous", m.Continuous))
	return nil
}

// Latest returns the most recent sample.
func (e *Engine) Latest() (location.Sample, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.latest == nil {
		return location.Sample{}, false
	}
	return *e.latest, true
}

// LiveLabel is the human-readable position shown next to the map.
func (e *Engine) LiveLabel() string {
	s, ok := e.Latest()
	if !ok {
		return NoFixLabel
	}
	return FormatLabel(s.Lat, s.Lon)
}

// FormatLabel renders a position as the live label.
func FormatLabel(lat, lon float64) string {
	return "Latitude: " + strconv.FormatFloat(lat, 'f', -1, 64) +
		"\nLongitude: " + strconv.FormatFloat(lon, 'f', -1, 64)
}

// handleSample is the source callback. A missing current track only means
// the sample is displayed and not recorded; other failures go back to the
// source.
func (e *Engine) handleSample(s location.Sample) error {
	_, err := e.OnSample(s)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, apperr.ErrNoCurrentTrack):
		e.logger.Debug("sample not recorded: no current track")
		return nil
	default:
		e.logger.Error("recording sample failed", slog.String("error", err.Error()))
		return err
	}
}

// OnSample updates the latest fix and, in continuous mode, appends one
// CONTINUOUS record. The returned record is nil when nothing was written.
func (e *Engine) OnSample(s location.Sample) (*models.PointRecord, error) {
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("recorder: invalid sample: %w", err)
	}
	if s.Time.IsZero() {
		s.Time = e.now()
	}
	e.samples.Add(context.Background(), 1)

	e.mu.Lock()
	latest := s
	e.latest = &latest
	var (
		rec *models.PointRecord
		d   models.TrackDescriptor
		err error
	)
	if e.mode.Continuous {
		d, rec, err = e.writeLocked(models.KindContinuous, s.Lat, s.Lon, s.Time)
	}
	e.mu.Unlock()

	if e.onSample != nil {
		e.onSample(s)
	}
	if err != nil {
		return nil, err
	}
	if rec != nil && e.onRecord != nil {
		e.onRecord(d, *rec)
	}
	return rec, nil
}

// ManualTrigger writes the latest fix to the current track: MANUAL in
// manual mode, HIGHLIGHT in continuous mode.
func (e *Engine) ManualTrigger() (models.TrackDescriptor, models.PointRecord, error) {
	e.mu.Lock()
	if _, ok := e.tracks.Current(); !ok {
		e.mu.Unlock()
		return models.TrackDescriptor{}, models.PointRecord{}, apperr.ErrNoCurrentTrack
	}
	if e.latest == nil {
		e.mu.Unlock()
		return models.TrackDescriptor{}, models.PointRecord{}, apperr.ErrNoFix
	}
	kind := models.KindManual
	if e.mode.Continuous {
		kind = models.KindHighlight
	}
	d, rec, err := e.writeLocked(kind, e.latest.Lat, e.latest.Lon, e.now())
	e.mu.Unlock()

	if err != nil {
		return models.TrackDescriptor{}, models.PointRecord{}, err
	}
	if e.onRecord != nil {
		e.onRecord(d, *rec)
	}
	return d, *rec, nil
}

func (e *Engine) writeLocked(kind models.Kind, lat, lon float64, ts time.Time) (models.TrackDescriptor, *models.PointRecord, error) {
	d, ok := e.tracks.Current()
	if !ok {
		return d, nil, apperr.ErrNoCurrentTrack
	}
	rec := models.PointRecord{Timestamp: ts.Local(), Kind: kind, Lat: lat, Lon: lon}
	attrs := metric.WithAttributes(attribute.String("kind", string(kind)))
	if err := e.files.Append(d.Filename, rec); err != nil {
		e.failed.Add(context.Background(), 1, attrs)
		return d, nil, apperr.Persist(err)
	}
	e.written.Add(context.Background(), 1, attrs)
	return d, &rec, nil
}

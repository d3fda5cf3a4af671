package location

import (
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/starford/geotracker/internal/codec"
	"github.com/starford/geotracker/internal/models"
)

const defaultReplayInterval = time.Second

// Replay emits the points of a recorded track as live samples, one per
// Interval. It is used to drive the recorder without a device.
type Replay struct {
	records []models.PointRecord
	loop    bool
	logger  *slog.Logger
	now     func() time.Time

	mu       sync.Mutex
	interval time.Duration
	cb       Callback
	pos      int
	ticker   *time.Ticker
	stop     chan struct{}
	done     chan struct{}
}

var _ Source = (*Replay)(nil)

// NewReplay replays records in order. With loop set it starts over after
// the last record; otherwise the subscription ends there.
func NewReplay(records []models.PointRecord, loop bool, logger *slog.Logger) *Replay {
	return &Replay{
		records:  records,
		loop:     loop,
		logger:   logger,
		now:      time.Now,
		interval: defaultReplayInterval,
	}
}

// LoadReplay decodes a track file and returns a Replay over its points.
func LoadReplay(r io.Reader, loop bool, logger *slog.Logger) (*Replay, error) {
	recs, err := codec.ReadAll(r, func(se *codec.SkipError) {
		logger.Debug("replay: skipped line", slog.Int("line", se.Line), slog.String("reason", se.Reason))
	})
	if err != nil {
		return nil, fmt.Errorf("location: load replay: %w", err)
	}
	return NewReplay(recs, loop, logger), nil
}

// Len returns the number of points in the replay.
func (r *Replay) Len() int { return len(r.records) }

// Configure changes the emission interval. A running replay keeps its position.
func (r *Replay) Configure(req Request) error {
	d := req.Interval
	if d <= 0 {
		d = defaultReplayInterval
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.interval = d
	if r.ticker != nil {
		r.ticker.Reset(d)
	}
	return nil
}

// Subscribe starts emitting to cb. Calling it on a running replay only
// swaps the callback.
func (r *Replay) Subscribe(cb Callback) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cb = cb
	if r.ticker != nil {
		return nil
	}
	if len(r.records) == 0 {
		r.logger.Warn("replay: no points to emit")
		return nil
	}
	r.ticker = time.NewTicker(r.interval)
	r.stop = make(chan struct{})
	r.done = make(chan struct{})
	go r.run(r.ticker, r.stop, r.done)
	return nil
}

// Unsubscribe stops emission and waits for the emitting goroutine to exit.
func (r *Replay) Unsubscribe() error {
	r.mu.Lock()
	stop, done := r.stop, r.done
	r.cb = nil
	r.ticker, r.stop, r.done = nil, nil, nil
	r.mu.Unlock()
	if stop == nil {
		return nil
	}
	close(stop)
	<-done
	return nil
}

func (r *Replay) run(ticker *time.Ticker, stop, done chan struct{}) {
	defer close(done)
	defer r.halt(ticker)
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			s, cb, more := r.next()
			if cb != nil {
				// The subscriber logs its own failures; replay keeps going.
				_ = cb(s)
			}
			if !more {
				r.logger.Info("replay finished", slog.Int("points", len(r.records)))
				return
			}
		}
	}
}

func (r *Replay) next() (Sample, Callback, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec := r.records[r.pos]
	r.pos++
	if r.pos >= len(r.records) {
		r.pos = 0
		if !r.loop {
			return Sample{Lat: rec.Lat, Lon: rec.Lon, Time: r.now()}, r.cb, false
		}
	}
	return Sample{Lat: rec.Lat, Lon: rec.Lon, Time: r.now()}, r.cb, true
}

func (r *Replay) halt(ticker *time.Ticker) {
	ticker.Stop()
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.ticker == ticker {
		r.ticker = nil
		r.stop = nil
		r.done = nil
	}
}

// Package servicetest wires a trackservice.Service over temporary storage for
// tests of the surfaces built on it.
package servicetest

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/starford/geotracker/internal/catalog"
	"github.com/starford/geotracker/internal/kvstore"
	"github.com/starford/geotracker/internal/location"
	"github.com/starford/geotracker/internal/settings"
	"github.com/starford/geotracker/internal/share"
	"github.com/starford/geotracker/internal/sse"
	"github.com/starford/geotracker/internal/storage"
	"github.com/starford/geotracker/internal/testutil"
	"github.com/starford/geotracker/internal/trackfile"
	"github.com/starford/geotracker/internal/trackservice"
)

// Events records everything published by a trackservice.Service.
type Events struct {
	mu     sync.Mutex
	events []sse.Event
}

func (e *Events) Publish(ev sse.Event) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, ev)
}

func (e *Events) PublishTrackEvent(kind, name, filename string) {
	e.Publish(sse.Event{Type: "track." + kind, Data: sse.TrackChange{Name: name, Filename: filename}})
}

// Types returns the event types in publish order.
func (e *Events) Types() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, len(e.events))
	for i, ev := range e.events {
		out[i] = ev.Type
	}
	return out
}

// Stack is a fully wired service over a temporary directory.
type Stack struct {
	Service *trackservice.Service
	Catalog *catalog.Catalog
	Files   *trackfile.Store
	FS      storage.Provider
	KV      *kvstore.Memory
	Feed    *location.Feed
	Events  *Events
}

// NewStack builds and starts a service with an in-memory settings store and
// a push feed.
func NewStack(t *testing.T) *Stack {
	t.Helper()
	_, fs := testutil.TestDir(t)
	logger := testutil.Logger()
	kv := kvstore.NewMemory()
	st := settings.New(kv)
	files := trackfile.New(fs, logger)
	cat := catalog.New(files, st, logger)
	if err := cat.Load(); err != nil {
		t.Fatal(err)
	}
	feed := location.NewFeed()
	events := &Events{}
	svc, err := trackservice.New(trackservice.Deps{
		Catalog:  cat,
		Files:    files,
		Settings: st,
		Source:   feed,
		Feed:     feed,
		Sink:     share.NewLinks("http://geotracker.test", files),
		Events:   events,
		Logger:   logger,
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := svc.Start(t.Context()); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = svc.Stop(context.Background()) })
	return &Stack{Service: svc, Catalog: cat, Files: files, FS: fs, KV: kv, Feed: feed, Events: events}
}

// BreakTrackFile replaces filename with a directory so every later write to
// the track fails.
func (s *Stack) BreakTrackFile(t *testing.T, filename string) {
	t.Helper()
	p := filepath.Join(s.FS.Root(), filename)
	if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
		t.Fatal(err)
	}
	if err := os.Mkdir(p, 0o755); err != nil {
		t.Fatal(err)
	}
}

// Package sse implements a Server-Sent Events broker for live map updates.
package sse

import (
	"encoding/json"
	"fmt"
	"net/http"
	"slices"
	"sync/atomic"
	"time"
)

// Event types sent to clients.
const (
	TypeTrackCreated = "track.created"
	TypeTrackUpdated = "track.updated"
	TypeTrackDeleted = "track.deleted"
	TypeSample       = "sample"
	TypeModeChanged  = "mode.changed"
	TypeSceneUpdated = "scene.updated"
)

// Event represents an SSE event to broadcast.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// Track change kinds accepted by PublishTrackEvent.
const (
	ChangeCreated = "created"
	ChangeUpdated = "updated"
	ChangeDeleted = "deleted"
)

// TrackChange is the payload of track.* events.
type TrackChange struct {
	Name     string `json:"name,omitempty"`
	Filename string `json:"filename"`
}

// SceneChange is the payload of scene.updated. It summarises what changed
// since the previous scene.updated so clients can refetch only those tracks.
type SceneChange struct {
	Reason  string   `json:"reason"`
	Tracks  []string `json:"tracks,omitempty"`
	Changes int      `json:"changes"`
}

// Scene refresh reasons.
const (
	ReasonTracks = "tracks"
	ReasonMode   = "mode"
)

type trackEventReq struct {
	kind   string
	change TrackChange
}

// pendingScene accumulates changes inside one throttle window.
type pendingScene struct {
	reason  string
	tracks  []string
	changes int
}

func (p *pendingScene) add(reason, filename string) {
	if p.reason == "" || reason == ReasonMode {
		p.reason = reason
	}
	if filename != "" && !slices.Contains(p.tracks, filename) {
		p.tracks = append(p.tracks, filename)
	}
	p.changes++
}

func (p *pendingScene) take() SceneChange {
	sc := SceneChange{Reason: p.reason, Tracks: p.tracks, Changes: p.changes}
	*p = pendingScene{}
	return sc
}

// Broker manages SSE client connections and broadcasts events.
//
// A single loop goroutine owns the clients, the last position and mode, and
// the scene throttle. Track changes arriving inside the throttle window are
// folded into one trailing scene.updated. New clients first receive the last
// sample and mode.
type Broker struct {
	sceneMin time.Duration

	subscribeCh   chan chan []byte
	unsubscribeCh chan chan []byte
	publishCh     chan Event
	trackEventCh  chan trackEventReq
	countReqCh    chan chan int

	stopCh  chan struct{}
	stopped chan struct{}
	closed  atomic.Bool
}

// NewBroker creates a new SSE broker with the given scene throttle interval.
func NewBroker(sceneThrottle time.Duration) *Broker {
	if sceneThrottle <= 0 {
		sceneThrottle = 2 * time.Second
	}

	b := &Broker{
		sceneMin:      sceneThrottle,
		subscribeCh:   make(chan chan []byte),
		unsubscribeCh: make(chan chan []byte),
		publishCh:     make(chan Event, 256),
		trackEventCh:  make(chan trackEventReq, 256),
		countReqCh:    make(chan chan int),
		stopCh:        make(chan struct{}),
		stopped:       make(chan struct{}),
	}

	go b.run()
	return b
}

func encode(event Event) ([]byte, bool) {
	payload, err := json.Marshal(event.Data)
	if err != nil {
		return nil, false
	}
	return []byte(fmt.Sprintf("event: %s\ndata: %s\n\n", event.Type, payload)), true
}

func (b *Broker) run() {
	defer close(b.stopped)

	clients := make(map[chan []byte]struct{})
	var (
		lastScene  time.Time
		pending    pendingScene
		flush      *time.Timer
		flushC     <-chan time.Time
		lastSample []byte
		lastMode   []byte
	)

	send := func(raw []byte) {
		for ch := range clients {
			select {
			case ch <- raw:
			default:
				// Slow client; drop rather than stall the loop.
			}
		}
	}
	broadcast := func(event Event) []byte {
		raw, ok := encode(event)
		if ok {
			send(raw)
		}
		return raw
	}
	emitScene := func() {
		lastScene = time.Now()
		broadcast(Event{Type: TypeSceneUpdated, Data: pending.take()})
	}
	sceneChanged := func(reason, filename string) {
		pending.add(reason, filename)
		if flushC != nil {
			return
		}
		wait := b.sceneMin - time.Since(lastScene)
		if wait <= 0 {
			emitScene()
			return
		}
		flush = time.NewTimer(wait)
		flushC = flush.C
	}

	for {
		select {
		case <-b.stopCh:
			if flush != nil {
				flush.Stop()
			}
			for ch := range clients {
				close(ch)
			}
			return

		case ch := <-b.subscribeCh:
			clients[ch] = struct{}{}
			for _, raw := range [][]byte{lastMode, lastSample} {
				if raw != nil {
					ch <- raw
				}
			}

		case ch := <-b.unsubscribeCh:
			if _, ok := clients[ch]; ok {
				delete(clients, ch)
				close(ch)
			}

		case event := <-b.publishCh:
			raw := broadcast(event)
			switch event.Type {
			case TypeSample:
				lastSample = raw
			case TypeModeChanged:
				lastMode = raw
				sceneChanged(ReasonMode, "")
			}

		case req := <-b.trackEventCh:
			switch req.kind {
			case ChangeCreated:
				broadcast(Event{Type: TypeTrackCreated, Data: req.change})
			case ChangeUpdated:
				broadcast(Event{Type: TypeTrackUpdated, Data: req.change})
			case ChangeDeleted:
				broadcast(Event{Type: TypeTrackDeleted, Data: req.change})
			default:
				continue
			}
			sceneChanged(ReasonTracks, req.change.Filename)

		case <-flushC:
			flush, flushC = nil, nil
			emitScene()

		case resp := <-b.countReqCh:
			resp <- len(clients)
		}
	}
}

// Close gracefully stops broker loop and closes all client channels.
func (b *Broker) Close() {
	if b.closed.CompareAndSwap(false, true) {
		close(b.stopCh)
	}
	<-b.stopped
}

// Subscribe adds a new client and returns its channel.
func (b *Broker) Subscribe() chan []byte {
	ch := make(chan []byte, 64)
	if b.closed.Load() {
		close(ch)
		return ch
	}

	select {
	case b.subscribeCh <- ch:
	case <-b.stopped:
		close(ch)
	}

	return ch
}

// Unsubscribe removes a client and closes its channel.
func (b *Broker) Unsubscribe(ch chan []byte) {
	if b.closed.Load() {
		return
	}
	select {
	case b.unsubscribeCh <- ch:
	case <-b.stopped:
	}
}

// ClientCount returns the number of connected clients.
func (b *Broker) ClientCount() int {
	if b.closed.Load() {
		return 0
	}

	resp := make(chan int, 1)
	select {
	case b.countReqCh <- resp:
	case <-b.stopped:
		return 0
	}

	select {
	case n := <-resp:
		return n
	case <-b.stopped:
		return 0
	}
}

// Publish sends an event to all connected clients. A mode.changed event also
// schedules a scene.updated.
func (b *Broker) Publish(event Event) {
	if b.closed.Load() {
		return
	}
	select {
	case b.publishCh <- event:
	case <-b.stopped:
	}
}

// PublishTrackEvent publishes a track change (ChangeCreated, ChangeUpdated or
// ChangeDeleted) and folds it into the next scene.updated. Other kinds are
// ignored.
func (b *Broker) PublishTrackEvent(kind, name, filename string) {
	if b.closed.Load() {
		return
	}
	req := trackEventReq{kind: kind, change: TrackChange{Name: name, Filename: filename}}
	select {
	case b.trackEventCh <- req:
	case <-b.stopped:
	}
}

// ServeHTTP is the SSE endpoint handler (GET /api/events).
func (b *Broker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			_, _ = w.Write(msg)
			flusher.Flush()
		}
	}
}

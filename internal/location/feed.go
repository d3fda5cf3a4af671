package location

import (
	"sync"
	"time"
)

// Feed is a push Source: the host hands it samples via Push and it delivers
// them to the subscriber, dropping those that arrive faster than the
// configured Fastest spacing.
type Feed struct {
	now func() time.Time

	// deliver serialises callbacks so samples reach the subscriber in
	// push order; it is never held together with mu by Configure.
	deliver sync.Mutex

	mu       sync.Mutex
	req      Request
	cb       Callback
	last     time.Time
	haveLast bool
}

var _ Source = (*Feed)(nil)

// NewFeed returns an unsubscribed feed.
func NewFeed() *Feed {
	return &Feed{now: time.Now}
}

// Configure updates the rate. The subscription and the throttle state are kept.
func (f *Feed) Configure(req Request) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.req = req
	return nil
}

// Request returns the active configuration.
func (f *Feed) Request() Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.req
}

// Subscribe installs cb, replacing any previous subscriber.
func (f *Feed) Subscribe(cb Callback) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cb = cb
	return nil
}

// Unsubscribe stops delivery. Pushed samples are dropped until the next
// Subscribe.
func (f *Feed) Unsubscribe() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cb = nil
	return nil
}

// Subscribed reports whether a subscriber is installed.
func (f *Feed) Subscribed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cb != nil
}

// Push validates s and delivers it. A zero Time is stamped with the current
// time. It reports whether the sample reached the subscriber and returns the
// subscriber's error, if any.
func (f *Feed) Push(s Sample) (bool, error) {
	if err := s.Validate(); err != nil {
		return false, err
	}
	if s.Time.IsZero() {
		s.Time = f.now()
	}

	f.deliver.Lock()
	defer f.deliver.Unlock()

	f.mu.Lock()
	cb := f.cb
	if cb == nil {
		f.mu.Unlock()
		return false, nil
	}
	// A sample older than the previous one restarts the throttle window.
	if d := s.Time.Sub(f.last); f.haveLast && d >= 0 && d < f.req.Fastest {
		f.mu.Unlock()
		return false, nil
	}
	f.last, f.haveLast = s.Time, true
	f.mu.Unlock()

	if err := cb(s); err != nil {
		return true, err
	}
	return true, nil
}

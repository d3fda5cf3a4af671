// Package location defines the location source the recorder subscribes to
// and the two implementations the host uses: a push Feed and a file Replay.
package location

import (
	"errors"
	"math"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Priority is the accuracy/power trade-off requested from a source.
type Priority int

const (
	PriorityHigh Priority = iota
	PriorityBalanced
	PriorityLow
	PriorityPassive
)

func (p Priority) String() string {
	switch p {
	case PriorityHigh:
		return "HIGH"
	case PriorityBalanced:
		return "BALANCED"
	case PriorityLow:
		return "LOW"
	case PriorityPassive:
		return "PASSIVE"
	}
	return "UNKNOWN"
}

// Request configures delivery rate. Fastest is the minimum spacing between
// two delivered samples.
type Request struct {
	Interval time.Duration `json:"interval"`
	Fastest  time.Duration `json:"fastest"`
	Priority Priority      `json:"priority"`
}

// Sample is one location fix.
type Sample struct {
	Lat      float64   `json:"lat"`
	Lon      float64   `json:"lon"`
	Time     time.Time `json:"time"`
	Accuracy *float64  `json:"accuracy,omitempty"`
}

// Validate rejects non-finite or out-of-range coordinates.
func (s Sample) Validate() error {
	return validation.ValidateStruct(&s,
		validation.Field(&s.Lat, validation.By(finite), validation.Min(-90.0), validation.Max(90.0)),
		validation.Field(&s.Lon, validation.By(finite), validation.Min(-180.0), validation.Max(180.0)),
		validation.Field(&s.Accuracy, validation.Min(0.0)),
	)
}

func finite(v any) error {
	f, _ := v.(float64)
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return errors.New("must be a finite number")
	}
	return nil
}

// Callback receives delivered samples and reports whether the subscriber
// could handle them. It must not call Unsubscribe on the source that
// invoked it.
type Callback func(Sample) error

// Source is a subscribable stream of location fixes.
type Source interface {
	Configure(Request) error
	Subscribe(Callback) error
	Unsubscribe() error
}

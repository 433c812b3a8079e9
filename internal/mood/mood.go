// Package mood tracks mirra's scalar mood: a value in [-1, 1] re-estimated
// on a slow cadence and published through a single-slot signal that the
// fast breathing loop reads without blocking.
package mood

import (
	"sync/atomic"
	"time"
)

// Sample is one mood reading. Samples are immutable once published.
type Sample struct {
	Value float64   // [-1, 1], -1 most negative
	At    time.Time // when the estimate was made
}

// Signal is a single-slot latest-value holder with overwrite semantics.
// Writers replace the whole sample atomically; readers never observe a
// partially updated one and must tolerate stale values between updates.
type Signal struct {
	current atomic.Pointer[Sample]
}

// NewSignal creates a signal holding a neutral mood.
func NewSignal() *Signal {
	s := &Signal{}
	s.Publish(Sample{Value: 0, At: time.Now()})
	return s
}

// Publish replaces the latest sample.
func (s *Signal) Publish(sample Sample) {
	s.current.Store(&sample)
}

// Latest returns the most recent sample without blocking.
func (s *Signal) Latest() Sample {
	return *s.current.Load()
}

// Value returns just the latest mood scalar.
func (s *Signal) Value() float64 {
	return s.current.Load().Value
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

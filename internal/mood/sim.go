package mood

import (
	"math/rand"
	"time"
)

// Simulator is a camera-less mood source: a bounded random walk with a
// gentle pull back toward neutral. Used when no vision pipeline is
// configured, so the creature still breathes like something is going on.
type Simulator struct {
	signal *Signal
	rng    *rand.Rand
	step   float64
}

// NewSimulator creates a simulator publishing into the given signal.
func NewSimulator(signal *Signal, rng *rand.Rand) *Simulator {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Simulator{signal: signal, rng: rng, step: 0.15}
}

// Evaluate performs one random-walk step and publishes the result.
func (s *Simulator) Evaluate() Sample {
	prev := s.signal.Latest()

	delta := (s.rng.Float64()*2 - 1) * s.step
	next := Sample{
		Value: clamp(prev.Value*0.95+delta, -1, 1),
		At:    time.Now(),
	}
	s.signal.Publish(next)
	return next
}

// Package decision implements the novelty/boredom policy that gates
// mirra's expensive actions (drawing, big servo repositioning). It decides
// whether to act; it never performs the action itself, and failures of a
// dispatched action are invisible to it.
package decision

import (
	"sync"
	"time"
)

// Sample is one observed mood reading.
type Sample struct {
	Value float64   // mood in [-1, 1]
	At    time.Time // when the reading was taken
}

// Config tunes the policy.
type Config struct {
	NoveltyThreshold float64       // mood deviation from the recent average that counts as novel
	BoredomThreshold float64       // accumulated monotonous seconds before acting out of boredom
	Cooldown         time.Duration // hard floor between actions
	WindowSize       int           // recent samples kept for the running average
}

// Policy accumulates recent mood samples and decides when to act.
// It is safe for concurrent use, though in practice only the decision
// cadence touches it.
type Policy struct {
	mu sync.Mutex

	cfg          Config
	window       []Sample
	boredom      float64
	novelty      float64
	lastActionAt time.Time
	lastEvalAt   time.Time
}

// New creates a policy. The cooldown window starts at construction time,
// so a freshly started creature never acts immediately.
func New(cfg Config, now time.Time) *Policy {
	return &Policy{
		cfg:          cfg,
		window:       make([]Sample, 0, cfg.WindowSize),
		lastActionAt: now,
		lastEvalAt:   now,
	}
}

// Evaluate records the current mood and reports whether an expensive
// action should fire now. At most one true is returned per cooldown
// window regardless of how novel or bored the creature is.
func (p *Policy) Evaluate(mood float64, now time.Time) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.novelty = p.noveltyOf(mood)
	p.push(Sample{Value: mood, At: now})

	cooledDown := now.Sub(p.lastActionAt) >= p.cfg.Cooldown
	inspired := p.novelty >= p.cfg.NoveltyThreshold || p.boredom >= p.cfg.BoredomThreshold

	if cooledDown && inspired {
		p.boredom = 0
		p.lastActionAt = now
		p.lastEvalAt = now
		return true
	}

	// Novelty is stimulation even when the cooldown blocks acting on it.
	if p.novelty >= p.cfg.NoveltyThreshold {
		p.boredom = 0
	} else {
		p.boredom += now.Sub(p.lastEvalAt).Seconds()
	}
	p.lastEvalAt = now
	return false
}

// noveltyOf is the magnitude of the mood's deviation from the window's
// running average. An empty window means nothing to deviate from.
func (p *Policy) noveltyOf(mood float64) float64 {
	if len(p.window) == 0 {
		return 0
	}
	var sum float64
	for _, s := range p.window {
		sum += s.Value
	}
	dev := mood - sum/float64(len(p.window))
	if dev < 0 {
		dev = -dev
	}
	return dev
}

// push appends a sample, evicting the oldest once the window is full.
func (p *Policy) push(s Sample) {
	if len(p.window) >= p.cfg.WindowSize {
		copy(p.window, p.window[1:])
		p.window = p.window[:len(p.window)-1]
	}
	p.window = append(p.window, s)
}

// Snapshot reports the policy's current internals for telemetry.
func (p *Policy) Snapshot() (novelty, boredom float64, lastActionAt time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.novelty, p.boredom, p.lastActionAt
}

package mood

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Captioner describes a scene from a camera snapshot.
type Captioner interface {
	Caption(ctx context.Context, image []byte) (string, error)
}

// Scorer turns a caption into a mood scalar in [-1, 1].
type Scorer interface {
	EstimateMood(ctx context.Context, caption string) (float64, error)
}

// Snapshotter yields the most recent camera frame as encoded image bytes.
// It must not block; ok is false when no frame is available yet.
type Snapshotter interface {
	Snapshot() (image []byte, ok bool)
}

const moodDrift = 0.25 // fraction of the estimate pulled in per evaluation

// Engine periodically captions a snapshot, scores it, and drifts the
// published mood toward the new estimate. One evaluation at a time; the
// breathing loop never waits on it.
type Engine struct {
	signal    *Signal
	snaps     Snapshotter
	captioner Captioner
	scorer    Scorer

	mu          sync.Mutex
	lastCaption string
}

// NewEngine wires a mood engine onto a signal.
func NewEngine(signal *Signal, snaps Snapshotter, captioner Captioner, scorer Scorer) *Engine {
	return &Engine{
		signal:    signal,
		snaps:     snaps,
		captioner: captioner,
		scorer:    scorer,
	}
}

// Evaluate runs one mood estimation pass and publishes the drifted mood.
// Missing frames and collaborator failures leave the previous mood in
// place and are reported to the caller for logging only.
func (e *Engine) Evaluate(ctx context.Context) (Sample, error) {
	prev := e.signal.Latest()

	frame, ok := e.snaps.Snapshot()
	if !ok {
		return prev, fmt.Errorf("no frame available")
	}

	caption, err := e.captioner.Caption(ctx, frame)
	if err != nil {
		return prev, fmt.Errorf("caption: %w", err)
	}
	e.mu.Lock()
	e.lastCaption = caption
	e.mu.Unlock()

	estimate, err := e.scorer.EstimateMood(ctx, caption)
	if err != nil {
		return prev, fmt.Errorf("estimate mood: %w", err)
	}
	estimate = clamp(estimate, -1, 1)

	// Drift rather than jump: the creature's mood has inertia.
	next := Sample{
		Value: clamp(prev.Value+moodDrift*(estimate-prev.Value), -1, 1),
		At:    time.Now(),
	}
	e.signal.Publish(next)
	return next, nil
}

// LastCaption returns the most recent scene caption, for telemetry.
func (e *Engine) LastCaption() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastCaption
}

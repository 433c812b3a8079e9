// Package drawing turns an expression decision into a queued sketch.
// The dispatcher is fire-and-forget: whether ComfyUI accepts the job or
// not, the outcome never flows back into the decision policy. A failed
// drawing just gets logged and the creature moves on.
package drawing

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Queuer queues a drawing prompt on the render backend.
type Queuer interface {
	QueuePrompt(ctx context.Context, prompt string) error
}

// Recorder receives the outcome of each dispatch for the event log.
type Recorder interface {
	RecordDrawing(prompt string, queued bool, reason string)
}

// Dispatcher fires drawing jobs in the background.
type Dispatcher struct {
	queue    Queuer
	recorder Recorder
	logger   *zap.Logger
	timeout  time.Duration

	mu         sync.Mutex
	lastPrompt string
	inFlight   sync.WaitGroup
}

// NewDispatcher wires a dispatcher to a render queue. recorder may be nil.
func NewDispatcher(queue Queuer, recorder Recorder, logger *zap.Logger, timeout time.Duration) *Dispatcher {
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &Dispatcher{
		queue:    queue,
		recorder: recorder,
		logger:   logger,
		timeout:  timeout,
	}
}

// Dispatch queues a drawing for the given mood and scene caption. It
// returns immediately; the actual HTTP round trip happens on its own
// goroutine with a bounded timeout.
func (d *Dispatcher) Dispatch(mood float64, caption string) {
	prompt := PromptFor(mood, caption)

	d.mu.Lock()
	d.lastPrompt = prompt
	d.mu.Unlock()

	d.inFlight.Add(1)
	go func() {
		defer d.inFlight.Done()

		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		defer cancel()

		err := d.queue.QueuePrompt(ctx, prompt)
		if err != nil {
			d.logger.Warn("drawing dispatch failed",
				zap.String("prompt", prompt),
				zap.Error(err))
			if d.recorder != nil {
				d.recorder.RecordDrawing(prompt, false, err.Error())
			}
			return
		}
		d.logger.Info("drawing queued", zap.String("prompt", prompt))
		if d.recorder != nil {
			d.recorder.RecordDrawing(prompt, true, "inspired")
		}
	}()
}

// LastPrompt returns the most recently dispatched prompt.
func (d *Dispatcher) LastPrompt() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lastPrompt
}

// Wait blocks until in-flight dispatches finish. Shutdown helper.
func (d *Dispatcher) Wait() {
	d.inFlight.Wait()
}

// PromptFor builds a sketch prompt from the creature's mood and what it
// last saw. The style words track the mood bands the breathing uses.
func PromptFor(mood float64, caption string) string {
	var style string
	switch {
	case mood > 0.5:
		style = "bright, loose, playful line art"
	case mood > 0.0:
		style = "calm, simple line art"
	case mood > -0.5:
		style = "sparse, hesitant line art"
	default:
		style = "dense, heavy, brooding line art"
	}

	caption = strings.TrimSpace(caption)
	if caption == "" {
		caption = "an empty room"
	}
	return fmt.Sprintf("black and white sketch, %s, of %s", style, caption)
}

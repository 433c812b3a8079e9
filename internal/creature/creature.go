// Package creature runs the behavior loop: breathing at tick rate, mood
// evaluation and expression decisions on their own slower cadences. The
// loops share state only through the mood signal and a small snapshot
// mutex, so a slow LLM round trip can never stutter a breath.
package creature

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/alex/mirra/internal/breath"
	"github.com/alex/mirra/internal/config"
	"github.com/alex/mirra/internal/decision"
	"github.com/alex/mirra/internal/gaze"
	"github.com/alex/mirra/internal/mood"
	"github.com/alex/mirra/internal/server"
	"github.com/alex/mirra/internal/store"
)

// MoodSource produces one mood estimate per call. The LLM engine and
// the offline simulator both satisfy it.
type MoodSource interface {
	Evaluate(ctx context.Context) (mood.Sample, error)
}

// FaceSource reports the most recent detected face, or nil when nobody
// is in frame. frameW/frameH give the camera resolution.
type FaceSource interface {
	LatestFace() (box *gaze.Box, frameW, frameH int)
}

// Actuator drives the physical body. servo.Controller satisfies it.
type Actuator interface {
	SetPan(angle int) error
	SetTilt(angle int) error
	SetLungPosition(angle int, force bool) error
}

// Expresser queues an expressive action. drawing.Dispatcher satisfies it.
type Expresser interface {
	Dispatch(mood float64, caption string)
}

// EventSink appends behavior events. store.DB satisfies it.
type EventSink interface {
	AppendEvent(runID, eventType string, payload any) error
}

// Options wires a creature together. Moods and the signal are required;
// everything else may be nil and is skipped when absent.
type Options struct {
	Config  config.Config
	Logger  *zap.Logger
	RunID   string
	Signal  *mood.Signal
	Moods   MoodSource
	Caption func() string // most recent scene caption, may be nil
	Faces   FaceSource
	Frames  mood.Snapshotter // latest camera frame, for drawing snapshots
	Servos  Actuator
	Express Expresser
	Events  EventSink
}

// Creature owns the behavior loops.
type Creature struct {
	cfg     config.Config
	logger  *zap.Logger
	runID   string
	signal  *mood.Signal
	moods   MoodSource
	caption func() string
	faces   FaceSource
	frames  mood.Snapshotter
	servos  Actuator
	express Expresser
	events  EventSink

	breath *breath.State
	gaze   *gaze.Tracker
	policy *decision.Policy

	// snapshot fields, guarded by mu; the HTTP status handler reads
	// these from its own goroutine
	mu         sync.Mutex
	lastLung   int
	lastMode   breath.Mode
	lastPaused bool
	personSeen bool
	lastPrompt string
}

// New assembles a creature from options. Call Run to start it.
func New(opts Options) *Creature {
	cfg := opts.Config
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	caption := opts.Caption
	if caption == nil {
		caption = func() string { return "" }
	}

	c := &Creature{
		cfg:     cfg,
		logger:  logger,
		runID:   opts.RunID,
		signal:  opts.Signal,
		moods:   opts.Moods,
		caption: caption,
		faces:   opts.Faces,
		frames:  opts.Frames,
		servos:  opts.Servos,
		express: opts.Express,
		events:  opts.Events,

		breath: breath.New(breath.Config{
			LungMin:       cfg.Breath.LungMin,
			LungMax:       cfg.Breath.LungMax,
			PauseDuration: cfg.Breath.PauseDuration,
			EasingFactor:  cfg.Breath.EasingFactor,
			MinLungSpeed:  cfg.Breath.MinLungSpeed,
			MaxLungSpeed:  cfg.Breath.MaxLungSpeed,
		}),
		gaze: gaze.New(gaze.Config{
			ServoMin:     cfg.Gaze.ServoMin,
			ServoMax:     cfg.Gaze.ServoMax,
			DeadZone:     cfg.Gaze.DeadZone,
			FlipX:        cfg.Gaze.FlipX,
			FlipY:        cfg.Gaze.FlipY,
			IdleCenterX:  cfg.Gaze.IdleCenterX,
			IdleCenterY:  cfg.Gaze.IdleCenterY,
			IdleJitter:   cfg.Gaze.IdleJitter,
			IdleSpeedMin: cfg.Gaze.IdleSpeedMin,
			IdleSpeedMax: cfg.Gaze.IdleSpeedMax,
		}),
		policy: decision.New(decision.Config{
			NoveltyThreshold: cfg.Decision.NoveltyThreshold,
			BoredomThreshold: cfg.Decision.BoredomThreshold,
			Cooldown:         cfg.Decision.Cooldown.Std(),
			WindowSize:       cfg.Decision.WindowSize,
		}, time.Now()),
	}
	c.lastMode = c.breath.Mode()
	c.lastLung = c.breath.Position()
	return c
}

// Run drives all loops until ctx is canceled. In-flight LLM calls are
// abandoned on shutdown; the creature just stops mid-breath.
func (c *Creature) Run(ctx context.Context) error {
	c.logger.Info("creature waking up",
		zap.String("run_id", c.runID),
		zap.Int("tick_hz", c.cfg.Loop.TickHz))

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return c.breathLoop(ctx) })
	g.Go(func() error { return c.moodLoop(ctx) })
	g.Go(func() error { return c.decisionLoop(ctx) })

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	c.logger.Info("creature stopped", zap.String("run_id", c.runID))
	return err
}

// breathLoop advances breathing and gaze at tick rate. It reads the
// mood signal but never blocks on anything slower than a servo write.
func (c *Creature) breathLoop(ctx context.Context) error {
	interval := time.Second / time.Duration(c.cfg.Loop.TickHz)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			delta := now.Sub(last).Seconds()
			last = now
			c.tick(delta)
		}
	}
}

func (c *Creature) tick(delta float64) {
	var face *gaze.Box
	frameW, frameH := 320, 240
	if c.faces != nil {
		face, frameW, frameH = c.faces.LatestFace()
	}
	pan, tilt, present := c.gaze.Advance(face, frameW, frameH, delta)

	moodNow := c.signal.Value()
	lung := c.breath.Advance(moodNow, present, delta)

	c.mu.Lock()
	c.lastLung = lung
	c.lastMode = c.breath.Mode()
	c.lastPaused = c.breath.Paused()
	c.personSeen = present
	c.mu.Unlock()

	if c.servos != nil {
		if err := c.servos.SetLungPosition(lung, false); err != nil {
			c.logger.Warn("lung servo write failed", zap.Error(err))
		}
		if err := c.servos.SetPan(pan); err != nil {
			c.logger.Warn("pan servo write failed", zap.Error(err))
		}
		if err := c.servos.SetTilt(tilt); err != nil {
			c.logger.Warn("tilt servo write failed", zap.Error(err))
		}
	}
}

// moodLoop re-estimates mood on its own cadence. Failures keep the
// previous mood; the creature would rather feel stale than freeze.
func (c *Creature) moodLoop(ctx context.Context) error {
	ticker := time.NewTicker(c.cfg.Mood.Interval.Std())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			sample, err := c.moods.Evaluate(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				c.logger.Warn("mood evaluation failed", zap.Error(err))
				c.logEvent(store.EventError, map[string]string{
					"component": "mood",
					"message":   err.Error(),
				})
				continue
			}
			c.logger.Debug("mood updated",
				zap.Float64("mood", sample.Value),
				zap.String("caption", c.caption()))
			c.logEvent(store.EventMood, map[string]any{
				"mood":    sample.Value,
				"caption": c.caption(),
			})
		}
	}
}

// decisionLoop asks the policy whether to express, on a slow cadence.
func (c *Creature) decisionLoop(ctx context.Context) error {
	ticker := time.NewTicker(c.cfg.Decision.Interval.Std())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			moodNow := c.signal.Value()
			inspired := c.policy.Evaluate(moodNow, now)
			novelty, boredom, _ := c.policy.Snapshot()

			c.logEvent(store.EventDecision, map[string]any{
				"decision": decisionName(inspired),
				"mood":     moodNow,
				"novelty":  novelty,
				"boredom":  boredom,
			})

			if !inspired {
				continue
			}
			caption := c.caption()
			c.logger.Info("inspired to draw",
				zap.Float64("mood", moodNow),
				zap.Float64("novelty", novelty),
				zap.String("caption", caption))
			c.saveSnapshot()
			if c.express != nil {
				c.express.Dispatch(moodNow, caption)
			}
		}
	}
}

// saveSnapshot keeps the frame that inspired a drawing, so a session
// can be replayed against what the creature actually saw.
func (c *Creature) saveSnapshot() {
	if c.frames == nil || c.cfg.Mood.SnapshotDir == "" {
		return
	}
	frame, ok := c.frames.Snapshot()
	if !ok {
		return
	}

	dir := filepath.Join(c.cfg.Mood.SnapshotDir, c.runID+"-images")
	if err := os.MkdirAll(dir, 0755); err != nil {
		c.logger.Warn("snapshot dir create failed", zap.Error(err))
		return
	}
	path := filepath.Join(dir, "draw_input_"+time.Now().Format("20060102_150405")+".jpg")
	if err := os.WriteFile(path, frame, 0644); err != nil {
		c.logger.Warn("snapshot write failed", zap.String("path", path), zap.Error(err))
		return
	}
	c.logger.Debug("snapshot saved", zap.String("path", path))
}

func decisionName(inspired bool) string {
	if inspired {
		return "trigger_drawing"
	}
	return "skip_drawing"
}

// RecordDrawing receives dispatch outcomes from the drawing pipeline.
func (c *Creature) RecordDrawing(prompt string, queued bool, reason string) {
	c.mu.Lock()
	c.lastPrompt = prompt
	c.mu.Unlock()
	c.logEvent(store.EventDrawing, map[string]any{
		"prompt": prompt,
		"queued": queued,
		"reason": reason,
	})
}

// OnImage receives finished render paths from the output watcher.
func (c *Creature) OnImage(path string) {
	c.logger.Info("drawing finished", zap.String("path", path))
	c.logEvent(store.EventImageDetected, map[string]string{"path": path})
}

// Status snapshots the creature for the HTTP API.
func (c *Creature) Status() server.Status {
	c.mu.Lock()
	lung, seen, prompt := c.lastLung, c.personSeen, c.lastPrompt
	mode, paused := c.lastMode, c.lastPaused
	c.mu.Unlock()

	return server.Status{
		RunID:        c.runID,
		Mood:         c.signal.Value(),
		BreathMode:   string(mode),
		BreathPaused: paused,
		LungPosition: lung,
		PersonSeen:   seen,
		LastCaption:  c.caption(),
		LastPrompt:   prompt,
	}
}

func (c *Creature) logEvent(eventType string, payload any) {
	if c.events == nil {
		return
	}
	if err := c.events.AppendEvent(c.runID, eventType, payload); err != nil {
		c.logger.Warn("event log write failed",
			zap.String("event_type", eventType),
			zap.Error(err))
	}
}

// SimulatedSource adapts the offline mood simulator to MoodSource.
type SimulatedSource struct {
	Sim *mood.Simulator
}

// Evaluate runs one simulator step. It never fails and ignores ctx.
func (s SimulatedSource) Evaluate(ctx context.Context) (mood.Sample, error) {
	return s.Sim.Evaluate(), nil
}

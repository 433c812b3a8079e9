// Package gaze steers the pan/tilt servos: it locks onto a detected face
// and eases toward it, and wanders on independent per-axis timers when
// nobody has been around for a while.
package gaze

import (
	"math"
	"math/rand"
	"time"
)

// Tuning for face locking and idle wandering.
const (
	faceLockTimeout = 6.0  // seconds a still face holds attention
	trackEasing     = 0.5  // easing factor while tracking
	trackGain       = 0.05 // degrees of correction per pixel of offset
	idlePauseMin    = 0.5  // seconds an idle target is held, lower bound
	idlePauseMax    = 5.0
	syncChance      = 0.1 // chance both axes re-target together
	moveThreshold   = 15  // pixels of face movement that refresh the lock
)

// Box is a face bounding box in frame pixel coordinates.
type Box struct {
	X1, Y1, X2, Y2 int
}

// Config bounds the tracker. Values mirror the servo configuration.
type Config struct {
	ServoMin     int
	ServoMax     int
	DeadZone     int // pixels of center offset to ignore
	FlipX        bool
	FlipY        bool
	IdleCenterX  int
	IdleCenterY  int
	IdleJitter   int
	IdleSpeedMin float64
	IdleSpeedMax float64
}

// Tracker holds the gaze state across ticks. It is owned by the main
// loop and must not be shared.
type Tracker struct {
	cfg Config
	rng *rand.Rand

	servoX, servoY   float64
	targetX, targetY float64

	idleTargetX, idleTargetY float64
	idleHoldUntilX           float64
	idleHoldUntilY           float64
	idleSpeedX, idleSpeedY   float64

	lastSeen      float64 // elapsed-seconds timestamps
	faceLockStart float64
	elapsed       float64
}

// New creates a tracker resting at the idle center.
func New(cfg Config) *Tracker {
	return NewWithRand(cfg, rand.New(rand.NewSource(time.Now().UnixNano())))
}

// NewWithRand is New with an injectable random source for tests.
func NewWithRand(cfg Config, rng *rand.Rand) *Tracker {
	return &Tracker{
		cfg:         cfg,
		rng:         rng,
		servoX:      float64(cfg.IdleCenterX),
		servoY:      float64(cfg.IdleCenterY),
		targetX:     float64(cfg.IdleCenterX),
		targetY:     float64(cfg.IdleCenterY),
		idleTargetX: float64(cfg.IdleCenterX),
		idleTargetY: float64(cfg.IdleCenterY),
		idleSpeedX:  0.1,
		idleSpeedY:  0.1,
	}
}

// Advance moves the gaze by delta seconds. face is nil when no face is in
// frame; frameW/frameH give the camera resolution for centering. It
// returns the pan/tilt angles and whether a person currently holds the
// creature's attention.
func (t *Tracker) Advance(face *Box, frameW, frameH int, delta float64) (pan, tilt int, personPresent bool) {
	if delta < 0 {
		delta = 0
	}
	t.elapsed += delta

	personPresent = face != nil

	if personPresent {
		personPresent = t.track(face, frameW, frameH)
	}

	if !personPresent && t.elapsed-t.lastSeen > faceLockTimeout {
		t.wander()
	}

	return int(math.Round(t.servoX)), int(math.Round(t.servoY)), personPresent
}

// track eases the servos toward the face center. It reports false when
// the face has been still past the lock timeout and attention breaks away.
func (t *Tracker) track(face *Box, frameW, frameH int) bool {
	centerX := (face.X1 + face.X2) / 2
	centerY := (face.Y1 + face.Y2) / 2
	if t.cfg.FlipX {
		centerX = frameW - centerX
	}
	if t.cfg.FlipY {
		centerY = frameH - centerY
	}

	dx := float64(centerX - frameW/2)
	dy := float64(centerY - frameH/2)

	if math.Abs(dx)+math.Abs(dy) > moveThreshold {
		t.faceLockStart = t.elapsed
	}

	if t.elapsed-t.faceLockStart >= faceLockTimeout {
		return false // face is a statue; let the gaze drift
	}

	if math.Abs(dx) > float64(t.cfg.DeadZone) {
		t.targetX = t.clamp(t.targetX + dx*trackGain)
	}
	if math.Abs(dy) > float64(t.cfg.DeadZone) {
		t.targetY = t.clamp(t.targetY + dy*trackGain)
	}

	t.servoX = smoothStep(t.servoX, t.targetX, trackEasing)
	t.servoY = smoothStep(t.servoY, t.targetY, trackEasing)
	t.lastSeen = t.elapsed
	return true
}

// wander drifts each axis toward its own jittered target, re-rolling
// targets on independent hold timers with an occasional synchronized move.
func (t *Tracker) wander() {
	syncAxes := t.rng.Float64() < syncChance

	if t.elapsed > t.idleHoldUntilX || syncAxes {
		jitter := float64(t.rng.Intn(2*t.cfg.IdleJitter+1) - t.cfg.IdleJitter)
		t.idleTargetX = t.clamp(float64(t.cfg.IdleCenterX) + jitter)
		t.idleHoldUntilX = t.elapsed + idlePauseMin + t.rng.Float64()*(idlePauseMax-idlePauseMin)
		t.idleSpeedX = t.cfg.IdleSpeedMin + t.rng.Float64()*(t.cfg.IdleSpeedMax-t.cfg.IdleSpeedMin)
	}

	if t.elapsed > t.idleHoldUntilY || syncAxes {
		jitter := float64(t.rng.Intn(2*t.cfg.IdleJitter+1) - t.cfg.IdleJitter)
		t.idleTargetY = t.clamp(float64(t.cfg.IdleCenterY) + jitter)
		t.idleHoldUntilY = t.elapsed + idlePauseMin + t.rng.Float64()*(idlePauseMax-idlePauseMin)
		t.idleSpeedY = t.cfg.IdleSpeedMin + t.rng.Float64()*(t.cfg.IdleSpeedMax-t.cfg.IdleSpeedMin)
	}

	t.servoX = easeInOut(t.servoX, t.idleTargetX, t.idleSpeedX)
	t.servoY = easeInOut(t.servoY, t.idleTargetY, t.idleSpeedY)
}

func (t *Tracker) clamp(v float64) float64 {
	return math.Max(float64(t.cfg.ServoMin), math.Min(float64(t.cfg.ServoMax), v))
}

func smoothStep(current, target, factor float64) float64 {
	return current + (target-current)*factor
}

// easeInOut approaches the target on a cosine curve: slow at the ends of
// the move, quicker through the middle.
func easeInOut(current, target, tt float64) float64 {
	tt = math.Max(0, math.Min(1, tt))
	eased := (1 - math.Cos(tt*math.Pi)) / 2
	return current + (target-current)*eased
}

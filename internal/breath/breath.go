// Package breath implements mirra's breathing state machine: a mood-driven
// oscillator with breath-hold pauses at full inhale and exhale, short-lived
// breathing modes, and eased servo output.
package breath

import (
	"math"
	"math/rand"
	"time"
)

// Mode is a short-lived breathing regime. Exactly one mode is active at a
// time; transitions only happen once the current mode's dwell expires.
type Mode string

const (
	ModeBirthWake Mode = "birth_wake" // startup flutter, entered once
	ModeNormal    Mode = "normal"     // baseline breathing
	ModeFastBurst Mode = "fast_burst" // brief agitated panting
	ModeSlowSigh  Mode = "slow_sigh"  // long deep sighing
)

// Direction records which extreme of the breath cycle was reached last,
// so a single crest produces a single pause.
type Direction int

const (
	DirectionNone Direction = iota
	DirectionUp             // full inhale
	DirectionDown           // full exhale
)

// Mode transition probabilities and dwell bands.
const (
	fastBurstChance  = 0.20
	slowSighChance   = 0.05
	fastBurstMoodMin = 0.7 // |mood| required for a fast burst
	dwellMin         = 2.0 // seconds
	dwellMax         = 6.0
	birthWakeDwell   = 6.0

	speedSmoothing = 0.15 // single-pole low-pass on cycle speed
	crestThreshold = 0.98 // sin(phase) level that triggers a breath hold
	moodOffsetGain = 0.2  // asymmetric inhale/exhale bias per unit mood
)

// Config bounds the machine's output and pacing. Zero values are not
// usable; callers validate upstream and pass a complete config.
type Config struct {
	LungMin       int     // actuation range lower bound
	LungMax       int     // actuation range upper bound
	PauseDuration float64 // base breath-hold seconds
	EasingFactor  float64 // output smoothing coefficient, (0,1]
	MinLungSpeed  float64 // fastest cycle in seconds per breath
	MaxLungSpeed  float64 // slowest cycle in seconds per breath
}

// State is the breathing machine. It is created once at startup and
// mutated only by Advance; it must not be shared across goroutines.
type State struct {
	cfg Config
	rng *rand.Rand

	phaseAngle    float64 // radians, advances monotonically while unpaused
	speed         float64 // smoothed seconds per cycle
	mode          Mode
	modeExpiry    float64 // elapsed-seconds timestamp
	paused        bool
	pauseStarted  float64 // elapsed-seconds timestamp
	lastDirection Direction
	easedPosition float64

	elapsed   float64 // accumulated delta seconds since creation
	birthDone bool    // the birth-wake window runs exactly once
}

// New creates a breathing state in the birth-wake mode with the lungs at
// mid-range.
func New(cfg Config) *State {
	return NewWithRand(cfg, rand.New(rand.NewSource(time.Now().UnixNano())))
}

// NewWithRand is New with an injectable random source, used by tests to
// force deterministic mode transitions.
func NewWithRand(cfg Config, rng *rand.Rand) *State {
	return &State{
		cfg:           cfg,
		rng:           rng,
		speed:         4.0,
		mode:          ModeBirthWake,
		modeExpiry:    birthWakeDwell,
		lastDirection: DirectionNone,
		easedPosition: 90,
	}
}

// Mode returns the currently active breathing mode.
func (s *State) Mode() Mode { return s.mode }

// Paused reports whether the breath is currently held.
func (s *State) Paused() bool { return s.paused }

// Phase returns the current phase angle in radians.
func (s *State) Phase() float64 { return s.phaseAngle }

// Speed returns the smoothed cycle duration in seconds.
func (s *State) Speed() float64 { return s.speed }

// Position returns the eased output without advancing the machine.
func (s *State) Position() int { return s.clampPosition(math.Round(s.easedPosition)) }

// Advance moves the breathing machine forward by delta seconds under the
// given mood and returns the next servo position. mood outside [-1,1] is
// clamped; a negative delta is treated as zero (no phase advance, easing
// still applied). Advance never fails.
func (s *State) Advance(mood float64, personPresent bool, delta float64) int {
	mood = clamp(mood, -1, 1)
	if delta < 0 {
		delta = 0
	}
	s.elapsed += delta

	// Lower mood breathes slower: map mood to [0,1] and stretch the cycle.
	moodClamped := (mood + 1) / 2
	baseSpeed := s.cfg.MinLungSpeed + (s.cfg.MaxLungSpeed-s.cfg.MinLungSpeed)*(1-moodClamped)

	s.maybeTransition(mood)

	targetSpeed := s.targetSpeed(baseSpeed)

	// The phase advance below uses the speed from before this smoothing
	// step, so a mode's new pace lands on the next tick rather than
	// jumping mid-cycle.
	effectiveSpeed := s.speed
	s.speed = s.speed*(1-speedSmoothing) + targetSpeed*speedSmoothing

	angularSpeed := 2 * math.Pi / effectiveSpeed

	s.advancePhase(angularSpeed, delta, moodClamped)

	// Amplitude swells as mood drops; the offset leans the waveform
	// toward inhale or exhale with the sign of the mood.
	amplitude := (1 + 0.8*(1-moodClamped)) * s.modeAmplitude()
	offset := moodOffsetGain * mood
	rawLung := clamp((math.Sin(s.phaseAngle+offset)*amplitude+1)/2, 0, 1)

	targetPosition := rawLung*float64(s.cfg.LungMax-s.cfg.LungMin) + float64(s.cfg.LungMin)
	s.easedPosition = s.easedPosition*(1-s.cfg.EasingFactor) + targetPosition*s.cfg.EasingFactor

	return s.clampPosition(math.Round(s.easedPosition))
}

// maybeTransition rolls the next mode once the current dwell has expired.
func (s *State) maybeTransition(mood float64) {
	if s.elapsed <= s.modeExpiry {
		return
	}

	switch {
	case s.mode == ModeBirthWake && !s.birthDone:
		// Waking up ends deterministically in normal breathing.
		s.birthDone = true
		s.setMode(ModeNormal)
	case s.rng.Float64() < fastBurstChance && math.Abs(mood) > fastBurstMoodMin:
		s.setMode(ModeFastBurst)
	case s.rng.Float64() < slowSighChance:
		s.setMode(ModeSlowSigh)
	default:
		s.setMode(ModeNormal)
	}
}

func (s *State) setMode(mode Mode) {
	s.mode = mode
	s.modeExpiry = s.elapsed + dwellMin + s.rng.Float64()*(dwellMax-dwellMin)
}

// targetSpeed applies the active mode's pace to the mood-derived base speed.
func (s *State) targetSpeed(baseSpeed float64) float64 {
	switch s.mode {
	case ModeBirthWake:
		return 0.4
	case ModeFastBurst:
		return math.Max(baseSpeed*0.25, 0.5)
	case ModeSlowSigh:
		return baseSpeed * 2.2
	default:
		return baseSpeed
	}
}

// advancePhase moves the oscillator, holding the breath at each crest and
// trough. The hold lasts longer when mood is low and the mode is calm.
func (s *State) advancePhase(angularSpeed, delta, moodClamped float64) {
	if s.paused {
		dynamicPause := s.cfg.PauseDuration * (1.5 - moodClamped) * s.modePause()
		if s.elapsed-s.pauseStarted > dynamicPause {
			s.paused = false
		}
		return
	}

	breathPhase := math.Sin(s.phaseAngle)
	switch {
	case breathPhase > crestThreshold && s.lastDirection != DirectionUp:
		s.paused = true
		s.pauseStarted = s.elapsed
		s.lastDirection = DirectionUp
	case breathPhase < -crestThreshold && s.lastDirection != DirectionDown:
		s.paused = true
		s.pauseStarted = s.elapsed
		s.lastDirection = DirectionDown
	default:
		s.phaseAngle += angularSpeed * delta
	}
}

func (s *State) modePause() float64 {
	switch s.mode {
	case ModeFastBurst:
		return 0.2
	case ModeSlowSigh:
		return 1.6
	case ModeBirthWake:
		return 0.1
	default:
		return 1.0
	}
}

func (s *State) modeAmplitude() float64 {
	switch s.mode {
	case ModeFastBurst:
		return 1.3
	case ModeSlowSigh:
		return 1.4
	case ModeBirthWake:
		return 0.4
	default:
		return 1.0
	}
}

func (s *State) clampPosition(pos float64) int {
	return int(clamp(pos, float64(s.cfg.LungMin), float64(s.cfg.LungMax)))
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

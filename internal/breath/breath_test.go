package breath

import (
	"math"
	"math/rand"
	"testing"
)

func testConfig() Config {
	return Config{
		LungMin:       60,
		LungMax:       110,
		PauseDuration: 3.0,
		EasingFactor:  0.09,
		MinLungSpeed:  2.0,
		MaxLungSpeed:  8.0,
	}
}

func newTestState(seed int64) *State {
	return NewWithRand(testConfig(), rand.New(rand.NewSource(seed)))
}

// skipBirthWake advances past the startup window so tests start in
// normal breathing.
func skipBirthWake(s *State) {
	for s.Mode() == ModeBirthWake {
		s.Advance(0, false, 0.1)
	}
}

func TestAdvance_PositionAlwaysInRange(t *testing.T) {
	moods := []float64{-1, -0.7, -0.3, 0, 0.3, 0.7, 1, -5, 5} // includes out-of-range inputs
	deltas := []float64{0, 0.01, 0.04, 0.2, 1.5}

	for _, mood := range moods {
		s := newTestState(1)
		for i := 0; i < 500; i++ {
			delta := deltas[i%len(deltas)]
			pos := s.Advance(mood, i%2 == 0, delta)
			if pos < 60 || pos > 110 {
				t.Fatalf("mood=%v tick=%d: position %d outside [60,110]", mood, i, pos)
			}
		}
	}
}

func TestAdvance_NegativeDeltaTreatedAsZero(t *testing.T) {
	s := newTestState(2)
	s.Advance(0, false, 0.04)
	phase := s.Phase()

	s.Advance(0, false, -1.0)

	if s.Phase() != phase {
		t.Errorf("phase advanced on negative delta: %v -> %v", phase, s.Phase())
	}
}

func TestAdvance_ZeroDeltaFreezesPhaseButEases(t *testing.T) {
	s := newTestState(3)
	// Put some distance between eased output and target first.
	s.Advance(1, false, 0.5)
	phase := s.Phase()

	prev := math.Abs(s.easedPosition - s.currentTarget(1))
	for i := 0; i < 200; i++ {
		s.Advance(1, false, 0)
		if s.Phase() != phase {
			t.Fatalf("phase moved with delta=0 at tick %d", i)
		}
		dist := math.Abs(s.easedPosition - s.currentTarget(1))
		if dist > prev+1e-9 {
			t.Fatalf("eased position diverged from target at tick %d: %v > %v", i, dist, prev)
		}
		prev = dist
	}
	if prev > 0.5 {
		t.Errorf("eased position did not converge, still %v away", prev)
	}
}

// currentTarget recomputes the raw target position for the frozen phase,
// mirroring the tail of Advance.
func (s *State) currentTarget(mood float64) float64 {
	moodClamped := (mood + 1) / 2
	amplitude := (1 + 0.8*(1-moodClamped)) * s.modeAmplitude()
	offset := moodOffsetGain * mood
	raw := clamp((math.Sin(s.phaseAngle+offset)*amplitude+1)/2, 0, 1)
	return raw*float64(s.cfg.LungMax-s.cfg.LungMin) + float64(s.cfg.LungMin)
}

func TestBirthWake_EndsInNormalExactlyOnce(t *testing.T) {
	s := newTestState(4)

	if s.Mode() != ModeBirthWake {
		t.Fatalf("expected birth_wake at start, got %s", s.Mode())
	}

	// Mode must hold for the whole startup window.
	elapsed := 0.0
	for elapsed+0.1 <= birthWakeDwell {
		s.Advance(0, false, 0.1)
		elapsed += 0.1
		if s.Mode() != ModeBirthWake {
			t.Fatalf("mode left birth_wake at %.1fs, before expiry", elapsed)
		}
	}

	// First tick past the window flips to normal, deterministically.
	s.Advance(0, false, 0.2)
	if s.Mode() != ModeNormal {
		t.Fatalf("expected normal after wake window, got %s", s.Mode())
	}

	// Birth-wake never comes back.
	for i := 0; i < 5000; i++ {
		s.Advance(0.9, false, 0.05)
		if s.Mode() == ModeBirthWake {
			t.Fatal("re-entered birth_wake after startup")
		}
	}
}

func TestMode_NeverChangesBeforeExpiry(t *testing.T) {
	s := newTestState(5)
	skipBirthWake(s)

	for i := 0; i < 20000; i++ {
		before, expiry := s.Mode(), s.modeExpiry
		s.Advance(0.9, false, 0.02)
		if s.Mode() != before && s.elapsed <= expiry {
			t.Fatalf("mode changed from %s to %s at %.2fs, before expiry %.2fs",
				before, s.Mode(), s.elapsed, expiry)
		}
	}
}

func TestPause_HeldAtCrestUntilDynamicPauseElapses(t *testing.T) {
	s := newTestState(6)
	skipBirthWake(s)

	// Drive until the machine pauses at a crest.
	for i := 0; i < 20000 && !s.Paused(); i++ {
		s.Advance(0, false, 0.02)
	}
	if !s.Paused() {
		t.Fatal("never reached a breath hold")
	}

	phase := s.Phase()

	// Repeated calls with delta=0 never release the hold early.
	for i := 0; i < 100; i++ {
		s.Advance(0, false, 0)
		if !s.Paused() {
			t.Fatalf("pause released with no elapsed time at call %d", i)
		}
	}

	// Phase must not advance while paused.
	s.Advance(0, false, 0.02)
	if s.Phase() != phase {
		t.Error("phase advanced during breath hold")
	}

	// The hold does end once enough time accumulates.
	for i := 0; i < 2000 && s.Paused(); i++ {
		s.Advance(0, false, 0.05)
	}
	if s.Paused() {
		t.Error("breath hold never released")
	}
}

func TestPause_SingleCrestSingleHold(t *testing.T) {
	s := newTestState(7)
	skipBirthWake(s)

	holds := 0
	wasPaused := false
	lastDir := DirectionNone
	for i := 0; i < 50000; i++ {
		s.Advance(0, false, 0.02)
		if s.Paused() && !wasPaused {
			holds++
			if s.lastDirection == lastDir {
				t.Fatalf("two consecutive holds in the same direction at tick %d", i)
			}
			lastDir = s.lastDirection
		}
		wasPaused = s.Paused()
	}
	if holds < 2 {
		t.Fatalf("expected alternating inhale/exhale holds, saw %d", holds)
	}
}

// Euphoric breathing must oscillate faster and, over a short window,
// wider than despondent breathing: low mood spends most of the run stuck
// in long breath holds.
func TestAdvance_MoodShapesAmplitudeAndPeriod(t *testing.T) {
	run := func(mood float64, ticks int) (spread float64, crossings int) {
		s := NewWithRand(testConfig(), rand.New(rand.NewSource(8)))
		s.mode = ModeNormal // freshly initialized normal-mode state
		s.birthDone = true
		s.modeExpiry = math.Inf(1) // hold the mode so only mood differs

		lo, hi := math.Inf(1), math.Inf(-1)
		mid := 85.0
		prevAbove := false
		for i := 0; i < ticks; i++ {
			pos := float64(s.Advance(mood, false, 0.03))
			lo = math.Min(lo, pos)
			hi = math.Max(hi, pos)
			above := pos > mid
			if i > 0 && above != prevAbove {
				crossings++
			}
			prevAbove = above
		}
		return hi - lo, crossings
	}

	ampHigh, _ := run(1.0, 200)
	ampLow, _ := run(-1.0, 200)
	if ampHigh <= ampLow {
		t.Errorf("euphoric spread %.1f not above despondent spread %.1f", ampHigh, ampLow)
	}

	_, crossHigh := run(1.0, 1000)
	_, crossLow := run(-1.0, 1000)
	if crossHigh <= crossLow {
		t.Errorf("euphoric breathing not faster: %d crossings vs %d", crossHigh, crossLow)
	}
}

func TestTargetSpeed_ModeMultipliers(t *testing.T) {
	s := newTestState(9)

	cases := []struct {
		mode Mode
		base float64
		want float64
	}{
		{ModeBirthWake, 4.0, 0.4},
		{ModeFastBurst, 4.0, 1.0},  // 4.0 * 0.25
		{ModeFastBurst, 1.0, 0.5},  // floored
		{ModeSlowSigh, 4.0, 8.8},   // 4.0 * 2.2
		{ModeNormal, 4.0, 4.0},
	}
	for _, tc := range cases {
		s.mode = tc.mode
		got := s.targetSpeed(tc.base)
		if math.Abs(got-tc.want) > 1e-9 {
			t.Errorf("%s base %.2f: got %.3f, want %.3f", tc.mode, tc.base, got, tc.want)
		}
	}
}

func TestAdvance_SpeedSmoothingLagsOneTick(t *testing.T) {
	// Fresh state: phase 0, smoothed speed 4.0, far from any crest, so
	// both ticks advance the phase deterministically.
	s := newTestState(10)

	s.Advance(0, false, 0.02)
	speedBefore := s.Speed()
	phaseBefore := s.Phase()
	s.Advance(0, false, 0.02)

	// The second tick's phase step must come from the speed as it stood
	// before that tick's smoothing, not after.
	gotStep := s.Phase() - phaseBefore
	wantStep := 2 * math.Pi / speedBefore * 0.02
	if math.Abs(gotStep-wantStep) > 1e-9 {
		t.Errorf("phase step %.9f, want %.9f from pre-smoothing speed", gotStep, wantStep)
	}
}

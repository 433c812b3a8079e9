package creature

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alex/mirra/internal/config"
	"github.com/alex/mirra/internal/gaze"
	"github.com/alex/mirra/internal/mood"
	"github.com/alex/mirra/internal/store"
)

type fakeServos struct {
	mu   sync.Mutex
	lung []int
	pan  []int
	tilt []int
}

func (f *fakeServos) SetPan(angle int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pan = append(f.pan, angle)
	return nil
}

func (f *fakeServos) SetTilt(angle int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tilt = append(f.tilt, angle)
	return nil
}

func (f *fakeServos) SetLungPosition(angle int, force bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lung = append(f.lung, angle)
	return nil
}

type fakeFaces struct {
	box *gaze.Box
}

func (f *fakeFaces) LatestFace() (*gaze.Box, int, int) {
	return f.box, 320, 240
}

type fakeSink struct {
	mu     sync.Mutex
	events []string
}

func (f *fakeSink) AppendEvent(runID, eventType string, payload any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, eventType)
	return nil
}

func (f *fakeSink) types() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.events...)
}

func newTestCreature(t *testing.T, opts Options) *Creature {
	t.Helper()
	if opts.Config.Loop.TickHz == 0 {
		opts.Config = config.Default()
	}
	if opts.Signal == nil {
		opts.Signal = mood.NewSignal()
	}
	if opts.RunID == "" {
		opts.RunID = "test1234"
	}
	return New(opts)
}

func TestTick_DrivesServos(t *testing.T) {
	servos := &fakeServos{}
	c := newTestCreature(t, Options{Servos: servos})

	for i := 0; i < 50; i++ {
		c.tick(0.04)
	}

	servos.mu.Lock()
	defer servos.mu.Unlock()
	if len(servos.lung) != 50 || len(servos.pan) != 50 || len(servos.tilt) != 50 {
		t.Fatalf("servo writes = %d/%d/%d, want 50 each",
			len(servos.lung), len(servos.pan), len(servos.tilt))
	}
	cfg := config.Default()
	for _, angle := range servos.lung {
		if angle < cfg.Breath.LungMin || angle > cfg.Breath.LungMax {
			t.Fatalf("lung angle %d outside [%d, %d]",
				angle, cfg.Breath.LungMin, cfg.Breath.LungMax)
		}
	}
}

func TestTick_NilServosIsFine(t *testing.T) {
	c := newTestCreature(t, Options{})
	for i := 0; i < 10; i++ {
		c.tick(0.04)
	}
}

func TestStatus_ReflectsTickState(t *testing.T) {
	signal := mood.NewSignal()
	signal.Publish(mood.Sample{Value: 0.5, At: time.Now()})
	faces := &fakeFaces{box: &gaze.Box{X1: 100, Y1: 80, X2: 160, Y2: 140}}
	c := newTestCreature(t, Options{Signal: signal, Faces: faces})

	c.tick(0.04)

	status := c.Status()
	if status.RunID != "test1234" {
		t.Errorf("RunID = %q", status.RunID)
	}
	if status.Mood != 0.5 {
		t.Errorf("Mood = %v, want 0.5", status.Mood)
	}
	if status.BreathMode != "birth_wake" {
		t.Errorf("BreathMode = %q, want birth_wake on first ticks", status.BreathMode)
	}
	if !status.PersonSeen {
		t.Error("PersonSeen = false with a face in frame")
	}
	if status.LungPosition == 0 {
		t.Error("LungPosition never set")
	}
}

func TestRecordDrawingAndOnImage_LogEvents(t *testing.T) {
	sink := &fakeSink{}
	c := newTestCreature(t, Options{Events: sink})

	c.RecordDrawing("a sketch of a chair", true, "inspired")
	c.OnImage("/tmp/out/impostor-001.png")

	got := sink.types()
	if len(got) != 2 || got[0] != store.EventDrawing || got[1] != store.EventImageDetected {
		t.Errorf("events = %v", got)
	}
	if c.Status().LastPrompt != "a sketch of a chair" {
		t.Errorf("LastPrompt = %q", c.Status().LastPrompt)
	}
}

type stubFrames struct {
	frame []byte
}

func (s stubFrames) Snapshot() ([]byte, bool) {
	return s.frame, s.frame != nil
}

func TestSaveSnapshot_WritesTriggeringFrame(t *testing.T) {
	cfg := config.Default()
	cfg.Mood.SnapshotDir = t.TempDir()
	c := newTestCreature(t, Options{
		Config: cfg,
		Frames: stubFrames{frame: []byte{0xFF, 0xD8, 0xFF}},
	})

	c.saveSnapshot()

	dir := filepath.Join(cfg.Mood.SnapshotDir, "test1234-images")
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read snapshot dir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("got %d snapshots, want 1", len(entries))
	}
	if !strings.HasPrefix(entries[0].Name(), "draw_input_") {
		t.Errorf("snapshot name = %q", entries[0].Name())
	}
}

func TestSaveSnapshot_NoFrameNoFile(t *testing.T) {
	cfg := config.Default()
	cfg.Mood.SnapshotDir = t.TempDir()
	c := newTestCreature(t, Options{Config: cfg, Frames: stubFrames{}})

	c.saveSnapshot()

	entries, _ := os.ReadDir(cfg.Mood.SnapshotDir)
	if len(entries) != 0 {
		t.Errorf("expected empty snapshot dir, got %d entries", len(entries))
	}
}

func TestRun_StopsOnCancel(t *testing.T) {
	cfg := config.Default()
	cfg.Mood.Interval = config.Duration(10 * time.Millisecond)
	cfg.Decision.Interval = config.Duration(10 * time.Millisecond)

	signal := mood.NewSignal()
	sim := SimulatedSource{Sim: mood.NewSimulator(signal, nil)}
	c := newTestCreature(t, Options{Config: cfg, Signal: signal, Moods: sim})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run returned %v after cancel, want nil", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop after cancel")
	}
}

func TestRun_MoodLoopPublishes(t *testing.T) {
	cfg := config.Default()
	cfg.Mood.Interval = config.Duration(10 * time.Millisecond)
	cfg.Decision.Interval = config.Duration(time.Hour)

	signal := mood.NewSignal()
	sim := SimulatedSource{Sim: mood.NewSimulator(signal, nil)}
	sink := &fakeSink{}
	c := newTestCreature(t, Options{Config: cfg, Signal: signal, Moods: sim, Events: sink})

	ctx, cancel := context.WithCancel(context.Background())
	go c.Run(ctx)
	time.Sleep(150 * time.Millisecond)
	cancel()

	var moods int
	for _, e := range sink.types() {
		if e == store.EventMood {
			moods++
		}
	}
	if moods == 0 {
		t.Error("mood loop never logged an evaluation")
	}
}

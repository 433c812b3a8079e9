// Package config holds mirra's configuration: typed defaults, optional
// YAML file overrides, and startup validation. All values are read once
// at startup; nothing hot-reloads.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that unmarshals from "30s" style YAML
// strings. Bare numbers are read as seconds.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err == nil {
		parsed, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", s, err)
		}
		*d = Duration(parsed)
		return nil
	}
	var secs float64
	if err := value.Decode(&secs); err == nil {
		*d = Duration(time.Duration(secs * float64(time.Second)))
		return nil
	}
	return fmt.Errorf("invalid duration value")
}

// Std returns the plain time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config is the full configuration tree.
type Config struct {
	Loop     LoopConfig     `yaml:"loop"`
	Breath   BreathConfig   `yaml:"breath"`
	Gaze     GazeConfig     `yaml:"gaze"`
	Servo    ServoConfig    `yaml:"servo"`
	Mood     MoodConfig     `yaml:"mood"`
	Decision DecisionConfig `yaml:"decision"`
	Drawing  DrawingConfig  `yaml:"drawing"`
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
}

// LoopConfig controls the main tick loop.
type LoopConfig struct {
	TickHz int `yaml:"tick_hz"` // breathing tick rate
}

// BreathConfig bounds the breathing state machine.
type BreathConfig struct {
	LungMin       int     `yaml:"lung_min"`       // actuation range lower bound (degrees)
	LungMax       int     `yaml:"lung_max"`       // actuation range upper bound (degrees)
	PauseDuration float64 `yaml:"pause_duration"` // base breath-hold seconds
	EasingFactor  float64 `yaml:"easing_factor"`  // output smoothing, (0,1]
	MinLungSpeed  float64 `yaml:"min_lung_speed"` // fastest cycle, seconds per breath
	MaxLungSpeed  float64 `yaml:"max_lung_speed"` // slowest cycle, seconds per breath
}

// GazeConfig controls pan/tilt face tracking and idle wandering.
type GazeConfig struct {
	ServoMin     int     `yaml:"servo_min"`
	ServoMax     int     `yaml:"servo_max"`
	DeadZone     int     `yaml:"dead_zone"` // pixels of face offset to ignore
	FlipX        bool    `yaml:"flip_x"`
	FlipY        bool    `yaml:"flip_y"`
	IdleCenterX  int     `yaml:"idle_center_x"`
	IdleCenterY  int     `yaml:"idle_center_y"`
	IdleJitter   int     `yaml:"idle_jitter"` // degrees of idle wander around center
	IdleSpeedMin float64 `yaml:"idle_speed_min"`
	IdleSpeedMax float64 `yaml:"idle_speed_max"`
}

// ServoConfig describes the serial link to the actuation board.
type ServoConfig struct {
	Enabled bool   `yaml:"enabled"`
	Port    string `yaml:"port"`
	Baud    int    `yaml:"baud"`
}

// MoodConfig configures the mood-scoring pipeline.
type MoodConfig struct {
	OllamaURL   string   `yaml:"ollama_url"`
	Model       string   `yaml:"model"`
	Interval    Duration `yaml:"interval"`     // time between mood evaluations
	Timeout     Duration `yaml:"timeout"`      // per-request ceiling
	SnapshotDir string   `yaml:"snapshot_dir"` // where mood snapshots land
}

// DecisionConfig tunes the novelty/boredom action policy.
type DecisionConfig struct {
	NoveltyThreshold float64  `yaml:"novelty_threshold"` // mood deviation that counts as novel
	BoredomThreshold float64  `yaml:"boredom_threshold"` // accumulated monotonous seconds
	Cooldown         Duration `yaml:"cooldown"`          // hard floor between actions
	Interval         Duration `yaml:"interval"`          // evaluation cadence
	WindowSize       int      `yaml:"window_size"`       // recent mood samples kept
}

// DrawingConfig configures the ComfyUI drawing pipeline.
type DrawingConfig struct {
	ComfyURL     string `yaml:"comfy_url"`
	WorkflowFile string `yaml:"workflow_file"`
	PromptNode   string `yaml:"prompt_node"`   // workflow node whose text gets replaced
	OutputFolder string `yaml:"output_folder"` // watched for finished renders
}

// ServerConfig configures the status HTTP API.
type ServerConfig struct {
	Bind string `yaml:"bind"`
	Port int    `yaml:"port"`
}

// DatabaseConfig locates the event log database.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// Default returns a Config with the stock creature tuning.
func Default() Config {
	return Config{
		Loop: LoopConfig{
			TickHz: 25,
		},
		Breath: BreathConfig{
			LungMin:       60,
			LungMax:       110,
			PauseDuration: 3.0,
			EasingFactor:  0.09,
			MinLungSpeed:  2.0,
			MaxLungSpeed:  8.0,
		},
		Gaze: GazeConfig{
			ServoMin:     45,
			ServoMax:     135,
			DeadZone:     30,
			FlipY:        true,
			IdleCenterX:  90,
			IdleCenterY:  90,
			IdleJitter:   40,
			IdleSpeedMin: 0.15,
			IdleSpeedMax: 0.30,
		},
		Servo: ServoConfig{
			Enabled: false,
			Port:    "/dev/ttyUSB0",
			Baud:    9600,
		},
		Mood: MoodConfig{
			OllamaURL:   "http://localhost:11434",
			Model:       "llava",
			Interval:    Duration(10 * time.Second),
			Timeout:     Duration(60 * time.Second),
			SnapshotDir: "event_log",
		},
		Decision: DecisionConfig{
			NoveltyThreshold: 0.65,
			BoredomThreshold: 180,
			Cooldown:         Duration(3 * time.Minute),
			Interval:         Duration(30 * time.Second),
			WindowSize:       16,
		},
		Drawing: DrawingConfig{
			ComfyURL:     "http://localhost:8188",
			WorkflowFile: "",
			PromptNode:   "6",
			OutputFolder: "comfy_out",
		},
		Server: ServerConfig{
			Bind: "127.0.0.1",
			Port: 8787,
		},
		Database: DatabaseConfig{
			Path: "", // resolved at runtime via store.DefaultDBPath()
		},
	}
}

// Load reads a YAML config file over the defaults. An empty path returns
// bare defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		cfg.applyEnv()
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	cfg.applyEnv()
	return cfg, nil
}

// applyEnv lets deployment scripts point at services without editing
// the config file. Env always wins over the file.
func (c *Config) applyEnv() {
	if v := os.Getenv("MIRRA_OLLAMA_URL"); v != "" {
		c.Mood.OllamaURL = v
	}
	if v := os.Getenv("MIRRA_COMFY_URL"); v != "" {
		c.Drawing.ComfyURL = v
	}
	if v := os.Getenv("MIRRA_DB_PATH"); v != "" {
		c.Database.Path = v
	}
	if v := os.Getenv("MIRRA_SERVO_PORT"); v != "" {
		c.Servo.Port = v
	}
}

// Validate rejects configurations that would produce undefined per-tick
// behavior. Callers must treat any error as fatal before starting the loop.
func (c *Config) Validate() error {
	if c.Loop.TickHz <= 0 {
		return fmt.Errorf("loop.tick_hz must be positive, got %d", c.Loop.TickHz)
	}
	if c.Breath.LungMin >= c.Breath.LungMax {
		return fmt.Errorf("breath.lung_min (%d) must be below breath.lung_max (%d)",
			c.Breath.LungMin, c.Breath.LungMax)
	}
	if c.Breath.EasingFactor <= 0 || c.Breath.EasingFactor > 1 {
		return fmt.Errorf("breath.easing_factor must be in (0,1], got %g", c.Breath.EasingFactor)
	}
	if c.Breath.MinLungSpeed <= 0 || c.Breath.MaxLungSpeed <= 0 {
		return fmt.Errorf("breath speeds must be positive")
	}
	if c.Breath.MinLungSpeed >= c.Breath.MaxLungSpeed {
		return fmt.Errorf("breath.min_lung_speed (%g) must be below breath.max_lung_speed (%g)",
			c.Breath.MinLungSpeed, c.Breath.MaxLungSpeed)
	}
	if c.Breath.PauseDuration < 0 {
		return fmt.Errorf("breath.pause_duration must not be negative, got %g", c.Breath.PauseDuration)
	}
	if c.Gaze.ServoMin >= c.Gaze.ServoMax {
		return fmt.Errorf("gaze.servo_min (%d) must be below gaze.servo_max (%d)",
			c.Gaze.ServoMin, c.Gaze.ServoMax)
	}
	if c.Gaze.IdleJitter < 0 {
		return fmt.Errorf("gaze.idle_jitter must not be negative, got %d", c.Gaze.IdleJitter)
	}
	if c.Gaze.IdleSpeedMin <= 0 || c.Gaze.IdleSpeedMax <= 0 {
		return fmt.Errorf("gaze idle speeds must be positive")
	}
	if c.Gaze.IdleSpeedMin > c.Gaze.IdleSpeedMax {
		return fmt.Errorf("gaze.idle_speed_min (%g) must not exceed gaze.idle_speed_max (%g)",
			c.Gaze.IdleSpeedMin, c.Gaze.IdleSpeedMax)
	}
	if c.Mood.Interval <= 0 || c.Mood.Timeout <= 0 {
		return fmt.Errorf("mood cadence misconfigured")
	}
	if c.Decision.WindowSize <= 0 {
		return fmt.Errorf("decision.window_size must be positive, got %d", c.Decision.WindowSize)
	}
	if c.Decision.Cooldown < 0 || c.Decision.Interval <= 0 {
		return fmt.Errorf("decision cadence misconfigured")
	}
	if c.Decision.NoveltyThreshold <= 0 || c.Decision.BoredomThreshold <= 0 {
		return fmt.Errorf("decision thresholds must be positive")
	}
	return nil
}

// ListenAddr returns the bind:port address for the status server.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Bind, c.Server.Port)
}

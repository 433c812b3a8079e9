// Package servo drives the actuation board over a line-oriented serial
// protocol: PAN:<deg>, TILT:<deg>, LUNG:<deg>, one command per line.
// Repeated near-identical angles are debounced so the wire stays quiet
// while the creature holds still.
package servo

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
)

// angleThreshold is the minimum change in degrees worth re-sending.
const angleThreshold = 2

// Port is the serial transport. Implementations must be safe to call
// from a single goroutine; the Controller serializes access itself.
type Port interface {
	WriteLine(line string) error
	Close() error
}

// Controller debounces and writes servo commands. A nil Port is allowed
// and turns every send into a no-op, so the creature can run headless.
type Controller struct {
	mu       sync.Mutex
	port     Port
	lastSent map[string]int // channel key -> last angle written
}

// New creates a controller over the given port (which may be nil).
func New(port Port) *Controller {
	return &Controller{
		port:     port,
		lastSent: make(map[string]int),
	}
}

// SetPan points the pan servo at the given angle.
func (c *Controller) SetPan(angle int) error {
	return c.send("PAN", angle, false)
}

// SetTilt points the tilt servo at the given angle.
func (c *Controller) SetTilt(angle int) error {
	return c.send("TILT", angle, false)
}

// SetLungPosition moves the lung servo. force bypasses debouncing so the
// breathing loop can guarantee delivery of a held position.
func (c *Controller) SetLungPosition(angle int, force bool) error {
	return c.send("LUNG", angle, force)
}

func (c *Controller) send(key string, angle int, force bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.port == nil {
		return nil
	}

	if !force {
		if last, ok := c.lastSent[key]; ok && abs(last-angle) < angleThreshold {
			return nil
		}
	}

	if err := c.port.WriteLine(fmt.Sprintf("%s:%d", key, angle)); err != nil {
		return fmt.Errorf("write %s command: %w", key, err)
	}
	c.lastSent[key] = angle
	return nil
}

// Reset forgets the debounce history, so the next command on every
// channel goes out regardless of the last sent angle. Called after the
// board power-cycles and its servo positions can no longer be trusted.
func (c *Controller) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastSent = make(map[string]int)
}

// LastSent reports the last angle written for a channel, for telemetry.
func (c *Controller) LastSent(key string) (int, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.lastSent[key]
	return v, ok
}

// Close releases the underlying port.
func (c *Controller) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.port == nil {
		return nil
	}
	return c.port.Close()
}

// ParseCommand splits a wire line back into channel and angle. Useful for
// the simulator sink and for tests.
func ParseCommand(line string) (key string, angle int, err error) {
	parts := strings.SplitN(strings.TrimSpace(line), ":", 2)
	if len(parts) != 2 {
		return "", 0, fmt.Errorf("malformed command %q", line)
	}
	angle, err = strconv.Atoi(parts[1])
	if err != nil {
		return "", 0, fmt.Errorf("malformed angle in %q: %w", line, err)
	}
	return parts[0], angle, nil
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

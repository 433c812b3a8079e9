// Package watcher notices when the render backend drops a finished
// image into the output folder. ComfyUI gives no callback on
// completion, so watching the filesystem is how the creature learns a
// drawing is done.
package watcher

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// imageExts are the file types the render backend is known to emit.
var imageExts = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
}

// Monitor watches an output folder for newly written images.
type Monitor struct {
	watcher     *fsnotify.Watcher
	dir         string
	logger      *zap.Logger
	onImage     func(path string)
	debounceDur time.Duration

	mu       sync.Mutex
	pending  map[string]time.Time
	lastSeen string
	running  bool
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// NewMonitor creates a monitor for the given folder. onImage is called
// once per settled image file; it runs on the watcher goroutine, so
// keep it quick.
func NewMonitor(dir string, logger *zap.Logger, onImage func(path string)) (*Monitor, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Monitor{
		watcher:     watcher,
		dir:         dir,
		logger:      logger,
		onImage:     onImage,
		debounceDur: 500 * time.Millisecond,
		pending:     make(map[string]time.Time),
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
	}, nil
}

// Start begins watching. Non-blocking; the loop runs on a goroutine.
func (m *Monitor) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return nil
	}
	m.running = true
	m.mu.Unlock()

	if err := os.MkdirAll(m.dir, 0755); err != nil {
		m.logger.Warn("create output folder failed", zap.String("dir", m.dir), zap.Error(err))
	}
	if err := m.watcher.Add(m.dir); err != nil {
		m.logger.Warn("watch output folder failed", zap.String("dir", m.dir), zap.Error(err))
	} else {
		m.logger.Info("watching output folder", zap.String("dir", m.dir))
	}

	go m.run(ctx)
	return nil
}

// Stop halts the watcher and waits for the loop to exit.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	m.mu.Unlock()

	close(m.stopCh)
	<-m.doneCh
	m.watcher.Close()
}

// LastImage returns the most recently settled image path.
func (m *Monitor) LastImage() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastSeen
}

func (m *Monitor) run(ctx context.Context) {
	defer close(m.doneCh)

	// Writes arrive in bursts while the backend streams the file out.
	// Collect them and only report a path once it has gone quiet.
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-m.stopCh:
			return

		case event, ok := <-m.watcher.Events:
			if !ok {
				return
			}
			m.handleEvent(event)

		case err, ok := <-m.watcher.Errors:
			if !ok {
				return
			}
			m.logger.Warn("watcher error", zap.Error(err))

		case <-ticker.C:
			m.flushSettled()
		}
	}
}

func (m *Monitor) handleEvent(event fsnotify.Event) {
	if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
		return
	}
	if !imageExts[strings.ToLower(filepath.Ext(event.Name))] {
		return
	}

	m.mu.Lock()
	m.pending[event.Name] = time.Now()
	m.mu.Unlock()
}

func (m *Monitor) flushSettled() {
	now := time.Now()

	m.mu.Lock()
	var settled []string
	for path, last := range m.pending {
		if now.Sub(last) >= m.debounceDur {
			settled = append(settled, path)
			delete(m.pending, path)
		}
	}
	if len(settled) > 0 {
		m.lastSeen = settled[len(settled)-1]
	}
	m.mu.Unlock()

	for _, path := range settled {
		m.logger.Info("new image detected", zap.String("path", path))
		if m.onImage != nil {
			m.onImage(path)
		}
	}
}

// Package vision receives camera frames and face detections from an
// external perception process. The creature does no image processing of
// its own; a sidecar (camera script, detector, whatever is on the box)
// pushes what it sees over HTTP and this package holds the latest state
// for the behavior loop to read.
package vision

import (
	"sync"
	"time"

	"github.com/alex/mirra/internal/gaze"
)

const (
	// frameStale bounds how old a frame may be and still feed a mood
	// evaluation. A dead camera should read as "no frame", not as a
	// frozen scene.
	frameStale = 30 * time.Second

	// faceStale bounds how long a detection keeps the gaze locked after
	// the sidecar goes quiet.
	faceStale = 1 * time.Second
)

// Detection is one face sighting in frame pixel coordinates.
type Detection struct {
	Box    gaze.Box
	FrameW int
	FrameH int
	At     time.Time
}

// Feed holds the most recent frame and face detection.
type Feed struct {
	mu        sync.Mutex
	frame     []byte
	frameAt   time.Time
	face      *Detection
	frameSeen int64
}

// NewFeed returns an empty feed.
func NewFeed() *Feed {
	return &Feed{}
}

// PushFrame stores a new camera frame (encoded JPEG or PNG bytes).
func (f *Feed) PushFrame(data []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.frame = data
	f.frameAt = time.Now()
	f.frameSeen++
}

// PushFace stores a face detection. Passing nil clears it, meaning the
// detector looked and found nobody.
func (f *Feed) PushFace(d *Detection) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if d != nil && d.At.IsZero() {
		d.At = time.Now()
	}
	f.face = d
}

// Snapshot returns the latest frame if it is fresh enough.
func (f *Feed) Snapshot() ([]byte, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.frame == nil || time.Since(f.frameAt) > frameStale {
		return nil, false
	}
	return f.frame, true
}

// LatestFace returns the current face box, or nil if none is fresh.
// Frame dimensions fall back to QVGA when no detector has reported yet.
func (f *Feed) LatestFace() (*gaze.Box, int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.face == nil || time.Since(f.face.At) > faceStale {
		return nil, 320, 240
	}
	box := f.face.Box
	return &box, f.face.FrameW, f.face.FrameH
}

// FrameCount reports how many frames have arrived, for the status API.
func (f *Feed) FrameCount() int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.frameSeen
}

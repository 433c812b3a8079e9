// Package server exposes a small HTTP API for peeking at the creature
// while it runs: current mood, breathing state, and the event log.
package server

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/alex/mirra/internal/gaze"
	"github.com/alex/mirra/internal/store"
	"github.com/alex/mirra/internal/vision"
)

// Status is a point-in-time snapshot of the creature's state.
type Status struct {
	RunID        string  `json:"run_id"`
	Mood         float64 `json:"mood"`
	BreathMode   string  `json:"breath_mode"`
	BreathPaused bool    `json:"breath_paused"`
	LungPosition int     `json:"lung_position"`
	PersonSeen   bool    `json:"person_seen"`
	LastCaption  string  `json:"last_caption,omitempty"`
	LastPrompt   string  `json:"last_prompt,omitempty"`
}

// StatusFunc supplies the current snapshot. The behavior loop owns the
// state; the server only reads through this function.
type StatusFunc func() Status

// Server is the creature's HTTP API: status and event log reads, plus
// the vision ingest endpoints the perception sidecar pushes into.
type Server struct {
	db      *store.DB
	status  StatusFunc
	feed    *vision.Feed
	router  chi.Router
	version string
	started time.Time
}

// New creates a server. db may be nil when persistence is disabled,
// feed may be nil when running without a camera.
func New(db *store.DB, status StatusFunc, feed *vision.Feed, version string) *Server {
	s := &Server{
		db:      db,
		status:  status,
		feed:    feed,
		version: version,
		started: time.Now(),
	}
	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)

	r.Get("/healthz", s.handleHealth)
	r.Route("/api", func(r chi.Router) {
		r.Get("/status", s.handleStatus)
		r.Get("/runs", s.handleRuns)
		r.Get("/runs/{runID}/events", s.handleEvents)

		r.Post("/vision/frame", s.handleVisionFrame)
		r.Post("/vision/face", s.handleVisionFace)
	})

	s.router = r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	dbOK := s.db != nil
	if s.db != nil && s.db.Ping() != nil {
		dbOK = false
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": s.version,
		"uptime":  time.Since(s.started).Seconds(),
		"db":      dbOK,
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if s.status == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "creature not running",
		})
		return
	}
	writeJSON(w, http.StatusOK, s.status())
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	if s.db == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "persistence disabled",
		})
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	runs, err := s.db.ListRuns(limit)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if s.db == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "persistence disabled",
		})
		return
	}

	runID := chi.URLParam(r, "runID")
	eventType := r.URL.Query().Get("type")
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	events, err := s.db.ListEvents(runID, eventType, limit)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	type eventJSON struct {
		ID        int64           `json:"id"`
		EventType string          `json:"event_type"`
		Payload   json.RawMessage `json:"payload"`
		CreatedAt int64           `json:"created_at"`
	}
	out := make([]eventJSON, 0, len(events))
	for _, e := range events {
		out = append(out, eventJSON{
			ID:        e.ID,
			EventType: e.EventType,
			Payload:   e.Payload,
			CreatedAt: e.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"run_id": runID, "events": out})
}

// maxFrameBytes caps a pushed camera frame. QVGA JPEGs are a few tens
// of kilobytes; anything near the cap is a misconfigured sidecar.
const maxFrameBytes = 4 << 20

func (s *Server) handleVisionFrame(w http.ResponseWriter, r *http.Request) {
	if s.feed == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "vision disabled",
		})
		return
	}

	data, err := io.ReadAll(io.LimitReader(r.Body, maxFrameBytes+1))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "read frame failed"})
		return
	}
	if len(data) == 0 || len(data) > maxFrameBytes {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "bad frame size"})
		return
	}

	s.feed.PushFrame(data)
	writeJSON(w, http.StatusAccepted, map[string]any{"frames": s.feed.FrameCount()})
}

func (s *Server) handleVisionFace(w http.ResponseWriter, r *http.Request) {
	if s.feed == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "vision disabled",
		})
		return
	}

	var req struct {
		Present bool `json:"present"`
		X1      int  `json:"x1"`
		Y1      int  `json:"y1"`
		X2      int  `json:"x2"`
		Y2      int  `json:"y2"`
		FrameW  int  `json:"frame_w"`
		FrameH  int  `json:"frame_h"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}

	if !req.Present {
		s.feed.PushFace(nil)
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "cleared"})
		return
	}
	if req.X2 <= req.X1 || req.Y2 <= req.Y1 || req.FrameW <= 0 || req.FrameH <= 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "bad face box"})
		return
	}

	s.feed.PushFace(&vision.Detection{
		Box:    gaze.Box{X1: req.X1, Y1: req.Y1, X2: req.X2, Y2: req.Y2},
		FrameW: req.FrameW,
		FrameH: req.FrameH,
	})
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

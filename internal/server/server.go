// Package server exposes the running pipeline over HTTP: health, the run
// journal, a live MJPEG view of the display and a results WebSocket.
package server

import (
	"encoding/json"
	"image"
	"net/http"
	"time"

	"github.com/ayusman/framepipe/internal/app"
	"github.com/ayusman/framepipe/internal/server/api"
	"github.com/ayusman/framepipe/internal/store"
)

// Pipeline reports pipeline progress.
type Pipeline interface {
	Snapshot() app.Snapshot
}

// FrameSource provides the image currently on the display.
type FrameSource interface {
	Latest() *image.RGBA
}

// Config holds the server configuration.
type Config struct {
	StaticDir string
	Store     *store.Store
	Pipeline  Pipeline
	Frames    FrameSource
	Results   *ResultsHub
	// StreamInterval paces the MJPEG stream; zero means DefaultStreamInterval.
	StreamInterval time.Duration
}

// Server represents the HTTP server for the pipeline.
type Server struct {
	config Config
	mux    *http.ServeMux
	start  time.Time
}

// New creates a new Server with the given configuration.
func New(config Config) *Server {
	s := &Server{
		config: config,
		mux:    http.NewServeMux(),
		start:  time.Now(),
	}
	s.setupRoutes()
	return s
}

// setupRoutes configures all HTTP routes for the server.
func (s *Server) setupRoutes() {
	s.mux.HandleFunc("/api/health", s.handleHealth)

	if s.config.Store != nil {
		runs := api.NewRunsHandler(s.config.Store)
		s.mux.Handle("/api/runs", runs)
		s.mux.Handle("/api/runs/", runs)
	}

	if s.config.Frames != nil {
		s.mux.Handle("/api/stream", NewStreamHandler(s.config.Frames, s.config.StreamInterval))
	}

	if s.config.Results != nil {
		s.mux.Handle("/api/results", s.config.Results)
	}

	if s.config.StaticDir != "" {
		fs := http.FileServer(http.Dir(s.config.StaticDir))
		s.mux.Handle("/", fs)
	}
}

// ServeHTTP implements the http.Handler interface.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

type healthResponse struct {
	Status string  `json:"status"`
	Uptime string  `json:"uptime"`
	State  string  `json:"state,omitempty"`
	Frames uint64  `json:"frames"`
	FPS    float64 `json:"fps"`
	Error  string  `json:"error,omitempty"`
}

// handleHealth handles GET requests to /api/health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	response := healthResponse{
		Status: "ok",
		Uptime: time.Since(s.start).Round(time.Second).String(),
	}
	if s.config.Pipeline != nil {
		snap := s.config.Pipeline.Snapshot()
		response.State = snap.State.String()
		response.Frames = snap.Frames
		response.FPS = snap.FPS
		if snap.State == app.StateFault {
			response.Status = "fault"
			if snap.Err != nil {
				response.Error = snap.Err.Error()
			}
		}
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(response); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
		return
	}
}

// ListenAndServe starts the HTTP server on the given address.
func (s *Server) ListenAndServe(addr string) error {
	return http.ListenAndServe(addr, s)
}

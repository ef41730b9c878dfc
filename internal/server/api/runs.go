// Package api provides the JSON handlers for the run journal.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ayusman/framepipe/internal/store"
)

// RunsHandler serves runs and their results from the store.
type RunsHandler struct {
	store *store.Store
}

// NewRunsHandler creates a new RunsHandler with the given store.
func NewRunsHandler(s *store.Store) *RunsHandler {
	return &RunsHandler{store: s}
}

// ServeHTTP implements the http.Handler interface and routes requests to appropriate methods.
func (h *RunsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	// Expected paths: /api/runs, /api/runs/{id} or /api/runs/{id}/results
	path := strings.TrimPrefix(r.URL.Path, "/api/runs")
	path = strings.Trim(path, "/")

	if path == "" {
		h.list(w, r)
		return
	}

	id, rest, _ := strings.Cut(path, "/")
	switch rest {
	case "":
		h.get(w, r, id)
	case "results":
		h.results(w, r, id)
	default:
		writeError(w, http.StatusNotFound, "Not found")
	}
}

type runResponse struct {
	ID        string `json:"id"`
	Profile   string `json:"profile"`
	CacheMode string `json:"cache_mode"`
	PixelPath string `json:"pixel_path"`
	StartedAt string `json:"started_at"`
	StoppedAt string `json:"stopped_at,omitempty"`
	Frames    int64  `json:"frames"`
	Fault     string `json:"fault,omitempty"`
}

type listRunsResponse struct {
	Runs []runResponse `json:"runs"`
}

type resultsResponse struct {
	RunID   string         `json:"run_id"`
	Total   int64          `json:"total"`
	Results []store.Result `json:"results"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// toResponse converts a store.Run to a runResponse.
func toResponse(run *store.Run) runResponse {
	resp := runResponse{
		ID:        run.ID,
		Profile:   run.Profile,
		CacheMode: run.CacheMode,
		PixelPath: run.PixelPath,
		StartedAt: run.StartedAt.Format(time.RFC3339),
		Frames:    run.Frames,
		Fault:     run.Fault,
	}
	if run.StoppedAt != nil {
		resp.StoppedAt = run.StoppedAt.Format(time.RFC3339)
	}
	return resp
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// list handles GET /api/runs.
func (h *RunsHandler) list(w http.ResponseWriter, r *http.Request) {
	runs, err := h.store.Runs().List()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list runs")
		return
	}

	response := listRunsResponse{Runs: make([]runResponse, 0, len(runs))}
	for _, run := range runs {
		response.Runs = append(response.Runs, toResponse(run))
	}
	writeJSON(w, http.StatusOK, response)
}

// get handles GET /api/runs/{id}.
func (h *RunsHandler) get(w http.ResponseWriter, r *http.Request, id string) {
	run, err := h.store.Runs().GetByID(id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Run not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to get run")
		return
	}
	writeJSON(w, http.StatusOK, toResponse(run))
}

// results handles GET /api/runs/{id}/results?limit=N.
func (h *RunsHandler) results(w http.ResponseWriter, r *http.Request, id string) {
	if _, err := h.store.Runs().GetByID(id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Run not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to get run")
		return
	}

	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	results, err := h.store.Results().ListByRun(id, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list results")
		return
	}
	total, err := h.store.Results().Count(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to count results")
		return
	}
	if results == nil {
		results = []store.Result{}
	}
	writeJSON(w, http.StatusOK, resultsResponse{RunID: id, Total: total, Results: results})
}

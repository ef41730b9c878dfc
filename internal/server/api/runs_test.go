package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/ayusman/framepipe/internal/store"
)

// newTestStore creates a new Store with a temporary database for testing.
func newTestStore(t *testing.T) *store.Store {
	t.Helper()

	s, err := store.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() {
		s.Close()
	})
	return s
}

func seedRun(t *testing.T, s *store.Store, results int) *store.Run {
	t.Helper()

	run := &store.Run{Profile: "host-webcam", CacheMode: "non-cacheable", PixelPath: "software"}
	if err := s.Runs().Create(run); err != nil {
		t.Fatalf("failed to create run: %v", err)
	}
	var batch []store.Result
	for i := 1; i <= results; i++ {
		batch = append(batch, store.Result{RunID: run.ID, Seq: uint64(i), ClassIndex: 1, Label: "person", Score: 0.9})
	}
	if len(batch) > 0 {
		if err := s.Results().CreateBatch(batch); err != nil {
			t.Fatalf("failed to create results: %v", err)
		}
	}
	return run
}

func TestRunsHandler_List(t *testing.T) {
	s := newTestStore(t)
	run := seedRun(t, s, 0)
	if err := s.Runs().Finish(run.ID, 12, ""); err != nil {
		t.Fatalf("failed to finish run: %v", err)
	}
	handler := NewRunsHandler(s)

	req := httptest.NewRequest(http.MethodGet, "/api/runs", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("expected Content-Type application/json, got %s", ct)
	}

	var response listRunsResponse
	if err := json.NewDecoder(rec.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(response.Runs) != 1 {
		t.Fatalf("expected 1 run, got %d", len(response.Runs))
	}
	got := response.Runs[0]
	if got.ID != run.ID || got.Frames != 12 || got.StoppedAt == "" {
		t.Errorf("unexpected run %+v", got)
	}
}

func TestRunsHandler_Routes(t *testing.T) {
	s := newTestStore(t)
	run := seedRun(t, s, 5)
	handler := NewRunsHandler(s)

	tests := []struct {
		name   string
		method string
		path   string
		want   int
	}{
		{"get run", http.MethodGet, "/api/runs/" + run.ID, http.StatusOK},
		{"results", http.MethodGet, "/api/runs/" + run.ID + "/results", http.StatusOK},
		{"results with limit", http.MethodGet, "/api/runs/" + run.ID + "/results?limit=2", http.StatusOK},
		{"bad limit", http.MethodGet, "/api/runs/" + run.ID + "/results?limit=-1", http.StatusBadRequest},
		{"unknown run", http.MethodGet, "/api/runs/nope", http.StatusNotFound},
		{"unknown run results", http.MethodGet, "/api/runs/nope/results", http.StatusNotFound},
		{"unknown sub resource", http.MethodGet, "/api/runs/" + run.ID + "/frames", http.StatusNotFound},
		{"post", http.MethodPost, "/api/runs", http.StatusMethodNotAllowed},
		{"delete", http.MethodDelete, "/api/runs/" + run.ID, http.StatusMethodNotAllowed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, nil)
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			if rec.Code != tt.want {
				t.Errorf("%s %s: expected status %d, got %d", tt.method, tt.path, tt.want, rec.Code)
			}
		})
	}
}

func TestRunsHandler_Results(t *testing.T) {
	s := newTestStore(t)
	run := seedRun(t, s, 5)
	handler := NewRunsHandler(s)

	req := httptest.NewRequest(http.MethodGet, "/api/runs/"+run.ID+"/results?limit=2", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	var response resultsResponse
	if err := json.NewDecoder(rec.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if response.Total != 5 {
		t.Errorf("expected total 5, got %d", response.Total)
	}
	if len(response.Results) != 2 || response.Results[0].Seq != 4 || response.Results[1].Seq != 5 {
		t.Errorf("expected seq 4 and 5, got %+v", response.Results)
	}

	// A run without results returns an empty list, not null.
	empty := seedRun(t, s, 0)
	req = httptest.NewRequest(http.MethodGet, "/api/runs/"+empty.ID+"/results", nil)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	var raw map[string]json.RawMessage
	if err := json.NewDecoder(rec.Body).Decode(&raw); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if string(raw["results"]) != "[]" {
		t.Errorf("expected empty results array, got %s", raw["results"])
	}
}

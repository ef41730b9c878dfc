package store

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestRunRepository_CreateAndFinish(t *testing.T) {
	s := newTestStore(t)
	repo := s.Runs()

	run := &Run{Profile: "stm32h747i-disco", CacheMode: "write-back-write-allocate", PixelPath: "hardware"}
	if err := repo.Create(run); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if _, err := uuid.Parse(run.ID); err != nil {
		t.Errorf("Create() assigned ID %q, want a UUID: %v", run.ID, err)
	}

	got, err := repo.GetByID(run.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got.Profile != run.Profile || got.PixelPath != "hardware" || got.StoppedAt != nil {
		t.Errorf("GetByID() = %+v, want open run for %s", got, run.Profile)
	}

	if err := repo.Finish(run.ID, 42, "inference: npu timeout"); err != nil {
		t.Fatalf("Finish() error = %v", err)
	}
	got, err = repo.GetByID(run.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got.StoppedAt == nil || got.Frames != 42 || got.Fault != "inference: npu timeout" {
		t.Errorf("GetByID() after Finish = %+v", got)
	}
}

func TestRunRepository_NotFound(t *testing.T) {
	s := newTestStore(t)

	if _, err := s.Runs().GetByID("nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetByID() error = %v, want ErrNotFound", err)
	}
	if err := s.Runs().Finish("nope", 0, ""); !errors.Is(err, ErrNotFound) {
		t.Errorf("Finish() error = %v, want ErrNotFound", err)
	}
}

func TestRunRepository_ListNewestFirst(t *testing.T) {
	s := newTestStore(t)
	repo := s.Runs()

	base := time.Now().Add(-time.Hour)
	for i, profile := range []string{"a", "b", "c"} {
		run := &Run{Profile: profile, CacheMode: "non-cacheable", PixelPath: "software", StartedAt: base.Add(time.Duration(i) * time.Minute)}
		if err := repo.Create(run); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
	}

	runs, err := repo.List()
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(runs) != 3 {
		t.Fatalf("List() returned %d runs, want 3", len(runs))
	}
	for i, want := range []string{"c", "b", "a"} {
		if runs[i].Profile != want {
			t.Errorf("runs[%d].Profile = %q, want %q", i, runs[i].Profile, want)
		}
	}
}

func TestResultRepository_ListByRun(t *testing.T) {
	s := newTestStore(t)
	run := &Run{Profile: "host-webcam", CacheMode: "non-cacheable", PixelPath: "software"}
	if err := s.Runs().Create(run); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	var batch []Result
	for i := 1; i <= 10; i++ {
		batch = append(batch, Result{RunID: run.ID, Seq: uint64(i), ClassIndex: 1, Label: "person", Score: 0.9, InferenceMs: 12.5, FPS: 15})
	}
	if err := s.Results().CreateBatch(batch); err != nil {
		t.Fatalf("CreateBatch() error = %v", err)
	}

	tests := []struct {
		name      string
		limit     int
		wantFirst uint64
		wantLen   int
	}{
		{"default limit", 0, 1, 10},
		{"latest three", 3, 8, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.Results().ListByRun(run.ID, tt.limit)
			if err != nil {
				t.Fatalf("ListByRun() error = %v", err)
			}
			if len(got) != tt.wantLen || got[0].Seq != tt.wantFirst {
				t.Errorf("ListByRun() = %d results from seq %d, want %d from %d", len(got), got[0].Seq, tt.wantLen, tt.wantFirst)
			}
			if got[len(got)-1].Seq != 10 {
				t.Errorf("last seq = %d, want 10", got[len(got)-1].Seq)
			}
		})
	}

	n, err := s.Results().Count(run.ID)
	if err != nil || n != 10 {
		t.Errorf("Count() = %d, %v, want 10", n, err)
	}

	// Duplicate sequence numbers roll back the whole batch.
	err = s.Results().CreateBatch([]Result{{RunID: run.ID, Seq: 11, Label: "x"}, {RunID: run.ID, Seq: 5, Label: "x"}})
	if err == nil {
		t.Fatal("CreateBatch() with duplicate seq should fail")
	}
	if n, _ := s.Results().Count(run.ID); n != 10 {
		t.Errorf("Count() after failed batch = %d, want 10", n)
	}
}

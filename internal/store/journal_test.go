package store

import (
	"errors"
	"testing"
	"time"

	"github.com/ayusman/framepipe/internal/app"
	"github.com/ayusman/framepipe/internal/postprocess"
)

func frame(seq uint64, label string, score float32) app.FrameResult {
	top := postprocess.Class{Index: int(seq % 3), Label: label, Score: score}
	return app.FrameResult{
		Seq:       seq,
		Result:    postprocess.Result{Top: top, Ranked: []postprocess.Class{top}},
		Inference: 12500 * time.Microsecond,
		FPS:       14.5,
		At:        time.Now(),
	}
}

func TestJournal_WritesResults(t *testing.T) {
	s := newTestStore(t)
	run := &Run{Profile: "host-webcam", CacheMode: "non-cacheable", PixelPath: "software"}
	if err := s.Runs().Create(run); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	j := NewJournal(s, run.ID, 0)
	var obs app.Observer = j
	for seq := uint64(1); seq <= 50; seq++ {
		obs.Observe(frame(seq, "person", 0.75))
	}
	if err := j.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := j.Close(); !errors.Is(err, ErrJournalClosed) {
		t.Errorf("second Close() error = %v, want ErrJournalClosed", err)
	}

	if j.Written()+j.Dropped() != 50 {
		t.Errorf("written %d + dropped %d, want 50", j.Written(), j.Dropped())
	}
	if j.Dropped() != 0 {
		t.Errorf("Dropped() = %d with a %d deep buffer", j.Dropped(), DefaultJournalDepth)
	}

	got, err := s.Results().ListByRun(run.ID, 100)
	if err != nil {
		t.Fatalf("ListByRun() error = %v", err)
	}
	if len(got) != 50 {
		t.Fatalf("ListByRun() returned %d results, want 50", len(got))
	}
	if got[0].Label != "person" || got[0].InferenceMs != 12.5 || got[0].FPS != 14.5 {
		t.Errorf("first result = %+v", got[0])
	}

	// Results after close are counted, not written.
	obs.Observe(frame(51, "person", 0.75))
	if j.Dropped() != 1 {
		t.Errorf("Dropped() after close = %d, want 1", j.Dropped())
	}
}

func TestJournal_DropsWhenFull(t *testing.T) {
	s := newTestStore(t)
	run := &Run{Profile: "host-webcam", CacheMode: "non-cacheable", PixelPath: "software"}
	if err := s.Runs().Create(run); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	// Hold the only connection so the writer cannot make progress.
	tx, err := s.DB().Begin()
	if err != nil {
		t.Fatalf("Begin() error = %v", err)
	}

	j := NewJournal(s, run.ID, 4)
	start := time.Now()
	for seq := uint64(1); seq <= 100; seq++ {
		j.Observe(frame(seq, "background", 0.5))
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("Observe blocked for %v", elapsed)
	}
	if j.Dropped() == 0 {
		t.Error("Dropped() = 0, want results dropped while the writer is stalled")
	}

	tx.Rollback()
	if err := j.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if j.Written()+j.Dropped() != 100 {
		t.Errorf("written %d + dropped %d, want 100", j.Written(), j.Dropped())
	}
}

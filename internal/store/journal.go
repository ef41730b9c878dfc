package store

import (
	"errors"
	"log"
	"sync"
	"sync/atomic"

	"github.com/ayusman/framepipe/internal/app"
)

// Journal buffer and batch sizes.
const (
	DefaultJournalDepth = 256
	journalBatch        = 32
)

// ErrJournalClosed is returned when closing a journal twice.
var ErrJournalClosed = errors.New("journal closed")

// Journal records frame results for one run. Observe never blocks: when
// the writer falls behind, results are dropped and counted.
type Journal struct {
	results *ResultRepository
	runID   string

	mu     sync.RWMutex
	ch     chan app.FrameResult
	closed bool
	done   chan struct{}

	written atomic.Int64
	dropped atomic.Int64
	err     error
}

// NewJournal starts a writer for runID with room for depth pending
// results.
func NewJournal(s *Store, runID string, depth int) *Journal {
	if depth <= 0 {
		depth = DefaultJournalDepth
	}
	j := &Journal{
		results: s.Results(),
		runID:   runID,
		ch:      make(chan app.FrameResult, depth),
		done:    make(chan struct{}),
	}
	go j.write()
	return j
}

// Observe implements app.Observer.
func (j *Journal) Observe(fr app.FrameResult) {
	j.mu.RLock()
	defer j.mu.RUnlock()
	if j.closed {
		j.dropped.Add(1)
		return
	}
	select {
	case j.ch <- fr:
	default:
		j.dropped.Add(1)
	}
}

// Written returns how many results reached the database.
func (j *Journal) Written() int64 { return j.written.Load() }

// Dropped returns how many results were discarded.
func (j *Journal) Dropped() int64 { return j.dropped.Load() }

// Close flushes pending results and stops the writer. It returns the
// first write error, if any.
func (j *Journal) Close() error {
	j.mu.Lock()
	if j.closed {
		j.mu.Unlock()
		return ErrJournalClosed
	}
	j.closed = true
	close(j.ch)
	j.mu.Unlock()

	<-j.done
	if n := j.dropped.Load(); n > 0 {
		log.Printf("store: journal dropped %d results", n)
	}
	return j.err
}

func (j *Journal) write() {
	defer close(j.done)

	batch := make([]Result, 0, journalBatch)
	flush := func() {
		if len(batch) == 0 {
			return
		}
		if err := j.results.CreateBatch(batch); err != nil {
			if j.err == nil {
				log.Printf("store: journal write failed: %v", err)
				j.err = err
			}
			j.dropped.Add(int64(len(batch)))
		} else {
			j.written.Add(int64(len(batch)))
		}
		batch = batch[:0]
	}

	for fr := range j.ch {
		batch = append(batch, j.toResult(fr))
		// Drain what is already queued before touching the database.
	drain:
		for len(batch) < journalBatch {
			select {
			case more, ok := <-j.ch:
				if !ok {
					flush()
					return
				}
				batch = append(batch, j.toResult(more))
			default:
				break drain
			}
		}
		flush()
	}
	flush()
}

func (j *Journal) toResult(fr app.FrameResult) Result {
	return Result{
		RunID:       j.runID,
		Seq:         fr.Seq,
		ClassIndex:  fr.Result.Top.Index,
		Label:       fr.Result.Top.Label,
		Score:       float64(fr.Result.Top.Score),
		InferenceMs: float64(fr.Inference.Microseconds()) / 1000,
		FPS:         fr.FPS,
		CreatedAt:   fr.At,
	}
}

package app

import (
	"sync"
	"time"
)

// Stage names one step of a pipeline iteration.
type Stage string

const (
	StageWait        Stage = "wait-frame"
	StagePreview     Stage = "preview"
	StagePreprocess  Stage = "preprocess"
	StageAcquire     Stage = "start-acquisition"
	StageInference   Stage = "inference"
	StagePostprocess Stage = "postprocess"
	StageDisplay     Stage = "display"
	StageNotify      Stage = "notify"
)

// Stages lists the stages of one iteration in execution order.
var Stages = []Stage{StageWait, StagePreview, StagePreprocess, StageAcquire, StageInference, StagePostprocess, StageDisplay, StageNotify}

// Phase marks the start or end of a stage.
type Phase string

const (
	PhaseStart Phase = "start"
	PhaseEnd   Phase = "end"
)

// Event is one stage boundary.
type Event struct {
	Seq   uint64
	Stage Stage
	Phase Phase
	At    time.Time
}

// Tracer receives stage boundaries from the orchestrator.
type Tracer interface {
	Trace(e Event)
}

type nopTracer struct{}

func (nopTracer) Trace(Event) {}

// StageLog records every event in arrival order. Events from other
// goroutines, such as capture completions, may be added with Trace.
type StageLog struct {
	mu     sync.Mutex
	events []Event
}

// Trace implements Tracer.
func (l *StageLog) Trace(e Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, e)
}

// Events returns a copy of the recorded events.
func (l *StageLog) Events() []Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Event(nil), l.events...)
}

// Index returns the position of the first matching event, or -1.
func (l *StageLog) Index(seq uint64, stage Stage, phase Phase) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i, e := range l.events {
		if e.Seq == seq && e.Stage == stage && e.Phase == phase {
			return i
		}
	}
	return -1
}

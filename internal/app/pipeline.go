package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ayusman/framepipe/internal/capture"
	"github.com/ayusman/framepipe/internal/display"
	"github.com/ayusman/framepipe/internal/inference"
	"github.com/ayusman/framepipe/internal/mpu"
	"github.com/ayusman/framepipe/internal/postprocess"
	"github.com/ayusman/framepipe/internal/status"
)

// DefaultFrameTimeout bounds the wait for a captured frame.
const DefaultFrameTimeout = 2 * time.Second

var (
	// ErrFrameTimeout is returned when no frame arrives in time.
	ErrFrameTimeout = errors.New("no frame from camera")
	// ErrFaulted is returned by Step and Run once the pipeline has faulted.
	ErrFaulted = errors.New("pipeline faulted")
	// ErrNotRunning is returned when stepping a stopped pipeline.
	ErrNotRunning = errors.New("pipeline not running")
)

// State is the orchestrator lifecycle state.
type State int32

const (
	StateInit State = iota
	StateRunning
	StateStopped
	StateFault
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateRunning:
		return "running"
	case StateStopped:
		return "stopped"
	case StateFault:
		return "fault"
	default:
		return "unknown"
	}
}

// FrameResult is what one iteration produced.
type FrameResult struct {
	Seq       uint64             `json:"seq"`
	Result    postprocess.Result `json:"result"`
	Inference time.Duration      `json:"inference_ns"`
	FPS       float64            `json:"fps"`
	At        time.Time          `json:"at"`
}

// Observer is notified of every frame result from the pipeline goroutine.
// Implementations must not block.
type Observer interface {
	Observe(r FrameResult)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(r FrameResult)

// Observe implements Observer.
func (f ObserverFunc) Observe(r FrameResult) { f(r) }

// Snapshot is a point-in-time view of the orchestrator.
type Snapshot struct {
	State  State
	Frames uint64
	FPS    float64
	Last   *FrameResult
	Err    error
}

// Orchestrator runs the steady-state frame loop. Step and Run must be
// called from one goroutine; Snapshot and State are safe from any.
type Orchestrator struct {
	ctx       *Context
	camera    capture.Driver
	display   *display.Controller
	engine    inference.Engine
	handle    inference.Handle
	post      *postprocess.Postprocessor
	coherency *mpu.Coherency
	indicator status.Indicator

	tracer       Tracer
	frameTimeout time.Duration

	state  atomic.Int32
	frames atomic.Uint64
	fps    FPSMeter

	mu        sync.Mutex
	observers []Observer
	last      *FrameResult
	rate      float64
	err       error
}

// SetTracer installs a stage tracer. Call before Run.
func (o *Orchestrator) SetTracer(t Tracer) {
	if t == nil {
		t = nopTracer{}
	}
	o.tracer = t
}

// SetFrameTimeout bounds the wait for each frame. Zero or negative waits
// without a deadline, leaving a hung capture to an external watchdog. Call
// before Run.
func (o *Orchestrator) SetFrameTimeout(d time.Duration) {
	o.frameTimeout = d
}

// Subscribe adds an observer.
func (o *Orchestrator) Subscribe(obs Observer) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.observers = append(o.observers, obs)
}

// Context returns the application context.
func (o *Orchestrator) Context() *Context { return o.ctx }

// Display returns the display controller.
func (o *Orchestrator) Display() *display.Controller { return o.display }

// State returns the lifecycle state.
func (o *Orchestrator) State() State { return State(o.state.Load()) }

// Snapshot returns the current counters and last result.
func (o *Orchestrator) Snapshot() Snapshot {
	o.mu.Lock()
	defer o.mu.Unlock()
	return Snapshot{State: o.State(), Frames: o.frames.Load(), FPS: o.rate, Last: o.last, Err: o.err}
}

// Run loops until ctx is cancelled or a stage fails. Cancellation stops
// the pipeline and returns nil; a failure leaves it in StateFault and is
// returned.
func (o *Orchestrator) Run(ctx context.Context) error {
	return o.run(ctx, 0)
}

// RunN runs at most n iterations, then stops.
func (o *Orchestrator) RunN(ctx context.Context, n int) error {
	if n <= 0 {
		return nil
	}
	return o.run(ctx, n)
}

func (o *Orchestrator) run(ctx context.Context, n int) error {
	if !o.state.CompareAndSwap(int32(StateInit), int32(StateRunning)) {
		if o.State() == StateFault {
			return ErrFaulted
		}
		if o.State() != StateRunning {
			return ErrNotRunning
		}
	}

	for i := 0; n == 0 || i < n; i++ {
		if ctx.Err() != nil {
			break
		}
		if err := o.Step(ctx); err != nil {
			if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
				break
			}
			return err
		}
	}

	if o.state.CompareAndSwap(int32(StateRunning), int32(StateStopped)) {
		log.Printf("pipeline: stopped after %d frames", o.frames.Load())
	}
	return nil
}

// Step runs one iteration: wait for the frame, preview it, preprocess it,
// hand the capture buffer back to the camera, then run inference,
// postprocess and show the result while the next frame is captured.
func (o *Orchestrator) Step(ctx context.Context) error {
	switch o.State() {
	case StateFault:
		return ErrFaulted
	case StateInit:
		o.state.CompareAndSwap(int32(StateInit), int32(StateRunning))
	case StateStopped:
		return ErrNotRunning
	}

	c := o.ctx
	m := c.Map
	seq := o.frames.Load() + 1

	if err := o.stage(seq, StageWait, func() error { return o.waitFrame(ctx) }); err != nil {
		if ctx.Err() != nil {
			return err
		}
		return o.fault(err)
	}
	o.coherency.BeforeCPURead(m.Capture)

	if err := o.stage(seq, StagePreview, func() error { return o.display.DrawPreview(ctx, m.Capture) }); err != nil {
		if ctx.Err() != nil {
			return err
		}
		return o.fault(fmt.Errorf("preview: %w", err))
	}

	if err := o.stage(seq, StagePreprocess, func() error {
		return c.Preprocessor().Run(m.Capture, m.Rescaled, m.Input)
	}); err != nil {
		return o.fault(fmt.Errorf("preprocess: %w", err))
	}

	// From here the camera owns the capture buffer again.
	if err := o.stage(seq, StageAcquire, func() error {
		if err := c.Capture.Release(); err != nil {
			return err
		}
		return o.camera.StartAcquisition(m.Capture)
	}); err != nil {
		return o.fault(fmt.Errorf("start acquisition: %w", err))
	}

	var elapsed time.Duration
	if err := o.stage(seq, StageInference, func() error {
		start := time.Now()
		err := o.engine.Run(o.handle)
		elapsed = time.Since(start)
		return err
	}); err != nil {
		return o.fault(fmt.Errorf("inference: %w", err))
	}

	var result postprocess.Result
	_ = o.stage(seq, StagePostprocess, func() error {
		result = o.post.Run(m.Output)
		return nil
	})

	now := time.Now()
	rate := o.fps.Tick(now)
	fr := FrameResult{Seq: seq, Result: result, Inference: elapsed, FPS: rate, At: now}

	if err := o.stage(seq, StageDisplay, func() error {
		if err := o.display.DrawResult(display.Overlay{
			Label:     result.Top.Label,
			Score:     result.Top.Score,
			Inference: elapsed,
			FPS:       rate,
			Frame:     seq,
		}); err != nil {
			return err
		}
		return o.display.Present()
	}); err != nil {
		return o.fault(fmt.Errorf("display: %w", err))
	}

	o.frames.Store(seq)
	o.mu.Lock()
	o.last = &fr
	o.rate = rate
	observers := o.observers
	o.mu.Unlock()

	_ = o.stage(seq, StageNotify, func() error {
		for _, obs := range observers {
			obs.Observe(fr)
		}
		status.Heartbeat(o.indicator, seq)
		return nil
	})
	return nil
}

func (o *Orchestrator) stage(seq uint64, s Stage, fn func() error) error {
	o.tracer.Trace(Event{Seq: seq, Stage: s, Phase: PhaseStart, At: time.Now()})
	err := fn()
	o.tracer.Trace(Event{Seq: seq, Stage: s, Phase: PhaseEnd, At: time.Now()})
	return err
}

func (o *Orchestrator) waitFrame(ctx context.Context) error {
	if o.frameTimeout <= 0 {
		return o.ctx.Capture.Await(ctx)
	}
	wait, cancel := context.WithTimeout(ctx, o.frameTimeout)
	defer cancel()

	err := o.ctx.Capture.Await(wait)
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if camErr := o.camera.Err(); camErr != nil {
		return fmt.Errorf("%w after %s: %w", ErrFrameTimeout, o.frameTimeout, camErr)
	}
	return fmt.Errorf("%w after %s", ErrFrameTimeout, o.frameTimeout)
}

// fault moves the pipeline to its terminal fault state.
func (o *Orchestrator) fault(err error) error {
	o.state.Store(int32(StateFault))
	o.mu.Lock()
	o.err = err
	o.mu.Unlock()

	status.Fault(o.indicator)
	log.Printf("pipeline: fault at frame %d: %v", o.frames.Load()+1, err)
	return fmt.Errorf("%w: %w", ErrFaulted, err)
}

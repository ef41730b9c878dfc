// Package app wires the capture, preprocess, inference, postprocess and
// display stages into a running pipeline.
package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/ayusman/framepipe/internal/board"
	"github.com/ayusman/framepipe/internal/capture"
	"github.com/ayusman/framepipe/internal/config"
	"github.com/ayusman/framepipe/internal/display"
	"github.com/ayusman/framepipe/internal/inference"
	"github.com/ayusman/framepipe/internal/mpu"
	"github.com/ayusman/framepipe/internal/status"
)

// ErrAlreadyStarted is returned by Start on a running app.
var ErrAlreadyStarted = errors.New("app already started")

// Config holds configuration options for the application.
type Config struct {
	// Profile names an embedded build profile; empty means the default.
	Profile string
	// LabelsPath overrides the profile's class names.
	LabelsPath string
	// ModelPath is loaded with OpenCV DNN when Engine is nil.
	ModelPath string
	CameraID  int

	// Devices left nil get host defaults.
	Board     board.Board
	MPU       mpu.Unit
	Cache     mpu.Cache
	Camera    capture.Driver
	Panel     display.Panel
	Engine    inference.Engine
	Indicator status.Indicator

	// FrameTimeout bounds each frame wait; zero keeps DefaultFrameTimeout
	// and a negative value waits without a deadline.
	FrameTimeout time.Duration
	Tracer       Tracer
}

// App owns one pipeline: its context, its devices and the goroutine that
// drives the orchestrator.
type App struct {
	config  Config
	profile *config.Profile
	ctx     *Context
	hw      Hardware

	mu        sync.Mutex
	orch      *Orchestrator
	observers []Observer
	cancel    context.CancelFunc
	done      chan struct{}
	runErr    error
	started   time.Time
}

// New loads the profile and lays out memory. Devices are not touched
// until Start.
func New(cfg Config) (*App, error) {
	name := cfg.Profile
	if name == "" {
		name = config.DefaultProfile
	}
	p, err := config.Load(name)
	if err != nil {
		return nil, err
	}
	labels, err := LoadLabels(p, cfg.LabelsPath)
	if err != nil {
		return nil, err
	}
	c, err := NewContext(p, labels)
	if err != nil {
		return nil, err
	}

	hw := Hardware{
		Board:     cfg.Board,
		MPU:       cfg.MPU,
		Cache:     cfg.Cache,
		Camera:    cfg.Camera,
		Panel:     cfg.Panel,
		Engine:    cfg.Engine,
		Indicator: cfg.Indicator,
	}
	if hw.Board == nil {
		hw.Board = board.NewHost()
	}
	if hw.MPU == nil {
		hw.MPU = mpu.NewSimulatedUnit()
	}
	if hw.Cache == nil {
		hw.Cache = mpu.NewSimulatedCache()
	}
	if hw.Camera == nil {
		hw.Camera = capture.NewOpenCVCamera(cfg.CameraID)
	}
	if hw.Panel == nil {
		hw.Panel = display.NewHeadlessPanel(0)
	}
	if hw.Indicator == nil {
		hw.Indicator = &status.Logger{}
	}
	if hw.Engine == nil {
		if cfg.ModelPath != "" {
			hw.Engine = inference.NewOpenCVEngine(cfg.ModelPath, EngineConfig(c))
		} else {
			log.Printf("app: no model given, using mock engine")
			hw.Engine = inference.NewMockEngine(EngineConfig(c))
		}
	}

	return &App{config: cfg, profile: p, ctx: c, hw: hw}, nil
}

// Profile returns the loaded build profile.
func (a *App) Profile() *config.Profile { return a.profile }

// Context returns the pipeline context.
func (a *App) Context() *Context { return a.ctx }

// Subscribe adds an observer. Observers added before Start see every
// frame.
func (a *App) Subscribe(obs Observer) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.observers = append(a.observers, obs)
	if a.orch != nil {
		a.orch.Subscribe(obs)
	}
}

// Start brings the pipeline up and runs it in the background. A bring-up
// failure is returned and leaves the fault indication showing.
func (a *App) Start(ctx context.Context) error {
	return a.start(ctx, 0)
}

// StartN is Start bounded to n frames.
func (a *App) StartN(ctx context.Context, n int) error {
	return a.start(ctx, n)
}

func (a *App) start(ctx context.Context, n int) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.done != nil {
		return ErrAlreadyStarted
	}

	o, err := NewBringUp(a.ctx, a.hw).Run(ctx)
	if err != nil {
		return err
	}
	if a.config.FrameTimeout != 0 {
		o.SetFrameTimeout(a.config.FrameTimeout)
	}
	if a.config.Tracer != nil {
		o.SetTracer(a.config.Tracer)
	}
	for _, obs := range a.observers {
		o.Subscribe(obs)
	}

	runCtx, cancel := context.WithCancel(ctx)
	a.orch = o
	a.cancel = cancel
	a.done = make(chan struct{})
	a.started = time.Now()

	go func() {
		defer close(a.done)
		var err error
		if n > 0 {
			err = o.RunN(runCtx, n)
		} else {
			err = o.Run(runCtx)
		}
		a.mu.Lock()
		a.runErr = err
		a.mu.Unlock()
	}()

	log.Printf("app: pipeline started with profile %s", a.profile.Name)
	return nil
}

// Orchestrator returns the running orchestrator, or nil before Start.
func (a *App) Orchestrator() *Orchestrator {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.orch
}

// Uptime returns the time since Start.
func (a *App) Uptime() time.Duration {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.started.IsZero() {
		return 0
	}
	return time.Since(a.started)
}

// Wait blocks until the pipeline stops and returns its error.
func (a *App) Wait() error {
	a.mu.Lock()
	done := a.done
	a.mu.Unlock()
	if done == nil {
		return nil
	}
	<-done

	a.mu.Lock()
	defer a.mu.Unlock()
	return a.runErr
}

// Stop cancels the pipeline, waits for it and releases every device.
func (a *App) Stop() error {
	a.mu.Lock()
	cancel := a.cancel
	a.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	runErr := a.Wait()

	var errs []error
	if err := a.hw.Camera.Close(); err != nil {
		errs = append(errs, fmt.Errorf("camera: %w", err))
	}
	if err := a.hw.Engine.Close(); err != nil {
		errs = append(errs, fmt.Errorf("engine: %w", err))
	}
	if err := a.hw.Panel.Close(); err != nil {
		errs = append(errs, fmt.Errorf("panel: %w", err))
	}
	if err := a.ctx.Close(); err != nil {
		errs = append(errs, fmt.Errorf("context: %w", err))
	}
	if err := errors.Join(errs...); err != nil {
		log.Printf("app: error releasing devices: %v", err)
		return err
	}

	log.Println("app: pipeline stopped")
	return runErr
}

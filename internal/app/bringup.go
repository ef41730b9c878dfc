package app

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/ayusman/framepipe/internal/board"
	"github.com/ayusman/framepipe/internal/capture"
	"github.com/ayusman/framepipe/internal/display"
	"github.com/ayusman/framepipe/internal/inference"
	"github.com/ayusman/framepipe/internal/mpu"
	"github.com/ayusman/framepipe/internal/postprocess"
	"github.com/ayusman/framepipe/internal/status"
)

// ErrBringUp wraps the first failing bring-up step.
var ErrBringUp = errors.New("bring-up failed")

// Bring-up step names, in execution order.
const (
	StepMPU         = "mpu"
	StepCache       = "cache"
	StepClocks      = "clocks"
	StepPeripherals = "peripherals"
	StepContext     = "context"
	StepDisplay     = "display"
	StepCamera      = "camera"
	StepEngine      = "engine"
	StepWelcome     = "welcome"
	StepAcquire     = "acquire"
)

// Hardware is the set of devices the pipeline is brought up on.
type Hardware struct {
	Board     board.Board
	MPU       mpu.Unit
	Cache     mpu.Cache
	Camera    capture.Driver
	Panel     display.Panel
	Engine    inference.Engine
	Indicator status.Indicator
}

// BringUp runs the start-up sequence for one pipeline. Steps run strictly
// in order; the data cache is only enabled once every region is
// programmed, and the camera is only started once every consumer of its
// frames is ready.
type BringUp struct {
	ctx *Context
	hw  Hardware

	coherency *mpu.Coherency
	display   *display.Controller
	handle    inference.Handle
	post      *postprocess.Postprocessor

	done []string
}

// NewBringUp prepares a bring-up for ctx on hw. Nothing touches the
// hardware until Run.
func NewBringUp(ctx *Context, hw Hardware) *BringUp {
	if hw.Indicator == nil {
		hw.Indicator = &status.Logger{}
	}
	if hw.Board == nil {
		hw.Board = board.NewHost()
	}
	return &BringUp{ctx: ctx, hw: hw}
}

type step struct {
	name string
	run  func(ctx context.Context) error
}

func (b *BringUp) steps() []step {
	return []step{
		{StepMPU, b.configureMPU},
		{StepCache, b.enableCache},
		{StepClocks, func(context.Context) error { return b.hw.Board.ConfigureClocks() }},
		{StepPeripherals, func(context.Context) error {
			return b.hw.Board.EnablePeripheralClocks(board.PeriphCRC, board.PeriphCamera, board.PeriphDisplay, board.PeriphDMA2D)
		}},
		{StepContext, func(context.Context) error { return b.ctx.Init() }},
		{StepDisplay, b.initDisplay},
		{StepCamera, b.initCamera},
		{StepEngine, b.initEngine},
		{StepWelcome, b.welcome},
		{StepAcquire, func(context.Context) error { return b.hw.Camera.StartAcquisition(b.ctx.Map.Capture) }},
	}
}

// Steps returns the names of the steps completed so far.
func (b *BringUp) Steps() []string {
	return append([]string(nil), b.done...)
}

// Run executes every step. On the first failure it shows the fault
// indication and returns ErrBringUp wrapping the cause. On success the
// returned orchestrator is ready to Run.
func (b *BringUp) Run(ctx context.Context) (*Orchestrator, error) {
	status.Booting(b.hw.Indicator)

	for _, s := range b.steps() {
		if err := s.run(ctx); err != nil {
			log.Printf("bringup: %s failed: %v", s.name, err)
			status.Fault(b.hw.Indicator)
			return nil, fmt.Errorf("%w: %s: %w", ErrBringUp, s.name, err)
		}
		b.done = append(b.done, s.name)
		log.Printf("bringup: %s ok", s.name)
	}

	status.Running(b.hw.Indicator)
	o := &Orchestrator{
		ctx:          b.ctx,
		camera:       b.hw.Camera,
		display:      b.display,
		engine:       b.hw.Engine,
		handle:       b.handle,
		post:         b.post,
		coherency:    b.coherency,
		indicator:    b.hw.Indicator,
		tracer:       nopTracer{},
		frameTimeout: DefaultFrameTimeout,
	}
	return o, nil
}

func (b *BringUp) configureMPU(context.Context) error {
	return mpu.NewConfigurator(b.hw.MPU, b.hw.Cache).Apply(b.ctx.Map)
}

func (b *BringUp) enableCache(context.Context) error {
	b.hw.Cache.EnableICache()
	b.hw.Cache.EnableDCache()
	b.coherency = mpu.NewCoherency(b.hw.MPU, b.hw.Cache)
	return nil
}

func (b *BringUp) initDisplay(ctx context.Context) error {
	c, err := display.NewController(b.ctx.Map.Display, b.ctx.Swap, b.hw.Panel, b.coherency)
	if err != nil {
		return err
	}
	if err := c.Init(); err != nil {
		return err
	}
	b.display = c
	return nil
}

func (b *BringUp) initCamera(context.Context) error {
	p := b.ctx.Profile
	return b.hw.Camera.Init(capture.Config{
		Width:      p.Camera.Width,
		Height:     p.Camera.Height,
		MirrorFlip: b.ctx.MirrorFlip,
		FPS:        capture.DefaultFPS,
	}, b.ctx.Capture)
}

func (b *BringUp) initEngine(context.Context) error {
	n := b.ctx.Profile.Network
	m := b.ctx.Map
	h, err := b.hw.Engine.Init(inference.Tensors{Activation: m.Activation, Input: m.Input, Output: m.Output})
	if err != nil {
		return err
	}
	post, err := postprocess.New(postprocess.Config{
		Output:    n.Output,
		TopN:      postprocess.DefaultTopN,
		Threshold: n.Threshold,
	}, b.ctx.Labels)
	if err != nil {
		return err
	}
	b.handle = h
	b.post = post
	return nil
}

func (b *BringUp) welcome(ctx context.Context) error {
	p := b.ctx.Profile
	return b.display.DrawWelcome(ctx,
		"framepipe",
		fmt.Sprintf("profile %s", p.Name),
		fmt.Sprintf("input %dx%d %s", p.Network.Width, p.Network.Height, p.Network.ColorMode),
		fmt.Sprintf("%d classes", b.ctx.Labels.Len()),
	)
}

// EngineConfig derives the engine tensor geometry from the context.
func EngineConfig(c *Context) inference.Config {
	n := c.Profile.Network
	return inference.Config{
		Width:    n.Width,
		Height:   n.Height,
		Channels: n.Channels(),
		Classes:  n.Classes,
		Input:    c.Input,
		Output:   c.Output,
	}
}

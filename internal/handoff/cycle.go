package handoff

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
)

var (
	// ErrAcquisitionInFlight is returned when an acquisition is requested
	// while the buffer is still owned by DMA or not yet released.
	ErrAcquisitionInFlight = errors.New("acquisition already in flight")
	// ErrNotConsumed is returned by Release when no frame was consumed.
	ErrNotConsumed = errors.New("no consumed frame to release")
)

// State is the position of a capture buffer in its acquisition cycle.
type State int32

const (
	Idle State = iota
	Capturing
	Ready
	Consumed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Capturing:
		return "capturing"
	case Ready:
		return "ready"
	case Consumed:
		return "consumed"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Owner is the agent allowed to touch the capture buffer.
type Owner int

const (
	OwnerCPU Owner = iota
	OwnerDMA
)

func (o Owner) String() string {
	if o == OwnerDMA {
		return "dma"
	}
	return "cpu"
}

// CycleStats counts completion signals by outcome.
type CycleStats struct {
	Acquisitions uint64
	Completions  uint64
	Coalesced    uint64
	Spurious     uint64
	Consumed     uint64
}

// CaptureCycle drives one capture buffer through
// Idle -> Capturing -> Ready -> Consumed -> Idle. The orchestrator calls
// Begin, Await and Release; only the capture completion path calls Complete.
type CaptureCycle struct {
	state atomic.Int32
	ready *Flag

	acquisitions atomic.Uint64
	completions  atomic.Uint64
	coalesced    atomic.Uint64
	spurious     atomic.Uint64
	consumed     atomic.Uint64
}

// NewCaptureCycle returns an idle cycle.
func NewCaptureCycle() *CaptureCycle {
	return &CaptureCycle{ready: NewFlag()}
}

// State returns the current state.
func (c *CaptureCycle) State() State {
	return State(c.state.Load())
}

// Owner returns who may access the buffer right now.
func (c *CaptureCycle) Owner() Owner {
	if c.State() == Capturing {
		return OwnerDMA
	}
	return OwnerCPU
}

// NewFrameReady exposes the readiness flag raised by Complete.
func (c *CaptureCycle) NewFrameReady() *Flag {
	return c.ready
}

// Begin hands the buffer to DMA for the next acquisition.
func (c *CaptureCycle) Begin() error {
	if !c.state.CompareAndSwap(int32(Idle), int32(Capturing)) {
		return fmt.Errorf("%w (state %s)", ErrAcquisitionInFlight, c.State())
	}
	c.acquisitions.Add(1)
	return nil
}

// Abort returns a buffer to Idle when starting the acquisition failed.
func (c *CaptureCycle) Abort() {
	if c.state.CompareAndSwap(int32(Capturing), int32(Idle)) {
		c.acquisitions.Add(^uint64(0))
	}
}

// Complete is called from the capture completion path once the frame is
// fully written. The readiness flag is raised only after the state says
// Ready, so a consumer never sees the flag ahead of valid data.
func (c *CaptureCycle) Complete() {
	if c.state.CompareAndSwap(int32(Capturing), int32(Ready)) {
		c.completions.Add(1)
		c.ready.Set()
		return
	}
	if c.State() == Ready {
		// The frame is already flagged; the extra signal carries no data.
		c.coalesced.Add(1)
		return
	}
	c.spurious.Add(1)
}

// Await blocks until a frame is ready and takes CPU ownership of it.
func (c *CaptureCycle) Await(ctx context.Context) error {
	for {
		if err := c.ready.Wait(ctx); err != nil {
			return err
		}
		if c.state.CompareAndSwap(int32(Ready), int32(Consumed)) {
			c.consumed.Add(1)
			return nil
		}
	}
}

// Release marks the consumed frame as fully read so the next acquisition
// may start.
func (c *CaptureCycle) Release() error {
	if !c.state.CompareAndSwap(int32(Consumed), int32(Idle)) {
		return fmt.Errorf("%w (state %s)", ErrNotConsumed, c.State())
	}
	return nil
}

// Stats returns a snapshot of the cycle counters.
func (c *CaptureCycle) Stats() CycleStats {
	return CycleStats{
		Acquisitions: c.acquisitions.Load(),
		Completions:  c.completions.Load(),
		Coalesced:    c.coalesced.Load(),
		Spurious:     c.spurious.Load(),
		Consumed:     c.consumed.Load(),
	}
}

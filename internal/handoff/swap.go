package handoff

import (
	"context"
	"sync/atomic"
)

// SwapGate guards the display double buffer. Written is raised when the
// compositor finished the back buffer; LCDSync is raised when scan-out has
// reloaded onto the new front buffer. A new draw may start only once the
// previous swap has been observed.
type SwapGate struct {
	written *Flag
	lcdSync *Flag
	pending atomic.Bool
}

// NewSwapGate returns a gate with no swap outstanding.
func NewSwapGate() *SwapGate {
	return &SwapGate{written: NewFlag(), lcdSync: NewFlag()}
}

// Written is the compositor completion flag.
func (g *SwapGate) Written() *Flag { return g.written }

// LCDSync is the scan-out reload flag.
func (g *SwapGate) LCDSync() *Flag { return g.lcdSync }

// Pending reports whether a swap was requested and not yet observed.
func (g *SwapGate) Pending() bool { return g.pending.Load() }

// AcquireBack blocks until the back buffer is no longer being scanned out.
func (g *SwapGate) AcquireBack(ctx context.Context) error {
	if !g.pending.Load() {
		return nil
	}
	if err := g.lcdSync.Wait(ctx); err != nil {
		return err
	}
	g.pending.Store(false)
	return nil
}

// RequestSwap records that a swap has been queued with the panel.
func (g *SwapGate) RequestSwap() {
	g.pending.Store(true)
}

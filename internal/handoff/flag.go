// Package handoff implements the ownership and readiness contract between
// DMA engines (camera capture, display scan-out) and the CPU pipeline.
package handoff

import (
	"context"
	"sync/atomic"
)

// Flag is a single-producer, single-consumer readiness flag. The producer
// publishes with Set; the consumer observes and clears with Wait or
// TryConsume. Set happens-before the Wait that observes it.
type Flag struct {
	ready     atomic.Bool
	notify    chan struct{}
	sets      atomic.Uint64
	coalesced atomic.Uint64
}

// NewFlag returns a cleared flag.
func NewFlag() *Flag {
	return &Flag{notify: make(chan struct{}, 1)}
}

// Set raises the flag. It reports false when the flag was already raised;
// the extra signal is counted and otherwise ignored.
func (f *Flag) Set() bool {
	if !f.ready.CompareAndSwap(false, true) {
		f.coalesced.Add(1)
		return false
	}
	f.sets.Add(1)
	select {
	case f.notify <- struct{}{}:
	default:
	}
	return true
}

// TryConsume clears the flag if it is raised and reports whether it was.
func (f *Flag) TryConsume() bool {
	return f.ready.CompareAndSwap(true, false)
}

// Wait blocks until the flag is raised, then clears it.
func (f *Flag) Wait(ctx context.Context) error {
	for {
		if f.TryConsume() {
			return nil
		}
		select {
		case <-f.notify:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// IsSet reports whether the flag is currently raised.
func (f *Flag) IsSet() bool {
	return f.ready.Load()
}

// Reset clears the flag without consuming a notification.
func (f *Flag) Reset() {
	f.ready.Store(false)
}

// Sets returns how many times the flag went from cleared to raised.
func (f *Flag) Sets() uint64 { return f.sets.Load() }

// Coalesced returns how many Set calls found the flag already raised.
func (f *Flag) Coalesced() uint64 { return f.coalesced.Load() }

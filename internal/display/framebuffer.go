// Package display drives the panel: a double-buffered framebuffer pair,
// the live camera preview and the classification overlay.
package display

import (
	"sync"

	"github.com/ayusman/framepipe/internal/memmap"
)

// FramebufferPair holds the buffer being scanned out (front) and the one
// being composed (back).
type FramebufferPair struct {
	mu    sync.Mutex
	bufs  [2]*memmap.Buffer
	front int
}

// NewFramebufferPair starts with bufs[0] in front.
func NewFramebufferPair(bufs [2]*memmap.Buffer) *FramebufferPair {
	return &FramebufferPair{bufs: bufs}
}

// Front returns the buffer the panel reads.
func (p *FramebufferPair) Front() *memmap.Buffer {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.bufs[p.front]
}

// Back returns the buffer the compositor writes.
func (p *FramebufferPair) Back() *memmap.Buffer {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.bufs[1-p.front]
}

// Swap exchanges front and back and returns the new front.
func (p *FramebufferPair) Swap() *memmap.Buffer {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.front = 1 - p.front
	return p.bufs[p.front]
}

// withFront runs fn while no swap can happen.
func (p *FramebufferPair) withFront(fn func(*memmap.Buffer)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fn(p.bufs[p.front])
}

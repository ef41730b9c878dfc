package display

import (
	"sync"
	"time"

	"github.com/ayusman/framepipe/internal/memmap"
)

// Panel scans out a framebuffer. reloaded, when not nil, is called once
// the panel has switched to fb and no longer reads the previous buffer.
type Panel interface {
	Show(fb *memmap.Buffer, reloaded func()) error
	Close() error
}

// HeadlessPanel accepts frames without showing them. Reload is reported
// from a separate goroutine after the configured blanking delay.
type HeadlessPanel struct {
	blank time.Duration

	mu    sync.Mutex
	shown int
	last  *memmap.Buffer
	wg    sync.WaitGroup
}

// NewHeadlessPanel returns a panel that reloads after blank.
func NewHeadlessPanel(blank time.Duration) *HeadlessPanel {
	return &HeadlessPanel{blank: blank}
}

// Show implements Panel.
func (p *HeadlessPanel) Show(fb *memmap.Buffer, reloaded func()) error {
	p.mu.Lock()
	p.shown++
	p.last = fb
	p.mu.Unlock()

	if reloaded == nil {
		return nil
	}
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		if p.blank > 0 {
			time.Sleep(p.blank)
		}
		reloaded()
	}()
	return nil
}

// Shown returns how many frames were scanned out and the last one.
func (p *HeadlessPanel) Shown() (int, *memmap.Buffer) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.shown, p.last
}

// Close waits for pending reloads.
func (p *HeadlessPanel) Close() error {
	p.wg.Wait()
	return nil
}

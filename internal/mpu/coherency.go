package mpu

import (
	"github.com/ayusman/framepipe/internal/memmap"
)

// Coherency performs cache maintenance at buffer ownership handovers. For
// buffers in non-cacheable memory every call is a no-op.
type Coherency struct {
	unit  Unit
	cache Cache
}

// NewCoherency returns the maintenance policy for the configured unit.
func NewCoherency(unit Unit, cache Cache) *Coherency {
	return &Coherency{unit: unit, cache: cache}
}

// NeedsMaintenance reports whether CPU accesses to b go through the cache.
func (c *Coherency) NeedsMaintenance(b *memmap.Buffer) bool {
	if !c.cache.Enabled() {
		return false
	}
	p, ok := c.unit.Attributes(b.Base)
	if !ok {
		// The default map caches external memory.
		return true
	}
	return p.IsCached()
}

// BeforeCPURead discards stale lines after a DMA engine wrote b.
func (c *Coherency) BeforeCPURead(b *memmap.Buffer) {
	if c.NeedsMaintenance(b) {
		c.cache.Invalidate(b.Base, b.Padded())
	}
}

// BeforeDMARead writes back dirty lines before a DMA engine reads b.
func (c *Coherency) BeforeDMARead(b *memmap.Buffer) {
	if c.NeedsMaintenance(b) {
		c.cache.Clean(b.Base, b.Padded())
	}
}

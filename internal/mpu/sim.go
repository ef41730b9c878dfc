package mpu

import (
	"sync"

	"github.com/ayusman/framepipe/internal/memmap"
)

// MaxRegions is the number of region slots of the simulated unit.
const MaxRegions = 16

// SimulatedUnit is the protection unit of the host board. It keeps the
// programmed regions and resolves attributes the way the hardware does:
// the highest numbered enabled region covering an address wins.
type SimulatedUnit struct {
	mu                sync.Mutex
	enabled           bool
	privilegedDefault bool
	regions           map[int]memmap.Region
	log               []string
}

// NewSimulatedUnit returns a disabled unit with no regions.
func NewSimulatedUnit() *SimulatedUnit {
	return &SimulatedUnit{regions: make(map[int]memmap.Region)}
}

func (u *SimulatedUnit) Disable() {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.enabled = false
	u.log = append(u.log, "disable")
}

func (u *SimulatedUnit) ConfigureRegion(cfg RegionConfig) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if cfg.Number < 0 || cfg.Number >= MaxRegions {
		return ErrTooManyRegions
	}
	u.regions[cfg.Number] = cfg.Region
	u.log = append(u.log, "region "+cfg.Region.Name)
	return nil
}

func (u *SimulatedUnit) Enable(privilegedDefault bool) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.enabled = true
	u.privilegedDefault = privilegedDefault
	u.log = append(u.log, "enable")
}

func (u *SimulatedUnit) Enabled() bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.enabled
}

func (u *SimulatedUnit) Attributes(addr memmap.Addr) (memmap.Policy, bool) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if !u.enabled {
		return memmap.Policy{}, false
	}
	for n := MaxRegions - 1; n >= 0; n-- {
		r, ok := u.regions[n]
		if ok && r.Contains(addr, 1) {
			return r.Policy, true
		}
	}
	return memmap.Policy{}, false
}

// Log returns the sequence of operations applied to the unit.
func (u *SimulatedUnit) Log() []string {
	u.mu.Lock()
	defer u.mu.Unlock()
	return append([]string(nil), u.log...)
}

// SimulatedCache is the cache of the host board. It counts maintenance
// operations so tests can check every handover was covered.
type SimulatedCache struct {
	mu          sync.Mutex
	icache      bool
	dcache      bool
	cleans      int
	invalidates int
}

// NewSimulatedCache returns a cache with both caches disabled.
func NewSimulatedCache() *SimulatedCache {
	return &SimulatedCache{}
}

func (c *SimulatedCache) EnableICache() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.icache = true
}

func (c *SimulatedCache) EnableDCache() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dcache = true
}

// Enabled reports whether the data cache is on.
func (c *SimulatedCache) Enabled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dcache
}

func (c *SimulatedCache) Clean(addr memmap.Addr, size int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cleans++
}

func (c *SimulatedCache) Invalidate(addr memmap.Addr, size int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.invalidates++
}

// Counts returns the number of clean and invalidate operations so far.
func (c *SimulatedCache) Counts() (cleans, invalidates int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cleans, c.invalidates
}

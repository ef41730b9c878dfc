// Package mpu programs memory protection regions and the data cache so that
// every buffer shared with a DMA engine is coherent with the CPU.
package mpu

import (
	"errors"
	"fmt"
	"log"
	"math/bits"
	"sync"

	"github.com/ayusman/framepipe/internal/memmap"
)

var (
	// ErrCacheEnabled is returned when regions are programmed after the data
	// cache has been turned on.
	ErrCacheEnabled = errors.New("data cache enabled before protection unit configuration")
	// ErrRegionConflict is returned when a region overlaps one with a
	// different policy.
	ErrRegionConflict = errors.New("region conflicts with an existing region")
	// ErrRegionSize is returned for sizes the unit cannot encode.
	ErrRegionSize = errors.New("region size must be a power of two >= 32 with a size aligned base")
	// ErrTooManyRegions is returned when the unit has no free region slot.
	ErrTooManyRegions = errors.New("no free protection region")
)

// RegionConfig is one protection region as programmed into the unit.
type RegionConfig struct {
	Number int
	Region memmap.Region
}

// Unit is a memory protection unit.
type Unit interface {
	Disable()
	ConfigureRegion(cfg RegionConfig) error
	Enable(privilegedDefault bool)
	Enabled() bool
	// Attributes returns the policy in effect at addr, if any region covers it.
	Attributes(addr memmap.Addr) (memmap.Policy, bool)
}

// Cache is the CPU's instruction and data cache.
type Cache interface {
	EnableICache()
	EnableDCache()
	Enabled() bool
	Clean(addr memmap.Addr, size int)
	Invalidate(addr memmap.Addr, size int)
}

// CheckRegion validates that r can be encoded in a protection region.
func CheckRegion(r memmap.Region) error {
	if r.Size < 32 || bits.OnesCount32(r.Size) != 1 || uint32(r.Base)%r.Size != 0 {
		return fmt.Errorf("%s: %w", r, ErrRegionSize)
	}
	return nil
}

// Configurator applies a memory map to a protection unit.
type Configurator struct {
	unit  Unit
	cache Cache

	mu      sync.Mutex
	applied []RegionConfig
}

// NewConfigurator creates a Configurator for the given unit and cache.
func NewConfigurator(unit Unit, cache Cache) *Configurator {
	return &Configurator{unit: unit, cache: cache}
}

// Apply programs one region per memory region of m, lowest priority first,
// and enables the unit. It must run before the data cache is enabled.
func (c *Configurator) Apply(m *memmap.Map) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cache.Enabled() {
		return ErrCacheEnabled
	}

	c.unit.Disable()
	for _, r := range m.Regions() {
		if err := c.configure(r); err != nil {
			return err
		}
	}
	c.unit.Enable(true)
	return nil
}

// ConfigureRegion programs a single region. Programming an identical region
// again is a no-op.
func (c *Configurator) ConfigureRegion(r memmap.Region) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cache.Enabled() {
		return ErrCacheEnabled
	}
	return c.configure(r)
}

func (c *Configurator) configure(r memmap.Region) error {
	if err := CheckRegion(r); err != nil {
		return err
	}
	for _, a := range c.applied {
		if a.Region == r {
			return nil
		}
		if a.Region.Overlaps(r) && a.Region.Policy != r.Policy {
			return fmt.Errorf("%s vs %s: %w", r, a.Region, ErrRegionConflict)
		}
	}

	cfg := RegionConfig{Number: len(c.applied), Region: r}
	if err := c.unit.ConfigureRegion(cfg); err != nil {
		return fmt.Errorf("configure region %d: %w", cfg.Number, err)
	}
	c.applied = append(c.applied, cfg)
	log.Printf("mpu: region %d %s", cfg.Number, r)
	return nil
}

// Regions returns the regions programmed so far.
func (c *Configurator) Regions() []RegionConfig {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]RegionConfig, len(c.applied))
	copy(out, c.applied)
	return out
}

// Package memmap declares the static memory layout of the frame pipeline:
// the memory banks, the regions programmed into the protection unit, and the
// fixed buffers every pipeline stage reads and writes.
package memmap

import (
	"fmt"
	"strings"
)

// Access is the access permission of a protection region.
type Access uint8

const (
	AccessNone Access = iota
	AccessPrivileged
	AccessFull
	AccessReadOnly
)

func (a Access) String() string {
	switch a {
	case AccessNone:
		return "none"
	case AccessPrivileged:
		return "privileged-rw"
	case AccessFull:
		return "full"
	case AccessReadOnly:
		return "read-only"
	default:
		return fmt.Sprintf("access(%d)", uint8(a))
	}
}

// Policy is the set of memory attributes assigned to a region.
// TEX, Cacheable and Bufferable follow the ARMv7-M encoding.
type Policy struct {
	Access       Access
	TEX          uint8
	Bufferable   bool
	Cacheable    bool
	Shareable    bool
	ExecuteNever bool
}

// IsCached reports whether CPU accesses to the region go through the data
// cache. A shareable region is treated as non-cacheable by the core.
func (p Policy) IsCached() bool {
	return p.Cacheable && !p.Shareable
}

func (p Policy) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "TEX=%03b C=%d B=%d S=%d %s", p.TEX, bit(p.Cacheable), bit(p.Bufferable), bit(p.Shareable), p.Access)
	if p.ExecuteNever {
		b.WriteString(" XN")
	}
	return b.String()
}

func bit(v bool) int {
	if v {
		return 1
	}
	return 0
}

// CacheMode selects the policy applied to external memory.
type CacheMode string

const (
	// NonCacheable makes external memory coherent with DMA without any
	// cache maintenance.
	NonCacheable CacheMode = "non-cacheable"
	// WriteBackWriteAllocate caches reads and writes to external memory.
	WriteBackWriteAllocate CacheMode = "write-back-write-allocate"
	// WriteThrough caches reads; writes go straight to memory.
	WriteThrough CacheMode = "write-through"
)

// CacheModes lists the supported external memory cache modes.
var CacheModes = []CacheMode{NonCacheable, WriteBackWriteAllocate, WriteThrough}

// Valid reports whether m is one of the supported modes.
func (m CacheMode) Valid() bool {
	for _, c := range CacheModes {
		if m == c {
			return true
		}
	}
	return false
}

// Policy returns the region attributes for the mode.
func (m CacheMode) Policy() (Policy, error) {
	switch m {
	case NonCacheable:
		return Policy{Access: AccessFull, TEX: 1}, nil
	case WriteBackWriteAllocate:
		return Policy{Access: AccessFull, TEX: 1, Cacheable: true, Bufferable: true}, nil
	case WriteThrough:
		return Policy{Access: AccessFull, TEX: 0, Cacheable: true}, nil
	default:
		return Policy{}, fmt.Errorf("%w: %q", ErrCacheMode, string(m))
	}
}

// InternalPolicy is the write-back write-allocate policy programmed for
// internal SRAM, which only the CPU touches.
func InternalPolicy() Policy {
	return Policy{Access: AccessFull, TEX: 1, Cacheable: true, Bufferable: true}
}

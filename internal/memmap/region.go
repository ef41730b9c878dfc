package memmap

import (
	"errors"
	"fmt"
)

var (
	// ErrCacheMode is returned for an unsupported external memory cache mode.
	ErrCacheMode = errors.New("invalid cache mode")
	// ErrOutOfMemory is returned when a bank cannot hold a buffer.
	ErrOutOfMemory = errors.New("bank exhausted")
	// ErrOverlap is returned when two buffers or two conflicting regions overlap.
	ErrOverlap = errors.New("overlapping memory")
	// ErrMisaligned is returned when a buffer violates line alignment.
	ErrMisaligned = errors.New("buffer not line aligned")
	// ErrUnmanaged is returned for a cached DMA buffer without maintenance.
	ErrUnmanaged = errors.New("cached DMA buffer without maintenance")
)

// Region is a contiguous address range with one memory policy.
type Region struct {
	Name   string
	Base   Addr
	Size   uint32
	Policy Policy
}

// End returns the first address past the region.
func (r Region) End() uint64 { return uint64(r.Base) + uint64(r.Size) }

// Contains reports whether [base, base+size) lies inside the region.
func (r Region) Contains(base Addr, size uint64) bool {
	return base >= r.Base && uint64(base)+size <= r.End()
}

// Overlaps reports whether the two regions share any address.
func (r Region) Overlaps(o Region) bool {
	return uint64(r.Base) < o.End() && uint64(o.Base) < r.End()
}

func (r Region) String() string {
	return fmt.Sprintf("%s[%s+0x%X %s]", r.Name, r.Base, r.Size, r.Policy)
}

// Bank hands out line-aligned buffers from a region, bottom up.
type Bank struct {
	Region
	next uint64
}

// NewBank creates an empty bank over r.
func NewBank(r Region) *Bank {
	return &Bank{Region: r}
}

// Used returns the number of bytes allocated so far.
func (b *Bank) Used() uint64 { return b.next }

// Alloc places a buffer of size logical bytes at the next free line.
func (b *Bank) Alloc(name string, size int) (*Buffer, error) {
	return b.AllocAt(name, size, b.next)
}

// AllocAt places a buffer at a fixed offset in the bank. The offset is
// rounded up to a line boundary.
func (b *Bank) AllocAt(name string, size int, offset uint64) (*Buffer, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%s: size %d: %w", name, size, ErrOutOfMemory)
	}
	offset = (offset + LineSize - 1) &^ (LineSize - 1)
	padded := PaddedSize(size)
	if offset+uint64(padded) > uint64(b.Size) {
		return nil, fmt.Errorf("%s: %d bytes at +0x%X in %s: %w", name, padded, offset, b.Name, ErrOutOfMemory)
	}
	buf := &Buffer{
		Name:   name,
		Base:   b.Base + Addr(offset),
		Size:   size,
		Region: b.Name,
		data:   alignedBytes(padded),
	}
	if end := offset + uint64(padded); end > b.next {
		b.next = end
	}
	return buf, nil
}

package memmap

import (
	"fmt"
	"unsafe"
)

// LineSize is the data cache line size. Every buffer base and backing size
// is a multiple of it.
const LineSize = 32

// Addr is a physical address on the target's 32-bit bus.
type Addr uint32

func (a Addr) String() string {
	return fmt.Sprintf("0x%08X", uint32(a))
}

// PixelFormat is the layout of pixel data held in a buffer.
type PixelFormat string

const (
	FormatRaw      PixelFormat = "raw"
	FormatRGB565   PixelFormat = "rgb565"
	FormatRGB888   PixelFormat = "rgb888"
	FormatGray8    PixelFormat = "gray8"
	FormatRGBA8888 PixelFormat = "rgba8888"
)

// BytesPerPixel returns the pixel stride, or 1 for raw data.
func (f PixelFormat) BytesPerPixel() int {
	switch f {
	case FormatRGB565:
		return 2
	case FormatRGB888:
		return 3
	case FormatRGBA8888:
		return 4
	default:
		return 1
	}
}

// PaddedSize returns the backing size for a buffer of n logical bytes.
// It always adds at least one byte and lands on the next line boundary, so
// an exactly line-sized tensor still gets a spare line.
func PaddedSize(n int) int {
	return n + LineSize - n%LineSize
}

// Buffer is one statically placed memory buffer.
type Buffer struct {
	Name   string
	Base   Addr
	Size   int
	Format PixelFormat
	Width  int
	Height int
	Region string

	// DMAShared marks buffers that a DMA engine reads or writes.
	DMAShared bool
	// Maintained marks DMA-shared buffers that sit in cacheable memory and
	// therefore need clean/invalidate at every ownership handover.
	Maintained bool

	data []byte
}

// Bytes returns the logical contents of the buffer.
func (b *Buffer) Bytes() []byte { return b.data[:b.Size] }

// Backing returns the whole padded allocation.
func (b *Buffer) Backing() []byte { return b.data }

// Padded returns the size of the backing allocation.
func (b *Buffer) Padded() int { return len(b.data) }

// End returns the first address past the padded allocation.
func (b *Buffer) End() uint64 { return uint64(b.Base) + uint64(len(b.data)) }

// Stride returns the number of bytes per row.
func (b *Buffer) Stride() int { return b.Width * b.Format.BytesPerPixel() }

// Zero clears the whole backing allocation.
func (b *Buffer) Zero() {
	clear(b.data)
}

// HostAligned reports whether the backing slice itself starts on a line.
func (b *Buffer) HostAligned() bool {
	if len(b.data) == 0 {
		return true
	}
	return uintptr(unsafe.Pointer(&b.data[0]))%LineSize == 0
}

func (b *Buffer) String() string {
	return fmt.Sprintf("%s@%s[%d/%d]", b.Name, b.Base, b.Size, len(b.data))
}

// NewBuffer allocates a detached, zeroed buffer of the given geometry. It is
// used for buffers that are not part of a Map, such as test fixtures.
func NewBuffer(name string, width, height int, format PixelFormat) *Buffer {
	size := width * height * format.BytesPerPixel()
	return &Buffer{
		Name:   name,
		Size:   size,
		Format: format,
		Width:  width,
		Height: height,
		data:   alignedBytes(PaddedSize(size)),
	}
}

// alignedBytes returns a zeroed slice whose first element is line aligned.
func alignedBytes(size int) []byte {
	if size == 0 {
		return nil
	}
	buf := make([]byte, size+LineSize-1)
	offset := 0
	if mod := uintptr(unsafe.Pointer(&buf[0])) % LineSize; mod != 0 {
		offset = LineSize - int(mod)
	}
	return buf[offset : offset+size : offset+size]
}

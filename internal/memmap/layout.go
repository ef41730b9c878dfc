package memmap

import (
	"fmt"
	"log"

	"github.com/inhies/go-bytesize"
)

// Buffer names used by the pipeline.
const (
	CaptureBuffer    = "capture"
	RescaledBuffer   = "rescaled"
	InputBuffer      = "nn-input"
	OutputBuffer     = "nn-output"
	ActivationBuffer = "activation"
	DisplayRead      = "lcd-read"
	DisplayWrite     = "lcd-write"
)

// BankSpec describes one physical memory bank.
type BankSpec struct {
	Name string
	Base Addr
	Size uint32
}

// LayoutSpec is everything Layout needs to place the pipeline buffers.
type LayoutSpec struct {
	Internal BankSpec
	External BankSpec
	// DisplayBankSize separates the two display framebuffers so that
	// scan-out and composition hit different SDRAM banks.
	DisplayBankSize uint32
	CacheMode       CacheMode

	CaptureWidth  int
	CaptureHeight int
	CaptureFormat PixelFormat

	InputWidth    int
	InputHeight   int
	InputFormat   PixelFormat
	InputElemSize int

	OutputSize     int
	ActivationSize int

	DisplayWidth  int
	DisplayHeight int
	DisplayFormat PixelFormat
}

// Map is the static memory layout of one pipeline instance.
type Map struct {
	Internal Region
	External Region

	Capture    *Buffer
	Rescaled   *Buffer
	Input      *Buffer
	Output     *Buffer
	Activation *Buffer
	// Display holds the two framebuffers, read buffer first.
	Display [2]*Buffer
}

// Layout places every pipeline buffer. CPU-only data goes to internal SRAM;
// buffers touched by DMA go to external memory.
func Layout(spec LayoutSpec) (*Map, error) {
	extPolicy, err := spec.CacheMode.Policy()
	if err != nil {
		return nil, err
	}

	m := &Map{
		Internal: Region{Name: spec.Internal.Name, Base: spec.Internal.Base, Size: spec.Internal.Size, Policy: InternalPolicy()},
		External: Region{Name: spec.External.Name, Base: spec.External.Base, Size: spec.External.Size, Policy: extPolicy},
	}

	internal := NewBank(m.Internal)
	external := NewBank(m.External)

	if m.Activation, err = internal.Alloc(ActivationBuffer, spec.ActivationSize); err != nil {
		return nil, err
	}
	m.Activation.Format = FormatRaw

	inputSize := spec.InputWidth * spec.InputHeight * spec.InputFormat.BytesPerPixel() * max(spec.InputElemSize, 1)
	if m.Input, err = internal.Alloc(InputBuffer, inputSize); err != nil {
		return nil, err
	}
	m.Input.Format, m.Input.Width, m.Input.Height = spec.InputFormat, spec.InputWidth, spec.InputHeight

	if m.Output, err = internal.Alloc(OutputBuffer, spec.OutputSize); err != nil {
		return nil, err
	}
	m.Output.Format = FormatRaw

	rescaledSize := spec.InputWidth * spec.InputHeight * spec.CaptureFormat.BytesPerPixel()
	if m.Rescaled, err = internal.Alloc(RescaledBuffer, rescaledSize); err != nil {
		return nil, err
	}
	m.Rescaled.Format, m.Rescaled.Width, m.Rescaled.Height = spec.CaptureFormat, spec.InputWidth, spec.InputHeight

	fbSize := spec.DisplayWidth * spec.DisplayHeight * spec.DisplayFormat.BytesPerPixel()
	bank := uint64(spec.DisplayBankSize)
	for i, name := range []string{DisplayRead, DisplayWrite} {
		fb, err := external.AllocAt(name, fbSize, uint64(i)*bank)
		if err != nil {
			return nil, err
		}
		fb.Format, fb.Width, fb.Height = spec.DisplayFormat, spec.DisplayWidth, spec.DisplayHeight
		m.Display[i] = fb
	}

	captureSize := spec.CaptureWidth * spec.CaptureHeight * spec.CaptureFormat.BytesPerPixel()
	if m.Capture, err = external.AllocAt(CaptureBuffer, captureSize, 2*bank); err != nil {
		return nil, err
	}
	m.Capture.Format, m.Capture.Width, m.Capture.Height = spec.CaptureFormat, spec.CaptureWidth, spec.CaptureHeight

	for _, b := range []*Buffer{m.Capture, m.Display[0], m.Display[1]} {
		b.DMAShared = true
		b.Maintained = extPolicy.IsCached()
	}

	if err := m.Validate(); err != nil {
		return nil, err
	}

	log.Printf("memmap: %s %s used of %s, %s %s used of %s (%s)",
		m.Internal.Name, bytesize.New(float64(internal.Used())), bytesize.New(float64(m.Internal.Size)),
		m.External.Name, bytesize.New(float64(external.Used())), bytesize.New(float64(m.External.Size)),
		spec.CacheMode)

	return m, nil
}

// Buffers returns every buffer in the map.
func (m *Map) Buffers() []*Buffer {
	return []*Buffer{m.Capture, m.Rescaled, m.Input, m.Output, m.Activation, m.Display[0], m.Display[1]}
}

// Regions returns the regions to program into the protection unit.
func (m *Map) Regions() []Region {
	return []Region{m.External, m.Internal}
}

// RegionOf returns the region holding b.
func (m *Map) RegionOf(b *Buffer) (Region, bool) {
	for _, r := range m.Regions() {
		if r.Name == b.Region && r.Contains(b.Base, uint64(b.Padded())) {
			return r, true
		}
	}
	return Region{}, false
}

// Validate checks alignment, containment, overlap and DMA coherency of the
// layout.
func (m *Map) Validate() error {
	regions := m.Regions()
	for i := range regions {
		for j := i + 1; j < len(regions); j++ {
			if regions[i].Overlaps(regions[j]) && regions[i].Policy != regions[j].Policy {
				return fmt.Errorf("%s and %s: %w", regions[i], regions[j], ErrOverlap)
			}
		}
	}

	bufs := m.Buffers()
	for i, b := range bufs {
		if b == nil {
			return fmt.Errorf("buffer %d not placed", i)
		}
		if uint32(b.Base)%LineSize != 0 || b.Padded()%LineSize != 0 || !b.HostAligned() {
			return fmt.Errorf("%s: %w", b, ErrMisaligned)
		}
		r, ok := m.RegionOf(b)
		if !ok {
			return fmt.Errorf("%s outside region %q: %w", b, b.Region, ErrOutOfMemory)
		}
		if b.DMAShared && r.Policy.IsCached() && !b.Maintained {
			return fmt.Errorf("%s in %s: %w", b, r, ErrUnmanaged)
		}
		for _, o := range bufs[i+1:] {
			if o != nil && uint64(b.Base) < o.End() && uint64(o.Base) < b.End() {
				return fmt.Errorf("%s and %s: %w", b, o, ErrOverlap)
			}
		}
	}
	return nil
}

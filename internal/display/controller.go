package display

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/draw"
	"log"
	"sync/atomic"

	"github.com/disintegration/imaging"

	"github.com/ayusman/framepipe/internal/handoff"
	"github.com/ayusman/framepipe/internal/memmap"
	"github.com/ayusman/framepipe/internal/preprocess"
)

// BandHeight is the height of the text band below the preview.
const BandHeight = 96

var (
	// ErrFramebuffer is returned for framebuffers the panel cannot show.
	ErrFramebuffer = errors.New("unsupported framebuffer")
	// ErrNothingWritten is returned by Present when no draw completed since
	// the last swap.
	ErrNothingWritten = errors.New("back buffer not written")
)

// Maintainer performs cache maintenance before a DMA engine reads a buffer.
type Maintainer interface {
	BeforeDMARead(b *memmap.Buffer)
}

type noMaintenance struct{}

func (noMaintenance) BeforeDMARead(*memmap.Buffer) {}

// Controller composes frames into the back buffer and hands them to the
// panel. It is driven from a single goroutine.
type Controller struct {
	pair  *FramebufferPair
	gate  *handoff.SwapGate
	panel Panel
	cache Maintainer

	width, height int
	preview       image.Rectangle
	scratch       *image.NRGBA

	presented atomic.Uint64
}

// NewController validates the framebuffers and returns a controller.
// cache may be nil when the framebuffers are never cached.
func NewController(fbs [2]*memmap.Buffer, gate *handoff.SwapGate, panel Panel, cache Maintainer) (*Controller, error) {
	for _, fb := range fbs {
		if fb == nil || fb.Format != memmap.FormatRGBA8888 {
			return nil, fmt.Errorf("display: %v: %w", fb, ErrFramebuffer)
		}
		if fb.Width != fbs[0].Width || fb.Height != fbs[0].Height {
			return nil, fmt.Errorf("display: %s and %s differ in size: %w", fbs[0], fb, ErrFramebuffer)
		}
	}
	if fbs[0] == fbs[1] || fbs[0].Base == fbs[1].Base {
		return nil, fmt.Errorf("display: framebuffers alias: %w", ErrFramebuffer)
	}
	if fbs[0].Height <= BandHeight {
		return nil, fmt.Errorf("display: %dpx too short for the result band: %w", fbs[0].Height, ErrFramebuffer)
	}
	if cache == nil {
		cache = noMaintenance{}
	}

	w, h := fbs[0].Width, fbs[0].Height
	return &Controller{
		pair:    NewFramebufferPair(fbs),
		gate:    gate,
		panel:   panel,
		cache:   cache,
		width:   w,
		height:  h,
		preview: image.Rect(0, 0, w, h-BandHeight),
	}, nil
}

// Init clears both framebuffers and starts scan-out of the front one.
func (c *Controller) Init() error {
	for _, fb := range c.pair.bufs {
		fb.Zero()
		c.cache.BeforeDMARead(fb)
	}
	c.gate.LCDSync().Reset()
	c.gate.Written().Reset()
	if err := c.panel.Show(c.pair.Front(), nil); err != nil {
		return fmt.Errorf("display: %w", err)
	}
	log.Printf("display: %dx%d, framebuffers %s and %s", c.width, c.height, c.pair.bufs[0].Base, c.pair.bufs[1].Base)
	return nil
}

// Pair exposes the framebuffer pair.
func (c *Controller) Pair() *FramebufferPair { return c.pair }

// Sync exposes the swap gate.
func (c *Controller) Sync() *handoff.SwapGate { return c.gate }

// Presented returns the number of swaps queued so far.
func (c *Controller) Presented() uint64 { return c.presented.Load() }

// canvas wraps the back buffer as an image. Callers must hold the back
// buffer through AcquireBack.
func (c *Controller) canvas() *image.RGBA {
	fb := c.pair.Back()
	return &image.RGBA{Pix: fb.Bytes(), Stride: fb.Stride(), Rect: image.Rect(0, 0, c.width, c.height)}
}

// DrawWelcome composes and shows the start-up screen.
func (c *Controller) DrawWelcome(ctx context.Context, lines ...string) error {
	if err := c.gate.AcquireBack(ctx); err != nil {
		return err
	}
	dst := c.canvas()
	draw.Draw(dst, dst.Rect, image.NewUniform(background), image.Point{}, draw.Src)
	y := c.height/2 - len(lines)*lineHeight/2
	for _, l := range lines {
		drawText(dst, (c.width-textWidth(l))/2, y, l, foreground)
		y += lineHeight
	}
	c.gate.Written().Set()
	return c.Present()
}

// DrawPreview copies the captured frame into the preview area of the back
// buffer, centered and shrunk to fit when needed.
func (c *Controller) DrawPreview(ctx context.Context, capture *memmap.Buffer) error {
	if err := c.gate.AcquireBack(ctx); err != nil {
		return err
	}
	img, err := preprocess.ToNRGBA(c.scratch, capture)
	if err != nil {
		return fmt.Errorf("preview: %w", err)
	}
	c.scratch = img

	var src image.Image = img
	if img.Rect.Dx() > c.preview.Dx() || img.Rect.Dy() > c.preview.Dy() {
		src = imaging.Fit(img, c.preview.Dx(), c.preview.Dy(), imaging.NearestNeighbor)
	}

	dst := c.canvas()
	draw.Draw(dst, c.preview, image.NewUniform(background), image.Point{}, draw.Src)
	b := src.Bounds()
	at := image.Pt(c.preview.Min.X+(c.preview.Dx()-b.Dx())/2, c.preview.Min.Y+(c.preview.Dy()-b.Dy())/2)
	draw.Draw(dst, image.Rectangle{Min: at, Max: at.Add(b.Size())}, src, b.Min, draw.Src)

	c.gate.Written().Set()
	return nil
}

// DrawResult renders the overlay into the text band of the back buffer.
func (c *Controller) DrawResult(o Overlay) error {
	band := image.Rect(0, c.height-BandHeight, c.width, c.height)
	o.draw(c.canvas(), band)
	c.gate.Written().Set()
	return nil
}

// Present queues the back buffer for scan-out. The swap completes when the
// panel reports the reload; the next draw waits for it.
func (c *Controller) Present() error {
	if !c.gate.Written().TryConsume() {
		return ErrNothingWritten
	}
	c.cache.BeforeDMARead(c.pair.Back())

	c.gate.LCDSync().Reset()
	c.gate.RequestSwap()
	front := c.pair.Swap()
	c.presented.Add(1)

	if err := c.panel.Show(front, func() { c.gate.LCDSync().Set() }); err != nil {
		return fmt.Errorf("display: %w", err)
	}
	return nil
}

// Latest returns a copy of the frame currently on the panel.
func (c *Controller) Latest() *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, c.width, c.height))
	c.pair.withFront(func(fb *memmap.Buffer) {
		copy(img.Pix, fb.Bytes())
	})
	return img
}

// Close shuts the panel down.
func (c *Controller) Close() error {
	return c.panel.Close()
}

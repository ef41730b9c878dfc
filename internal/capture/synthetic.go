package capture

import (
	"image"
	"image/color"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ayusman/framepipe/internal/handoff"
	"github.com/ayusman/framepipe/internal/memmap"
	"github.com/ayusman/framepipe/internal/preprocess"
)

// Pattern renders frame seq at the given size.
type Pattern func(seq, width, height int) image.Image

// Solid renders every frame in one color.
func Solid(c color.Color) Pattern {
	return func(_, width, height int) image.Image {
		return image.NewUniform(c)
	}
}

// Sequence cycles through the colors, one per frame.
func Sequence(colors ...color.Color) Pattern {
	return func(seq, width, height int) image.Image {
		return image.NewUniform(colors[seq%len(colors)])
	}
}

// Gradient renders a horizontal red ramp and a vertical green ramp, with
// blue rising with the frame number.
func Gradient() Pattern {
	return func(seq, width, height int) image.Image {
		img := image.NewNRGBA(image.Rect(0, 0, width, height))
		for y := 0; y < height; y++ {
			for x := 0; x < width; x++ {
				img.SetNRGBA(x, y, color.NRGBA{
					R: uint8(x * 255 / max(width-1, 1)),
					G: uint8(y * 255 / max(height-1, 1)),
					B: uint8(seq * 16),
					A: 0xff,
				})
			}
		}
		return img
	}
}

// Frames plays back still images in order, looping.
func Frames(imgs ...image.Image) Pattern {
	return func(seq, width, height int) image.Image {
		return imgs[seq%len(imgs)]
	}
}

// SyntheticCamera produces deterministic frames without a device. Fills
// run on their own goroutine like a real capture.
type SyntheticCamera struct {
	pattern Pattern
	cfg     Config
	cycle   *handoff.CaptureCycle

	mu       sync.Mutex
	running  bool
	delay    time.Duration
	stall    bool
	doubles  int
	fillHook func(seq int)
	err      error
	wg       sync.WaitGroup

	acquisitions atomic.Int64
}

// NewSyntheticCamera returns a camera rendering p.
func NewSyntheticCamera(p Pattern) *SyntheticCamera {
	return &SyntheticCamera{pattern: p}
}

// SetDelay sets how long each fill takes.
func (c *SyntheticCamera) SetDelay(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.delay = d
}

// SetStall makes subsequent acquisitions never complete.
func (c *SyntheticCamera) SetStall(stall bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stall = stall
}

// DoubleComplete makes the next n acquisitions signal completion twice.
func (c *SyntheticCamera) DoubleComplete(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.doubles = n
}

// OnFill registers a hook called from the fill goroutine once the frame
// is written and before completion is signalled.
func (c *SyntheticCamera) OnFill(fn func(seq int)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fillHook = fn
}

// Init implements Driver.
func (c *SyntheticCamera) Init(cfg Config, cycle *handoff.CaptureCycle) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cfg = cfg
	c.cycle = cycle
	c.running = true
	return nil
}

// StartAcquisition implements Driver.
func (c *SyntheticCamera) StartAcquisition(buf *memmap.Buffer) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.running {
		return ErrCameraNotOpen
	}
	if err := checkBuffer(c.cfg, buf); err != nil {
		return err
	}
	if err := c.cycle.Begin(); err != nil {
		return err
	}

	seq := int(c.acquisitions.Add(1)) - 1
	if c.stall {
		return nil
	}
	double := c.doubles > 0
	if double {
		c.doubles--
	}

	c.wg.Add(1)
	go c.fill(buf, seq, c.delay, double, c.fillHook)
	return nil
}

func (c *SyntheticCamera) fill(buf *memmap.Buffer, seq int, delay time.Duration, double bool, hook func(int)) {
	defer c.wg.Done()
	if delay > 0 {
		time.Sleep(delay)
	}

	img := c.pattern(seq, c.cfg.Width, c.cfg.Height)
	if u, ok := img.(*image.Uniform); ok {
		r, g, b, _ := u.RGBA()
		preprocess.FillRGB565(buf, color.RGBA{R: uint8(r >> 8), G: uint8(g >> 8), B: uint8(b >> 8), A: 0xff})
	} else if err := preprocess.FromImage(buf, Orient(img, c.cfg.MirrorFlip)); err != nil {
		c.mu.Lock()
		c.err = err
		c.mu.Unlock()
		c.cycle.Abort()
		return
	}

	if hook != nil {
		hook(seq)
	}
	// Both signals land before the next acquisition can be started, as a
	// repeated interrupt would.
	c.mu.Lock()
	c.cycle.Complete()
	if double {
		c.cycle.Complete()
	}
	c.mu.Unlock()
}

// Acquisitions returns how many acquisitions were started.
func (c *SyntheticCamera) Acquisitions() int {
	return int(c.acquisitions.Load())
}

// Err implements Driver. Fills fail only when a pattern image does not
// match the sensor geometry.
func (c *SyntheticCamera) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Close waits for fills in flight and stops the camera.
func (c *SyntheticCamera) Close() error {
	c.wg.Wait()
	c.mu.Lock()
	defer c.mu.Unlock()
	c.running = false
	return nil
}

// IsOpen implements Driver.
func (c *SyntheticCamera) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

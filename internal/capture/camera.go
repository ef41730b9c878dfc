// Package capture provides the camera drivers. A driver fills the capture
// buffer in the background, the way the sensor's DMA would, and reports
// completion through a handoff.CaptureCycle.
package capture

import (
	"errors"
	"fmt"
	"image"
	"log"
	"sync"

	"github.com/anthonynsimon/bild/transform"
	"gocv.io/x/gocv"

	"github.com/ayusman/framepipe/internal/config"
	"github.com/ayusman/framepipe/internal/handoff"
	"github.com/ayusman/framepipe/internal/memmap"
	"github.com/ayusman/framepipe/internal/preprocess"
)

// DefaultFPS is the requested sensor frame rate.
const DefaultFPS = 15

var (
	// ErrCameraNotOpen is returned when acquiring from a camera that is not open.
	ErrCameraNotOpen = errors.New("camera is not open")
	// ErrBufferMismatch is returned when the capture buffer does not match
	// the sensor output.
	ErrBufferMismatch = errors.New("capture buffer does not match sensor")
)

// Config is the sensor output the driver must produce.
type Config struct {
	Width      int
	Height     int
	MirrorFlip config.MirrorFlip
	FPS        int
}

// Driver is a camera that captures into a caller-owned buffer.
type Driver interface {
	// Init opens the sensor. Completions are reported on cycle.
	Init(cfg Config, cycle *handoff.CaptureCycle) error
	// StartAcquisition hands buf to the sensor and returns immediately.
	StartAcquisition(buf *memmap.Buffer) error
	// Err returns the last background capture failure, if any.
	Err() error
	Close() error
	IsOpen() bool
}

func checkBuffer(cfg Config, buf *memmap.Buffer) error {
	if buf.Format != memmap.FormatRGB565 || buf.Width != cfg.Width || buf.Height != cfg.Height {
		return fmt.Errorf("%s %dx%d %s for %dx%d sensor: %w",
			buf.Name, buf.Width, buf.Height, buf.Format, cfg.Width, cfg.Height, ErrBufferMismatch)
	}
	return nil
}

// Orient applies the sensor readout orientation to a frame.
func Orient(img image.Image, mf config.MirrorFlip) image.Image {
	switch mf {
	case config.OrientMirror:
		return transform.FlipH(img)
	case config.OrientFlip:
		return transform.FlipV(img)
	case config.OrientMirrorFlip:
		return transform.FlipV(transform.FlipH(img))
	default:
		return img
	}
}

// source is the part of gocv.VideoCapture the camera drives.
type source interface {
	Set(prop gocv.VideoCaptureProperties, param float64)
	Read(m *gocv.Mat) bool
	Close() error
}

func openDevice(id int) (source, error) {
	return gocv.OpenVideoCapture(id)
}

// OpenCVCamera captures from a local video device.
type OpenCVCamera struct {
	deviceID int
	open     func(id int) (source, error)
	capture  source
	cfg      Config
	cycle    *handoff.CaptureCycle

	mu      sync.Mutex
	running bool
	err     error
	fills   sync.WaitGroup
	// frame and resized are only touched by the fill goroutine; the cycle
	// guarantees a single fill in flight.
	frame   gocv.Mat
	resized gocv.Mat
}

// NewOpenCVCamera returns a camera for the given device ID.
func NewOpenCVCamera(deviceID int) *OpenCVCamera {
	return &OpenCVCamera{deviceID: deviceID, open: openDevice}
}

// Init opens the device and requests the sensor geometry.
func (c *OpenCVCamera) Init(cfg Config, cycle *handoff.CaptureCycle) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running {
		return nil
	}
	if cfg.FPS <= 0 {
		cfg.FPS = DefaultFPS
	}

	capture, err := c.open(c.deviceID)
	if err != nil {
		return fmt.Errorf("open camera %d: %w", c.deviceID, err)
	}

	capture.Set(gocv.VideoCaptureFrameWidth, float64(cfg.Width))
	capture.Set(gocv.VideoCaptureFrameHeight, float64(cfg.Height))
	capture.Set(gocv.VideoCaptureFPS, float64(cfg.FPS))

	c.capture = capture
	c.cfg = cfg
	c.cycle = cycle
	c.frame = gocv.NewMat()
	c.resized = gocv.NewMat()
	c.running = true

	log.Printf("capture: camera %d open, %dx%d at %d fps, %s", c.deviceID, cfg.Width, cfg.Height, cfg.FPS, cfg.MirrorFlip)
	return nil
}

// StartAcquisition implements Driver.
func (c *OpenCVCamera) StartAcquisition(buf *memmap.Buffer) error {
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

	c.fills.Add(1)
	go c.fill(buf)
	return nil
}

func (c *OpenCVCamera) fill(buf *memmap.Buffer) {
	defer c.fills.Done()
	if err := c.grab(buf); err != nil {
		c.mu.Lock()
		c.err = err
		c.mu.Unlock()
		log.Printf("capture: %v", err)
		c.cycle.Abort()
		return
	}
	c.cycle.Complete()
}

func (c *OpenCVCamera) grab(buf *memmap.Buffer) error {
	c.mu.Lock()
	capture := c.capture
	c.mu.Unlock()
	if capture == nil {
		return ErrCameraNotOpen
	}

	if ok := capture.Read(&c.frame); !ok || c.frame.Empty() {
		return errors.New("failed to read frame from camera")
	}

	src := c.frame
	if c.frame.Cols() != c.cfg.Width || c.frame.Rows() != c.cfg.Height {
		gocv.Resize(c.frame, &c.resized, image.Pt(c.cfg.Width, c.cfg.Height), 0, 0, gocv.InterpolationLinear)
		src = c.resized
	}

	img, err := src.ToImage()
	if err != nil {
		return fmt.Errorf("convert frame: %w", err)
	}
	return preprocess.FromImage(buf, Orient(img, c.cfg.MirrorFlip))
}

// Err implements Driver.
func (c *OpenCVCamera) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Close stops new acquisitions, waits for the one in flight to finish
// reading and then releases the device.
func (c *OpenCVCamera) Close() error {
	c.mu.Lock()
	wasOpen := c.running && c.capture != nil
	c.running = false
	c.mu.Unlock()
	if !wasOpen {
		return nil
	}

	c.fills.Wait()

	c.mu.Lock()
	defer c.mu.Unlock()
	err := c.capture.Close()
	c.capture = nil
	c.frame.Close()
	c.resized.Close()
	return err
}

// IsOpen implements Driver.
func (c *OpenCVCamera) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

package preprocess

import (
	"fmt"

	"gocv.io/x/gocv"

	"github.com/ayusman/framepipe/internal/config"
	"github.com/ayusman/framepipe/internal/memmap"
)

// HardwareConverter offloads the pixel-format conversion to OpenCV. Like a
// 2D graphics accelerator writing RGB888 it leaves the blue byte first in
// memory.
type HardwareConverter struct {
	out gocv.Mat
}

// NewHardwareConverter returns a converter; Close releases its buffers.
func NewHardwareConverter() *HardwareConverter {
	return &HardwareConverter{out: gocv.NewMat()}
}

// Convert implements Converter.
func (c *HardwareConverter) Convert(dst []byte, src *memmap.Buffer) error {
	if src.Format != memmap.FormatRGB565 {
		return fmt.Errorf("convert %s: %w", src.Format, ErrFormat)
	}
	if len(dst) != src.Width*src.Height*3 {
		return fmt.Errorf("convert %dx%d into %d bytes: %w", src.Width, src.Height, len(dst), ErrGeometry)
	}

	in, err := gocv.NewMatFromBytes(src.Height, src.Width, gocv.MatTypeCV8UC2, src.Bytes())
	if err != nil {
		return fmt.Errorf("convert: %w", err)
	}
	defer in.Close()

	gocv.CvtColor(in, &c.out, gocv.ColorBGR5652BGR)
	copy(dst, c.out.ToBytes())
	return nil
}

// Order implements Converter.
func (c *HardwareConverter) Order() config.ColorMode { return config.ColorBGR }

// Name implements Converter.
func (c *HardwareConverter) Name() string { return string(config.PathHardware) }

// Close releases the OpenCV buffers.
func (c *HardwareConverter) Close() error {
	return c.out.Close()
}

package preprocess

import (
	"fmt"

	"github.com/ayusman/framepipe/internal/config"
	"github.com/ayusman/framepipe/internal/memmap"
)

// Converter expands an RGB565 frame into packed 8-bit channels.
type Converter interface {
	// Convert writes src into dst, one byte per channel.
	Convert(dst []byte, src *memmap.Buffer) error
	// Order is the channel order Convert produces in memory.
	Order() config.ColorMode
	Name() string
}

// SoftwareConverter converts on the CPU. It produces RGB, or luma when
// Grayscale is set.
type SoftwareConverter struct {
	Grayscale bool
}

// Convert implements Converter.
func (c SoftwareConverter) Convert(dst []byte, src *memmap.Buffer) error {
	if src.Format != memmap.FormatRGB565 {
		return fmt.Errorf("convert %s: %w", src.Format, ErrFormat)
	}
	pix := src.Bytes()
	n := len(pix) / 2
	channels := 3
	if c.Grayscale {
		channels = 1
	}
	if len(dst) != n*channels {
		return fmt.Errorf("convert %d pixels into %d bytes: %w", n, len(dst), ErrGeometry)
	}

	for i, o := 0, 0; i+1 < len(pix); i += 2 {
		r, g, b := DecodeRGB565(pix[i], pix[i+1])
		if c.Grayscale {
			dst[o] = Gray(r, g, b)
			o++
			continue
		}
		dst[o], dst[o+1], dst[o+2] = r, g, b
		o += 3
	}
	return nil
}

// Order implements Converter.
func (c SoftwareConverter) Order() config.ColorMode {
	if c.Grayscale {
		return config.ColorGrayscale
	}
	return config.ColorRGB
}

// Name implements Converter.
func (c SoftwareConverter) Name() string { return string(config.PathSoftware) }

package preprocess

import (
	"fmt"
	"io"

	"github.com/ayusman/framepipe/internal/config"
	"github.com/ayusman/framepipe/internal/memmap"
	"github.com/ayusman/framepipe/internal/quant"
)

// Config selects the preprocessing path. It is fixed for the life of the
// pipeline.
type Config struct {
	PixelPath config.PixelPath
	ColorMode config.ColorMode
	LUT       *quant.LUT
}

// Preprocessor converts a captured frame into the network input tensor.
type Preprocessor struct {
	rescaler  Rescaler
	converter Converter
	lut       *quant.LUT
	swap      bool
}

// New builds a preprocessor for the given path and color mode.
func New(cfg Config) (*Preprocessor, error) {
	if cfg.LUT == nil {
		return nil, fmt.Errorf("preprocess: lookup table required")
	}

	var conv Converter
	switch cfg.PixelPath {
	case config.PathSoftware:
		conv = SoftwareConverter{Grayscale: cfg.ColorMode == config.ColorGrayscale}
	case config.PathHardware:
		if cfg.ColorMode == config.ColorGrayscale {
			return nil, fmt.Errorf("preprocess: grayscale on %s path: %w", cfg.PixelPath, ErrFormat)
		}
		conv = NewHardwareConverter()
	default:
		return nil, fmt.Errorf("preprocess: unknown pixel path %q", cfg.PixelPath)
	}

	return NewWith(NewNearestRescaler(), conv, cfg.ColorMode, cfg.LUT), nil
}

// NewWith assembles a preprocessor from explicit stages.
func NewWith(r Rescaler, c Converter, mode config.ColorMode, lut *quant.LUT) *Preprocessor {
	return &Preprocessor{
		rescaler:  r,
		converter: c,
		lut:       lut,
		swap:      mode != config.ColorGrayscale && c.Order() != mode,
	}
}

// RedBlueSwap reports whether the converter's channel order differs from
// the network's.
func (p *Preprocessor) RedBlueSwap() bool { return p.swap }

// Path names the active conversion path.
func (p *Preprocessor) Path() string { return p.converter.Name() }

// Run rescales capture into rescaled, then converts, reorders and
// quantizes rescaled into input. Only the CPU touches rescaled and input.
func (p *Preprocessor) Run(capture, rescaled, input *memmap.Buffer) error {
	if rescaled.Width != input.Width || rescaled.Height != input.Height {
		return fmt.Errorf("rescaled %dx%d, input %dx%d: %w", rescaled.Width, rescaled.Height, input.Width, input.Height, ErrGeometry)
	}
	if err := p.rescaler.Rescale(rescaled, capture); err != nil {
		return fmt.Errorf("rescale: %w", err)
	}

	dst := input.Bytes()
	if err := p.converter.Convert(dst, rescaled); err != nil {
		return fmt.Errorf("convert: %w", err)
	}
	if p.swap {
		SwapRedBlue(dst)
	}
	for i, v := range dst {
		dst[i] = p.lut[v]
	}
	return nil
}

// Close releases converter resources.
func (p *Preprocessor) Close() error {
	if c, ok := p.converter.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

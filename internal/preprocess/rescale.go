package preprocess

import (
	"errors"
	"fmt"
	"image"

	"github.com/disintegration/imaging"

	"github.com/ayusman/framepipe/internal/memmap"
)

var (
	// ErrFormat is returned when a buffer holds an unexpected pixel format.
	ErrFormat = errors.New("unsupported pixel format")
	// ErrGeometry is returned when buffer dimensions do not match.
	ErrGeometry = errors.New("buffer geometry mismatch")
)

// Rescaler resamples a capture-format frame to the network geometry. src
// and dst share a pixel format; dst's dimensions select the output size.
type Rescaler interface {
	Rescale(dst, src *memmap.Buffer) error
}

// NearestRescaler resamples with nearest-neighbour sampling, so every
// output pixel is an unmodified input pixel.
type NearestRescaler struct {
	scratch *image.NRGBA
}

// NewNearestRescaler returns a nearest-neighbour rescaler.
func NewNearestRescaler() *NearestRescaler {
	return &NearestRescaler{}
}

// Rescale implements Rescaler.
func (r *NearestRescaler) Rescale(dst, src *memmap.Buffer) error {
	if src.Format != dst.Format {
		return fmt.Errorf("rescale %s to %s: %w", src.Format, dst.Format, ErrFormat)
	}
	if dst.Width <= 0 || dst.Height <= 0 || dst.Width > src.Width || dst.Height > src.Height {
		return fmt.Errorf("rescale %dx%d to %dx%d: %w", src.Width, src.Height, dst.Width, dst.Height, ErrGeometry)
	}

	img, err := ToNRGBA(r.scratch, src)
	if err != nil {
		return err
	}
	r.scratch = img

	return FromImage(dst, imaging.Resize(img, dst.Width, dst.Height, imaging.NearestNeighbor))
}

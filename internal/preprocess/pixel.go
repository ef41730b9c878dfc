// Package preprocess turns a captured frame into the network input tensor:
// rescale to the network geometry, convert the pixel format, swap the
// color order if needed and quantize through a lookup table.
package preprocess

import (
	"fmt"
	"image"
	"image/color"

	"github.com/ayusman/framepipe/internal/memmap"
)

// DecodeRGB565 expands a little-endian RGB565 pixel to 8 bits per channel.
func DecodeRGB565(lo, hi byte) (r, g, b uint8) {
	v := uint16(lo) | uint16(hi)<<8
	r5 := uint8(v >> 11)
	g6 := uint8(v>>5) & 0x3f
	b5 := uint8(v) & 0x1f
	return r5<<3 | r5>>2, g6<<2 | g6>>4, b5<<3 | b5>>2
}

// EncodeRGB565 packs an 8-bit color into a little-endian RGB565 pixel.
func EncodeRGB565(r, g, b uint8) (lo, hi byte) {
	v := uint16(r>>3)<<11 | uint16(g>>2)<<5 | uint16(b>>3)
	return byte(v), byte(v >> 8)
}

// Gray returns the ITU-R BT.601 luma of an 8-bit color.
func Gray(r, g, b uint8) uint8 {
	return uint8((299*uint32(r) + 587*uint32(g) + 114*uint32(b) + 500) / 1000)
}

// SwapRedBlue exchanges the first and third byte of every packed 3-byte
// pixel in place.
func SwapRedBlue(pix []byte) {
	for i := 0; i+2 < len(pix); i += 3 {
		pix[i], pix[i+2] = pix[i+2], pix[i]
	}
}

// FillRGB565 paints every pixel of an RGB565 buffer with one color.
func FillRGB565(buf *memmap.Buffer, c color.RGBA) {
	lo, hi := EncodeRGB565(c.R, c.G, c.B)
	pix := buf.Bytes()
	for i := 0; i+1 < len(pix); i += 2 {
		pix[i], pix[i+1] = lo, hi
	}
}

// ToNRGBA expands an RGB565 buffer into an image. dst is reused when it has
// the right bounds.
func ToNRGBA(dst *image.NRGBA, src *memmap.Buffer) (*image.NRGBA, error) {
	if src.Format != memmap.FormatRGB565 {
		return nil, fmt.Errorf("%s is %s: %w", src.Name, src.Format, ErrFormat)
	}
	bounds := image.Rect(0, 0, src.Width, src.Height)
	if dst == nil || dst.Rect != bounds {
		dst = image.NewNRGBA(bounds)
	}
	pix := src.Bytes()
	for i, o := 0, 0; i+1 < len(pix); i, o = i+2, o+4 {
		r, g, b := DecodeRGB565(pix[i], pix[i+1])
		dst.Pix[o], dst.Pix[o+1], dst.Pix[o+2], dst.Pix[o+3] = r, g, b, 0xff
	}
	return dst, nil
}

// FromImage packs an image of the buffer's geometry into an RGB565 buffer.
func FromImage(dst *memmap.Buffer, img image.Image) error {
	if dst.Format != memmap.FormatRGB565 {
		return fmt.Errorf("%s is %s: %w", dst.Name, dst.Format, ErrFormat)
	}
	b := img.Bounds()
	if b.Dx() != dst.Width || b.Dy() != dst.Height {
		return fmt.Errorf("%dx%d image into %s (%dx%d): %w", b.Dx(), b.Dy(), dst.Name, dst.Width, dst.Height, ErrGeometry)
	}

	pix := dst.Bytes()
	var rgba []byte
	stride := 0
	switch m := img.(type) {
	case *image.NRGBA:
		rgba, stride = m.Pix, m.Stride
	case *image.RGBA:
		// Opaque frames only; alpha is ignored.
		rgba, stride = m.Pix, m.Stride
	}
	if rgba != nil {
		o := 0
		for y := 0; y < dst.Height; y++ {
			row := rgba[y*stride : y*stride+dst.Width*4]
			for x := 0; x < len(row); x += 4 {
				pix[o], pix[o+1] = EncodeRGB565(row[x], row[x+1], row[x+2])
				o += 2
			}
		}
		return nil
	}

	o := 0
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			c := color.RGBAModel.Convert(img.At(x, y)).(color.RGBA)
			pix[o], pix[o+1] = EncodeRGB565(c.R, c.G, c.B)
			o += 2
		}
	}
	return nil
}

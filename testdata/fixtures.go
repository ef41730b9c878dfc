// Package testdata generates deterministic camera frames for tests.
package testdata

import (
	"image"
	"image/color"
	"image/draw"
)

// Bars are the colors of ColorBars, left to right.
var Bars = []color.RGBA{
	{R: 0xff, G: 0xff, B: 0xff, A: 0xff},
	{R: 0xff, G: 0xff, B: 0x00, A: 0xff},
	{R: 0x00, G: 0xff, B: 0xff, A: 0xff},
	{R: 0x00, G: 0xff, B: 0x00, A: 0xff},
	{R: 0xff, G: 0x00, B: 0xff, A: 0xff},
	{R: 0xff, G: 0x00, B: 0x00, A: 0xff},
	{R: 0x00, G: 0x00, B: 0xff, A: 0xff},
	{R: 0x00, G: 0x00, B: 0x00, A: 0xff},
}

// ColorBars renders eight vertical bars of equal width.
func ColorBars(width, height int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for i, c := range Bars {
		x0 := i * width / len(Bars)
		x1 := (i + 1) * width / len(Bars)
		draw.Draw(img, image.Rect(x0, 0, x1, height), image.NewUniform(c), image.Point{}, draw.Src)
	}
	return img
}

// Checkerboard renders cell sized squares alternating between a and b,
// starting with a in the top left corner.
func Checkerboard(width, height, cell int, a, b color.Color) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			c := a
			if (x/cell+y/cell)%2 == 1 {
				c = b
			}
			img.Set(x, y, c)
		}
	}
	return img
}

// Sequence returns n frames that each differ from the previous one: color
// bars shifted right by one bar per frame.
func Sequence(width, height, n int) []image.Image {
	frames := make([]image.Image, n)
	bar := width / len(Bars)
	for i := range frames {
		src := ColorBars(width, height)
		dst := image.NewNRGBA(src.Rect)
		shift := (i * bar) % width
		draw.Draw(dst, image.Rect(shift, 0, width, height), src, image.Point{}, draw.Src)
		draw.Draw(dst, image.Rect(0, 0, shift, height), src, image.Pt(width-shift, 0), draw.Src)
		frames[i] = dst
	}
	return frames
}

package testdata

import (
	"image/color"
	"testing"
)

func TestColorBars(t *testing.T) {
	img := ColorBars(80, 10)
	for i, want := range Bars {
		x := i*10 + 5
		if got := img.NRGBAAt(x, 5); got != (color.NRGBA(want)) {
			t.Errorf("bar %d at x=%d = %v, want %v", i, x, got, want)
		}
	}
}

func TestCheckerboard(t *testing.T) {
	black := color.NRGBA{A: 0xff}
	white := color.NRGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff}
	img := Checkerboard(8, 8, 2, black, white)

	tests := []struct {
		x, y int
		want color.NRGBA
	}{
		{0, 0, black},
		{2, 0, white},
		{0, 2, white},
		{3, 3, black},
	}
	for _, tt := range tests {
		if got := img.NRGBAAt(tt.x, tt.y); got != tt.want {
			t.Errorf("(%d,%d) = %v, want %v", tt.x, tt.y, got, tt.want)
		}
	}
}

func TestSequence(t *testing.T) {
	frames := Sequence(80, 4, 3)
	if len(frames) != 3 {
		t.Fatalf("len = %d, want 3", len(frames))
	}
	// Frame i shows bar 0 starting at x = 10*i.
	for i, f := range frames {
		r, g, b, _ := f.At(10*i+1, 0).RGBA()
		if r>>8 != 0xff || g>>8 != 0xff || b>>8 != 0xff {
			t.Errorf("frame %d: bar 0 not at x=%d", i, 10*i)
		}
	}
}

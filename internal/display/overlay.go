package display

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"time"

	"github.com/lucasb-eyer/go-colorful"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

const (
	glyphWidth = 7
	lineHeight = 16
	barHeight  = 10
)

var (
	background = color.RGBA{A: 0xff}
	foreground = color.RGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff}

	lowConfidence  = colorful.Color{R: 0.86, G: 0.16, B: 0.16}
	highConfidence = colorful.Color{R: 0.18, G: 0.80, B: 0.34}
)

// Overlay is what the result band shows for one frame.
type Overlay struct {
	Label     string
	Score     float32
	Inference time.Duration
	FPS       float64
	Frame     uint64
}

// ScoreColor blends from red to green with confidence.
func ScoreColor(score float32) color.Color {
	s := min(max(float64(score), 0), 1)
	return lowConfidence.BlendLab(highConfidence, s).Clamped()
}

func (o Overlay) draw(dst *image.RGBA, band image.Rectangle) {
	draw.Draw(dst, band, image.NewUniform(background), image.Point{}, draw.Src)

	x := band.Min.X + 8
	y := band.Min.Y + lineHeight
	drawText(dst, x, y, fmt.Sprintf("%s  %.1f%%", o.Label, o.Score*100), foreground)

	y += 6
	full := band.Dx() - 16
	bar := image.Rect(x, y, x+int(float32(full)*min(max(o.Score, 0), 1)), y+barHeight)
	draw.Draw(dst, bar, image.NewUniform(ScoreColor(o.Score)), image.Point{}, draw.Src)

	y += barHeight + lineHeight
	drawText(dst, x, y, fmt.Sprintf("inference %d ms", o.Inference.Milliseconds()), foreground)
	y += lineHeight
	drawText(dst, x, y, fmt.Sprintf("%.1f fps  frame %d", o.FPS, o.Frame), foreground)
}

func drawText(dst *image.RGBA, x, y int, s string, c color.Color) {
	d := &font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(c),
		Face: basicfont.Face7x13,
		Dot:  fixed.Point26_6{X: fixed.I(x), Y: fixed.I(y)},
	}
	d.DrawString(s)
}

func textWidth(s string) int {
	return len(s) * glyphWidth
}

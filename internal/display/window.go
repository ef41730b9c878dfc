package display

import (
	"fmt"

	"gocv.io/x/gocv"

	"github.com/ayusman/framepipe/internal/memmap"
)

// WindowPanel shows frames in a desktop window.
type WindowPanel struct {
	window *gocv.Window
	bgr    gocv.Mat
}

// NewWindowPanel opens a window with the given title.
func NewWindowPanel(title string) *WindowPanel {
	return &WindowPanel{
		window: gocv.NewWindow(title),
		bgr:    gocv.NewMat(),
	}
}

// Show implements Panel. The window copies the pixels, so the reload is
// immediate.
func (p *WindowPanel) Show(fb *memmap.Buffer, reloaded func()) error {
	if fb.Format != memmap.FormatRGBA8888 {
		return fmt.Errorf("window: %s framebuffer", fb.Format)
	}
	rgba, err := gocv.NewMatFromBytes(fb.Height, fb.Width, gocv.MatTypeCV8UC4, fb.Bytes())
	if err != nil {
		return fmt.Errorf("window: %w", err)
	}
	defer rgba.Close()

	gocv.CvtColor(rgba, &p.bgr, gocv.ColorRGBAToBGR)
	p.window.IMShow(p.bgr)
	p.window.WaitKey(1)

	if reloaded != nil {
		reloaded()
	}
	return nil
}

// Close closes the window.
func (p *WindowPanel) Close() error {
	p.bgr.Close()
	return p.window.Close()
}

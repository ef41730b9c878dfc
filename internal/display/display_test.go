package display

import (
	"context"
	"errors"
	"image/color"
	"testing"
	"time"

	"github.com/ayusman/framepipe/internal/handoff"
	"github.com/ayusman/framepipe/internal/memmap"
	"github.com/ayusman/framepipe/internal/preprocess"
)

type countingCache struct{ cleaned []string }

func (c *countingCache) BeforeDMARead(b *memmap.Buffer) { c.cleaned = append(c.cleaned, b.Name) }

func testFramebuffers(w, h int) [2]*memmap.Buffer {
	a := memmap.NewBuffer(memmap.DisplayRead, w, h, memmap.FormatRGBA8888)
	b := memmap.NewBuffer(memmap.DisplayWrite, w, h, memmap.FormatRGBA8888)
	b.Base = 0x800000
	return [2]*memmap.Buffer{a, b}
}

func newTestController(t *testing.T, blank time.Duration) (*Controller, *HeadlessPanel, *countingCache) {
	t.Helper()
	panel := NewHeadlessPanel(blank)
	cache := &countingCache{}
	c, err := NewController(testFramebuffers(160, 200), handoff.NewSwapGate(), panel, cache)
	if err != nil {
		t.Fatalf("NewController() error = %v", err)
	}
	if err := c.Init(); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c, panel, cache
}

func TestFramebufferPair_Swap(t *testing.T) {
	fbs := testFramebuffers(4, 4)
	p := NewFramebufferPair(fbs)

	if p.Front() != fbs[0] || p.Back() != fbs[1] {
		t.Fatal("initial front should be the read buffer")
	}
	for i := 0; i < 4; i++ {
		front := p.Swap()
		if front == p.Back() {
			t.Fatalf("swap %d: front and back are the same buffer", i)
		}
		if front != p.Front() {
			t.Fatalf("swap %d: Swap() returned %s, Front() is %s", i, front, p.Front())
		}
	}
}

func TestNewController_Errors(t *testing.T) {
	gate := handoff.NewSwapGate()
	panel := NewHeadlessPanel(0)

	same := memmap.NewBuffer("fb", 160, 200, memmap.FormatRGBA8888)
	short := testFramebuffers(160, 50)
	wrong := testFramebuffers(160, 200)
	wrong[1] = memmap.NewBuffer("fb", 160, 200, memmap.FormatRGB565)

	tests := []struct {
		name string
		fbs  [2]*memmap.Buffer
	}{
		{"aliased", [2]*memmap.Buffer{same, same}},
		{"too short", short},
		{"wrong format", wrong},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewController(tt.fbs, gate, panel, nil); !errors.Is(err, ErrFramebuffer) {
				t.Errorf("NewController() error = %v, want ErrFramebuffer", err)
			}
		})
	}
}

func TestController_PreviewAndPresent(t *testing.T) {
	c, panel, cache := newTestController(t, 0)
	ctx := context.Background()

	capture := memmap.NewBuffer(memmap.CaptureBuffer, 32, 24, memmap.FormatRGB565)
	preprocess.FillRGB565(capture, color.RGBA{R: 255, A: 255})

	back := c.Pair().Back()
	if err := c.DrawPreview(ctx, capture); err != nil {
		t.Fatalf("DrawPreview() error = %v", err)
	}
	if err := c.DrawResult(Overlay{Label: "Pizza", Score: 0.9, Inference: 40 * time.Millisecond, FPS: 12.5, Frame: 1}); err != nil {
		t.Fatalf("DrawResult() error = %v", err)
	}
	if err := c.Present(); err != nil {
		t.Fatalf("Present() error = %v", err)
	}

	if c.Pair().Front() != back {
		t.Error("the composed buffer should now be in front")
	}
	if n, last := panel.Shown(); n != 2 || last != back {
		t.Errorf("panel shown %d frames, last %v", n, last)
	}
	if cache.cleaned[len(cache.cleaned)-1] != back.Name {
		t.Errorf("back buffer %s not cleaned before scan-out, cleaned %v", back.Name, cache.cleaned)
	}

	// Preview area is 160x104; the 32x24 capture is centered in it.
	img := c.Latest()
	if got := img.RGBAAt(80, 52); got.R != 255 || got.G != 0 || got.B != 0 {
		t.Errorf("preview center = %v, want red", got)
	}
	if got := img.RGBAAt(2, 2); got.R != 0 {
		t.Errorf("outside preview = %v, want background", got)
	}
}

func TestController_PresentRequiresDraw(t *testing.T) {
	c, _, _ := newTestController(t, 0)
	if err := c.Present(); !errors.Is(err, ErrNothingWritten) {
		t.Errorf("Present() error = %v, want ErrNothingWritten", err)
	}
}

func TestController_DrawWaitsForReload(t *testing.T) {
	c, _, _ := newTestController(t, 50*time.Millisecond)
	capture := memmap.NewBuffer(memmap.CaptureBuffer, 32, 24, memmap.FormatRGB565)

	if err := c.DrawWelcome(context.Background(), "framepipe"); err != nil {
		t.Fatalf("DrawWelcome() error = %v", err)
	}
	if !c.Sync().Pending() {
		t.Fatal("swap should be pending until the panel reloads")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
	defer cancel()
	if err := c.DrawPreview(ctx, capture); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("DrawPreview() during scan-out error = %v, want DeadlineExceeded", err)
	}

	if err := c.DrawPreview(context.Background(), capture); err != nil {
		t.Fatalf("DrawPreview() after reload error = %v", err)
	}
	if c.Sync().Pending() {
		t.Error("swap should have been observed")
	}
}

func TestController_ManyFrames(t *testing.T) {
	c, panel, _ := newTestController(t, time.Millisecond)
	capture := memmap.NewBuffer(memmap.CaptureBuffer, 320, 240, memmap.FormatRGB565)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		if err := c.DrawPreview(ctx, capture); err != nil {
			t.Fatalf("frame %d: DrawPreview() error = %v", i, err)
		}
		if err := c.DrawResult(Overlay{Label: "x", Score: float32(i) / 10}); err != nil {
			t.Fatalf("frame %d: DrawResult() error = %v", i, err)
		}
		if err := c.Present(); err != nil {
			t.Fatalf("frame %d: Present() error = %v", i, err)
		}
	}
	if c.Presented() != 10 {
		t.Errorf("Presented() = %d, want 10", c.Presented())
	}
	if n, _ := panel.Shown(); n != 11 {
		t.Errorf("panel shown %d frames, want 11", n)
	}
}

func TestScoreColor(t *testing.T) {
	r0, g0, _, _ := ScoreColor(0).RGBA()
	r1, g1, _, _ := ScoreColor(1).RGBA()
	if r0 <= g0 {
		t.Errorf("low confidence should be red, got r=%d g=%d", r0, g0)
	}
	if g1 <= r1 {
		t.Errorf("high confidence should be green, got r=%d g=%d", r1, g1)
	}
}

package app

import (
	"fmt"
	"log"

	"github.com/ayusman/framepipe/internal/config"
	"github.com/ayusman/framepipe/internal/handoff"
	"github.com/ayusman/framepipe/internal/memmap"
	"github.com/ayusman/framepipe/internal/postprocess"
	"github.com/ayusman/framepipe/internal/preprocess"
	"github.com/ayusman/framepipe/internal/quant"
)

// Context is everything one pipeline instance owns: its buffers, its
// conversion tables and the handoff flags shared with the DMA side. It is
// built once and passed by reference; nothing here is package state.
type Context struct {
	Profile *config.Profile
	Map     *memmap.Map
	Labels  *postprocess.LabelTable

	PixelPath   config.PixelPath
	MirrorFlip  config.MirrorFlip
	Input       quant.Params
	Output      quant.Params
	LUT         *quant.LUT
	RedBlueSwap bool

	// Capture carries new_frame_ready; Swap carries lcd_sync.
	Capture *handoff.CaptureCycle
	Swap    *handoff.SwapGate

	pre *preprocess.Preprocessor
}

// NewContext lays out memory for the profile. Buffers exist from here on
// but hold no meaningful data until Init.
func NewContext(p *config.Profile, labels *postprocess.LabelTable) (*Context, error) {
	if labels == nil {
		return nil, fmt.Errorf("context: %w", postprocess.ErrLabels)
	}
	if labels.Len() != p.Network.Classes {
		return nil, fmt.Errorf("context: %d labels for %d classes: %w", labels.Len(), p.Network.Classes, postprocess.ErrLabels)
	}

	m, err := memmap.Layout(p.Layout())
	if err != nil {
		return nil, fmt.Errorf("context: %w", err)
	}

	return &Context{
		Profile:    p,
		Map:        m,
		Labels:     labels,
		PixelPath:  p.Network.PixelPath,
		MirrorFlip: p.Camera.MirrorFlip,
		Input:      p.Network.Input,
		Output:     p.Network.Output,
		Capture:    handoff.NewCaptureCycle(),
		Swap:       handoff.NewSwapGate(),
	}, nil
}

// Init zeroes every buffer, builds the pixel lookup table and selects the
// pixel path.
func (c *Context) Init() error {
	for _, b := range c.Map.Buffers() {
		b.Zero()
	}
	if err := c.Labels.Verify(c.Profile.Labels.CRC); err != nil {
		return err
	}

	c.LUT = quant.BuildLUT(c.Profile.Network.Normalize, c.Input)
	pre, err := preprocess.New(preprocess.Config{
		PixelPath: c.PixelPath,
		ColorMode: c.Profile.Network.ColorMode,
		LUT:       c.LUT,
	})
	if err != nil {
		return err
	}
	c.pre = pre
	c.RedBlueSwap = pre.RedBlueSwap()

	log.Printf("context: %s pixel path, red/blue swap %v, %d classes", pre.Path(), c.RedBlueSwap, c.Labels.Len())
	return nil
}

// Preprocessor returns the pixel path selected by Init.
func (c *Context) Preprocessor() *preprocess.Preprocessor { return c.pre }

// Close releases resources held by the pixel path.
func (c *Context) Close() error {
	if c.pre == nil {
		return nil
	}
	return c.pre.Close()
}

// LoadLabels builds the label table from a file when path is set, else
// from the profile.
func LoadLabels(p *config.Profile, path string) (*postprocess.LabelTable, error) {
	if path == "" {
		path = p.Labels.File
	}
	if path != "" {
		return postprocess.LoadLabels(path)
	}
	return postprocess.NewLabelTable(p.Labels.Names)
}

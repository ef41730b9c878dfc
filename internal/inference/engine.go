// Package inference is the boundary to the neural-network runtime. An
// engine is initialised once with the activation arena and the tensor
// buffers, then run once per frame.
package inference

import (
	"errors"
	"fmt"

	"github.com/ayusman/framepipe/internal/memmap"
	"github.com/ayusman/framepipe/internal/quant"
)

var (
	// ErrNotInitialized is returned when running without a valid handle.
	ErrNotInitialized = errors.New("engine not initialized")
	// ErrShape is returned when the tensors do not match the model.
	ErrShape = errors.New("tensor shape mismatch")
	// ErrModel is returned when the model file cannot be loaded.
	ErrModel = errors.New("model could not be loaded")
)

// Tensors are the buffers an engine works in. They stay owned by the
// caller and are never reallocated.
type Tensors struct {
	Activation *memmap.Buffer
	Input      *memmap.Buffer
	Output     *memmap.Buffer
}

// Validate checks the tensors are present and not empty.
func (t Tensors) Validate() error {
	for name, b := range map[string]*memmap.Buffer{"activation": t.Activation, "input": t.Input, "output": t.Output} {
		if b == nil || b.Size == 0 {
			return fmt.Errorf("%s tensor missing: %w", name, ErrShape)
		}
	}
	return nil
}

// Handle identifies an initialised network instance.
type Handle struct {
	id      uint32
	tensors Tensors
}

// Valid reports whether h came from a successful Init.
func (h Handle) Valid() bool { return h.id != 0 }

// Engine runs a quantized classification network.
type Engine interface {
	Init(t Tensors) (Handle, error)
	// Run reads the input tensor and writes the output tensor. A failure
	// is fatal for the pipeline.
	Run(h Handle) error
	Close() error
}

// Config is the model description shared by the engines.
type Config struct {
	Width    int
	Height   int
	Channels int
	Classes  int
	Input    quant.Params
	Output   quant.Params
}

func (c Config) check(t Tensors) error {
	if err := t.Validate(); err != nil {
		return err
	}
	if want := c.Width * c.Height * c.Channels; t.Input.Size != want {
		return fmt.Errorf("input tensor %d bytes, model wants %d: %w", t.Input.Size, want, ErrShape)
	}
	if t.Output.Size != c.Classes {
		return fmt.Errorf("output tensor %d bytes, model has %d classes: %w", t.Output.Size, c.Classes, ErrShape)
	}
	return nil
}

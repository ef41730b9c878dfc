package inference

import (
	"errors"
	"testing"

	"github.com/ayusman/framepipe/internal/memmap"
	"github.com/ayusman/framepipe/internal/quant"
)

func testConfig() Config {
	return Config{
		Width: 4, Height: 4, Channels: 3, Classes: 3,
		Input:  quant.Params{Scale: 1.0 / 255, Type: quant.Uint8},
		Output: quant.Params{Scale: 1.0 / 255, Type: quant.Uint8},
	}
}

func testTensors() Tensors {
	out := memmap.NewBuffer(memmap.OutputBuffer, 3, 1, memmap.FormatRaw)
	return Tensors{
		Activation: memmap.NewBuffer(memmap.ActivationBuffer, 64, 1, memmap.FormatRaw),
		Input:      memmap.NewBuffer(memmap.InputBuffer, 4, 4, memmap.FormatRGB888),
		Output:     out,
	}
}

func TestMockEngine_Run(t *testing.T) {
	m := NewMockEngine(testConfig())
	m.SetScores([]float32{0.2, 0.8, 0}, []float32{1, 0, 0})

	h, err := m.Init(testTensors())
	if err != nil {
		t.Fatalf("Init() error = %v", err)
	}

	tests := []struct {
		name string
		want []byte
	}{
		{"first script", []byte{51, 204, 0}},
		{"second script", []byte{255, 0, 0}},
		{"last script repeats", []byte{255, 0, 0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := m.Run(h); err != nil {
				t.Fatalf("Run() error = %v", err)
			}
			got := h.tensors.Output.Bytes()
			for i := range tt.want {
				if got[i] != tt.want[i] {
					t.Errorf("output = %v, want %v", got, tt.want)
					break
				}
			}
		})
	}

	if m.Calls() != 3 {
		t.Errorf("Calls() = %d, want 3", m.Calls())
	}
}

func TestMockEngine_Errors(t *testing.T) {
	m := NewMockEngine(testConfig())

	if err := m.Run(Handle{}); !errors.Is(err, ErrNotInitialized) {
		t.Errorf("Run() before Init error = %v, want ErrNotInitialized", err)
	}

	h, err := m.Init(testTensors())
	if err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	boom := errors.New("boom")
	m.SetError(boom)
	if err := m.Run(h); !errors.Is(err, boom) {
		t.Errorf("Run() error = %v, want injected error", err)
	}
}

func TestConfig_Check(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Tensors)
	}{
		{"missing output", func(ts *Tensors) { ts.Output = nil }},
		{"input size", func(ts *Tensors) { ts.Input = memmap.NewBuffer(memmap.InputBuffer, 8, 8, memmap.FormatRGB888) }},
		{"class count", func(ts *Tensors) { ts.Output = memmap.NewBuffer(memmap.OutputBuffer, 5, 1, memmap.FormatRaw) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := testTensors()
			tt.mutate(&ts)
			if _, err := NewMockEngine(testConfig()).Init(ts); !errors.Is(err, ErrShape) {
				t.Errorf("Init() error = %v, want ErrShape", err)
			}
		})
	}
}

func TestOpenCVEngine_NotInitialized(t *testing.T) {
	e := NewOpenCVEngine("model.onnx", testConfig())

	if err := e.Run(Handle{}); !errors.Is(err, ErrNotInitialized) {
		t.Errorf("Run() error = %v, want ErrNotInitialized", err)
	}
	if err := e.Close(); err != nil {
		t.Errorf("Close() before Init error = %v", err)
	}
}

func TestOpenCVEngine_ShapeCheckedBeforeLoad(t *testing.T) {
	e := NewOpenCVEngine("model.onnx", testConfig())
	ts := testTensors()
	ts.Output = memmap.NewBuffer(memmap.OutputBuffer, 7, 1, memmap.FormatRaw)

	if _, err := e.Init(ts); !errors.Is(err, ErrShape) {
		t.Errorf("Init() error = %v, want ErrShape", err)
	}
}

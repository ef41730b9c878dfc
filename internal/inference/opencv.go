package inference

import (
	"fmt"
	"image"
	"log"
	"sync"
	"unsafe"

	"gocv.io/x/gocv"
)

// OpenCVEngine runs a model file through the OpenCV DNN module. The input
// tensor is dequantized into a float blob and the output probabilities are
// quantized back into the output tensor.
type OpenCVEngine struct {
	cfg   Config
	model string

	mu     sync.Mutex
	net    *gocv.Net
	handle Handle
	input  []float32
}

// NewOpenCVEngine returns an engine for the model at path. The model is
// loaded by Init.
func NewOpenCVEngine(path string, cfg Config) *OpenCVEngine {
	return &OpenCVEngine{cfg: cfg, model: path}
}

// Init loads the model and binds the tensors.
func (e *OpenCVEngine) Init(t Tensors) (Handle, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.cfg.check(t); err != nil {
		return Handle{}, err
	}

	net := gocv.ReadNet(e.model, "")
	if net.Empty() {
		return Handle{}, fmt.Errorf("%s: %w", e.model, ErrModel)
	}
	if err := net.SetPreferableBackend(gocv.NetBackendDefault); err != nil {
		net.Close()
		return Handle{}, fmt.Errorf("set backend: %w", err)
	}
	if err := net.SetPreferableTarget(gocv.NetTargetCPU); err != nil {
		net.Close()
		return Handle{}, fmt.Errorf("set target: %w", err)
	}

	// OpenCV keeps its own arena; the activation buffer stays reserved.
	t.Activation.Zero()

	e.net = &net
	e.input = make([]float32, t.Input.Size)
	e.handle = Handle{id: 1, tensors: t}
	log.Printf("inference: loaded %s, input %dx%dx%d, %d classes", e.model, e.cfg.Width, e.cfg.Height, e.cfg.Channels, e.cfg.Classes)
	return e.handle, nil
}

// Run implements Engine.
func (e *OpenCVEngine) Run(h Handle) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.net == nil || !h.Valid() || h != e.handle {
		return ErrNotInitialized
	}

	e.cfg.Input.DequantizeAll(e.input, h.tensors.Input.Bytes())
	raw := unsafe.Slice((*byte)(unsafe.Pointer(&e.input[0])), len(e.input)*4)

	matType := gocv.MatTypeCV32FC3
	if e.cfg.Channels == 1 {
		matType = gocv.MatTypeCV32FC1
	}
	img, err := gocv.NewMatFromBytes(e.cfg.Height, e.cfg.Width, matType, raw)
	if err != nil {
		return fmt.Errorf("input mat: %w", err)
	}
	defer img.Close()

	blob := gocv.BlobFromImage(img, 1.0, image.Pt(e.cfg.Width, e.cfg.Height), gocv.NewScalar(0, 0, 0, 0), false, false)
	defer blob.Close()

	e.net.SetInput(blob, "")
	out := e.net.Forward("")
	defer out.Close()

	probs, err := out.DataPtrFloat32()
	if err != nil {
		return fmt.Errorf("read output: %w", err)
	}
	if len(probs) != e.cfg.Classes {
		return fmt.Errorf("model produced %d scores for %d classes: %w", len(probs), e.cfg.Classes, ErrShape)
	}
	e.cfg.Output.QuantizeAll(h.tensors.Output.Bytes(), probs)
	return nil
}

// Close releases the network.
func (e *OpenCVEngine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.net == nil {
		return nil
	}
	err := e.net.Close()
	e.net = nil
	e.handle = Handle{}
	return err
}

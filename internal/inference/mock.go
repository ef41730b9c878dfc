package inference

import (
	"sync"
	"time"
)

// MockEngine is a test implementation of the Engine interface. Each Run
// writes the next scripted score vector, quantized with the output
// parameters.
type MockEngine struct {
	cfg Config

	mu      sync.Mutex
	scores  [][]float32
	err     error
	initErr error
	delay   time.Duration
	hook    func(call int)
	calls   int
	handle  Handle
	inputs  [][]byte
	keep    bool
}

// NewMockEngine creates a new MockEngine instance.
func NewMockEngine(cfg Config) *MockEngine {
	return &MockEngine{cfg: cfg}
}

// SetScores sets the score vectors returned by successive runs. The last
// one repeats.
func (m *MockEngine) SetScores(scores ...[]float32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scores = scores
}

// SetError sets the error that will be returned by Run.
func (m *MockEngine) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// SetInitError sets the error that will be returned by Init.
func (m *MockEngine) SetInitError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.initErr = err
}

// SetDelay makes every Run take at least d.
func (m *MockEngine) SetDelay(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delay = d
}

// OnRun registers a hook called at the start of every Run.
func (m *MockEngine) OnRun(fn func(call int)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hook = fn
}

// KeepInputs records a copy of the input tensor on every Run.
func (m *MockEngine) KeepInputs() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.keep = true
}

// Init validates the tensors against the configured model.
func (m *MockEngine) Init(t Tensors) (Handle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.initErr != nil {
		return Handle{}, m.initErr
	}
	if err := m.cfg.check(t); err != nil {
		return Handle{}, err
	}
	m.handle = Handle{id: 1, tensors: t}
	return m.handle, nil
}

// Run writes the next scripted output.
func (m *MockEngine) Run(h Handle) error {
	m.mu.Lock()
	call := m.calls
	m.calls++
	hook, delay, err := m.hook, m.delay, m.err
	m.mu.Unlock()

	if hook != nil {
		hook(call)
	}
	if delay > 0 {
		time.Sleep(delay)
	}
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if !h.Valid() || h != m.handle {
		return ErrNotInitialized
	}
	if m.keep {
		m.inputs = append(m.inputs, append([]byte(nil), h.tensors.Input.Bytes()...))
	}
	out := h.tensors.Output.Bytes()
	if len(m.scores) == 0 {
		clear(out)
		return nil
	}
	scores := m.scores[min(call, len(m.scores)-1)]
	m.cfg.Output.QuantizeAll(out, scores[:min(len(scores), len(out))])
	return nil
}

// Calls returns how many times Run was called.
func (m *MockEngine) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Inputs returns the recorded input tensors.
func (m *MockEngine) Inputs() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.inputs
}

// Close is a no-op for the mock engine.
func (m *MockEngine) Close() error {
	return nil
}

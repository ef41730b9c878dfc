package console

import (
	"bytes"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ayusman/framepipe/internal/app"
	"github.com/ayusman/framepipe/internal/postprocess"
)

func result(seq uint64, label string, score float32) app.FrameResult {
	return app.FrameResult{
		Seq:       seq,
		Result:    postprocess.Result{Top: postprocess.Class{Index: 1, Label: label, Score: score}},
		Inference: 23400 * time.Microsecond,
		FPS:       12.04,
	}
}

func TestFormat(t *testing.T) {
	tests := []struct {
		name string
		in   app.FrameResult
		want string
	}{
		{"person", result(7, "person", 0.9), "#7 person 90.0% inf=23.4ms fps=12.0"},
		{"unknown", result(1, postprocess.Unknown, 0), "#1 unknown 0.0% inf=23.4ms fps=12.0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Format(tt.in); got != tt.want {
				t.Errorf("Format() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSink_WritesLines(t *testing.T) {
	var buf bytes.Buffer
	s := NewSink(&buf)

	var obs app.Observer = s
	obs.Observe(result(1, "person", 0.5))
	obs.Observe(result(2, "background", 0.75))
	if err := s.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := s.Close(); !errors.Is(err, ErrClosed) {
		t.Errorf("second Close() error = %v, want ErrClosed", err)
	}

	lines := strings.Split(strings.TrimSuffix(buf.String(), "\r\n"), "\r\n")
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2: %q", len(lines), buf.String())
	}
	if !strings.HasPrefix(lines[0], "#1 person") || !strings.HasPrefix(lines[1], "#2 background") {
		t.Errorf("lines = %q", lines)
	}
}

// blockingWriter holds every write until released.
type blockingWriter struct {
	release chan struct{}
	mu      sync.Mutex
	n       int
}

func (w *blockingWriter) Write(p []byte) (int, error) {
	<-w.release
	w.mu.Lock()
	w.n++
	w.mu.Unlock()
	return len(p), nil
}

func TestSink_DropsWhenPortStalls(t *testing.T) {
	w := &blockingWriter{release: make(chan struct{})}
	s := NewSink(w)

	for i := 0; i < 200; i++ {
		s.Println("line")
	}
	if s.Dropped() == 0 {
		t.Error("Dropped() = 0, want lines dropped while the port stalls")
	}

	close(w.release)
	if err := s.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if int64(w.n)+s.Dropped() != 200 {
		t.Errorf("written %d + dropped %d, want 200", w.n, s.Dropped())
	}
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("uart unplugged") }

func TestSink_WriteError(t *testing.T) {
	s := NewSink(failingWriter{})
	s.Println("a")
	s.Println("b")
	if err := s.Close(); err == nil || !strings.Contains(err.Error(), "uart unplugged") {
		t.Errorf("Close() error = %v, want the write error", err)
	}
	if s.Dropped() != 1 {
		t.Errorf("Dropped() = %d, want 1", s.Dropped())
	}
}

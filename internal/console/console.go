// Package console writes one line per classification to a serial port,
// the host side of the board's debug UART.
package console

import (
	"errors"
	"fmt"
	"io"
	"log"
	"sync"
	"sync/atomic"

	"go.bug.st/serial"

	"github.com/ayusman/framepipe/internal/app"
)

// DefaultBaud is the debug UART rate.
const DefaultBaud = 115200

const queueDepth = 64

// ErrClosed is returned when closing a sink twice.
var ErrClosed = errors.New("console closed")

// Sink formats frame results onto a writer. Writes happen on a separate
// goroutine; lines are dropped when the port cannot keep up.
type Sink struct {
	w      io.Writer
	closer io.Closer

	mu     sync.RWMutex
	lines  chan string
	closed bool
	done   chan struct{}

	dropped atomic.Int64
	err     error
}

// Open opens a serial port at baud and returns a sink writing to it.
func Open(port string, baud int) (*Sink, error) {
	if baud <= 0 {
		baud = DefaultBaud
	}
	p, err := serial.Open(port, &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, fmt.Errorf("console: open %s: %w", port, err)
	}
	log.Printf("console: %s at %d baud", port, baud)
	s := NewSink(p)
	s.closer = p
	return s, nil
}

// Ports lists the serial ports present on the host.
func Ports() ([]string, error) {
	return serial.GetPortsList()
}

// NewSink returns a sink writing to w.
func NewSink(w io.Writer) *Sink {
	s := &Sink{
		w:     w,
		lines: make(chan string, queueDepth),
		done:  make(chan struct{}),
	}
	go s.write()
	return s
}

// Observe implements app.Observer.
func (s *Sink) Observe(fr app.FrameResult) {
	s.Println(Format(fr))
}

// Println queues one line.
func (s *Sink) Println(line string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		s.dropped.Add(1)
		return
	}
	select {
	case s.lines <- line:
	default:
		s.dropped.Add(1)
	}
}

// Dropped returns how many lines were discarded.
func (s *Sink) Dropped() int64 { return s.dropped.Load() }

// Close flushes queued lines and closes the port. It returns the first
// write error, if any.
func (s *Sink) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	s.closed = true
	close(s.lines)
	s.mu.Unlock()

	<-s.done
	err := s.err
	if s.closer != nil {
		err = errors.Join(err, s.closer.Close())
	}
	return err
}

func (s *Sink) write() {
	defer close(s.done)
	for line := range s.lines {
		if s.err != nil {
			s.dropped.Add(1)
			continue
		}
		if _, err := io.WriteString(s.w, line+"\r\n"); err != nil {
			log.Printf("console: write failed: %v", err)
			s.err = err
		}
	}
}

// Format renders a result the way the board prints it.
func Format(fr app.FrameResult) string {
	top := fr.Result.Top
	return fmt.Sprintf("#%d %s %.1f%% inf=%.1fms fps=%.1f",
		fr.Seq, top.Label, top.Score*100, float64(fr.Inference.Microseconds())/1000, fr.FPS)
}

// Package status drives the board indicators: four LEDs that show boot,
// running, per-frame activity and the terminal fault state.
package status

import (
	"log"
	"sync"
)

// LED identifies one indicator.
type LED int

const (
	Green LED = iota
	Orange
	Red
	Blue
	numLEDs
)

func (l LED) String() string {
	switch l {
	case Green:
		return "green"
	case Orange:
		return "orange"
	case Red:
		return "red"
	case Blue:
		return "blue"
	default:
		return "led?"
	}
}

// LEDs lists every indicator.
var LEDs = []LED{Green, Orange, Red, Blue}

// Indicator switches LEDs.
type Indicator interface {
	Set(led LED, on bool)
}

// Booting lights orange while bring-up runs.
func Booting(ind Indicator) {
	for _, l := range LEDs {
		ind.Set(l, l == Orange)
	}
}

// Running lights green once the pipeline is up.
func Running(ind Indicator) {
	for _, l := range LEDs {
		ind.Set(l, l == Green)
	}
}

// Heartbeat toggles blue with every processed frame.
func Heartbeat(ind Indicator, frame uint64) {
	ind.Set(Blue, frame%2 == 1)
}

// Fault turns every indicator off except red.
func Fault(ind Indicator) {
	for _, l := range LEDs {
		ind.Set(l, l == Red)
	}
}

// Recorder remembers LED states. It is safe for concurrent use.
type Recorder struct {
	mu      sync.Mutex
	state   [numLEDs]bool
	changes int
}

// NewRecorder returns a recorder with all LEDs off.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// Set implements Indicator.
func (r *Recorder) Set(led LED, on bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state[led] != on {
		r.changes++
	}
	r.state[led] = on
}

// On reports whether led is lit.
func (r *Recorder) On(led LED) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state[led]
}

// Lit returns the lit LEDs in order.
func (r *Recorder) Lit() []LED {
	r.mu.Lock()
	defer r.mu.Unlock()
	var lit []LED
	for _, l := range LEDs {
		if r.state[l] {
			lit = append(lit, l)
		}
	}
	return lit
}

// Changes returns how many times any LED changed state.
func (r *Recorder) Changes() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.changes
}

// Logger logs indicator changes other than the heartbeat.
type Logger struct {
	rec Recorder
}

// Set implements Indicator.
func (l *Logger) Set(led LED, on bool) {
	if l.rec.On(led) == on {
		return
	}
	l.rec.Set(led, on)
	if led != Blue {
		log.Printf("status: %s %s", led, onOff(on))
	}
}

func onOff(on bool) string {
	if on {
		return "on"
	}
	return "off"
}

// Multi fans indicator changes out to several indicators.
type Multi []Indicator

// Set implements Indicator.
func (m Multi) Set(led LED, on bool) {
	for _, ind := range m {
		ind.Set(led, on)
	}
}

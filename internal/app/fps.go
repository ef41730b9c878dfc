package app

import "time"

// FPSWindow is the number of frame intervals averaged by FPSMeter.
const FPSWindow = 16

// FPSMeter is a rolling frame rate over the last FPSWindow intervals.
type FPSMeter struct {
	stamps [FPSWindow + 1]time.Time
	next   int
	n      int
}

// Tick records a frame at t and returns the current rate.
func (m *FPSMeter) Tick(t time.Time) float64 {
	m.stamps[m.next] = t
	m.next = (m.next + 1) % len(m.stamps)
	if m.n < len(m.stamps) {
		m.n++
	}
	return m.Rate()
}

// Rate returns frames per second, or 0 before two frames were seen.
func (m *FPSMeter) Rate() float64 {
	if m.n < 2 {
		return 0
	}
	newest := m.stamps[(m.next-1+len(m.stamps))%len(m.stamps)]
	oldest := m.stamps[(m.next-m.n+len(m.stamps))%len(m.stamps)]
	span := newest.Sub(oldest)
	if span <= 0 {
		return 0
	}
	return float64(m.n-1) / span.Seconds()
}

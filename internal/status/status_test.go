package status

import "testing"

func TestPatterns(t *testing.T) {
	tests := []struct {
		name    string
		pattern func(Indicator)
		want    []LED
	}{
		{"booting", Booting, []LED{Orange}},
		{"running", Running, []LED{Green}},
		{"fault", Fault, []LED{Red}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRecorder()
			for _, l := range LEDs {
				r.Set(l, true)
			}
			tt.pattern(r)

			lit := r.Lit()
			if len(lit) != len(tt.want) || lit[0] != tt.want[0] {
				t.Errorf("lit = %v, want %v", lit, tt.want)
			}
		})
	}
}

func TestHeartbeat(t *testing.T) {
	r := NewRecorder()
	Running(r)
	for frame := uint64(1); frame <= 4; frame++ {
		Heartbeat(r, frame)
		if r.On(Blue) != (frame%2 == 1) {
			t.Errorf("frame %d: blue = %v", frame, r.On(Blue))
		}
		if !r.On(Green) {
			t.Errorf("frame %d: heartbeat must not disturb green", frame)
		}
	}
}

func TestMulti(t *testing.T) {
	a, b := NewRecorder(), NewRecorder()
	Fault(Multi{a, b, &Logger{}})
	if !a.On(Red) || !b.On(Red) {
		t.Error("fault should reach every indicator")
	}
	if a.Changes() != 1 {
		t.Errorf("Changes() = %d, want 1", a.Changes())
	}
}

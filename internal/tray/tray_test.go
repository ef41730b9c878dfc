package tray

import (
	"testing"

	"github.com/ayusman/framepipe/internal/app"
	"github.com/ayusman/framepipe/internal/postprocess"
	"github.com/ayusman/framepipe/internal/status"
)

func TestTray_Status(t *testing.T) {
	tests := []struct {
		name  string
		apply func(status.Indicator)
		want  string
	}{
		{"idle", func(status.Indicator) {}, "○ Idle"},
		{"booting", status.Booting, "◌ Starting"},
		{"running", status.Running, "● Running"},
		{"fault", status.Fault, "○ Fault"},
		{"heartbeat keeps running", func(ind status.Indicator) {
			status.Running(ind)
			status.Heartbeat(ind, 1)
		}, "● Running"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := New("host-webcam")
			tt.apply(tr)
			if got := tr.Status(); got != tt.want {
				t.Errorf("Status() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestTray_Observe(t *testing.T) {
	tr := New("host-webcam")
	if got := tr.LastResult(); got != "none" {
		t.Errorf("LastResult() = %q, want none", got)
	}

	var obs app.Observer = tr
	obs.Observe(app.FrameResult{
		Seq:    1,
		Result: postprocess.Result{Top: postprocess.Class{Index: 1, Label: "person", Score: 0.9}},
		FPS:    14.96,
	})
	if got, want := tr.LastResult(), "person 90% (15.0 fps)"; got != want {
		t.Errorf("LastResult() = %q, want %q", got, want)
	}

	tr.SetLastResult("")
	if got := tr.LastResult(); got != "none" {
		t.Errorf("LastResult() after clear = %q, want none", got)
	}
}

package board

import (
	"errors"
	"testing"
)

func TestHost_BringUp(t *testing.T) {
	h := NewHost()

	if err := h.EnablePeripheralClocks(PeriphCRC); !errors.Is(err, ErrPeripheral) {
		t.Errorf("EnablePeripheralClocks() before clocks error = %v, want ErrPeripheral", err)
	}
	if err := h.ConfigureClocks(); err != nil {
		t.Fatalf("ConfigureClocks() error = %v", err)
	}
	if err := h.EnablePeripheralClocks(PeriphCRC, PeriphCamera, PeriphDisplay); err != nil {
		t.Fatalf("EnablePeripheralClocks() error = %v", err)
	}

	got := h.Enabled()
	want := []string{PeriphCRC, PeriphCamera, PeriphDisplay}
	if len(got) != len(want) {
		t.Fatalf("Enabled() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Enabled()[%d] = %s, want %s", i, got[i], want[i])
		}
	}
}

func TestHost_InjectedFailures(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(h *Host)
		run     func(h *Host) error
		wantErr error
	}{
		{
			name:    "pll lock",
			setup:   func(h *Host) { h.FailClocks(errors.New("pll did not lock")) },
			run:     func(h *Host) error { return h.ConfigureClocks() },
			wantErr: ErrClock,
		},
		{
			name:    "no sysclk",
			setup:   func(h *Host) { h.Clocks.SysclkHz = 0 },
			run:     func(h *Host) error { return h.ConfigureClocks() },
			wantErr: ErrClock,
		},
		{
			name:  "camera clock",
			setup: func(h *Host) { h.FailPeripheral(PeriphCamera, errors.New("gated")) },
			run: func(h *Host) error {
				if err := h.ConfigureClocks(); err != nil {
					return err
				}
				return h.EnablePeripheralClocks(PeriphCRC, PeriphCamera)
			},
			wantErr: ErrPeripheral,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHost()
			tt.setup(h)
			if err := tt.run(h); !errors.Is(err, tt.wantErr) {
				t.Errorf("error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

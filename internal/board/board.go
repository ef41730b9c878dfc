// Package board abstracts the clock tree and peripheral clock gating the
// pipeline needs during bring-up.
package board

import (
	"errors"
	"fmt"
	"log"
	"sync"
)

// Peripherals whose clocks bring-up enables.
const (
	PeriphCRC     = "crc"
	PeriphCamera  = "dcmi"
	PeriphDisplay = "ltdc"
	PeriphDMA2D   = "dma2d"
)

var (
	// ErrClock is returned when the system clock cannot be configured.
	ErrClock = errors.New("clock configuration failed")
	// ErrPeripheral is returned when a peripheral clock cannot be enabled.
	ErrPeripheral = errors.New("peripheral clock failed")
)

// Board configures the processor clocks.
type Board interface {
	Name() string
	// ConfigureClocks sets voltage scaling and locks the PLLs.
	ConfigureClocks() error
	// EnablePeripheralClocks ungates the named peripherals.
	EnablePeripheralClocks(periphs ...string) error
}

// ClockConfig is the system clock setup.
type ClockConfig struct {
	SysclkHz       uint32
	VoltageScale   int
	FlashLatencyWS int
}

// DefaultClocks runs the core at 400 MHz.
var DefaultClocks = ClockConfig{SysclkHz: 400_000_000, VoltageScale: 1, FlashLatencyWS: 2}

// Host is a Board for running on a development machine. Failures can be
// injected to exercise the bring-up fault path.
type Host struct {
	Clocks ClockConfig

	mu         sync.Mutex
	clockErr   error
	periphErr  map[string]error
	configured bool
	enabled    []string
}

// NewHost returns a host board with the default clocks.
func NewHost() *Host {
	return &Host{Clocks: DefaultClocks, periphErr: make(map[string]error)}
}

// Name implements Board.
func (h *Host) Name() string { return "host" }

// FailClocks makes ConfigureClocks return err.
func (h *Host) FailClocks(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clockErr = err
}

// FailPeripheral makes enabling periph return err.
func (h *Host) FailPeripheral(periph string, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.periphErr[periph] = err
}

// ConfigureClocks implements Board.
func (h *Host) ConfigureClocks() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clockErr != nil {
		return fmt.Errorf("%w: %v", ErrClock, h.clockErr)
	}
	if h.Clocks.SysclkHz == 0 {
		return fmt.Errorf("%w: no system clock", ErrClock)
	}
	h.configured = true
	log.Printf("board: sysclk %d MHz, VOS%d, %d wait states", h.Clocks.SysclkHz/1_000_000, h.Clocks.VoltageScale, h.Clocks.FlashLatencyWS)
	return nil
}

// EnablePeripheralClocks implements Board.
func (h *Host) EnablePeripheralClocks(periphs ...string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.configured {
		return fmt.Errorf("%w: system clock not configured", ErrPeripheral)
	}
	for _, p := range periphs {
		if err := h.periphErr[p]; err != nil {
			return fmt.Errorf("%w: %s: %v", ErrPeripheral, p, err)
		}
		h.enabled = append(h.enabled, p)
	}
	return nil
}

// Enabled lists the peripherals enabled so far, in order.
func (h *Host) Enabled() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.enabled...)
}

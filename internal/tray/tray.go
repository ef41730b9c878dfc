// Package tray shows pipeline status in the desktop system tray.
package tray

import (
	"fmt"
	"sync"

	"github.com/ayusman/framepipe/internal/app"
	"github.com/ayusman/framepipe/internal/status"
	"github.com/getlantern/systray"
)

// Tray mirrors the board LEDs and the latest classification in the system
// tray. It is both a status.Indicator and an app.Observer.
type Tray struct {
	title      string
	onOpen     func()
	onQuit     func()
	leds       map[status.LED]bool
	lastResult string
	mu         sync.RWMutex

	// Menu items stored for later updates
	menuStatus *systray.MenuItem
	menuLast   *systray.MenuItem
}

// New creates a new Tray titled after the build profile.
func New(profile string) *Tray {
	return &Tray{
		title:      "framepipe " + profile,
		leds:       make(map[status.LED]bool),
		lastResult: "none",
	}
}

// OnOpenStream sets the callback for the "Open live view" menu item.
func (t *Tray) OnOpenStream(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onOpen = fn
}

// OnQuit sets the callback function to be called when the quit menu item is clicked.
func (t *Tray) OnQuit(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onQuit = fn
}

// Run starts the system tray application.
// This function blocks until systray.Quit() is called.
func (t *Tray) Run() {
	systray.Run(t.onReady, t.onExit)
}

// Quit removes the tray icon and makes Run return.
func (t *Tray) Quit() {
	systray.Quit()
}

// onReady is called when the system tray is ready.
func (t *Tray) onReady() {
	systray.SetTitle("framepipe")
	systray.SetTooltip(t.title)

	t.mu.Lock()
	t.menuStatus = systray.AddMenuItem(statusTitle(t.leds), "Pipeline status")
	t.menuStatus.Disable()
	t.menuLast = systray.AddMenuItem("Last: "+t.lastResult, "Latest classification")
	t.menuLast.Disable()
	t.mu.Unlock()
	systray.AddSeparator()

	menuOpen := systray.AddMenuItem("Open live view...", "Open the stream in a browser")
	systray.AddSeparator()

	menuQuit := systray.AddMenuItem("Quit", "Stop the pipeline and quit")

	go func() {
		for {
			select {
			case <-menuOpen.ClickedCh:
				t.handleOpen()
			case <-menuQuit.ClickedCh:
				t.handleQuit()
				return
			}
		}
	}()
}

func (t *Tray) onExit() {}

func (t *Tray) handleOpen() {
	t.mu.RLock()
	callback := t.onOpen
	t.mu.RUnlock()

	if callback != nil {
		callback()
	}
}

func (t *Tray) handleQuit() {
	t.mu.RLock()
	callback := t.onQuit
	t.mu.RUnlock()

	// Call the callback outside the lock to prevent deadlocks
	if callback != nil {
		callback()
	}

	systray.Quit()
}

// Set implements status.Indicator.
func (t *Tray) Set(led status.LED, on bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.leds[led] == on {
		return
	}
	t.leds[led] = on
	if led == status.Blue {
		return
	}
	if t.menuStatus != nil {
		t.menuStatus.SetTitle(statusTitle(t.leds))
	}
}

// Status returns the status line shown in the menu.
func (t *Tray) Status() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return statusTitle(t.leds)
}

// Observe implements app.Observer.
func (t *Tray) Observe(fr app.FrameResult) {
	t.SetLastResult(fmt.Sprintf("%s %.0f%% (%.1f fps)", fr.Result.Top.Label, fr.Result.Top.Score*100, fr.FPS))
}

// SetLastResult updates the last classification in the menu.
func (t *Tray) SetLastResult(text string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if text == "" {
		text = "none"
	}
	if text == t.lastResult {
		return
	}
	t.lastResult = text
	if t.menuLast != nil {
		t.menuLast.SetTitle("Last: " + text)
	}
}

// LastResult returns the last classification shown.
func (t *Tray) LastResult() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.lastResult
}

func statusTitle(leds map[status.LED]bool) string {
	switch {
	case leds[status.Red]:
		return "○ Fault"
	case leds[status.Green]:
		return "● Running"
	case leds[status.Orange]:
		return "◌ Starting"
	default:
		return "○ Idle"
	}
}

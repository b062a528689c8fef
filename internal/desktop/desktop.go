// Package desktop holds the optional desktop integrations: notifications,
// Discord rich presence and a native file picker. All of them are best-effort.
package desktop

import (
	"errors"
	"log/slog"
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/gen2brain/beeep"
	client "github.com/hugolgst/rich-go/client"
	"github.com/sqweek/dialog"
)

// ErrCancelled is returned by PickMIDI when the dialog is dismissed.
var ErrCancelled = errors.New("desktop: file selection cancelled")

var (
	notify      = beeep.Notify
	getenv      = os.Getenv
	goos        = runtime.GOOS
	login       = client.Login
	setActivity = client.SetActivity
	logout      = client.Logout
)

func headless() bool {
	return goos == "linux" && getenv("DISPLAY") == "" && getenv("WAYLAND_DISPLAY") == ""
}

// Notify shows a desktop notification. It reports whether one was sent.
func Notify(title, body string) bool {
	if body == "" || headless() {
		return false
	}
	if err := notify(title, body, ""); err != nil {
		slog.Debug("desktop: notify failed", "err", err)
		return false
	}
	return true
}

// PickMIDI asks the user for a MIDI file.
func PickMIDI() (string, error) {
	path, err := dialog.File().Title("Choose a song").Filter("MIDI files", "mid", "midi").Load()
	if errors.Is(err, dialog.ErrCancelled) {
		return "", ErrCancelled
	}
	return path, err
}

// -------------------- Presence --------------------

// Presence publishes the current song to Discord. The zero value and a nil
// *Presence are inert.
type Presence struct {
	mu    sync.Mutex
	ready bool
	start time.Time
}

// StartPresence logs in with appID; an empty id disables presence.
func StartPresence(appID string) *Presence {
	p := &Presence{}
	if appID == "" {
		return p
	}
	if err := login(appID); err != nil {
		slog.Warn("desktop: discord login failed", "err", err)
		return p
	}
	p.ready = true
	p.start = time.Now()
	return p
}

// Set updates the status line.
func (p *Presence) Set(state, details string) {
	if p == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.ready {
		return
	}
	start := p.start
	if err := setActivity(client.Activity{
		State:   state,
		Details: details,
		Timestamps: &client.Timestamps{
			Start: &start,
		},
	}); err != nil {
		slog.Warn("desktop: discord activity failed", "err", err)
	}
}

// SetSong shows name as the song being played and restarts the timer.
func (p *Presence) SetSong(name string) {
	if p == nil {
		return
	}
	p.mu.Lock()
	p.start = time.Now()
	p.mu.Unlock()
	p.Set("Lou Piano", "playing "+name)
}

func (p *Presence) Close() {
	if p == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ready {
		logout()
		p.ready = false
	}
}

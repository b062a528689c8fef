package keyboard

import (
	"log/slog"
	"sync"
)

// Action is a recorded keyboard operation.
type Action struct {
	Down   bool
	Stroke Stroke
}

func (a Action) String() string {
	if a.Down {
		return "down " + a.Stroke.String()
	}
	return "up " + a.Stroke.String()
}

// Recorder remembers every stroke instead of typing it. With Verbose set it
// also logs each one, which makes it the dry-run driver.
type Recorder struct {
	mu       sync.Mutex
	actions  []Action
	releases int
	Verbose  bool
}

func (r *Recorder) add(a Action) error {
	if !Valid(a.Stroke.Key) {
		return ErrUnknownKey{a.Stroke.Key}
	}
	r.mu.Lock()
	r.actions = append(r.actions, a)
	r.mu.Unlock()
	if r.Verbose {
		slog.Info("keyboard: dry run", "action", a.String())
	}
	return nil
}

func (r *Recorder) Down(s Stroke) error { return r.add(Action{Down: true, Stroke: s}) }
func (r *Recorder) Up(s Stroke) error   { return r.add(Action{Stroke: s}) }

func (r *Recorder) ReleaseAll() error {
	r.mu.Lock()
	r.releases++
	r.mu.Unlock()
	return nil
}

func (r *Recorder) Close() error { return nil }

// Actions returns a copy of everything recorded so far.
func (r *Recorder) Actions() []Action {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Action(nil), r.actions...)
}

// Releases counts ReleaseAll calls.
func (r *Recorder) Releases() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.releases
}

// Reset forgets recorded actions.
func (r *Recorder) Reset() {
	r.mu.Lock()
	r.actions = nil
	r.releases = 0
	r.mu.Unlock()
}

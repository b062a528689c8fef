// Package output turns note and pedal events into key strokes.
package output

import (
	"fmt"
	"time"

	"github.com/chase3718/lou-piano/internal/keyboard"
	"github.com/chase3718/lou-piano/internal/keymap"
)

// Backend receives performance events. Shutdown releases everything the
// backend holds and may be called any number of times.
type Backend interface {
	NoteOn(pitch, velocity int) error
	NoteOff(pitch int) error
	PedalOn() error
	PedalOff() error
	Shutdown() error
}

const (
	ModeKeyboard = "keyboard"
	ModeNumpad   = "numpad"
)

// Options configures New.
type Options struct {
	Layout       *keymap.Layout
	RestrikeGap  time.Duration // keyboard mode: pause between release and re-press
	MessageDelay time.Duration // numpad mode: pause after each message
}

// New builds the backend for mode on top of kb.
func New(mode string, kb keyboard.Keyboard, opts Options) (Backend, error) {
	switch mode {
	case "", ModeKeyboard:
		if opts.Layout == nil {
			opts.Layout = keymap.New(false)
		}
		return NewKeyboardBackend(kb, opts.Layout, opts.RestrikeGap), nil
	case ModeNumpad:
		return NewNumpadBackend(kb, opts.MessageDelay), nil
	}
	return nil, fmt.Errorf("output: unknown mode %q", mode)
}

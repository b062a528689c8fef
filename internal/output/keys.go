package output

import (
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/chase3718/lou-piano/internal/keyboard"
	"github.com/chase3718/lou-piano/internal/keymap"
)

// KeyboardBackend plays each pitch on its layout key. Pressing a key that is
// already down releases it first so the game registers a new strike.
type KeyboardBackend struct {
	mu     sync.Mutex
	kb     keyboard.Keyboard
	layout *keymap.Layout
	state  *KeyState
	pedal  bool
	gap    time.Duration
	sleep  func(time.Duration)
	log    *slog.Logger
}

func NewKeyboardBackend(kb keyboard.Keyboard, layout *keymap.Layout, restrikeGap time.Duration) *KeyboardBackend {
	return &KeyboardBackend{
		kb:     kb,
		layout: layout,
		state:  NewKeyState(),
		gap:    restrikeGap,
		sleep:  time.Sleep,
		log:    slog.Default().With("component", "keys"),
	}
}

func (b *KeyboardBackend) NoteOn(pitch, velocity int) error {
	key, played, ok := b.layout.Resolve(pitch)
	if !ok {
		b.log.Debug("keys: pitch unplayable, dropping", "pitch", keymap.PitchName(pitch))
		return nil
	}
	st := keyboard.Stroke{Key: key.Base, Shift: key.Shift, Ctrl: key.Ctrl}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state.IsDown(key.Base) {
		b.log.Debug("keys: re-strike", "key", st.String(), "pitch", keymap.PitchName(played))
		if err := b.kb.Up(st); err != nil {
			return err
		}
		if b.gap > 0 {
			b.sleep(b.gap)
		}
	}
	b.state.Press(key.Base, pitch)
	return b.kb.Down(st)
}

func (b *KeyboardBackend) NoteOff(pitch int) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	base, free, ok := b.state.Release(pitch)
	if !ok || !free {
		return nil
	}
	return b.kb.Up(keyboard.Stroke{Key: base})
}

func (b *KeyboardBackend) PedalOn() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.pedal {
		return nil
	}
	b.pedal = true
	return b.kb.Down(keyboard.Stroke{Key: keymap.Sustain})
}

func (b *KeyboardBackend) PedalOff() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.pedal {
		return nil
	}
	b.pedal = false
	return b.kb.Up(keyboard.Stroke{Key: keymap.Sustain})
}

// Shutdown lifts every held key, the pedal and the modifiers.
func (b *KeyboardBackend) Shutdown() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	var errs []error
	down := b.state.ClearAll()
	sort.Strings(down)
	for _, base := range down {
		errs = append(errs, b.kb.Up(keyboard.Stroke{Key: base}))
	}
	if b.pedal {
		b.pedal = false
		errs = append(errs, b.kb.Up(keyboard.Stroke{Key: keymap.Sustain}))
	}
	errs = append(errs, b.kb.ReleaseAll())
	if len(down) > 0 {
		b.log.Info("keys: released held keys", "count", len(down))
	}
	return errors.Join(errs...)
}

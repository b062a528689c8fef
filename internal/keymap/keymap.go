// Package keymap maps MIDI pitches onto the virtual piano's computer-keyboard
// layout.
//
// The 61-key layout covers C2..C7 (pitches 36..96). White keys are plain
// digits and letters; black keys are the same key with Shift held. The
// 88-key layout extends the range to A0..C8 by holding Ctrl on a second set
// of keys.
package keymap

import (
	"fmt"
	"log/slog"
)

const (
	// Layout61 lists one character per pitch, starting at Low61.
	Layout61 = "1!2@34$5%6^78*9(0qQwWeErtTyYuiIoOpPasSdDfgGhHjJklLzZxcCvVbBnm"
	Low61    = 36
	High61   = 96

	// Ctrl-held keys for the notes below and above the 61-key range.
	lowCtrl  = "1234567890qwert"
	highCtrl = "yuiopasdfghj"
	Low88    = 21
	High88   = 108

	// Sustain is the key that holds the sustain pedal.
	Sustain = "space"
)

// shifted maps the symbol row back to the digit that produces it.
var shifted = map[byte]byte{
	'!': '1', '@': '2', '#': '3', '$': '4', '%': '5',
	'^': '6', '&': '7', '*': '8', '(': '9', ')': '0',
}

// Key is a physical key press: a base key plus modifiers.
type Key struct {
	Base  string // key name: "a".."z", "0".."9"
	Shift bool
	Ctrl  bool
	Label string // character shown to the player
}

func (k Key) String() string {
	switch {
	case k.Ctrl:
		return "ctrl+" + k.Base
	case k.Shift:
		return "shift+" + k.Base
	}
	return k.Base
}

// charKey decodes one layout character.
func charKey(c byte) Key {
	switch {
	case c >= 'A' && c <= 'Z':
		return Key{Base: string(c + 'a' - 'A'), Shift: true, Label: string(c)}
	case shifted[c] != 0:
		return Key{Base: string(shifted[c]), Shift: true, Label: string(c)}
	}
	return Key{Base: string(c), Label: string(c)}
}

// Layout is a pitch-to-key table plus the transpose applied before lookup.
type Layout struct {
	keys      map[int]Key
	lo, hi    int
	Transpose int
}

// New returns the 61-key layout, or the 88-key one when full is set.
func New(full bool) *Layout {
	l := &Layout{keys: make(map[int]Key, 88), lo: Low61, hi: High61}
	for i := 0; i < len(Layout61); i++ {
		l.keys[Low61+i] = charKey(Layout61[i])
	}
	if full {
		for i := 0; i < len(lowCtrl); i++ {
			l.keys[Low88+i] = Key{Base: string(lowCtrl[i]), Ctrl: true, Label: "^" + string(lowCtrl[i])}
		}
		for i := 0; i < len(highCtrl); i++ {
			l.keys[High61+1+i] = Key{Base: string(highCtrl[i]), Ctrl: true, Label: "^" + string(highCtrl[i])}
		}
		l.lo, l.hi = Low88, High88
	}
	return l
}

// Range returns the lowest and highest playable pitch.
func (l *Layout) Range() (lo, hi int) { return l.lo, l.hi }

// Lookup returns the key for pitch without transpose or folding.
func (l *Layout) Lookup(pitch int) (Key, bool) {
	k, ok := l.keys[pitch]
	return k, ok
}

// Fold applies the transpose and shifts out-of-range pitches by whole
// octaves until they fit.
func (l *Layout) Fold(pitch int) (int, bool) {
	p := pitch + l.Transpose
	if p >= l.lo && p <= l.hi {
		return p, true
	}
	for p < l.lo {
		p += 12
	}
	for p > l.hi {
		p -= 12
	}
	if p >= l.lo && p <= l.hi {
		slog.Debug("keymap: pitch folded", "original", PitchName(pitch), "folded", PitchName(p))
		return p, true
	}
	return 0, false
}

// Resolve folds pitch and returns the key that plays it.
func (l *Layout) Resolve(pitch int) (Key, int, bool) {
	p, ok := l.Fold(pitch)
	if !ok {
		return Key{}, 0, false
	}
	k, ok := l.keys[p]
	return k, p, ok
}

// -------------------- Pitch helpers --------------------

var noteNames = [12]string{"C", "C#", "D", "D#", "E", "F", "F#", "G", "G#", "A", "A#", "B"}

// PitchName renders a MIDI pitch in scientific notation, C4 = 60.
func PitchName(pitch int) string {
	if pitch < 0 {
		return fmt.Sprintf("?\"%d\"", pitch)
	}
	return fmt.Sprintf("%s%d", noteNames[pitch%12], (pitch/12)-1)
}

// IsBlack reports whether pitch is a black key.
func IsBlack(pitch int) bool {
	switch ((pitch % 12) + 12) % 12 {
	case 1, 3, 6, 8, 10:
		return true
	}
	return false
}

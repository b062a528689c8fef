// Package keyboard injects key strokes into the focused window.
//
// Drivers implement Keyboard: System talks to the OS through keybd_event,
// Serial drives a USB-HID bridge microcontroller over a serial port, and
// Recorder keeps strokes in memory for dry runs and tests.
package keyboard

import (
	"fmt"
	"sort"
)

// Stroke is a single key with the modifiers that accompany its press.
type Stroke struct {
	Key   string
	Shift bool
	Ctrl  bool
}

func (s Stroke) String() string {
	switch {
	case s.Ctrl && s.Shift:
		return "ctrl+shift+" + s.Key
	case s.Ctrl:
		return "ctrl+" + s.Key
	case s.Shift:
		return "shift+" + s.Key
	}
	return s.Key
}

// Keyboard presses and releases keys. Modifiers are held only while the key
// goes down, so a later unmodified press is not affected.
type Keyboard interface {
	Down(s Stroke) error
	Up(s Stroke) error
	// ReleaseAll lifts every modifier and any key the driver still holds.
	ReleaseAll() error
	Close() error
}

// ErrUnknownKey is returned for a key name no driver can type.
type ErrUnknownKey struct{ Key string }

func (e ErrUnknownKey) Error() string { return fmt.Sprintf("keyboard: unknown key %q", e.Key) }

// hidUsage is the USB HID usage ID of every key name the drivers accept.
var hidUsage = func() map[string]byte {
	m := map[string]byte{
		"space":    0x2C,
		"multiply": 0x55,
		"subtract": 0x56,
		"add":      0x57,
		"numpad0":  0x62,
		"numlock":  0x53,
		"0":        0x27,
	}
	for c := byte('a'); c <= 'z'; c++ {
		m[string(c)] = 0x04 + (c - 'a')
	}
	for c := byte('1'); c <= '9'; c++ {
		m[string(c)] = 0x1E + (c - '1')
		m["numpad"+string(c)] = 0x59 + (c - '1')
	}
	return m
}()

// Valid reports whether key is a known key name.
func Valid(key string) bool {
	_, ok := hidUsage[key]
	return ok
}

// Names lists every key name, sorted.
func Names() []string {
	out := make([]string, 0, len(hidUsage))
	for k := range hidUsage {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Open returns the driver named by driver: "system", "serial" or "dry-run".
func Open(driver, device string, baud int) (Keyboard, error) {
	switch driver {
	case "", "system":
		kb, err := NewSystem()
		if err != nil {
			return nil, err
		}
		return kb, nil
	case "serial":
		kb, err := OpenSerial(device, baud)
		if err != nil {
			return nil, err
		}
		return kb, nil
	case "dry-run":
		return &Recorder{Verbose: true}, nil
	}
	return nil, fmt.Errorf("keyboard: unknown driver %q", driver)
}

package keyboard

import (
	"fmt"
	"log/slog"
)

// numLockOn reports the host's NumLock toggle. Outside Windows it is always
// on as far as the numpad keys are concerned.
var numLockOn = hostNumLock

// EnsureNumLock taps NumLock on kb when the host has it off, so numpad keys
// type digits instead of moving the cursor.
func EnsureNumLock(kb Keyboard) error {
	on, err := numLockOn()
	if err != nil {
		return fmt.Errorf("keyboard: read numlock: %w", err)
	}
	if on {
		return nil
	}
	slog.Info("keyboard: numlock is off, turning it on")
	s := Stroke{Key: "numlock"}
	if err := kb.Down(s); err != nil {
		return err
	}
	return kb.Up(s)
}

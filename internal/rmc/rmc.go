// Package rmc encodes notes for the numpad protocol understood by the game's
// MIDI-connect receiver. Each message is the multiply key followed by four
// base-12 digits typed on the numeric keypad.
package rmc

import "fmt"

// Prefix starts every message.
const Prefix = "multiply"

// PedalNote is the sentinel note number that carries sustain pedal changes.
const PedalNote = 143

// Digits are the keypad keys for the base-12 digits 0..11.
var Digits = [12]string{
	"numpad0", "numpad1", "numpad2", "numpad3", "numpad4", "numpad5",
	"numpad6", "numpad7", "numpad8", "numpad9", "subtract", "add",
}

// Message is one encoded event.
type Message [4]int

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func encode(note, velocity int) Message {
	velocity = clamp(velocity, 0, 127)
	return Message{
		clamp(note/12, 0, 11),
		clamp(note%12, 0, 11),
		clamp(velocity/12, 0, 11),
		clamp(velocity%12, 0, 11),
	}
}

// NoteOn encodes a key press.
func NoteOn(pitch, velocity int) Message { return encode(clamp(pitch, 0, 127), velocity) }

// NoteOff encodes a key release; the velocity digits are zero.
func NoteOff(pitch int) Message { return encode(clamp(pitch, 0, 127), 0) }

// Pedal encodes a sustain change: 127 is down, 0 is up.
func Pedal(value int) Message { return encode(PedalNote, value) }

// Keys returns the key sequence to type, prefix included.
func (m Message) Keys() [5]string {
	return [5]string{Prefix, Digits[m[0]], Digits[m[1]], Digits[m[2]], Digits[m[3]]}
}

func (m Message) String() string {
	return fmt.Sprintf("*%X%X%X%X", m[0], m[1], m[2], m[3])
}

package live

import (
	"log/slog"
	"sync"

	"gitlab.com/gomidi/midi/v2"

	"github.com/chase3718/lou-piano/internal/keymap"
	"github.com/chase3718/lou-piano/internal/output"
)

// Forwarder plays incoming MIDI messages on a backend: notes become key
// presses and CC64 drives the sustain pedal.
type Forwarder struct {
	mu      sync.Mutex
	backend output.Backend
	log     *slog.Logger
	notes   int
}

func NewForwarder(b output.Backend) *Forwarder {
	return &Forwarder{backend: b, log: slog.Default().With("component", "live")}
}

// Handle dispatches one message. Backend errors are logged, not returned,
// so a missed key never stops the stream.
func (f *Forwarder) Handle(msg midi.Message) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var ch, key, vel, cc, val uint8
	var err error
	switch {
	case msg.GetNoteStart(&ch, &key, &vel):
		f.log.Debug("live: note on", "ch", ch, "key", keymap.PitchName(int(key)), "vel", vel)
		f.notes++
		err = f.backend.NoteOn(int(key), int(vel))
	case msg.GetNoteEnd(&ch, &key):
		f.log.Debug("live: note off", "ch", ch, "key", keymap.PitchName(int(key)))
		err = f.backend.NoteOff(int(key))
	case msg.GetControlChange(&ch, &cc, &val):
		if cc != 64 {
			return
		}
		if val >= 64 {
			err = f.backend.PedalOn()
		} else {
			err = f.backend.PedalOff()
		}
	default:
		return
	}
	if err != nil {
		f.log.Warn("live: backend error", "msg", msg.String(), "err", err)
	}
}

// Panic releases everything, used when the device disappears.
func (f *Forwarder) Panic() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.log.Warn("live: disconnect, releasing all keys")
	if err := f.backend.Shutdown(); err != nil {
		f.log.Warn("live: release failed", "err", err)
	}
}

// Notes counts the note-ons forwarded so far.
func (f *Forwarder) Notes() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.notes
}

package output

import (
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/chase3718/lou-piano/internal/keyboard"
	"github.com/chase3718/lou-piano/internal/rmc"
)

// NumpadBackend types every event as a numpad message for receivers that
// accept the full MIDI range and velocity.
type NumpadBackend struct {
	mu     sync.Mutex
	kb     keyboard.Keyboard
	delay  time.Duration
	active map[int]int
	pedal  bool
	sleep  func(time.Duration)
	log    *slog.Logger

	numLock     func() error
	numLockOnce sync.Once
}

func NewNumpadBackend(kb keyboard.Keyboard, messageDelay time.Duration) *NumpadBackend {
	return &NumpadBackend{
		kb:      kb,
		delay:   messageDelay,
		active:  make(map[int]int),
		sleep:   time.Sleep,
		log:     slog.Default().With("component", "numpad"),
		numLock: func() error { return keyboard.EnsureNumLock(kb) },
	}
}

// send taps the message's keys in order. Callers hold b.mu.
func (b *NumpadBackend) send(m rmc.Message) error {
	b.numLockOnce.Do(func() {
		if err := b.numLock(); err != nil {
			b.log.Warn("numpad: numlock check failed", "err", err)
		}
	})
	b.log.Debug("numpad: send", "msg", m.String())
	for _, k := range m.Keys() {
		s := keyboard.Stroke{Key: k}
		if err := b.kb.Down(s); err != nil {
			return err
		}
		if err := b.kb.Up(s); err != nil {
			return err
		}
	}
	if b.delay > 0 {
		b.sleep(b.delay)
	}
	return nil
}

func (b *NumpadBackend) NoteOn(pitch, velocity int) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.active[pitch]++
	return b.send(rmc.NoteOn(pitch, velocity))
}

func (b *NumpadBackend) NoteOff(pitch int) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.active[pitch] == 0 {
		return nil
	}
	b.active[pitch]--
	if b.active[pitch] == 0 {
		delete(b.active, pitch)
	}
	return b.send(rmc.NoteOff(pitch))
}

func (b *NumpadBackend) PedalOn() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.pedal {
		return nil
	}
	b.pedal = true
	return b.send(rmc.Pedal(127))
}

func (b *NumpadBackend) PedalOff() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.pedal {
		return nil
	}
	b.pedal = false
	return b.send(rmc.Pedal(0))
}

// Shutdown sends a note-off for every sounding pitch and lifts the pedal.
func (b *NumpadBackend) Shutdown() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	pitches := make([]int, 0, len(b.active))
	for p := range b.active {
		pitches = append(pitches, p)
	}
	sort.Ints(pitches)
	b.active = make(map[int]int)

	var errs []error
	for _, p := range pitches {
		errs = append(errs, b.send(rmc.NoteOff(p)))
	}
	if b.pedal {
		b.pedal = false
		errs = append(errs, b.send(rmc.Pedal(0)))
	}
	errs = append(errs, b.kb.ReleaseAll())
	return errors.Join(errs...)
}

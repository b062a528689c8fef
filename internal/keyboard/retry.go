package keyboard

import (
	"errors"
	"log/slog"
	"time"
)

type retrying struct {
	Keyboard
	attempts int
	delay    time.Duration
	sleep    func(time.Duration)
}

// WithRetry retries a failed Down or Up up to attempts extra times, waiting
// delay, 2*delay, ... between tries. Unknown keys are not retried.
func WithRetry(kb Keyboard, attempts int, delay time.Duration) Keyboard {
	if attempts <= 0 {
		return kb
	}
	return &retrying{Keyboard: kb, attempts: attempts, delay: delay, sleep: time.Sleep}
}

func (r *retrying) do(op string, s Stroke, fn func(Stroke) error) error {
	err := fn(s)
	for i := 1; err != nil && i <= r.attempts; i++ {
		var unknown ErrUnknownKey
		if errors.As(err, &unknown) {
			return err
		}
		slog.Warn("keyboard: key failed, retrying", "op", op, "key", s.String(), "attempt", i, "err", err)
		r.sleep(time.Duration(i) * r.delay)
		err = fn(s)
	}
	return err
}

func (r *retrying) Down(s Stroke) error { return r.do("down", s, r.Keyboard.Down) }
func (r *retrying) Up(s Stroke) error   { return r.do("up", s, r.Keyboard.Up) }

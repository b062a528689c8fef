// Package player replays compiled events against an output backend in real
// time, with pause, resume and seek.
package player

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/chase3718/lou-piano/internal/keymap"
	"github.com/chase3718/lou-piano/internal/output"
	"github.com/chase3718/lou-piano/internal/schedule"
)

const (
	DefaultBatchWindow      = 500 * time.Microsecond
	DefaultProgressInterval = time.Second / 30
	// endGrace is how long past the last event the song is considered over.
	endGrace = 100 * time.Millisecond
)

// Options configures a Player. Callbacks run on the playback goroutine and
// must not block.
type Options struct {
	Countdown        int // seconds before the first note
	BatchWindow      time.Duration
	AutoPause        bool // pause at the end instead of returning
	ProgressInterval time.Duration
	Clock            Clock

	OnStatus   func(status string)
	OnProgress func(pos, total time.Duration)
	OnKey      func(pitch int, down bool)
}

// Player drives one performance.
type Player struct {
	events  []schedule.Event
	backend output.Backend
	opts    Options
	clock   Clock
	total   time.Duration
	limiter *rate.Limiter
	log     *slog.Logger

	// exec serialises batch execution with the releases done by pause and seek.
	exec sync.Mutex

	mu       sync.Mutex
	idx      int
	origin   time.Time // wall time of position zero
	started  bool
	paused   bool
	pausedAt time.Duration
	finished bool
	gen      int // bumped by every pause, resume and seek

	wake     chan struct{}
	stop     chan struct{}
	stopOnce sync.Once
}

// New prepares a player for events, which must be ordered as
// schedule.Compile returns them.
func New(events []schedule.Event, backend output.Backend, opts Options) *Player {
	if opts.BatchWindow <= 0 {
		opts.BatchWindow = DefaultBatchWindow
	}
	if opts.ProgressInterval <= 0 {
		opts.ProgressInterval = DefaultProgressInterval
	}
	if opts.Clock == nil {
		opts.Clock = RealClock{}
	}
	return &Player{
		events:  events,
		backend: backend,
		opts:    opts,
		clock:   opts.Clock,
		total:   schedule.Duration(events),
		limiter: rate.NewLimiter(rate.Every(opts.ProgressInterval), 1),
		log:     slog.Default().With("component", "player", "session", uuid.NewString()),
		wake:    make(chan struct{}, 1),
		stop:    make(chan struct{}),
	}
}

// Total is the time of the last event.
func (p *Player) Total() time.Duration { return p.total }

func (p *Player) status(s string) {
	p.log.Info("player: " + s)
	if p.opts.OnStatus != nil {
		p.opts.OnStatus(s)
	}
}

func (p *Player) signal() {
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

// Run plays until the end of the song, ctx is cancelled or Stop is called.
// Every held key is released before it returns.
func (p *Player) Run(ctx context.Context) error {
	p.log.Info("player: run", "events", len(p.events), "total", p.total, "countdown", p.opts.Countdown)
	defer func() {
		if err := p.backend.Shutdown(); err != nil {
			p.log.Warn("player: shutdown failed", "err", err)
		}
	}()

	for i := p.opts.Countdown; i > 0; i-- {
		p.status(fmt.Sprintf("starting in %d", i))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-p.stop:
			return nil
		case <-p.clock.After(time.Second):
		}
	}

	// Controls used during the countdown may have left a wake token; the
	// state below is authoritative, so drop it.
	p.drainWake()
	p.mu.Lock()
	p.origin = p.clock.Now().Add(-p.pausedAt)
	p.started = true
	paused := p.paused
	p.mu.Unlock()
	if paused {
		p.status("paused")
	} else {
		p.status("playing")
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-p.stop:
			p.status("stopped")
			return nil
		default:
		}

		p.mu.Lock()
		if p.paused {
			p.mu.Unlock()
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-p.stop:
				p.status("stopped")
				return nil
			case <-p.wake:
			}
			continue
		}

		gen := p.gen
		var deadline time.Time
		atEnd := p.idx >= len(p.events)
		if atEnd {
			deadline = p.origin.Add(p.total + endGrace)
		} else {
			deadline = p.origin.Add(p.events[p.idx].Time)
		}
		p.mu.Unlock()

		switch res, err := p.waitUntil(ctx, deadline); res {
		case waitDone:
			return err
		case waitWoken:
			continue
		}

		p.mu.Lock()
		if p.gen != gen || p.paused {
			p.mu.Unlock()
			continue
		}
		if atEnd {
			if !p.opts.AutoPause {
				p.finished = true
				p.mu.Unlock()
				p.status("finished")
				return nil
			}
			p.finished = true
			p.paused = true
			p.pausedAt = p.total
			p.mu.Unlock()
			p.status("finished, paused at end")
			continue
		}
		batch := p.nextBatch()
		// Holding exec before letting go of mu makes a concurrent Pause or
		// Seek release keys after this batch, never before it.
		p.exec.Lock()
		p.mu.Unlock()
		p.execute(batch)
		p.exec.Unlock()
		p.progress()
	}
}

type waitResult int

const (
	waitElapsed waitResult = iota // deadline reached
	waitWoken                     // a control changed state; re-plan
	waitDone                      // Stop or ctx; Run returns
)

// waitUntil sleeps until deadline.
func (p *Player) waitUntil(ctx context.Context, deadline time.Time) (waitResult, error) {
	wait := deadline.Sub(p.clock.Now())
	if wait > spinThreshold {
		select {
		case <-ctx.Done():
			return waitDone, ctx.Err()
		case <-p.stop:
			p.status("stopped")
			return waitDone, nil
		case <-p.wake:
			return waitWoken, nil
		case <-p.clock.After(wait - spinThreshold):
		}
	}
	p.clock.SpinUntil(deadline)
	return waitElapsed, nil
}

func (p *Player) drainWake() {
	select {
	case <-p.wake:
	default:
	}
}

// nextBatch takes every event within the batch window of the next one.
// Callers hold p.mu.
func (p *Player) nextBatch() []schedule.Event {
	start := p.idx
	limit := p.events[start].Time + p.opts.BatchWindow
	end := start + 1
	for end < len(p.events) && p.events[end].Time <= limit {
		end++
	}
	p.idx = end
	return p.events[start:end]
}

// execute plays a batch: pedal changes, then releases, then presses.
// Callers hold p.exec.
func (p *Player) execute(batch []schedule.Event) {
	for _, pass := range [...]func(schedule.Action) bool{
		schedule.Action.IsPedal,
		func(a schedule.Action) bool { return a == schedule.Release },
		func(a schedule.Action) bool { return a == schedule.Press },
	} {
		for _, ev := range batch {
			if !pass(ev.Action) {
				continue
			}
			if err := p.apply(ev); err != nil {
				p.log.Warn("player: backend error", "action", ev.Action.String(), "pitch", keymap.PitchName(ev.Pitch), "err", err)
			}
		}
	}
}

func (p *Player) apply(ev schedule.Event) error {
	switch ev.Action {
	case schedule.PedalDown:
		return p.backend.PedalOn()
	case schedule.PedalUp:
		return p.backend.PedalOff()
	case schedule.Release:
		if p.opts.OnKey != nil {
			p.opts.OnKey(ev.Pitch, false)
		}
		return p.backend.NoteOff(ev.Pitch)
	case schedule.Press:
		if p.opts.OnKey != nil {
			p.opts.OnKey(ev.Pitch, true)
		}
		return p.backend.NoteOn(ev.Pitch, ev.Velocity)
	}
	return nil
}

func (p *Player) progress() {
	if p.opts.OnProgress == nil || !p.limiter.Allow() {
		return
	}
	p.opts.OnProgress(p.Position(), p.total)
}

// -------------------- Controls --------------------

// Position is the current playback time.
func (p *Player) Position() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.positionLocked()
}

func (p *Player) positionLocked() time.Duration {
	if !p.started || p.paused {
		return p.pausedAt
	}
	pos := p.clock.Now().Sub(p.origin)
	if pos < 0 {
		pos = 0
	}
	if pos > p.total {
		pos = p.total
	}
	return pos
}

// Paused reports whether playback is paused.
func (p *Player) Paused() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.paused
}

// Pause stops the clock and releases every held key. During the countdown
// it takes effect when playback would start.
func (p *Player) Pause() {
	p.mu.Lock()
	if p.paused {
		p.mu.Unlock()
		return
	}
	p.pausedAt = p.positionLocked()
	p.paused = true
	p.gen++
	p.mu.Unlock()

	p.release()
	p.status("paused")
	p.signal()
}

// Resume continues from the paused position, or from the top when the song
// had finished.
func (p *Player) Resume() {
	p.mu.Lock()
	if !p.paused {
		p.mu.Unlock()
		return
	}
	if p.finished {
		p.finished = false
		p.idx = 0
		p.pausedAt = 0
	}
	p.origin = p.clock.Now().Add(-p.pausedAt)
	p.paused = false
	p.gen++
	started := p.started
	p.mu.Unlock()

	if started {
		p.status("playing")
	}
	p.signal()
}

// TogglePause pauses a playing song and resumes a paused one.
func (p *Player) TogglePause() {
	if p.Paused() {
		p.Resume()
	} else {
		p.Pause()
	}
}

// Seek jumps to t, clamped to the song, releasing every held key. Before Run
// starts it sets the starting position.
func (p *Player) Seek(t time.Duration) {
	if t < 0 {
		t = 0
	}
	if t > p.total {
		t = p.total
	}
	p.mu.Lock()
	p.idx = schedule.Search(p.events, t)
	p.origin = p.clock.Now().Add(-t)
	if p.paused || !p.started {
		p.pausedAt = t
	}
	p.finished = false
	p.gen++
	p.mu.Unlock()

	p.release()
	p.log.Info("player: seek", "to", t)
	p.signal()
}

// Stop ends Run.
func (p *Player) Stop() {
	p.stopOnce.Do(func() { close(p.stop) })
}

func (p *Player) release() {
	p.exec.Lock()
	defer p.exec.Unlock()
	if err := p.backend.Shutdown(); err != nil {
		p.log.Warn("player: release failed", "err", err)
	}
}

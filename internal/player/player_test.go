package player

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/chase3718/lou-piano/internal/schedule"
)

// fakeClock advances instantly whenever the player waits.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock { return &fakeClock{now: time.Unix(1000, 0)} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	c.now = c.now.Add(d)
	t := c.now
	c.mu.Unlock()
	ch := make(chan time.Time, 1)
	ch <- t
	return ch
}

func (c *fakeClock) SpinUntil(t time.Time) {
	c.mu.Lock()
	if c.now.Before(t) {
		c.now = t
	}
	c.mu.Unlock()
}

// manualClock only moves when the test advances it.
type manualClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []manualTimer
}

type manualTimer struct {
	at time.Time
	ch chan time.Time
}

func newManualClock() *manualClock { return &manualClock{now: time.Unix(1000, 0)} }

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	ch := make(chan time.Time, 1)
	if d <= 0 {
		ch <- c.now
		return ch
	}
	c.timers = append(c.timers, manualTimer{at: c.now.Add(d), ch: ch})
	return ch
}

func (c *manualClock) SpinUntil(t time.Time) {
	c.mu.Lock()
	if c.now.Before(t) {
		c.now = t
	}
	c.mu.Unlock()
}

// Advance moves the clock forward and fires every timer that came due.
func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	pending := c.timers[:0]
	for _, tm := range c.timers {
		if tm.at.After(c.now) {
			pending = append(pending, tm)
			continue
		}
		tm.ch <- c.now
	}
	c.timers = pending
}

// Waiters is the number of timers that have not fired.
func (c *manualClock) Waiters() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.timers)
}

// fakeBackend records calls with the clock time they happened at.
type fakeBackend struct {
	mu        sync.Mutex
	clock     Clock
	start     time.Time
	calls     []string
	shutdowns int
	failOn    int
}

func (b *fakeBackend) rec(s string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls = append(b.calls, fmt.Sprintf("%v %s", b.clock.Now().Sub(b.start), s))
	if b.failOn != 0 && len(b.calls) == b.failOn {
		return errors.New("key did not register")
	}
	return nil
}

func (b *fakeBackend) NoteOn(p, v int) error { return b.rec(fmt.Sprintf("on %d", p)) }
func (b *fakeBackend) NoteOff(p int) error   { return b.rec(fmt.Sprintf("off %d", p)) }
func (b *fakeBackend) PedalOn() error        { return b.rec("pedal on") }
func (b *fakeBackend) PedalOff() error       { return b.rec("pedal off") }
func (b *fakeBackend) Shutdown() error {
	b.mu.Lock()
	b.shutdowns++
	b.mu.Unlock()
	return nil
}

func (b *fakeBackend) snapshot() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.calls...)
}

func testEvents() []schedule.Event {
	ms := time.Millisecond
	return []schedule.Event{
		{Time: 0, Action: schedule.Press, Pitch: 60, Velocity: 100},
		{Time: 100 * ms, Action: schedule.Release, Pitch: 60},
		{Time: 100*ms + 200*time.Microsecond, Action: schedule.PedalDown},
		{Time: 100*ms + 400*time.Microsecond, Action: schedule.Press, Pitch: 62, Velocity: 90},
		{Time: 300 * ms, Action: schedule.Release, Pitch: 62},
		{Time: 300 * ms, Action: schedule.PedalUp},
	}
}

func setup(opts Options) (*Player, *fakeBackend, *fakeClock) {
	c := newFakeClock()
	b := &fakeBackend{clock: c, start: c.Now()}
	opts.Clock = c
	return New(testEvents(), b, opts), b, c
}

func TestRunPlaysInOrder(t *testing.T) {
	p, b, _ := setup(Options{})
	var statuses []string
	p.opts.OnStatus = func(s string) { statuses = append(statuses, s) }
	if err := p.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	// Events within 0.5ms of each other form one batch, played as pedal
	// changes, then releases, then presses.
	want := []string{
		"0s on 60",
		"100ms pedal on",
		"100ms off 60",
		"100ms on 62",
		"300ms pedal off",
		"300ms off 62",
	}
	if got := b.snapshot(); !reflect.DeepEqual(got, want) {
		t.Fatalf("calls = %v\nwant %v", got, want)
	}
	if b.shutdowns != 1 {
		t.Errorf("shutdowns = %d, want 1", b.shutdowns)
	}
	if statuses[len(statuses)-1] != "finished" {
		t.Errorf("statuses = %v", statuses)
	}
}

func TestRunCountdown(t *testing.T) {
	p, b, _ := setup(Options{Countdown: 3})
	var statuses []string
	p.opts.OnStatus = func(s string) { statuses = append(statuses, s) }
	if err := p.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	if statuses[0] != "starting in 3" || statuses[2] != "starting in 1" {
		t.Errorf("statuses = %v", statuses)
	}
	if got := b.snapshot()[0]; got != "3s on 60" {
		t.Errorf("first call = %q, want the note after the countdown", got)
	}
}

func TestRunCancelled(t *testing.T) {
	p, b, _ := setup(Options{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := p.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if b.shutdowns != 1 {
		t.Errorf("shutdowns = %d, want 1", b.shutdowns)
	}
}

func TestRunContinuesAfterBackendError(t *testing.T) {
	p, b, _ := setup(Options{})
	b.failOn = 1
	if err := p.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	if n := len(b.snapshot()); n != 6 {
		t.Errorf("got %d calls, want all 6", n)
	}
}

func TestSeekBeforeStart(t *testing.T) {
	p, b, _ := setup(Options{})
	p.Seek(200 * time.Millisecond)
	if p.Position() != 200*time.Millisecond {
		t.Errorf("Position = %v", p.Position())
	}
	if err := p.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	want := []string{"100ms pedal off", "100ms off 62"}
	if got := b.snapshot(); !reflect.DeepEqual(got, want) {
		t.Fatalf("calls = %v, want %v", got, want)
	}
}

func TestAutoPauseAndResume(t *testing.T) {
	p, b, _ := setup(Options{AutoPause: true})
	done := make(chan error, 1)
	go func() { done <- p.Run(context.Background()) }()

	waitFor(t, p.Paused)
	if p.Position() != p.Total() {
		t.Errorf("paused at %v, want %v", p.Position(), p.Total())
	}
	calls := len(b.snapshot())

	// Resuming a finished song starts over.
	p.Resume()
	waitFor(t, func() bool { return len(b.snapshot()) >= 2*calls && p.Paused() })

	p.Stop()
	select {
	case err := <-done:
		if err != nil {
			t.Fatal(err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after Stop")
	}
}

func TestPauseHoldsPosition(t *testing.T) {
	p, b, c := setup(Options{})
	p.mu.Lock()
	p.started = true
	p.origin = c.Now()
	p.mu.Unlock()

	c.After(150 * time.Millisecond)
	p.Pause()
	if !p.Paused() || p.Position() != 150*time.Millisecond {
		t.Fatalf("paused=%v position=%v", p.Paused(), p.Position())
	}
	c.After(time.Second)
	if p.Position() != 150*time.Millisecond {
		t.Errorf("position moved while paused: %v", p.Position())
	}
	p.TogglePause()
	c.After(50 * time.Millisecond)
	if p.Paused() || p.Position() != 200*time.Millisecond {
		t.Errorf("after resume paused=%v position=%v", p.Paused(), p.Position())
	}
	if b.shutdowns != 1 {
		t.Errorf("pause should release keys, shutdowns = %d", b.shutdowns)
	}
}

func manualSetup(events []schedule.Event, opts Options) (*Player, *fakeBackend, *manualClock) {
	c := newManualClock()
	b := &fakeBackend{clock: c, start: c.Now()}
	opts.Clock = c
	return New(events, b, opts), b, c
}

func runAsync(p *Player) <-chan error {
	done := make(chan error, 1)
	go func() { done <- p.Run(context.Background()) }()
	return done
}

func waitRun(t *testing.T, done <-chan error) {
	t.Helper()
	select {
	case err := <-done:
		if err != nil {
			t.Fatal(err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return")
	}
}

func oneNote() []schedule.Event {
	return []schedule.Event{{Time: 400 * time.Millisecond, Action: schedule.Press, Pitch: 60, Velocity: 100}}
}

func TestSeekDuringCountdownWaitsForNote(t *testing.T) {
	var p *Player
	p, b, c := manualSetup(oneNote(), Options{
		Countdown: 1,
		OnStatus: func(s string) {
			if s == "starting in 1" {
				p.Seek(0)
			}
		},
	})
	done := runAsync(p)

	waitFor(t, func() bool { return c.Waiters() == 1 })
	c.Advance(time.Second)
	waitFor(t, func() bool { return c.Waiters() == 1 })
	time.Sleep(20 * time.Millisecond)
	if got := b.snapshot(); len(got) != 0 {
		t.Fatalf("played before the note was due: %v", got)
	}

	c.Advance(400 * time.Millisecond)
	waitFor(t, func() bool { return len(b.snapshot()) == 1 })
	if got := b.snapshot()[0]; got != "1.4s on 60" {
		t.Errorf("call = %q, want 1.4s on 60", got)
	}
	waitFor(t, func() bool { return c.Waiters() == 1 })
	c.Advance(100 * time.Millisecond)
	waitRun(t, done)
}

func TestPauseDuringCountdown(t *testing.T) {
	var (
		p        *Player
		mu       sync.Mutex
		statuses []string
	)
	count := func(want string) int {
		mu.Lock()
		defer mu.Unlock()
		n := 0
		for _, s := range statuses {
			if s == want {
				n++
			}
		}
		return n
	}
	p, b, c := manualSetup(oneNote(), Options{
		Countdown: 1,
		OnStatus: func(s string) {
			mu.Lock()
			statuses = append(statuses, s)
			mu.Unlock()
			if s == "starting in 1" {
				p.Pause()
			}
		},
	})
	done := runAsync(p)

	waitFor(t, func() bool { return c.Waiters() == 1 })
	if !p.Paused() {
		t.Fatal("pause during the countdown was dropped")
	}
	c.Advance(time.Second)
	waitFor(t, func() bool { return count("paused") == 2 })
	c.Advance(time.Second)
	if got := b.snapshot(); len(got) != 0 {
		t.Fatalf("played while paused: %v", got)
	}
	if p.Position() != 0 {
		t.Errorf("Position = %v, want 0", p.Position())
	}

	p.Resume()
	waitFor(t, func() bool { return c.Waiters() == 1 })
	c.Advance(400 * time.Millisecond)
	waitFor(t, func() bool { return len(b.snapshot()) == 1 })
	if got := b.snapshot()[0]; got != "2.4s on 60" {
		t.Errorf("call = %q, want 2.4s on 60", got)
	}
	waitFor(t, func() bool { return c.Waiters() == 1 })
	c.Advance(100 * time.Millisecond)
	waitRun(t, done)
}

func TestSeekDuringPlayback(t *testing.T) {
	p, b, c := manualSetup(testEvents(), Options{})
	done := runAsync(p)

	waitFor(t, func() bool { return len(b.snapshot()) == 1 && c.Waiters() == 1 })
	p.Seek(250 * time.Millisecond)
	if got := p.Position(); got != 250*time.Millisecond {
		t.Errorf("Position after seek = %v", got)
	}

	// The timer for the abandoned deadline is still pending alongside the
	// new one.
	waitFor(t, func() bool { return c.Waiters() == 2 })
	c.Advance(50 * time.Millisecond)
	waitFor(t, func() bool { return len(b.snapshot()) == 3 })
	want := []string{"0s on 60", "50ms pedal off", "50ms off 62"}
	if got := b.snapshot(); !reflect.DeepEqual(got, want) {
		t.Fatalf("calls = %v\nwant %v", got, want)
	}

	waitFor(t, func() bool { return c.Waiters() == 2 })
	c.Advance(100 * time.Millisecond)
	waitRun(t, done)

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.shutdowns != 2 {
		t.Errorf("shutdowns = %d, want one for the seek and one at the end", b.shutdowns)
	}
}

// gateBackend holds NoteOn until the gate opens.
type gateBackend struct {
	fakeBackend
	entered chan struct{}
	gate    chan struct{}
}

func (b *gateBackend) NoteOn(p, v int) error {
	close(b.entered)
	<-b.gate
	return b.fakeBackend.NoteOn(p, v)
}

func (b *gateBackend) Shutdown() error { return b.rec("shutdown") }

func TestPauseReleasesAfterBatch(t *testing.T) {
	c := newManualClock()
	b := &gateBackend{
		fakeBackend: fakeBackend{clock: c, start: c.Now()},
		entered:     make(chan struct{}),
		gate:        make(chan struct{}),
	}
	p := New([]schedule.Event{{Action: schedule.Press, Pitch: 60, Velocity: 100}}, b, Options{Clock: c})
	done := runAsync(p)

	select {
	case <-b.entered:
	case <-time.After(5 * time.Second):
		t.Fatal("note never played")
	}
	paused := make(chan struct{})
	go func() {
		p.Pause()
		close(paused)
	}()
	time.Sleep(20 * time.Millisecond)
	if got := b.snapshot(); len(got) != 0 {
		t.Fatalf("keys released while a batch was playing: %v", got)
	}

	close(b.gate)
	<-paused
	want := []string{"0s on 60", "0s shutdown"}
	if got := b.snapshot(); !reflect.DeepEqual(got, want) {
		t.Fatalf("calls = %v, want %v", got, want)
	}
	p.Stop()
	waitRun(t, done)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met")
		}
		time.Sleep(time.Millisecond)
	}
}

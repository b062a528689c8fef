// Package schedule compiles a song into a time-ordered list of key events.
package schedule

import (
	"container/heap"
	"log/slog"
	"math/rand/v2"
	"sort"
	"time"

	"github.com/chase3718/lou-piano/internal/humanize"
	"github.com/chase3718/lou-piano/internal/song"
)

// Action is what an event does.
type Action int

const (
	PedalDown Action = iota
	PedalUp
	Release
	Press
)

func (a Action) String() string {
	switch a {
	case PedalDown:
		return "pedal_down"
	case PedalUp:
		return "pedal_up"
	case Release:
		return "release"
	case Press:
		return "press"
	}
	return "unknown"
}

// priority orders events that share a timestamp: pedal changes first, then
// releases, then presses, so a repeated note is lifted before it is struck.
func (a Action) priority() int {
	switch a {
	case PedalDown, PedalUp:
		return 0
	case Release:
		return 1
	}
	return 2
}

// IsPedal reports whether the action is a pedal change.
func (a Action) IsPedal() bool { return a == PedalDown || a == PedalUp }

// Event is one scheduled action.
type Event struct {
	Time     time.Duration
	Action   Action
	Pitch    int
	Velocity int
}

// -------------------- Min-Heap --------------------

type planned struct {
	ev  Event
	seq int
}

type MinHeap []planned

func (h MinHeap) Len() int { return len(h) }
func (h MinHeap) Less(i, j int) bool {
	a, b := h[i], h[j]
	if a.ev.Time != b.ev.Time {
		return a.ev.Time < b.ev.Time
	}
	if pa, pb := a.ev.Action.priority(), b.ev.Action.priority(); pa != pb {
		return pa < pb
	}
	return a.seq < b.seq
}
func (h MinHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *MinHeap) Push(x interface{}) { *h = append(*h, x.(planned)) }
func (h *MinHeap) Pop() interface{} {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

// -------------------- Compiler --------------------

// Options configures Compile.
type Options struct {
	Humanize      humanize.Options
	MistakeChance float64 // percent
	Pedal         humanize.PedalMode
	PedalLag      time.Duration
	Speed         float64 // playback rate, 1 = as written
}

// Compile humanizes the song and flattens it into events ordered by time
// and priority.
func Compile(s *song.Song, opts Options, rng *rand.Rand) []Event {
	if opts.Speed <= 0 {
		opts.Speed = 1
	}
	if opts.PedalLag <= 0 {
		opts.PedalLag = humanize.DefaultPedalLag
	}
	pedals := humanize.Pedals(s, opts.Pedal, opts.PedalLag)
	notes, pedals := humanize.New(opts.Humanize, rng).Apply(s, pedals)
	mistakes := humanize.Mistakes(notes, s, opts.MistakeChance, rng)

	scale := func(t time.Duration) time.Duration {
		return time.Duration(float64(t) / opts.Speed)
	}

	h := make(MinHeap, 0, 2*len(notes)+len(pedals))
	seq := 0
	push := func(ev Event) {
		heap.Push(&h, planned{ev: ev, seq: seq})
		seq++
	}
	for _, n := range notes {
		push(Event{Time: scale(n.Start), Action: Press, Pitch: n.Pitch, Velocity: n.Velocity})
		push(Event{Time: scale(n.End), Action: Release, Pitch: n.Pitch})
	}
	for _, p := range pedals {
		a := PedalUp
		if p.Down {
			a = PedalDown
		}
		push(Event{Time: scale(p.Time), Action: a})
	}

	events := make([]Event, 0, h.Len())
	for h.Len() > 0 {
		events = append(events, heap.Pop(&h).(planned).ev)
	}
	slog.Debug("schedule: compiled", "song", s.Name, "events", len(events), "notes", len(notes),
		"pedal_changes", len(pedals), "mistakes", mistakes, "speed", opts.Speed)
	return events
}

// Duration returns the time of the last event.
func Duration(events []Event) time.Duration {
	if len(events) == 0 {
		return 0
	}
	return events[len(events)-1].Time
}

// Search returns the index of the first event at or after t.
func Search(events []Event, t time.Duration) int {
	return sort.Search(len(events), func(i int) bool { return events[i].Time >= t })
}

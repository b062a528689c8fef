// Package song holds the in-memory model of a performance: timed notes,
// pedal changes, phrase sections and the tempo map they were derived from.
package song

import (
	"sort"
	"time"
)

// Hand is the hand a note is attributed to.
type Hand int

const (
	HandUnknown Hand = iota
	HandLeft
	HandRight
)

func (h Hand) String() string {
	switch h {
	case HandLeft:
		return "left"
	case HandRight:
		return "right"
	}
	return "unknown"
}

// Note is a single sounding pitch with absolute start and end times.
type Note struct {
	Pitch    int
	Velocity int
	Channel  int
	Track    int
	Start    time.Duration
	End      time.Duration
	Hand     Hand
}

// Duration returns how long the note sounds.
func (n Note) Duration() time.Duration { return n.End - n.Start }

// PedalChange is a sustain pedal transition.
type PedalChange struct {
	Time time.Duration
	Down bool
}

// Section is a musical phrase used to scope tempo sway and mistakes.
type Section struct {
	Start time.Duration
	End   time.Duration
}

// Contains reports whether t falls in [Start, End).
func (s Section) Contains(t time.Duration) bool { return t >= s.Start && t < s.End }

// Song is a parsed performance.
type Song struct {
	Name     string
	Tracks   []string
	Notes    []Note
	Pedals   []PedalChange
	Sections []Section
	Tempo    *TempoMap
	Length   time.Duration
}

// SortNotes orders notes by start time, then pitch.
func SortNotes(notes []Note) {
	sort.SliceStable(notes, func(i, j int) bool {
		if notes[i].Start != notes[j].Start {
			return notes[i].Start < notes[j].Start
		}
		return notes[i].Pitch < notes[j].Pitch
	})
}

// SectionIndex returns the index of the section containing t, or the last
// section when t is past the end. It returns -1 for a song without sections.
func (s *Song) SectionIndex(t time.Duration) int {
	if len(s.Sections) == 0 {
		return -1
	}
	i := sort.Search(len(s.Sections), func(i int) bool { return s.Sections[i].End > t })
	if i == len(s.Sections) {
		return len(s.Sections) - 1
	}
	return i
}

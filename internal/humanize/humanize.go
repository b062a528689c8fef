// Package humanize makes a mechanically exact performance sound played.
//
// Every stage is optional and draws from the injected random source, so a
// fixed seed reproduces the same performance.
package humanize

import (
	"math"
	"math/rand/v2"
	"sort"
	"time"

	"github.com/chase3718/lou-piano/internal/song"
)

const (
	// MinDuration is the shortest note the humanizer will emit.
	MinDuration = 15 * time.Millisecond
	// chordTolerance groups onsets that are meant to be simultaneous.
	chordTolerance = 10 * time.Millisecond
	maxSway        = 0.9
)

// Options selects and scales the stages.
type Options struct {
	VaryTiming      bool
	TimingJitter    time.Duration // typical per-onset deviation
	DriftCorrection bool          // pull each hand back toward the beat

	VaryArticulation bool
	Articulation     float64 // duration scale spread, 0.15 = ±15%

	ChordRoll bool
	RollStep  time.Duration // delay between successive chord notes

	TempoSway  bool
	SwayAmount float64 // peak tempo deviation within a phrase, 0.03 = ±3%
}

// DefaultOptions enables nothing but carries sensible magnitudes.
func DefaultOptions() Options {
	return Options{
		TimingJitter: 15 * time.Millisecond,
		Articulation: 0.15,
		RollStep:     12 * time.Millisecond,
		SwayAmount:   0.03,
	}
}

// Humanizer applies Options to a song.
type Humanizer struct {
	opts Options
	rng  *rand.Rand
	sway []float64 // signed amplitude per section
	secs []song.Section
}

func New(opts Options, rng *rand.Rand) *Humanizer {
	if opts.SwayAmount > maxSway {
		opts.SwayAmount = maxSway
	}
	if opts.SwayAmount < 0 {
		opts.SwayAmount = 0
	}
	return &Humanizer{opts: opts, rng: rng}
}

// Apply returns humanized copies of the song's notes and of pedals. The
// song itself is not modified.
func (h *Humanizer) Apply(s *song.Song, pedals []song.PedalChange) ([]song.Note, []song.PedalChange) {
	notes := append([]song.Note(nil), s.Notes...)
	outPedals := append([]song.PedalChange(nil), pedals...)

	if h.opts.TempoSway && h.opts.SwayAmount > 0 && len(s.Sections) > 0 {
		h.planSway(s.Sections)
		for i := range notes {
			notes[i].Start = h.Warp(notes[i].Start)
			notes[i].End = h.Warp(notes[i].End)
		}
		for i := range outPedals {
			outPedals[i].Time = h.Warp(outPedals[i].Time)
		}
	}
	if h.opts.VaryTiming && h.opts.TimingJitter > 0 {
		h.jitter(notes)
	}
	if h.opts.ChordRoll && h.opts.RollStep > 0 {
		roll(notes, h.opts.RollStep)
	}
	if h.opts.VaryArticulation && h.opts.Articulation > 0 {
		for i := range notes {
			f := 1 + (h.rng.Float64()*2-1)*h.opts.Articulation
			d := time.Duration(float64(notes[i].Duration()) * f)
			notes[i].End = notes[i].Start + d
		}
	}
	for i := range notes {
		if notes[i].Start < 0 {
			notes[i].End -= notes[i].Start
			notes[i].Start = 0
		}
		if notes[i].End < notes[i].Start+MinDuration {
			notes[i].End = notes[i].Start + MinDuration
		}
	}
	song.SortNotes(notes)
	sort.SliceStable(outPedals, func(i, j int) bool { return outPedals[i].Time < outPedals[j].Time })
	return notes, outPedals
}

// -------------------- Tempo sway --------------------

func (h *Humanizer) planSway(secs []song.Section) {
	h.secs = secs
	h.sway = make([]float64, len(secs))
	for i := range secs {
		a := h.opts.SwayAmount * (0.5 + h.rng.Float64()/2)
		if h.rng.IntN(2) == 0 {
			a = -a
		}
		h.sway[i] = a
	}
}

// Warp maps a time through the planned sway. Section boundaries are fixed
// points and the mapping is strictly increasing while |amplitude| < 1.
func (h *Humanizer) Warp(t time.Duration) time.Duration {
	if len(h.secs) == 0 {
		return t
	}
	i := sort.Search(len(h.secs), func(i int) bool { return h.secs[i].End > t })
	if i == len(h.secs) {
		return t
	}
	sec := h.secs[i]
	l := float64(sec.End - sec.Start)
	if l <= 0 || t < sec.Start {
		return t
	}
	u := float64(t-sec.Start) / l
	off := h.sway[i] * l / (2 * math.Pi) * math.Sin(2*math.Pi*u)
	return t + time.Duration(off)
}

// -------------------- Timing --------------------

func onsetKey(t time.Duration) int64 { return int64(t / chordTolerance) }

// jitter moves each hand's onsets by a random walk. Onsets shared by both
// hands are resync points: with drift correction the walk restarts there so
// the hands land together.
func (h *Humanizer) jitter(notes []song.Note) {
	hands := map[song.Hand]map[int64]bool{}
	for _, n := range notes {
		if hands[n.Hand] == nil {
			hands[n.Hand] = map[int64]bool{}
		}
		hands[n.Hand][onsetKey(n.Start)] = true
	}
	resync := map[int64]bool{}
	for k := range hands[song.HandLeft] {
		if hands[song.HandRight][k] {
			resync[k] = true
		}
	}

	sigma := float64(h.opts.TimingJitter)
	limit := 2 * sigma
	if !h.opts.DriftCorrection {
		limit = 4 * sigma
	}
	type walk struct {
		drift float64
		last  int64
		set   bool
	}
	walks := map[song.Hand]*walk{}
	for i := range notes {
		n := &notes[i]
		w := walks[n.Hand]
		if w == nil {
			w = &walk{}
			walks[n.Hand] = w
		}
		key := onsetKey(n.Start)
		if !w.set || key != w.last {
			switch {
			case h.opts.DriftCorrection && resync[key]:
				w.drift = 0
			case h.opts.DriftCorrection:
				w.drift = w.drift*0.5 + h.rng.NormFloat64()*sigma/2
			default:
				w.drift += h.rng.NormFloat64() * sigma / 2
			}
			w.drift = math.Max(-limit, math.Min(limit, w.drift))
			w.last, w.set = key, true
		}
		d := time.Duration(w.drift)
		n.Start += d
		n.End += d
	}
}

// roll staggers simultaneous notes of one hand upward by pitch.
func roll(notes []song.Note, step time.Duration) {
	song.SortNotes(notes)
	for i := 0; i < len(notes); {
		j := i + 1
		for j < len(notes) && notes[j].Start-notes[i].Start <= chordTolerance {
			j++
		}
		byHand := map[song.Hand][]int{}
		for k := i; k < j; k++ {
			byHand[notes[k].Hand] = append(byHand[notes[k].Hand], k)
		}
		for _, idx := range byHand {
			if len(idx) < 2 {
				continue
			}
			sort.Slice(idx, func(a, b int) bool { return notes[idx[a]].Pitch < notes[idx[b]].Pitch })
			base := notes[idx[0]].Start
			for r, k := range idx {
				notes[k].Start = base + time.Duration(r)*step
			}
		}
		i = j
	}
}

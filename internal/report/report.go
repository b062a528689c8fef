// Package report summarises how well a song fits the virtual piano.
package report

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/hako/durafmt"
	"github.com/remeh/sizedwaitgroup"

	"github.com/chase3718/lou-piano/internal/keymap"
	"github.com/chase3718/lou-piano/internal/midifile"
	"github.com/chase3718/lou-piano/internal/song"
)

var shortUnits, _ = durafmt.DefaultUnitsCoder.Decode("y:yrs,wk:wks,d:d,h:h,m:m,s:s,ms:ms,us:us")

// FormatDuration renders d compactly, e.g. "3 m 12 s".
func FormatDuration(d time.Duration) string {
	if d < time.Second {
		return durafmt.Parse(d.Round(time.Millisecond)).LimitFirstN(1).Format(shortUnits)
	}
	return durafmt.Parse(d.Round(time.Second)).LimitFirstN(2).Format(shortUnits)
}

// Report describes one song.
type Report struct {
	Name         string
	Path         string
	Size         int64 // file size in bytes
	Notes        int
	Chords       int // onsets with two or more notes
	Lowest       int
	Highest      int
	Direct       int // notes on the layout as written
	Folded       int // notes moved by octaves to fit
	Dropped      int // notes that cannot be played
	MaxPolyphony int
	TempoChanges int
	PedalChanges int
	Tracks       int
	Length       time.Duration
	Err          error
}

// Playable is the share of notes the layout plays, in percent.
func (r Report) Playable() float64 {
	if r.Notes == 0 {
		return 0
	}
	return float64(r.Direct+r.Folded) * 100 / float64(r.Notes)
}

// Analyze inspects s against layout.
func Analyze(s *song.Song, layout *keymap.Layout) Report {
	r := Report{Name: s.Name, Notes: len(s.Notes), Length: s.Length, Lowest: 127, PedalChanges: len(s.Pedals), Tracks: len(s.Tracks)}
	if s.Tempo != nil {
		r.TempoChanges = s.Tempo.Changes()
	}

	onsets := map[time.Duration]int{}
	type edge struct {
		at time.Duration
		d  int
	}
	edges := make([]edge, 0, 2*len(s.Notes))
	for _, n := range s.Notes {
		if n.Pitch < r.Lowest {
			r.Lowest = n.Pitch
		}
		if n.Pitch > r.Highest {
			r.Highest = n.Pitch
		}
		if _, ok := layout.Lookup(n.Pitch + layout.Transpose); ok {
			r.Direct++
		} else if _, ok := layout.Fold(n.Pitch); ok {
			r.Folded++
		} else {
			r.Dropped++
		}
		onsets[n.Start]++
		edges = append(edges, edge{n.Start, 1}, edge{n.End, -1})
	}
	for _, c := range onsets {
		if c > 1 {
			r.Chords++
		}
	}
	// releases sort before presses at the same instant
	sort.Slice(edges, func(i, j int) bool {
		if edges[i].at != edges[j].at {
			return edges[i].at < edges[j].at
		}
		return edges[i].d < edges[j].d
	})
	cur := 0
	for _, e := range edges {
		cur += e.d
		if cur > r.MaxPolyphony {
			r.MaxPolyphony = cur
		}
	}
	if r.Notes == 0 {
		r.Lowest = 0
	}
	return r
}

// Write prints the report in a human-readable block.
func (r Report) Write(w io.Writer) error {
	if r.Err != nil {
		_, err := fmt.Fprintf(w, "%s: %v\n", r.Path, r.Err)
		return err
	}
	_, err := fmt.Fprintf(w, `%s
  file size:     %s
  length:        %s
  notes:         %s (%s chords, up to %d at once)
  range:         %s..%s
  playable:      %.1f%% (%s direct, %s folded, %s dropped)
  tempo changes: %d
  pedal changes: %s
  tracks:        %d
`,
		r.Name,
		humanize.Bytes(uint64(r.Size)),
		FormatDuration(r.Length),
		humanize.Comma(int64(r.Notes)), humanize.Comma(int64(r.Chords)), r.MaxPolyphony,
		keymap.PitchName(r.Lowest), keymap.PitchName(r.Highest),
		r.Playable(), humanize.Comma(int64(r.Direct)), humanize.Comma(int64(r.Folded)), humanize.Comma(int64(r.Dropped)),
		r.TempoChanges,
		humanize.Comma(int64(r.PedalChanges)),
		r.Tracks,
	)
	return err
}

// AnalyzeFiles loads and analyses paths with up to workers files in flight.
// Results keep the order of paths; load failures are reported in Err.
func AnalyzeFiles(paths []string, opts midifile.Options, layout *keymap.Layout, workers int) []Report {
	if workers <= 0 {
		workers = 1
	}
	out := make([]Report, len(paths))
	wg := sizedwaitgroup.New(workers)
	for i, p := range paths {
		wg.Add()
		go func(i int, p string) {
			defer wg.Done()
			s, err := midifile.Load(p, opts)
			if err != nil {
				slog.Warn("report: load failed", "path", p, "err", err)
				out[i] = Report{Path: p, Err: err}
				return
			}
			r := Analyze(s, layout)
			r.Path = p
			if fi, err := os.Stat(p); err == nil {
				r.Size = fi.Size()
			}
			out[i] = r
		}(i, p)
	}
	wg.Wait()
	return out
}

// Package midifile loads Standard MIDI Files into a song.Song.
package midifile

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/smf"

	"github.com/chase3718/lou-piano/internal/song"
)

var (
	ErrNoNotes               = errors.New("midifile: file contains no notes")
	ErrUnsupportedTimeFormat = errors.New("midifile: only metric time formats are supported")
)

// percussionChannel is MIDI channel 10, zero-based.
const percussionChannel = 9

// Options controls how a file is turned into a song.
type Options struct {
	SplitPitch     int  // notes below this pitch go to the left hand
	SkipPercussion bool // drop channel 10
	PhraseBars     int  // measures per section
}

// DefaultOptions splits hands at middle C and groups four bars per phrase.
func DefaultOptions() Options {
	return Options{SplitPitch: 60, SkipPercussion: true, PhraseBars: 4}
}

// Load reads the file at path.
func Load(path string, opts Options) (*song.Song, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("midifile: open %q: %w", path, err)
	}
	defer f.Close()
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	s, err := Read(f, name, opts)
	if err != nil {
		return nil, fmt.Errorf("midifile: read %q: %w", path, err)
	}
	return s, nil
}

type noteKey struct {
	track, channel, key int
}

type openNote struct {
	tick     int64
	velocity int
}

type pedalTick struct {
	tick int64
	down bool
}

type rawNote struct {
	track, channel, key, velocity int
	on, off                       int64
}

// Read parses an SMF stream.
func Read(r io.Reader, name string, opts Options) (*song.Song, error) {
	if opts.PhraseBars <= 0 {
		opts.PhraseBars = 4
	}
	data, err := smf.ReadFrom(r)
	if err != nil {
		return nil, err
	}
	mt, ok := data.TimeFormat.(smf.MetricTicks)
	if !ok {
		return nil, ErrUnsupportedTimeFormat
	}

	var (
		tempos []song.TempoChange
		meters []song.MeterChange
		raws   []rawNote
		pedals []pedalTick
		tracks []string
	)

	for ti, track := range data.Tracks {
		var (
			tick      int64
			trackName string
			open      = map[noteKey][]openNote{}
		)
		for _, ev := range track {
			tick += int64(ev.Delta)
			msg := ev.Message

			var bpm float64
			var num, denom uint8
			var text string
			switch {
			case msg.GetMetaTempo(&bpm):
				if bpm > 0 {
					tempos = append(tempos, song.TempoChange{Tick: tick, MicrosPerQuarter: int64(math.Round(60e6 / bpm))})
				}
				continue
			case msg.GetMetaMeter(&num, &denom):
				meters = append(meters, song.MeterChange{Tick: tick, Numerator: int(num), Denominator: int(denom)})
				continue
			case msg.GetMetaTrackName(&text):
				trackName = text
				continue
			}

			var ch, key, vel, cc, val uint8
			m := midi.Message(msg)
			switch {
			case m.GetNoteStart(&ch, &key, &vel):
				if opts.SkipPercussion && ch == percussionChannel {
					continue
				}
				k := noteKey{ti, int(ch), int(key)}
				open[k] = append(open[k], openNote{tick: tick, velocity: int(vel)})
			case m.GetNoteEnd(&ch, &key):
				k := noteKey{ti, int(ch), int(key)}
				q := open[k]
				if len(q) == 0 {
					slog.Debug("midifile: note off without note on", "track", ti, "ch", ch, "key", key, "tick", tick)
					continue
				}
				raws = append(raws, rawNote{ti, int(ch), int(key), q[0].velocity, q[0].tick, tick})
				open[k] = q[1:]
			case m.GetControlChange(&ch, &cc, &val):
				if cc == 64 {
					pedals = append(pedals, pedalTick{tick, val >= 64})
				}
			}
		}
		// close dangling notes at the end of their track
		for k, q := range open {
			for _, o := range q {
				slog.Debug("midifile: closing dangling note", "track", ti, "key", k.key, "tick", o.tick)
				raws = append(raws, rawNote{k.track, k.channel, k.key, o.velocity, o.tick, tick})
			}
		}
		tracks = append(tracks, trackName)
	}

	if len(raws) == 0 {
		return nil, ErrNoNotes
	}

	tm := song.NewTempoMap(int64(mt), tempos, meters)
	s := &song.Song{Name: name, Tracks: tracks, Tempo: tm}
	for _, rn := range raws {
		n := song.Note{
			Pitch:    rn.key,
			Velocity: rn.velocity,
			Channel:  rn.channel,
			Track:    rn.track,
			Start:    tm.Duration(rn.on),
			End:      tm.Duration(rn.off),
			Hand:     song.HandRight,
		}
		if n.Pitch < opts.SplitPitch {
			n.Hand = song.HandLeft
		}
		if n.End > s.Length {
			s.Length = n.End
		}
		s.Notes = append(s.Notes, n)
	}
	song.SortNotes(s.Notes)

	for _, p := range pedals {
		s.Pedals = append(s.Pedals, song.PedalChange{Time: tm.Duration(p.tick), Down: p.down})
	}
	sort.SliceStable(s.Pedals, func(i, j int) bool { return s.Pedals[i].Time < s.Pedals[j].Time })
	s.Sections = Sections(tm, s.Length, opts.PhraseBars)

	slog.Debug("midifile: loaded", "name", name, "notes", len(s.Notes), "tracks", len(tracks),
		"pedal_changes", len(s.Pedals), "sections", len(s.Sections), "length", s.Length)
	return s, nil
}

// Sections groups every bars measures into a phrase covering [0, length].
func Sections(tm *song.TempoMap, length time.Duration, bars int) []song.Section {
	if bars <= 0 {
		bars = 4
	}
	measures := tm.Measures(length)
	var out []song.Section
	for i := 0; i < len(measures); i += bars {
		sec := song.Section{Start: measures[i], End: length}
		if i+bars < len(measures) {
			sec.End = measures[i+bars]
		}
		out = append(out, sec)
	}
	if len(out) == 0 {
		out = append(out, song.Section{Start: 0, End: length})
	}
	return out
}

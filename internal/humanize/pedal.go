package humanize

import (
	"fmt"
	"time"

	"github.com/chase3718/lou-piano/internal/song"
)

// PedalMode selects where sustain pedal changes come from.
type PedalMode string

const (
	PedalOff  PedalMode = "off"
	PedalFile PedalMode = "file"
	PedalAuto PedalMode = "auto"
)

// ParsePedalMode validates a mode name.
func ParsePedalMode(s string) (PedalMode, error) {
	switch m := PedalMode(s); m {
	case PedalOff, PedalFile, PedalAuto:
		return m, nil
	case "":
		return PedalOff, nil
	}
	return "", fmt.Errorf("humanize: unknown pedal mode %q (want off, file or auto)", s)
}

// DefaultPedalLag is how long after a bar line the auto pedal goes back down.
const DefaultPedalLag = 60 * time.Millisecond

// Pedals produces the pedal changes for mode. Auto pedalling holds the pedal
// through each bar and changes it at every bar line that starts new notes:
// up on the beat, down again lag later.
func Pedals(s *song.Song, mode PedalMode, lag time.Duration) []song.PedalChange {
	switch mode {
	case PedalFile:
		return append([]song.PedalChange(nil), s.Pedals...)
	case PedalAuto:
	default:
		return nil
	}
	if len(s.Notes) == 0 || s.Tempo == nil {
		return nil
	}
	first := s.Notes[0].Start
	last := time.Duration(0)
	for _, n := range s.Notes {
		if n.End > last {
			last = n.End
		}
	}

	out := []song.PedalChange{{Time: first + lag, Down: true}}
	bars := s.Tempo.Measures(last)
	ni := 0
	for bi, b := range bars {
		if b <= first+lag || b+lag >= last {
			continue
		}
		next := last
		if bi+1 < len(bars) {
			next = bars[bi+1]
		}
		for ni < len(s.Notes) && s.Notes[ni].Start < b {
			ni++
		}
		if ni >= len(s.Notes) || s.Notes[ni].Start >= next {
			continue
		}
		out = append(out, song.PedalChange{Time: b, Down: false}, song.PedalChange{Time: b + lag, Down: true})
	}
	out = append(out, song.PedalChange{Time: last, Down: false})
	return out
}

package humanize

import (
	"log/slog"
	"math/rand/v2"

	"github.com/chase3718/lou-piano/internal/keymap"
	"github.com/chase3718/lou-piano/internal/song"
)

// Mistakes replaces some notes with a neighbouring pitch. Only the first
// appearance of a pitch in each section can be missed, so a repeated figure
// is fumbled at most once per phrase. chance is a percentage.
func Mistakes(notes []song.Note, s *song.Song, chance float64, rng *rand.Rand) int {
	if chance <= 0 {
		return 0
	}
	type seenKey struct{ section, pitch int }
	seen := map[seenKey]bool{}
	count := 0
	for i := range notes {
		k := seenKey{s.SectionIndex(notes[i].Start), notes[i].Pitch}
		if seen[k] {
			continue
		}
		seen[k] = true
		if rng.Float64()*100 >= chance {
			continue
		}
		wrong := Neighbor(notes[i].Pitch, rng)
		slog.Debug("humanize: mistake", "pitch", keymap.PitchName(notes[i].Pitch), "played", keymap.PitchName(wrong))
		notes[i].Pitch = wrong
		count++
	}
	return count
}

// Neighbor picks a plausible wrong note next to pitch: any key one or two
// semitones away for a black key, the adjacent white keys for a white one.
func Neighbor(pitch int, rng *rand.Rand) int {
	var cands []int
	for _, d := range []int{-2, -1, 1, 2} {
		p := pitch + d
		if p < 0 || p > 127 {
			continue
		}
		if keymap.IsBlack(pitch) || !keymap.IsBlack(p) {
			cands = append(cands, p)
		}
	}
	if len(cands) == 0 {
		return pitch
	}
	return cands[rng.IntN(len(cands))]
}

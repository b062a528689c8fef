package report

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/smf"

	"github.com/chase3718/lou-piano/internal/keymap"
	"github.com/chase3718/lou-piano/internal/midifile"
	"github.com/chase3718/lou-piano/internal/song"
)

func TestAnalyze(t *testing.T) {
	s := &song.Song{
		Name:   "range",
		Length: 2 * time.Second,
		Tempo:  song.NewTempoMap(480, nil, nil),
		Notes: []song.Note{
			{Pitch: 60, Start: 0, End: time.Second},
			{Pitch: 64, Start: 0, End: time.Second},
			{Pitch: 24, Start: time.Second, End: 2 * time.Second},
			{Pitch: 100, Start: time.Second, End: 2 * time.Second},
		},
	}
	r := Analyze(s, keymap.New(false))
	if r.Direct != 2 || r.Folded != 2 || r.Dropped != 0 {
		t.Errorf("direct/folded/dropped = %d/%d/%d", r.Direct, r.Folded, r.Dropped)
	}
	if r.Chords != 2 || r.MaxPolyphony != 2 {
		t.Errorf("chords=%d polyphony=%d", r.Chords, r.MaxPolyphony)
	}
	if r.Lowest != 24 || r.Highest != 100 {
		t.Errorf("range = %d..%d", r.Lowest, r.Highest)
	}
	if r.Playable() != 100 {
		t.Errorf("Playable = %v", r.Playable())
	}

	var buf bytes.Buffer
	if err := r.Write(&buf); err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"range", "C1..E7", "100.0%", "2 s"} {
		if !strings.Contains(buf.String(), want) {
			t.Errorf("report missing %q:\n%s", want, buf.String())
		}
	}
}

func TestFormatDuration(t *testing.T) {
	tests := map[time.Duration]string{
		192 * time.Second: "3 m 12 s",
		2*time.Hour + time.Minute + 5*time.Second: "2 h 1 m",
		250 * time.Millisecond: "250 ms",
	}
	for d, want := range tests {
		if got := FormatDuration(d); got != want {
			t.Errorf("FormatDuration(%v) = %q, want %q", d, got, want)
		}
	}
}

func writeSMF(t *testing.T, path string) {
	t.Helper()
	s := smf.New()
	s.TimeFormat = smf.MetricTicks(480)
	var tr smf.Track
	tr.Add(0, midi.NoteOn(0, 60, 100))
	tr.Add(480, midi.NoteOff(0, 60))
	tr.Close(0)
	if err := s.Add(tr); err != nil {
		t.Fatal(err)
	}
	if err := s.WriteFile(path); err != nil {
		t.Fatal(err)
	}
}

func TestAnalyzeFiles(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "good.mid")
	writeSMF(t, good)
	bad := filepath.Join(dir, "bad.mid")
	if err := os.WriteFile(bad, []byte("not midi"), 0o644); err != nil {
		t.Fatal(err)
	}
	reports := AnalyzeFiles([]string{good, bad, filepath.Join(dir, "missing.mid")}, midifile.DefaultOptions(), keymap.New(false), 2)
	if len(reports) != 3 {
		t.Fatalf("got %d reports", len(reports))
	}
	if reports[0].Err != nil || reports[0].Notes != 1 || reports[0].Name != "good" {
		t.Errorf("good report = %+v", reports[0])
	}
	if reports[0].Size == 0 {
		t.Error("file size not recorded")
	}
	if reports[1].Err == nil || reports[2].Err == nil {
		t.Errorf("expected errors, got %v / %v", reports[1].Err, reports[2].Err)
	}
}

// Package render synthesises a compiled performance to a WAV file so it can
// be checked by ear before it is played into the game.
package render

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"time"

	"github.com/sinshu/go-meltysynth/meltysynth"

	"github.com/chase3718/lou-piano/internal/keymap"
	"github.com/chase3718/lou-piano/internal/schedule"
)

const (
	sampleRate   = 44100
	block        = 1024
	tailSamples  = 2 * sampleRate
	fadeSamples  = sampleRate
	pianoProgram = 0
)

// synthesizer abstracts the subset of meltysynth.Synthesizer used by Render.
type synthesizer interface {
	ProcessMidiMessage(channel int32, command int32, data1, data2 int32)
	NoteOn(channel, key, vel int32)
	NoteOff(channel, key int32)
	Render(left, right []float32)
}

// newSynthesizer constructs a meltysynth synthesizer. Tests may override this
// to inject a mock implementation.
var newSynthesizer = func(sf *meltysynth.SoundFont, settings *meltysynth.SynthesizerSettings) (synthesizer, error) {
	return meltysynth.NewSynthesizer(sf, settings)
}

// LoadSoundFont reads an SF2 file.
func LoadSoundFont(path string) (*meltysynth.SoundFont, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("render: soundfont: %w", err)
	}
	sf, err := meltysynth.NewSoundFont(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("render: parse soundfont %s: %w", path, err)
	}
	return sf, nil
}

func toSamples(d time.Duration) int {
	return int((d.Nanoseconds()*int64(sampleRate) + int64(time.Second/2)) / int64(time.Second))
}

// Render synthesises events. With a layout, pitches are folded exactly as
// the keyboard backend folds them; unplayable notes are skipped.
func Render(events []schedule.Event, sf *meltysynth.SoundFont, layout *keymap.Layout) ([]float32, []float32, error) {
	settings := meltysynth.NewSynthesizerSettings(sampleRate)
	settings.BlockSize = block
	syn, err := newSynthesizer(sf, settings)
	if err != nil {
		return nil, nil, fmt.Errorf("render: synthesizer: %w", err)
	}
	const ch = 0
	syn.ProcessMidiMessage(ch, 0xC0, pianoProgram, 0)

	type timed struct {
		sample int
		ev     schedule.Event
	}
	var evs []timed
	for _, ev := range events {
		if layout != nil && !ev.Action.IsPedal() {
			p, ok := layout.Fold(ev.Pitch)
			if !ok {
				continue
			}
			ev.Pitch = p
		}
		evs = append(evs, timed{toSamples(ev.Time), ev})
	}
	last := 0
	if len(evs) > 0 {
		last = evs[len(evs)-1].sample
	}
	totalSamples := last + tailSamples

	left := make([]float32, totalSamples)
	right := make([]float32, totalSamples)
	active := map[int]int{}
	pos := 0

	// Render up to each event so timing is sample accurate; events arrive in
	// schedule order, which already puts pedal and releases before presses.
	for _, t := range evs {
		if t.sample > pos {
			syn.Render(left[pos:t.sample], right[pos:t.sample])
			pos = t.sample
		}
		switch t.ev.Action {
		case schedule.PedalDown:
			syn.ProcessMidiMessage(ch, 0xB0, 64, 127)
		case schedule.PedalUp:
			syn.ProcessMidiMessage(ch, 0xB0, 64, 0)
		case schedule.Release:
			if active[t.ev.Pitch] > 0 {
				active[t.ev.Pitch]--
				syn.NoteOff(ch, int32(t.ev.Pitch))
			}
		case schedule.Press:
			syn.NoteOn(ch, int32(t.ev.Pitch), int32(t.ev.Velocity))
			active[t.ev.Pitch]++
		}
	}
	if pos < totalSamples {
		syn.Render(left[pos:], right[pos:])
	}
	return left, right, nil
}

// MixPCM fades out the last second, normalises and returns interleaved
// 16-bit stereo PCM.
func MixPCM(leftAll, rightAll []float32) []byte {
	if len(leftAll) == len(rightAll) && len(leftAll) > 0 {
		fade := fadeSamples
		n := len(leftAll)
		if fade > n {
			fade = n
		}
		start := n - fade
		for i := start; i < n; i++ {
			g := 1 - float32(i-start)/float32(fade)
			leftAll[i] *= g
			rightAll[i] *= g
		}
	}

	var peak float32
	for i := range leftAll {
		if v := float32(math.Abs(float64(leftAll[i]))); v > peak {
			peak = v
		}
		if v := float32(math.Abs(float64(rightAll[i]))); v > peak {
			peak = v
		}
	}
	if peak > 0 {
		g := float32(0.99) / peak
		for i := range leftAll {
			leftAll[i] *= g
			rightAll[i] *= g
		}
	}

	pcm := make([]byte, len(leftAll)*4)
	for i := range leftAll {
		l := int16(leftAll[i] * 32767)
		r := int16(rightAll[i] * 32767)
		binary.LittleEndian.PutUint16(pcm[4*i:], uint16(l))
		binary.LittleEndian.PutUint16(pcm[4*i+2:], uint16(r))
	}
	return pcm
}

// WriteWAV writes 16-bit stereo PCM with a RIFF header.
func WriteWAV(w io.Writer, pcm []byte) error {
	dataLen := uint32(len(pcm))
	var header [44]byte
	copy(header[0:], "RIFF")
	binary.LittleEndian.PutUint32(header[4:], 36+dataLen)
	copy(header[8:], "WAVE")
	copy(header[12:], "fmt ")
	binary.LittleEndian.PutUint32(header[16:], 16)
	binary.LittleEndian.PutUint16(header[20:], 1)
	binary.LittleEndian.PutUint16(header[22:], 2)
	binary.LittleEndian.PutUint32(header[24:], uint32(sampleRate))
	binary.LittleEndian.PutUint32(header[28:], uint32(sampleRate*4))
	binary.LittleEndian.PutUint16(header[32:], 4)
	binary.LittleEndian.PutUint16(header[34:], 16)
	copy(header[36:], "data")
	binary.LittleEndian.PutUint32(header[40:], dataLen)

	if _, err := w.Write(header[:]); err != nil {
		return fmt.Errorf("render: wav header: %w", err)
	}
	if _, err := w.Write(pcm); err != nil {
		return fmt.Errorf("render: wav data: %w", err)
	}
	return nil
}

// File renders events with the soundfont at sfPath into a WAV at out.
func File(out string, events []schedule.Event, sfPath string, layout *keymap.Layout) (err error) {
	if sfPath == "" {
		return errors.New("render: no soundfont configured")
	}
	sf, err := LoadSoundFont(sfPath)
	if err != nil {
		return err
	}
	left, right, err := Render(events, sf, layout)
	if err != nil {
		return err
	}
	f, err := os.Create(out)
	if err != nil {
		return fmt.Errorf("render: %w", err)
	}
	defer func() {
		if cerr := f.Close(); err == nil && cerr != nil {
			err = fmt.Errorf("render: %w", cerr)
		}
	}()
	if err := WriteWAV(f, MixPCM(left, right)); err != nil {
		return err
	}
	slog.Info("render: wrote preview", "path", out, "seconds", float64(len(left))/sampleRate)
	return nil
}

// Command lou-piano plays Standard MIDI Files on a game's virtual piano by
// simulating key presses.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"gitlab.com/gomidi/midi/v2/drivers/rtmididrv"

	"github.com/chase3718/lou-piano/internal/config"
	"github.com/chase3718/lou-piano/internal/desktop"
	"github.com/chase3718/lou-piano/internal/humanize"
	"github.com/chase3718/lou-piano/internal/keyboard"
	"github.com/chase3718/lou-piano/internal/keymap"
	"github.com/chase3718/lou-piano/internal/live"
	"github.com/chase3718/lou-piano/internal/midifile"
	"github.com/chase3718/lou-piano/internal/output"
	"github.com/chase3718/lou-piano/internal/player"
	"github.com/chase3718/lou-piano/internal/render"
	"github.com/chase3718/lou-piano/internal/report"
	"github.com/chase3718/lou-piano/internal/schedule"
)

const usage = `usage:
  lou-piano [flags] [file.mid]        play (opens a file picker without a file)
  lou-piano play [flags] file.mid
  lou-piano live [flags]              forward a MIDI keyboard to the game
  lou-piano analyze [flags] file.mid...
  lou-piano render [flags] file.mid   write a WAV preview
  lou-piano keys [flags]              print the key layout
  lou-piano test-keys [flags]         press every key once
  lou-piano config [-write]           print (or save) the effective settings

run "lou-piano <command> -help" for the flags of a command`

var commands = map[string]func(ctx context.Context, args []string, s config.Settings, dir string) error{
	"play":      cmdPlay,
	"live":      cmdLive,
	"analyze":   cmdAnalyze,
	"render":    cmdRender,
	"keys":      cmdKeys,
	"test-keys": cmdTestKeys,
	"config":    cmdConfig,
}

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	name := "play"
	if len(args) > 0 {
		if _, ok := commands[args[0]]; ok {
			name, args = args[0], args[1:]
		} else if args[0] == "help" {
			fmt.Fprintln(os.Stderr, usage)
			return 0
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	initLogger(false)
	dir, err := config.Dir()
	if err != nil {
		slog.Error("config: no settings directory", "err", err)
		return 1
	}
	s, err := config.Load(dir)
	if err != nil {
		slog.Warn("config: using defaults", "err", err)
	}

	err = commands[name](ctx, args, s, dir)
	switch {
	case err == nil, errors.Is(err, context.Canceled):
		return 0
	case errors.Is(err, flag.ErrHelp):
		return 0
	case errors.Is(err, desktop.ErrCancelled):
		slog.Info("no file selected")
		return 0
	}
	slog.Error(name+" failed", "err", err)
	return 1
}

// -------------------- Flags --------------------

// newFlagSet returns a flag set with -debug, and, when withSettings is set,
// one flag per user setting defaulting to the loaded value.
func newFlagSet(name string, s *config.Settings, withSettings bool) (*flag.FlagSet, *bool) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "%s\n\nflags of %s:\n", usage, name)
		fs.PrintDefaults()
	}
	debug := fs.Bool("debug", false, "enable debug logging (adds source location)")
	if !withSettings {
		return fs, debug
	}
	fs.StringVar(&s.OutputMode, "mode", s.OutputMode, "output mode: keyboard or numpad")
	fs.StringVar(&s.Driver, "driver", s.Driver, "key driver: system, serial or dry-run")
	fs.StringVar(&s.SerialPort, "serial", s.SerialPort, "serial HID bridge device (empty picks the only port)")
	fs.IntVar(&s.SerialBaud, "baud", s.SerialBaud, "serial baud rate")
	fs.BoolVar(&s.Use88Keys, "88", s.Use88Keys, "use the 88-key layout (ctrl for the outer octaves)")
	fs.IntVar(&s.Transpose, "transpose", s.Transpose, "semitones added to every note")
	fs.Float64Var(&s.Speed, "speed", s.Speed, "playback speed, 1 = as written")
	fs.IntVar(&s.Countdown, "countdown", s.Countdown, "seconds before the first note")
	fs.StringVar(&s.Pedal, "pedal", s.Pedal, "sustain pedal: off, file or auto")
	fs.BoolVar(&s.AutoPause, "auto-pause", s.AutoPause, "pause at the end instead of exiting")
	fs.IntVar(&s.KeyRetries, "retries", s.KeyRetries, "retries for a failed key press")
	fs.IntVar(&s.SplitPitch, "split", s.SplitPitch, "lowest right-hand pitch")

	h := &s.Humanize
	fs.BoolVar(&h.VaryTiming, "jitter", h.VaryTiming, "vary note timing")
	fs.Float64Var(&h.TimingJitterMs, "jitter-ms", h.TimingJitterMs, "typical timing deviation in ms")
	fs.BoolVar(&h.DriftCorrection, "drift-correction", h.DriftCorrection, "pull hands back to the beat")
	fs.BoolVar(&h.VaryArticulation, "articulation", h.VaryArticulation, "vary note lengths")
	fs.BoolVar(&h.ChordRoll, "roll", h.ChordRoll, "roll chords upward")
	fs.BoolVar(&h.TempoSway, "sway", h.TempoSway, "sway the tempo within phrases")
	fs.Float64Var(&h.MistakeChance, "mistakes", h.MistakeChance, "chance of a wrong note in percent")
	fs.Uint64Var(&h.Seed, "seed", h.Seed, "random seed, 0 picks one")
	return fs, debug
}

func parse(fs *flag.FlagSet, debug *bool, s *config.Settings, args []string) error {
	if err := fs.Parse(args); err != nil {
		return err
	}
	initLogger(*debug)
	s.Clamp()
	return nil
}

// -------------------- Wiring --------------------

func midiOptions(s config.Settings) midifile.Options {
	return midifile.Options{SplitPitch: s.SplitPitch, SkipPercussion: s.SkipPercussion, PhraseBars: s.PhraseBars}
}

func layoutFor(s config.Settings) *keymap.Layout {
	l := keymap.New(s.Use88Keys)
	l.Transpose = s.Transpose
	return l
}

func scheduleOptions(s config.Settings) schedule.Options {
	mode, err := humanize.ParsePedalMode(s.Pedal)
	if err != nil {
		mode = humanize.PedalOff
	}
	h := s.Humanize
	return schedule.Options{
		Humanize: humanize.Options{
			VaryTiming:       h.VaryTiming,
			TimingJitter:     config.Ms(h.TimingJitterMs),
			DriftCorrection:  h.DriftCorrection,
			VaryArticulation: h.VaryArticulation,
			Articulation:     h.Articulation,
			ChordRoll:        h.ChordRoll,
			RollStep:         config.Ms(h.RollStepMs),
			TempoSway:        h.TempoSway,
			SwayAmount:       h.SwayAmount,
		},
		MistakeChance: h.MistakeChance,
		Pedal:         mode,
		Speed:         s.Speed,
	}
}

func newRand(seed uint64) *rand.Rand {
	if seed == 0 {
		seed = rand.Uint64()
	}
	slog.Debug("humanize: seed", "seed", seed)
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

// openBackend opens the configured key driver and wraps it in the output
// backend. The returned func closes the driver.
func openBackend(s config.Settings, layout *keymap.Layout) (output.Backend, func(), error) {
	kb, err := keyboard.Open(s.Driver, s.SerialPort, s.SerialBaud)
	if err != nil {
		return nil, nil, err
	}
	kb = keyboard.WithRetry(kb, s.KeyRetries, config.Ms(s.RetryDelayMs))
	b, err := output.New(s.OutputMode, kb, output.Options{
		Layout:       layout,
		RestrikeGap:  config.Ms(s.RestrikeGapMs),
		MessageDelay: config.Ms(s.MessageDelayMs),
	})
	if err != nil {
		_ = kb.Close()
		return nil, nil, err
	}
	closeKB := func() {
		if err := kb.Close(); err != nil {
			slog.Warn("keyboard: close failed", "err", err)
		}
	}
	return b, closeKB, nil
}

// -------------------- Commands --------------------

func cmdPlay(ctx context.Context, args []string, s config.Settings, dir string) error {
	fs, debug := newFlagSet("play", &s, true)
	if err := parse(fs, debug, &s, args); err != nil {
		return err
	}

	path := fs.Arg(0)
	if path == "" {
		var err error
		if path, err = desktop.PickMIDI(); err != nil {
			return err
		}
	}
	sg, err := midifile.Load(path, midiOptions(s))
	if err != nil {
		return err
	}
	layout := layoutFor(s)
	events := schedule.Compile(sg, scheduleOptions(s), newRand(s.Humanize.Seed))

	backend, closeKB, err := openBackend(s, layout)
	if err != nil {
		return err
	}
	defer closeKB()

	presence := desktop.StartPresence(s.DiscordAppID)
	defer presence.Close()
	presence.SetSong(sg.Name)

	slog.Info("lou-piano playing", "song", sg.Name, "notes", len(sg.Notes),
		"length", report.FormatDuration(sg.Length), "mode", s.OutputMode, "driver", s.Driver,
		"speed", s.Speed, "pedal", s.Pedal)

	p := player.New(events, backend, player.Options{
		Countdown: s.Countdown,
		AutoPause: s.AutoPause,
		OnStatus: func(st string) {
			fmt.Fprintf(os.Stderr, "\r%-40s\n", st)
		},
		OnProgress: func(pos, total time.Duration) {
			fmt.Fprintf(os.Stderr, "\r%s / %s   ", report.FormatDuration(pos), report.FormatDuration(total))
		},
		OnKey: func(pitch int, down bool) {
			slog.Debug("key", "pitch", keymap.PitchName(pitch), "down", down)
		},
	})

	fmt.Fprintln(os.Stderr, controlHelp)
	ctrlCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go controlLoop(ctrlCtx, os.Stdin, os.Stderr, p)

	err = p.Run(ctx)
	if err == nil && s.NotifyOnFinish {
		desktop.Notify("Lou Piano", "Finished "+sg.Name)
	}
	return err
}

func cmdLive(ctx context.Context, args []string, s config.Settings, dir string) error {
	fs, debug := newFlagSet("live", &s, true)
	if err := parse(fs, debug, &s, args); err != nil {
		return err
	}
	backend, closeKB, err := openBackend(s, layoutFor(s))
	if err != nil {
		return err
	}
	defer closeKB()

	drv, err := rtmididrv.New()
	if err != nil {
		return fmt.Errorf("live: midi driver: %w", err)
	}
	fwd := live.NewForwarder(backend)
	w := live.NewWatcher(drv, s.PreferredDevices, s.ExcludedDevices, fwd.Handle, fwd.Panic)
	defer w.Close()
	defer fwd.Panic()

	presence := desktop.StartPresence(s.DiscordAppID)
	defer presence.Close()
	presence.Set("Lou Piano", "playing live")

	slog.Info("lou-piano live, waiting for a MIDI device", "preferred", strings.Join(s.PreferredDevices, ", "))
	w.Run(ctx)
	slog.Info("live: stopped", "notes", fwd.Notes())
	return nil
}

func cmdAnalyze(ctx context.Context, args []string, s config.Settings, dir string) error {
	fs, debug := newFlagSet("analyze", &s, true)
	workers := fs.Int("workers", 4, "files analysed at once")
	if err := parse(fs, debug, &s, args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return errors.New("analyze: no files given")
	}
	reports := report.AnalyzeFiles(fs.Args(), midiOptions(s), layoutFor(s), *workers)
	failed := 0
	for _, r := range reports {
		if r.Err != nil {
			failed++
		}
		if err := r.Write(os.Stdout); err != nil {
			return err
		}
	}
	if failed > 0 {
		return fmt.Errorf("analyze: %d of %d files failed", failed, len(reports))
	}
	return nil
}

func cmdRender(ctx context.Context, args []string, s config.Settings, dir string) error {
	fs, debug := newFlagSet("render", &s, true)
	fs.StringVar(&s.SoundFont, "soundfont", s.SoundFont, "SF2 soundfont")
	out := fs.String("o", "", "output WAV (default: <song>.wav)")
	if err := parse(fs, debug, &s, args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		fs.Usage()
		return errors.New("render: need exactly one file")
	}
	sg, err := midifile.Load(fs.Arg(0), midiOptions(s))
	if err != nil {
		return err
	}
	events := schedule.Compile(sg, scheduleOptions(s), newRand(s.Humanize.Seed))
	// The numpad protocol sends pitches unfolded.
	var layout *keymap.Layout
	if s.OutputMode != output.ModeNumpad {
		layout = layoutFor(s)
	}
	if *out == "" {
		*out = filepath.Join(filepath.Dir(fs.Arg(0)), sg.Name+".wav")
	}
	return render.File(*out, events, s.SoundFont, layout)
}

func cmdKeys(ctx context.Context, args []string, s config.Settings, dir string) error {
	fs, debug := newFlagSet("keys", &s, false)
	fs.BoolVar(&s.Use88Keys, "88", s.Use88Keys, "show the 88-key layout")
	if err := parse(fs, debug, &s, args); err != nil {
		return err
	}
	return printLayout(os.Stdout, keymap.New(s.Use88Keys))
}

func printLayout(w io.Writer, l *keymap.Layout) error {
	lo, hi := l.Range()
	for p := lo; p <= hi; p++ {
		k, ok := l.Lookup(p)
		if !ok {
			continue
		}
		if _, err := fmt.Fprintf(w, "%-4s %3d  %s\n", keymap.PitchName(p), p, k); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintf(w, "sustain: %s\n", keymap.Sustain)
	return err
}

func cmdTestKeys(ctx context.Context, args []string, s config.Settings, dir string) error {
	fs, debug := newFlagSet("test-keys", &s, true)
	gap := fs.Duration("gap", 60*time.Millisecond, "time each key is held")
	if err := parse(fs, debug, &s, args); err != nil {
		return err
	}
	layout := layoutFor(s)
	layout.Transpose = 0
	backend, closeKB, err := openBackend(s, layout)
	if err != nil {
		return err
	}
	defer closeKB()
	defer func() {
		if err := backend.Shutdown(); err != nil {
			slog.Warn("test-keys: shutdown failed", "err", err)
		}
	}()

	for i := s.Countdown; i > 0; i-- {
		fmt.Fprintf(os.Stderr, "starting in %d\n", i)
		if err := sleepCtx(ctx, time.Second); err != nil {
			return err
		}
	}
	lo, hi := layout.Range()
	for p := lo; p <= hi; p++ {
		if err := backend.NoteOn(p, 100); err != nil {
			slog.Warn("test-keys: press failed", "pitch", keymap.PitchName(p), "err", err)
		}
		if err := sleepCtx(ctx, *gap); err != nil {
			return err
		}
		if err := backend.NoteOff(p); err != nil {
			slog.Warn("test-keys: release failed", "pitch", keymap.PitchName(p), "err", err)
		}
	}
	slog.Info("test-keys: done", "keys", hi-lo+1)
	return nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func cmdConfig(ctx context.Context, args []string, s config.Settings, dir string) error {
	fs, debug := newFlagSet("config", &s, true)
	write := fs.Bool("write", false, "save the effective settings to "+config.Path(dir))
	if err := parse(fs, debug, &s, args); err != nil {
		return err
	}
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("config: encode: %w", err)
	}
	fmt.Println(string(data))
	if *write {
		if err := config.Save(dir, s); err != nil {
			return err
		}
		slog.Info("config: saved", "path", config.Path(dir))
	}
	return nil
}

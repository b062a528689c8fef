// Package config persists user settings in ~/.lou-piano/config.json.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

const (
	SettingsVersion = 1
	dirName         = ".lou-piano"
	settingsFile    = "config.json"
)

// ErrUnknownVersion is returned by Load when the file was written by an
// incompatible version; the returned settings are the defaults.
var ErrUnknownVersion = errors.New("config: unknown settings version")

// Humanize mirrors humanize.Options in a JSON-friendly form.
type Humanize struct {
	VaryTiming       bool    `json:"vary_timing"`
	TimingJitterMs   float64 `json:"timing_jitter_ms"`
	DriftCorrection  bool    `json:"drift_correction"`
	VaryArticulation bool    `json:"vary_articulation"`
	Articulation     float64 `json:"articulation"`
	ChordRoll        bool    `json:"chord_roll"`
	RollStepMs       float64 `json:"roll_step_ms"`
	TempoSway        bool    `json:"tempo_sway"`
	SwayAmount       float64 `json:"sway_amount"`
	MistakeChance    float64 `json:"mistake_chance"` // percent
	Seed             uint64  `json:"seed"`           // 0 picks a random seed per run
}

// Settings is everything a run can be configured with.
type Settings struct {
	Version int `json:"version"`

	OutputMode string  `json:"output_mode"` // keyboard | numpad
	Driver     string  `json:"driver"`      // system | serial | dry-run
	SerialPort string  `json:"serial_port"`
	SerialBaud int     `json:"serial_baud"`
	Use88Keys  bool    `json:"use_88_keys"`
	Transpose  int     `json:"transpose"`
	Speed      float64 `json:"speed"`
	Countdown  int     `json:"countdown"`
	Pedal      string  `json:"pedal"` // off | file | auto
	AutoPause  bool    `json:"auto_pause"`

	Humanize Humanize `json:"humanize"`

	KeyRetries     int     `json:"key_retries"`
	RetryDelayMs   float64 `json:"retry_delay_ms"`
	RestrikeGapMs  float64 `json:"restrike_gap_ms"`
	MessageDelayMs float64 `json:"message_delay_ms"`
	SplitPitch     int     `json:"split_pitch"`
	SkipPercussion bool    `json:"skip_percussion"`
	PhraseBars     int     `json:"phrase_bars"`

	NotifyOnFinish   bool     `json:"notify_on_finish"`
	DiscordAppID     string   `json:"discord_app_id"`
	SoundFont        string   `json:"soundfont"`
	PreferredDevices []string `json:"preferred_devices"`
	ExcludedDevices  []string `json:"excluded_devices"`
}

// Defaults returns the settings used when no file exists.
func Defaults() Settings {
	return Settings{
		Version:    SettingsVersion,
		OutputMode: "keyboard",
		Driver:     "system",
		SerialBaud: 500000,
		Speed:      1,
		Countdown:  3,
		Pedal:      "off",
		Humanize: Humanize{
			TimingJitterMs: 15,
			Articulation:   0.15,
			RollStepMs:     12,
			SwayAmount:     0.03,
		},
		KeyRetries:       2,
		RetryDelayMs:     1,
		RestrikeGapMs:    1,
		SplitPitch:       60,
		SkipPercussion:   true,
		PhraseBars:       4,
		NotifyOnFinish:   true,
		PreferredDevices: []string{"Launchkey", "Novation"},
		ExcludedDevices:  []string{"Midi Through", "Through Port", "Dummy"},
	}
}

// Dir returns the settings directory under the user's home.
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("config: home directory: %w", err)
	}
	return filepath.Join(home, dirName), nil
}

// Path returns the settings file inside dir.
func Path(dir string) string { return filepath.Join(dir, settingsFile) }

// Load reads settings from dir. A missing file yields the defaults and no
// error. Values out of range are clamped.
func Load(dir string) (Settings, error) {
	data, err := os.ReadFile(Path(dir))
	if errors.Is(err, os.ErrNotExist) {
		return Defaults(), nil
	}
	if err != nil {
		return Defaults(), fmt.Errorf("config: read: %w", err)
	}
	s := Defaults()
	if err := json.Unmarshal(data, &s); err != nil {
		return Defaults(), fmt.Errorf("config: parse %s: %w", Path(dir), err)
	}
	if s.Version != SettingsVersion {
		return Defaults(), fmt.Errorf("%w %d", ErrUnknownVersion, s.Version)
	}
	s.Clamp()
	return s, nil
}

// Save writes settings to dir, creating it if needed.
func Save(dir string, s Settings) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("config: create %s: %w", dir, err)
	}
	s.Version = SettingsVersion
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("config: encode: %w", err)
	}
	path := Path(dir)
	if err := os.WriteFile(path+".tmp", data, 0o644); err != nil {
		return fmt.Errorf("config: write: %w", err)
	}
	if err := os.Rename(path+".tmp", path); err != nil {
		return fmt.Errorf("config: write: %w", err)
	}
	slog.Debug("config: saved", "path", path)
	return nil
}

func clampInt(v *int, lo, hi int) {
	if *v < lo {
		*v = lo
	} else if *v > hi {
		*v = hi
	}
}

func clampFloat(v *float64, lo, hi float64) {
	if *v < lo {
		*v = lo
	} else if *v > hi {
		*v = hi
	}
}

// Clamp pulls every value into its valid range and replaces unknown names
// with their defaults.
func (s *Settings) Clamp() {
	def := Defaults()
	switch s.OutputMode {
	case "keyboard", "numpad":
	default:
		s.OutputMode = def.OutputMode
	}
	switch s.Driver {
	case "system", "serial", "dry-run":
	default:
		s.Driver = def.Driver
	}
	switch s.Pedal {
	case "off", "file", "auto":
	default:
		s.Pedal = def.Pedal
	}
	if s.SerialBaud <= 0 {
		s.SerialBaud = def.SerialBaud
	}
	if s.Speed <= 0 {
		s.Speed = def.Speed
	}
	clampFloat(&s.Speed, 0.1, 4)
	clampInt(&s.Transpose, -48, 48)
	clampInt(&s.Countdown, 0, 10)
	clampInt(&s.KeyRetries, 0, 10)
	clampInt(&s.SplitPitch, 0, 127)
	clampInt(&s.PhraseBars, 1, 64)
	clampFloat(&s.RetryDelayMs, 0, 100)
	clampFloat(&s.RestrikeGapMs, 0, 50)
	clampFloat(&s.MessageDelayMs, 0, 100)

	h := &s.Humanize
	clampFloat(&h.TimingJitterMs, 0, 100)
	clampFloat(&h.Articulation, 0, 0.9)
	clampFloat(&h.RollStepMs, 0, 100)
	clampFloat(&h.SwayAmount, 0, 0.5)
	clampFloat(&h.MistakeChance, 0, 100)
}

// Ms converts a millisecond setting to a duration.
func Ms(v float64) time.Duration { return time.Duration(v * float64(time.Millisecond)) }

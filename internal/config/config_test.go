package config

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"
)

func TestLoadMissingReturnsDefaults(t *testing.T) {
	s, err := Load(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(s, Defaults()) {
		t.Errorf("got %+v, want defaults", s)
	}
}

func TestSaveLoad(t *testing.T) {
	dir := filepath.Join(t.TempDir(), ".lou-piano")
	s := Defaults()
	s.OutputMode = "numpad"
	s.Transpose = -12
	s.Humanize.VaryTiming = true
	s.Humanize.Seed = 42
	if err := Save(dir, s); err != nil {
		t.Fatal(err)
	}
	got, err := Load(dir)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(got, s) {
		t.Errorf("got %+v\nwant %+v", got, s)
	}
}

func TestLoadClamps(t *testing.T) {
	dir := t.TempDir()
	data := `{"version":1,"output_mode":"midi","speed":-2,"countdown":99,"transpose":100,
		"humanize":{"mistake_chance":250,"sway_amount":3},"pedal":"sometimes"}`
	if err := os.WriteFile(Path(dir), []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}
	s, err := Load(dir)
	if err != nil {
		t.Fatal(err)
	}
	if s.OutputMode != "keyboard" || s.Speed != 1 || s.Countdown != 10 || s.Transpose != 48 || s.Pedal != "off" {
		t.Errorf("not clamped: %+v", s)
	}
	if s.Humanize.MistakeChance != 100 || s.Humanize.SwayAmount != 0.5 {
		t.Errorf("humanize not clamped: %+v", s.Humanize)
	}
	// fields absent from the file keep their defaults
	if s.SplitPitch != 60 || !s.SkipPercussion {
		t.Errorf("defaults lost: %+v", s)
	}
}

func TestLoadRejectsOtherVersions(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(Path(dir), []byte(`{"version":7,"transpose":5}`), 0o644); err != nil {
		t.Fatal(err)
	}
	s, err := Load(dir)
	if !errors.Is(err, ErrUnknownVersion) {
		t.Fatalf("err = %v, want ErrUnknownVersion", err)
	}
	if s.Transpose != 0 {
		t.Errorf("expected defaults, got transpose %d", s.Transpose)
	}
}

func TestLoadBadJSON(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(Path(dir), []byte(`{`), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(dir); err == nil {
		t.Fatal("expected a parse error")
	}
}

func TestMs(t *testing.T) {
	if Ms(1.5) != 1500*time.Microsecond {
		t.Errorf("Ms(1.5) = %v", Ms(1.5))
	}
}

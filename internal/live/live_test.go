package live

import (
	"fmt"
	"reflect"
	"testing"

	"gitlab.com/gomidi/midi/v2"
)

type recBackend struct{ calls []string }

func (b *recBackend) NoteOn(p, v int) error { b.calls = append(b.calls, fmt.Sprintf("on %d %d", p, v)); return nil }
func (b *recBackend) NoteOff(p int) error   { b.calls = append(b.calls, fmt.Sprintf("off %d", p)); return nil }
func (b *recBackend) PedalOn() error        { b.calls = append(b.calls, "pedal on"); return nil }
func (b *recBackend) PedalOff() error       { b.calls = append(b.calls, "pedal off"); return nil }
func (b *recBackend) Shutdown() error       { b.calls = append(b.calls, "shutdown"); return nil }

func TestForwarder(t *testing.T) {
	b := &recBackend{}
	f := NewForwarder(b)
	for _, msg := range []midi.Message{
		midi.NoteOn(0, 60, 100),
		midi.ControlChange(0, 64, 127),
		midi.NoteOn(0, 60, 0),
		midi.ControlChange(0, 7, 100), // volume, ignored
		midi.NoteOff(1, 62),
		midi.ControlChange(0, 64, 0),
	} {
		f.Handle(msg)
	}
	f.Panic()
	want := []string{"on 60 100", "pedal on", "off 60", "off 62", "pedal off", "shutdown"}
	if !reflect.DeepEqual(b.calls, want) {
		t.Fatalf("calls = %v, want %v", b.calls, want)
	}
	if f.Notes() != 1 {
		t.Errorf("Notes() = %d, want 1", f.Notes())
	}
}

func TestPickPreferred(t *testing.T) {
	preferred := []string{"Launchkey", "Novation"}
	tests := []struct {
		name   string
		inputs []string
		want   string
		ok     bool
	}{
		{"preferred wins", []string{"Generic USB", "Novation Launchkey 49"}, "Novation Launchkey 49", true},
		{"case insensitive", []string{"Foo", "LAUNCHKEY mini"}, "LAUNCHKEY mini", true},
		{"single input", []string{"Generic USB"}, "Generic USB", true},
		{"ambiguous", []string{"A", "B"}, "", false},
		{"none", nil, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := pickPreferred(tt.inputs, preferred)
			if got != tt.want || ok != tt.ok {
				t.Errorf("pickPreferred = %q, %v; want %q, %v", got, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestMatchesAny(t *testing.T) {
	excluded := []string{"Midi Through", "Dummy"}
	if !matchesAny("Midi Through Port-0", excluded) {
		t.Error("through port should be excluded")
	}
	if matchesAny("Roland FP-30", excluded) {
		t.Error("real keyboard should not be excluded")
	}
}

package keymap

import "testing"

func TestLayout61(t *testing.T) {
	if len(Layout61) != High61-Low61+1 {
		t.Fatalf("layout has %d keys, want %d", len(Layout61), High61-Low61+1)
	}
	l := New(false)
	tests := []struct {
		pitch int
		want  Key
	}{
		{36, Key{Base: "1", Label: "1"}},
		{37, Key{Base: "1", Shift: true, Label: "!"}},
		{60, Key{Base: "t", Label: "t"}},
		{61, Key{Base: "t", Shift: true, Label: "T"}},
		{96, Key{Base: "m", Label: "m"}},
	}
	for _, tt := range tests {
		got, ok := l.Lookup(tt.pitch)
		if !ok || got != tt.want {
			t.Errorf("Lookup(%d) = %+v, %v; want %+v", tt.pitch, got, ok, tt.want)
		}
	}
	if _, ok := l.Lookup(21); ok {
		t.Error("61-key layout should not map A0")
	}
}

func TestShiftMatchesBlackKeys(t *testing.T) {
	l := New(false)
	for p := Low61; p <= High61; p++ {
		k, _ := l.Lookup(p)
		if k.Shift != IsBlack(p) {
			t.Errorf("pitch %s: shift=%v black=%v", PitchName(p), k.Shift, IsBlack(p))
		}
	}
}

func TestLayout88(t *testing.T) {
	l := New(true)
	lo, hi := l.Range()
	if lo != 21 || hi != 108 {
		t.Fatalf("Range = %d..%d, want 21..108", lo, hi)
	}
	for p := lo; p <= hi; p++ {
		if _, ok := l.Lookup(p); !ok {
			t.Errorf("pitch %d unmapped", p)
		}
	}
	if k, _ := l.Lookup(21); k != (Key{Base: "1", Ctrl: true, Label: "^1"}) {
		t.Errorf("A0 = %+v", k)
	}
	if k, _ := l.Lookup(108); k != (Key{Base: "j", Ctrl: true, Label: "^j"}) {
		t.Errorf("C8 = %+v", k)
	}
}

func TestFold(t *testing.T) {
	l := New(false)
	tests := []struct {
		pitch     int
		transpose int
		want      int
	}{
		{60, 0, 60},
		{24, 0, 36},
		{107, 0, 95},
		{21, 0, 45},
		{60, 12, 72},
		{95, 2, 85},
	}
	for _, tt := range tests {
		l.Transpose = tt.transpose
		got, ok := l.Fold(tt.pitch)
		if !ok || got != tt.want {
			t.Errorf("Fold(%d, transpose %d) = %d, %v; want %d", tt.pitch, tt.transpose, got, ok, tt.want)
		}
	}
}

func TestPitchName(t *testing.T) {
	tests := map[int]string{60: "C4", 21: "A0", 61: "C#4", 108: "C8"}
	for p, want := range tests {
		if got := PitchName(p); got != want {
			t.Errorf("PitchName(%d) = %q, want %q", p, got, want)
		}
	}
}

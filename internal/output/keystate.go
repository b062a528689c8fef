package output

// KeyState tracks which base keys are down and which pitches hold them.
// Several pitches can share a base key (C and C# are "t" and shift+"t"), and
// the same pitch can be struck again before its previous note ends, so every
// holder is reference counted.
type KeyState struct {
	holders map[string]map[int]int // base key -> pitch -> count
	keyOf   map[int][]string       // pitch -> base keys it pressed, oldest first
}

func NewKeyState() *KeyState {
	return &KeyState{holders: make(map[string]map[int]int), keyOf: make(map[int][]string)}
}

// IsDown reports whether base is currently held.
func (k *KeyState) IsDown(base string) bool { return len(k.holders[base]) > 0 }

// Press records that pitch now holds base.
func (k *KeyState) Press(base string, pitch int) {
	h := k.holders[base]
	if h == nil {
		h = make(map[int]int)
		k.holders[base] = h
	}
	h[pitch]++
	k.keyOf[pitch] = append(k.keyOf[pitch], base)
}

// Release drops one hold of pitch. It returns the base key and whether that
// key is now free to go up; ok is false when pitch holds nothing.
func (k *KeyState) Release(pitch int) (base string, free bool, ok bool) {
	q := k.keyOf[pitch]
	if len(q) == 0 {
		return "", false, false
	}
	base = q[0]
	if len(q) == 1 {
		delete(k.keyOf, pitch)
	} else {
		k.keyOf[pitch] = q[1:]
	}
	h := k.holders[base]
	h[pitch]--
	if h[pitch] <= 0 {
		delete(h, pitch)
	}
	if len(h) == 0 {
		delete(k.holders, base)
		return base, true, true
	}
	return base, false, true
}

// ClearAll forgets every hold and returns the keys that were down.
func (k *KeyState) ClearAll() []string {
	down := make([]string, 0, len(k.holders))
	for base := range k.holders {
		down = append(down, base)
	}
	k.holders = make(map[string]map[int]int)
	k.keyOf = make(map[int][]string)
	return down
}

// Active returns the number of pitches currently held.
func (k *KeyState) Active() int { return len(k.keyOf) }

package song

import (
	"sort"
	"time"
)

// DefaultMicrosPerQuarter is 120 BPM, the SMF default when no tempo event is present.
const DefaultMicrosPerQuarter = 500000

// TempoChange sets the tempo from Tick onwards.
type TempoChange struct {
	Tick             int64
	MicrosPerQuarter int64
}

// MeterChange sets the time signature from Tick onwards.
type MeterChange struct {
	Tick        int64
	Numerator   int
	Denominator int
}

// TempoMap converts ticks to wall-clock durations.
type TempoMap struct {
	Resolution int64 // ticks per quarter note
	tempos     []TempoChange
	meters     []MeterChange
	// start time of each tempo segment, parallel to tempos
	offsets []time.Duration
}

// NewTempoMap builds a map from unordered tempo and meter changes. A 120 BPM
// tempo and a 4/4 meter are assumed at tick 0 unless overridden.
func NewTempoMap(resolution int64, tempos []TempoChange, meters []MeterChange) *TempoMap {
	if resolution <= 0 {
		resolution = 480
	}
	m := &TempoMap{Resolution: resolution}

	ts := append([]TempoChange(nil), tempos...)
	sort.SliceStable(ts, func(i, j int) bool { return ts[i].Tick < ts[j].Tick })
	m.tempos = []TempoChange{{Tick: 0, MicrosPerQuarter: DefaultMicrosPerQuarter}}
	for _, t := range ts {
		if t.MicrosPerQuarter <= 0 {
			continue
		}
		last := &m.tempos[len(m.tempos)-1]
		if last.Tick == t.Tick {
			last.MicrosPerQuarter = t.MicrosPerQuarter
			continue
		}
		m.tempos = append(m.tempos, t)
	}

	ms := append([]MeterChange(nil), meters...)
	sort.SliceStable(ms, func(i, j int) bool { return ms[i].Tick < ms[j].Tick })
	m.meters = []MeterChange{{Tick: 0, Numerator: 4, Denominator: 4}}
	for _, mc := range ms {
		if mc.Numerator <= 0 || mc.Denominator <= 0 {
			continue
		}
		last := &m.meters[len(m.meters)-1]
		if last.Tick == mc.Tick {
			*last = mc
			continue
		}
		m.meters = append(m.meters, mc)
	}

	m.offsets = make([]time.Duration, len(m.tempos))
	for i := 1; i < len(m.tempos); i++ {
		prev := m.tempos[i-1]
		m.offsets[i] = m.offsets[i-1] + m.span(m.tempos[i].Tick-prev.Tick, prev.MicrosPerQuarter)
	}
	return m
}

func (m *TempoMap) span(ticks, microsPerQuarter int64) time.Duration {
	return time.Duration(ticks * microsPerQuarter * int64(time.Microsecond) / m.Resolution)
}

// Duration returns the wall-clock time of tick.
func (m *TempoMap) Duration(tick int64) time.Duration {
	i := sort.Search(len(m.tempos), func(i int) bool { return m.tempos[i].Tick > tick }) - 1
	if i < 0 {
		i = 0
	}
	t := m.tempos[i]
	return m.offsets[i] + m.span(tick-t.Tick, t.MicrosPerQuarter)
}

// Changes returns how many explicit tempo changes the map carries after the
// initial tempo.
func (m *TempoMap) Changes() int { return len(m.tempos) - 1 }

// BPM returns the tempo in effect at tick.
func (m *TempoMap) BPM(tick int64) float64 {
	i := sort.Search(len(m.tempos), func(i int) bool { return m.tempos[i].Tick > tick }) - 1
	if i < 0 {
		i = 0
	}
	return 60e6 / float64(m.tempos[i].MicrosPerQuarter)
}

// Measures returns the start time of every bar that begins before until.
func (m *TempoMap) Measures(until time.Duration) []time.Duration {
	var out []time.Duration
	tick := int64(0)
	for mi := 0; mi < len(m.meters); mi++ {
		mc := m.meters[mi]
		if tick < mc.Tick {
			tick = mc.Tick
		}
		bar := m.Resolution * 4 * int64(mc.Numerator) / int64(mc.Denominator)
		if bar <= 0 {
			continue
		}
		next := int64(-1)
		if mi+1 < len(m.meters) {
			next = m.meters[mi+1].Tick
		}
		for next < 0 || tick < next {
			d := m.Duration(tick)
			if d >= until {
				return out
			}
			out = append(out, d)
			tick += bar
		}
	}
	return out
}

package convert

import (
	"sort"

	"go-symusic/score"
)

// TempoMap is a breakpoint table of (tick, seconds at tick, seconds per
// tick from there on). Tick 0 is second 0 and 120 qpm is assumed before
// the first tempo event. Tempo events at negative times set the rate in
// effect at tick 0; times before 0 extrapolate with that rate.
type TempoMap struct {
	tpq   int32
	ticks []float64
	secs  []float64
	spt   []float64
}

func secondsPerTick(mspq uint32, tpq int32) float64 {
	return float64(mspq) / 1e6 / float64(tpq)
}

func newTempoMap(tpq int32) (*TempoMap, error) {
	if tpq <= 0 {
		return nil, score.NewValueError("ticks per quarter", "%d must be positive", tpq)
	}
	return &TempoMap{tpq: tpq}, nil
}

// push appends a breakpoint at tick; a breakpoint at the same tick as
// the previous one replaces its rate.
func (m *TempoMap) push(tick float64, mspq uint32) {
	spt := secondsPerTick(mspq, m.tpq)
	n := len(m.ticks)
	if n == 0 {
		m.ticks, m.secs, m.spt = []float64{tick}, []float64{0}, []float64{spt}
		return
	}
	last := n - 1
	if tick <= m.ticks[last] {
		m.spt[last] = spt
		return
	}
	sec := m.secs[last] + m.spt[last]*(tick-m.ticks[last])
	m.ticks = append(m.ticks, tick)
	m.secs = append(m.secs, sec)
	m.spt = append(m.spt, spt)
}

// NewTempoMap builds a map from tempo events in ticks.
func NewTempoMap(tpq int32, tempos score.Seq[score.Tempo[score.Tick]]) (*TempoMap, error) {
	m, err := newTempoMap(tpq)
	if err != nil {
		return nil, err
	}
	sorted := tempos.Sort(false)
	m.push(0, score.DefaultMSPQ)
	for _, t := range sorted {
		if t.MSPQ == 0 {
			return nil, score.NewValueError("tempo", "zero microseconds per quarter at %d", t.Time)
		}
		m.push(float64(t.Time), t.MSPQ)
	}
	return m, nil
}

// NewTempoMapQuarters builds a map from tempo events in quarters.
func NewTempoMapQuarters(tpq int32, tempos score.Seq[score.Tempo[score.Quarter]]) (*TempoMap, error) {
	m, err := newTempoMap(tpq)
	if err != nil {
		return nil, err
	}
	sorted := tempos.Sort(false)
	m.push(0, score.DefaultMSPQ)
	for _, t := range sorted {
		if t.MSPQ == 0 {
			return nil, score.NewValueError("tempo", "zero microseconds per quarter at %v", t.Time)
		}
		m.push(float64(t.Time)*float64(tpq), t.MSPQ)
	}
	return m, nil
}

// NewTempoMapSeconds builds a map from tempo events in seconds. Each
// event's tick position is found by walking the map built so far.
func NewTempoMapSeconds(tpq int32, tempos score.Seq[score.Tempo[score.Second]]) (*TempoMap, error) {
	m, err := newTempoMap(tpq)
	if err != nil {
		return nil, err
	}
	sorted := tempos.Sort(false)
	m.push(0, score.DefaultMSPQ)
	for _, t := range sorted {
		if t.MSPQ == 0 {
			return nil, score.NewValueError("tempo", "zero microseconds per quarter at %v", t.Time)
		}
		m.push(m.Tick(float64(t.Time)), t.MSPQ)
	}
	return m, nil
}

func (m *TempoMap) TicksPerQuarter() int32 { return m.tpq }

// Seconds maps a tick position to wall-clock seconds. The breakpoint in
// effect is the rightmost one at or before tick.
func (m *TempoMap) Seconds(tick float64) float64 {
	i := sort.Search(len(m.ticks), func(i int) bool { return m.ticks[i] > tick }) - 1
	if i < 0 {
		i = 0
	}
	return m.secs[i] + m.spt[i]*(tick-m.ticks[i])
}

// Tick is the inverse of Seconds.
func (m *TempoMap) Tick(sec float64) float64 {
	i := sort.Search(len(m.secs), func(i int) bool { return m.secs[i] > sec }) - 1
	if i < 0 {
		i = 0
	}
	return m.ticks[i] + (sec-m.secs[i])/m.spt[i]
}

// Quarter maps ticks to quarters.
func (m *TempoMap) Quarter(tick float64) float64 { return tick / float64(m.tpq) }

// QPMAt returns the tempo in effect at tick.
func (m *TempoMap) QPMAt(tick float64) float64 {
	i := sort.Search(len(m.ticks), func(i int) bool { return m.ticks[i] > tick }) - 1
	if i < 0 {
		i = 0
	}
	return 60 / (m.spt[i] * float64(m.tpq))
}

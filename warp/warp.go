// Package warp remaps score time through a piecewise-linear function
// given as matching lists of old and new control times.
package warp

import (
	"sort"

	"go-symusic/debug"
	"go-symusic/score"
)

// Map is a monotonic piecewise-linear time function.
type Map struct {
	old []float64
	new []float64
}

// NewMap validates the control points. old must be strictly increasing
// and new non-decreasing, with at least two points each.
func NewMap[T score.Unit](oldTimes, newTimes []T) (*Map, error) {
	if len(oldTimes) != len(newTimes) {
		return nil, score.NewValueError("times", "old has %d points, new has %d", len(oldTimes), len(newTimes))
	}
	if len(oldTimes) < 2 {
		return nil, score.NewValueError("times", "need at least 2 control points, got %d", len(oldTimes))
	}
	m := &Map{old: make([]float64, len(oldTimes)), new: make([]float64, len(newTimes))}
	for i := range oldTimes {
		m.old[i], m.new[i] = float64(oldTimes[i]), float64(newTimes[i])
		if i == 0 {
			continue
		}
		if m.old[i] <= m.old[i-1] {
			return nil, score.NewValueError("old times", "not strictly increasing at index %d", i)
		}
		if m.new[i] < m.new[i-1] {
			return nil, score.NewValueError("new times", "decreasing at index %d", i)
		}
	}
	return m, nil
}

// First and Last bound the mapped domain.
func (m *Map) First() float64 { return m.old[0] }
func (m *Map) Last() float64  { return m.old[len(m.old)-1] }

// Contains reports whether t lies in [First, Last].
func (m *Map) Contains(t float64) bool {
	return t >= m.First() && t <= m.Last()
}

// segment returns the index i of the segment [old[i], old[i+1]] used for t.
// Times outside the domain use the nearest segment.
func (m *Map) segment(t float64) int {
	i := sort.Search(len(m.old), func(i int) bool { return m.old[i] > t }) - 1
	return min(max(i, 0), len(m.old)-2)
}

func (m *Map) slopeEqual(i, j int) bool {
	return (m.new[i+1]-m.new[i])*(m.old[j+1]-m.old[j]) == (m.new[j+1]-m.new[j])*(m.old[i+1]-m.old[i])
}

// At maps t, extrapolating with the first or last segment's slope.
func (m *Map) At(t float64) float64 {
	i := m.segment(t)
	return m.new[i] + (m.new[i+1]-m.new[i])*(t-m.old[i])/(m.old[i+1]-m.old[i])
}

// Cuts returns the interior control points strictly inside (start, end)
// where the slope changes.
func (m *Map) Cuts(start, end float64) []float64 {
	var cuts []float64
	for j := m.segment(start) + 1; j < len(m.old)-1 && m.old[j] < end; j++ {
		if m.old[j] <= start {
			continue
		}
		if !m.slopeEqual(j-1, j) {
			cuts = append(cuts, m.old[j])
		}
	}
	return cuts
}

// AdjustTime returns a copy of s with every time remapped from oldTimes to
// newTimes. Events starting outside [oldTimes[0], oldTimes[n-1]] are
// dropped. A note crossing a control point where the slope changes is
// split there; pieces that collapse to nothing are dropped. Note and
// pedal ends past the last control point follow the last segment's slope.
func AdjustTime[T score.Unit](s *score.Score[T], oldTimes, newTimes []T) (*score.Score[T], error) {
	m, err := NewMap(oldTimes, newTimes)
	if err != nil {
		return nil, err
	}
	out := &score.Score[T]{
		TicksPerQuarter: s.TicksPerQuarter,
		Tracks:          make([]*score.Track[T], len(s.Tracks)),
		Tempos:          points(m, s.Tempos, func(e *score.Tempo[T]) *T { return &e.Time }),
		TimeSignatures:  points(m, s.TimeSignatures, func(e *score.TimeSignature[T]) *T { return &e.Time }),
		KeySignatures:   points(m, s.KeySignatures, func(e *score.KeySignature[T]) *T { return &e.Time }),
		Markers:         points(m, s.Markers, textTime[T]),
		Lyrics:          points(m, s.Lyrics, textTime[T]),
	}
	for i, t := range s.Tracks {
		out.Tracks[i] = AdjustTrack(m, t)
	}
	debug.Log("warp", "adjusted %d tracks over %d control points: %d -> %d notes",
		len(s.Tracks), len(oldTimes), s.NoteNum(), out.NoteNum())
	return out, nil
}

// AdjustTrack remaps one track through m.
func AdjustTrack[T score.Unit](m *Map, t *score.Track[T]) *score.Track[T] {
	out := &score.Track[T]{
		Name:       t.Name,
		Program:    t.Program,
		IsDrum:     t.IsDrum,
		Controls:   points(m, t.Controls, func(e *score.ControlChange[T]) *T { return &e.Time }),
		PitchBends: points(m, t.PitchBends, func(e *score.PitchBend[T]) *T { return &e.Time }),
		Lyrics:     points(m, t.Lyrics, textTime[T]),
	}
	if t.Notes != nil {
		out.Notes = make(score.Seq[score.Note[T]], 0, len(t.Notes))
	}
	for _, n := range t.Notes {
		start, end := float64(n.Time), float64(n.End())
		if n.Duration <= 0 || !m.Contains(start) {
			continue
		}
		for _, piece := range split(m, start, end) {
			a, b := score.FromFloat[T](m.At(piece[0])), score.FromFloat[T](m.At(piece[1]))
			if b <= a {
				continue
			}
			n.Time, n.Duration = a, b-a
			out.Notes = append(out.Notes, n)
		}
	}
	if t.Pedals != nil {
		out.Pedals = make(score.Seq[score.Pedal[T]], 0, len(t.Pedals))
	}
	// Pedals are held states; they are stretched whole rather than split.
	for _, p := range t.Pedals {
		start := float64(p.Time)
		if !m.Contains(start) {
			continue
		}
		a, b := score.FromFloat[T](m.At(start)), score.FromFloat[T](m.At(float64(p.End())))
		if b < a {
			continue
		}
		out.Pedals = append(out.Pedals, score.Pedal[T]{Time: a, Duration: b - a})
	}
	return out
}

func split(m *Map, start, end float64) [][2]float64 {
	if end < start {
		return nil
	}
	var pieces [][2]float64
	at := start
	for _, c := range m.Cuts(start, end) {
		pieces = append(pieces, [2]float64{at, c})
		at = c
	}
	return append(pieces, [2]float64{at, end})
}

func textTime[T score.Unit](e *score.TextMeta[T]) *T { return &e.Time }

// points remaps the time of each event inside the domain and drops the rest.
func points[E score.Sortable[E], T score.Unit](m *Map, in score.Seq[E], timeOf func(*E) *T) score.Seq[E] {
	if in == nil {
		return nil
	}
	out := make(score.Seq[E], 0, len(in))
	for _, e := range in {
		t := timeOf(&e)
		if !m.Contains(float64(*t)) {
			continue
		}
		*t = score.FromFloat[T](m.At(float64(*t)))
		out = append(out, e)
	}
	return out
}

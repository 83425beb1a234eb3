package score

import (
	"fmt"
	"strings"
)

// DefaultTicksPerQuarter is used when a score is built without a resolution.
const DefaultTicksPerQuarter int32 = 480

// Score owns its tracks and score-level meta events. TicksPerQuarter is
// kept for every unit so converters can always map back to ticks.
type Score[T Unit] struct {
	TicksPerQuarter int32
	Tracks          []*Track[T]
	Tempos          Seq[Tempo[T]]
	TimeSignatures  Seq[TimeSignature[T]]
	KeySignatures   Seq[KeySignature[T]]
	Markers         Seq[TextMeta[T]]
	Lyrics          Seq[TextMeta[T]]
}

// New returns an empty score. tpq must be positive.
func New[T Unit](tpq int32) (*Score[T], error) {
	if tpq <= 0 {
		return nil, newValueError("ticks per quarter", "%d must be positive", tpq)
	}
	return &Score[T]{TicksPerQuarter: tpq}, nil
}

// Validate checks score-wide invariants.
func (s *Score[T]) Validate() error {
	if s.TicksPerQuarter <= 0 {
		return newValueError("ticks per quarter", "%d must be positive", s.TicksPerQuarter)
	}
	for i, tp := range s.Tempos {
		if tp.MSPQ == 0 {
			return newValueError("tempo", "event %d has zero mspq", i)
		}
	}
	return nil
}

// Copy returns a deep copy sharing no storage with s.
func (s *Score[T]) Copy() *Score[T] {
	c := &Score[T]{
		TicksPerQuarter: s.TicksPerQuarter,
		Tempos:          s.Tempos.Copy(),
		TimeSignatures:  s.TimeSignatures.Copy(),
		KeySignatures:   s.KeySignatures.Copy(),
		Markers:         s.Markers.Copy(),
		Lyrics:          s.Lyrics.Copy(),
	}
	if s.Tracks != nil {
		c.Tracks = make([]*Track[T], len(s.Tracks))
		for i, t := range s.Tracks {
			c.Tracks[i] = t.Copy()
		}
	}
	return c
}

// Equal compares structurally, track by track in order.
func (s *Score[T]) Equal(o *Score[T]) bool {
	if s == nil || o == nil {
		return s == o
	}
	if s.TicksPerQuarter != o.TicksPerQuarter || len(s.Tracks) != len(o.Tracks) {
		return false
	}
	for i := range s.Tracks {
		if !s.Tracks[i].Equal(o.Tracks[i]) {
			return false
		}
	}
	return s.Tempos.Equal(o.Tempos) &&
		s.TimeSignatures.Equal(o.TimeSignatures) &&
		s.KeySignatures.Equal(o.KeySignatures) &&
		s.Markers.Equal(o.Markers) &&
		s.Lyrics.Equal(o.Lyrics)
}

func (s *Score[T]) NoteNum() int {
	n := 0
	for _, t := range s.Tracks {
		n += t.NoteNum()
	}
	return n
}

func (s *Score[T]) Empty() bool {
	for _, t := range s.Tracks {
		if !t.Empty() {
			return false
		}
	}
	return len(s.Tempos) == 0 && len(s.TimeSignatures) == 0 && len(s.KeySignatures) == 0 &&
		len(s.Markers) == 0 && len(s.Lyrics) == 0
}

func (s *Score[T]) span() span[T] {
	var sp span[T]
	for _, t := range s.Tracks {
		t.span(&sp)
	}
	for _, e := range s.Tempos {
		sp.add(e.Time, e.Time)
	}
	for _, e := range s.TimeSignatures {
		sp.add(e.Time, e.Time)
	}
	for _, e := range s.KeySignatures {
		sp.add(e.Time, e.Time)
	}
	for _, e := range s.Markers {
		sp.add(e.Time, e.Time)
	}
	for _, e := range s.Lyrics {
		sp.add(e.Time, e.Time)
	}
	return sp
}

// Start returns the earliest event time over tracks and meta events.
func (s *Score[T]) Start() T { return s.span().start }

// End returns the latest event end over tracks and meta events.
func (s *Score[T]) End() T { return s.span().end }

// Sort returns a copy with every container sorted.
func (s *Score[T]) Sort(reverse bool) *Score[T] {
	c := s.Copy()
	c.SortInPlace(reverse)
	return c
}

func (s *Score[T]) SortInPlace(reverse bool) {
	for _, t := range s.Tracks {
		t.SortInPlace(reverse)
	}
	s.Tempos.SortInPlace(reverse)
	s.TimeSignatures.SortInPlace(reverse)
	s.KeySignatures.SortInPlace(reverse)
	s.Markers.SortInPlace(reverse)
	s.Lyrics.SortInPlace(reverse)
}

// Clip keeps events starting in [start, end) across all tracks and meta
// containers. clipEnd additionally requires notes and pedals to end by end.
func (s *Score[T]) Clip(start, end T, clipEnd bool) *Score[T] {
	c := &Score[T]{
		TicksPerQuarter: s.TicksPerQuarter,
		Tracks:          make([]*Track[T], len(s.Tracks)),
		Tempos:          clipPoints(s.Tempos, func(e Tempo[T]) T { return e.Time }, start, end),
		TimeSignatures:  clipPoints(s.TimeSignatures, func(e TimeSignature[T]) T { return e.Time }, start, end),
		KeySignatures:   clipPoints(s.KeySignatures, func(e KeySignature[T]) T { return e.Time }, start, end),
		Markers:         clipPoints(s.Markers, func(e TextMeta[T]) T { return e.Time }, start, end),
		Lyrics:          clipPoints(s.Lyrics, func(e TextMeta[T]) T { return e.Time }, start, end),
	}
	for i, t := range s.Tracks {
		c.Tracks[i] = t.Clip(start, end, clipEnd)
	}
	return c
}

// ShiftTime returns a copy with every event moved by offset.
func (s *Score[T]) ShiftTime(offset T) *Score[T] {
	c := s.Copy()
	for _, t := range c.Tracks {
		t.ShiftTimeInPlace(offset)
	}
	for i := range c.Tempos {
		c.Tempos[i].Time += offset
	}
	for i := range c.TimeSignatures {
		c.TimeSignatures[i].Time += offset
	}
	for i := range c.KeySignatures {
		c.KeySignatures[i].Time += offset
	}
	for i := range c.Markers {
		c.Markers[i].Time += offset
	}
	for i := range c.Lyrics {
		c.Lyrics[i].Time += offset
	}
	return c
}

// ShiftPitch transposes every track; it fails atomically on overflow.
func (s *Score[T]) ShiftPitch(offset int) (*Score[T], error) {
	return s.mapTracks(func(t *Track[T]) (*Track[T], error) { return t.ShiftPitch(offset) })
}

func (s *Score[T]) ShiftVelocity(offset int) (*Score[T], error) {
	return s.mapTracks(func(t *Track[T]) (*Track[T], error) { return t.ShiftVelocity(offset) })
}

func (s *Score[T]) mapTracks(fn func(*Track[T]) (*Track[T], error)) (*Score[T], error) {
	c := s.Copy()
	for i, t := range s.Tracks {
		nt, err := fn(t)
		if err != nil {
			return nil, fmt.Errorf("track %d: %w", i, err)
		}
		c.Tracks[i] = nt
	}
	return c, nil
}

// Summary renders a short human-readable description.
func (s *Score[T]) Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Score(ttype=%s, tpq=%d, begin=%v, end=%v, tracks=%d, notes=%d, time_sig=%d, key_sig=%d, markers=%d, lyrics=%d)\n",
		KindOf[T](), s.TicksPerQuarter, s.Start(), s.End(), len(s.Tracks), s.NoteNum(),
		len(s.TimeSignatures), len(s.KeySignatures), len(s.Markers), len(s.Lyrics))
	for i, t := range s.Tracks {
		fmt.Fprintf(&b, "  %2d: %s\n", i, t)
	}
	return b.String()
}

package score

import (
	"fmt"
	"slices"
)

// Track holds one instrument's events.
type Track[T Unit] struct {
	Name       string
	Program    uint8
	IsDrum     bool
	Notes      Seq[Note[T]]
	Controls   Seq[ControlChange[T]]
	PitchBends Seq[PitchBend[T]]
	Pedals     Seq[Pedal[T]]
	Lyrics     Seq[TextMeta[T]]
}

// NewTrack validates the program number.
func NewTrack[T Unit](name string, program uint8, isDrum bool) (*Track[T], error) {
	if program > 127 {
		return nil, newValueError("program", "%d outside [0, 127]", program)
	}
	return &Track[T]{Name: name, Program: program, IsDrum: isDrum}, nil
}

// Copy returns a deep copy.
func (t *Track[T]) Copy() *Track[T] {
	return &Track[T]{
		Name:       t.Name,
		Program:    t.Program,
		IsDrum:     t.IsDrum,
		Notes:      t.Notes.Copy(),
		Controls:   t.Controls.Copy(),
		PitchBends: t.PitchBends.Copy(),
		Pedals:     t.Pedals.Copy(),
		Lyrics:     t.Lyrics.Copy(),
	}
}

// Equal compares structurally.
func (t *Track[T]) Equal(o *Track[T]) bool {
	if t == nil || o == nil {
		return t == o
	}
	return t.Name == o.Name &&
		t.Program == o.Program &&
		t.IsDrum == o.IsDrum &&
		t.Notes.Equal(o.Notes) &&
		t.Controls.Equal(o.Controls) &&
		t.PitchBends.Equal(o.PitchBends) &&
		t.Pedals.Equal(o.Pedals) &&
		t.Lyrics.Equal(o.Lyrics)
}

func (t *Track[T]) NoteNum() int { return len(t.Notes) }

// Empty reports whether the track has no events at all.
func (t *Track[T]) Empty() bool {
	return len(t.Notes) == 0 && len(t.Controls) == 0 && len(t.PitchBends) == 0 &&
		len(t.Pedals) == 0 && len(t.Lyrics) == 0
}

// span folds the earliest time and latest end over every event. ok is
// false when no event was seen.
type span[T Unit] struct {
	start, end T
	ok         bool
}

func (s *span[T]) add(start, end T) {
	if !s.ok {
		s.start, s.end, s.ok = start, end, true
		return
	}
	s.start = min(s.start, start)
	s.end = max(s.end, end)
}

func (t *Track[T]) span(s *span[T]) {
	for _, n := range t.Notes {
		s.add(n.Time, n.End())
	}
	for _, c := range t.Controls {
		s.add(c.Time, c.Time)
	}
	for _, p := range t.PitchBends {
		s.add(p.Time, p.Time)
	}
	for _, p := range t.Pedals {
		s.add(p.Time, p.End())
	}
	for _, l := range t.Lyrics {
		s.add(l.Time, l.Time)
	}
}

// Start returns the earliest event time, or zero for an empty track.
func (t *Track[T]) Start() T {
	var s span[T]
	t.span(&s)
	return s.start
}

// End returns the latest event end (note and pedal ends included).
func (t *Track[T]) End() T {
	var s span[T]
	t.span(&s)
	return s.end
}

// Sort returns a copy with every container sorted.
func (t *Track[T]) Sort(reverse bool) *Track[T] {
	c := t.Copy()
	c.SortInPlace(reverse)
	return c
}

func (t *Track[T]) SortInPlace(reverse bool) {
	t.Notes.SortInPlace(reverse)
	t.Controls.SortInPlace(reverse)
	t.PitchBends.SortInPlace(reverse)
	t.Pedals.SortInPlace(reverse)
	t.Lyrics.SortInPlace(reverse)
}

func clipPoints[E Sortable[E], T Unit](s Seq[E], at func(E) T, start, end T) Seq[E] {
	return s.Filter(func(e E) bool {
		tm := at(e)
		return tm >= start && tm < end
	}, false)
}

func clipSpans[E Sortable[E], T Unit](s Seq[E], at, until func(E) T, start, end T, clipEnd bool) Seq[E] {
	if !clipEnd {
		return clipPoints(s, at, start, end)
	}
	return s.Filter(func(e E) bool {
		return at(e) >= start && until(e) <= end
	}, false)
}

// Clip keeps events starting in [start, end). With clipEnd, notes and
// pedals must also finish by end.
func (t *Track[T]) Clip(start, end T, clipEnd bool) *Track[T] {
	return &Track[T]{
		Name:    t.Name,
		Program: t.Program,
		IsDrum:  t.IsDrum,
		Notes: clipSpans(t.Notes, func(n Note[T]) T { return n.Time }, Note[T].End,
			start, end, clipEnd),
		Controls:   clipPoints(t.Controls, func(c ControlChange[T]) T { return c.Time }, start, end),
		PitchBends: clipPoints(t.PitchBends, func(p PitchBend[T]) T { return p.Time }, start, end),
		Pedals: clipSpans(t.Pedals, func(p Pedal[T]) T { return p.Time }, Pedal[T].End,
			start, end, clipEnd),
		Lyrics: clipPoints(t.Lyrics, func(l TextMeta[T]) T { return l.Time }, start, end),
	}
}

// ShiftTime returns a copy with every event moved by offset.
func (t *Track[T]) ShiftTime(offset T) *Track[T] {
	c := t.Copy()
	c.ShiftTimeInPlace(offset)
	return c
}

func (t *Track[T]) ShiftTimeInPlace(offset T) {
	for i := range t.Notes {
		t.Notes[i].Time += offset
	}
	for i := range t.Controls {
		t.Controls[i].Time += offset
	}
	for i := range t.PitchBends {
		t.PitchBends[i].Time += offset
	}
	for i := range t.Pedals {
		t.Pedals[i].Time += offset
	}
	for i := range t.Lyrics {
		t.Lyrics[i].Time += offset
	}
}

// ShiftPitch transposes every note. Any note leaving [0, 127] fails the
// whole operation and the receiver is untouched.
func (t *Track[T]) ShiftPitch(offset int) (*Track[T], error) {
	c := t.Copy()
	for i, n := range c.Notes {
		p := int(n.Pitch) + offset
		if p < 0 || p > 127 {
			return nil, newValueError("pitch", "note %d: %d+%d outside [0, 127]", i, n.Pitch, offset)
		}
		c.Notes[i].Pitch = int8(p)
	}
	return c, nil
}

// ShiftVelocity follows the same rejection policy as ShiftPitch.
func (t *Track[T]) ShiftVelocity(offset int) (*Track[T], error) {
	c := t.Copy()
	for i, n := range c.Notes {
		v := int(n.Velocity) + offset
		if v < 0 || v > 127 {
			return nil, newValueError("velocity", "note %d: %d+%d outside [0, 127]", i, n.Velocity, offset)
		}
		c.Notes[i].Velocity = int8(v)
	}
	return c, nil
}

// Pitches returns the distinct note pitches in ascending order.
func (t *Track[T]) Pitches() []int8 {
	out := make([]int8, 0, len(t.Notes))
	for _, n := range t.Notes {
		out = append(out, n.Pitch)
	}
	slices.Sort(out)
	return slices.Compact(out)
}

func (t *Track[T]) String() string {
	return fmt.Sprintf("Track(name=%q, program=%d, is_drum=%t, notes=%d, controls=%d, pitch_bends=%d, pedals=%d, lyrics=%d)",
		t.Name, t.Program, t.IsDrum, len(t.Notes), len(t.Controls), len(t.PitchBends), len(t.Pedals), len(t.Lyrics))
}

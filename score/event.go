package score

import (
	"cmp"
	"fmt"
	"math"
	"math/bits"
	"strings"
)

// Note is a pitched event occupying [Time, Time+Duration).
type Note[T Unit] struct {
	Time     T
	Duration T
	Pitch    int8
	Velocity int8
}

// NewNote rejects pitch or velocity outside [0, 127]. Values are never clamped.
func NewNote[T Unit](time, duration T, pitch, velocity int) (Note[T], error) {
	if pitch < 0 || pitch > 127 {
		return Note[T]{}, newValueError("pitch", "%d outside [0, 127]", pitch)
	}
	if velocity < 0 || velocity > 127 {
		return Note[T]{}, newValueError("velocity", "%d outside [0, 127]", velocity)
	}
	return Note[T]{Time: time, Duration: duration, Pitch: int8(pitch), Velocity: int8(velocity)}, nil
}

func (n Note[T]) End() T { return n.Time + n.Duration }

// Empty reports whether the note makes no sound.
func (n Note[T]) Empty() bool { return n.Duration <= 0 || n.Velocity <= 0 }

func (n Note[T]) Compare(o Note[T]) int {
	if c := cmp.Compare(n.Time, o.Time); c != 0 {
		return c
	}
	if c := cmp.Compare(n.Duration, o.Duration); c != 0 {
		return c
	}
	if c := cmp.Compare(n.Pitch, o.Pitch); c != 0 {
		return c
	}
	return cmp.Compare(n.Velocity, o.Velocity)
}

func (n Note[T]) String() string {
	return fmt.Sprintf("Note(time=%v, duration=%v, pitch=%d, velocity=%d)", n.Time, n.Duration, n.Pitch, n.Velocity)
}

// Tempo is expressed in microseconds per quarter note.
type Tempo[T Unit] struct {
	Time T
	MSPQ uint32
}

// DefaultMSPQ is 120 quarters per minute.
const DefaultMSPQ uint32 = 500000

// NewTempoQPM builds a tempo from quarters per minute.
func NewTempoQPM[T Unit](time T, qpm float64) (Tempo[T], error) {
	if qpm <= 0 || math.IsNaN(qpm) || math.IsInf(qpm, 0) {
		return Tempo[T]{}, newValueError("qpm", "%v must be positive", qpm)
	}
	return Tempo[T]{Time: time, MSPQ: uint32(math.Round(60_000_000 / qpm))}, nil
}

// QPM returns quarters per minute.
func (t Tempo[T]) QPM() float64 {
	if t.MSPQ == 0 {
		return 0
	}
	return 60_000_000 / float64(t.MSPQ)
}

func (t Tempo[T]) Compare(o Tempo[T]) int {
	if c := cmp.Compare(t.Time, o.Time); c != 0 {
		return c
	}
	return cmp.Compare(t.MSPQ, o.MSPQ)
}

type TimeSignature[T Unit] struct {
	Time        T
	Numerator   uint8
	Denominator uint8
}

// NewTimeSignature requires a power-of-two denominator.
func NewTimeSignature[T Unit](time T, num, den uint8) (TimeSignature[T], error) {
	if num == 0 {
		return TimeSignature[T]{}, newValueError("numerator", "must be positive")
	}
	if den == 0 || bits.OnesCount8(den) != 1 {
		return TimeSignature[T]{}, newValueError("denominator", "%d is not a power of two", den)
	}
	return TimeSignature[T]{Time: time, Numerator: num, Denominator: den}, nil
}

func (t TimeSignature[T]) Compare(o TimeSignature[T]) int {
	if c := cmp.Compare(t.Time, o.Time); c != 0 {
		return c
	}
	if c := cmp.Compare(t.Numerator, o.Numerator); c != 0 {
		return c
	}
	return cmp.Compare(t.Denominator, o.Denominator)
}

func (t TimeSignature[T]) String() string {
	return fmt.Sprintf("%d/%d", t.Numerator, t.Denominator)
}

// KeySignature holds a circle-of-fifths offset and tonality (0 major, 1 minor).
type KeySignature[T Unit] struct {
	Time     T
	Key      int8
	Tonality int8
}

func (k KeySignature[T]) Compare(o KeySignature[T]) int {
	if c := cmp.Compare(k.Time, o.Time); c != 0 {
		return c
	}
	if c := cmp.Compare(k.Key, o.Key); c != 0 {
		return c
	}
	return cmp.Compare(k.Tonality, o.Tonality)
}

var (
	majorKeys = [...]string{"Cb", "Gb", "Db", "Ab", "Eb", "Bb", "F", "C", "G", "D", "A", "E", "B", "F#", "C#"}
	minorKeys = [...]string{"Ab", "Eb", "Bb", "F", "C", "G", "D", "A", "E", "B", "F#", "C#", "G#", "D#", "A#"}
)

// Name returns e.g. "Eb" or "F#m"; out-of-range keys print numerically.
func (k KeySignature[T]) Name() string {
	i := int(k.Key) + 7
	if i < 0 || i >= len(majorKeys) {
		return fmt.Sprintf("key(%d,%d)", k.Key, k.Tonality)
	}
	if k.Tonality != 0 {
		return minorKeys[i] + "m"
	}
	return majorKeys[i]
}

type ControlChange[T Unit] struct {
	Time   T
	Number uint8
	Value  uint8
}

func (c ControlChange[T]) Compare(o ControlChange[T]) int {
	if r := cmp.Compare(c.Time, o.Time); r != 0 {
		return r
	}
	if r := cmp.Compare(c.Number, o.Number); r != 0 {
		return r
	}
	return cmp.Compare(c.Value, o.Value)
}

// PitchBend values are centered on zero, range [-8192, 8191].
type PitchBend[T Unit] struct {
	Time  T
	Value int32
}

const (
	PitchBendMin = -8192
	PitchBendMax = 8191
)

func (p PitchBend[T]) Compare(o PitchBend[T]) int {
	if c := cmp.Compare(p.Time, o.Time); c != 0 {
		return c
	}
	return cmp.Compare(p.Value, o.Value)
}

// Pedal is a sustain pedal press spanning [Time, Time+Duration).
type Pedal[T Unit] struct {
	Time     T
	Duration T
}

func (p Pedal[T]) End() T { return p.Time + p.Duration }

func (p Pedal[T]) Compare(o Pedal[T]) int {
	if c := cmp.Compare(p.Time, o.Time); c != 0 {
		return c
	}
	return cmp.Compare(p.Duration, o.Duration)
}

// TextMeta carries lyrics and markers.
type TextMeta[T Unit] struct {
	Time T
	Text string
}

func (t TextMeta[T]) Compare(o TextMeta[T]) int {
	if c := cmp.Compare(t.Time, o.Time); c != 0 {
		return c
	}
	return strings.Compare(t.Text, o.Text)
}

package score

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func notes(specs ...[4]int) Seq[Note[Tick]] {
	out := make(Seq[Note[Tick]], 0, len(specs))
	for _, s := range specs {
		out = append(out, Note[Tick]{Time: Tick(s[0]), Duration: Tick(s[1]), Pitch: int8(s[2]), Velocity: int8(s[3])})
	}
	return out
}

func TestSeqIndexing(t *testing.T) {
	s := notes([4]int{0, 10, 60, 100}, [4]int{10, 10, 62, 100}, [4]int{20, 10, 64, 100})

	n, err := s.Get(-1)
	require.NoError(t, err)
	assert.Equal(t, int8(64), n.Pitch)

	_, err = s.Get(3)
	assert.True(t, errors.Is(err, ErrIndex))
	_, err = s.Get(-4)
	assert.True(t, errors.Is(err, ErrIndex))

	require.NoError(t, s.Set(0, Note[Tick]{Time: 5, Duration: 1, Pitch: 1, Velocity: 1}))
	assert.Equal(t, Tick(5), s[0].Time)
}

func TestSeqSlices(t *testing.T) {
	s := notes([4]int{0, 1, 60, 1}, [4]int{1, 1, 61, 1}, [4]int{2, 1, 62, 1}, [4]int{3, 1, 63, 1})

	sub := s.GetSlice(1, 3)
	assert.Len(t, sub, 2)
	assert.Equal(t, int8(61), sub[0].Pitch)
	sub[0].Pitch = 0
	assert.Equal(t, int8(61), s[1].Pitch, "GetSlice must copy")

	assert.Len(t, s.GetSlice(-2, 100), 2)
	assert.Empty(t, s.GetSlice(3, 1))

	s.SetSlice(1, 3, notes([4]int{9, 1, 90, 1}))
	assert.Len(t, s, 3)
	assert.Equal(t, int8(90), s[1].Pitch)
	assert.Equal(t, int8(63), s[2].Pitch)

	s.DeleteSlice(0, -1)
	assert.Len(t, s, 1)
	assert.Equal(t, int8(63), s[0].Pitch)
}

func TestSeqMutation(t *testing.T) {
	var s Seq[Note[Tick]]
	s.Append(Note[Tick]{Time: 10, Duration: 1, Pitch: 60, Velocity: 1})
	s.Extend(notes([4]int{0, 1, 61, 1}, [4]int{5, 1, 62, 1})...)
	s.Insert(0, Note[Tick]{Time: 7, Duration: 1, Pitch: 63, Velocity: 1})
	s.Insert(100, Note[Tick]{Time: 8, Duration: 1, Pitch: 64, Velocity: 1})
	require.Len(t, s, 5)
	assert.Equal(t, int8(63), s[0].Pitch)
	assert.Equal(t, int8(64), s[4].Pitch)

	// append never sorts
	assert.False(t, s.IsSorted())

	p, err := s.Pop(-1)
	require.NoError(t, err)
	assert.Equal(t, int8(64), p.Pitch)
	require.NoError(t, s.Delete(0))
	assert.Len(t, s, 3)
	assert.Error(t, s.Delete(10))
	_, err = s.Pop(10)
	assert.Error(t, err)
}

func TestSortIdempotent(t *testing.T) {
	s := notes(
		[4]int{10, 5, 60, 90},
		[4]int{0, 5, 64, 80},
		[4]int{10, 5, 55, 70},
		[4]int{0, 2, 64, 80},
		[4]int{3, 1, 60, 100},
	)
	orig := s.Copy()

	once := s.Sort(false)
	twice := once.Sort(false)
	assert.Equal(t, once, twice)
	assert.True(t, once.IsSorted())
	assert.Equal(t, orig, s, "Sort must not mutate the receiver")

	assert.Equal(t, Tick(0), once[0].Time)
	assert.Equal(t, Tick(2), once[0].Duration)
	assert.Equal(t, int8(55), once[3].Pitch)

	rev := s.Sort(true)
	assert.Equal(t, Tick(10), rev[0].Time)
	assert.Equal(t, int8(60), rev[0].Pitch)

	s.SortInPlace(false)
	assert.Equal(t, once, s)
}

func TestSortStable(t *testing.T) {
	s := Seq[TextMeta[Tick]]{{Time: 1, Text: "b"}, {Time: 0, Text: "x"}, {Time: 1, Text: "a"}}
	sorted := s.Sort(false)
	assert.Equal(t, []string{"x", "a", "b"}, []string{sorted[0].Text, sorted[1].Text, sorted[2].Text})

	// equal keys keep their relative order
	p := Seq[Pedal[Tick]]{{Time: 1, Duration: 2}, {Time: 0, Duration: 1}, {Time: 1, Duration: 2}}
	ps := p.Sort(false)
	assert.Equal(t, Seq[Pedal[Tick]]{{Time: 0, Duration: 1}, {Time: 1, Duration: 2}, {Time: 1, Duration: 2}}, ps)
}

func TestFilterPurity(t *testing.T) {
	s := notes([4]int{0, 1, 60, 0}, [4]int{1, 1, 61, 50}, [4]int{2, 0, 62, 50}, [4]int{3, 1, 63, 50})
	orig := s.Copy()
	audible := func(n Note[Tick]) bool { return !n.Empty() }

	out := s.Filter(audible, false)
	assert.Equal(t, orig, s)
	assert.LessOrEqual(t, len(out), len(s))
	assert.Equal(t, []int8{61, 63}, []int8{out[0].Pitch, out[1].Pitch})

	in := s.Filter(audible, true)
	assert.Equal(t, out, in)
	assert.Equal(t, out, s)
}

func TestSeqEqualNilEmpty(t *testing.T) {
	var a Seq[Tempo[Tick]]
	b := Seq[Tempo[Tick]]{}
	assert.True(t, a.Equal(b))
	assert.Nil(t, a.Copy())
}

func TestNoteColumnsRoundTrip(t *testing.T) {
	s := notes([4]int{0, 10, 60, 100}, [4]int{5, 3, 72, 20})
	c := NoteColumnsOf(s)
	assert.Equal(t, []Tick{0, 5}, c.Time)
	assert.Equal(t, []int8{60, 72}, c.Pitch)

	c.Time[0] = 99
	assert.Equal(t, Tick(0), s[0].Time, "columns are owned copies")
	c.Time[0] = 0

	back, err := c.Notes()
	require.NoError(t, err)
	assert.Equal(t, s, back)

	c.Velocity = c.Velocity[:1]
	_, err = c.Notes()
	assert.True(t, errors.Is(err, ErrValue))

	bad := NoteColumns[Tick]{Time: []Tick{0}, Duration: []Tick{1}, Pitch: []int8{-1}, Velocity: []int8{1}}
	_, err = bad.Notes()
	assert.True(t, errors.Is(err, ErrValue))
}

func TestOtherColumns(t *testing.T) {
	tempos := Seq[Tempo[Quarter]]{{Time: 0, MSPQ: 500000}, {Time: 4, MSPQ: 400000}}
	tb, err := TempoColumnsOf(tempos).Tempos()
	require.NoError(t, err)
	assert.Equal(t, tempos, tb)

	_, err = TempoColumns[Quarter]{Time: []Quarter{0}, MSPQ: []uint32{0}}.Tempos()
	assert.Error(t, err)

	bends := Seq[PitchBend[Tick]]{{Time: 0, Value: -8192}, {Time: 1, Value: 8191}}
	bb, err := PitchBendColumnsOf(bends).PitchBends()
	require.NoError(t, err)
	assert.Equal(t, bends, bb)
	_, err = PitchBendColumns[Tick]{Time: []Tick{0}, Value: []int32{9000}}.PitchBends()
	assert.Error(t, err)

	ts := Seq[TimeSignature[Tick]]{{Time: 0, Numerator: 6, Denominator: 8}}
	tsb, err := TimeSignatureColumnsOf(ts).TimeSignatures()
	require.NoError(t, err)
	assert.Equal(t, ts, tsb)
	_, err = TimeSignatureColumns[Tick]{Time: []Tick{0}, Numerator: []uint8{3}, Denominator: []uint8{3}}.TimeSignatures()
	assert.Error(t, err)

	ks := Seq[KeySignature[Tick]]{{Time: 0, Key: -3, Tonality: 1}}
	ksb, err := KeySignatureColumnsOf(ks).KeySignatures()
	require.NoError(t, err)
	assert.Equal(t, ks, ksb)

	cc := Seq[ControlChange[Tick]]{{Time: 1, Number: 7, Value: 100}}
	ccb, err := ControlChangeColumnsOf(cc).Controls()
	require.NoError(t, err)
	assert.Equal(t, cc, ccb)
	_, err = ControlChangeColumns[Tick]{Time: []Tick{0}, Number: []uint8{200}, Value: []uint8{0}}.Controls()
	assert.Error(t, err)

	ped := Seq[Pedal[Second]]{{Time: 0.5, Duration: 1.25}}
	pb, err := PedalColumnsOf(ped).Pedals()
	require.NoError(t, err)
	assert.Equal(t, ped, pb)

	txt := Seq[TextMeta[Tick]]{{Time: 3, Text: "la"}}
	tb2, err := TextMetaColumnsOf(txt).TextMetas()
	require.NoError(t, err)
	assert.Equal(t, txt, tb2)
	_, err = TextMetaColumns[Tick]{Time: []Tick{0, 1}, Text: []string{"a"}}.TextMetas()
	assert.Error(t, err)
}

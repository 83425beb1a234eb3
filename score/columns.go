package score

// Columnar (structure-of-arrays) exchange. Every column is an owned copy;
// no column aliases container storage, so later mutations on either side
// are never observed by the other.

type NoteColumns[T Unit] struct {
	Time     []T
	Duration []T
	Pitch    []int8
	Velocity []int8
}

type TempoColumns[T Unit] struct {
	Time []T
	MSPQ []uint32
}

type TimeSignatureColumns[T Unit] struct {
	Time        []T
	Numerator   []uint8
	Denominator []uint8
}

type KeySignatureColumns[T Unit] struct {
	Time     []T
	Key      []int8
	Tonality []int8
}

type ControlChangeColumns[T Unit] struct {
	Time   []T
	Number []uint8
	Value  []uint8
}

type PitchBendColumns[T Unit] struct {
	Time  []T
	Value []int32
}

type PedalColumns[T Unit] struct {
	Time     []T
	Duration []T
}

type TextMetaColumns[T Unit] struct {
	Time []T
	Text []string
}

func checkLens(kind string, n int, others ...int) error {
	for _, m := range others {
		if m != n {
			return newValueError(kind+" columns", "length mismatch: %d vs %d", n, m)
		}
	}
	return nil
}

func NoteColumnsOf[T Unit](s Seq[Note[T]]) NoteColumns[T] {
	c := NoteColumns[T]{
		Time:     make([]T, len(s)),
		Duration: make([]T, len(s)),
		Pitch:    make([]int8, len(s)),
		Velocity: make([]int8, len(s)),
	}
	for i, n := range s {
		c.Time[i], c.Duration[i], c.Pitch[i], c.Velocity[i] = n.Time, n.Duration, n.Pitch, n.Velocity
	}
	return c
}

// Notes rebuilds a Seq, rejecting ragged columns and out-of-range pitch or velocity.
func (c NoteColumns[T]) Notes() (Seq[Note[T]], error) {
	if err := checkLens("note", len(c.Time), len(c.Duration), len(c.Pitch), len(c.Velocity)); err != nil {
		return nil, err
	}
	out := make(Seq[Note[T]], len(c.Time))
	for i := range c.Time {
		n, err := NewNote(c.Time[i], c.Duration[i], int(c.Pitch[i]), int(c.Velocity[i]))
		if err != nil {
			return nil, err
		}
		out[i] = n
	}
	return out, nil
}

func TempoColumnsOf[T Unit](s Seq[Tempo[T]]) TempoColumns[T] {
	c := TempoColumns[T]{Time: make([]T, len(s)), MSPQ: make([]uint32, len(s))}
	for i, t := range s {
		c.Time[i], c.MSPQ[i] = t.Time, t.MSPQ
	}
	return c
}

func (c TempoColumns[T]) Tempos() (Seq[Tempo[T]], error) {
	if err := checkLens("tempo", len(c.Time), len(c.MSPQ)); err != nil {
		return nil, err
	}
	out := make(Seq[Tempo[T]], len(c.Time))
	for i := range c.Time {
		if c.MSPQ[i] == 0 {
			return nil, newValueError("mspq", "row %d: must be positive", i)
		}
		out[i] = Tempo[T]{Time: c.Time[i], MSPQ: c.MSPQ[i]}
	}
	return out, nil
}

func TimeSignatureColumnsOf[T Unit](s Seq[TimeSignature[T]]) TimeSignatureColumns[T] {
	c := TimeSignatureColumns[T]{
		Time:        make([]T, len(s)),
		Numerator:   make([]uint8, len(s)),
		Denominator: make([]uint8, len(s)),
	}
	for i, t := range s {
		c.Time[i], c.Numerator[i], c.Denominator[i] = t.Time, t.Numerator, t.Denominator
	}
	return c
}

func (c TimeSignatureColumns[T]) TimeSignatures() (Seq[TimeSignature[T]], error) {
	if err := checkLens("time signature", len(c.Time), len(c.Numerator), len(c.Denominator)); err != nil {
		return nil, err
	}
	out := make(Seq[TimeSignature[T]], len(c.Time))
	for i := range c.Time {
		ts, err := NewTimeSignature(c.Time[i], c.Numerator[i], c.Denominator[i])
		if err != nil {
			return nil, err
		}
		out[i] = ts
	}
	return out, nil
}

func KeySignatureColumnsOf[T Unit](s Seq[KeySignature[T]]) KeySignatureColumns[T] {
	c := KeySignatureColumns[T]{
		Time:     make([]T, len(s)),
		Key:      make([]int8, len(s)),
		Tonality: make([]int8, len(s)),
	}
	for i, k := range s {
		c.Time[i], c.Key[i], c.Tonality[i] = k.Time, k.Key, k.Tonality
	}
	return c
}

func (c KeySignatureColumns[T]) KeySignatures() (Seq[KeySignature[T]], error) {
	if err := checkLens("key signature", len(c.Time), len(c.Key), len(c.Tonality)); err != nil {
		return nil, err
	}
	out := make(Seq[KeySignature[T]], len(c.Time))
	for i := range c.Time {
		out[i] = KeySignature[T]{Time: c.Time[i], Key: c.Key[i], Tonality: c.Tonality[i]}
	}
	return out, nil
}

func ControlChangeColumnsOf[T Unit](s Seq[ControlChange[T]]) ControlChangeColumns[T] {
	c := ControlChangeColumns[T]{
		Time:   make([]T, len(s)),
		Number: make([]uint8, len(s)),
		Value:  make([]uint8, len(s)),
	}
	for i, cc := range s {
		c.Time[i], c.Number[i], c.Value[i] = cc.Time, cc.Number, cc.Value
	}
	return c
}

func (c ControlChangeColumns[T]) Controls() (Seq[ControlChange[T]], error) {
	if err := checkLens("control change", len(c.Time), len(c.Number), len(c.Value)); err != nil {
		return nil, err
	}
	out := make(Seq[ControlChange[T]], len(c.Time))
	for i := range c.Time {
		if c.Number[i] > 127 || c.Value[i] > 127 {
			return nil, newValueError("control change", "row %d: number/value outside [0, 127]", i)
		}
		out[i] = ControlChange[T]{Time: c.Time[i], Number: c.Number[i], Value: c.Value[i]}
	}
	return out, nil
}

func PitchBendColumnsOf[T Unit](s Seq[PitchBend[T]]) PitchBendColumns[T] {
	c := PitchBendColumns[T]{Time: make([]T, len(s)), Value: make([]int32, len(s))}
	for i, p := range s {
		c.Time[i], c.Value[i] = p.Time, p.Value
	}
	return c
}

func (c PitchBendColumns[T]) PitchBends() (Seq[PitchBend[T]], error) {
	if err := checkLens("pitch bend", len(c.Time), len(c.Value)); err != nil {
		return nil, err
	}
	out := make(Seq[PitchBend[T]], len(c.Time))
	for i := range c.Time {
		if c.Value[i] < PitchBendMin || c.Value[i] > PitchBendMax {
			return nil, newValueError("pitch bend", "row %d: %d outside [%d, %d]", i, c.Value[i], PitchBendMin, PitchBendMax)
		}
		out[i] = PitchBend[T]{Time: c.Time[i], Value: c.Value[i]}
	}
	return out, nil
}

func PedalColumnsOf[T Unit](s Seq[Pedal[T]]) PedalColumns[T] {
	c := PedalColumns[T]{Time: make([]T, len(s)), Duration: make([]T, len(s))}
	for i, p := range s {
		c.Time[i], c.Duration[i] = p.Time, p.Duration
	}
	return c
}

func (c PedalColumns[T]) Pedals() (Seq[Pedal[T]], error) {
	if err := checkLens("pedal", len(c.Time), len(c.Duration)); err != nil {
		return nil, err
	}
	out := make(Seq[Pedal[T]], len(c.Time))
	for i := range c.Time {
		out[i] = Pedal[T]{Time: c.Time[i], Duration: c.Duration[i]}
	}
	return out, nil
}

func TextMetaColumnsOf[T Unit](s Seq[TextMeta[T]]) TextMetaColumns[T] {
	c := TextMetaColumns[T]{Time: make([]T, len(s)), Text: make([]string, len(s))}
	for i, t := range s {
		c.Time[i], c.Text[i] = t.Time, t.Text
	}
	return c
}

func (c TextMetaColumns[T]) TextMetas() (Seq[TextMeta[T]], error) {
	if err := checkLens("text", len(c.Time), len(c.Text)); err != nil {
		return nil, err
	}
	out := make(Seq[TextMeta[T]], len(c.Time))
	for i := range c.Time {
		out[i] = TextMeta[T]{Time: c.Time[i], Text: c.Text[i]}
	}
	return out, nil
}

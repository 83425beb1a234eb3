package abc

import (
	"fmt"
	"math/big"

	"go-symusic/score"
)

type elemKind uint8

const (
	elemNote elemKind = iota // a note or chord
	elemRest
	elemBar
	elemTempo
	elemKey
	elemMeter
)

type noteEvent struct {
	pitch  int
	length *big.Rat
	tie    bool
	grace  bool
}

// position is where an element was read, for errors raised after parsing.
type position struct {
	line, col, offset int
}

func (pos position) errorf(format string, args ...any) error {
	return &score.CodecError{
		Format: "abc",
		Offset: int64(pos.offset),
		Line:   pos.line,
		Column: pos.col + 1,
		Msg:    fmt.Sprintf(format, args...),
	}
}

type element struct {
	kind elemKind
	pos  position
	// notes holds one note, or several for a chord; the first sets the advance
	notes  []noteEvent
	length *big.Rat

	repeatStart, repeatEnd bool

	mspq  uint32
	key   keySig
	meter meter

	lyric    string
	hasLyric bool
}

func (e *element) advance() *big.Rat {
	switch e.kind {
	case elemNote:
		return e.notes[0].length
	case elemRest:
		return e.length
	}
	return new(big.Rat)
}

func (e *element) scale(f *big.Rat) {
	switch e.kind {
	case elemNote:
		for i := range e.notes {
			e.notes[i].length = new(big.Rat).Mul(e.notes[i].length, f)
		}
	case elemRest:
		e.length = new(big.Rat).Mul(e.length, f)
	}
}

// voice holds the per-voice parse state. Accidentals persist per letter
// until the next bar line.
type voice struct {
	id, name string
	program  uint8
	elems    []element

	unit         *big.Rat
	explicitUnit bool
	meter        meter
	keyTable     [7]int
	measure      [7]int
	measureSet   [7]bool

	tupletRatio  *big.Rat
	tupletRemain int
	pending      *big.Rat
	grace        []noteToken

	// sung indexes note elements that take a lyric syllable
	sung        []int
	lyricCursor int
	tiedOver    bool

	// at is the parser's current token position
	at *position
}

func newVoice(id, name string, h *header) *voice {
	return &voice{
		id:           id,
		name:         name,
		unit:         h.unit,
		explicitUnit: h.explicitUnit,
		meter:        h.meter,
		keyTable:     h.key.table(),
	}
}

func (v *voice) clearMeasure() {
	v.measureSet = [7]bool{}
}

// resolve applies the unit length and any running tuplet.
func (v *voice) resolve(factor *big.Rat) *big.Rat {
	l := new(big.Rat).Mul(v.unit, factor)
	if v.tupletRemain > 0 {
		l.Mul(l, v.tupletRatio)
		v.tupletRemain--
	}
	return l
}

func (v *voice) pitch(n noteToken) int {
	idx := letterIndex(n.letter)
	shift := v.keyTable[idx]
	if v.measureSet[idx] {
		shift = v.measure[idx]
	}
	if n.accidental != 0 || n.natural {
		shift = n.accidental
		v.measure[idx], v.measureSet[idx] = shift, true
	}
	base := [7]int{48, 50, 52, 53, 55, 57, 59}[idx]
	if n.letter >= 'a' {
		base += 12
	}
	return base + 12*n.octave + shift
}

// push appends e, applying a pending broken-rhythm factor.
func (v *voice) push(e element) {
	if v.at != nil {
		e.pos = *v.at
	}
	if v.pending != nil && (e.kind == elemNote || e.kind == elemRest) {
		e.scale(v.pending)
		v.pending = nil
	}
	if e.kind == elemNote && !e.notes[0].grace {
		if !v.tiedOver {
			v.sung = append(v.sung, len(v.elems))
		}
		v.tiedOver = false
		for _, n := range e.notes {
			v.tiedOver = v.tiedOver || n.tie
		}
	}
	if e.kind == elemRest {
		v.tiedOver = false
	}
	v.elems = append(v.elems, e)
}

func (v *voice) last() *element {
	for i := len(v.elems) - 1; i >= 0; i-- {
		switch v.elems[i].kind {
		case elemNote, elemRest:
			return &v.elems[i]
		case elemBar:
			return nil
		}
	}
	return nil
}

// broken applies '>' (dotted then halved) or '<' across a pair, with
// n marks doubling the effect each time.
func (v *voice) broken(greater bool, n int) {
	short := big.NewRat(1, int64(1)<<n)
	long := new(big.Rat).Sub(big.NewRat(2, 1), short)
	prev, next := long, short
	if !greater {
		prev, next = short, long
	}
	if e := v.last(); e != nil {
		e.scale(prev)
	}
	v.pending = next
}

// lyrics aligns w: syllables with the sung notes of the latest music line.
func (v *voice) lyrics(text string) {
	for _, tok := range syllables(text) {
		if v.lyricCursor >= len(v.sung) {
			return
		}
		switch tok {
		case "*", "_":
			v.lyricCursor++
			continue
		case "|":
			continue
		}
		e := &v.elems[v.sung[v.lyricCursor]]
		e.lyric, e.hasLyric = tok, true
		v.lyricCursor++
	}
}

// syllables splits a w: line: blanks and '-' separate syllables, '~'
// joins words, "\-" is a literal hyphen.
func syllables(text string) []string {
	var (
		out []string
		cur []byte
	)
	flush := func() {
		if len(cur) > 0 {
			out = append(out, string(cur))
			cur = cur[:0]
		}
	}
	for i := 0; i < len(text); i++ {
		c := text[i]
		switch {
		case c == '\\' && i+1 < len(text) && text[i+1] == '-':
			cur = append(cur, '-')
			i++
		case c == ' ' || c == '\t':
			flush()
		case c == '-':
			flush()
		case c == '~':
			cur = append(cur, ' ')
		case c == '*' || c == '_' || c == '|':
			flush()
			out = append(out, string(c))
		default:
			cur = append(cur, c)
		}
	}
	flush()
	return out
}

// flatten expands |: ... :| repeats. An end without a start repeats from
// the beginning of the voice.
func flatten(in []element) []element {
	var (
		out   []element
		stack []int
	)
	for _, e := range in {
		if e.kind != elemBar {
			out = append(out, e)
			continue
		}
		if e.repeatEnd {
			start := 0
			if len(stack) > 0 {
				start = stack[len(stack)-1]
				stack = stack[:len(stack)-1]
			}
			out = append(out, out[start:]...)
		}
		if e.repeatStart {
			stack = append(stack, len(out))
		}
		out = append(out, e)
	}
	return out
}

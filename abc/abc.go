// Package abc parses ABC notation into a tick score.
//
// Supported: header fields X T M L Q K V, inline fields, multiple voices,
// w: lyrics, accidentals with bar persistence, octave marks, lengths,
// rests, chords, ties, broken rhythm, tuplets, grace notes, repeats and
// %%MIDI program. Only the first tune of a file is read.
package abc

import (
	"fmt"
	"math"
	"math/big"
	"os"
	"slices"
	"strconv"
	"strings"

	"go-symusic/config"
	"go-symusic/debug"
	"go-symusic/score"
)

// Options controls tick resolution and note velocity.
type Options struct {
	TicksPerQuarter int32
	Velocity        int
}

// DefaultOptions is 480 ticks per quarter at velocity 96.
func DefaultOptions() Options {
	return Options{TicksPerQuarter: 480, Velocity: 96}
}

// OptionsFromConfig reads the abc config section.
func OptionsFromConfig(c config.ABCConfig) Options {
	return Options{TicksPerQuarter: c.TicksPerQuarter, Velocity: c.Velocity}
}

// Parse parses src with default options.
func Parse(src string) (*score.Score[score.Tick], error) {
	return ParseWith(src, DefaultOptions())
}

// ReadFile parses the ABC file at path.
func ReadFile(path string, opts Options) (*score.Score[score.Tick], error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseWith(string(data), opts)
}

// ParseWith parses src. Malformed input yields a *score.CodecError with
// the line and column of the problem.
func ParseWith(src string, opts Options) (*score.Score[score.Tick], error) {
	if opts.TicksPerQuarter <= 0 {
		return nil, score.NewValueError("ticks per quarter", "%d must be positive", opts.TicksPerQuarter)
	}
	if opts.Velocity < 1 || opts.Velocity > 127 {
		return nil, score.NewValueError("velocity", "%d outside [1, 127]", opts.Velocity)
	}
	p := &parser{opts: opts, voices: make(map[string]*voice)}
	p.hdr.meter = meter{4, 4}
	p.hdr.mspq = score.DefaultMSPQ

	offset := 0
	for i, raw := range strings.Split(src, "\n") {
		line := strings.TrimRight(raw, "\r")
		sc := &scanner{src: line, line: i + 1, base: offset}
		offset += len(raw) + 1
		if err := p.line(sc); err != nil {
			debug.Log("abc", "parse failed: %v", err)
			return nil, err
		}
		if p.done {
			break
		}
	}
	if !p.inBody {
		p.startBody()
	}
	s, err := p.build()
	if err != nil {
		debug.Log("abc", "build failed: %v", err)
		return nil, err
	}
	debug.Log("abc", "parsed %q: voices=%d notes=%d", p.hdr.title, len(p.order), s.NoteNum())
	return s, nil
}

type header struct {
	title        string
	meter        meter
	unit         *big.Rat
	explicitUnit bool
	key          keySig
	mspq         uint32
	program      uint8
	voices       [][2]string
}

type parser struct {
	opts   Options
	hdr    header
	inBody bool
	seenX  bool
	done   bool
	voices map[string]*voice
	order  []string
	cur    *voice
	tok    position
}

type scanner struct {
	src  string
	pos  int
	line int
	base int
}

func (s *scanner) eof() bool { return s.pos >= len(s.src) }

func (s *scanner) at(k int) byte {
	if s.pos+k < len(s.src) {
		return s.src[s.pos+k]
	}
	return 0
}

func (s *scanner) errorf(col int, format string, args ...any) error {
	return &score.CodecError{
		Format: "abc",
		Offset: int64(s.base + col),
		Line:   s.line,
		Column: col + 1,
		Msg:    fmt.Sprintf(format, args...),
	}
}

func (s *scanner) take(ok func(byte) bool) string {
	start := s.pos
	for !s.eof() && ok(s.src[s.pos]) {
		s.pos++
	}
	return s.src[start:s.pos]
}

func (p *parser) line(sc *scanner) error {
	text := sc.src
	trimmed := strings.TrimSpace(text)
	switch {
	case trimmed == "":
		return nil
	case strings.HasPrefix(text, "%%"):
		return p.directive(sc, strings.TrimSpace(text[2:]))
	case strings.HasPrefix(text, "%"):
		return nil
	case len(text) >= 2 && isAlpha(text[0]) && text[1] == ':':
		id, value := text[0], stripComment(text[2:])
		if id == 'w' {
			if p.inBody {
				p.voice().lyrics(value)
			}
			return nil
		}
		if id == 'W' || id == '+' {
			return nil
		}
		p.tok = position{line: sc.line, offset: sc.base}
		if err := p.field(id, value); err != nil {
			return sc.errorf(0, "%v", err)
		}
		return nil
	}
	if !p.inBody {
		p.startBody()
	}
	return p.music(sc)
}

func stripComment(s string) string {
	if i := strings.IndexByte(s, '%'); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}

func (p *parser) directive(sc *scanner, text string) error {
	f := strings.Fields(text)
	if len(f) >= 3 && f[0] == "MIDI" && f[1] == "program" {
		prog, err := strconv.Atoi(f[len(f)-1])
		if err != nil || prog < 0 || prog > 127 {
			return sc.errorf(0, "bad MIDI program %q", f[len(f)-1])
		}
		if p.inBody {
			p.voice().program = uint8(prog)
		} else {
			p.hdr.program = uint8(prog)
		}
		return nil
	}
	debug.Log("abc", "ignoring directive %q", text)
	return nil
}

// field handles a header or body field line.
func (p *parser) field(id byte, value string) error {
	if id == 'X' {
		if p.seenX && p.inBody {
			p.done = true
		}
		p.seenX = true
		return nil
	}
	if p.inBody {
		return p.bodyField(id, value)
	}
	h := &p.hdr
	switch id {
	case 'T':
		if h.title == "" {
			h.title = value
		}
	case 'M':
		m, err := parseMeter(value)
		if err != nil {
			return err
		}
		h.meter = m
	case 'L':
		u, err := parseFraction(value)
		if err != nil {
			return err
		}
		h.unit, h.explicitUnit = u, true
	case 'Q':
		mspq, err := parseTempo(value)
		if err != nil {
			return err
		}
		h.mspq = mspq
	case 'K':
		k, err := parseKey(value)
		if err != nil {
			return err
		}
		h.key = k
		p.startBody()
	case 'V':
		id, name := parseVoice(value)
		if id != "" {
			h.voices = append(h.voices, [2]string{id, name})
		}
	default:
		debug.Log("abc", "ignoring header field %c:%s", id, value)
	}
	return nil
}

func (p *parser) startBody() {
	p.inBody = true
	if p.hdr.unit == nil {
		p.hdr.unit = p.hdr.meter.unitLength()
	}
	for _, v := range p.hdr.voices {
		p.ensureVoice(v[0], v[1])
	}
}

func (p *parser) ensureVoice(id, name string) *voice {
	if v, ok := p.voices[id]; ok {
		if name != "" && name != id {
			v.name = name
		}
		return v
	}
	v := newVoice(id, name, &p.hdr)
	v.program = p.hdr.program
	v.at = &p.tok
	p.voices[id] = v
	p.order = append(p.order, id)
	return v
}

func (p *parser) voice() *voice {
	if p.cur == nil {
		if len(p.order) > 0 {
			p.cur = p.voices[p.order[0]]
		} else {
			p.cur = p.ensureVoice("", p.hdr.title)
		}
	}
	return p.cur
}

func (p *parser) bodyField(id byte, value string) error {
	switch id {
	case 'V':
		vid, name := parseVoice(value)
		if vid == "" {
			return fmt.Errorf("empty voice id")
		}
		p.cur = p.ensureVoice(vid, name)
	case 'K':
		k, err := parseKey(value)
		if err != nil {
			return err
		}
		v := p.voice()
		v.keyTable = k.table()
		v.clearMeasure()
		v.push(element{kind: elemKey, key: k})
	case 'M':
		m, err := parseMeter(value)
		if err != nil {
			return err
		}
		v := p.voice()
		v.meter = m
		if !v.explicitUnit {
			v.unit = m.unitLength()
		}
		v.push(element{kind: elemMeter, meter: m})
	case 'L':
		u, err := parseFraction(value)
		if err != nil {
			return err
		}
		v := p.voice()
		v.unit, v.explicitUnit = u, true
	case 'Q':
		mspq, err := parseTempo(value)
		if err != nil {
			return err
		}
		p.voice().push(element{kind: elemTempo, mspq: mspq})
	case 'T':
		// section titles
	default:
		debug.Log("abc", "ignoring body field %c:%s", id, value)
	}
	return nil
}

type noteToken struct {
	accidental int
	natural    bool
	letter     byte
	octave     int
	length     *big.Rat
	tie        bool
	col        int
}

func (p *parser) music(sc *scanner) error {
	v := p.voice()
	v.lyricCursor = len(v.sung)
	for !sc.eof() {
		p.tok = position{line: sc.line, col: sc.pos, offset: sc.base + sc.pos}
		c := sc.at(0)
		switch {
		case c == ' ' || c == '\t' || c == '\\' || c == '`' || c == 'y':
			sc.pos++
		case c == '%':
			return nil
		case c == '[' && isAlpha(sc.at(1)) && sc.at(2) == ':':
			end := strings.IndexByte(sc.src[sc.pos:], ']')
			if end < 0 {
				return sc.errorf(sc.pos, "unterminated inline field")
			}
			id, value := sc.at(1), strings.TrimSpace(sc.src[sc.pos+3:sc.pos+end])
			if err := p.bodyField(id, value); err != nil {
				return sc.errorf(sc.pos, "%v", err)
			}
			sc.pos += end + 1
			v = p.voice()
		case c == '[' && isDigit(sc.at(1)):
			// variant ending marker
			sc.pos++
			sc.take(func(b byte) bool { return isDigit(b) || b == ',' || b == '-' })
		case c == '|' || c == ':' || c == ']' || (c == '[' && sc.at(1) == '|'):
			if err := p.bar(v, sc); err != nil {
				return err
			}
		case c == '[':
			if err := p.chord(v, sc); err != nil {
				return err
			}
		case c == '(' && isDigit(sc.at(1)):
			if err := p.tuplet(v, sc); err != nil {
				return err
			}
		case c == '(' || c == ')':
			sc.pos++
		case c == '{':
			if err := p.graceGroup(v, sc); err != nil {
				return err
			}
		case c == 'z' || c == 'x' || c == 'Z':
			if err := p.rest(v, sc); err != nil {
				return err
			}
		case c == '>' || c == '<':
			n := len(sc.take(func(b byte) bool { return b == c }))
			v.broken(c == '>', n)
		case c == '"' || c == '!' || c == '+':
			if err := skipDelimited(sc, c); err != nil {
				return err
			}
		case c == '-':
			if e := v.last(); e != nil && e.kind == elemNote {
				for i := range e.notes {
					e.notes[i].tie = true
				}
				v.tiedOver = true
			}
			sc.pos++
		case strings.IndexByte(".~HLMOPSTuv", c) >= 0:
			sc.pos++
		case c == '^' || c == '_' || c == '=' || isLetter(c):
			n, err := p.note(sc)
			if err != nil {
				return err
			}
			if err := p.flushGrace(v, sc); err != nil {
				return err
			}
			pitch, err := p.checkedPitch(v, n, sc)
			if err != nil {
				return err
			}
			v.push(element{kind: elemNote, notes: []noteEvent{{pitch: pitch, length: v.resolve(n.length), tie: n.tie}}})
		default:
			return sc.errorf(sc.pos, "unexpected character %q", c)
		}
	}
	return nil
}

func skipDelimited(sc *scanner, delim byte) error {
	start := sc.pos
	end := strings.IndexByte(sc.src[sc.pos+1:], delim)
	if end < 0 {
		return sc.errorf(start, "unterminated %c", delim)
	}
	sc.pos += end + 2
	return nil
}

func (p *parser) checkedPitch(v *voice, n noteToken, sc *scanner) (int, error) {
	pitch := v.pitch(n)
	if pitch < 0 || pitch > 127 {
		return 0, sc.errorf(n.col, "pitch %d outside the MIDI range", pitch)
	}
	return pitch, nil
}

func (p *parser) note(sc *scanner) (noteToken, error) {
	n := noteToken{col: sc.pos}
accidentals:
	for ; !sc.eof(); sc.pos++ {
		switch sc.at(0) {
		case '^':
			n.accidental++
		case '_':
			n.accidental--
		case '=':
			n.natural, n.accidental = true, 0
		default:
			break accidentals
		}
	}
	if !isLetter(sc.at(0)) {
		return n, sc.errorf(sc.pos, "expected a note letter")
	}
	n.letter = sc.at(0)
	sc.pos++
octaves:
	for ; !sc.eof(); sc.pos++ {
		switch sc.at(0) {
		case '\'':
			n.octave++
		case ',':
			n.octave--
		default:
			break octaves
		}
	}
	lenCol := sc.pos
	l, err := parseLength(sc.take(func(b byte) bool { return isDigit(b) || b == '/' }))
	if err != nil {
		return n, sc.errorf(lenCol, "%v", err)
	}
	n.length = l
	if sc.at(0) == '-' {
		n.tie = true
		sc.pos++
	}
	return n, nil
}

func (p *parser) bar(v *voice, sc *scanner) error {
	start := sc.pos
	for !sc.eof() {
		c := sc.at(0)
		if c == '|' || c == ':' || c == ']' || (c == '[' && sc.at(1) == '|') {
			sc.pos++
			continue
		}
		break
	}
	token := sc.src[start:sc.pos]
	sc.take(isDigit)
	if err := p.flushGrace(v, sc); err != nil {
		return err
	}
	e := element{kind: elemBar}
	e.repeatEnd = strings.Contains(token, ":|") || strings.HasPrefix(token, "::")
	e.repeatStart = strings.Contains(token, "|:") || strings.HasSuffix(token, "::")
	v.push(e)
	v.clearMeasure()
	return nil
}

func (p *parser) chord(v *voice, sc *scanner) error {
	open := sc.pos
	sc.pos++
	var toks []noteToken
notes:
	for {
		if sc.eof() {
			return sc.errorf(open, "unterminated chord")
		}
		c := sc.at(0)
		switch {
		case c == ']':
			sc.pos++
			break notes
		case c == ' ' || c == '\t' || strings.IndexByte(".~HLMOPSTuv", c) >= 0:
			sc.pos++
		case c == '"' || c == '!' || c == '+':
			if err := skipDelimited(sc, c); err != nil {
				return err
			}
		case c == '^' || c == '_' || c == '=' || isLetter(c):
			n, err := p.note(sc)
			if err != nil {
				return err
			}
			toks = append(toks, n)
		default:
			return sc.errorf(sc.pos, "unexpected character %q in chord", c)
		}
	}
	lenCol := sc.pos
	outer, err := parseLength(sc.take(func(b byte) bool { return isDigit(b) || b == '/' }))
	if err != nil {
		return sc.errorf(lenCol, "%v", err)
	}
	tie := sc.at(0) == '-'
	if tie {
		sc.pos++
	}
	if len(toks) == 0 {
		return nil
	}
	if err := p.flushGrace(v, sc); err != nil {
		return err
	}
	// a chord counts once against a running tuplet
	whole := v.resolve(outer)
	e := element{kind: elemNote}
	for _, n := range toks {
		pitch, err := p.checkedPitch(v, n, sc)
		if err != nil {
			return err
		}
		e.notes = append(e.notes, noteEvent{pitch: pitch, length: new(big.Rat).Mul(whole, n.length), tie: n.tie || tie})
	}
	v.push(e)
	return nil
}

func (p *parser) tuplet(v *voice, sc *scanner) error {
	col := sc.pos
	sc.pos++
	var nums [3]int
	for i := 0; i < 3; i++ {
		if i > 0 {
			if sc.at(0) != ':' {
				break
			}
			sc.pos++
		}
		d := sc.take(isDigit)
		if d != "" {
			nums[i], _ = strconv.Atoi(d)
		}
	}
	pn, q, r := nums[0], nums[1], nums[2]
	if pn < 2 || pn > 64 {
		return sc.errorf(col, "bad tuplet (%d", pn)
	}
	if q == 0 {
		switch pn {
		case 2, 4, 8:
			q = 3
		case 3, 6:
			q = 2
		case 5, 7, 9:
			q = 2
			if v.meter.den == 8 && v.meter.num%3 == 0 {
				q = 3
			}
		default:
			q = pn - 1
		}
	}
	if r == 0 {
		r = pn
	}
	v.tupletRatio = big.NewRat(int64(q), int64(pn))
	v.tupletRemain = r
	return nil
}

func (p *parser) graceGroup(v *voice, sc *scanner) error {
	open := sc.pos
	sc.pos++
	if sc.at(0) == '/' {
		sc.pos++
	}
	for {
		if sc.eof() {
			return sc.errorf(open, "unterminated grace group")
		}
		c := sc.at(0)
		switch {
		case c == '}':
			sc.pos++
			return nil
		case c == ' ' || c == '\t':
			sc.pos++
		case c == '^' || c == '_' || c == '=' || isLetter(c):
			n, err := p.note(sc)
			if err != nil {
				return err
			}
			v.grace = append(v.grace, n)
		default:
			return sc.errorf(sc.pos, "unexpected character %q in grace notes", c)
		}
	}
}

// flushGrace emits pending grace notes at a quarter of their written length.
func (p *parser) flushGrace(v *voice, sc *scanner) error {
	for _, n := range v.grace {
		pitch, err := p.checkedPitch(v, n, sc)
		if err != nil {
			v.grace = nil
			return err
		}
		l := new(big.Rat).Mul(v.unit, n.length)
		l.Mul(l, big.NewRat(1, 4))
		v.push(element{kind: elemNote, notes: []noteEvent{{pitch: pitch, length: l, grace: true}}})
	}
	v.grace = nil
	return nil
}

func (p *parser) rest(v *voice, sc *scanner) error {
	sym := sc.at(0)
	sc.pos++
	if err := p.flushGrace(v, sc); err != nil {
		return err
	}
	lenCol := sc.pos
	text := sc.take(func(b byte) bool { return isDigit(b) || b == '/' })
	if sym == 'Z' {
		bars := 1
		if text != "" {
			n, err := strconv.Atoi(text)
			if err != nil || n <= 0 {
				return sc.errorf(lenCol, "bad multi-measure rest %q", text)
			}
			bars = n
		}
		l := new(big.Rat).Mul(v.meter.measure(), big.NewRat(int64(bars), 1))
		v.push(element{kind: elemRest, length: l})
		return nil
	}
	l, err := parseLength(text)
	if err != nil {
		return sc.errorf(lenCol, "%v", err)
	}
	v.push(element{kind: elemRest, length: v.resolve(l)})
	return nil
}

// ticks converts a whole-note fraction to ticks, rounding half away from
// zero. Times past the int32 tick range are an error at pos.
func (p *parser) ticks(r *big.Rat, pos position) (score.Tick, error) {
	f, _ := new(big.Rat).Mul(r, big.NewRat(4*int64(p.opts.TicksPerQuarter), 1)).Float64()
	f = math.Round(f)
	if f > math.MaxInt32 || f < math.MinInt32 {
		return 0, pos.errorf("time %.0f overflows the tick range at %d ticks per quarter", f, p.opts.TicksPerQuarter)
	}
	return score.Tick(f), nil
}

func (p *parser) build() (*score.Score[score.Tick], error) {
	s := &score.Score[score.Tick]{TicksPerQuarter: p.opts.TicksPerQuarter}
	s.Tempos.Append(score.Tempo[score.Tick]{Time: 0, MSPQ: p.hdr.mspq})
	p.addMeter(s, 0, p.hdr.meter)
	p.addKey(s, 0, p.hdr.key)

	for _, id := range p.order {
		v := p.voices[id]
		t := &score.Track[score.Tick]{Name: v.name, Program: v.program}
		cursor := new(big.Rat)
		ties := map[int]int{}
		for _, e := range flatten(v.elems) {
			at, err := p.ticks(cursor, e.pos)
			if err != nil {
				return nil, err
			}
			switch e.kind {
			case elemNote:
				next := map[int]int{}
				for _, n := range e.notes {
					end, err := p.ticks(new(big.Rat).Add(cursor, n.length), e.pos)
					if err != nil {
						return nil, err
					}
					idx, tied := ties[n.pitch]
					if tied {
						t.Notes[idx].Duration = end - t.Notes[idx].Time
					} else {
						t.Notes.Append(score.Note[score.Tick]{Time: at, Duration: end - at, Pitch: int8(n.pitch), Velocity: int8(p.opts.Velocity)})
						idx = len(t.Notes) - 1
					}
					if n.tie {
						next[n.pitch] = idx
					}
				}
				ties = next
				if e.hasLyric {
					t.Lyrics.Append(score.TextMeta[score.Tick]{Time: at, Text: e.lyric})
				}
			case elemRest:
				ties = map[int]int{}
			case elemTempo:
				s.Tempos.Append(score.Tempo[score.Tick]{Time: at, MSPQ: e.mspq})
			case elemKey:
				p.addKey(s, at, e.key)
			case elemMeter:
				p.addMeter(s, at, e.meter)
			}
			cursor.Add(cursor, e.advance())
		}
		if t.Empty() {
			continue
		}
		t.SortInPlace(false)
		s.Tracks = append(s.Tracks, t)
	}

	// voices repeat shared tempo and signature changes
	s.Tempos.SortInPlace(false)
	s.Tempos = slices.Compact(s.Tempos)
	s.TimeSignatures.SortInPlace(false)
	s.TimeSignatures = slices.Compact(s.TimeSignatures)
	s.KeySignatures.SortInPlace(false)
	s.KeySignatures = slices.Compact(s.KeySignatures)
	return s, nil
}

func (p *parser) addMeter(s *score.Score[score.Tick], at score.Tick, m meter) {
	if m.num <= 255 && m.den <= 255 {
		if ts, err := score.NewTimeSignature(at, uint8(m.num), uint8(m.den)); err == nil {
			s.TimeSignatures.Append(ts)
			return
		}
	}
	debug.Log("abc", "meter %d/%d has no MIDI time signature", m.num, m.den)
}

func (p *parser) addKey(s *score.Score[score.Tick], at score.Tick, k keySig) {
	ks := score.KeySignature[score.Tick]{Time: at, Key: int8(k.fifths)}
	if k.minor {
		ks.Tonality = 1
	}
	s.KeySignatures.Append(ks)
}

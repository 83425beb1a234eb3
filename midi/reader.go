package midi

import (
	"cmp"
	"fmt"
	"math"
	"os"
	"slices"
	"unicode/utf8"

	"github.com/ghostiam/binstruct"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"

	"go-symusic/debug"
	"go-symusic/score"
)

type chunkHeader struct {
	ID     [4]byte
	Length uint32
}

type headerBody struct {
	Format   uint16
	NTracks  uint16
	Division uint16
}

const chunkHeaderLen = 8

// DecodeOptions tunes the decoder.
type DecodeOptions struct {
	// Text decodes meta text that is not valid UTF-8. Defaults to ISO-8859-1.
	Text transform.Transformer
}

// Decode parses a Standard MIDI File. It either returns a complete score
// or a *score.CodecError carrying the byte offset of the problem.
func Decode(data []byte) (*score.Score[score.Tick], error) {
	return DecodeWith(data, DecodeOptions{})
}

// DecodeWith is Decode with options.
func DecodeWith(data []byte, opts DecodeOptions) (*score.Score[score.Tick], error) {
	if opts.Text == nil {
		opts.Text = charmap.ISO8859_1.NewDecoder()
	}
	d := &decoder{data: data, opts: opts}
	s, err := d.decode()
	if err != nil {
		debug.Log("midi", "decode failed: %v", err)
		return nil, err
	}
	debug.Log("midi", "decoded tpq=%d tracks=%d notes=%d", s.TicksPerQuarter, len(s.Tracks), s.NoteNum())
	return s, nil
}

// ReadFile decodes the file at path. The path is passed to the OS untouched.
func ReadFile(path string) (*score.Score[score.Tick], error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Decode(data)
}

type decoder struct {
	data []byte
	opts DecodeOptions
}

func (d *decoder) fail(offset int, format string, args ...any) error {
	return &score.CodecError{Format: "midi", Offset: int64(offset), Msg: fmt.Sprintf(format, args...)}
}

func (d *decoder) chunkAt(pos int) (chunkHeader, error) {
	var ch chunkHeader
	if pos+chunkHeaderLen > len(d.data) {
		return ch, d.fail(pos, "truncated chunk header: need %d bytes, have %d", chunkHeaderLen, len(d.data)-pos)
	}
	if err := binstruct.UnmarshalBE(d.data[pos:pos+chunkHeaderLen], &ch); err != nil {
		return ch, &score.CodecError{Format: "midi", Offset: int64(pos), Msg: "unreadable chunk header", Err: err}
	}
	return ch, nil
}

func validChunkID(id [4]byte) bool {
	for _, c := range id {
		if !(c >= 'A' && c <= 'Z' || c >= 'a' && c <= 'z') {
			return false
		}
	}
	return true
}

func (d *decoder) decode() (*score.Score[score.Tick], error) {
	hdr, err := d.chunkAt(0)
	if err != nil {
		return nil, err
	}
	if string(hdr.ID[:]) != "MThd" {
		return nil, d.fail(0, "bad header chunk id %q", hdr.ID[:])
	}
	if hdr.Length < 6 {
		return nil, d.fail(4, "header length %d, expected at least 6", hdr.Length)
	}
	if uint64(chunkHeaderLen)+uint64(hdr.Length) > uint64(len(d.data)) {
		return nil, d.fail(4, "header length %d exceeds file size %d", hdr.Length, len(d.data))
	}
	var body headerBody
	if err := binstruct.UnmarshalBE(d.data[chunkHeaderLen:chunkHeaderLen+6], &body); err != nil {
		return nil, &score.CodecError{Format: "midi", Offset: chunkHeaderLen, Msg: "unreadable header", Err: err}
	}
	if body.Format > 2 {
		return nil, d.fail(chunkHeaderLen, "unsupported format %d", body.Format)
	}
	if body.Division&0x8000 != 0 {
		return nil, d.fail(chunkHeaderLen+4, "SMPTE time division 0x%04x is not supported", body.Division)
	}
	if body.Division == 0 {
		return nil, d.fail(chunkHeaderLen+4, "ticks per quarter must be positive")
	}
	if body.Format == 0 && body.NTracks != 1 {
		return nil, d.fail(chunkHeaderLen+2, "format 0 file declares %d tracks", body.NTracks)
	}

	s := &score.Score[score.Tick]{TicksPerQuarter: int32(body.Division)}
	pos := chunkHeaderLen + int(hdr.Length)
	found := 0
	for found < int(body.NTracks) {
		if pos >= len(d.data) {
			return nil, d.fail(pos, "track count mismatch: header declares %d, found %d", body.NTracks, found)
		}
		ch, err := d.chunkAt(pos)
		if err != nil {
			return nil, err
		}
		if !validChunkID(ch.ID) {
			return nil, d.fail(pos, "bad chunk id %q", ch.ID[:])
		}
		start := pos + chunkHeaderLen
		if uint64(start)+uint64(ch.Length) > uint64(len(d.data)) {
			return nil, d.fail(pos+4, "chunk length %d exceeds remaining %d bytes", ch.Length, len(d.data)-start)
		}
		end := start + int(ch.Length)
		if string(ch.ID[:]) == "MTrk" {
			if err := d.track(s, start, end); err != nil {
				return nil, err
			}
			found++
		} else {
			debug.Log("midi", "skipping %q chunk at %d", ch.ID[:], pos)
		}
		pos = end
	}

	s.Tempos.SortInPlace(false)
	s.TimeSignatures.SortInPlace(false)
	s.KeySignatures.SortInPlace(false)
	s.Markers.SortInPlace(false)
	s.Lyrics.SortInPlace(false)
	return s, nil
}

type trackKey struct {
	channel, program uint8
}

type pendingNote struct {
	start    int64
	velocity uint8
	track    *score.Track[score.Tick]
}

type pendingPedal struct {
	start int64
	on    bool
}

// trackState is the per-MTrk demultiplexer.
type trackState struct {
	tracks  map[trackKey]*score.Track[score.Tick]
	order   []trackKey
	program [16]uint8
	notes   map[[2]uint8][]pendingNote
	pedals  [16]pendingPedal
	lyrics  score.Seq[score.TextMeta[score.Tick]]
	name    string
}

func (ts *trackState) trackFor(channel uint8) *score.Track[score.Tick] {
	key := trackKey{channel, ts.program[channel]}
	if t, ok := ts.tracks[key]; ok {
		return t
	}
	t := &score.Track[score.Tick]{Program: key.program, IsDrum: channel == DrumChannel}
	ts.tracks[key] = t
	ts.order = append(ts.order, key)
	return t
}

func (ts *trackState) closeNote(channel, pitch uint8, tick int64) {
	k := [2]uint8{channel, pitch}
	q := ts.notes[k]
	if len(q) == 0 {
		return
	}
	n := q[0]
	ts.notes[k] = q[1:]
	n.track.Notes.Append(score.Note[score.Tick]{
		Time:     score.Tick(n.start),
		Duration: score.Tick(tick - n.start),
		Pitch:    int8(pitch),
		Velocity: int8(n.velocity),
	})
}

func (d *decoder) text(b []byte) string {
	if utf8.Valid(b) {
		return string(b)
	}
	s, _, err := transform.Bytes(d.opts.Text, b)
	if err != nil {
		return string(b)
	}
	return string(s)
}

// track parses one MTrk chunk occupying data[start:end].
func (d *decoder) track(s *score.Score[score.Tick], start, end int) error {
	ts := &trackState{
		tracks: make(map[trackKey]*score.Track[score.Tick]),
		notes:  make(map[[2]uint8][]pendingNote),
	}
	var (
		pos     = start
		tick    int64
		running uint8
	)

	for pos < end {
		delta, n, err := readVLQ(d.data[pos:end])
		if err != nil {
			return &score.CodecError{Format: "midi", Offset: int64(pos), Msg: "bad delta time", Err: err}
		}
		pos += n
		tick += int64(delta)
		if tick > math.MaxInt32 {
			return d.fail(pos, "tick %d overflows", tick)
		}
		if pos >= end {
			return d.fail(pos, "truncated event")
		}

		status := d.data[pos]
		switch {
		case status == Meta:
			if pos+2 > end {
				return d.fail(pos, "truncated meta event")
			}
			typ := d.data[pos+1]
			length, n, err := readVLQ(d.data[pos+2 : end])
			if err != nil {
				return &score.CodecError{Format: "midi", Offset: int64(pos + 2), Msg: "bad meta length", Err: err}
			}
			bodyStart := pos + 2 + n
			if uint64(bodyStart)+uint64(length) > uint64(end) {
				return d.fail(pos, "meta event length %d exceeds chunk", length)
			}
			body := d.data[bodyStart : bodyStart+int(length)]
			if typ == MetaEndOfTrack {
				pos = end
				break
			}
			if err := d.meta(s, ts, typ, body, tick, pos); err != nil {
				return err
			}
			pos = bodyStart + int(length)

		case status == SysEx || status == SysExEscape:
			length, n, err := readVLQ(d.data[pos+1 : end])
			if err != nil {
				return &score.CodecError{Format: "midi", Offset: int64(pos + 1), Msg: "bad sysex length", Err: err}
			}
			next := pos + 1 + n
			if uint64(next)+uint64(length) > uint64(end) {
				return d.fail(pos, "sysex length %d exceeds chunk", length)
			}
			pos = next + int(length)

		case status > SysEx:
			return d.fail(pos, "unexpected system status 0x%02x", status)

		default:
			if status&0x80 != 0 {
				running = status
				pos++
			} else if running == 0 {
				return d.fail(pos, "data byte 0x%02x without running status", status)
			}
			need := dataLen(running)
			if pos+need > end {
				return d.fail(pos, "truncated channel message")
			}
			var data [2]uint8
			for i := 0; i < need; i++ {
				if d.data[pos+i]&0x80 != 0 {
					return d.fail(pos+i, "status byte 0x%02x inside channel message", d.data[pos+i])
				}
				data[i] = d.data[pos+i]
			}
			pos += need
			d.channel(ts, running, data, tick)
		}
	}

	// Notes still sounding at end of track close there; open pedals are dropped.
	keys := make([][2]uint8, 0, len(ts.notes))
	for k := range ts.notes {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, func(a, b [2]uint8) int {
		if c := cmp.Compare(a[0], b[0]); c != 0 {
			return c
		}
		return cmp.Compare(a[1], b[1])
	})
	for _, k := range keys {
		for len(ts.notes[k]) > 0 {
			debug.Log("midi", "auto-closing note ch=%d pitch=%d at tick %d", k[0], k[1], tick)
			ts.closeNote(k[0], k[1], tick)
		}
	}

	if len(ts.order) == 0 {
		s.Lyrics.Extend(ts.lyrics...)
		return nil
	}
	ts.tracks[ts.order[0]].Lyrics.Extend(ts.lyrics...)

	keysByChannel := slices.Clone(ts.order)
	slices.SortFunc(keysByChannel, func(a, b trackKey) int {
		if c := cmp.Compare(a.channel, b.channel); c != 0 {
			return c
		}
		return cmp.Compare(a.program, b.program)
	})
	for _, k := range keysByChannel {
		t := ts.tracks[k]
		if t.Empty() {
			continue
		}
		t.Name = ts.name
		t.SortInPlace(false)
		s.Tracks = append(s.Tracks, t)
	}
	return nil
}

func (d *decoder) channel(ts *trackState, status uint8, data [2]uint8, tick int64) {
	ch := status & 0x0F
	switch status & 0xF0 {
	case NoteOn:
		if data[1] == 0 {
			ts.closeNote(ch, data[0], tick)
			return
		}
		k := [2]uint8{ch, data[0]}
		ts.notes[k] = append(ts.notes[k], pendingNote{start: tick, velocity: data[1], track: ts.trackFor(ch)})
	case NoteOff:
		ts.closeNote(ch, data[0], tick)
	case ProgramChange:
		ts.program[ch] = data[0]
	case CC:
		t := ts.trackFor(ch)
		t.Controls.Append(score.ControlChange[score.Tick]{Time: score.Tick(tick), Number: data[0], Value: data[1]})
		if data[0] == CCSustain {
			p := &ts.pedals[ch]
			if data[1] >= 64 {
				if !p.on {
					p.on, p.start = true, tick
				}
			} else if p.on {
				t.Pedals.Append(score.Pedal[score.Tick]{Time: score.Tick(p.start), Duration: score.Tick(tick - p.start)})
				p.on = false
			}
		}
	case PitchBend:
		v := int32(data[0]) | int32(data[1])<<7
		ts.trackFor(ch).PitchBends.Append(score.PitchBend[score.Tick]{Time: score.Tick(tick), Value: v - 8192})
	}
}

func (d *decoder) meta(s *score.Score[score.Tick], ts *trackState, typ uint8, body []byte, tick int64, pos int) error {
	t := score.Tick(tick)
	switch typ {
	case MetaTempo:
		if len(body) != 3 {
			return d.fail(pos, "tempo event length %d, expected 3", len(body))
		}
		mspq := uint32(body[0])<<16 | uint32(body[1])<<8 | uint32(body[2])
		if mspq == 0 {
			return d.fail(pos, "tempo of zero microseconds per quarter")
		}
		s.Tempos.Append(score.Tempo[score.Tick]{Time: t, MSPQ: mspq})
	case MetaTimeSignature:
		if len(body) < 2 {
			return d.fail(pos, "time signature length %d, expected 4", len(body))
		}
		if body[1] > 7 {
			return d.fail(pos, "time signature denominator 2^%d out of range", body[1])
		}
		s.TimeSignatures.Append(score.TimeSignature[score.Tick]{Time: t, Numerator: body[0], Denominator: 1 << body[1]})
	case MetaKeySignature:
		if len(body) != 2 {
			return d.fail(pos, "key signature length %d, expected 2", len(body))
		}
		s.KeySignatures.Append(score.KeySignature[score.Tick]{Time: t, Key: int8(body[0]), Tonality: int8(body[1])})
	case MetaTrackName:
		ts.name = d.text(body)
	case MetaMarker:
		if len(body) > 0 {
			s.Markers.Append(score.TextMeta[score.Tick]{Time: t, Text: d.text(body)})
		}
	case MetaLyric:
		if len(body) > 0 {
			ts.lyrics.Append(score.TextMeta[score.Tick]{Time: t, Text: d.text(body)})
		}
	}
	return nil
}

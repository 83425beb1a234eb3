package midi

import (
	"cmp"
	"encoding/binary"
	"fmt"
	"math/bits"
	"os"
	"slices"

	gomidi "gitlab.com/gomidi/midi/v2"

	"go-symusic/debug"
	"go-symusic/score"
)

// Event priority within one tick. Note-offs go before note-ons so a
// re-struck pitch pairs correctly; zero-length notes close last.
const (
	prioMeta = iota
	prioProgram
	prioNoteOff
	prioControl
	prioNoteOn
	prioZeroOff
)

type timedEvent struct {
	tick int64
	prio int
	seq  int
	msg  []byte
	meta bool
}

type eventList struct {
	events []timedEvent
}

func (l *eventList) add(tick int64, prio int, msg []byte, meta bool) {
	l.events = append(l.events, timedEvent{tick: tick, prio: prio, seq: len(l.events), msg: msg, meta: meta})
}

func (l *eventList) addMeta(tick int64, typ uint8, body []byte) {
	msg := []byte{Meta, typ}
	msg = appendVLQ(msg, uint32(len(body)))
	msg = append(msg, body...)
	l.add(tick, prioMeta, msg, true)
}

// bytes serializes the events as an MTrk body ending with End Of Track.
// Running status is used between consecutive channel messages.
func (l *eventList) bytes() ([]byte, error) {
	slices.SortStableFunc(l.events, func(a, b timedEvent) int {
		if c := cmp.Compare(a.tick, b.tick); c != 0 {
			return c
		}
		if c := cmp.Compare(a.prio, b.prio); c != 0 {
			return c
		}
		return cmp.Compare(a.seq, b.seq)
	})

	var (
		out     []byte
		last    int64
		running uint8
	)
	for _, e := range l.events {
		delta := e.tick - last
		if delta > maxVLQ {
			return nil, score.NewValueError("time", "delta of %d ticks exceeds the MIDI maximum", delta)
		}
		out = appendVLQ(out, uint32(delta))
		last = e.tick
		if e.meta {
			running = 0
			out = append(out, e.msg...)
			continue
		}
		if e.msg[0] == running {
			out = append(out, e.msg[1:]...)
		} else {
			running = e.msg[0]
			out = append(out, e.msg...)
		}
	}
	out = append(out, 0, Meta, MetaEndOfTrack, 0)
	return out, nil
}

func checkTime(what string, t score.Tick) error {
	if t < 0 {
		return score.NewValueError(what, "negative time %d cannot be encoded", t)
	}
	return nil
}

func textBody(s string) ([]byte, error) {
	if len(s) > maxVLQ {
		return nil, score.NewValueError("text", "meta text of %d bytes is too long", len(s))
	}
	return []byte(s), nil
}

// Encode serializes s as a format 1 Standard MIDI File. The first track
// carries tempo, signatures, markers and score lyrics; each Track gets
// its own MTrk. Notes with zero velocity or negative duration are not
// written, since the wire format cannot represent them.
//
// Decode(Encode(s)) reproduces s for tracks that carry at least one note,
// control change or pitch bend. Tracks are rebuilt from channel events,
// so other tracks do not survive unchanged:
//   - a pedal-only track comes back with the synthesized CC64 controls
//   - a lyrics-only track is dropped and its lyrics move to Score.Lyrics
//   - an empty track is dropped
//
// Same-pitch notes overlapping on one channel pair first-in first-out
// on decode, so nested notes come back with different durations.
func Encode(s *score.Score[score.Tick]) ([]byte, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	if s.TicksPerQuarter > 0x7FFF {
		return nil, score.NewValueError("ticks per quarter", "%d exceeds 32767", s.TicksPerQuarter)
	}
	if len(s.Tracks)+1 > 0xFFFF {
		return nil, score.NewValueError("tracks", "%d tracks exceed the MIDI maximum", len(s.Tracks))
	}

	conductor, err := encodeConductor(s)
	if err != nil {
		return nil, err
	}
	chunks := [][]byte{conductor}

	channels := AssignChannels(s.Tracks)
	for i, t := range s.Tracks {
		body, err := encodeTrack(t, channels[i])
		if err != nil {
			return nil, fmt.Errorf("track %d: %w", i, err)
		}
		chunks = append(chunks, body)
	}

	out := make([]byte, 0, 64)
	out = append(out, "MThd"...)
	out = binary.BigEndian.AppendUint32(out, 6)
	out = binary.BigEndian.AppendUint16(out, 1)
	out = binary.BigEndian.AppendUint16(out, uint16(len(chunks)))
	out = binary.BigEndian.AppendUint16(out, uint16(s.TicksPerQuarter))
	for _, c := range chunks {
		out = append(out, "MTrk"...)
		out = binary.BigEndian.AppendUint32(out, uint32(len(c)))
		out = append(out, c...)
	}
	debug.Log("midi", "encoded %d tracks, %d bytes", len(s.Tracks), len(out))
	return out, nil
}

// AssignChannels gives drum tracks channel 10 and cycles the others
// through the remaining fifteen channels in track order.
func AssignChannels[T score.Unit](tracks []*score.Track[T]) []uint8 {
	out := make([]uint8, len(tracks))
	melodic := 0
	for i, t := range tracks {
		if t.IsDrum {
			out[i] = DrumChannel
			continue
		}
		out[i] = melodicChannels[melodic%len(melodicChannels)]
		melodic++
	}
	return out
}

// WriteFile encodes s and writes it to path.
func WriteFile(path string, s *score.Score[score.Tick]) error {
	data, err := Encode(s)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

func encodeConductor(s *score.Score[score.Tick]) ([]byte, error) {
	var l eventList
	for _, e := range s.Tempos {
		if err := checkTime("tempo", e.Time); err != nil {
			return nil, err
		}
		if e.MSPQ > 0xFFFFFF {
			return nil, score.NewValueError("tempo", "%d microseconds per quarter exceeds 24 bits", e.MSPQ)
		}
		l.addMeta(int64(e.Time), MetaTempo, []byte{byte(e.MSPQ >> 16), byte(e.MSPQ >> 8), byte(e.MSPQ)})
	}
	for _, e := range s.TimeSignatures {
		if err := checkTime("time signature", e.Time); err != nil {
			return nil, err
		}
		if e.Denominator == 0 || bits.OnesCount8(e.Denominator) != 1 {
			return nil, score.NewValueError("time signature", "denominator %d is not a power of two", e.Denominator)
		}
		dd := byte(bits.TrailingZeros8(e.Denominator))
		l.addMeta(int64(e.Time), MetaTimeSignature, []byte{e.Numerator, dd, 24, 8})
	}
	for _, e := range s.KeySignatures {
		if err := checkTime("key signature", e.Time); err != nil {
			return nil, err
		}
		l.addMeta(int64(e.Time), MetaKeySignature, []byte{byte(e.Key), byte(e.Tonality)})
	}
	for _, group := range []struct {
		typ uint8
		seq score.Seq[score.TextMeta[score.Tick]]
	}{{MetaMarker, s.Markers}, {MetaLyric, s.Lyrics}} {
		for _, e := range group.seq {
			if err := checkTime("text", e.Time); err != nil {
				return nil, err
			}
			body, err := textBody(e.Text)
			if err != nil {
				return nil, err
			}
			l.addMeta(int64(e.Time), group.typ, body)
		}
	}
	return l.bytes()
}

func encodeTrack(t *score.Track[score.Tick], ch uint8) ([]byte, error) {
	if t.Program > 127 {
		return nil, score.NewValueError("program", "%d outside [0, 127]", t.Program)
	}
	var l eventList
	if t.Name != "" {
		body, err := textBody(t.Name)
		if err != nil {
			return nil, err
		}
		l.addMeta(0, MetaTrackName, body)
	}
	l.add(0, prioProgram, gomidi.ProgramChange(ch, t.Program), false)

	notes := t.Notes.Sort(false)
	for _, n := range notes {
		if n.Pitch < 0 || n.Velocity < 0 {
			return nil, score.NewValueError("note", "pitch %d / velocity %d outside [0, 127]", n.Pitch, n.Velocity)
		}
		if err := checkTime("note", n.Time); err != nil {
			return nil, err
		}
		if n.Velocity == 0 || n.Duration < 0 {
			continue
		}
		l.add(int64(n.Time), prioNoteOn, gomidi.NoteOn(ch, uint8(n.Pitch), uint8(n.Velocity)), false)
		offPrio := prioNoteOff
		if n.Duration == 0 {
			offPrio = prioZeroOff
		}
		l.add(int64(n.End()), offPrio, gomidi.NoteOff(ch, uint8(n.Pitch)), false)
	}

	hasSustain := false
	for _, c := range t.Controls.Sort(false) {
		if err := checkTime("control change", c.Time); err != nil {
			return nil, err
		}
		if c.Number > 127 || c.Value > 127 {
			return nil, score.NewValueError("control change", "number %d / value %d outside [0, 127]", c.Number, c.Value)
		}
		hasSustain = hasSustain || c.Number == CCSustain
		l.add(int64(c.Time), prioControl, gomidi.ControlChange(ch, c.Number, c.Value), false)
	}
	// Pedals are normally derived from CC64; synthesize it when absent.
	if !hasSustain {
		for _, p := range t.Pedals.Sort(false) {
			if err := checkTime("pedal", p.Time); err != nil {
				return nil, err
			}
			l.add(int64(p.Time), prioControl, gomidi.ControlChange(ch, CCSustain, 127), false)
			l.add(int64(p.End()), prioControl, gomidi.ControlChange(ch, CCSustain, 0), false)
		}
	}

	for _, p := range t.PitchBends.Sort(false) {
		if err := checkTime("pitch bend", p.Time); err != nil {
			return nil, err
		}
		if p.Value < score.PitchBendMin || p.Value > score.PitchBendMax {
			return nil, score.NewValueError("pitch bend", "%d outside [%d, %d]", p.Value, score.PitchBendMin, score.PitchBendMax)
		}
		l.add(int64(p.Time), prioControl, gomidi.Pitchbend(ch, int16(p.Value)), false)
	}

	for _, e := range t.Lyrics {
		if err := checkTime("lyric", e.Time); err != nil {
			return nil, err
		}
		body, err := textBody(e.Text)
		if err != nil {
			return nil, err
		}
		l.addMeta(int64(e.Time), MetaLyric, body)
	}
	return l.bytes()
}

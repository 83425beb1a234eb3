// Package convert maps scores between tick, quarter and second time.
// Every conversion returns a new score; inputs are never modified.
package convert

import (
	"math"

	"go-symusic/debug"
	"go-symusic/score"
)

// TempoMapOf builds the tempo map for a score in any unit.
func TempoMapOf[T score.Unit](s *score.Score[T]) (*TempoMap, error) {
	switch tempos := any(s.Tempos).(type) {
	case score.Seq[score.Tempo[score.Tick]]:
		return NewTempoMap(s.TicksPerQuarter, tempos)
	case score.Seq[score.Tempo[score.Quarter]]:
		return NewTempoMapQuarters(s.TicksPerQuarter, tempos)
	default:
		return NewTempoMapSeconds(s.TicksPerQuarter, any(s.Tempos).(score.Seq[score.Tempo[score.Second]]))
	}
}

// toTicks and fromTicks move a unit's value onto the float tick axis.
func toTicks[T score.Unit](m *TempoMap) func(float64) float64 {
	switch score.KindOf[T]() {
	case score.UnitTick:
		return func(v float64) float64 { return v }
	case score.UnitQuarter:
		tpq := float64(m.tpq)
		return func(v float64) float64 { return v * tpq }
	default:
		return m.Tick
	}
}

func fromTicks[T score.Unit](m *TempoMap) func(float64) float64 {
	switch score.KindOf[T]() {
	case score.UnitTick:
		return func(v float64) float64 { return v }
	case score.UnitQuarter:
		return m.Quarter
	default:
		return m.Seconds
	}
}

// Convert re-expresses s in unit To. Every time field goes through the
// same mapping; durations are end minus start after mapping, then raised
// to minDur when shorter.
func Convert[To, From score.Unit](s *score.Score[From], minDur To) (*score.Score[To], error) {
	m, err := TempoMapOf(s)
	if err != nil {
		return nil, err
	}
	in, out := toTicks[From](m), fromTicks[To](m)
	fn := func(t From) To {
		return score.FromFloat[To](out(in(float64(t))))
	}
	debug.Log("convert", "%s -> %s tpq=%d tempos=%d", score.KindOf[From](), score.KindOf[To](), s.TicksPerQuarter, len(s.Tempos))
	return Map(s, s.TicksPerQuarter, fn, minDur), nil
}

// Map rebuilds s with every time passed through fn. It is the shared
// core of unit conversion and resampling.
func Map[To, From score.Unit](s *score.Score[From], tpq int32, fn func(From) To, minDur To) *score.Score[To] {
	dur := func(t, d From) To {
		return max(fn(t+d)-fn(t), minDur)
	}
	out := &score.Score[To]{
		TicksPerQuarter: tpq,
		Tracks:          make([]*score.Track[To], len(s.Tracks)),
		Tempos:          make(score.Seq[score.Tempo[To]], len(s.Tempos)),
		TimeSignatures:  make(score.Seq[score.TimeSignature[To]], len(s.TimeSignatures)),
		KeySignatures:   make(score.Seq[score.KeySignature[To]], len(s.KeySignatures)),
		Markers:         mapText(s.Markers, fn),
		Lyrics:          mapText(s.Lyrics, fn),
	}
	for i, e := range s.Tempos {
		out.Tempos[i] = score.Tempo[To]{Time: fn(e.Time), MSPQ: e.MSPQ}
	}
	for i, e := range s.TimeSignatures {
		out.TimeSignatures[i] = score.TimeSignature[To]{Time: fn(e.Time), Numerator: e.Numerator, Denominator: e.Denominator}
	}
	for i, e := range s.KeySignatures {
		out.KeySignatures[i] = score.KeySignature[To]{Time: fn(e.Time), Key: e.Key, Tonality: e.Tonality}
	}
	for i, t := range s.Tracks {
		nt := &score.Track[To]{
			Name:       t.Name,
			Program:    t.Program,
			IsDrum:     t.IsDrum,
			Notes:      make(score.Seq[score.Note[To]], len(t.Notes)),
			Controls:   make(score.Seq[score.ControlChange[To]], len(t.Controls)),
			PitchBends: make(score.Seq[score.PitchBend[To]], len(t.PitchBends)),
			Pedals:     make(score.Seq[score.Pedal[To]], len(t.Pedals)),
			Lyrics:     mapText(t.Lyrics, fn),
		}
		for j, n := range t.Notes {
			nt.Notes[j] = score.Note[To]{Time: fn(n.Time), Duration: dur(n.Time, n.Duration), Pitch: n.Pitch, Velocity: n.Velocity}
		}
		for j, c := range t.Controls {
			nt.Controls[j] = score.ControlChange[To]{Time: fn(c.Time), Number: c.Number, Value: c.Value}
		}
		for j, p := range t.PitchBends {
			nt.PitchBends[j] = score.PitchBend[To]{Time: fn(p.Time), Value: p.Value}
		}
		for j, p := range t.Pedals {
			nt.Pedals[j] = score.Pedal[To]{Time: fn(p.Time), Duration: dur(p.Time, p.Duration)}
		}
		out.Tracks[i] = nt
	}
	return out
}

func mapText[To, From score.Unit](in score.Seq[score.TextMeta[From]], fn func(From) To) score.Seq[score.TextMeta[To]] {
	if in == nil {
		return nil
	}
	out := make(score.Seq[score.TextMeta[To]], len(in))
	for i, e := range in {
		out[i] = score.TextMeta[To]{Time: fn(e.Time), Text: e.Text}
	}
	return out
}

// ToTick converts to ticks at the score's own resolution.
func ToTick[From score.Unit](s *score.Score[From]) (*score.Score[score.Tick], error) {
	return Convert[score.Tick](s, 0)
}

// ToQuarter converts to quarters.
func ToQuarter[From score.Unit](s *score.Score[From]) (*score.Score[score.Quarter], error) {
	return Convert[score.Quarter](s, 0)
}

// ToSecond converts to seconds through the tempo map.
func ToSecond[From score.Unit](s *score.Score[From]) (*score.Score[score.Second], error) {
	return Convert[score.Second](s, 0)
}

// Resample re-expresses s in ticks at a new resolution. Durations shorter
// than minDur after rounding are raised to minDur.
func Resample[From score.Unit](s *score.Score[From], tpq int32, minDur score.Tick) (*score.Score[score.Tick], error) {
	if tpq <= 0 {
		return nil, score.NewValueError("ticks per quarter", "%d must be positive", tpq)
	}
	m, err := TempoMapOf(s)
	if err != nil {
		return nil, err
	}
	in := toTicks[From](m)
	scale := float64(tpq) / float64(s.TicksPerQuarter)
	fn := func(t From) score.Tick {
		return score.Tick(math.Round(in(float64(t)) * scale))
	}
	debug.Log("convert", "resample %s tpq %d -> %d", score.KindOf[From](), s.TicksPerQuarter, tpq)
	return Map(s, tpq, fn, minDur), nil
}

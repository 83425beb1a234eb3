package server

import (
	"go-symusic/convert"
	"go-symusic/score"
)

type TrackSummary struct {
	Name    string     `json:"name"`
	Program uint8      `json:"program"`
	IsDrum  bool       `json:"isDrum"`
	Notes   int        `json:"notes"`
	Start   score.Tick `json:"start"`
	End     score.Tick `json:"end"`
}

// Summary is the JSON view of a stored score.
type Summary struct {
	TicksPerQuarter int32          `json:"ticksPerQuarter"`
	Start           score.Tick     `json:"start"`
	End             score.Tick     `json:"end"`
	Seconds         float64        `json:"seconds"`
	Notes           int            `json:"notes"`
	Tempos          int            `json:"tempos"`
	TimeSignatures  int            `json:"timeSignatures"`
	KeySignatures   int            `json:"keySignatures"`
	Markers         int            `json:"markers"`
	Tracks          []TrackSummary `json:"tracks"`
}

func Summarize(s *score.Score[score.Tick]) (Summary, error) {
	tm, err := convert.NewTempoMap(s.TicksPerQuarter, s.Tempos)
	if err != nil {
		return Summary{}, err
	}
	sum := Summary{
		TicksPerQuarter: s.TicksPerQuarter,
		Start:           s.Start(),
		End:             s.End(),
		Seconds:         tm.Seconds(float64(s.End())),
		Notes:           s.NoteNum(),
		Tempos:          len(s.Tempos),
		TimeSignatures:  len(s.TimeSignatures),
		KeySignatures:   len(s.KeySignatures),
		Markers:         len(s.Markers),
		Tracks:          make([]TrackSummary, len(s.Tracks)),
	}
	for i, t := range s.Tracks {
		sum.Tracks[i] = TrackSummary{
			Name:    t.Name,
			Program: t.Program,
			IsDrum:  t.IsDrum,
			Notes:   t.NoteNum(),
			Start:   t.Start(),
			End:     t.End(),
		}
	}
	return sum, nil
}

package convert

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-symusic/score"
)

// referenceSeconds integrates the tempo curve tick by tick segment,
// independent of the breakpoint table.
func referenceSeconds(tpq int32, tempos score.Seq[score.Tempo[score.Tick]], tick score.Tick) float64 {
	sorted := tempos.Sort(false)
	mspq := float64(score.DefaultMSPQ)
	var sec float64
	var at score.Tick
	for _, tp := range sorted {
		if tp.Time > tick {
			break
		}
		sec += float64(tp.Time-at) * mspq / 1e6 / float64(tpq)
		at = tp.Time
		mspq = float64(tp.MSPQ)
	}
	return sec + float64(tick-at)*mspq/1e6/float64(tpq)
}

func tempoScore() *score.Score[score.Tick] {
	s, _ := score.New[score.Tick](480)
	s.Tempos = score.Seq[score.Tempo[score.Tick]]{
		{Time: 960, MSPQ: 1000000},
		{Time: 0, MSPQ: 500000},
		{Time: 2400, MSPQ: 250000},
		{Time: 2400, MSPQ: 300000},
	}
	s.TimeSignatures = score.Seq[score.TimeSignature[score.Tick]]{{Time: 0, Numerator: 3, Denominator: 4}}
	s.Markers = score.Seq[score.TextMeta[score.Tick]]{{Time: 1440, Text: "B"}}
	s.Tracks = []*score.Track[score.Tick]{{
		Name: "lead",
		Notes: score.Seq[score.Note[score.Tick]]{
			{Time: 0, Duration: 480, Pitch: 60, Velocity: 100},
			{Time: 720, Duration: 480, Pitch: 62, Velocity: 100},
			{Time: 2000, Duration: 1000, Pitch: 64, Velocity: 90},
		},
		Controls: score.Seq[score.ControlChange[score.Tick]]{{Time: 100, Number: 64, Value: 127}},
		Pedals:   score.Seq[score.Pedal[score.Tick]]{{Time: 100, Duration: 900}},
	}}
	return s
}

func TestTempoMapRightBiased(t *testing.T) {
	s := tempoScore()
	m, err := TempoMapOf(s)
	require.NoError(t, err)

	assert.InDelta(t, 0.5, m.Seconds(480), 1e-12)
	assert.InDelta(t, 1.0, m.Seconds(960), 1e-12, "tempo at 960 applies from 960 on")
	assert.InDelta(t, 2.0, m.Seconds(1440), 1e-12)
	// two tempos at 2400: the later one in sort order wins
	assert.InDelta(t, 200.0, m.QPMAt(2400), 1e-9)
	assert.InDelta(t, 120.0, m.QPMAt(0), 1e-9)
	assert.InDelta(t, 60.0, m.QPMAt(1000), 1e-9)

	for _, tk := range []float64{0, 1, 479, 960, 1234.5, 2400, 5000} {
		assert.InDelta(t, tk, m.Tick(m.Seconds(tk)), 1e-6)
	}
}

func TestDefaultTempo(t *testing.T) {
	s, _ := score.New[score.Tick](96)
	m, err := TempoMapOf(s)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, m.Seconds(192), 1e-12)

	s.Tempos = score.Seq[score.Tempo[score.Tick]]{{Time: 96, MSPQ: 1000000}}
	m, err = TempoMapOf(s)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, m.Seconds(96), 1e-12, "120 qpm before the first tempo")
	assert.InDelta(t, 1.5, m.Seconds(192), 1e-12)
}

func TestTickToSecondMatchesReference(t *testing.T) {
	s := tempoScore()
	sec, err := ToSecond(s)
	require.NoError(t, err)

	for i, n := range s.Tracks[0].Notes {
		want := referenceSeconds(s.TicksPerQuarter, s.Tempos, n.Time)
		got := float64(sec.Tracks[0].Notes[i].Time)
		assert.InDelta(t, want, got, 1e-9)
		wantEnd := referenceSeconds(s.TicksPerQuarter, s.Tempos, n.End())
		assert.InDelta(t, wantEnd-want, float64(sec.Tracks[0].Notes[i].Duration), 1e-9)
	}
	assert.InDelta(t, 2.0, float64(sec.Markers[0].Time), 1e-9)
	assert.InDelta(t, 100.0/960, float64(sec.Tracks[0].Pedals[0].Time), 1e-12)
	assert.Equal(t, s.TicksPerQuarter, sec.TicksPerQuarter)
}

func TestConversionConsistency(t *testing.T) {
	r := rand.New(rand.NewSource(7))
	s, _ := score.New[score.Tick](384)
	tick := score.Tick(0)
	for i := 0; i < 20; i++ {
		s.Tempos.Append(score.Tempo[score.Tick]{Time: tick, MSPQ: uint32(200000 + r.Intn(1500000))})
		tick += score.Tick(1 + r.Intn(5000))
	}
	tr := &score.Track[score.Tick]{}
	for i := 0; i < 500; i++ {
		tr.Notes.Append(score.Note[score.Tick]{
			Time: score.Tick(r.Intn(int(tick) + 1000)), Duration: score.Tick(r.Intn(2000)),
			Pitch: int8(r.Intn(128)), Velocity: int8(1 + r.Intn(127)),
		})
	}
	s.Tracks = append(s.Tracks, tr)

	direct, err := ToSecond(s)
	require.NoError(t, err)
	q, err := ToQuarter(s)
	require.NoError(t, err)
	viaQuarter, err := ToSecond(q)
	require.NoError(t, err)

	for i, n := range direct.Tracks[0].Notes {
		a, b := float64(n.Time), float64(viaQuarter.Tracks[0].Notes[i].Time)
		assert.LessOrEqual(t, relErr(a, b), 1e-5, "note %d: %v vs %v", i, a, b)
		ref := referenceSeconds(s.TicksPerQuarter, s.Tempos, s.Tracks[0].Notes[i].Time)
		assert.LessOrEqual(t, relErr(ref, a), 1e-5)
	}

	back, err := ToTick(direct)
	require.NoError(t, err)
	assert.Equal(t, s.Tracks[0].Notes, back.Tracks[0].Notes)
	assert.Equal(t, s.Tempos, back.Tempos)
}

func relErr(a, b float64) float64 {
	if a == b {
		return 0
	}
	return math.Abs(a-b) / math.Max(math.Abs(a), math.Abs(b))
}

func TestTickQuarter(t *testing.T) {
	s := tempoScore()
	q, err := ToQuarter(s)
	require.NoError(t, err)
	n := q.Tracks[0].Notes[1]
	assert.Equal(t, score.Quarter(1.5), n.Time)
	assert.Equal(t, score.Quarter(1), n.Duration)
	assert.Equal(t, score.Quarter(2), q.Tempos[0].Time)

	back, err := ToTick(q)
	require.NoError(t, err)
	assert.True(t, s.Equal(back))
}

func TestConvertDoesNotMutate(t *testing.T) {
	s := tempoScore()
	orig := s.Copy()
	_, err := ToSecond(s)
	require.NoError(t, err)
	_, err = Resample(s, 96, 1)
	require.NoError(t, err)
	assert.True(t, s.Equal(orig))
}

func TestMinDuration(t *testing.T) {
	s, _ := score.New[score.Tick](480)
	s.Tracks = []*score.Track[score.Tick]{{Notes: score.Seq[score.Note[score.Tick]]{
		{Time: 0, Duration: 1, Pitch: 60, Velocity: 1},
		{Time: 10, Duration: 0, Pitch: 60, Velocity: 1},
	}}}
	out, err := Resample(s, 48, 1)
	require.NoError(t, err)
	assert.Equal(t, score.Tick(1), out.Tracks[0].Notes[0].Duration)
	assert.Equal(t, score.Tick(1), out.Tracks[0].Notes[1].Time)
	assert.Equal(t, score.Tick(1), out.Tracks[0].Notes[1].Duration)
	assert.Equal(t, int32(48), out.TicksPerQuarter)

	sec, err := Convert[score.Second](s, 0.25)
	require.NoError(t, err)
	assert.Equal(t, score.Second(0.25), sec.Tracks[0].Notes[0].Duration)
}

func TestResample(t *testing.T) {
	s := tempoScore()
	out, err := Resample(s, 960, 0)
	require.NoError(t, err)
	assert.Equal(t, score.Tick(1440), out.Tracks[0].Notes[1].Time)
	assert.Equal(t, score.Tick(960), out.Tracks[0].Notes[1].Duration)
	assert.Equal(t, score.Tick(1920), out.Tempos[0].Time)

	// resampling seconds goes through the tempo map first
	sec, err := ToSecond(s)
	require.NoError(t, err)
	fromSec, err := Resample(sec, 480, 0)
	require.NoError(t, err)
	assert.Equal(t, s.Tracks[0].Notes, fromSec.Tracks[0].Notes)

	_, err = Resample(s, 0, 0)
	assert.ErrorIs(t, err, score.ErrValue)
}

func TestBadScores(t *testing.T) {
	s := &score.Score[score.Tick]{TicksPerQuarter: 0}
	_, err := ToSecond(s)
	assert.ErrorIs(t, err, score.ErrValue)

	s.TicksPerQuarter = 480
	s.Tempos = score.Seq[score.Tempo[score.Tick]]{{Time: 0, MSPQ: 0}}
	_, err = ToSecond(s)
	assert.ErrorIs(t, err, score.ErrValue)
}

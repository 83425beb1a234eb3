package pianoroll

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-symusic/config"
	"go-symusic/score"
)

func simpleTrack() *score.Track[score.Tick] {
	return &score.Track[score.Tick]{
		Name: "Piano",
		Notes: score.Seq[score.Note[score.Tick]]{
			{Time: 0, Duration: 480, Pitch: 60, Velocity: 100},
			{Time: 480, Duration: 480, Pitch: 64, Velocity: 80},
			{Time: 960, Duration: 480, Pitch: 67, Velocity: 60},
			{Time: 1440, Duration: 960, Pitch: 72, Velocity: 100},
		},
	}
}

func TestTrackModes(t *testing.T) {
	r, err := FromTrack(simpleTrack(), Options{
		Modes: []Mode{Onset, Frame, Offset}, PitchLow: 0, PitchHigh: 128, EncodeVelocity: true,
	})
	require.NoError(t, err)
	assert.Equal(t, []int{3, 128, 2401}, r.Shape())

	assert.Equal(t, uint8(100), r.At(0, 0, 60, 0))
	assert.Equal(t, uint8(0), r.At(0, 0, 60, 1))
	assert.Equal(t, uint8(80), r.At(0, 0, 64, 480))

	assert.Equal(t, uint8(100), r.At(1, 0, 60, 0))
	assert.Equal(t, uint8(100), r.At(1, 0, 60, 240))
	assert.Equal(t, uint8(100), r.At(1, 0, 60, 479))
	assert.Equal(t, uint8(0), r.At(1, 0, 60, 480))
	assert.Equal(t, uint8(100), r.At(1, 0, 72, 1920))
	assert.Equal(t, uint8(0), r.At(1, 0, 61, 240))

	assert.Equal(t, uint8(0), r.At(2, 0, 60, 0))
	assert.Equal(t, uint8(0), r.At(2, 0, 60, 479))
	assert.Equal(t, uint8(100), r.At(2, 0, 60, 480))
	assert.Equal(t, uint8(100), r.At(2, 0, 72, 2400))
}

func TestSingleNoteLiteral(t *testing.T) {
	tr := &score.Track[score.Tick]{Notes: score.Seq[score.Note[score.Tick]]{
		{Time: 0, Duration: 480, Pitch: 60, Velocity: 100},
	}}
	r, err := FromTrack(tr, Options{Modes: []Mode{Frame, Onset, Offset}, PitchHigh: 128, EncodeVelocity: true})
	require.NoError(t, err)
	frame, onset, offset := r.ModeIndex(Frame), r.ModeIndex(Onset), r.ModeIndex(Offset)
	assert.Equal(t, uint8(100), r.At(frame, 0, 60, 240))
	assert.Equal(t, uint8(100), r.At(onset, 0, 60, 0))
	assert.Equal(t, uint8(0), r.At(onset, 0, 60, 1))
	assert.Equal(t, uint8(0), r.At(offset, 0, 60, 479))
	assert.Equal(t, uint8(100), r.At(offset, 0, 60, 480))
}

func TestPitchRangeAndBinary(t *testing.T) {
	r, err := FromTrack(simpleTrack(), Options{Modes: []Mode{Frame}, PitchLow: 60, PitchHigh: 73})
	require.NoError(t, err)
	assert.Equal(t, []int{1, 13, 2401}, r.Shape())
	assert.Equal(t, uint8(1), r.At(0, 0, 0, 240))
	assert.Equal(t, uint8(1), r.At(0, 0, 4, 720))
	assert.Equal(t, uint8(1), r.At(0, 0, 7, 1200))
	assert.Equal(t, uint8(1), r.At(0, 0, 12, 1920))

	r, err = FromTrack(simpleTrack(), Options{Modes: []Mode{Frame}, PitchLow: 61, PitchHigh: 64})
	require.NoError(t, err)
	for _, v := range r.Data {
		assert.Zero(t, v, "notes outside the range are skipped")
	}
}

func TestLaterNoteWins(t *testing.T) {
	tr := &score.Track[score.Tick]{Notes: score.Seq[score.Note[score.Tick]]{
		{Time: 10, Duration: 10, Pitch: 60, Velocity: 20},
		{Time: 0, Duration: 15, Pitch: 60, Velocity: 90},
	}}
	r, err := FromTrack(tr, DefaultOptions())
	require.NoError(t, err)
	row := r.Row(0, 0, 60)
	assert.Equal(t, uint8(90), row[5])
	assert.Equal(t, uint8(20), row[12], "the note starting later overwrites")
	assert.Equal(t, uint8(20), row[19])
	assert.Len(t, row, 21)
}

func TestScoreRaster(t *testing.T) {
	s, _ := score.New[score.Tick](480)
	s.Tracks = []*score.Track[score.Tick]{simpleTrack(), {Notes: score.Seq[score.Note[score.Tick]]{
		{Time: 3000, Duration: 10, Pitch: 40, Velocity: 5},
	}}}
	r, err := FromScore(s, DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 128, 3011}, r.Shape())
	assert.Equal(t, uint8(100), r.At(0, 0, 60, 240))
	assert.Equal(t, uint8(80), r.At(0, 0, 64, 720))
	assert.Equal(t, uint8(5), r.At(0, 1, 40, 3005))
	assert.Equal(t, uint8(0), r.At(0, 1, 60, 240))
}

func TestEmptyTrack(t *testing.T) {
	r, err := FromTrack(&score.Track[score.Tick]{}, DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, []int{1, 128, 1}, r.Shape())

	s, _ := score.New[score.Tick](96)
	r, err = FromScore(s, DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, []int{1, 0, 128, 1}, r.Shape())
	assert.Empty(t, r.Data)
}

func TestNegativeTimesClipped(t *testing.T) {
	tr := &score.Track[score.Tick]{Notes: score.Seq[score.Note[score.Tick]]{
		{Time: -5, Duration: 10, Pitch: 60, Velocity: 7},
	}}
	r, err := FromTrack(tr, DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, []uint8{7, 7, 7, 7, 7, 0}, r.Row(0, 0, 60))
}

func TestNonTickNotImplemented(t *testing.T) {
	tr := &score.Track[score.Quarter]{Notes: score.Seq[score.Note[score.Quarter]]{{Time: 0, Duration: 1, Pitch: 60, Velocity: 1}}}
	_, err := FromTrack(tr, DefaultOptions())
	assert.ErrorIs(t, err, score.ErrNotImplemented)

	s, _ := score.New[score.Second](480)
	_, err = FromScore(s, DefaultOptions())
	assert.ErrorIs(t, err, score.ErrNotImplemented)
}

func TestModesAndOptions(t *testing.T) {
	modes, err := ParseModes([]string{"offset", " Frame ", "onset"})
	require.NoError(t, err)
	assert.Equal(t, []Mode{Offset, Frame, Onset}, modes)
	assert.Equal(t, "offset", Offset.String())

	_, err = ParseMode("velocity")
	assert.ErrorIs(t, err, score.ErrValue)

	for _, o := range []Options{
		{Modes: []Mode{Frame}, PitchLow: 10, PitchHigh: 10},
		{Modes: []Mode{Frame}, PitchLow: -1, PitchHigh: 10},
		{Modes: []Mode{Frame}, PitchLow: 0, PitchHigh: 129},
		{PitchLow: 0, PitchHigh: 128},
		{Modes: []Mode{7}, PitchLow: 0, PitchHigh: 128},
	} {
		_, err := FromTrack(simpleTrack(), o)
		assert.ErrorIs(t, err, score.ErrValue, "%+v", o)
	}

	opts, err := OptionsFromConfig(config.DefaultConfig().Pianoroll)
	require.NoError(t, err)
	assert.Equal(t, DefaultOptions(), opts)

	_, err = OptionsFromConfig(config.PianorollConfig{Modes: []string{"frame"}, PitchLow: 50, PitchHigh: 40})
	assert.ErrorIs(t, err, score.ErrValue)
}

func TestMaxCells(t *testing.T) {
	long := &score.Track[score.Tick]{Notes: score.Seq[score.Note[score.Tick]]{
		{Time: 0, Duration: 1_000_000, Pitch: 60, Velocity: 100},
	}}
	_, err := FromTrack(long, DefaultOptions())
	assert.ErrorIs(t, err, score.ErrValue)

	// a narrow pitch range fits under the default cap
	opts := DefaultOptions()
	opts.PitchLow, opts.PitchHigh = 60, 61
	r, err := FromTrack(long, opts)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 1, 1_000_001}, r.Shape())

	opts = DefaultOptions()
	opts.MaxCells = 128 * 2401
	_, err = FromTrack(simpleTrack(), opts)
	require.NoError(t, err)
	opts.MaxCells--
	_, err = FromTrack(simpleTrack(), opts)
	assert.ErrorIs(t, err, score.ErrValue)

	s, _ := score.New[score.Tick](480)
	s.Tracks = []*score.Track[score.Tick]{simpleTrack(), simpleTrack()}
	opts.MaxCells = 128 * 2401
	_, err = FromScore(s, opts)
	assert.ErrorIs(t, err, score.ErrValue)

	opts.MaxCells = 0
	_, err = FromScore(s, opts)
	assert.NoError(t, err)
}

package abc

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-symusic/config"
	"go-symusic/score"
)

type tone struct {
	time, dur score.Tick
	pitch     int8
}

func tones(tr *score.Track[score.Tick]) []tone {
	out := make([]tone, len(tr.Notes))
	for i, n := range tr.Notes {
		out[i] = tone{n.Time, n.Duration, n.Pitch}
	}
	return out
}

func parseOne(t *testing.T, src string) *score.Track[score.Tick] {
	t.Helper()
	s, err := Parse(src)
	require.NoError(t, err)
	require.Len(t, s.Tracks, 1)
	return s.Tracks[0]
}

func TestScale(t *testing.T) {
	s, err := Parse("X:1\nT:Scale\nM:4/4\nL:1/8\nK:C\nCDEF GABc|\n")
	require.NoError(t, err)
	assert.Equal(t, int32(480), s.TicksPerQuarter)
	require.Len(t, s.Tracks, 1)
	tr := s.Tracks[0]
	assert.Equal(t, "Scale", tr.Name)
	assert.Equal(t, []tone{
		{0, 240, 48}, {240, 240, 50}, {480, 240, 52}, {720, 240, 53},
		{960, 240, 55}, {1200, 240, 57}, {1440, 240, 59}, {1680, 240, 60},
	}, tones(tr))
	for _, n := range tr.Notes {
		assert.Equal(t, int8(96), n.Velocity)
	}
	assert.Equal(t, score.Seq[score.Tempo[score.Tick]]{{Time: 0, MSPQ: score.DefaultMSPQ}}, s.Tempos)
	assert.Equal(t, score.Seq[score.TimeSignature[score.Tick]]{{Time: 0, Numerator: 4, Denominator: 4}}, s.TimeSignatures)
	assert.Equal(t, score.Seq[score.KeySignature[score.Tick]]{{Time: 0}}, s.KeySignatures)
}

func TestLengths(t *testing.T) {
	tr := parseOne(t, "K:C\nC2 C/ C3/2 C// C/3\n")
	assert.Equal(t, []tone{
		{0, 480, 48}, {480, 120, 48}, {600, 360, 48}, {960, 60, 48}, {1020, 80, 48},
	}, tones(tr))
}

func TestDefaultUnitFollowsMeter(t *testing.T) {
	tr := parseOne(t, "M:2/4\nK:C\nC D\n")
	assert.Equal(t, []tone{{0, 120, 48}, {120, 120, 50}}, tones(tr))

	tr = parseOne(t, "M:6/8\nK:C\nC D\n")
	assert.Equal(t, []tone{{0, 240, 48}, {240, 240, 50}}, tones(tr))
}

func TestOctavesAndAccidentals(t *testing.T) {
	tr := parseOne(t, "K:C\nc' C, ^F _B =B ^^C __E\n")
	var got []int8
	for _, n := range tr.Notes {
		got = append(got, n.Pitch)
	}
	assert.Equal(t, []int8{72, 36, 54, 58, 59, 50, 50}, got)
}

func TestKeySignatureAndMeasureAccidentals(t *testing.T) {
	s, err := Parse("K:G\nF f ^F =F F|F\n")
	require.NoError(t, err)
	var got []int8
	for _, n := range s.Tracks[0].Notes {
		got = append(got, n.Pitch)
	}
	assert.Equal(t, []int8{54, 66, 54, 53, 53, 54}, got)
	assert.Equal(t, score.Seq[score.KeySignature[score.Tick]]{{Time: 0, Key: 1}}, s.KeySignatures)

	s, err = Parse("K:Dm\nB E|\n")
	require.NoError(t, err)
	assert.Equal(t, int8(58), s.Tracks[0].Notes[0].Pitch)
	assert.Equal(t, int8(52), s.Tracks[0].Notes[1].Pitch)
	assert.Equal(t, score.Seq[score.KeySignature[score.Tick]]{{Time: 0, Key: -1, Tonality: 1}}, s.KeySignatures)
}

func TestModes(t *testing.T) {
	for key, fifths := range map[string]int{
		"D dorian": 0, "E phr": 0, "F Lydian": 0, "G mix": 0, "B loc": 0,
		"A minor": 0, "Bb": -2, "F#m": 3, "C# ": 7, "Cb": -7,
	} {
		k, err := parseKey(key)
		require.NoError(t, err, key)
		assert.Equal(t, fifths, k.fifths, key)
	}
	_, err := parseKey("G#")
	assert.Error(t, err)
}

func TestChords(t *testing.T) {
	tr := parseOne(t, "K:C\n[CEG]2 z [c e]|[C2E]\n")
	assert.Equal(t, []tone{
		{0, 480, 48}, {0, 480, 52}, {0, 480, 55},
		{720, 240, 60}, {720, 240, 64},
		{960, 240, 52}, {960, 480, 48},
	}, tones(tr))
	assert.Equal(t, score.Tick(1440), tr.End())
}

func TestTies(t *testing.T) {
	tr := parseOne(t, "L:1/4\nK:C\nC-C D-|D E\n")
	assert.Equal(t, []tone{{0, 960, 48}, {960, 960, 50}, {1920, 480, 52}}, tones(tr))

	// a tie to a different pitch starts a new note
	tr = parseOne(t, "L:1/4\nK:C\nC-D\n")
	assert.Equal(t, []tone{{0, 480, 48}, {480, 480, 50}}, tones(tr))
}

func TestBrokenRhythm(t *testing.T) {
	tr := parseOne(t, "K:C\nC>D E<F G>>A\n")
	assert.Equal(t, []tone{
		{0, 360, 48}, {360, 120, 50},
		{480, 120, 52}, {600, 360, 53},
		{960, 420, 55}, {1380, 60, 57},
	}, tones(tr))
}

func TestTuplets(t *testing.T) {
	tr := parseOne(t, "K:C\n(3CDE F\n")
	assert.Equal(t, []tone{{0, 160, 48}, {160, 160, 50}, {320, 160, 52}, {480, 240, 53}}, tones(tr))

	// a chord counts as one tuplet member
	tr = parseOne(t, "K:C\n(3[CE]DE F\n")
	assert.Equal(t, []tone{{0, 160, 48}, {0, 160, 52}, {160, 160, 50}, {320, 160, 52}, {480, 240, 53}}, tones(tr))

	tr = parseOne(t, "L:1/4\nK:C\n(2:3:2CD E\n")
	assert.Equal(t, []tone{{0, 720, 48}, {720, 720, 50}, {1440, 480, 52}}, tones(tr))
}

func TestRepeats(t *testing.T) {
	tr := parseOne(t, "L:1/4\nK:C\n|:C D:|E\n")
	assert.Equal(t, []tone{{0, 480, 48}, {480, 480, 50}, {960, 480, 48}, {1440, 480, 50}, {1920, 480, 52}}, tones(tr))

	// an unmatched end repeats from the start
	tr = parseOne(t, "L:1/4\nK:C\nC D :| E\n")
	assert.Equal(t, []tone{{0, 480, 48}, {480, 480, 50}, {960, 480, 48}, {1440, 480, 50}, {1920, 480, 52}}, tones(tr))
}

func TestGraceNotes(t *testing.T) {
	tr := parseOne(t, "K:C\n{g}A B\n")
	assert.Equal(t, []tone{{0, 60, 67}, {60, 240, 57}, {300, 240, 59}}, tones(tr))
}

func TestRestsAndDecorations(t *testing.T) {
	tr := parseOne(t, "M:4/4\nL:1/4\nK:C\nZ2|\"Am\"!trill!.C x +fermata+ ~D % trailing comment\n")
	assert.Equal(t, []tone{{3840, 480, 48}, {4800, 480, 50}}, tones(tr))
}

func TestVoices(t *testing.T) {
	src := "X:1\nT:Duet\nM:4/4\nL:1/4\nV:1 name=\"Upper\"\nV:2 name=\"Lower\"\nK:C\n" +
		"V:1\ncdef|\nV:2\nC,D,E,F,|\n[V:1]g\n"
	s, err := Parse(src)
	require.NoError(t, err)
	require.Len(t, s.Tracks, 2)
	assert.Equal(t, "Upper", s.Tracks[0].Name)
	assert.Equal(t, "Lower", s.Tracks[1].Name)
	assert.Equal(t, []tone{{0, 480, 60}, {480, 480, 62}, {960, 480, 64}, {1440, 480, 65}, {1920, 480, 67}}, tones(s.Tracks[0]))
	assert.Equal(t, []tone{{0, 480, 36}, {480, 480, 38}, {960, 480, 40}, {1440, 480, 41}}, tones(s.Tracks[1]))
}

func TestEmptyVoicesDropped(t *testing.T) {
	s, err := Parse("V:1\nV:2\nK:C\nV:2\nC\n")
	require.NoError(t, err)
	require.Len(t, s.Tracks, 1)
	assert.Equal(t, "2", s.Tracks[0].Name)
}

func TestLyrics(t *testing.T) {
	tr := parseOne(t, "K:C\nC D- D E|\nw: hel-lo world\n")
	assert.Equal(t, score.Seq[score.TextMeta[score.Tick]]{
		{Time: 0, Text: "hel"}, {Time: 240, Text: "lo"}, {Time: 720, Text: "world"},
	}, tr.Lyrics)

	tr = parseOne(t, "K:C\nC D E\nw: a * c~d\n")
	assert.Equal(t, score.Seq[score.TextMeta[score.Tick]]{{Time: 0, Text: "a"}, {Time: 480, Text: "c d"}}, tr.Lyrics)
}

func TestTempoAndMeterChanges(t *testing.T) {
	s, err := Parse("L:1/4\nQ:1/4=90\nK:C\nCDEF|[Q:120]G|\nM:3/4\nK:D\nF\n")
	require.NoError(t, err)
	assert.Equal(t, score.Seq[score.Tempo[score.Tick]]{{Time: 0, MSPQ: 666667}, {Time: 1920, MSPQ: 500000}}, s.Tempos)
	assert.Equal(t, score.Seq[score.TimeSignature[score.Tick]]{
		{Time: 0, Numerator: 4, Denominator: 4}, {Time: 2400, Numerator: 3, Denominator: 4},
	}, s.TimeSignatures)
	assert.Equal(t, score.Seq[score.KeySignature[score.Tick]]{{Time: 0}, {Time: 2400, Key: 2}}, s.KeySignatures)
	assert.Equal(t, int8(54), s.Tracks[0].Notes[5].Pitch)

	mspq, err := parseTempo(`"Allegro" 3/8=80`)
	require.NoError(t, err)
	assert.Equal(t, uint32(500000), mspq)
}

func TestMIDIProgramDirective(t *testing.T) {
	tr := parseOne(t, "%%MIDI program 41\n% a comment\nK:C\nC\n")
	assert.Equal(t, uint8(41), tr.Program)
}

func TestOnlyFirstTune(t *testing.T) {
	tr := parseOne(t, "X:1\nK:C\nC\n\nX:2\nK:G\nD E\n")
	assert.Equal(t, []tone{{0, 240, 48}}, tones(tr))
}

func TestEmptyInput(t *testing.T) {
	s, err := Parse("")
	require.NoError(t, err)
	assert.Empty(t, s.Tracks)
	assert.Zero(t, s.NoteNum())
	assert.Len(t, s.Tempos, 1)
}

func TestSyntaxErrors(t *testing.T) {
	cases := map[string]struct {
		src       string
		line, col int
	}{
		"unexpected character": {"X:1\nK:C\nCD?E\n", 3, 3},
		"unterminated chord":   {"K:C\nC [CE\n", 2, 3},
		"unterminated grace":   {"K:C\n{ga\n", 2, 1},
		"bad key":              {"X:1\nK:Q\n", 2, 1},
		"bad length":           {"K:C\nC0\n", 2, 2},
		"pitch out of range":   {"K:C\nc''''''\n", 2, 1},
		"bad tuplet":           {"K:C\n(1C\n", 2, 1},
		"bad program":          {"%%MIDI program 300\nK:C\n", 1, 1},
		"unterminated quote":   {"K:C\n\"Am C\n", 2, 1},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			s, err := Parse(tc.src)
			require.Error(t, err)
			assert.Nil(t, s)
			assert.ErrorIs(t, err, score.ErrCodec)
			var ce *score.CodecError
			require.True(t, errors.As(err, &ce))
			assert.Equal(t, "abc", ce.Format)
			assert.Equal(t, tc.line, ce.Line)
			assert.Equal(t, tc.col, ce.Column)
		})
	}

	_, err := Parse("X:1\nK:C\nCD?E\n")
	var ce *score.CodecError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, int64(10), ce.Offset)
	assert.Contains(t, err.Error(), "abc: line 3 col 3")
}

func TestOptions(t *testing.T) {
	s, err := ParseWith("L:1/4\nK:C\nC\n", Options{TicksPerQuarter: 96, Velocity: 64})
	require.NoError(t, err)
	assert.Equal(t, int32(96), s.TicksPerQuarter)
	assert.Equal(t, []tone{{0, 96, 48}}, tones(s.Tracks[0]))
	assert.Equal(t, int8(64), s.Tracks[0].Notes[0].Velocity)

	_, err = ParseWith("K:C\nC\n", Options{TicksPerQuarter: 0, Velocity: 64})
	assert.ErrorIs(t, err, score.ErrValue)
	_, err = ParseWith("K:C\nC\n", Options{TicksPerQuarter: 480, Velocity: 128})
	assert.ErrorIs(t, err, score.ErrValue)

	assert.Equal(t, DefaultOptions(), OptionsFromConfig(config.DefaultConfig().ABC))
}

func TestReadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tune.abc")
	require.NoError(t, os.WriteFile(path, []byte("X:1\r\nT:CRLF\r\nK:C\r\nC D\r\n"), 0644))
	s, err := ReadFile(path, DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, "CRLF", s.Tracks[0].Name)
	assert.Equal(t, 2, s.NoteNum())

	_, err = ReadFile(filepath.Join(t.TempDir(), "missing.abc"), DefaultOptions())
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestTickOverflow(t *testing.T) {
	cases := []struct {
		name   string
		src    string
		col    int
		offset int64
	}{
		{"multi-measure rest", "X:1\nK:C\nZ2147483647|C|", 13, 20},
		{"long notes", "X:1\nK:C\nC4000000|C4000000|C4000000|\n", 19, 26},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s, err := Parse(tc.src)
			require.Error(t, err)
			assert.Nil(t, s)
			assert.ErrorIs(t, err, score.ErrCodec)
			var ce *score.CodecError
			require.True(t, errors.As(err, &ce))
			assert.Equal(t, 3, ce.Line)
			assert.Equal(t, tc.col, ce.Column)
			assert.Equal(t, tc.offset, ce.Offset)
			assert.Contains(t, ce.Msg, "overflows the tick range")
		})
	}

	// two of the long notes still fit
	tr := parseOne(t, "X:1\nK:C\nC4000000|C4000000|\n")
	assert.Equal(t, []tone{{0, 960000000, 48}, {960000000, 960000000, 48}}, tones(tr))
}

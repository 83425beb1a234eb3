package tui

import (
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-symusic/score"
	"go-symusic/theme"
)

func key(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func press(t *testing.T, m Model, keys ...string) Model {
	t.Helper()
	for _, k := range keys {
		next, _ := m.Update(key(k))
		var ok bool
		m, ok = next.(Model)
		require.True(t, ok)
	}
	return m
}

func testScore() *score.Score[score.Tick] {
	s, _ := score.New[score.Tick](480)
	s.Tempos.Append(score.Tempo[score.Tick]{Time: 0, MSPQ: 600000})
	s.Tracks = []*score.Track[score.Tick]{
		{Name: "Lead", Notes: score.Seq[score.Note[score.Tick]]{
			{Time: 0, Duration: 960, Pitch: 72, Velocity: 100},
			{Time: 960, Duration: 960, Pitch: 76, Velocity: 100},
		}},
		{Name: "Kit", IsDrum: true, Notes: score.Seq[score.Note[score.Tick]]{
			{Time: 0, Duration: 10, Pitch: 36, Velocity: 100},
		}},
	}
	return s
}

func TestSelection(t *testing.T) {
	m := NewModel("song.mid", testScore(), theme.New(theme.Plasma()))
	assert.Equal(t, 0, m.Selected())
	assert.Equal(t, 74+12, m.Window().Top)

	m = press(t, m, "j")
	assert.Equal(t, 1, m.Selected())
	m = press(t, m, "j", "j")
	assert.Equal(t, 1, m.Selected(), "selection stops at the last track")
	m = press(t, m, "k", "k")
	assert.Equal(t, 0, m.Selected())
}

func TestZoomAndScroll(t *testing.T) {
	m := NewModel("song.mid", testScore(), theme.New(theme.Plasma()))
	assert.Equal(t, 120, m.Window().TicksPerCol)

	m = press(t, m, "+")
	assert.Equal(t, 60, m.Window().TicksPerCol)
	m = press(t, m, "-", "-")
	assert.Equal(t, 240, m.Window().TicksPerCol)

	m = press(t, m, "l")
	// scrolling stops one column before the last note end
	assert.Equal(t, 1921-240, m.Window().Start)
	m = press(t, m, "h", "h")
	assert.Equal(t, 0, m.Window().Start)

	top := m.Window().Top
	m = press(t, m, "K")
	assert.Equal(t, min(top+12, 127), m.Window().Top)
	m = press(t, m, "J", "J", "J", "J", "J", "J", "J", "J", "J", "J")
	assert.Equal(t, m.Window().Rows-1, m.Window().Top)
}

func TestViewAndQuit(t *testing.T) {
	m := NewModel("/tmp/song.mid", testScore(), theme.New(theme.Plasma()))
	next, _ := m.Update(tea.WindowSizeMsg{Width: 80, Height: 40})
	m = next.(Model)
	assert.Equal(t, 40-chrome-2, m.Window().Rows)
	assert.Equal(t, 75, m.Window().Cols)

	v := m.View()
	assert.Contains(t, v, "song.mid")
	assert.Contains(t, v, "tpq:480")
	assert.Contains(t, v, "100.0qpm")
	assert.Contains(t, v, "2.4s")
	assert.Contains(t, v, "Lead")
	assert.Contains(t, v, "drums")
	assert.Contains(t, v, "C5")

	m = press(t, m, "?")
	assert.Contains(t, m.View(), "Roll")

	next, cmd := m.Update(key("q"))
	require.NotNil(t, cmd)
	assert.Equal(t, "", next.View())
}

func TestEmptyScore(t *testing.T) {
	s, _ := score.New[score.Tick](96)
	m := NewModel("empty.mid", s, theme.New(theme.Plasma()))
	m = press(t, m, "j", "l", "+")
	assert.Contains(t, m.View(), "(no tracks)")
}

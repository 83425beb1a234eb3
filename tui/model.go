package tui

import (
	"fmt"
	"path/filepath"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"go-symusic/convert"
	"go-symusic/debug"
	"go-symusic/pianoroll"
	"go-symusic/score"
	"go-symusic/theme"
	"go-symusic/widgets"
)

var keys = []widgets.KeySection{
	{Title: "Tracks", Keys: []widgets.KeyBinding{
		{Key: "j/k", Desc: "select"},
	}},
	{Title: "Roll", Keys: []widgets.KeyBinding{
		{Key: "h/l", Desc: "scroll"},
		{Key: "J/K", Desc: "pitch"},
		{Key: "+/-", Desc: "zoom"},
	}},
	{Keys: []widgets.KeyBinding{
		{Key: "?", Desc: "help"},
		{Key: "q", Desc: "quit"},
	}},
}

// chrome is the number of lines around the roll: header, blank lines,
// help line.
const chrome = 6

type Model struct {
	Score *score.Score[score.Tick]
	Path  string
	Theme *theme.Theme

	selected int
	raster   *pianoroll.Raster
	view     widgets.RollView
	seconds  float64
	help     bool
	quitting bool
	err      error
}

func NewModel(path string, s *score.Score[score.Tick], th *theme.Theme) Model {
	m := Model{
		Score: s,
		Path:  path,
		Theme: th,
		view:  widgets.RollView{TicksPerCol: max(int(s.TicksPerQuarter)/4, 1), Rows: 24, Cols: 64},
	}
	if tm, err := convert.NewTempoMap(s.TicksPerQuarter, s.Tempos); err == nil {
		m.seconds = tm.Seconds(float64(s.End()))
	}
	m.selectTrack(0)
	return m
}

// selectTrack rebuilds the frame raster and centres the pitch window on
// the track's notes.
func (m *Model) selectTrack(i int) {
	if len(m.Score.Tracks) == 0 {
		return
	}
	m.selected = min(max(i, 0), len(m.Score.Tracks)-1)
	t := m.Score.Tracks[m.selected]
	m.raster, m.err = pianoroll.FromTrack(t, pianoroll.DefaultOptions())
	m.view.Start = 0
	m.view.Top = 72
	if pitches := t.Pitches(); len(pitches) > 0 {
		lo, hi := pitches[0], pitches[0]
		for _, p := range pitches {
			lo, hi = min(lo, p), max(hi, p)
		}
		m.view.Top = min((int(lo)+int(hi))/2+m.view.Rows/2, 127)
	}
	debug.Log("tui", "track %d %q: top=%d", m.selected, t.Name, m.view.Top)
}

// Selected returns the index of the selected track.
func (m Model) Selected() int { return m.selected }

// View window of the roll.
func (m Model) Window() widgets.RollView { return m.view }

func (m Model) Init() tea.Cmd { return nil }

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit

		case "j", "down":
			m.selectTrack(m.selected + 1)

		case "k", "up":
			m.selectTrack(m.selected - 1)

		case "+", "=":
			m.view.TicksPerCol = max(m.view.TicksPerCol/2, 1)

		case "-", "_":
			m.view.TicksPerCol = min(m.view.TicksPerCol*2, 1<<20)

		case "l", "right":
			m.view.Start += m.view.TicksPerCol * max(m.view.Cols/4, 1)
			if m.raster != nil {
				m.view.Start = min(m.view.Start, max(m.raster.Times-m.view.TicksPerCol, 0))
			}

		case "h", "left":
			m.view.Start = max(m.view.Start-m.view.TicksPerCol*max(m.view.Cols/4, 1), 0)

		case "K":
			m.view.Top = min(m.view.Top+12, 127)

		case "J":
			m.view.Top = max(m.view.Top-12, m.view.Rows-1)

		case "?":
			m.help = !m.help
		}

	case tea.WindowSizeMsg:
		m.view.Rows = max(msg.Height-chrome-len(m.Score.Tracks), 4)
		m.view.Cols = max(msg.Width-5, 8)
	}

	return m, nil
}

func (m Model) View() string {
	if m.quitting {
		return ""
	}

	headerStyle := lipgloss.NewStyle().Foreground(m.Theme.Accent())
	dimStyle := lipgloss.NewStyle().Foreground(m.Theme.Muted())
	selStyle := lipgloss.NewStyle().Foreground(m.Theme.Cursor())

	qpm := score.Tempo[score.Tick]{MSPQ: score.DefaultMSPQ}.QPM()
	if len(m.Score.Tempos) > 0 {
		qpm = m.Score.Tempos[0].QPM()
	}
	header := headerStyle.Render(fmt.Sprintf("go-symusic  %s  tpq:%d  %.1fqpm  tracks:%d  %.1fs",
		filepath.Base(m.Path), m.Score.TicksPerQuarter, qpm, len(m.Score.Tracks), m.seconds))

	var out strings.Builder
	out.WriteString("\n")
	out.WriteString(header)
	out.WriteString("\n\n")

	for i, t := range m.Score.Tracks {
		name := t.Name
		if name == "" {
			name = fmt.Sprintf("track %d", i)
		}
		line := fmt.Sprintf("  %-20s prog:%-3d notes:%d", name, t.Program, t.NoteNum())
		if t.IsDrum {
			line += " drums"
		}
		if i == m.selected {
			out.WriteString(selStyle.Render(string(m.Theme.Symbols.Selected) + line[1:]))
		} else {
			out.WriteString(dimStyle.Render(line))
		}
		out.WriteString("\n")
	}
	out.WriteString("\n")

	switch {
	case m.err != nil:
		out.WriteString(m.err.Error())
	case m.raster != nil:
		out.WriteString(widgets.RenderRoll(m.raster, 0, 0, m.view, m.Theme))
	default:
		out.WriteString(dimStyle.Render("(no tracks)"))
	}
	out.WriteString("\n\n")

	if m.help {
		out.WriteString(widgets.RenderKeyHelp(keys))
	} else {
		out.WriteString(dimStyle.Render(widgets.RenderKeyLine(keys)))
	}
	return out.String()
}

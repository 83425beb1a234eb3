package widgets

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"go-symusic/pianoroll"
	"go-symusic/theme"
)

var pitchNames = [12]string{"C", "C#", "D", "D#", "E", "F", "F#", "G", "G#", "A", "A#", "B"}

// PitchName returns scientific pitch notation, with MIDI 60 as C4.
func PitchName(pitch int) string {
	return fmt.Sprintf("%s%d", pitchNames[((pitch%12)+12)%12], pitch/12-1)
}

// RollView selects the window of a raster shown in the terminal.
type RollView struct {
	Start       int // first tick
	TicksPerCol int
	Top         int // MIDI pitch of the first row
	Rows, Cols  int
}

// RenderRoll draws one track of a raster plane as text, highest pitch
// first. Each column shows the loudest cell of its tick range.
func RenderRoll(r *pianoroll.Raster, mode, track int, v RollView, th *theme.Theme) string {
	tpc := max(v.TicksPerCol, 1)
	rest := lipgloss.NewStyle().Foreground(th.Muted())
	label := lipgloss.NewStyle().Foreground(th.FG())

	lines := make([]string, 0, v.Rows)
	for i := 0; i < v.Rows; i++ {
		pitch := v.Top - i
		var line strings.Builder
		line.WriteString(label.Render(fmt.Sprintf("%-4s", PitchName(pitch))))

		idx := pitch - r.PitchLow
		inRange := idx >= 0 && idx < r.Pitches
		var row []uint8
		if inRange {
			row = r.Row(mode, track, idx)
		}
		for c := 0; c < v.Cols; c++ {
			from := v.Start + c*tpc
			if !inRange || from >= len(row) || from < 0 {
				line.WriteByte(' ')
				continue
			}
			var peak uint8
			for _, x := range row[from:min(from+tpc, len(row))] {
				peak = max(peak, x)
			}
			switch {
			case peak > 0:
				rgb := th.Velocity(peak)
				style := lipgloss.NewStyle().Foreground(lipgloss.Color(fmt.Sprintf("#%02x%02x%02x", rgb[0], rgb[1], rgb[2])))
				line.WriteString(style.Render(string(th.Symbols.NoteOn)))
			case pitch%12 == 0:
				line.WriteString(rest.Render(string(th.Symbols.OctaveC)))
			default:
				line.WriteString(rest.Render(string(th.Symbols.Rest)))
			}
		}
		lines = append(lines, line.String())
	}
	return strings.Join(lines, "\n")
}

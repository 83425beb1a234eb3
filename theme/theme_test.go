package theme

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/charmbracelet/lipgloss"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const gpl = `GIMP Palette
Name: Mono
Columns: 2
# black to white
  0   0   0	black
255 255 255	white
300 0 0	out of range is skipped
`

func TestParseGPL(t *testing.T) {
	p, err := ParseGPL(strings.NewReader(gpl))
	require.NoError(t, err)
	assert.Equal(t, "Mono", p.Name)
	assert.Equal(t, []RGB{{0, 0, 0}, {255, 255, 255}}, p.Colors)

	_, err = ParseGPL(strings.NewReader("GIMP Palette\n# nothing\n"))
	assert.Error(t, err)
}

func TestLoad(t *testing.T) {
	p, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "plasma", p.Name)

	path := filepath.Join(t.TempDir(), "mono.gpl")
	require.NoError(t, os.WriteFile(path, []byte(gpl), 0644))
	p, err = Load(path)
	require.NoError(t, err)
	assert.Len(t, p.Colors, 2)

	_, err = Load(filepath.Join(t.TempDir(), "missing.gpl"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestLookup(t *testing.T) {
	p := &Palette{Colors: []RGB{{0, 0, 0}, {200, 100, 50}}}
	assert.Equal(t, RGB{0, 0, 0}, p.Lookup(-1))
	assert.Equal(t, RGB{200, 100, 50}, p.Lookup(2))
	assert.Equal(t, RGB{100, 50, 25}, p.Lookup(0.5))

	single := &Palette{Colors: []RGB{{1, 2, 3}}}
	assert.Equal(t, RGB{1, 2, 3}, single.Lookup(0.7))
}

func TestThemeColors(t *testing.T) {
	th := New(&Palette{Colors: []RGB{{0, 0, 0}, {255, 255, 255}}})
	assert.Equal(t, lipgloss.Color("#000000"), th.BG())
	assert.Equal(t, lipgloss.Color("#ffffff"), th.Color(1))
	assert.Equal(t, RGB{255, 255, 255}, th.Velocity(127))
	assert.Equal(t, th.Palette.Lookup(RoleSurface), th.Velocity(0))
	assert.Equal(t, uint8(0xFF), th.Velocity(64).RGBA().A)
}

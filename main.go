package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"go-symusic/abc"
	"go-symusic/config"
	"go-symusic/debug"
	"go-symusic/midi"
	"go-symusic/score"
	"go-symusic/theme"
	"go-symusic/tui"
)

func load(path string, cfg *config.Config) (*score.Score[score.Tick], error) {
	if strings.EqualFold(filepath.Ext(path), ".abc") {
		return abc.ReadFile(path, abc.OptionsFromConfig(cfg.ABC))
	}
	return midi.ReadFile(path)
}

func main() {
	if len(os.Args) != 2 {
		fmt.Println("usage: go-symusic <file.mid|file.abc>")
		os.Exit(2)
	}
	path := os.Args[1]

	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	if cfg.Debug {
		if err := debug.Enable(); err != nil {
			fmt.Printf("Warning: debug log unavailable: %v\n", err)
		}
		defer debug.Disable()
	}

	s, err := load(path, cfg)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	palette, err := theme.Load(cfg.Render.Palette)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	th := theme.New(palette)

	m := tui.NewModel(path, s, th)
	p := tea.NewProgram(m, tea.WithAltScreen())

	if _, err := p.Run(); err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
}

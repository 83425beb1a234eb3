package config

import (
	"encoding/json"
	"os"
	"path/filepath"
)

// PianorollConfig sets rasterizer defaults for the CLI, server and TUI
type PianorollConfig struct {
	Modes          []string `json:"modes,omitempty"`
	PitchLow       int      `json:"pitchLow"`
	PitchHigh      int      `json:"pitchHigh"`
	EncodeVelocity bool     `json:"encodeVelocity"`
	MaxCells       int      `json:"maxCells"` // raster byte cap; 0 = unbounded
}

// RenderConfig controls PNG output
type RenderConfig struct {
	Palette       string `json:"palette,omitempty"` // path to a GIMP .gpl file; empty = builtin
	CellHeight    int    `json:"cellHeight"`
	TicksPerPixel int    `json:"ticksPerPixel"`
}

// ABCConfig controls the ABC parser
type ABCConfig struct {
	TicksPerQuarter int32 `json:"ticksPerQuarter"`
	Velocity        int   `json:"velocity"`
}

// PlayerConfig defines the MIDI output used by play
type PlayerConfig struct {
	PortName string `json:"portName,omitempty"`
}

// ServerConfig defines the HTTP listener
type ServerConfig struct {
	Addr      string `json:"addr"`
	MaxUpload int64  `json:"maxUpload"`
}

// Config is the main configuration structure
type Config struct {
	Pianoroll PianorollConfig `json:"pianoroll"`
	Render    RenderConfig    `json:"render"`
	ABC       ABCConfig       `json:"abc"`
	Player    PlayerConfig    `json:"player,omitempty"`
	Server    ServerConfig    `json:"server"`
	Debug     bool            `json:"debug,omitempty"`
}

// DefaultConfig returns a config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Pianoroll: PianorollConfig{
			Modes:          []string{"frame"},
			PitchLow:       0,
			PitchHigh:      128,
			EncodeVelocity: true,
			MaxCells:       1 << 26,
		},
		Render: RenderConfig{
			CellHeight:    4,
			TicksPerPixel: 10,
		},
		ABC: ABCConfig{
			TicksPerQuarter: 480,
			Velocity:        96,
		},
		Server: ServerConfig{
			Addr:      "localhost:8088",
			MaxUpload: 32 << 20,
		},
	}
}

// ConfigDir returns the config directory path
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "go-symusic"), nil
}

// ConfigPath returns the full path to config.json
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.json"), nil
}

// Load reads the config from disk, or returns defaults if not found
func Load() (*Config, error) {
	path, err := ConfigPath()
	if err != nil {
		return DefaultConfig(), nil
	}
	return LoadFrom(path)
}

// LoadFrom reads a config file. Missing fields keep their defaults.
func LoadFrom(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultConfig(), nil
		}
		return nil, err
	}

	cfg := DefaultConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Save writes the config to disk
func (c *Config) Save() error {
	path, err := ConfigPath()
	if err != nil {
		return err
	}
	return c.SaveTo(path)
}

// SaveTo writes the config to path, creating parent directories.
func (c *Config) SaveTo(path string) error {
	// Create directory if it doesn't exist
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
)

// Backend names accepted in AudioConfig.Backend.
const (
	BackendPortAudio = "portaudio"
	BackendMalgo     = "malgo"
)

// Sample formats accepted in AudioConfig.Format.
const (
	FormatFloat32 = "float32"
	FormatInt16   = "int16"
)

type Config struct {
	LogLevel string       `json:"log_level"`
	Audio    AudioConfig  `json:"audio"`
	Buffer   BufferConfig `json:"buffer"`
}

type AudioConfig struct {
	Backend     string `json:"backend"`      // "portaudio" or "malgo"
	Device      string `json:"device"`       // device name, "" = default input
	Channels    int    `json:"channels"`     // capture channel count
	SampleRate  int    `json:"sample_rate"`  // Hz
	BlockSize   int    `json:"block_size"`   // frames per callback
	Format      string `json:"format"`       // "float32" or "int16"
	StabilizeMs int    `json:"stabilize_ms"` // post-start settle delay
}

type BufferConfig struct {
	Capacity int `json:"capacity"` // blocks held before drop-oldest kicks in
}

// Load reads the config from disk or returns defaults
func Load() (*Config, error) {
	path := configPath()

	cfg := Default()

	// Load existing config if it exists
	if data, err := os.ReadFile(path); err == nil {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Default returns the built-in configuration: mono 44.1 kHz float32
// capture from the default input device, 2048-frame blocks, a
// single-slot hand-off buffer and a half-second stabilization wait.
func Default() *Config {
	return &Config{
		LogLevel: "info",
		Audio: AudioConfig{
			Backend:     BackendPortAudio,
			Device:      "",
			Channels:    1,
			SampleRate:  44100,
			BlockSize:   2048,
			Format:      FormatFloat32,
			StabilizeMs: 500,
		},
		Buffer: BufferConfig{
			Capacity: 1,
		},
	}
}

// Save writes the config to disk
func (c *Config) Save() error {
	path := configPath()

	// Ensure directory exists
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

// Validate rejects configurations the capture backends cannot open.
func (c *Config) Validate() error {
	a := c.Audio
	switch a.Backend {
	case BackendPortAudio, BackendMalgo:
	default:
		return fmt.Errorf("unknown audio backend %q", a.Backend)
	}
	switch a.Format {
	case FormatFloat32, FormatInt16:
	default:
		return fmt.Errorf("unknown sample format %q", a.Format)
	}
	if a.Channels < 1 {
		return fmt.Errorf("channels must be positive, got %d", a.Channels)
	}
	if a.SampleRate < 1 {
		return fmt.Errorf("sample rate must be positive, got %d", a.SampleRate)
	}
	if a.BlockSize < 1 {
		return fmt.Errorf("block size must be positive, got %d", a.BlockSize)
	}
	if a.StabilizeMs < 0 {
		return fmt.Errorf("stabilize_ms must not be negative, got %d", a.StabilizeMs)
	}
	if c.Buffer.Capacity < 1 {
		return fmt.Errorf("buffer capacity must be positive, got %d", c.Buffer.Capacity)
	}
	return nil
}

// configPath returns the platform-specific config file path
func configPath() string {
	var base string

	switch runtime.GOOS {
	case "darwin":
		base = os.Getenv("HOME") + "/Library/Application Support"
	case "windows":
		base = os.Getenv("APPDATA")
	default: // linux
		if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
			base = xdg
		} else {
			base = os.Getenv("HOME") + "/.config"
		}
	}

	return filepath.Join(base, "audiotap", "config.json")
}

package video

import (
	"fmt"
	"io"
	"strings"

	"github.com/BurntSushi/toml"
)

// ScreenMode selects how the render surface is presented.
type ScreenMode int

const (
	// ModeWindowed is a regular window of Config.Window size.
	ModeWindowed ScreenMode = iota
	// ModeMaximized is a window, initially of Config.Window size, maximized
	// by the platform.
	ModeMaximized
	// ModeFullscreen is exclusive fullscreen, changing the display mode to
	// Config.Fullscreen size.
	ModeFullscreen
	// ModeWindowedFullscreen is a borderless window covering the display,
	// without a display mode change.
	ModeWindowedFullscreen
)

var screenModeNames = [...]string{
	ModeWindowed:           "windowed",
	ModeMaximized:          "maximized",
	ModeFullscreen:         "fullscreen",
	ModeWindowedFullscreen: "windowed-fullscreen",
}

// String returns the config file name of the mode.
func (m ScreenMode) String() string {
	if m.Valid() {
		return screenModeNames[m]
	}
	return fmt.Sprintf("ScreenMode(%d)", int(m))
}

// Valid reports whether m is one of the defined modes.
func (m ScreenMode) Valid() bool {
	return m >= ModeWindowed && int(m) < len(screenModeNames)
}

// Fullscreen reports whether the mode covers the whole display.
func (m ScreenMode) Fullscreen() bool {
	return m == ModeFullscreen || m == ModeWindowedFullscreen
}

// MarshalText implements encoding.TextMarshaler.
func (m ScreenMode) MarshalText() ([]byte, error) {
	if !m.Valid() {
		return nil, fmt.Errorf("%w: unknown screen mode %d", ErrInvalidConfig, int(m))
	}
	return []byte(screenModeNames[m]), nil
}

// UnmarshalText implements encoding.TextUnmarshaler. Matching is case
// insensitive, and accepts underscores in place of hyphens.
func (m *ScreenMode) UnmarshalText(text []byte) error {
	name := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(string(text))), "_", "-")
	for i, v := range screenModeNames {
		if v == name {
			*m = ScreenMode(i)
			return nil
		}
	}
	return fmt.Errorf("%w: unknown screen mode %q", ErrInvalidConfig, string(text))
}

// Size is a width/height pair, in pixels.
type Size struct {
	Width  int `toml:"width"`
	Height int `toml:"height"`
}

func (s Size) String() string {
	return fmt.Sprintf("%dx%d", s.Width, s.Height)
}

// Empty reports whether either dimension is non-positive.
func (s Size) Empty() bool {
	return s.Width <= 0 || s.Height <= 0
}

// Config is the frame configuration of a single session.
type Config struct {
	Window     Size       `toml:"window"`
	Fullscreen Size       `toml:"fullscreen"`
	Mode       ScreenMode `toml:"mode"`
	Resizable  bool       `toml:"resizable"`
}

// DefaultConfig returns a resizable 800x600 window, with a 1920x1080
// fullscreen size.
func DefaultConfig() Config {
	return Config{
		Mode:       ModeWindowed,
		Window:     Size{Width: 800, Height: 600},
		Fullscreen: Size{Width: 1920, Height: 1080},
		Resizable:  true,
	}
}

// ScreenSize returns the size of the render surface for the configured mode.
// Windowed fullscreen falls back to the window size if no fullscreen size is
// configured.
func (c Config) ScreenSize() Size {
	switch c.Mode {
	case ModeFullscreen:
		return c.Fullscreen
	case ModeWindowedFullscreen:
		if !c.Fullscreen.Empty() {
			return c.Fullscreen
		}
	}
	return c.Window
}

// Validate checks that the mode is known, and the active size is positive.
func (c Config) Validate() error {
	if !c.Mode.Valid() {
		return fmt.Errorf("%w: unknown screen mode %d", ErrInvalidConfig, int(c.Mode))
	}
	if size := c.ScreenSize(); size.Empty() {
		return fmt.Errorf("%w: %s size %s", ErrInvalidConfig, c.Mode, size)
	}
	return nil
}

// DecodeConfig reads a TOML config, applied over [DefaultConfig]. Unknown
// keys are rejected.
//
//	mode = "fullscreen"
//	resizable = false
//
//	[window]
//	width = 1280
//	height = 720
//
//	[fullscreen]
//	width = 2560
//	height = 1440
func DecodeConfig(r io.Reader) (Config, error) {
	cfg := DefaultConfig()
	md, err := toml.NewDecoder(r).Decode(&cfg)
	if err != nil {
		return Config{}, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return checkDecoded(cfg, md)
}

// LoadConfig reads a TOML config file, see [DecodeConfig].
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	md, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return Config{}, fmt.Errorf("%w: %s: %w", ErrInvalidConfig, path, err)
	}
	return checkDecoded(cfg, md)
}

func checkDecoded(cfg Config, md toml.MetaData) (Config, error) {
	if undecoded := md.Undecoded(); len(undecoded) != 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return Config{}, fmt.Errorf("%w: unknown keys: %s", ErrInvalidConfig, strings.Join(keys, ", "))
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

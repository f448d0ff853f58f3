// Package config reads the switchres configuration file.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// MaxScreenLength is the longest screen selector kept. Longer ones are
// truncated.
const MaxScreenLength = 31

// Config is the user configuration.
type Config struct {
	// X display to connect to, empty for $DISPLAY
	Display string `toml:"display" yaml:"display"`

	// "auto", "screen<N>" or an output name such as "DP-1"
	Screen string `toml:"screen" yaml:"screen"`

	// the monitor is physically rotated
	Rotate bool `toml:"rotate" yaml:"rotate"`

	// error, info or debug
	LogLevel string `toml:"log_level" yaml:"log_level"`
	LogFile  string `toml:"log_file" yaml:"log_file"`

	// modelines, in xorg notation, added on startup
	Modelines []string `toml:"modelines" yaml:"modelines"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Screen:   "auto",
		LogLevel: "info",
	}
}

// Load reads path over the defaults. The format follows the extension:
// .yaml and .yml are YAML, anything else is TOML.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("config: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &cfg)
	default:
		_, err = toml.Decode(string(data), &cfg)
	}
	if err != nil {
		return cfg, fmt.Errorf("config: %s: %w", path, err)
	}

	return cfg, nil
}

// Validate normalises the configuration. An empty screen becomes "auto" and
// an overlong one is truncated on a character boundary with a warning.
func (cfg *Config) Validate(log *slog.Logger) error {
	if log == nil {
		log = slog.Default()
	}

	if cfg.Screen == "" {
		cfg.Screen = "auto"
	}
	if len(cfg.Screen) > MaxScreenLength {
		n := MaxScreenLength
		for n > 0 && !utf8.RuneStart(cfg.Screen[n]) {
			n--
		}
		cfg.Screen = cfg.Screen[:n]
		log.Warn("config: screen name too long, truncated", "screen", cfg.Screen)
	}

	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	cfg.LogLevel = strings.ToLower(cfg.LogLevel)
	switch cfg.LogLevel {
	case "error", "info", "debug", "verbose":
	default:
		return fmt.Errorf("config: unknown log level %q", cfg.LogLevel)
	}

	return nil
}

package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Config holds runtime parameters for the service.
// Zero values mean "unspecified" and are replaced by defaults in Normalize.
type Config struct {
	Addr      string `json:"addr" yaml:"addr" toml:"addr"`
	ModelsDir string `json:"models_dir" yaml:"models_dir" toml:"models_dir"`

	// KeepAlive is how long an idle adapter stays warm, e.g. "5m".
	KeepAlive string `json:"keep_alive" yaml:"keep_alive" toml:"keep_alive"`
	// EvictInterval is the janitor scan period, e.g. "30s".
	EvictInterval string `json:"evict_interval" yaml:"evict_interval" toml:"evict_interval"`
	// DownloadTimeout bounds one model transfer, e.g. "30m". Empty disables.
	DownloadTimeout string `json:"download_timeout" yaml:"download_timeout" toml:"download_timeout"`

	// Accelerator memory thresholds (MB) for precision tier selection.
	HighVRAMMB int `json:"high_vram_mb" yaml:"high_vram_mb" toml:"high_vram_mb"`
	LowVRAMMB  int `json:"low_vram_mb" yaml:"low_vram_mb" toml:"low_vram_mb"`

	// External backend binaries. Empty means discover on PATH.
	WhisperBin string `json:"whisper_bin" yaml:"whisper_bin" toml:"whisper_bin"`
	PiperBin   string `json:"piper_bin" yaml:"piper_bin" toml:"piper_bin"`

	LogLevel string `json:"log_level" yaml:"log_level" toml:"log_level"`

	CORSEnabled bool     `json:"cors_enabled" yaml:"cors_enabled" toml:"cors_enabled"`
	CORSOrigins []string `json:"cors_origins" yaml:"cors_origins" toml:"cors_origins"`
}

// Defaults applied by Normalize.
const (
	DefaultAddr          = ":8088"
	DefaultModelsDir     = "~/.cache/vocald/models"
	DefaultKeepAlive     = 5 * time.Minute
	DefaultEvictInterval = 30 * time.Second
	DefaultHighVRAMMB    = 8192
	DefaultLowVRAMMB     = 4096
)

// Load reads a configuration file based on its extension.
// Supports: .yaml/.yml, .json, .toml
func Load(path string) (Config, error) {
	var cfg Config
	if path == "" {
		return cfg, fmt.Errorf("empty config path")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	case ".json":
		if err := json.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	case ".toml":
		if err := toml.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	default:
		return cfg, fmt.Errorf("unsupported config extension: %s", ext)
	}
	return cfg, nil
}

// Normalize fills unset fields with defaults and parses durations.
// Invalid duration strings are an error rather than a silent fallback.
func (c Config) Normalize() (Normalized, error) {
	n := Normalized{
		Addr:        c.Addr,
		ModelsDir:   c.ModelsDir,
		HighVRAMMB:  c.HighVRAMMB,
		LowVRAMMB:   c.LowVRAMMB,
		WhisperBin:  c.WhisperBin,
		PiperBin:    c.PiperBin,
		LogLevel:    c.LogLevel,
		CORSEnabled: c.CORSEnabled,
		CORSOrigins: append([]string(nil), c.CORSOrigins...),
	}
	if n.Addr == "" {
		n.Addr = DefaultAddr
	}
	if n.ModelsDir == "" {
		n.ModelsDir = DefaultModelsDir
	}
	if n.LogLevel == "" {
		n.LogLevel = "info"
	}
	if n.HighVRAMMB <= 0 {
		n.HighVRAMMB = DefaultHighVRAMMB
	}
	if n.LowVRAMMB <= 0 {
		n.LowVRAMMB = DefaultLowVRAMMB
	}
	var err error
	if n.KeepAlive, err = parseDuration(c.KeepAlive, DefaultKeepAlive); err != nil {
		return n, fmt.Errorf("keep_alive: %w", err)
	}
	if n.EvictInterval, err = parseDuration(c.EvictInterval, DefaultEvictInterval); err != nil {
		return n, fmt.Errorf("evict_interval: %w", err)
	}
	if n.DownloadTimeout, err = parseDuration(c.DownloadTimeout, 0); err != nil {
		return n, fmt.Errorf("download_timeout: %w", err)
	}
	return n, nil
}

// Normalized is a Config with defaults applied and durations parsed.
type Normalized struct {
	Addr            string
	ModelsDir       string
	KeepAlive       time.Duration
	EvictInterval   time.Duration
	DownloadTimeout time.Duration
	HighVRAMMB      int
	LowVRAMMB       int
	WhisperBin      string
	PiperBin        string
	LogLevel        string
	CORSEnabled     bool
	CORSOrigins     []string
}

func parseDuration(s string, def time.Duration) (time.Duration, error) {
	if s == "" {
		return def, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, fmt.Errorf("negative duration %q", s)
	}
	return d, nil
}

package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/docker/go-units"
	"gopkg.in/yaml.v3"

	"camkeep/internal/domain"
)

const (
	// DefaultPath is used when neither --config nor CAMKEEP_CONFIG is set.
	DefaultPath = "camkeep.json"

	DefaultCleanupThreshold = "10GB"
	// FallbackCleanupThreshold applies when cleanupThreshold cannot be parsed.
	FallbackCleanupThreshold int64 = 10 * 1024 * 1024 * 1024
	DefaultFFmpegPath              = "ffmpeg"
	DefaultShutdownGrace           = 10 * time.Second
)

// Config is the validated runtime configuration.
type Config struct {
	StorageDir       string
	CleanupThreshold int64
	Sources          []domain.Source
	FFmpegPath       string
	LogLevel         string
	ShutdownGrace    time.Duration
}

// Error reports a missing or invalid configuration field. It is always fatal.
type Error struct {
	Field  string
	Reason string
}

func (e *Error) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Reason)
}

type fileConfig struct {
	StorageDir           string       `json:"storageDir" yaml:"storageDir" toml:"storageDir"`
	CleanupThreshold     string       `json:"cleanupThreshold" yaml:"cleanupThreshold" toml:"cleanupThreshold"`
	Cameras              []fileSource `json:"cameras" yaml:"cameras" toml:"cameras"`
	FFmpegPath           string       `json:"ffmpegPath" yaml:"ffmpegPath" toml:"ffmpegPath"`
	LogLevel             string       `json:"logLevel" yaml:"logLevel" toml:"logLevel"`
	ShutdownGraceSeconds *int         `json:"shutdownGraceSeconds" yaml:"shutdownGraceSeconds" toml:"shutdownGraceSeconds"`
}

type fileSource struct {
	Name               string            `json:"name" yaml:"name" toml:"name"`
	Endpoint           string            `json:"endpoint" yaml:"endpoint" toml:"endpoint"`
	EndpointArgs       map[string]string `json:"endpointArgs" yaml:"endpointArgs" toml:"endpointArgs"`
	RestartThresholdMs *int64            `json:"restartThresholdMs" yaml:"restartThresholdMs" toml:"restartThresholdMs"`
	RestartDelayMs     *int64            `json:"restartDelayMs" yaml:"restartDelayMs" toml:"restartDelayMs"`
	OutputFormat       string            `json:"outputFormat" yaml:"outputFormat" toml:"outputFormat"`
	SegmentSeconds     int               `json:"segmentSeconds" yaml:"segmentSeconds" toml:"segmentSeconds"`
	ExtraArgs          []string          `json:"extraArgs" yaml:"extraArgs" toml:"extraArgs"`
}

// ResolvePath returns the config file path, checking flag, env, then default.
func ResolvePath(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if v := os.Getenv("CAMKEEP_CONFIG"); v != "" {
		return v
	}
	return DefaultPath
}

// Load reads, decodes and validates the config file at path. The format is
// picked from the extension: .yaml/.yml, .toml, anything else is JSON.
// Warnings (such as an unparseable threshold) go to log.
func Load(path string, log domain.Logger) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(data, formatOf(path), log)
}

// Parse decodes data in the given format ("json", "yaml" or "toml"),
// applies environment overrides and validates the result.
func Parse(data []byte, format string, log domain.Logger) (*Config, error) {
	var fc fileConfig
	if err := decode(data, format, &fc); err != nil {
		return nil, fmt.Errorf("decode %s config: %w", format, err)
	}
	applyEnvOverrides(&fc)
	return build(fc, log)
}

func formatOf(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return "yaml"
	case ".toml":
		return "toml"
	default:
		return "json"
	}
}

func decode(data []byte, format string, fc *fileConfig) error {
	switch format {
	case "yaml":
		return yaml.Unmarshal(data, fc)
	case "toml":
		_, err := toml.NewDecoder(bytes.NewReader(data)).Decode(fc)
		return err
	default:
		return json.Unmarshal(data, fc)
	}
}

func applyEnvOverrides(fc *fileConfig) {
	if v := os.Getenv("CAMKEEP_STORAGE_DIR"); v != "" {
		fc.StorageDir = v
	}
	if v := os.Getenv("CAMKEEP_CLEANUP_THRESHOLD"); v != "" {
		fc.CleanupThreshold = v
	}
	if v := os.Getenv("CAMKEEP_LOG_LEVEL"); v != "" {
		fc.LogLevel = v
	}
	if v := os.Getenv("CAMKEEP_FFMPEG"); v != "" {
		fc.FFmpegPath = v
	}
}

func build(fc fileConfig, log domain.Logger) (*Config, error) {
	if strings.TrimSpace(fc.StorageDir) == "" {
		return nil, &Error{Field: "storageDir", Reason: "required"}
	}
	if len(fc.Cameras) == 0 {
		return nil, &Error{Field: "cameras", Reason: "at least one camera is required"}
	}

	cfg := &Config{
		StorageDir:       expandTilde(fc.StorageDir),
		CleanupThreshold: ParseThreshold(fc.CleanupThreshold, log),
		FFmpegPath:       fc.FFmpegPath,
		LogLevel:         fc.LogLevel,
		ShutdownGrace:    DefaultShutdownGrace,
	}
	if cfg.FFmpegPath == "" {
		cfg.FFmpegPath = DefaultFFmpegPath
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if fc.ShutdownGraceSeconds != nil {
		if *fc.ShutdownGraceSeconds < 0 {
			return nil, &Error{Field: "shutdownGraceSeconds", Reason: "must not be negative"}
		}
		cfg.ShutdownGrace = time.Duration(*fc.ShutdownGraceSeconds) * time.Second
	}

	seen := make(map[string]bool, len(fc.Cameras))
	for i, c := range fc.Cameras {
		src, err := buildSource(i, c)
		if err != nil {
			return nil, err
		}
		if seen[src.Name] {
			return nil, &Error{Field: fmt.Sprintf("cameras[%d].name", i), Reason: fmt.Sprintf("duplicate name %q", src.Name)}
		}
		seen[src.Name] = true
		cfg.Sources = append(cfg.Sources, src)
	}
	return cfg, nil
}

func buildSource(i int, c fileSource) (domain.Source, error) {
	field := func(name string) string { return fmt.Sprintf("cameras[%d].%s", i, name) }

	name := strings.TrimSpace(c.Name)
	if name == "" {
		return domain.Source{}, &Error{Field: field("name"), Reason: "required"}
	}
	if strings.ContainsAny(name, `/\`) {
		return domain.Source{}, &Error{Field: field("name"), Reason: "must not contain path separators"}
	}
	if strings.TrimSpace(c.Endpoint) == "" {
		return domain.Source{}, &Error{Field: field("endpoint"), Reason: "required"}
	}
	if c.SegmentSeconds < 0 {
		return domain.Source{}, &Error{Field: field("segmentSeconds"), Reason: "must not be negative"}
	}

	src := domain.Source{
		Name:             name,
		Endpoint:         c.Endpoint,
		EndpointArgs:     c.EndpointArgs,
		RestartThreshold: domain.DefaultRestartThreshold,
		RestartDelay:     domain.DefaultRestartDelay,
		OutputFormat:     c.OutputFormat,
		SegmentSeconds:   c.SegmentSeconds,
		ExtraArgs:        c.ExtraArgs,
	}
	if c.RestartThresholdMs != nil {
		if *c.RestartThresholdMs <= 0 {
			return domain.Source{}, &Error{Field: field("restartThresholdMs"), Reason: "must be positive"}
		}
		src.RestartThreshold = time.Duration(*c.RestartThresholdMs) * time.Millisecond
	}
	if c.RestartDelayMs != nil {
		if *c.RestartDelayMs <= 0 {
			return domain.Source{}, &Error{Field: field("restartDelayMs"), Reason: "must be positive"}
		}
		src.RestartDelay = time.Duration(*c.RestartDelayMs) * time.Millisecond
	}
	if src.OutputFormat == "" {
		src.OutputFormat = domain.DefaultOutputFormat
	}
	return src, nil
}

// ParseThreshold parses a human-readable size using binary units ("10GB" is
// 10 GiB). An empty string means the default; anything unparseable falls back
// to 10 GiB with a warning.
func ParseThreshold(s string, log domain.Logger) int64 {
	if strings.TrimSpace(s) == "" {
		s = DefaultCleanupThreshold
	}
	n, err := units.RAMInBytes(strings.TrimSpace(s))
	if err != nil || n < 0 {
		if log != nil {
			log.Warn("invalid cleanupThreshold, using fallback", "value", s, "fallback_bytes", FallbackCleanupThreshold, "err", err)
		}
		return FallbackCleanupThreshold
	}
	return n
}

func expandTilde(path string) string {
	if strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}

// Package config loads speechscreen settings from a TOML file with
// SPEECHSCREEN_* environment overrides.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"github.com/sirupsen/logrus"
)

// Defaults for the classification pipeline.
const (
	DefaultThreshold      = 0.28
	DefaultSegmentSeconds = 20
	DefaultParallel       = 4
	DefaultMaxMinutes     = 15
	DefaultFeatureTimeout = 60
	DefaultRetries        = 3
	DefaultServerAddr     = "127.0.0.1:8080"
	DefaultMaxUploadMB    = 64
)

// ASR providers.
const (
	ProviderOpenAI = "openai"
	ProviderHTTP   = "http"
)

// Audit sinks.
const (
	SinkLocal = "local"
	SinkS3    = "s3"
)

// EnvPrefix prefixes every environment override. The variable for key
// "pipeline.threshold" is SPEECHSCREEN_PIPELINE_THRESHOLD.
const EnvPrefix = "SPEECHSCREEN_"

// Config holds user configuration loaded from TOML.
type Config struct {
	Paths struct {
		WorkRoot   string `toml:"work_root"`
		AuditDir   string `toml:"audit_dir"`
		ModelDir   string `toml:"model_dir"`
		LogPath    string `toml:"log_path"`
		ConfigPath string `toml:"-"`
	} `toml:"paths"`

	Pipeline struct {
		Threshold      float64 `toml:"threshold"`
		SegmentSeconds int     `toml:"segment_seconds"`
		Parallel       int     `toml:"parallel"`
		MaxMinutes     int     `toml:"max_minutes"` // 0 disables the limit
	} `toml:"pipeline"`

	Features struct {
		URL        string `toml:"url"`
		TimeoutSec int    `toml:"timeout_sec"`
		Retries    int    `toml:"retries"`
	} `toml:"features"`

	ASR struct {
		Provider string `toml:"provider"` // openai, http
		URL      string `toml:"url"`
		Model    string `toml:"model"`
		Retries  int    `toml:"retries"`
	} `toml:"asr"`

	Audit struct {
		Sink     string `toml:"sink"` // local, s3
		Bucket   string `toml:"bucket"`
		Prefix   string `toml:"prefix"`
		Endpoint string `toml:"endpoint"`
		Region   string `toml:"region"`
	} `toml:"audit"`

	Server struct {
		Addr        string `toml:"addr"`
		MaxUploadMB int    `toml:"max_upload_mb"`
	} `toml:"server"`

	Logging struct {
		Level  string `toml:"level"`  // debug, info, warn, error
		Format string `toml:"format"` // text, json
		Stdout bool   `toml:"stdout"`
	} `toml:"logging"`
}

// dir returns the configuration directory.
// Uses XDG_CONFIG_HOME if set, otherwise ~/.config/speechscreen.
func dir() (string, error) {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "speechscreen"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(home, ".config", "speechscreen"), nil
}

// Path returns the default config file location.
func Path() (string, error) {
	d, err := dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(d, "config.toml"), nil
}

// stateDir holds logs, audit files and the model bundle by default.
func stateDir() (string, error) {
	if xdg := os.Getenv("XDG_STATE_HOME"); xdg != "" {
		return filepath.Join(xdg, "speechscreen"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(home, ".local", "state", "speechscreen"), nil
}

// Default returns a Config populated with defaults.
func Default() (*Config, error) {
	state, err := stateDir()
	if err != nil {
		return nil, err
	}

	cfg := &Config{}
	cfg.Paths.WorkRoot = filepath.Join(os.TempDir(), "speechscreen")
	cfg.Paths.AuditDir = filepath.Join(state, "audit")
	cfg.Paths.ModelDir = filepath.Join(state, "model")
	cfg.Paths.LogPath = filepath.Join(state, "speechscreen.log")

	cfg.Pipeline.Threshold = DefaultThreshold
	cfg.Pipeline.SegmentSeconds = DefaultSegmentSeconds
	cfg.Pipeline.Parallel = DefaultParallel
	cfg.Pipeline.MaxMinutes = DefaultMaxMinutes

	cfg.Features.URL = "http://127.0.0.1:8500"
	cfg.Features.TimeoutSec = DefaultFeatureTimeout
	cfg.Features.Retries = DefaultRetries

	cfg.ASR.Provider = ProviderOpenAI
	cfg.ASR.Retries = DefaultRetries

	cfg.Audit.Sink = SinkLocal
	cfg.Audit.Prefix = "audit"

	cfg.Server.Addr = DefaultServerAddr
	cfg.Server.MaxUploadMB = DefaultMaxUploadMB

	cfg.Logging.Level = "info"
	cfg.Logging.Format = "text"

	return cfg, nil
}

// Load reads the config file at path (the default location when empty),
// then applies environment overrides read through getenv (os.Getenv when
// nil). A missing file is not an error: defaults are returned.
func Load(path string, getenv func(string) string) (*Config, error) {
	cfg, err := Default()
	if err != nil {
		return nil, err
	}
	if path == "" {
		if path, err = Path(); err != nil {
			return nil, err
		}
	}
	if getenv == nil {
		getenv = os.Getenv
	}

	data, err := os.ReadFile(path) // #nosec G304 -- user-chosen config path
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("read config: %w", err)
	default:
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	cfg.Paths.ConfigPath = path

	if err := applyEnvOverrides(cfg, getenv); err != nil {
		return nil, err
	}
	cfg.expandPaths()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes cfg to path, creating the directory when needed.
func Save(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil { // #nosec G301 -- user config dir
		return fmt.Errorf("cannot create config directory: %w", err)
	}
	out, err := toml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if err := os.WriteFile(path, out, 0o600); err != nil {
		return fmt.Errorf("cannot write config file: %w", err)
	}
	return nil
}

// Validate checks value ranges and enumerations.
func (c *Config) Validate() error {
	switch {
	case !(c.Pipeline.Threshold > 0 && c.Pipeline.Threshold <= 1):
		return fmt.Errorf("%w: pipeline.threshold must be in (0, 1], got %v", ErrInvalid, c.Pipeline.Threshold)
	case c.Pipeline.SegmentSeconds <= 0:
		return fmt.Errorf("%w: pipeline.segment_seconds must be positive", ErrInvalid)
	case c.Pipeline.Parallel <= 0:
		return fmt.Errorf("%w: pipeline.parallel must be positive", ErrInvalid)
	case c.Pipeline.MaxMinutes < 0:
		return fmt.Errorf("%w: pipeline.max_minutes must not be negative", ErrInvalid)
	case c.Features.Retries < 0 || c.ASR.Retries < 0:
		return fmt.Errorf("%w: retries must not be negative", ErrInvalid)
	case c.Features.TimeoutSec <= 0:
		return fmt.Errorf("%w: features.timeout_sec must be positive", ErrInvalid)
	case c.ASR.Provider != ProviderOpenAI && c.ASR.Provider != ProviderHTTP:
		return fmt.Errorf("%w: asr.provider must be %q or %q, got %q", ErrInvalid, ProviderOpenAI, ProviderHTTP, c.ASR.Provider)
	case c.ASR.Provider == ProviderHTTP && c.ASR.URL == "":
		return fmt.Errorf("%w: asr.url is required for the http provider", ErrInvalid)
	case c.Audit.Sink != SinkLocal && c.Audit.Sink != SinkS3:
		return fmt.Errorf("%w: audit.sink must be %q or %q, got %q", ErrInvalid, SinkLocal, SinkS3, c.Audit.Sink)
	case c.Audit.Sink == SinkS3 && c.Audit.Bucket == "":
		return fmt.Errorf("%w: audit.bucket is required for the s3 sink", ErrInvalid)
	case c.Server.MaxUploadMB <= 0:
		return fmt.Errorf("%w: server.max_upload_mb must be positive", ErrInvalid)
	case c.Logging.Format != "text" && c.Logging.Format != "json":
		return fmt.Errorf("%w: logging.format must be text or json, got %q", ErrInvalid, c.Logging.Format)
	}
	if _, err := logrus.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("%w: logging.level: %v", ErrInvalid, err)
	}
	return nil
}

func (c *Config) expandPaths() {
	c.Paths.WorkRoot = ExpandPath(c.Paths.WorkRoot)
	c.Paths.AuditDir = ExpandPath(c.Paths.AuditDir)
	c.Paths.ModelDir = ExpandPath(c.Paths.ModelDir)
	c.Paths.LogPath = ExpandPath(c.Paths.LogPath)
}

// ExpandPath expands a leading ~/ to the user's home directory.
func ExpandPath(p string) string {
	if strings.HasPrefix(p, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return p
		}
		return filepath.Join(home, p[2:])
	}
	return p
}

// ---------------------------------------------------------------------------
// Dotted keys
// ---------------------------------------------------------------------------

// sections decodes cfg into section -> key -> value through its TOML form,
// so keys always match the file layout.
func (c *Config) sections() (map[string]map[string]any, error) {
	out, err := toml.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("encode config: %w", err)
	}
	var m map[string]map[string]any
	if err := toml.Unmarshal(out, &m); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return m, nil
}

// Keys returns every settable key as "section.key", sorted.
func (c *Config) Keys() []string {
	m, err := c.sections()
	if err != nil {
		return nil
	}
	var keys []string
	for section, fields := range m {
		for k := range fields {
			keys = append(keys, section+"."+k)
		}
	}
	sort.Strings(keys)
	return keys
}

// Get returns the value of a dotted key as a string.
func (c *Config) Get(key string) (string, error) {
	v, err := c.lookup(key)
	if err != nil {
		return "", err
	}
	return fmt.Sprint(v), nil
}

func (c *Config) lookup(key string) (any, error) {
	section, name, ok := strings.Cut(key, ".")
	if !ok {
		return nil, fmt.Errorf("%w: %q (want section.key)", ErrUnknownKey, key)
	}
	m, err := c.sections()
	if err != nil {
		return nil, err
	}
	v, ok := m[section][name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKey, key)
	}
	return v, nil
}

// Set parses value according to the key's type and stores it. The result
// is not validated; call Validate before using the config.
func (c *Config) Set(key, value string) error {
	current, err := c.lookup(key)
	if err != nil {
		return err
	}
	var parsed any
	switch current.(type) {
	case int64:
		parsed, err = strconv.ParseInt(strings.TrimSpace(value), 10, 64)
	case float64:
		parsed, err = strconv.ParseFloat(strings.TrimSpace(value), 64)
	case bool:
		parsed, err = strconv.ParseBool(strings.TrimSpace(value))
	default:
		parsed = value
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalid, key, err)
	}

	section, name, _ := strings.Cut(key, ".")
	doc, err := toml.Marshal(map[string]map[string]any{section: {name: parsed}})
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	dec := toml.NewDecoder(bytes.NewReader(doc))
	if err := dec.Decode(c); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalid, key, err)
	}
	return nil
}

// EnvName returns the environment variable overriding key.
func EnvName(key string) string {
	return EnvPrefix + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}

func applyEnvOverrides(cfg *Config, getenv func(string) string) error {
	for _, key := range cfg.Keys() {
		v := getenv(EnvName(key))
		if v == "" {
			continue
		}
		if err := cfg.Set(key, v); err != nil {
			return fmt.Errorf("%s: %w", EnvName(key), err)
		}
	}
	return nil
}

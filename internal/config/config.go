// Package config loads the host configuration.
//
// Settings are resolved in three layers: built-in defaults, an optional
// file (TOML, YAML or JSON, chosen by extension) and HOSTKIT_* environment
// variables. Command-line flags are applied last by the caller.
package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/dshills/hostkit/internal/logging"
)

// Config is the complete host configuration.
type Config struct {
	Log     logging.Config `toml:"log" yaml:"log" json:"log"`
	Plugins Plugins        `toml:"plugins" yaml:"plugins" json:"plugins"`
	Events  Events         `toml:"events" yaml:"events" json:"events"`
	Admin   Admin          `toml:"admin" yaml:"admin" json:"admin"`
}

// Plugins configures discovery and loading.
type Plugins struct {
	// Dir is scanned for plugin packages.
	Dir string `toml:"dir" yaml:"dir" json:"dir"`

	// DataDir is the parent of every plugin's private data directory.
	DataDir string `toml:"data_dir" yaml:"data_dir" json:"data_dir"`

	// Watch reloads Dir when it changes.
	Watch bool `toml:"watch" yaml:"watch" json:"watch"`

	// WatchDebounce is the quiet period before a reload.
	WatchDebounce Duration `toml:"watch_debounce" yaml:"watch_debounce" json:"watch_debounce"`

	// DiscoveryWorkers bounds concurrent descriptor decoding. Zero means
	// GOMAXPROCS.
	DiscoveryWorkers int `toml:"discovery_workers" yaml:"discovery_workers" json:"discovery_workers"`

	// ScriptTimeout bounds a Lua plugin's entry script and its enable and
	// disable hooks. Event handlers always run to completion.
	ScriptTimeout Duration `toml:"script_timeout" yaml:"script_timeout" json:"script_timeout"`
}

// Events configures the event bus.
type Events struct {
	// SlowFire is the dispatch duration above which a warning is logged.
	SlowFire Duration `toml:"slow_fire" yaml:"slow_fire" json:"slow_fire"`
}

// Admin configures the HTTP admin API.
type Admin struct {
	// Addr is the listen address. Empty disables the API.
	Addr string `toml:"addr" yaml:"addr" json:"addr"`

	// CORSOrigins lists allowed browser origins.
	CORSOrigins []string `toml:"cors_origins" yaml:"cors_origins" json:"cors_origins"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Log: logging.DefaultConfig(),
		Plugins: Plugins{
			Dir:           "plugins",
			DataDir:       "data",
			WatchDebounce: Duration(250 * time.Millisecond),
			ScriptTimeout: Duration(5 * time.Second),
		},
		Events: Events{
			SlowFire: Duration(5 * time.Millisecond),
		},
		Admin: Admin{
			Addr: "127.0.0.1:7070",
		},
	}
}

// Format is a config file encoding.
type Format string

// Supported formats.
const (
	FormatTOML Format = "toml"
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
)

// FormatOf returns the format implied by path's extension.
func FormatOf(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		return FormatTOML, nil
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".json":
		return FormatJSON, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, filepath.Ext(path))
}

// Load reads the file at path over the defaults. Unknown keys are errors.
func Load(path string) (Config, error) {
	cfg := Default()
	format, err := FormatOf(path)
	if err != nil {
		return cfg, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := decode(data, format, &cfg); err != nil {
		return cfg, &ParseError{Path: path, Err: err}
	}
	return cfg, nil
}

func decode(data []byte, format Format, cfg *Config) error {
	r := bytes.NewReader(data)
	switch format {
	case FormatTOML:
		dec := toml.NewDecoder(r)
		dec.DisallowUnknownFields()
		return dec.Decode(cfg)
	case FormatYAML:
		dec := yaml.NewDecoder(r)
		dec.KnownFields(true)
		if err := dec.Decode(cfg); err != nil && err != io.EOF {
			return err
		}
		return nil
	case FormatJSON:
		dec := json.NewDecoder(r)
		dec.DisallowUnknownFields()
		return dec.Decode(cfg)
	}
	return fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
}

// Encode writes cfg to w in the given format.
func (c Config) Encode(w io.Writer, format Format) error {
	switch format {
	case FormatTOML:
		return toml.NewEncoder(w).Encode(c)
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(c); err != nil {
			return err
		}
		return enc.Close()
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(c)
	}
	return fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
}

// Validate checks every setting and returns all failures joined.
func (c Config) Validate() error {
	var errs []error
	add := func(field, format string, args ...any) {
		errs = append(errs, &FieldError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		add("log.level", "%v", err)
	}
	if _, err := logging.ParseFormat(string(c.Log.Format)); err != nil {
		add("log.format", "%v", err)
	}
	if c.Plugins.Dir == "" {
		add("plugins.dir", "is required")
	}
	if c.Plugins.DataDir == "" {
		add("plugins.data_dir", "is required")
	}
	if c.Plugins.DiscoveryWorkers < 0 {
		add("plugins.discovery_workers", "must not be negative")
	}
	if c.Plugins.WatchDebounce < 0 {
		add("plugins.watch_debounce", "must not be negative")
	}
	if c.Plugins.ScriptTimeout < 0 {
		add("plugins.script_timeout", "must not be negative")
	}
	if c.Events.SlowFire < 0 {
		add("events.slow_fire", "must not be negative")
	}
	if c.Admin.Addr != "" {
		if _, _, err := net.SplitHostPort(c.Admin.Addr); err != nil {
			add("admin.addr", "%v", err)
		}
	}
	for i, o := range c.Admin.CORSOrigins {
		if o == "" {
			add(fmt.Sprintf("admin.cors_origins[%d]", i), "is empty")
		}
	}

	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrInvalid, errors.Join(errs...))
}

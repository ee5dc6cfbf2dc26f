package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/dshills/hostkit/internal/logging"
)

// EnvPrefix prefixes every environment variable the host reads.
const EnvPrefix = "HOSTKIT_"

// envSetting binds one environment variable to a setting.
type envSetting struct {
	name  string
	field string
	set   func(c *Config, v string) error
}

var envSettings = []envSetting{
	{"LOG_LEVEL", "log.level", func(c *Config, v string) error { c.Log.Level = v; return nil }},
	{"LOG_FORMAT", "log.format", func(c *Config, v string) error {
		c.Log.Format = logging.Format(v)
		return nil
	}},
	{"PLUGINS_DIR", "plugins.dir", func(c *Config, v string) error { c.Plugins.Dir = v; return nil }},
	{"DATA_DIR", "plugins.data_dir", func(c *Config, v string) error { c.Plugins.DataDir = v; return nil }},
	{"PLUGINS_WATCH", "plugins.watch", func(c *Config, v string) error {
		b, err := parseBool(v)
		c.Plugins.Watch = b
		return err
	}},
	{"PLUGINS_WATCH_DEBOUNCE", "plugins.watch_debounce", func(c *Config, v string) error {
		return c.Plugins.WatchDebounce.UnmarshalText([]byte(v))
	}},
	{"PLUGINS_DISCOVERY_WORKERS", "plugins.discovery_workers", func(c *Config, v string) error {
		n, err := strconv.Atoi(v)
		c.Plugins.DiscoveryWorkers = n
		return err
	}},
	{"PLUGINS_SCRIPT_TIMEOUT", "plugins.script_timeout", func(c *Config, v string) error {
		return c.Plugins.ScriptTimeout.UnmarshalText([]byte(v))
	}},
	{"EVENTS_SLOW_FIRE", "events.slow_fire", func(c *Config, v string) error {
		return c.Events.SlowFire.UnmarshalText([]byte(v))
	}},
	{"ADMIN_ADDR", "admin.addr", func(c *Config, v string) error { c.Admin.Addr = v; return nil }},
	{"ADMIN_CORS_ORIGINS", "admin.cors_origins", func(c *Config, v string) error {
		c.Admin.CORSOrigins = splitList(v)
		return nil
	}},
}

// EnvNames returns the recognized environment variable names.
func EnvNames() []string {
	names := make([]string, len(envSettings))
	for i, s := range envSettings {
		names[i] = EnvPrefix + s.name
	}
	return names
}

// ApplyEnv overrides settings from HOSTKIT_* environment variables.
// An empty value is a value, not an unset variable.
func (c *Config) ApplyEnv() error {
	return c.applyEnv(os.LookupEnv)
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	for _, s := range envSettings {
		v, ok := lookup(EnvPrefix + s.name)
		if !ok {
			continue
		}
		if err := s.set(c, strings.TrimSpace(v)); err != nil {
			return fmt.Errorf("%s%s (%s): %w", EnvPrefix, s.name, s.field, err)
		}
	}
	return nil
}

// parseBool accepts the usual spellings of true and false.
func parseBool(s string) (bool, error) {
	switch strings.ToLower(s) {
	case "true", "yes", "on", "1":
		return true, nil
	case "false", "no", "off", "0", "":
		return false, nil
	}
	return false, fmt.Errorf("invalid boolean %q", s)
}

// splitList splits a comma-separated list, dropping blanks.
func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

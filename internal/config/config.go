package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

// Config is a nested key/value tree addressed by dot paths such as
// "health_monitoring.check_interval".
type Config struct {
	path string
	data map[string]any
	// secrets shadow tree keys but are never saved or listed.
	secrets map[string]string
}

func defaults() map[string]any {
	return map[string]any{
		"health_monitoring": map[string]any{
			"enabled":          true,
			"check_interval":   60,
			"cpu_threshold":    80,
			"memory_threshold": 85,
			"disk_threshold":   90,
			"disk_path":        "/",
			"probe_timeout":    10,
		},
		"self_healing": map[string]any{
			"enabled":              true,
			"cooldown":             300,
			"max_healing_attempts": 3,
			"action_timeout":       30,
			"rules":                []any{},
		},
		"cost_optimization": map[string]any{
			"enabled":                    true,
			"check_interval":             3600,
			"underutilization_threshold": 0.2,
			"auto_optimize":              false,
			"prometheus_url":             "",
			"resources":                  []any{},
		},
		"logging": map[string]any{
			"level":  "INFO",
			"format": "console",
		},
		"monitoring": map[string]any{
			"enabled":     false,
			"listen_addr": ":8090",
			"pprof":       false,
		},
		"audit": map[string]any{
			"enabled": false,
			"driver":  "sqlite",
			"dsn":     "backbone.db",
		},
	}
}

// Default returns a config holding only the built-in defaults.
func Default() *Config {
	return &Config{data: defaults()}
}

// DefaultPath resolves $XDG_CONFIG_HOME/backbone/config.yaml or
// ~/.config/backbone/config.yaml.
func DefaultPath() string {
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		home, _ := os.UserHomeDir()
		base = filepath.Join(home, ".config")
	}
	return filepath.Join(base, "backbone", "config.yaml")
}

// Load returns the defaults overridden by the YAML file at path. An empty
// path falls back to DefaultPath. A missing or malformed file is logged and
// the defaults are kept; Load never fails.
func Load(path string) *Config {
	c := Default()
	if path == "" {
		path = DefaultPath()
	}
	c.path = path
	if err := c.LoadFile(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			log.Debug().Str("path", path).Msg("Config file not found, using defaults")
		} else {
			log.Error().Err(err).Str("path", path).Msg("Failed to load config, using defaults")
		}
	}
	applySecrets(c, filepath.Join(filepath.Dir(path), "secrets.env"))
	return c
}

// LoadFile merges the YAML file at path into the current tree.
func (c *Config) LoadFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open config: %w", err)
	}
	defer f.Close()
	content, err := io.ReadAll(f)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	var user map[string]any
	if err := yaml.Unmarshal(content, &user); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}
	if user != nil {
		merge(c.data, user)
	}
	c.path = path
	log.Info().Str("path", path).Msg("Loaded configuration")
	return nil
}

// merge copies src into dst, descending into maps present on both sides.
func merge(dst, src map[string]any) {
	for k, v := range src {
		if sm, ok := v.(map[string]any); ok {
			if dm, ok := dst[k].(map[string]any); ok {
				merge(dm, sm)
				continue
			}
		}
		dst[k] = v
	}
}

// Save writes the tree as YAML. An empty path uses the path the config was
// loaded from.
func (c *Config) Save(path string) error {
	if path == "" {
		path = c.path
	}
	if path == "" {
		return errors.New("save config: no path specified")
	}
	out, err := yaml.Marshal(c.data)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("mkdir config dir: %w", err)
		}
	}
	if err := os.WriteFile(path, out, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	log.Info().Str("path", path).Msg("Saved configuration")
	return nil
}

// Path is the file the config was loaded from, if any.
func (c *Config) Path() string { return c.path }

// Get looks up a dot path.
func (c *Config) Get(key string) (any, bool) {
	var cur any = c.data
	for _, k := range strings.Split(key, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[k]
		if !ok || cur == nil {
			return nil, false
		}
	}
	return cur, true
}

// Set assigns a value at a dot path, creating intermediate maps.
func (c *Config) Set(key string, value any) {
	keys := strings.Split(key, ".")
	m := c.data
	for _, k := range keys[:len(keys)-1] {
		next, ok := m[k].(map[string]any)
		if !ok {
			next = map[string]any{}
			m[k] = next
		}
		m = next
	}
	m[keys[len(keys)-1]] = value
}

// All returns a deep copy of the tree.
func (c *Config) All() map[string]any {
	return deepCopy(c.data).(map[string]any)
}

func deepCopy(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = deepCopy(e)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = deepCopy(e)
		}
		return out
	default:
		return v
	}
}

// String returns the value at key as a string, or def.
func (c *Config) String(key, def string) string {
	if v, ok := c.secrets[key]; ok {
		return v
	}
	v, ok := c.Get(key)
	if !ok {
		return def
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// Bool returns the value at key as a bool, or def.
func (c *Config) Bool(key string, def bool) bool {
	v, ok := c.Get(key)
	if !ok {
		return def
	}
	switch t := v.(type) {
	case bool:
		return t
	case string:
		b, err := strconv.ParseBool(t)
		if err == nil {
			return b
		}
	}
	return def
}

// Float returns the numeric value at key, or def.
func (c *Config) Float(key string, def float64) float64 {
	v, ok := c.Get(key)
	if !ok {
		return def
	}
	if f, ok := toFloat(v); ok {
		return f
	}
	return def
}

// Int returns the numeric value at key truncated to int, or def.
func (c *Config) Int(key string, def int) int {
	v, ok := c.Get(key)
	if !ok {
		return def
	}
	if f, ok := toFloat(v); ok {
		return int(f)
	}
	return def
}

// Seconds reads a number of seconds (fractions allowed) as a duration.
func (c *Config) Seconds(key string, def time.Duration) time.Duration {
	v, ok := c.Get(key)
	if !ok {
		return def
	}
	f, ok := toFloat(v)
	if !ok {
		return def
	}
	return time.Duration(f * float64(time.Second))
}

func toFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case uint64:
		return float64(t), true
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		return f, err == nil
	}
	return 0, false
}

// Decode unmarshals the subtree at key into out using its yaml tags.
// A missing key leaves out untouched.
func (c *Config) Decode(key string, out any) error {
	v, ok := c.Get(key)
	if !ok {
		return nil
	}
	raw, err := yaml.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}
	if err := yaml.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode %s: %w", key, err)
	}
	return nil
}

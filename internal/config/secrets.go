package config

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"
)

// LoadSecretsEnv reads KEY=VALUE pairs from path, defaulting to secrets.env
// beside DefaultPath. Lines starting with # are ignored.
func LoadSecretsEnv(path string) (map[string]string, error) {
	if path == "" {
		path = filepath.Join(filepath.Dir(DefaultPath()), "secrets.env")
	}
	f, err := os.Open(path)
	if err != nil {
		return map[string]string{}, nil // not fatal if missing
	}
	defer f.Close()
	out := map[string]string{}
	s := bufio.NewScanner(f)
	for s.Scan() {
		line := strings.TrimSpace(s.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if i := strings.IndexByte(line, '='); i >= 0 {
			k := strings.TrimSpace(line[:i])
			v := strings.TrimSpace(line[i+1:])
			out[k] = v
		}
	}
	return out, s.Err()
}

// secretKeys maps secrets.env variables to the config keys they shadow.
var secretKeys = map[string]string{
	"BACKBONE_AUDIT_DSN": "audit.dsn",
}

// applySecrets reads overrides from the secrets.env at path and the
// environment, which wins. They stay outside the tree, so Save and All never
// emit them.
func applySecrets(c *Config, path string) {
	env, _ := LoadSecretsEnv(path)
	for name, key := range secretKeys {
		v := env[name]
		if ev := os.Getenv(name); ev != "" {
			v = ev
		}
		if v == "" {
			continue
		}
		if c.secrets == nil {
			c.secrets = map[string]string{}
		}
		c.secrets[key] = v
	}
}

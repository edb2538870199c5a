// Package config loads persisted runner defaults: job budgets, include
// paths, and variable presets that would otherwise need repeating on
// every invocation. Adapted from the teacher's internal/config
// (types.go, loader.go, defaults.go, save.go), re-shaped around build
// profiles instead of agent/provider/workflow maps.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// ProfileConfig is one named bundle of runner defaults, selectable with
// `rote --profile=name`.
type ProfileConfig struct {
	Jobs         int               `json:"jobs,omitempty"`
	IncludePaths []string          `json:"include_paths,omitempty"`
	Variables    map[string]string `json:"variables,omitempty"`
}

// Config is the top-level, merged configuration.
type Config struct {
	// BuildFile is the conventional build-file name to search for when
	// none is given on the command line (e.g. "Rotefile").
	BuildFile string `json:"build_file,omitempty"`

	// Profiles maps a profile name to its defaults. The "default"
	// profile, if present, applies when no --profile flag is given.
	Profiles map[string]ProfileConfig `json:"profiles"`
}

// DefaultConfig returns built-in defaults: a single "default" profile
// with no overrides, and the conventional build-file name.
func DefaultConfig() *Config {
	return &Config{
		BuildFile: "Rotefile",
		Profiles: map[string]ProfileConfig{
			"default": {},
		},
	}
}

// Load reads and merges configuration from the global and project
// paths, in that precedence order (project wins). Either path may be
// empty to skip it. Missing files are not errors; malformed JSON is.
func Load(globalPath, projectPath string) (*Config, error) {
	cfg := DefaultConfig()

	if globalPath != "" {
		if err := mergeConfigFile(cfg, globalPath); err != nil {
			return nil, fmt.Errorf("loading global config: %w", err)
		}
	}
	if projectPath != "" {
		if err := mergeConfigFile(cfg, projectPath); err != nil {
			return nil, fmt.Errorf("loading project config: %w", err)
		}
	}

	return cfg, nil
}

// LoadDefault loads from the conventional locations: ~/.rote/config.json
// for global settings and .rote/config.json, resolved against cwd, for
// project settings.
func LoadDefault() (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("getting home directory: %w", err)
	}

	globalPath := filepath.Join(home, ".rote", "config.json")
	projectPath := filepath.Join(".rote", "config.json")

	return Load(globalPath, projectPath)
}

func mergeConfigFile(base *Config, path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}

	var loaded Config
	if err := json.Unmarshal(data, &loaded); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}

	if loaded.BuildFile != "" {
		base.BuildFile = loaded.BuildFile
	}
	for name, profile := range loaded.Profiles {
		base.Profiles[name] = profile
	}

	return nil
}

// Profile looks up a named profile, falling back to an empty profile
// (no overrides) if the name is unknown.
func (c *Config) Profile(name string) ProfileConfig {
	if name == "" {
		name = "default"
	}
	return c.Profiles[name]
}

// Save persists cfg as indented JSON, creating parent directories as
// needed.
func Save(cfg *Config, path string) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating directory %s: %w", dir, err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}

	return nil
}

package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/adalundhe/watchkit/core/errs"
)

// Load reads, decodes and validates a config file. Unknown YAML fields
// are rejected, and all validation problems are reported together.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errs.Configf("config file not found: %s", path)
		}
		return nil, errs.Configf("cannot read config file: %v", err)
	}

	cfg := &Config{}
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, errs.Configf("invalid YAML in %s: %v", path, err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Find searches for the config file from start upward through parent
// directories.
func Find(start string) (string, error) {
	current, err := filepath.Abs(start)
	if err != nil {
		return "", err
	}
	for {
		candidate := filepath.Join(current, DefaultFileName)
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, nil
		}
		parent := filepath.Dir(current)
		if parent == current {
			return "", errs.Configf("no %s found in %s or any parent", DefaultFileName, start)
		}
		current = parent
	}
}

// ResolveRoot resolves the engine repo root against the config file's
// directory.
func (c *Config) ResolveRoot(configPath string) (string, error) {
	root := filepath.Join(filepath.Dir(configPath), c.Engine.RepoRoot)
	abs, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("resolve repo root: %w", err)
	}
	return abs, nil
}

// PidFilePath returns the configured PID marker path, resolved against
// repoRoot.
func (c *Config) PidFilePath(repoRoot string) string {
	name := c.Engine.PidFile
	if name == "" {
		name = DefaultPidFileName
	}
	if filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(repoRoot, name)
}

// StarterTemplate is the config generated by `watchkit init`.
const StarterTemplate = `version: 1

engine:
  repo_root: "."
  debounce_ms: 300
  max_workers: 1
  ignore_dirs: [".git", "node_modules", "vendor"]
  ignore_globs: ["**/*.log"]
  log_level: info

watches:
  - name: repo
    paths: ["."]

actions:
  - name: echo_change
    cmd: ["echo", "file changed"]

rules:
  - name: notify_on_change
    watch: repo
    on: [added, modified, deleted]
    match: ["**/*"]
    do: [echo_change]
`

// WriteStarter writes the starter template to path, refusing to
// overwrite an existing file unless force is set.
func WriteStarter(path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%s already exists (use --force to overwrite)", path)
		} else if !errors.Is(err, os.ErrNotExist) {
			return err
		}
	}
	return os.WriteFile(path, []byte(StarterTemplate), 0o644)
}

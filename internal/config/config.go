// Package config resolves the cfgsync configuration: built-in defaults,
// then an optional cfgsync.toml in the project directory, then CFGSYNC_*
// environment variables. The result is an explicit Config value passed into
// each operation; the package keeps no process-wide state.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/adrg/xdg"
	"github.com/kelseyhightower/envconfig"
	"github.com/pelletier/go-toml"
)

const (
	// EnvPrefix is the prefix for environment overrides, e.g.
	// CFGSYNC_MIRROR_DIR and CFGSYNC_REMOTE_URL.
	EnvPrefix = "cfgsync"

	// FileName is the optional configuration file looked up in the project
	// directory.
	FileName = "cfgsync.toml"

	// DefaultRemoteURL is the fixed upstream address used when neither the
	// configuration file nor the environment provides one.
	DefaultRemoteURL = "git@github.com:chatmesh/config-mirror.git"
)

// DefaultFiles is the built-in registry: the configuration files the
// surrounding application actually consumes.
var DefaultFiles = []string{
	"config.json",
	"plugins.json",
}

// Author identifies the mirror store commit author.
type Author struct {
	Name  string `toml:"name" envconfig:"AUTHOR_NAME"`
	Email string `toml:"email" envconfig:"AUTHOR_EMAIL"`
}

// Config is the fully resolved configuration for one invocation.
type Config struct {
	// ProjectDir is the directory holding the live configuration files.
	ProjectDir string `toml:"project_dir" envconfig:"PROJECT_DIR"`

	// MirrorDir is the local working copy of the mirror store.
	MirrorDir string `toml:"mirror_dir" envconfig:"MIRROR_DIR"`

	// RemoteURL is the mirror store's upstream address.
	RemoteURL string `toml:"remote_url" envconfig:"REMOTE_URL"`

	// PushURLs lists additional push targets for redundancy.
	PushURLs []string `toml:"push_urls" envconfig:"PUSH_URLS"`

	// Branch is the mirror store's canonical branch name.
	Branch string `toml:"branch" envconfig:"BRANCH"`

	// Files is the registry of file names subject to synchronization.
	Files []string `toml:"files" envconfig:"FILES"`

	// Author signs mirror store commits.
	Author Author `toml:"author"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		ProjectDir: ".",
		MirrorDir:  filepath.Join(xdg.DataHome, "cfgsync", "mirror"),
		RemoteURL:  DefaultRemoteURL,
		Branch:     "main",
		Files:      append([]string(nil), DefaultFiles...),
	}
}

// Load resolves the configuration. The project directory is determined
// first (default, then CFGSYNC_PROJECT_DIR) because the configuration file
// lives inside it; after that, file values override defaults and
// environment values override both.
func Load() (Config, error) {
	cfg := Default()
	if dir := os.Getenv("CFGSYNC_PROJECT_DIR"); dir != "" {
		cfg.ProjectDir = dir
	}

	path := filepath.Join(cfg.ProjectDir, FileName)
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	case os.IsNotExist(err):
		// Optional file; defaults stand.
	default:
		return Config{}, fmt.Errorf("failed to read %s: %w", path, err)
	}

	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to process environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the registry invariants and required fields.
func (c *Config) Validate() error {
	if c.ProjectDir == "" {
		return fmt.Errorf("project directory must not be empty")
	}
	if c.MirrorDir == "" {
		return fmt.Errorf("mirror directory must not be empty")
	}
	if len(c.Files) == 0 {
		return fmt.Errorf("registry must contain at least one file")
	}

	seen := make(map[string]struct{}, len(c.Files))
	for _, name := range c.Files {
		if name == "" {
			return fmt.Errorf("registry entries must not be empty")
		}
		if filepath.IsAbs(name) || strings.HasPrefix(name, "..") {
			return fmt.Errorf("registry entry %q must be a relative path inside the project", name)
		}
		if _, dup := seen[name]; dup {
			return fmt.Errorf("duplicate registry entry %q", name)
		}
		seen[name] = struct{}{}
	}
	return nil
}

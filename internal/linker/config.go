package linker

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// ConfigFileName is the file FindConfig looks for.
const ConfigFileName = "linker.yaml"

// DefaultMaxEntries bounds the link cache when the config leaves it unset.
const DefaultMaxEntries = 1024

// Config represents linker.yaml.
type Config struct {
	// MaxEntries is the number of distinct operations the link cache holds
	// before it is reset. Zero means DefaultMaxEntries.
	MaxEntries int `yaml:"max_entries,omitempty"`

	// Verbose traces every cache miss and resolution to stderr.
	Verbose bool `yaml:"verbose,omitempty"`

	// Resolvers names the built-in resolvers to install, in order.
	// Unset (nil) means ["host"]; an explicit empty list installs none, so
	// only resolvers passed with WithResolver are consulted.
	Resolvers []string `yaml:"resolvers,omitempty"`
}

// LoadConfig reads and parses a linker.yaml file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}
	return ParseConfig(data, path)
}

// ParseConfig parses linker.yaml content from bytes.
// The path argument is used only for error messages.
func ParseConfig(data []byte, path string) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	if err := cfg.validate(path); err != nil {
		return nil, err
	}
	cfg.setDefaults()
	return &cfg, nil
}

// DefaultConfig returns the configuration used when no linker.yaml exists.
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.setDefaults()
	return cfg
}

// FindConfig searches for linker.yaml starting from dir and walking up to
// parent directories. It returns an empty path and nil error when none exists.
func FindConfig(dir string) (string, error) {
	dir, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("resolving directory: %w", err)
	}

	for {
		candidate := filepath.Join(dir, ConfigFileName)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", nil
		}
		dir = parent
	}
}

func (c *Config) validate(path string) error {
	if c.MaxEntries < 0 {
		return fmt.Errorf("%s: max_entries must not be negative, got %d", path, c.MaxEntries)
	}
	seen := make(map[string]bool)
	for i, name := range c.Resolvers {
		if _, ok := builtinResolvers[name]; !ok {
			return fmt.Errorf("%s: resolvers[%d]: unknown resolver %q", path, i, name)
		}
		if seen[name] {
			return fmt.Errorf("%s: resolvers[%d]: duplicate resolver %q", path, i, name)
		}
		seen[name] = true
	}
	return nil
}

func (c *Config) setDefaults() {
	if c.MaxEntries == 0 {
		c.MaxEntries = DefaultMaxEntries
	}
	if c.Resolvers == nil {
		c.Resolvers = []string{"host"}
	}
}

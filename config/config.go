// Package config handles abcvm.toml and abcvm.yaml runtime configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/chazu/abcvm/abc"
	"github.com/chazu/abcvm/interp"
	"github.com/chazu/abcvm/jit"
	"github.com/chazu/abcvm/vm"
)

// FileNames lists the configuration files searched for, in order of
// preference within one directory.
var FileNames = []string{"abcvm.toml", "abcvm.yaml", "abcvm.yml"}

// Config is the runtime configuration.
type Config struct {
	VM      VMConfig      `toml:"vm" yaml:"vm"`
	JIT     JITConfig     `toml:"jit" yaml:"jit"`
	Log     LogConfig     `toml:"log" yaml:"log"`
	Catalog CatalogConfig `toml:"catalog" yaml:"catalog"`

	// Preload lists modules loaded before the ones named on the command
	// line. Relative paths are resolved against Dir.
	Preload []string `toml:"preload" yaml:"preload"`

	// Dir is the directory containing the configuration file (set at load time).
	Dir string `toml:"-" yaml:"-"`
}

// VMConfig configures module loading and execution limits.
type VMConfig struct {
	MinVersion   string `toml:"min_version" yaml:"min_version"`
	Strict       bool   `toml:"strict" yaml:"strict"`
	MaxCallDepth int    `toml:"max_call_depth" yaml:"max_call_depth"`
}

// JITConfig configures the compiler. Enabled is a pointer so that an
// absent key keeps the default.
type JITConfig struct {
	Enabled   *bool  `toml:"enabled" yaml:"enabled"`
	Threshold uint64 `toml:"threshold" yaml:"threshold"`
	Profile   bool   `toml:"profile" yaml:"profile"`
	Listings  string `toml:"listings" yaml:"listings"`
}

// LogConfig configures commonlog.
type LogConfig struct {
	Verbosity int    `toml:"verbosity" yaml:"verbosity"`
	Path      string `toml:"path" yaml:"path"`
}

// CatalogConfig names the catalog used for on-demand loading.
type CatalogConfig struct {
	Path string `toml:"path" yaml:"path"`
}

// Default returns the configuration used when no file is found.
func Default() *Config {
	c := &Config{}
	c.applyDefaults()
	return c
}

func (c *Config) applyDefaults() {
	if c.VM.MinVersion == "" {
		c.VM.MinVersion = abc.MinVersion.String()
	}
	if c.VM.MaxCallDepth == 0 {
		c.VM.MaxCallDepth = vm.DefaultMaxCallDepth
	}
	if c.JIT.Enabled == nil {
		enabled := true
		c.JIT.Enabled = &enabled
	}
	if c.Log.Verbosity == 0 {
		c.Log.Verbosity = 1
	}
}

// Load parses the configuration file at path. The format follows the
// extension.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	var c Config
	switch ext := filepath.Ext(path); ext {
	case ".toml":
		err = toml.Unmarshal(data, &c)
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &c)
	default:
		return nil, fmt.Errorf("%s: unknown configuration format %q", path, ext)
	}
	if err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}
	if _, err := ParseVersion(c.VM.MinVersion); c.VM.MinVersion != "" && err != nil {
		return nil, fmt.Errorf("%s: vm.min_version: %w", path, err)
	}

	c.Dir, err = filepath.Abs(filepath.Dir(path))
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", path, err)
	}
	c.applyDefaults()
	return &c, nil
}

// FindAndLoad walks up from startDir to find a configuration file, then
// loads and returns it. Returns nil if none is found.
func FindAndLoad(startDir string) (*Config, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		for _, name := range FileNames {
			path := filepath.Join(dir, name)
			if _, err := os.Stat(path); err == nil {
				return Load(path)
			}
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return nil, nil
		}
		dir = parent
	}
}

// ParseVersion parses "major.minor".
func ParseVersion(s string) (abc.Version, error) {
	major, minor, ok := strings.Cut(s, ".")
	if !ok {
		return abc.Version{}, fmt.Errorf("version %q is not major.minor", s)
	}
	ma, err := strconv.ParseUint(major, 10, 16)
	if err != nil {
		return abc.Version{}, fmt.Errorf("version %q: %w", s, err)
	}
	mi, err := strconv.ParseUint(minor, 10, 16)
	if err != nil {
		return abc.Version{}, fmt.Errorf("version %q: %w", s, err)
	}
	return abc.Version{Major: uint16(ma), Minor: uint16(mi)}, nil
}

// Path resolves p against the configuration directory.
func (c *Config) Path(p string) string {
	if p == "" || filepath.IsAbs(p) || c.Dir == "" {
		return p
	}
	return filepath.Join(c.Dir, p)
}

// PreloadPaths returns the resolved preload module paths.
func (c *Config) PreloadPaths() []string {
	out := make([]string, len(c.Preload))
	for i, p := range c.Preload {
		out[i] = c.Path(p)
	}
	return out
}

// Options builds runtime options. The interpreter is always installed;
// the compiler only when the JIT is enabled.
func (c *Config) Options() vm.Options {
	v, err := ParseVersion(c.VM.MinVersion)
	if err != nil {
		v = abc.MinVersion
	}
	opts := vm.Options{
		MinVersion:   v,
		Strict:       c.VM.Strict,
		MaxCallDepth: c.VM.MaxCallDepth,
		Interpreter:  interp.New(),
		JITThreshold: c.JIT.Threshold,
		Profile:      c.JIT.Profile,
	}
	if c.JIT.Enabled == nil || *c.JIT.Enabled {
		comp := jit.New()
		comp.OutputDir = c.Path(c.JIT.Listings)
		opts.Compiler = comp
	}
	return opts
}

// Package config handles regfile.toml (or YAML) runtime configuration.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/akhildatla/regfile/pkg/vm"
)

// FileName is the configuration file FindAndLoad looks for.
const FileName = "regfile.toml"

var (
	ErrInvalidConfig = errors.New("invalid configuration")
	ErrUnknownFormat = errors.New("unknown configuration format")
)

// Config is the runtime configuration shared by the CLI, the REPL and the
// embedding API.
type Config struct {
	Stack  StackConfig  `toml:"stack" yaml:"stack"`
	Limits LimitsConfig `toml:"limits" yaml:"limits"`
	Log    LogConfig    `toml:"log" yaml:"log"`

	// Path is the file the configuration was loaded from (set at load time).
	Path string `toml:"-" yaml:"-"`
}

// StackConfig sizes the register file stack.
type StackConfig struct {
	MaxSize         int `toml:"max_size" yaml:"max_size"`
	InitialCapacity int `toml:"initial_capacity" yaml:"initial_capacity"`
}

// LimitsConfig bounds program execution. Zero means unlimited.
type LimitsConfig struct {
	MaxInstructions int64    `toml:"max_instructions" yaml:"max_instructions"`
	Timeout         Duration `toml:"timeout" yaml:"timeout"`
}

// LogConfig configures commonlog.
type LogConfig struct {
	Verbosity int    `toml:"verbosity" yaml:"verbosity"`
	File      string `toml:"file" yaml:"file"`
}

// Duration is a time.Duration written as a string such as "5s".
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Stack: StackConfig{
			MaxSize: vm.DefaultMaxSize,
		},
	}
}

// Load parses a configuration file. The format follows the extension:
// .toml, or .yaml / .yml. Keys absent from the file keep their defaults.
func Load(path string) (*Config, error) {
	c := Default()

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".toml":
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("cannot read %s: %w", path, err)
		}
		if err := toml.Unmarshal(data, c); err != nil {
			return nil, fmt.Errorf("parse error in %s: %w", path, err)
		}

	case ".yaml", ".yml":
		file, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("cannot read %s: %w", path, err)
		}
		defer file.Close()

		decoder := yaml.NewDecoder(file)
		decoder.KnownFields(true)
		if err := decoder.Decode(c); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("parse error in %s: %w", path, err)
		}

	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownFormat, path)
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", path, err)
	}
	c.Path = abs

	return c, nil
}

// FindAndLoad walks up from startDir to find a regfile.toml file and loads
// it. Without one it returns the defaults.
func FindAndLoad(startDir string) (*Config, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		path := filepath.Join(dir, FileName)
		if _, err := os.Stat(path); err == nil {
			return Load(path)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached root
			return Default(), nil
		}
		dir = parent
	}
}

// Validate rejects negative sizes and limits.
func (c *Config) Validate() error {
	var issues []string
	if c.Stack.MaxSize < 0 {
		issues = append(issues, "stack.max_size must not be negative")
	}
	if c.Stack.InitialCapacity < 0 {
		issues = append(issues, "stack.initial_capacity must not be negative")
	}
	if c.Limits.MaxInstructions < 0 {
		issues = append(issues, "limits.max_instructions must not be negative")
	}
	if c.Limits.Timeout.Duration < 0 {
		issues = append(issues, "limits.timeout must not be negative")
	}
	if len(issues) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(issues, "; "))
	}
	return nil
}

// StackOptions translates the stack section into vm options. A zero
// max_size keeps the vm default.
func (c *Config) StackOptions() []vm.StackOption {
	var opts []vm.StackOption
	if c.Stack.MaxSize > 0 {
		opts = append(opts, vm.WithMaxSize(c.Stack.MaxSize))
	}
	if c.Stack.InitialCapacity > 0 {
		opts = append(opts, vm.WithInitialCapacity(c.Stack.InitialCapacity))
	}
	return opts
}

// LogFile returns the log path for commonlog.Configure, or nil for stderr.
func (c *Config) LogFile() *string {
	if c.Log.File == "" {
		return nil
	}
	return &c.Log.File
}

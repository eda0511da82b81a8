package blendfile

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/twinfer/blenddna/internal/query"
)

// LogLevel is a slog level written by name in YAML ("debug", "warn", "info+2").
type LogLevel struct {
	slog.Level
}

// UnmarshalYAML accepts a level name or a plain integer.
func (l *LogLevel) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("log_level must be a scalar, got %v at line %d", value.Tag, value.Line)
	}
	var n int
	if err := value.Decode(&n); err == nil {
		l.Level = slog.Level(n)
		return nil
	}
	if err := l.Level.UnmarshalText([]byte(value.Value)); err != nil {
		return fmt.Errorf("log_level at line %d: %w", value.Line, err)
	}
	return nil
}

// Config is the YAML form of the Open options.
//
//	charset: windows-1252
//	where: code == "OB"
//	root_type: Scene
//	generic: true
//	follow_depth: 2
//	log_level: debug
type Config struct {
	Charset     string   `yaml:"charset"`
	Where       string   `yaml:"where"`
	RootType    string   `yaml:"root_type"`
	Generic     bool     `yaml:"generic"`
	FollowDepth int      `yaml:"follow_depth"`
	LogLevel    LogLevel `yaml:"log_level"`
}

// LoadConfig reads a YAML config file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return ParseConfig(data)
}

// ParseConfig decodes and validates a YAML config. Unknown keys are errors.
func ParseConfig(data []byte) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the charset, the filter expression and the follow depth.
func (c *Config) Validate() error {
	if c.FollowDepth < 0 {
		return fmt.Errorf("follow_depth must not be negative, got %d", c.FollowDepth)
	}
	if _, err := LookupCharset(c.Charset); err != nil {
		return err
	}
	if c.Where != "" {
		pool, err := query.NewPool()
		if err != nil {
			return err
		}
		if _, err := pool.Compile(c.Where); err != nil {
			return fmt.Errorf("where: %w", err)
		}
	}
	return nil
}

// Options converts the config into Open options. The logger is left to the
// caller, who can build one from LogLevel.
func (c *Config) Options() []Option {
	opts := []Option{
		WithCharset(c.Charset),
		WithGenericFallback(c.Generic),
		WithFollowDepth(c.FollowDepth),
		WithFilter(c.Where),
	}
	if c.RootType != "" {
		opts = append(opts, WithRootType(c.RootType))
	}
	return opts
}

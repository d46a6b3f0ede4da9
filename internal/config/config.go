package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
	"gopkg.in/go-playground/validator.v9"
	"gopkg.in/yaml.v3"
)

// Config holds the settings of one repoupdate run.
type Config struct {
	// RepositoryRoot is the directory holding addons.xml and the release folders.
	RepositoryRoot string `koanf:"repo_root" validate:"required"`
	// SourceRoot is the directory tree scanned for add-ons. Defaults to the working directory.
	SourceRoot string `koanf:"source"`
	// LogLevel is the minimum level of log output.
	LogLevel string `koanf:"log_level" validate:"omitempty,oneof=debug info warn warning error fatal"`
}

const (
	// DefaultConfigFilename is read when no explicit config path is given.
	DefaultConfigFilename = "repoupdate.yaml"

	// EnvPrefix marks environment variables that override file settings.
	EnvPrefix = "REPOUPDATE_"

	// DefaultLogLevel is used when nothing else sets a level.
	DefaultLogLevel = "info"

	tag   = "koanf"
	delim = "."
)

var (
	// errConfigIsNotSet is returned when a nil configuration is provided.
	errConfigIsNotSet = errors.New("configuration is not set")
	// errInvalidConfig wraps validator failures.
	errInvalidConfig = errors.New("invalid configuration")
)

// Default returns the built-in settings.
func Default() *Config {
	return &Config{
		LogLevel: DefaultLogLevel,
	}
}

// Load merges defaults, the YAML file at path and the environment.
// An empty path reads DefaultConfigFilename if it exists; an explicit path must exist.
// The result is not validated.
func Load(path string) (*Config, error) {
	k := koanf.New(delim)

	if err := k.Load(structs.Provider(Default(), tag), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	explicit := path != ""
	if !explicit {
		path = DefaultConfigFilename
	}

	path = filepath.Clean(path)

	_, err := os.Stat(path)

	switch {
	case err == nil:
		if err = k.Load(file.Provider(path), yamlParser{}); err != nil {
			return nil, fmt.Errorf("read settings %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist) && !explicit:
	default:
		return nil, fmt.Errorf("read settings: %w", err)
	}

	envProvider := env.Provider(EnvPrefix, delim, func(key string) string {
		return strings.ToLower(strings.TrimPrefix(key, EnvPrefix))
	})
	if err = k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("read environment: %w", err)
	}

	var cfg Config
	if err = k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal settings: %w", err)
	}

	return &cfg, nil
}

// Validate fills defaults and checks the settings.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	if cfg.LogLevel == "" {
		cfg.LogLevel = DefaultLogLevel
	}

	cfg.LogLevel = strings.ToLower(strings.TrimSpace(cfg.LogLevel))

	if err := validator.New().Struct(cfg); err != nil {
		return fmt.Errorf("%w: %w", errInvalidConfig, err)
	}

	if cfg.SourceRoot == "" {
		wd, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("resolve working directory: %w", err)
		}

		cfg.SourceRoot = wd
	}

	return nil
}

// yamlParser lets koanf read YAML through yaml.v3.
type yamlParser struct{}

// Unmarshal decodes a YAML document into a nested map.
func (yamlParser) Unmarshal(b []byte) (map[string]any, error) {
	out := make(map[string]any)
	if err := yaml.Unmarshal(b, &out); err != nil {
		return nil, err
	}

	return out, nil
}

// Marshal encodes a nested map as YAML.
func (yamlParser) Marshal(m map[string]any) ([]byte, error) {
	return yaml.Marshal(m)
}

// Package config loads benchmark configuration: paths, the model registry,
// prompting strategies, experiments and language groups.
//
// Configuration is YAML, either a single file or a directory holding
// base.yaml, models.yaml and experiments.yaml. ${VAR} references are
// substituted from the environment before parsing; unset variables are
// left as written.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/valpere/mtbench/internal/call"
	"github.com/valpere/mtbench/internal/logging"
	"github.com/valpere/mtbench/internal/retry"
)

// KeyDelimiter separates nested keys. Model ids such as "gemini-1.5-pro"
// contain dots, so viper's default delimiter cannot be used.
const KeyDelimiter = "::"

// DirFiles are merged in this order when a directory is loaded.
var DirFiles = []string{"base.yaml", "models.yaml", "experiments.yaml"}

var (
	ErrUnknownModel      = errors.New("unknown model")
	ErrUnknownStrategy   = errors.New("unknown strategy")
	ErrUnknownExperiment = errors.New("unknown experiment")
	ErrUnknownGroup      = errors.New("unknown language group")
)

type Paths struct {
	BaseFlores string `mapstructure:"base_flores"`
	OutputDir  string `mapstructure:"output_dir"`
	Database   string `mapstructure:"database"`
}

type Source struct {
	Language string `mapstructure:"language"`
	Code     string `mapstructure:"code"`
}

type Config struct {
	Paths          Paths                       `mapstructure:"paths"`
	DefaultSource  Source                      `mapstructure:"default_source"`
	LanguageCodes  map[string]string           `mapstructure:"language_codes"`
	Models         map[string]ModelConfig      `mapstructure:"models"`
	Strategies     map[string]call.Strategy    `mapstructure:"strategies"`
	Experiments    map[string]ExperimentConfig `mapstructure:"experiments"`
	LanguageGroups map[string][]string         `mapstructure:"language_groups"`
	Retry          retry.Policy                `mapstructure:"retry"`
	Log            logging.Config              `mapstructure:"log"`
}

// Option adjusts the viper instance before configuration is decoded.
type Option func(v *viper.Viper) error

// WithFlags binds command-line flags to config keys. A flag only overrides
// the file when it was set explicitly.
func WithFlags(fs *pflag.FlagSet, keyToFlag map[string]string) Option {
	return func(v *viper.Viper) error {
		for key, name := range keyToFlag {
			f := fs.Lookup(name)
			if f == nil {
				continue
			}
			if err := v.BindPFlag(key, f); err != nil {
				return fmt.Errorf("failed to bind flag --%s: %w", name, err)
			}
		}
		return nil
	}
}

// Load reads configuration from path, which may be empty (built-in
// defaults only), a YAML file or a directory.
func Load(path string, opts ...Option) (*Config, error) {
	v := viper.NewWithOptions(viper.KeyDelimiter(KeyDelimiter))
	v.SetConfigType("yaml")
	setDefaults(v)

	if path != "" {
		files, err := configFiles(path)
		if err != nil {
			return nil, err
		}
		for _, f := range files {
			data, err := os.ReadFile(f)
			if err != nil {
				return nil, fmt.Errorf("failed to read config: %w", err)
			}
			if err := v.MergeConfig(bytes.NewReader(ExpandEnv(data, os.LookupEnv))); err != nil {
				return nil, fmt.Errorf("failed to parse %s: %w", f, err)
			}
		}
	}

	for _, opt := range opts {
		if err := opt(v); err != nil {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	cfg.applyBuiltins()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func configFiles(path string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config: %w", err)
	}
	if !info.IsDir() {
		return []string{path}, nil
	}

	var files []string
	for _, name := range DirFiles {
		p := filepath.Join(path, name)
		if _, err := os.Stat(p); err == nil {
			files = append(files, p)
		}
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("config directory %s has none of %s", path, strings.Join(DirFiles, ", "))
	}
	return files, nil
}

// ExpandEnv substitutes $VAR and ${VAR} using lookup. Unknown variables are
// kept verbatim and "$$" is a literal dollar sign.
func ExpandEnv(data []byte, lookup func(string) (string, bool)) []byte {
	out := os.Expand(string(data), func(name string) string {
		if name == "$" {
			return "$"
		}
		// Shell specials such as $1 or $? are not variables here.
		if len(name) == 1 && !isIdentStart(name[0]) {
			return "$" + name
		}
		if v, ok := lookup(name); ok {
			return v
		}
		return "${" + name + "}"
	})
	return []byte(out)
}

func isIdentStart(b byte) bool {
	return b == '_' || (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}

// Validate checks cross references between sections.
func (c *Config) Validate() error {
	if err := c.Retry.Validate(); err != nil {
		return fmt.Errorf("invalid retry config: %w", err)
	}
	for id, m := range c.Models {
		if m.Provider == "" {
			return fmt.Errorf("model %s: provider is required", id)
		}
		if m.RequestsPerSecond < 0 || m.MaxConcurrency < 0 {
			return fmt.Errorf("model %s: rate settings must not be negative", id)
		}
	}
	for id, s := range c.Strategies {
		if err := s.Validate(); err != nil {
			return fmt.Errorf("strategy %s: %w", id, err)
		}
	}
	for id, e := range c.Experiments {
		if _, ok := c.Strategies[strings.ToLower(e.Strategy)]; !ok {
			return fmt.Errorf("experiment %s: %w %q", id, ErrUnknownStrategy, e.Strategy)
		}
	}
	return nil
}

// Model returns the registry entry for id.
func (c *Config) Model(id string) (ModelConfig, error) {
	m, ok := c.Models[strings.ToLower(id)]
	if !ok {
		return ModelConfig{}, fmt.Errorf("%w %q", ErrUnknownModel, id)
	}
	return m, nil
}

// Strategy returns the named strategy.
func (c *Config) Strategy(name string) (call.Strategy, error) {
	s, ok := c.Strategies[strings.ToLower(name)]
	if !ok {
		return call.Strategy{}, fmt.Errorf("%w %q", ErrUnknownStrategy, name)
	}
	return s, nil
}

package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"strings"

	"github.com/valpere/mtbench/internal/call"
	"github.com/valpere/mtbench/internal/language"
)

// ExperimentConfig is an experiments.yaml entry. TargetLanguages is either a
// list of language names or the name of a language group.
type ExperimentConfig struct {
	Model           string   `mapstructure:"model"`
	Models          []string `mapstructure:"models"`
	Strategy        string   `mapstructure:"strategy"`
	Temperature     *float64 `mapstructure:"temperature"`
	NumLines        int      `mapstructure:"num_lines"`
	TargetLanguages any      `mapstructure:"target_languages"`
	InFile          string   `mapstructure:"in_file"`
	SourceLanguage  string   `mapstructure:"source_language"`
	OutputDir       string   `mapstructure:"output_dir"`
}

// Experiment is a fully resolved experiment ready to run.
type Experiment struct {
	ID              string
	Models          []string
	StrategyName    string
	Strategy        call.Strategy
	NumLines        int
	Source          Source
	SourceFile      string
	TargetLanguages []string
	OutputDir       string
}

// ExperimentIDs returns the configured experiment ids, sorted.
func (c *Config) ExperimentIDs() []string {
	ids := make([]string, 0, len(c.Experiments))
	for id := range c.Experiments {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Experiment resolves id against the model registry, strategies and
// language groups.
func (c *Config) Experiment(id string) (*Experiment, error) {
	id = strings.ToLower(id)
	e, ok := c.Experiments[id]
	if !ok {
		return nil, fmt.Errorf("%w %q", ErrUnknownExperiment, id)
	}

	models := slices.Clone(e.Models)
	if len(models) == 0 && e.Model != "" {
		models = []string{e.Model}
	}
	if len(models) == 0 {
		return nil, fmt.Errorf("experiment %s: no model configured", id)
	}
	for i, m := range models {
		models[i] = strings.ToLower(m)
		if _, err := c.Model(m); err != nil {
			return nil, fmt.Errorf("experiment %s: %w", id, err)
		}
	}

	strategy, err := c.Strategy(e.Strategy)
	if err != nil {
		return nil, fmt.Errorf("experiment %s: %w", id, err)
	}
	if e.Temperature != nil {
		strategy.Temperature = *e.Temperature
	}
	if err := strategy.Validate(); err != nil {
		return nil, fmt.Errorf("experiment %s: %w", id, err)
	}

	targets, err := c.targets(e.TargetLanguages)
	if err != nil {
		return nil, fmt.Errorf("experiment %s: %w", id, err)
	}

	source := c.DefaultSource
	if e.SourceLanguage != "" {
		code, ok := language.Flores(e.SourceLanguage, c.LanguageCodes)
		if !ok {
			return nil, fmt.Errorf("experiment %s: no FLORES code for source language %q", id, e.SourceLanguage)
		}
		source = Source{Language: e.SourceLanguage, Code: code}
	}

	sourceFile := e.InFile
	if sourceFile == "" {
		sourceFile = filepath.Join(c.Paths.BaseFlores, "devtest."+source.Code)
	}

	outDir := e.OutputDir
	if outDir == "" {
		outDir = filepath.Join(c.Paths.OutputDir, "output_"+id)
	}

	return &Experiment{
		ID:              id,
		Models:          models,
		StrategyName:    strings.ToLower(e.Strategy),
		Strategy:        strategy,
		NumLines:        e.NumLines,
		Source:          source,
		SourceFile:      sourceFile,
		TargetLanguages: targets,
		OutputDir:       outDir,
	}, nil
}

// LanguageGroup returns the languages of a named group.
func (c *Config) LanguageGroup(name string) ([]string, error) {
	langs, ok := c.LanguageGroups[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("%w %q", ErrUnknownGroup, name)
	}
	return slices.Clone(langs), nil
}

func (c *Config) targets(v any) ([]string, error) {
	var langs []string
	switch t := v.(type) {
	case nil:
		return nil, errors.New("target_languages is required")
	case string:
		return c.LanguageGroup(t)
	case []string:
		langs = slices.Clone(t)
	case []any:
		for _, item := range t {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("target_languages: %v is not a language name", item)
			}
			langs = append(langs, s)
		}
	default:
		return nil, fmt.Errorf("target_languages: unsupported value %T", v)
	}
	if len(langs) == 0 {
		return nil, errors.New("target_languages is empty")
	}
	return langs, nil
}

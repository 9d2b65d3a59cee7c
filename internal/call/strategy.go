package call

import (
	"fmt"
	"strings"
)

// Strategy is a prompting scheme: how to phrase the request and how many
// times to sample each source line.
type Strategy struct {
	SystemPrompt   string  `mapstructure:"system_prompt" json:"system_prompt"`
	PromptTemplate string  `mapstructure:"prompt_template" json:"prompt_template"`
	Passes         int     `mapstructure:"passes" json:"passes"`
	Temperature    float64 `mapstructure:"temperature" json:"temperature"`
}

// Validate rejects strategies that cannot produce a valid descriptor.
func (s Strategy) Validate() error {
	if strings.TrimSpace(s.SystemPrompt) == "" || strings.TrimSpace(s.PromptTemplate) == "" {
		return ErrMissingTemplate
	}
	if s.Passes < 1 {
		return fmt.Errorf("%w, got %d", ErrInvalidPasses, s.Passes)
	}
	if s.Temperature < MinTemperature || s.Temperature > MaxTemperature {
		return fmt.Errorf("%w: %g", ErrTemperatureRange, s.Temperature)
	}
	return nil
}

// Languages names the language pair of a batch. Names are substituted into
// prompts; codes are carried for machine-translation services.
type Languages struct {
	Source     string
	Target     string
	SourceCode string
	TargetCode string
}

// Render substitutes {in_lang}, {out_lang} and {source} in template.
// Doubled braces are literal braces.
func Render(template, inLang, outLang, source string) string {
	r := strings.NewReplacer(
		"{{", "{",
		"}}", "}",
		"{in_lang}", inLang,
		"{out_lang}", outLang,
		"{source}", source,
	)
	return r.Replace(template)
}

// Build expands lines x strategy.Passes into descriptors in line-major
// order: every pass of line 0, then every pass of line 1, and so on. The
// passes of one line are identical requests; diversity comes from sampling
// temperature.
func Build(modelID string, lines []string, s Strategy, langs Languages) ([]Descriptor, error) {
	if strings.TrimSpace(modelID) == "" {
		return nil, ErrMissingModel
	}
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("invalid strategy: %w", err)
	}

	system := Render(s.SystemPrompt, langs.Source, langs.Target, "")
	out := make([]Descriptor, 0, len(lines)*s.Passes)
	for i, line := range lines {
		prompt := Render(s.PromptTemplate, langs.Source, langs.Target, line)
		for p := 0; p < s.Passes; p++ {
			d := Descriptor{
				ModelID:      modelID,
				Prompt:       prompt,
				SystemPrompt: system,
				Temperature:  s.Temperature,
				Line:         i,
				Pass:         p,
				Source:       line,
				SourceLang:   langs.Source,
				TargetLang:   langs.Target,
				SourceCode:   langs.SourceCode,
				TargetCode:   langs.TargetCode,
			}
			if err := d.Validate(); err != nil {
				return nil, fmt.Errorf("line %d: %w", i, err)
			}
			out = append(out, d)
		}
	}
	return out, nil
}

// Package call describes single model invocations and expands a source
// corpus and a prompting strategy into the ordered list of invocations that
// make up one batch.
package call

import (
	"errors"
	"fmt"
	"strings"
)

const (
	MinTemperature = 0.0
	MaxTemperature = 2.0
)

var (
	ErrEmptyPrompt       = errors.New("prompt is empty")
	ErrEmptySystemPrompt = errors.New("system prompt is empty")
	ErrTemperatureRange  = errors.New("temperature out of range [0, 2]")
	ErrMissingModel      = errors.New("model id is empty")
	ErrInvalidPasses     = errors.New("passes must be at least 1")
	ErrMissingTemplate   = errors.New("strategy template is empty")
)

// Descriptor is one fully specified request to a model. It is passed by
// value and never modified after Build returns it.
type Descriptor struct {
	ModelID      string  `json:"model_id"`
	Prompt       string  `json:"prompt"`
	SystemPrompt string  `json:"system_prompt"`
	Temperature  float64 `json:"temperature"`

	// Line is the index of the source line, Pass the repetition index.
	Line int `json:"line"`
	Pass int `json:"pass"`

	// Source is the raw source line; machine-translation services translate
	// it directly instead of the prompt.
	Source     string `json:"source"`
	SourceLang string `json:"source_lang"`
	TargetLang string `json:"target_lang"`
	// SourceCode and TargetCode are ISO 639-1 codes, empty when unknown.
	SourceCode string `json:"source_code,omitempty"`
	TargetCode string `json:"target_code,omitempty"`
}

// Validate checks the input constraints every provider client relies on.
func (d Descriptor) Validate() error {
	if strings.TrimSpace(d.ModelID) == "" {
		return ErrMissingModel
	}
	if strings.TrimSpace(d.Prompt) == "" {
		return ErrEmptyPrompt
	}
	if strings.TrimSpace(d.SystemPrompt) == "" {
		return ErrEmptySystemPrompt
	}
	if d.Temperature < MinTemperature || d.Temperature > MaxTemperature {
		return fmt.Errorf("%w: %g", ErrTemperatureRange, d.Temperature)
	}
	return nil
}

func (d Descriptor) String() string {
	return fmt.Sprintf("%s line=%d pass=%d", d.ModelID, d.Line, d.Pass)
}

// Package validator checks that model outputs are in the expected target language.
package validator

import (
	"fmt"
	"strings"

	"github.com/valpere/mtbench/internal/detector"
)

// minValidationLength is the minimum rune count required to attempt language detection.
// Shorter texts produce unreliable results and are accepted without validation.
const minValidationLength = 20

// Validator checks that a translation is written in the expected target language.
// The underlying language detector is expensive to build; reuse the instance.
type Validator struct {
	det *detector.Detector
}

// New creates a Validator backed by the lingua-go language detector.
func New() *Validator {
	return &Validator{det: detector.New()}
}

// IsValid returns true when translatedText appears to be written in targetLang,
// an ISO 639-1 code.
//
// Short texts (fewer than minValidationLength runes) and texts whose language
// cannot be determined pass without error. When the detected language differs
// from targetLang the returned error names both codes.
func (v *Validator) IsValid(translatedText, targetLang string) (bool, error) {
	if targetLang == "" {
		return true, nil
	}

	text := strings.TrimSpace(translatedText)
	if text == "" {
		return false, fmt.Errorf("translation is empty")
	}

	if len([]rune(text)) < minValidationLength {
		return true, nil
	}

	detected, ok := v.det.DetectISO(text)
	if !ok {
		return true, nil
	}

	if !strings.EqualFold(detected, targetLang) {
		return false, fmt.Errorf("expected %s but detected %s", targetLang, detected)
	}

	return true, nil
}

// Mismatch is one output that failed the language check.
type Mismatch struct {
	Index  int
	Reason string
}

// CheckBatch returns the outputs that do not look like targetLang. It never
// fails: the benchmark keeps every output and only reports suspects.
func (v *Validator) CheckBatch(texts []string, targetLang string) []Mismatch {
	var out []Mismatch
	for i, text := range texts {
		if ok, err := v.IsValid(text, targetLang); !ok {
			reason := "not in target language"
			if err != nil {
				reason = err.Error()
			}
			out = append(out, Mismatch{Index: i, Reason: reason})
		}
	}
	return out
}

// Package reference builds the files scorers compare artifacts against: a
// reference file with every FLORES reference sentence repeated once per
// pass, and the artifact body without its header.
package reference

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/valpere/mtbench/internal/artifact"
	"github.com/valpere/mtbench/internal/corpus"
	"github.com/valpere/mtbench/internal/language"
)

var (
	ErrUnknownLanguage  = errors.New("no FLORES code for language")
	ErrShortReferences  = errors.New("reference file has fewer lines than the artifact")
	ErrInvalidPassCount = errors.New("passes must be at least 1")
)

// Options controls where references are read from and written to.
type Options struct {
	// RefDir holds devtest.<flores code> files.
	RefDir string
	Passes int
	// LanguageCodes overrides the built-in name to FLORES table.
	LanguageCodes map[string]string
	// RefPath and CandidatesPath default to the artifact path with its
	// extension replaced by .ref and .no_header.
	RefPath        string
	CandidatesPath string
}

// Files names the generated files.
type Files struct {
	Ref        string
	Candidates string
	Lines      int
}

// Generate writes the reference and candidates files for the artifact at
// artifactPath.
func Generate(artifactPath string, opts Options) (*Files, error) {
	if opts.Passes < 1 {
		return nil, fmt.Errorf("%w, got %d", ErrInvalidPassCount, opts.Passes)
	}

	a, err := artifact.ReadFile(artifactPath)
	if err != nil {
		return nil, err
	}
	h := a.Header

	code, ok := language.Flores(h.Target, opts.LanguageCodes)
	if !ok {
		return nil, fmt.Errorf("%w %q", ErrUnknownLanguage, h.Target)
	}

	refSource := filepath.Join(opts.RefDir, "devtest."+code)
	refs, err := corpus.ReadLines(refSource, h.NLines)
	if err != nil {
		return nil, err
	}
	if len(refs) < h.NLines {
		return nil, fmt.Errorf("%w: %s has %d, want %d", ErrShortReferences, refSource, len(refs), h.NLines)
	}

	repeated := make([]string, 0, len(refs)*opts.Passes)
	for _, r := range refs {
		for range opts.Passes {
			repeated = append(repeated, r)
		}
	}

	base := strings.TrimSuffix(artifactPath, filepath.Ext(artifactPath))
	files := &Files{
		Ref:        opts.RefPath,
		Candidates: opts.CandidatesPath,
		Lines:      len(repeated),
	}
	if files.Ref == "" {
		files.Ref = base + ".ref"
	}
	if files.Candidates == "" {
		files.Candidates = base + ".no_header"
	}

	if err := os.WriteFile(files.Ref, []byte(strings.Join(repeated, "\n")), 0o644); err != nil {
		return nil, fmt.Errorf("failed to write reference file: %w", err)
	}
	if err := os.WriteFile(files.Candidates, []byte(strings.Join(a.Lines, "\n")), 0o644); err != nil {
		return nil, fmt.Errorf("failed to write candidates file: %w", err)
	}
	return files, nil
}

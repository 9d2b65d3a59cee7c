// Package artifact reads and writes the benchmark output file: a fixed
// six-key header, a blank line, then one translation per line in batch
// order.
package artifact

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

const (
	KeyModelName    = "MODELNAME"
	KeyNLines       = "NLINES"
	KeyStrategyName = "STRATEGY_NAME"
	KeySourceFile   = "SOURCEFILE"
	KeySource       = "SOURCE"
	KeyTarget       = "TARGET"
)

// Keys is the header key set in file order.
var Keys = []string{KeyModelName, KeyNLines, KeyStrategyName, KeySourceFile, KeySource, KeyTarget}

var (
	ErrLineBreak = errors.New("value contains a line break")
	ErrEmptyLine = errors.New("translation is empty")
	ErrMalformed = errors.New("malformed artifact")
)

// Header describes how an artifact was produced.
type Header struct {
	ModelName    string
	NLines       int
	StrategyName string
	SourceFile   string
	Source       string
	Target       string
}

func (h Header) values() []string {
	return []string{h.ModelName, strconv.Itoa(h.NLines), h.StrategyName, h.SourceFile, h.Source, h.Target}
}

// Validate rejects headers that cannot be written and parsed back unchanged.
func (h Header) Validate() error {
	for i, v := range h.values() {
		if strings.ContainsAny(v, "\r\n") {
			return fmt.Errorf("header %s: %w", Keys[i], ErrLineBreak)
		}
		if strings.TrimSpace(v) == "" {
			return fmt.Errorf("header %s is empty", Keys[i])
		}
		if v != strings.TrimSpace(v) {
			return fmt.Errorf("header %s has surrounding whitespace", Keys[i])
		}
	}
	if h.NLines < 0 {
		return fmt.Errorf("header %s is negative", KeyNLines)
	}
	return nil
}

// String renders the header block without a trailing newline.
func (h Header) String() string {
	var sb strings.Builder
	for i, v := range h.values() {
		if i > 0 {
			sb.WriteByte('\n')
		}
		sb.WriteString(Keys[i])
		sb.WriteByte(' ')
		sb.WriteString(v)
	}
	return sb.String()
}

// Artifact is a parsed output file.
type Artifact struct {
	Header Header
	Lines  []string
}

// Write emits the header, a blank line and lines joined by newlines, with
// no trailing newline. Every line must be non-empty so the body stays
// index-aligned when parsed back.
func Write(w io.Writer, h Header, lines []string) error {
	if err := h.Validate(); err != nil {
		return fmt.Errorf("invalid header: %w", err)
	}
	for i, l := range lines {
		if l == "" {
			return fmt.Errorf("translation %d: %w", i, ErrEmptyLine)
		}
		if strings.ContainsAny(l, "\r\n") {
			return fmt.Errorf("translation %d: %w", i, ErrLineBreak)
		}
	}

	bw := bufio.NewWriter(w)
	bw.WriteString(h.String())
	bw.WriteString("\n\n")
	bw.WriteString(strings.Join(lines, "\n"))
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("failed to write artifact: %w", err)
	}
	return nil
}

// WriteFile writes the artifact to path through a temporary file in the same
// directory, so a failed write never leaves a truncated artifact behind.
func WriteFile(path string, h Header, lines []string) error {
	var buf bytes.Buffer
	if err := Write(&buf, h, lines); err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".artifact-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write artifact: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write artifact: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return fmt.Errorf("failed to set artifact permissions: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to move artifact into place: %w", err)
	}
	return nil
}

// Parse reads an artifact. Header keys must appear exactly once, in file
// order; a value is everything after the first space of its line. A single
// trailing newline after the body is tolerated.
func Parse(r io.Reader) (*Artifact, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read artifact: %w", err)
	}
	text := string(data)

	head, body, found := strings.Cut(text, "\n\n")
	if !found {
		return nil, fmt.Errorf("%w: no blank line after header", ErrMalformed)
	}

	h, err := ParseHeader(head)
	if err != nil {
		return nil, err
	}

	body = strings.TrimSuffix(body, "\n")
	var lines []string
	if body != "" {
		lines = strings.Split(body, "\n")
	}
	return &Artifact{Header: h, Lines: lines}, nil
}

// ParseHeader parses the header block without its terminating blank line.
func ParseHeader(block string) (Header, error) {
	rows := strings.Split(block, "\n")
	if len(rows) != len(Keys) {
		return Header{}, fmt.Errorf("%w: header has %d lines, want %d", ErrMalformed, len(rows), len(Keys))
	}

	values := make([]string, len(Keys))
	for i, row := range rows {
		key, value, ok := strings.Cut(row, " ")
		if !ok {
			return Header{}, fmt.Errorf("%w: header line %d has no value", ErrMalformed, i+1)
		}
		if key != Keys[i] {
			return Header{}, fmt.Errorf("%w: header line %d is %q, want %q", ErrMalformed, i+1, key, Keys[i])
		}
		values[i] = value
	}

	n, err := strconv.Atoi(values[1])
	if err != nil || n < 0 {
		return Header{}, fmt.Errorf("%w: %s %q is not a count", ErrMalformed, KeyNLines, values[1])
	}
	return Header{
		ModelName:    values[0],
		NLines:       n,
		StrategyName: values[2],
		SourceFile:   values[3],
		Source:       values[4],
		Target:       values[5],
	}, nil
}

// ReadFile parses the artifact at path.
func ReadFile(path string) (*Artifact, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open artifact: %w", err)
	}
	defer f.Close()
	return Parse(f)
}

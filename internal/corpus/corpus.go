// Package corpus reads source sentences, one per line.
package corpus

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
)

// maxLineBytes allows long sentences; bufio's default limit is 64 KiB.
const maxLineBytes = 1 << 20

// ReadLines returns the first n non-empty lines of the file at path, each
// with surrounding whitespace removed. n <= 0 reads every line. A file with
// fewer lines is not an error; callers compare the length.
func ReadLines(path string, n int) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open corpus: %w", err)
	}
	defer f.Close()

	lines, err := Read(f, n)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return lines, nil
}

// Read is ReadLines over an arbitrary reader.
func Read(r io.Reader, n int) ([]string, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	var lines []string
	for sc.Scan() {
		line := strings.TrimSpace(strings.TrimPrefix(sc.Text(), "\ufeff"))
		if line == "" {
			continue
		}
		lines = append(lines, line)
		if n > 0 && len(lines) == n {
			break
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return lines, nil
}

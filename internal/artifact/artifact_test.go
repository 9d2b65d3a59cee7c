package artifact

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testHeader() Header {
	return Header{
		ModelName:    "gpt-4o",
		NLines:       3,
		StrategyName: "multi_pass",
		SourceFile:   "data/flores200_dataset/devtest/devtest.eng_Latn",
		Source:       "English",
		Target:       "Mandarin Chinese",
	}
}

func TestWrite_Format(t *testing.T) {
	lines := []string{"a1", "a2", "b1", "b2", "c1", "c2"}

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, testHeader(), lines))

	expected := "MODELNAME gpt-4o\n" +
		"NLINES 3\n" +
		"STRATEGY_NAME multi_pass\n" +
		"SOURCEFILE data/flores200_dataset/devtest/devtest.eng_Latn\n" +
		"SOURCE English\n" +
		"TARGET Mandarin Chinese\n" +
		"\n" +
		"a1\na2\nb1\nb2\nc1\nc2"
	assert.Equal(t, expected, buf.String())
	assert.False(t, strings.HasSuffix(buf.String(), "\n"))
}

func TestRoundTrip(t *testing.T) {
	h := testHeader()
	lines := []string{"你好", "世界", "x", "y", "z", "w"}

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, h, lines))

	a, err := Parse(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, h, a.Header)
	assert.Equal(t, lines, a.Lines)
	assert.Len(t, a.Lines, h.NLines*2)

	headerBlock, _, _ := strings.Cut(buf.String(), "\n\n")
	assert.Equal(t, headerBlock, a.Header.String())
}

func TestParse_ValueAfterFirstSpace(t *testing.T) {
	in := "MODELNAME m\nNLINES 1\nSTRATEGY_NAME s\nSOURCEFILE /tmp/my file.txt\nSOURCE English\nTARGET Mandarin Chinese\n\nline"

	a, err := Parse(strings.NewReader(in))
	require.NoError(t, err)
	assert.Equal(t, "/tmp/my file.txt", a.Header.SourceFile)
	assert.Equal(t, "Mandarin Chinese", a.Header.Target)
}

func TestParse_TrailingNewlineTolerated(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, testHeader(), []string{"a", "b"}))
	buf.WriteString("\n")

	a, err := Parse(&buf)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, a.Lines)
}

func TestParse_Malformed(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{name: "no_blank_line", input: "MODELNAME m\nNLINES 1"},
		{name: "wrong_order", input: "NLINES 1\nMODELNAME m\nSTRATEGY_NAME s\nSOURCEFILE f\nSOURCE a\nTARGET b\n\nx"},
		{name: "unknown_key", input: "MODELNAME m\nNLINES 1\nSTRATEGY s\nSOURCEFILE f\nSOURCE a\nTARGET b\n\nx"},
		{name: "missing_key", input: "MODELNAME m\nNLINES 1\nSTRATEGY_NAME s\nSOURCEFILE f\nSOURCE a\n\nx"},
		{name: "extra_key", input: "MODELNAME m\nNLINES 1\nSTRATEGY_NAME s\nSOURCEFILE f\nSOURCE a\nTARGET b\nEXTRA c\n\nx"},
		{name: "bad_count", input: "MODELNAME m\nNLINES many\nSTRATEGY_NAME s\nSOURCEFILE f\nSOURCE a\nTARGET b\n\nx"},
		{name: "no_value", input: "MODELNAME\nNLINES 1\nSTRATEGY_NAME s\nSOURCEFILE f\nSOURCE a\nTARGET b\n\nx"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(strings.NewReader(tt.input))
			assert.ErrorIs(t, err, ErrMalformed)
		})
	}
}

func TestWrite_RejectsLineBreaks(t *testing.T) {
	var buf bytes.Buffer

	err := Write(&buf, testHeader(), []string{"ok", "two\nlines"})
	assert.ErrorIs(t, err, ErrLineBreak)

	h := testHeader()
	h.Target = "French\r"
	err = Write(&buf, h, nil)
	assert.ErrorIs(t, err, ErrLineBreak)

	assert.Zero(t, buf.Len())
}

func TestWrite_RejectsEmptyLine(t *testing.T) {
	for _, lines := range [][]string{{"a", ""}, {"", "b"}, {"a", "", "c"}} {
		var buf bytes.Buffer
		err := Write(&buf, testHeader(), lines)
		assert.ErrorIs(t, err, ErrEmptyLine, "%q", lines)
		assert.Zero(t, buf.Len())
	}

	err := WriteFile(filepath.Join(t.TempDir(), "out.txt"), testHeader(), []string{"a", ""})
	assert.ErrorIs(t, err, ErrEmptyLine)
}

func TestWrite_RejectsEmptyHeaderValue(t *testing.T) {
	h := testHeader()
	h.StrategyName = ""
	assert.Error(t, Write(&bytes.Buffer{}, h, nil))
}

func TestWriteFile_ReadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "gpt-4o_en_to_zh.txt")

	require.NoError(t, WriteFile(path, testHeader(), []string{"a", "b"}))

	a, err := ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, testHeader(), a.Header)
	assert.Equal(t, []string{"a", "b"}, a.Lines)

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp file left behind")
}

// Package postprocess strips the packaging models put around a translation
// and flattens it to one line, so outputs stay aligned with source lines
// in the artifact.
package postprocess

import (
	"regexp"
	"strings"
)

// Clean removes model artifacts and returns the trimmed result:
//  1. thinking / reasoning blocks
//  2. a code fence around the whole answer
//  3. an introductory echo such as "Here is the translation:"
//  4. outer quotes
func Clean(text string) string {
	text = removeThinkingBlocks(text)
	text = removeCodeFence(text)
	text = removeInstructionEchoes(text)
	text = removeQuoteWrapping(text)
	return strings.TrimSpace(text)
}

// Line cleans text and collapses every whitespace run, newlines included,
// into a single space. If cleaning leaves nothing, the flattened raw text is
// returned instead so a non-empty answer never becomes an empty line.
func Line(text string) string {
	if out := flatten(Clean(text)); out != "" {
		return out
	}
	return flatten(text)
}

func flatten(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// RE2 has no backreferences, so each tag pair is listed.
var thinkingBlockRe = regexp.MustCompile(
	`(?is)<thinking>.*?</thinking>|<think>.*?</think>|<reasoning>.*?</reasoning>|<reflection>.*?</reflection>`,
)

// An opening tag without its closing tag: the model was cut off mid-thought.
var truncatedThinkingRe = regexp.MustCompile(
	`(?is)(?:<thinking>|<think>|<reasoning>|<reflection>).*$`,
)

func removeThinkingBlocks(text string) string {
	text = thinkingBlockRe.ReplaceAllString(text, "")
	text = truncatedThinkingRe.ReplaceAllString(text, "")
	return strings.TrimSpace(text)
}

var codeFenceRe = regexp.MustCompile("(?s)^```(?:[\\w-]*[ \\t]*\\n)?(.*?)\\n?```$")

func removeCodeFence(text string) string {
	if m := codeFenceRe.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[1])
	}
	return text
}

// echoPatterns are anchored at the start and require a colon, so a sentence
// that merely mentions a translation is left alone. A single qualifier word
// is allowed before "translation" ("refined", "French", "literal").
var echoPatterns = []*regexp.Regexp{
	// Here is / Here's [the|your] [word] translation [into X]:
	regexp.MustCompile(`(?i)^here(?:'s| is)(?: the| your)? (?:[\p{L}-]+ )?(?:translation|text)(?: (?:in|into|to) [\p{L} ]+)?\s*:`),
	// [The] [word] translation|translated text [(X)]:
	regexp.MustCompile(`(?i)^(?:the )?(?:[\p{L}-]+ )?(?:translation|translated text)(?: \([^)]*\))?\s*:`),
	// Certainly / Sure / Of course[,] here is ...:
	regexp.MustCompile(`(?i)^(?:certainly|sure|of course)[,.!]? here(?:'s| is)(?: the| your)? (?:[\p{L}-]+ )?(?:translation|text)(?: (?:in|into|to) [\p{L} ]+)?\s*:`),
}

func removeInstructionEchoes(text string) string {
	for _, re := range echoPatterns {
		if loc := re.FindStringIndex(text); loc != nil && loc[0] == 0 {
			text = strings.TrimSpace(text[loc[1]:])
		}
	}
	return text
}

// quotePairs are the outer quote pairs stripped when they wrap the whole text
// and nothing else.
var quotePairs = [][2]rune{
	{'"', '"'},
	{'\'', '\''},
	{'«', '»'},
	{'“', '”'},
	{'‘', '’'},
	{'「', '」'},
}

func removeQuoteWrapping(text string) string {
	runes := []rune(text)
	n := len(runes)
	if n < 2 {
		return text
	}
	for _, p := range quotePairs {
		if runes[0] != p[0] || runes[n-1] != p[1] {
			continue
		}
		// A quote inside means the outer pair belongs to separate quotations.
		inner := string(runes[1 : n-1])
		if strings.ContainsRune(inner, p[0]) || strings.ContainsRune(inner, p[1]) {
			return text
		}
		return strings.TrimSpace(inner)
	}
	return text
}

package postprocess

import "testing"

func TestRemoveThinkingBlocks(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "empty string", input: "", expected: ""},
		{name: "no thinking blocks", input: "Bonjour le monde.", expected: "Bonjour le monde."},
		{name: "think block", input: "<think>The user wants French.</think>Bonjour", expected: "Bonjour"},
		{name: "thinking block mid text", input: "Some text<thinking>Let me translate this</thinking>More text", expected: "Some textMore text"},
		{name: "multiline reasoning", input: "<reasoning>\nstep 1\nstep 2\n</reasoning>\nHola", expected: "Hola"},
		{name: "multiple blocks", input: "<thinking>First</thinking>middle<reflection>Second</reflection>", expected: "middle"},
		{name: "truncated block", input: "<thinking>Translation in progress", expected: ""},
		{name: "truncated after content", input: "Before<think>Incomplete", expected: "Before"},
		{name: "case insensitive", input: "<THINK>x</THINK>Ciao", expected: "Ciao"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := removeThinkingBlocks(tt.input)
			if result != tt.expected {
				t.Errorf("removeThinkingBlocks(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestRemoveCodeFence(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "no fence", input: "Hallo Welt", expected: "Hallo Welt"},
		{name: "plain fence", input: "```\nHallo Welt\n```", expected: "Hallo Welt"},
		{name: "fence with language", input: "```text\nHallo Welt\n```", expected: "Hallo Welt"},
		{name: "inline fence", input: "```Hallo Welt```", expected: "Hallo Welt"},
		{name: "fence not wrapping", input: "Use ```code``` here", expected: "Use ```code``` here"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := removeCodeFence(tt.input)
			if result != tt.expected {
				t.Errorf("removeCodeFence(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestRemoveInstructionEchoes(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "empty string", input: "", expected: ""},
		{name: "no echo", input: "Just a normal translation.", expected: "Just a normal translation."},
		{name: "here's the translation", input: "Here's the translation: Bonjour", expected: "Bonjour"},
		{name: "here is the refined translation", input: "Here is the refined translation: Done", expected: "Done"},
		{name: "here's translation", input: "Here's translation: Text", expected: "Text"},
		{name: "here is the translation into", input: "Here is the translation into Mandarin Chinese: 你好", expected: "你好"},
		{name: "language translation", input: "French translation: Bonjour", expected: "Bonjour"},
		{name: "translation with language in parens", input: "Translation (German): Hallo", expected: "Hallo"},
		{name: "the translation", input: "The translation: Hello world", expected: "Hello world"},
		{name: "certainly", input: "Certainly, here's the translation: Text", expected: "Text"},
		{name: "sure with exclamation", input: "Sure! Here is your translation: Done", expected: "Done"},
		{name: "echo not at start", input: "Before Here's the translation: After", expected: "Before Here's the translation: After"},
		{name: "echo without colon", input: "Here's the translation text", expected: "Here's the translation text"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := removeInstructionEchoes(tt.input)
			if result != tt.expected {
				t.Errorf("removeInstructionEchoes(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestRemoveQuoteWrapping(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "empty string", input: "", expected: ""},
		{name: "single char", input: "a", expected: "a"},
		{name: "double quotes", input: "\"Hello world\"", expected: "Hello world"},
		{name: "single quotes", input: "'Hello world'", expected: "Hello world"},
		{name: "guillemets", input: "«Bonjour»", expected: "Bonjour"},
		{name: "curly double quotes", input: "“Hello world”", expected: "Hello world"},
		{name: "curly single quotes", input: "‘Hello world’", expected: "Hello world"},
		{name: "corner brackets", input: "「こんにちは」", expected: "こんにちは"},
		{name: "unmatched quotes", input: "\"Hello world'", expected: "\"Hello world'"},
		{name: "only opening quote", input: "\"Hello world", expected: "\"Hello world"},
		{name: "nested quotes kept", input: "\"He said \"hello\"\"", expected: "\"He said \"hello\"\""},
		{name: "split guillemet quotation", input: "« Nous sommes ici », a-t-elle dit, « pour rester. »", expected: "« Nous sommes ici », a-t-elle dit, « pour rester. »"},
		{name: "split double quotation", input: "\"We are here,\" she said, \"to stay.\"", expected: "\"We are here,\" she said, \"to stay.\""},
		{name: "apostrophe inside single quotes", input: "'l'eau'", expected: "'l'eau'"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := removeQuoteWrapping(tt.input)
			if result != tt.expected {
				t.Errorf("removeQuoteWrapping(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestClean(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "empty string", input: "", expected: ""},
		{name: "clean text", input: "Le chat dort.", expected: "Le chat dort."},
		{name: "thinking echo quotes", input: "<think>hmm</think>Here's the translation:\n\"Le chat dort.\"", expected: "Le chat dort."},
		{name: "fence around echo", input: "```\nTranslation: Le chat dort.\n```", expected: "Le chat dort."},
		{name: "truncated thinking at end", input: "Text<thinking>Incomplete", expected: "Text"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := Clean(tt.input)
			if result != tt.expected {
				t.Errorf("Clean(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestLine(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "single line", input: "  Le chat dort.  ", expected: "Le chat dort."},
		{name: "multi line collapsed", input: "Le chat\ndort\r\n  sur le tapis.", expected: "Le chat dort sur le tapis."},
		{name: "tabs collapsed", input: "a\t\tb", expected: "a b"},
		{name: "cleaned then flattened", input: "<think>x</think>\"Erste Zeile\nzweite Zeile\"", expected: "Erste Zeile zweite Zeile"},
		{name: "only thinking falls back to raw", input: "<think>unfinished", expected: "<think>unfinished"},
		{name: "empty", input: " \n ", expected: ""},
		{name: "quoted dialogue kept", input: "« Nous sommes ici », a-t-elle dit, « pour rester. »\n", expected: "« Nous sommes ici », a-t-elle dit, « pour rester. »"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := Line(tt.input)
			if result != tt.expected {
				t.Errorf("Line(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}

package language

import (
	"strings"

	lingua "github.com/pemistahl/lingua-go"
	"golang.org/x/text/language"
	"golang.org/x/text/language/display"
)

// aliases maps config spellings to lingua's language names.
var aliases = map[string]string{
	"mandarin chinese": "chinese",
	"mandarin":         "chinese",
	"farsi":            "persian",
	"filipino":         "tagalog",
	"norwegian":        "bokmal",
}

// ISO returns the lower-case ISO 639-1 code for a language name or code.
// Names are matched against lingua's language list first, then against the
// English display names of every code in the FLORES table.
func ISO(name string) (string, bool) {
	key := normalize(name)
	if key == "" {
		return "", false
	}
	if alias, ok := aliases[key]; ok {
		key = alias
	}

	for _, l := range lingua.AllLanguages() {
		code := strings.ToLower(l.IsoCode639_1().String())
		if strings.ToLower(l.String()) == key || code == key {
			return code, true
		}
	}

	if _, ok := floresByCode[key]; ok && len(key) == 2 {
		return key, true
	}
	namer := display.English.Languages()
	for code := range floresByCode {
		if len(code) != 2 {
			continue
		}
		tag, err := language.Parse(code)
		if err != nil {
			continue
		}
		if strings.ToLower(namer.Name(tag)) == key {
			return code, true
		}
	}
	return "", false
}

// DisplayName returns the English name for a BCP 47 code, or "" if the code
// does not parse.
func DisplayName(code string) string {
	tag, err := language.Parse(strings.TrimSpace(code))
	if err != nil {
		return ""
	}
	return display.English.Languages().Name(tag)
}

// Resolve fills the ISO and FLORES codes for a language name. Missing codes
// are left empty; callers decide whether that is an error.
func Resolve(name string, overrides map[string]string) Info {
	info := Info{Name: name}
	info.ISO, _ = ISO(name)
	info.Flores, _ = Flores(name, overrides)
	if info.Flores == "" && info.ISO != "" {
		info.Flores, _ = Flores(info.ISO, overrides)
	}
	return info
}

// Info is a resolved language.
type Info struct {
	Name   string
	ISO    string
	Flores string
}

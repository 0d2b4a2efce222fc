// Package lang resolves the narration language for a session.
package lang

import (
	"fmt"

	"golang.org/x/text/language"
)

// Default is used when the client supplies no language or an
// unsupported one.
const Default = "en"

// supported is the closed set of narration languages.
var supported = []language.Tag{
	language.English,
	language.Spanish,
	language.Catalan,
}

var matcher = language.NewMatcher(supported)

// Normalize maps a client-supplied language code onto the supported set.
// Unknown or empty codes fall back to the default.
func Normalize(code string) string {
	if code == "" {
		return Default
	}
	tag, err := language.Parse(code)
	if err != nil {
		return Default
	}
	_, idx, conf := matcher.Match(tag)
	if conf == language.No {
		return Default
	}
	base, _ := supported[idx].Base()
	return base.String()
}

// Resolve maps a client-supplied language code onto the supported set.
// The empty code resolves to the default; codes outside the supported
// set are rejected.
func Resolve(code string) (string, error) {
	if code == "" {
		return Default, nil
	}
	tag, err := language.Parse(code)
	if err != nil {
		return "", fmt.Errorf("unrecognized language code %q", code)
	}
	_, idx, conf := matcher.Match(tag)
	if conf == language.No {
		return "", fmt.Errorf("unsupported language %q", code)
	}
	base, _ := supported[idx].Base()
	return base.String(), nil
}

// Name returns the English display name used in narration prompts.
func Name(code string) string {
	switch Normalize(code) {
	case "es":
		return "Spanish"
	case "ca":
		return "Catalan"
	default:
		return "English"
	}
}

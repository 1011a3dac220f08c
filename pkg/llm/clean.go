// Package llm builds translator clients from configuration and decorates them
// with retries and output cleanup.
package llm

import (
	"regexp"
	"strings"
)

var fencePattern = regexp.MustCompile("(?s)^```[a-zA-Z0-9_-]*\\s*\\n?(.*?)\\n?```$")

var quotePairs = [][2]string{
	{`"`, `"`},
	{`'`, `'`},
	{"“", "”"},
	{"«", "»"},
	{"„", "“"},
}

// CleanOutput strips the wrappers models put around a bare translation: code
// fences, triple quotes, one pair of matching quotes and surrounding space.
func CleanOutput(s string) string {
	s = strings.TrimSpace(s)

	if m := fencePattern.FindStringSubmatch(s); m != nil {
		s = strings.TrimSpace(m[1])
	}

	for _, q := range []string{`"""`, `'''`} {
		if len(s) >= 2*len(q) && strings.HasPrefix(s, q) && strings.HasSuffix(s, q) {
			s = strings.TrimSpace(s[len(q) : len(s)-len(q)])
		}
	}

	for _, pair := range quotePairs {
		if len(s) >= len(pair[0])+len(pair[1]) && strings.HasPrefix(s, pair[0]) && strings.HasSuffix(s, pair[1]) {
			inner := s[len(pair[0]) : len(s)-len(pair[1])]
			// keep quotes that are part of the text, e.g. "a" and "b"
			if !strings.Contains(inner, pair[0]) && !strings.Contains(inner, pair[1]) {
				s = strings.TrimSpace(inner)
			}
			break
		}
	}

	return s
}

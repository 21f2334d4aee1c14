package textutil

import (
	"regexp"
	"strings"
)

var whitespaceRegex = regexp.MustCompile(`\s+`)

func NormalizeText(text string) string {
	text = strings.ToLower(text)
	text = strings.Trim(text, " \n\t")
	text = whitespaceRegex.ReplaceAllString(text, " ")
	return text
}

// ContainsPhrase reports whether text contains any of the given phrases,
// ignoring case and collapsing runs of whitespace on both sides.
// It returns the first phrase that matched.
func ContainsPhrase(text string, phrases []string) (string, bool) {
	text = NormalizeText(text)
	for _, p := range phrases {
		if strings.Contains(text, NormalizeText(p)) {
			return p, true
		}
	}
	return "", false
}

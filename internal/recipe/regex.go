package recipe

import (
	"time"

	"github.com/dlclark/regexp2"
)

const regexTimeout = time.Second

// ApplyRegex returns the first capture group of pattern in text, the way
// generated scripts post-process extracted values. The text comes back
// unchanged when nothing matches; valid is false when the pattern does not
// compile.
func ApplyRegex(text, pattern string) (formatted string, valid bool) {
	re, err := regexp2.Compile(pattern, regexp2.ECMAScript|regexp2.Multiline)
	if err != nil {
		return text, false
	}
	re.MatchTimeout = regexTimeout

	m, err := re.FindStringMatch(text)
	if err != nil || m == nil {
		return text, true
	}
	g := m.GroupByNumber(1)
	if g == nil || len(g.Captures) == 0 || g.String() == "" {
		return text, true
	}
	return g.String(), true
}

// ValidRegex reports whether pattern compiles.
func ValidRegex(pattern string) bool {
	_, err := regexp2.Compile(pattern, regexp2.ECMAScript|regexp2.Multiline)
	return err == nil
}

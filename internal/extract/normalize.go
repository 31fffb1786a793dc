package extract

import (
	"strings"
	"unicode"
)

// NormalizeText collapses whitespace runs to single spaces, strips
// non-printable characters (newline, carriage return and tab survive)
// and trims both ends.
func NormalizeText(content string) string {
	if content == "" {
		return ""
	}

	collapsed := strings.Join(strings.Fields(content), " ")

	var b strings.Builder
	b.Grow(len(collapsed))
	for _, r := range collapsed {
		if unicode.IsPrint(r) || r == '\n' || r == '\r' || r == '\t' {
			b.WriteRune(r)
		} else {
			b.WriteByte(' ')
		}
	}

	out := b.String()
	for strings.Contains(out, "  ") {
		out = strings.ReplaceAll(out, "  ", " ")
	}
	return strings.TrimSpace(out)
}

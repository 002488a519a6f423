package content

import (
	"strings"
	"unicode/utf8"
)

const (
	contentHeader   = "Webpage Content:\n\n"
	truncatedMarker = "[Content truncated due to size...]"
)

// Clean normalizes extracted text and bounds it to maxChars characters.
// Very short lines after the first kept line are treated as navigation noise
// and dropped, and all whitespace runs collapse to a single space. The result
// carries the content header; the bool reports whether anything was cut.
func Clean(text string, maxChars int) (string, bool) {
	var (
		b    strings.Builder
		kept int
	)

	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if utf8.RuneCountInString(line) < 3 && kept > 0 {
			continue
		}
		b.WriteString(line)
		b.WriteByte(' ')
		kept++
	}

	body, truncated := truncateRunes(strings.Join(strings.Fields(b.String()), " "), maxChars)
	if truncated {
		body += "\n\n" + truncatedMarker
	}
	return contentHeader + body, truncated
}

// truncateRunes cuts s to at most n runes. The bool reports whether a cut happened.
func truncateRunes(s string, n int) (string, bool) {
	if utf8.RuneCountInString(s) <= n {
		return s, false
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos], true
		}
		i++
	}
	return s, false
}

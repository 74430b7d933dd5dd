package access

import (
	"strings"
	"unicode/utf8"
)

// Localized is gated content with one body per language.
type Localized interface {
	LocalizedBodies() map[string]*string
}

// Preview cuts content to its first limit runes and appends marker. The result
// never exceeds limit runes plus the marker.
func Preview(content string, limit int, marker string) string {
	if content == "" {
		return ""
	}
	if limit < 0 {
		limit = 0
	}
	if utf8.RuneCountInString(content) > limit {
		n := 0
		for i := range content {
			if n == limit {
				content = content[:i]
				break
			}
			n++
		}
	}
	return strings.TrimRightFunc(content, isSpace) + marker
}

// Redact replaces every language body of r with its preview unless hasAccess.
// r is modified in place; pass a copy when the original must survive.
func (p *Policy) Redact(r Localized, hasAccess bool) {
	if hasAccess {
		return
	}
	for lang, body := range r.LocalizedBodies() {
		*body = Preview(*body, p.PreviewLength, p.RedactionMarkers[lang])
	}
}

func isSpace(r rune) bool {
	return r == ' ' || r == '\n' || r == '\t' || r == '\r'
}

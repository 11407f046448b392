package bridge

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	// MaxMessageLength is the channel's maximum task request size, in runes.
	MaxMessageLength = 4096
	// MaxDisplayNameLength bounds the prompt-injection surface of a
	// spoofable display name.
	MaxDisplayNameLength = 128
)

// Code points stripped beyond the control range: zero-width characters
// and bidi overrides, both of which can disguise what a prompt says.
var unsafeRunes = map[rune]bool{
	'\u200B': true, // zero width space
	'\u200C': true, // zero width non-joiner
	'\u200D': true, // zero width joiner
	'\u2060': true, // word joiner
	'\uFEFF': true, // zero width no-break space
	'\u202A': true, // left-to-right embedding
	'\u202B': true, // right-to-left embedding
	'\u202C': true, // pop directional formatting
	'\u202D': true, // left-to-right override
	'\u202E': true, // right-to-left override
	'\u2066': true, // left-to-right isolate
	'\u2067': true, // right-to-left isolate
	'\u2068': true, // first strong isolate
	'\u2069': true, // pop directional isolate
}

func stripUnsafe(s string, keepNewlines bool) string {
	var sb strings.Builder
	sb.Grow(len(s))
	for _, r := range s {
		if unsafeRunes[r] {
			continue
		}
		if r == '\n' || r == '\t' {
			if keepNewlines {
				sb.WriteRune(r)
			} else {
				sb.WriteRune(' ')
			}
			continue
		}
		if unicode.IsControl(r) || r == utf8.RuneError {
			continue
		}
		sb.WriteRune(r)
	}
	return sb.String()
}

// SanitizeMessage strips unsafe characters from a task request and
// re-checks the length bound. An empty or oversized result is an error:
// the gatekeeper fails closed on anything it cannot positively clean.
func SanitizeMessage(s string) (string, error) {
	out := strings.TrimSpace(stripUnsafe(s, true))
	if out == "" {
		return "", fmt.Errorf("message empty after sanitization")
	}
	if utf8.RuneCountInString(out) > MaxMessageLength {
		return "", fmt.Errorf("message exceeds %d characters", MaxMessageLength)
	}
	return out, nil
}

// SanitizeDisplayName collapses a display name to one line and caps it.
// Unlike message text, a bad name is not fatal: it degrades to empty.
func SanitizeDisplayName(s string) string {
	out := strings.TrimSpace(stripUnsafe(s, false))
	runes := []rune(out)
	if len(runes) > MaxDisplayNameLength {
		out = string(runes[:MaxDisplayNameLength])
	}
	return out
}

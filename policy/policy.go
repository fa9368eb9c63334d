// Package policy holds the content filter applied before any model call and
// the output leak guard applied after generation. Pattern lists are immutable
// configuration compiled at process start.
package policy

import "regexp"

// RedactionMarker replaces anything Sanitize considers secret-shaped.
const RedactionMarker = "[redacted]"

var denyPatterns = compile([]string{
	// credentials and secrets
	`api[\s_-]?keys?`,
	`\bsecrets?\b`,
	`\bpasswords?\b`,
	`\bcredentials?\b`,
	`access[\s_-]?tokens?`,
	`private[\s_-]?keys?`,
	// internal endpoints
	`internal (endpoint|api|url|service)s?`,
	`admin (endpoint|panel|url)s?`,
	`\blocalhost\b`,
	`\bstaging\b`,
	`\.internal\b`,
	// source code and architecture internals
	`source ?code`,
	`\brepositor(y|ies)\b`,
	`\barchitecture\b`,
	`database schema`,
	`system prompt`,
	// operational telemetry
	`\btelemetry\b`,
	`error rates?`,
	`stack ?traces?`,
	`server logs?`,
	`metrics dashboards?`,
})

var (
	hexRunRe   = regexp.MustCompile(`[0-9a-fA-F]{32,64}`)
	keyTokenRe = regexp.MustCompile(`\b(?:sk|pk|rk|key|token)[-_][A-Za-z0-9_-]{16,}\b`)
)

func compile(patterns []string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(patterns))
	for i, p := range patterns {
		out[i] = regexp.MustCompile(`(?i)` + p)
	}
	return out
}

// IsDenied reports whether any deny pattern matches the text.
func IsDenied(text string) bool {
	for _, re := range denyPatterns {
		if re.MatchString(text) {
			return true
		}
	}
	return false
}

// Sanitize rewrites long hex runs and API-key-shaped tokens to the redaction
// marker. Best-effort leak guard, not a security boundary.
func Sanitize(text string) string {
	text = hexRunRe.ReplaceAllString(text, RedactionMarker)
	return keyTokenRe.ReplaceAllString(text, RedactionMarker)
}

package security

import "regexp"

var (
	bearerTokenPattern = regexp.MustCompile(`(?i)(Authorization:\s*Bearer\s+)([^\s]+)`)
	passwordPattern    = regexp.MustCompile(`(?i)("password"\s*:\s*")[^"]*(")`)
	creditCardPattern  = regexp.MustCompile(`\b\d{4}[\s-]?\d{4}[\s-]?\d{4}[\s-]?\d{4}\b`)
	apiKeyPattern      = regexp.MustCompile(`(?i)("api[_-]?key"\s*:\s*")[^"]*(")`)
)

// MaskSensitiveData redacts bearer tokens, passwords, credit-card-like
// digit sequences, and API keys from a string before it is written to
// a log line.
func MaskSensitiveData(s string) string {
	s = bearerTokenPattern.ReplaceAllString(s, "${1}***MASKED***")
	s = passwordPattern.ReplaceAllString(s, "${1}***${2}")
	s = creditCardPattern.ReplaceAllString(s, "****-****-****-****")
	s = apiKeyPattern.ReplaceAllString(s, "${1}***${2}")
	return s
}

const sanitizeMaxLen = 1000

// SanitizeForLogging strips control characters (keeping newline and
// tab) and truncates long input, so an attacker cannot use crafted
// request data to forge or flood log entries.
func SanitizeForLogging(s string) string {
	out := make([]rune, 0, len(s))
	for _, r := range s {
		if r == '\n' || r == '\t' {
			out = append(out, r)
			continue
		}
		if r < 0x20 || r == 0x7f {
			continue
		}
		out = append(out, r)
	}
	sanitized := string(out)
	if len(sanitized) > sanitizeMaxLen {
		sanitized = sanitized[:sanitizeMaxLen] + "... (truncated)"
	}
	return sanitized
}

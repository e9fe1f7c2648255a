package redact

import "regexp"

// secretPatterns cover credentials that can surface in executor errors and
// scraped LMS pages: session cookies, bearer tokens, URL basic auth and
// key/secret assignments.
var secretPatterns = []*regexp.Regexp{
	// LMS session cookies
	regexp.MustCompile(`(?i)(MoodleSession[A-Za-z0-9]*|sesskey|PHPSESSID)\s*[=:]\s*['"]?[A-Za-z0-9%_-]{8,}['"]?`),

	// Bearer tokens
	regexp.MustCompile(`(?i)bearer\s+[A-Za-z0-9_\-.]{20,}`),

	// Basic auth in URLs
	regexp.MustCompile(`https?://[^:/\s]+:[^@\s]+@`),

	// Generic API keys and web service tokens
	regexp.MustCompile(`(?i)(api_key|apikey|api-key|secret_key|access_token|auth_token|wstoken|token)\s*[=:]\s*['"]?[A-Za-z0-9_\-]{16,}['"]?`),

	// Passwords
	regexp.MustCompile(`(?i)(password|passwd|pwd|secret)\s*[=:]\s*['"]?[^\s'"]{8,}['"]?`),
}

const redactedPlaceholder = "[REDACTED]"

// RedactSecrets replaces credentials in free text with [REDACTED]. It is
// meant for diagnostics and audit lines, not for tool payloads.
func RedactSecrets(input string) string {
	result := input
	for _, pattern := range secretPatterns {
		result = pattern.ReplaceAllString(result, redactedPlaceholder)
	}
	return result
}

// ForLog makes free text safe to write to a log: credentials are removed and
// PII-shaped text is redacted one way.
func ForLog(input string) string {
	return RedactUnknown(RedactSecrets(input))
}

package knowledge

import (
	"regexp"
	"strings"
)

// RedactedPlaceholder replaces lines containing secrets before storage.
const RedactedPlaceholder = "[REDACTED]"

// secretPatterns match common credential formats. The set leans toward
// false positives: a redacted line is recoverable from the source, a
// stored secret is not.
var secretPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)sk-ant-[a-zA-Z0-9\-]{20,}`),
	regexp.MustCompile(`(?i)sk-[a-zA-Z0-9]{20,}`),
	regexp.MustCompile(`AIza[a-zA-Z0-9\-_]{35}`),
	regexp.MustCompile(`(?i)gh[po]_[a-zA-Z0-9]{36}`),
	regexp.MustCompile(`(?i)github_pat_[a-zA-Z0-9_]{22,}`),
	regexp.MustCompile(`AKIA[A-Z0-9]{16}`),
	regexp.MustCompile(`(?i)xox[bpsa]-[a-zA-Z0-9\-]{10,}`),
	regexp.MustCompile(`(?i)ya29\.[a-zA-Z0-9_\-]{50,}`),
	regexp.MustCompile(`(?i)eyJ[a-zA-Z0-9_\-]{20,}\.eyJ[a-zA-Z0-9_\-]+`),
	regexp.MustCompile(`(?i)[sr]k_(?:live|test)_[a-zA-Z0-9]{24,}`),
	regexp.MustCompile(`(?i)(?:postgres|mysql|mongodb|redis)://\S+@\S+`),
	regexp.MustCompile(`-{5}BEGIN (?:RSA |EC |DSA )?PRIVATE KEY-{5}`),
	regexp.MustCompile(`(?i)bearer\s+[a-zA-Z0-9\-_.]{20,}`),
	regexp.MustCompile(`(?i)(?:api[_-]?key|api[_-]?secret|access[_-]?token|secret[_-]?key|private[_-]?key|auth[_-]?token)\s*[:=]\s*["']?[a-zA-Z0-9\-_.]{16,}["']?`),
	regexp.MustCompile(`(?i)(?:password|passwd|pwd)\s*[:=]\s*["']?[^\s"']{8,}["']?`),
}

// ContainsSecrets reports whether text matches any known secret pattern.
func ContainsSecrets(text string) bool {
	for _, p := range secretPatterns {
		if p.MatchString(text) {
			return true
		}
	}
	return false
}

// SanitizeLines replaces each line that contains a secret with the
// redaction placeholder. Clean lines pass through unchanged.
func SanitizeLines(text string) string {
	if !ContainsSecrets(text) {
		return text
	}
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		if ContainsSecrets(line) {
			lines[i] = RedactedPlaceholder
		}
	}
	return strings.Join(lines, "\n")
}

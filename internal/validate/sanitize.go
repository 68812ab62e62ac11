// Package validate implements the two-phase Schema & Business Validator
// (§4.4): markdown pre-sanitisation, Draft 2020-12 JSON-Schema subset
// validation with type coercion, business-rule checks, and failure
// categorisation for the retry-recovery scan (§4.5).
package validate

import "strings"

// Sanitize strips a surrounding markdown code fence (```json ... ``` or
// ``` ... ```) from a raw LLM response before schema validation (§4.4
// "Pre-sanitisation"). The caller is responsible for keeping the original,
// untouched text around as raw_response for failure records — Sanitize
// never mutates its input string, only returns a cleaned copy.
func Sanitize(raw string) string {
	s := strings.TrimSpace(raw)
	if !strings.HasPrefix(s, "```") {
		return s
	}

	lines := strings.SplitN(s, "\n", 2)
	if len(lines) < 2 {
		return s
	}
	first := strings.TrimSpace(lines[0])
	rest := lines[1]

	// First line is the fence, optionally tagged with a language ("```json").
	if first != "```" && !strings.HasPrefix(first, "```") {
		return s
	}

	rest = strings.TrimRight(rest, " \t\n")
	closeIdx := strings.LastIndex(rest, "```")
	if closeIdx == -1 {
		return s
	}
	return strings.TrimSpace(rest[:closeIdx])
}

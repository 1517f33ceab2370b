package redact

import "regexp"

// Pattern defines a credential detection pattern.
type Pattern struct {
	Name  string
	Regex *regexp.Regexp
	// Replacement is the regexp template for a match; empty means Placeholder.
	Replacement string
}

// DefaultPatterns returns the built-in credential patterns. They cover the
// key formats of the supported vendors plus generic secrets that can surface
// in provider or driver error messages.
func DefaultPatterns() []Pattern {
	return []Pattern{
		{
			Name:  "OpenAI Key",
			Regex: regexp.MustCompile(`sk-(?:proj-|svcacct-|admin-)?[A-Za-z0-9_\-]{16,}`),
		},
		{
			Name:  "Anthropic Key",
			Regex: regexp.MustCompile(`sk-ant-[A-Za-z0-9_\-]{16,}`),
		},
		{
			Name:  "Google API Key",
			Regex: regexp.MustCompile(`AIza[0-9A-Za-z_\-]{35}`),
		},
		{
			Name:  "Bearer Token",
			Regex: regexp.MustCompile(`(?i)bearer\s+[A-Za-z0-9._\-]{8,}`),
		},
		{
			Name:        "Key Query Parameter",
			Regex:       regexp.MustCompile(`(?i)([?&](?:key|api_key)=)[^&\s"\[]+`),
			Replacement: "${1}" + Placeholder,
		},
		{
			Name:  "Connection String",
			Regex: regexp.MustCompile(`(?:postgres|postgresql|mysql|redis)://[^\s]+`),
		},
		{
			Name:  "Private Key",
			Regex: regexp.MustCompile(`-----BEGIN (?:RSA |EC |DSA )?PRIVATE KEY-----`),
		},
	}
}

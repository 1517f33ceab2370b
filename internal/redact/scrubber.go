package redact

import "strings"

const Placeholder = "[REDACTED]"

// Scrubber removes credentials from free text before it is logged or stored.
type Scrubber struct {
	patterns []Pattern
}

// NewScrubber creates a scrubber with the default patterns.
func NewScrubber() *Scrubber {
	return &Scrubber{patterns: DefaultPatterns()}
}

// Scrub replaces every literal (typically the provider credential in use)
// and every pattern match in text with the placeholder.
func (s *Scrubber) Scrub(text string, literals ...string) string {
	for _, lit := range literals {
		if len(lit) >= 4 {
			text = strings.ReplaceAll(text, lit, Placeholder)
		}
	}
	for _, p := range s.patterns {
		repl := p.Replacement
		if repl == "" {
			repl = Placeholder
		}
		text = p.Regex.ReplaceAllString(text, repl)
	}
	return text
}

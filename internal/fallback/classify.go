package fallback

import "strings"

// Classifier detects rate-limit signatures in agent output.
type Classifier struct {
	patterns []string
}

// NewClassifier lower-cases and keeps the non-blank patterns.
func NewClassifier(patterns []string) Classifier {
	c := Classifier{}
	for _, p := range patterns {
		p = strings.ToLower(strings.TrimSpace(p))
		if p != "" {
			c.patterns = append(c.patterns, p)
		}
	}
	return c
}

// RateLimited reports whether the combined output contains any pattern.
func (c Classifier) RateLimited(stdout, stderr string) bool {
	lower := strings.ToLower(combine(stdout, stderr))
	for _, p := range c.patterns {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}

func combine(stdout, stderr string) string {
	parts := make([]string, 0, 2)
	for _, s := range []string{stdout, stderr} {
		if s = strings.TrimSpace(s); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, "\n")
}

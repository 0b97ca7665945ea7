package source

import "strings"

// DefaultDomains are the categories used when none are configured.
var DefaultDomains = []string{"cs.AI", "cs.LG", "cs.RO", "cs.CV"}

// ClassifyDomain picks the first candidate whose subject code (the part
// after the last dot, e.g. "RO" in "cs.RO") occurs in text. Without a match
// it falls back to the first candidate.
func ClassifyDomain(text string, candidates []string) string {
	if len(candidates) == 0 {
		candidates = DefaultDomains
	}
	if text == "" {
		return candidates[0]
	}

	lower := strings.ToLower(text)
	for _, c := range candidates {
		code := c
		if i := strings.LastIndex(c, "."); i >= 0 {
			code = c[i+1:]
		}
		if strings.Contains(lower, strings.ToLower(code)) {
			return c
		}
	}
	return candidates[0]
}

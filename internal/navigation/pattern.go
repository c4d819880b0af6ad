package navigation

import "strings"

// Patterns emitted by Analyze.
const (
	PatternDocument = "document"
	PatternAdmin    = "admin"
)

// transition matches a consecutive (previous, current) pair of paths by
// substring.
type transition struct {
	from, to string
	pattern  string
}

var transitions = []transition{
	{from: "contrato", to: "documento", pattern: PatternDocument},
	{from: "dashboard", to: "admin", pattern: PatternAdmin},
}

// Analyze scans consecutive pairs of history and returns the patterns they
// exhibit, de-duplicated in order of first occurrence. Histories shorter
// than two entries yield an empty result. Matching is case sensitive.
func Analyze(history []string) []string {
	patterns := []string{}
	if len(history) < 2 {
		return patterns
	}

	seen := make(map[string]bool, len(transitions))
	for i := 1; i < len(history); i++ {
		prev, curr := history[i-1], history[i]
		for _, t := range transitions {
			if seen[t.pattern] {
				continue
			}
			if strings.Contains(prev, t.from) && strings.Contains(curr, t.to) {
				seen[t.pattern] = true
				patterns = append(patterns, t.pattern)
			}
		}
	}
	return patterns
}

// Has reports whether pattern is present in patterns.
func Has(patterns []string, pattern string) bool {
	for _, p := range patterns {
		if p == pattern {
			return true
		}
	}
	return false
}

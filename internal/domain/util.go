package domain

import "strings"

// normalize lowercases and trims a string for case-insensitive comparisons,
// used by the tag/list matching of segment evaluation (§4.9) and of
// the condition.has_tag step via HasTag.
func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// containsNormalized reports whether needle equals or is a substring of any
// element of haystack, case-insensitively. Empty needle always matches.
func containsNormalized(haystack []string, needle string) bool {
	n := normalize(needle)
	if n == "" {
		return true
	}
	for _, h := range haystack {
		hn := normalize(h)
		if hn == n || strings.Contains(hn, n) {
			return true
		}
	}
	return false
}

func strPtr(s string) *string { return &s }
func intPtr(i int) *int       { return &i }

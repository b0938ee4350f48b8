package duplicate

import (
	"regexp"
	"strings"
)

var wordPattern = regexp.MustCompile(`[a-zA-Z0-9_]+`)

// tokenSet lowercases and splits content into a deduplicated word set
// (lowercase, alphanumeric runs), mirroring the search tokenizer's
// normalization.
func tokenSet(content string) map[string]struct{} {
	words := wordPattern.FindAllString(strings.ToLower(content), -1)
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[w] = struct{}{}
	}
	return set
}

// jaccard returns the normalized token-set Jaccard similarity of a and b.
func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	intersection := 0
	for w := range a {
		if _, ok := b[w]; ok {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

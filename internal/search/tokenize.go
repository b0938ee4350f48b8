package search

import (
	"regexp"
	"strings"
)

// minTokenLength excludes short, low-signal tokens (articles, "a", "is", ...)
// from the keyword index without needing an exhaustive stopword list for them.
const minTokenLength = 3

var tokenPattern = regexp.MustCompile(`[a-zA-Z0-9_]+`)

// stopwords are common English words frequent enough to be useless as
// keyword-index discriminators.
var stopwords = map[string]struct{}{
	"what": {}, "when": {}, "where": {}, "which": {}, "who": {}, "why": {}, "how": {},
	"tell": {}, "show": {}, "find": {}, "get": {}, "give": {}, "let": {}, "make": {},
	"did": {}, "does": {}, "can": {}, "could": {}, "would": {}, "should": {}, "will": {},
	"the": {}, "this": {}, "that": {}, "these": {}, "those": {}, "and": {}, "for": {},
	"are": {}, "was": {}, "were": {}, "has": {}, "have": {}, "had": {}, "been": {},
	"about": {}, "from": {}, "into": {}, "with": {}, "you": {}, "your": {}, "our": {},
}

// tokenize lowercases content, splits on non-alphanumeric runs, and drops
// short words and stopwords, for use as keyword-index postings.
func tokenize(content string) []string {
	matches := tokenPattern.FindAllString(strings.ToLower(content), -1)
	tokens := make([]string, 0, len(matches))
	for _, m := range matches {
		if len(m) < minTokenLength {
			continue
		}
		if _, stop := stopwords[m]; stop {
			continue
		}
		tokens = append(tokens, m)
	}
	return tokens
}

// uniqueTokens deduplicates while preserving first-seen order.
func uniqueTokens(tokens []string) []string {
	seen := make(map[string]struct{}, len(tokens))
	out := make([]string, 0, len(tokens))
	for _, t := range tokens {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

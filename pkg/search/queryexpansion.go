package search

import (
	"regexp"
	"strings"
)

// stopWords mirrors a standard English stopword list; kept small and
// unexported since it is an implementation detail of fulltext matching.
var stopWords = map[string]bool{
	"a": true, "an": true, "and": true, "are": true, "as": true, "at": true,
	"be": true, "but": true, "by": true, "for": true, "if": true, "in": true,
	"into": true, "is": true, "it": true, "no": true, "not": true, "of": true,
	"on": true, "or": true, "such": true, "that": true, "the": true,
	"their": true, "then": true, "there": true, "these": true, "they": true,
	"this": true, "to": true, "was": true, "will": true, "with": true,
	"what": true, "which": true, "who": true, "whom": true, "how": true,
	"do": true, "does": true, "did": true, "can": true, "could": true,
	"should": true, "would": true, "i": true, "you": true, "we": true,
}

var tokenPattern = regexp.MustCompile(`[A-Za-z0-9]+`)

// extractKeywords tokenizes query, lowercases, and drops stopwords and
// single-character tokens, returning the remaining keywords in order of
// first appearance.
func extractKeywords(query string) []string {
	tokens := tokenPattern.FindAllString(strings.ToLower(query), -1)
	keywords := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		if len(tok) < 2 || stopWords[tok] {
			continue
		}
		keywords = append(keywords, tok)
	}
	return keywords
}

// expandQuery returns the keyword-extracted form of query for fulltext
// matching, falling back to the original query when expansion yields
// nothing (all stopwords, or a non-alphanumeric query).
func expandQuery(query string) string {
	keywords := extractKeywords(query)
	if len(keywords) == 0 {
		return query
	}
	return strings.Join(keywords, " ")
}

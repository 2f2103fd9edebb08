package pipeline

import (
	"sort"
	"strings"
	"unicode"
)

// stopwords are tokens that carry no topical signal in social media text.
var stopwords = map[string]bool{
	"about": true, "after": true, "all": true, "also": true, "and": true,
	"any": true, "are": true, "because": true, "been": true, "before": true,
	"being": true, "but": true, "can": true, "could": true, "did": true,
	"does": true, "for": true, "from": true, "had": true, "has": true,
	"have": true, "her": true, "here": true, "him": true, "his": true,
	"how": true, "into": true, "its": true, "just": true, "like": true,
	"more": true, "most": true, "not": true, "now": true, "only": true,
	"other": true, "our": true, "out": true, "over": true, "she": true,
	"some": true, "than": true, "that": true, "the": true, "their": true,
	"them": true, "then": true, "there": true, "these": true, "they": true,
	"this": true, "under": true, "very": true, "was": true, "were": true,
	"what": true, "when": true, "where": true, "which": true, "who": true,
	"why": true, "will": true, "with": true, "would": true, "you": true,
	"your": true,
	// Link fragments and platform artifacts
	"amp": true, "com": true, "http": true, "https": true, "www": true,
}

// ExtractKeywords returns the most frequent topical words of a text, most
// frequent first with ties broken alphabetically. Tokens shorter than three
// characters, stopwords and plain numbers are skipped.
func ExtractKeywords(text string, limit int) []string {
	if limit <= 0 {
		return []string{}
	}

	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})

	counts := map[string]int{}
	for _, word := range words {
		if len(word) < 3 || stopwords[word] || numeric(word) {
			continue
		}
		counts[word]++
	}

	keywords := make([]string, 0, len(counts))
	for word := range counts {
		keywords = append(keywords, word)
	}
	sort.Slice(keywords, func(i, j int) bool {
		if counts[keywords[i]] != counts[keywords[j]] {
			return counts[keywords[i]] > counts[keywords[j]]
		}
		return keywords[i] < keywords[j]
	})

	if len(keywords) > limit {
		keywords = keywords[:limit]
	}
	return keywords
}

func numeric(word string) bool {
	for _, r := range word {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

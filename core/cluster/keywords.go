package cluster

import (
	"sort"
	"strings"

	"github.com/siherrmann/narrative/model"
)

// labelKeywords is how many top keywords make up a narrative label.
const labelKeywords = 3

// keywordCounts counts keyword frequencies over a batch of mentions.
// Existing narrative keywords each count once so an established vocabulary
// is not erased by one small batch.
func keywordCounts(batch []*model.EnrichedMention, existing []string) map[string]int {
	counts := map[string]int{}
	for _, keyword := range existing {
		counts[strings.ToLower(keyword)]++
	}
	for _, mention := range batch {
		for _, keyword := range mention.Keywords {
			counts[strings.ToLower(keyword)]++
		}
	}
	return counts
}

// topKeywords returns the most frequent keywords, ties broken alphabetically.
func topKeywords(counts map[string]int, limit int) []string {
	keywords := make([]string, 0, len(counts))
	for keyword := range counts {
		keywords = append(keywords, keyword)
	}

	sort.Slice(keywords, func(i, j int) bool {
		if counts[keywords[i]] != counts[keywords[j]] {
			return counts[keywords[i]] > counts[keywords[j]]
		}
		return keywords[i] < keywords[j]
	})

	if limit > 0 && len(keywords) > limit {
		keywords = keywords[:limit]
	}
	return keywords
}

// mergeKeywords refreshes a narrative keyword set with the keywords of an
// assigned batch.
func mergeKeywords(existing []string, batch []*model.EnrichedMention, limit int) []string {
	return topKeywords(keywordCounts(batch, existing), limit)
}

// keywordLabel derives a short display label from the top keywords.
func keywordLabel(keywords []string) string {
	if len(keywords) > labelKeywords {
		keywords = keywords[:labelKeywords]
	}
	return strings.Join(keywords, " ")
}

// categorize picks the first configured category with a trigger keyword
// among the narrative keywords or member entities. Categories are checked in
// alphabetical order, without a match the narrative lands in "general".
func (e *Engine) categorize(keywords []string, members []*model.EnrichedMention) string {
	if len(e.config.Categories) == 0 {
		return "general"
	}

	terms := map[string]bool{}
	for _, keyword := range keywords {
		terms[strings.ToLower(keyword)] = true
	}
	for _, member := range members {
		for _, values := range member.Entities {
			for _, value := range values {
				terms[strings.ToLower(value)] = true
			}
		}
	}

	categories := make([]string, 0, len(e.config.Categories))
	for category := range e.config.Categories {
		categories = append(categories, category)
	}
	sort.Strings(categories)

	for _, category := range categories {
		for _, trigger := range e.config.Categories[category] {
			if terms[strings.ToLower(trigger)] {
				return category
			}
		}
	}

	return "general"
}

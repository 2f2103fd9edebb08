package normalizer

import (
	"strings"
	"unicode"

	"github.com/siherrmann/narrative/model"
)

// Result reports the outcome of normalizing one batch of raw records.
// Rejected records are counted and reported, they never fail the batch.
type Result struct {
	Mentions   []*model.Mention
	Dropped    int
	Duplicates int
	Filtered   int
	Errors     []*model.ValidationError
}

// Normalizer validates, cleans, deduplicates and language-filters raw
// connector records. It performs no I/O.
type Normalizer struct {
	languages     map[string]bool
	maxTextLength int
}

// NewNormalizer creates a normalizer from the engine configuration.
// An empty language list admits every language.
func NewNormalizer(config *model.EngineConfig) *Normalizer {
	languages := map[string]bool{}
	for _, lang := range config.Languages {
		languages[strings.ToLower(strings.TrimSpace(lang))] = true
	}

	return &Normalizer{
		languages:     languages,
		maxTextLength: config.MaxTextLength,
	}
}

// Normalize converts a batch of raw records into mentions. Records missing a
// required field are dropped with a validation error, duplicates of the key
// (source, source_id) keep the first record, mentions in languages outside
// the allow-list are counted as filtered. Mentions without a language tag
// are admitted.
func (n *Normalizer) Normalize(records []*model.RawMention) *Result {
	result := &Result{}
	seen := map[string]bool{}

	for _, record := range records {
		if record == nil {
			result.Dropped++
			result.Errors = append(result.Errors, &model.ValidationError{
				Field:  "record",
				Reason: "is missing",
			})
			continue
		}

		source := strings.TrimSpace(record.Source)
		sourceID := strings.TrimSpace(record.SourceID)

		if validationError := validateRecord(record, source, sourceID); validationError != nil {
			result.Dropped++
			result.Errors = append(result.Errors, validationError)
			continue
		}

		text := cleanText(record.Text, n.maxTextLength)
		if text == "" {
			result.Dropped++
			result.Errors = append(result.Errors, &model.ValidationError{
				Source:   source,
				SourceID: sourceID,
				Field:    "text",
				Reason:   "is empty",
			})
			continue
		}

		lang := strings.ToLower(strings.TrimSpace(record.Lang))
		if len(n.languages) > 0 && lang != "" && !n.languages[lang] {
			result.Filtered++
			continue
		}

		key := source + "/" + sourceID
		if seen[key] {
			result.Duplicates++
			continue
		}
		seen[key] = true

		entities := ExtractEntities(text)
		for kind, values := range record.Entities {
			for _, value := range values {
				appendEntity(entities, kind, value)
			}
		}

		metrics := record.Metrics
		if metrics == nil {
			metrics = model.Metrics{}
		}

		result.Mentions = append(result.Mentions, &model.Mention{
			Source:    source,
			SourceID:  sourceID,
			Author:    strings.TrimSpace(record.Author),
			Text:      text,
			URL:       strings.TrimSpace(record.URL),
			CreatedAt: record.CreatedAt,
			Metrics:   metrics,
			Lang:      lang,
			Entities:  entities,
		})
	}

	return result
}

func validateRecord(record *model.RawMention, source string, sourceID string) *model.ValidationError {
	if source == "" {
		return &model.ValidationError{
			Source:   source,
			SourceID: sourceID,
			Field:    "source",
			Reason:   "is required",
		}
	}
	if sourceID == "" {
		return &model.ValidationError{
			Source:   source,
			SourceID: sourceID,
			Field:    "source_id",
			Reason:   "is required",
		}
	}
	if record.CreatedAt.IsZero() {
		return &model.ValidationError{
			Source:   source,
			SourceID: sourceID,
			Field:    "created_at",
			Reason:   "is required",
		}
	}
	return nil
}

// cleanText replaces control characters, collapses runs of whitespace into
// single spaces and truncates to maxLength runes.
func cleanText(text string, maxLength int) string {
	var builder strings.Builder
	for _, r := range text {
		if unicode.IsControl(r) {
			builder.WriteRune(' ')
			continue
		}
		builder.WriteRune(r)
	}

	cleaned := strings.Join(strings.Fields(builder.String()), " ")

	runes := []rune(cleaned)
	if maxLength > 0 && len(runes) > maxLength {
		cleaned = strings.TrimSpace(string(runes[:maxLength]))
	}

	return cleaned
}

// ExtractEntities extracts tickers ($SOL), hashtags (#memecoin), URLs and
// user mentions (@name, u/name) from mention text.
// Tickers are uppercased and must be alphabetic with at most 10 characters,
// hashtags are lowercased.
func ExtractEntities(text string) model.EntitySet {
	entities := model.EntitySet{}

	for _, word := range strings.Fields(text) {
		switch {
		case strings.HasPrefix(word, "$") && len(word) > 1:
			ticker := strings.ToUpper(strings.Trim(word[1:], ".,!?"))
			if isAlpha(ticker) && len(ticker) <= 10 {
				appendEntity(entities, "tickers", ticker)
			}
		case strings.HasPrefix(word, "#") && len(word) > 1:
			hashtag := strings.ToLower(strings.Trim(word[1:], ".,!?"))
			if hashtag != "" {
				appendEntity(entities, "hashtags", hashtag)
			}
		case strings.HasPrefix(word, "http://"), strings.HasPrefix(word, "https://"):
			appendEntity(entities, "urls", word)
		case strings.HasPrefix(word, "u/") && len(word) > 2:
			appendEntity(entities, "mentions", word[2:])
		case strings.HasPrefix(word, "@") && len(word) > 1:
			appendEntity(entities, "mentions", word[1:])
		}
	}

	return entities
}

func appendEntity(entities model.EntitySet, kind string, value string) {
	for _, existing := range entities[kind] {
		if existing == value {
			return
		}
	}
	entities[kind] = append(entities[kind], value)
}

func isAlpha(word string) bool {
	if word == "" {
		return false
	}
	for _, r := range word {
		if !unicode.IsLetter(r) {
			return false
		}
	}
	return true
}

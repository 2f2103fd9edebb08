package normalizer

import (
	"testing"
	"time"

	"github.com/siherrmann/narrative/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRawMention(sourceID string, text string) *model.RawMention {
	return &model.RawMention{
		Source:    "twitter",
		SourceID:  sourceID,
		Author:    "author_a",
		Text:      text,
		CreatedAt: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		Metrics:   model.Metrics{"likes": 10},
		Lang:      "en",
	}
}

func TestNormalize(t *testing.T) {
	normalizer := NewNormalizer(model.DefaultEngineConfig())

	t.Run("Valid batch", func(t *testing.T) {
		result := normalizer.Normalize([]*model.RawMention{
			testRawMention("1", "New memecoin $DOGE looks wild"),
			testRawMention("2", "Another post about #ai agents"),
		})

		require.Len(t, result.Mentions, 2, "Expected all valid records to normalize")
		assert.Equal(t, 0, result.Dropped)
		assert.Equal(t, 0, result.Duplicates)
		assert.Equal(t, 0, result.Filtered)
		assert.Empty(t, result.Errors)
		assert.Equal(t, "twitter", result.Mentions[0].Source)
		assert.Equal(t, "New memecoin $DOGE looks wild", result.Mentions[0].Text)
	})

	t.Run("Missing required fields are dropped with errors", func(t *testing.T) {
		noSource := testRawMention("3", "text")
		noSource.Source = ""
		noSourceID := testRawMention("", "text")
		noCreatedAt := testRawMention("4", "text")
		noCreatedAt.CreatedAt = time.Time{}

		result := normalizer.Normalize([]*model.RawMention{
			noSource,
			noSourceID,
			noCreatedAt,
			testRawMention("5", "valid text"),
		})

		require.Len(t, result.Mentions, 1, "Expected only the valid record to survive")
		assert.Equal(t, 3, result.Dropped)
		require.Len(t, result.Errors, 3, "Expected one error per dropped record")
		assert.Equal(t, "source", result.Errors[0].Field)
		assert.Equal(t, "source_id", result.Errors[1].Field)
		assert.Equal(t, "created_at", result.Errors[2].Field)
	})

	t.Run("Nil record is dropped", func(t *testing.T) {
		result := normalizer.Normalize([]*model.RawMention{nil, testRawMention("6", "text")})

		require.Len(t, result.Mentions, 1)
		assert.Equal(t, 1, result.Dropped)
		require.Len(t, result.Errors, 1)
		assert.Equal(t, "record", result.Errors[0].Field)
	})

	t.Run("Whitespace only text is dropped", func(t *testing.T) {
		result := normalizer.Normalize([]*model.RawMention{testRawMention("7", " \t\n ")})

		assert.Empty(t, result.Mentions)
		assert.Equal(t, 1, result.Dropped)
		require.Len(t, result.Errors, 1)
		assert.Equal(t, "text", result.Errors[0].Field)
	})

	t.Run("Duplicates keep the first record", func(t *testing.T) {
		first := testRawMention("8", "first text")
		second := testRawMention("8", "second text")

		result := normalizer.Normalize([]*model.RawMention{first, second})

		require.Len(t, result.Mentions, 1)
		assert.Equal(t, 1, result.Duplicates)
		assert.Equal(t, "first text", result.Mentions[0].Text)
	})

	t.Run("Language filter counts filtered mentions", func(t *testing.T) {
		german := testRawMention("9", "ein deutscher post")
		german.Lang = "de"

		result := normalizer.Normalize([]*model.RawMention{german, testRawMention("10", "an english post")})

		require.Len(t, result.Mentions, 1)
		assert.Equal(t, 1, result.Filtered)
		assert.Empty(t, result.Errors, "Expected filtered mentions to not be errors")
	})

	t.Run("Missing language tag is admitted", func(t *testing.T) {
		untagged := testRawMention("11", "untagged post")
		untagged.Lang = ""

		result := normalizer.Normalize([]*model.RawMention{untagged})

		require.Len(t, result.Mentions, 1)
		assert.Equal(t, 0, result.Filtered)
	})

	t.Run("Empty language list admits everything", func(t *testing.T) {
		config := model.DefaultEngineConfig()
		config.Languages = nil
		openNormalizer := NewNormalizer(config)

		german := testRawMention("12", "ein deutscher post")
		german.Lang = "de"

		result := openNormalizer.Normalize([]*model.RawMention{german})

		require.Len(t, result.Mentions, 1)
		assert.Equal(t, 0, result.Filtered)
	})

	t.Run("Text is cleaned and truncated", func(t *testing.T) {
		config := model.DefaultEngineConfig()
		config.MaxTextLength = 20
		shortNormalizer := NewNormalizer(config)

		messy := testRawMention("13", "  spaced\t\tout\ntext that runs far past the limit  ")

		result := shortNormalizer.Normalize([]*model.RawMention{messy})

		require.Len(t, result.Mentions, 1)
		assert.Equal(t, "spaced out text that", result.Mentions[0].Text)
		assert.LessOrEqual(t, len(result.Mentions[0].Text), 20)
	})

	t.Run("Nil metrics become an empty map", func(t *testing.T) {
		raw := testRawMention("14", "text without metrics")
		raw.Metrics = nil

		result := normalizer.Normalize([]*model.RawMention{raw})

		require.Len(t, result.Mentions, 1)
		assert.NotNil(t, result.Mentions[0].Metrics)
	})

	t.Run("Connector entities are merged with extracted ones", func(t *testing.T) {
		raw := testRawMention("15", "everyone shilling $WIF today")
		raw.Entities = model.EntitySet{
			"tickers":   {"WIF", "SOL"},
			"subreddit": {"CryptoMoonShots"},
		}

		result := normalizer.Normalize([]*model.RawMention{raw})

		require.Len(t, result.Mentions, 1)
		entities := result.Mentions[0].Entities
		assert.Equal(t, []string{"WIF", "SOL"}, entities["tickers"], "Expected connector tickers merged without duplicates")
		assert.Equal(t, []string{"CryptoMoonShots"}, entities["subreddit"])
	})
}

func TestExtractEntities(t *testing.T) {
	t.Run("Extracts tickers", func(t *testing.T) {
		entities := ExtractEntities("buying $sol and $WIF, selling $BTC.")

		assert.Equal(t, []string{"SOL", "WIF", "BTC"}, entities["tickers"])
	})

	t.Run("Rejects non alphabetic and too long tickers", func(t *testing.T) {
		entities := ExtractEntities("$100 gains on $VERYLONGTICKER and $A1B")

		assert.Empty(t, entities["tickers"])
	})

	t.Run("Extracts hashtags lowercased", func(t *testing.T) {
		entities := ExtractEntities("#Memecoin season is back #AI")

		assert.Equal(t, []string{"memecoin", "ai"}, entities["hashtags"])
	})

	t.Run("Extracts urls", func(t *testing.T) {
		entities := ExtractEntities("read https://example.com/post and http://example.org")

		assert.Equal(t, []string{"https://example.com/post", "http://example.org"}, entities["urls"])
	})

	t.Run("Extracts user mentions", func(t *testing.T) {
		entities := ExtractEntities("u/degen_trader and @whale_alert called it")

		assert.Equal(t, []string{"degen_trader", "whale_alert"}, entities["mentions"])
	})

	t.Run("Deduplicates per kind", func(t *testing.T) {
		entities := ExtractEntities("$WIF $WIF $WIF to the moon")

		assert.Equal(t, []string{"WIF"}, entities["tickers"])
	})

	t.Run("Empty text", func(t *testing.T) {
		entities := ExtractEntities("")

		assert.NotNil(t, entities)
		assert.Empty(t, entities)
	})
}

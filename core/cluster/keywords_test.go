package cluster

import (
	"testing"
	"time"

	"github.com/siherrmann/narrative/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTopKeywords(t *testing.T) {
	t.Run("Orders by frequency then alphabetically", func(t *testing.T) {
		counts := map[string]int{"moon": 1, "doge": 3, "wild": 1, "ai": 2}

		keywords := topKeywords(counts, 10)

		assert.Equal(t, []string{"doge", "ai", "moon", "wild"}, keywords)
	})

	t.Run("Respects the limit", func(t *testing.T) {
		counts := map[string]int{"a": 3, "b": 2, "c": 1}

		keywords := topKeywords(counts, 2)

		assert.Equal(t, []string{"a", "b"}, keywords)
	})

	t.Run("Empty counts", func(t *testing.T) {
		keywords := topKeywords(map[string]int{}, 5)

		assert.Empty(t, keywords)
	})
}

func TestMergeKeywords(t *testing.T) {
	t.Run("Batch keywords outrank existing singles", func(t *testing.T) {
		batch := []*model.EnrichedMention{
			testEnriched("1", testBase, []float32{1, 0, 0}, "fresh"),
			testEnriched("2", testBase, []float32{1, 0, 0}, "fresh"),
		}

		keywords := mergeKeywords([]string{"legacy"}, batch, 8)

		assert.Equal(t, []string{"fresh", "legacy"}, keywords)
	})

	t.Run("Existing keywords survive an empty batch", func(t *testing.T) {
		keywords := mergeKeywords([]string{"legacy", "vocabulary"}, nil, 8)

		assert.Equal(t, []string{"legacy", "vocabulary"}, keywords)
	})

	t.Run("Keywords are lowercased", func(t *testing.T) {
		batch := []*model.EnrichedMention{
			testEnriched("3", testBase, []float32{1, 0, 0}, "DOGE", "doge"),
		}

		keywords := mergeKeywords(nil, batch, 8)

		assert.Equal(t, []string{"doge"}, keywords)
	})
}

func TestKeywordLabel(t *testing.T) {
	t.Run("Joins the top keywords", func(t *testing.T) {
		assert.Equal(t, "doge moon wild", keywordLabel([]string{"doge", "moon", "wild", "extra"}))
	})

	t.Run("Short keyword lists", func(t *testing.T) {
		assert.Equal(t, "doge", keywordLabel([]string{"doge"}))
		assert.Equal(t, "", keywordLabel(nil))
	})
}

func TestCategorize(t *testing.T) {
	config := model.DefaultEngineConfig()
	config.Categories = map[string][]string{
		"memecoin": {"doge", "wif"},
		"ai":       {"agent", "llm"},
	}
	engine := NewEngine(config)

	t.Run("Keyword trigger", func(t *testing.T) {
		category := engine.categorize([]string{"doge", "moon"}, nil)

		assert.Equal(t, "memecoin", category)
	})

	t.Run("Entity trigger", func(t *testing.T) {
		member := testEnriched("1", testBase, []float32{1, 0, 0})
		member.Entities = model.EntitySet{"tickers": {"WIF"}}

		category := engine.categorize([]string{"launch"}, []*model.EnrichedMention{member})

		assert.Equal(t, "memecoin", category)
	})

	t.Run("First matching category in alphabetical order wins", func(t *testing.T) {
		category := engine.categorize([]string{"doge", "agent"}, nil)

		assert.Equal(t, "ai", category)
	})

	t.Run("No match lands in general", func(t *testing.T) {
		category := engine.categorize([]string{"unrelated"}, nil)

		assert.Equal(t, "general", category)
	})

	t.Run("No rules configured", func(t *testing.T) {
		unruled := NewEngine(model.DefaultEngineConfig())

		category := unruled.categorize([]string{"doge"}, nil)

		assert.Equal(t, "general", category)
	})

	t.Run("Cluster seed carries its category", func(t *testing.T) {
		members := []*model.EnrichedMention{
			testEnriched("2", testBase.Add(1*time.Minute), []float32{0, 1, 0}, "doge"),
			testEnriched("3", testBase.Add(2*time.Minute), []float32{0, 1, 0}, "doge"),
			testEnriched("4", testBase.Add(3*time.Minute), []float32{0, 1, 0}, "doge"),
		}

		result := engine.Assign(members, nil)

		require.Len(t, result.Created, 1)
		assert.Equal(t, "memecoin", result.Created[0].Category)
	})
}

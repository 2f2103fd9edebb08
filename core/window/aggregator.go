package window

import (
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/siherrmann/narrative/model"
)

// Aggregator computes per-narrative statistics over closed time windows.
type Aggregator struct {
	config *model.EngineConfig
}

// NewAggregator creates an aggregator from the engine configuration.
func NewAggregator(config *model.EngineConfig) *Aggregator {
	return &Aggregator{config: config}
}

// Aggregate computes the statistics of one closed window [start, end) for a
// narrative. Mentions outside the window are ignored, the rest is sorted by
// (created_at, source, source_id) before any float accumulation so rerunning
// over the same closed window produces bit identical stats. priorMentions is
// the mention count of the window directly before. An empty window produces
// a zero valued row, not an error.
func (a *Aggregator) Aggregate(narrativeRID uuid.UUID, windowStart time.Time, windowEnd time.Time, mentions []*model.EnrichedMention, priorMentions int) *model.WindowStats {
	stats := &model.WindowStats{
		NarrativeRID: narrativeRID,
		WindowStart:  windowStart,
		WindowEnd:    windowEnd,
		Sources:      model.SourceShares{},
	}

	sorted := make([]*model.EnrichedMention, 0, len(mentions))
	for _, mention := range mentions {
		if mention.CreatedAt.Before(windowStart) || !mention.CreatedAt.Before(windowEnd) {
			continue
		}
		sorted = append(sorted, mention)
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		if !sorted[i].CreatedAt.Equal(sorted[j].CreatedAt) {
			return sorted[i].CreatedAt.Before(sorted[j].CreatedAt)
		}
		if sorted[i].Source != sorted[j].Source {
			return sorted[i].Source < sorted[j].Source
		}
		return sorted[i].SourceID < sorted[j].SourceID
	})

	stats.Mentions = len(sorted)
	stats.GrowthRate = growthRate(len(sorted), priorMentions)

	if len(sorted) == 0 {
		return stats
	}

	authors := map[string]bool{}
	sourceCounts := map[string]int{}
	var engagement, sentiment, influence, toxicity float64

	for _, mention := range sorted {
		if mention.Author != "" {
			authors[mention.Author] = true
		}
		sourceCounts[mention.Source]++

		for _, metric := range a.config.EngagementMetrics {
			engagement += mention.Metrics[metric]
		}
		sentiment += mention.Sentiment
		influence += mention.Influence
		toxicity += mention.Toxicity
	}

	count := float64(len(sorted))
	stats.UniqueAuthors = len(authors)
	stats.AvgEngagement = engagement / count
	stats.Sentiment = sentiment / count
	stats.AvgInfluence = influence / count
	stats.AvgToxicity = toxicity / count

	for source, mentionCount := range sourceCounts {
		stats.Sources[source] = float64(mentionCount) / count
	}

	return stats
}

// growthRate is (current - prior) / max(prior, 1), never a division by zero.
func growthRate(current int, prior int) float64 {
	denominator := prior
	if denominator < 1 {
		denominator = 1
	}
	return float64(current-prior) / float64(denominator)
}

package cluster

import (
	"math"
	"sort"

	"github.com/google/uuid"
	"github.com/siherrmann/narrative/model"
)

// Result is the outcome of one assignment cycle over a snapshot of active
// narratives. Updates and Created are committed by the caller in one
// transaction, unassigned mentions stay pooled for later cycles.
type Result struct {
	Updates    []*model.CentroidUpdate
	Created    []*model.NarrativeSeed
	Unassigned []*model.EnrichedMention
	Assigned   int
}

// Engine assigns enriched mentions to narratives by cosine similarity
// against the active centroids and groups the leftovers into new narratives.
// Assign is pure over its inputs, the caller owns all I/O.
type Engine struct {
	config *model.EngineConfig
}

// NewEngine creates a cluster engine from the engine configuration.
func NewEngine(config *model.EngineConfig) *Engine {
	return &Engine{config: config}
}

// Assign matches every mention against the active narrative centroids.
// Mentions with a best similarity at or above the merge threshold join that
// narrative, one combined centroid update per narrative and cycle. The rest
// is density clustered into new narratives, mentions in no dense region stay
// unassigned. The result only depends on the inputs, not on their order.
func (e *Engine) Assign(mentions []*model.EnrichedMention, active []*model.Narrative) *Result {
	result := &Result{}

	sorted := make([]*model.EnrichedMention, len(mentions))
	copy(sorted, mentions)
	sort.SliceStable(sorted, func(i, j int) bool {
		if !sorted[i].CreatedAt.Equal(sorted[j].CreatedAt) {
			return sorted[i].CreatedAt.Before(sorted[j].CreatedAt)
		}
		if sorted[i].Source != sorted[j].Source {
			return sorted[i].Source < sorted[j].Source
		}
		return sorted[i].SourceID < sorted[j].SourceID
	})

	narratives := make([]*model.Narrative, len(active))
	copy(narratives, active)
	sort.SliceStable(narratives, func(i, j int) bool {
		if !narratives[i].CreatedAt.Equal(narratives[j].CreatedAt) {
			return narratives[i].CreatedAt.Before(narratives[j].CreatedAt)
		}
		return narratives[i].RID.String() < narratives[j].RID.String()
	})

	batches := map[uuid.UUID][]*model.EnrichedMention{}
	var pool []*model.EnrichedMention

	for _, mention := range sorted {
		match := e.bestMatch(mention, narratives)
		if match == nil {
			pool = append(pool, mention)
			continue
		}
		batches[match.RID] = append(batches[match.RID], mention)
		result.Assigned++
	}

	for _, narrative := range narratives {
		batch := batches[narrative.RID]
		if len(batch) == 0 {
			continue
		}
		result.Updates = append(result.Updates, e.batchUpdate(narrative, batch))
	}

	result.Created, result.Unassigned = e.clusterPool(pool)

	return result
}

// bestMatch returns the active narrative with the highest cosine similarity
// at or above the merge threshold, or nil. Candidates within tie_epsilon of
// the best are resolved towards the narrative with more recent mentions,
// then the older narrative, then the smaller RID.
func (e *Engine) bestMatch(mention *model.EnrichedMention, narratives []*model.Narrative) *model.Narrative {
	if len(mention.Embedding) == 0 || len(narratives) == 0 {
		return nil
	}

	best := -1.0
	similarities := make([]float64, len(narratives))
	for i, narrative := range narratives {
		similarities[i] = CosineSimilarity(mention.Embedding, narrative.Centroid)
		if similarities[i] > best {
			best = similarities[i]
		}
	}

	if best < e.config.MergeThreshold {
		return nil
	}

	var match *model.Narrative
	for i, narrative := range narratives {
		if similarities[i] < e.config.MergeThreshold {
			continue
		}
		if similarities[i] < best && best-similarities[i] >= e.config.TieEpsilon {
			continue
		}
		if match == nil || preferNarrative(narrative, match) {
			match = narrative
		}
	}

	return match
}

// preferNarrative reports whether candidate wins a similarity tie against
// current. Larger recent mention count first, then age, then RID.
func preferNarrative(candidate *model.Narrative, current *model.Narrative) bool {
	if candidate.RecentMentions != current.RecentMentions {
		return candidate.RecentMentions > current.RecentMentions
	}
	if !candidate.CreatedAt.Equal(current.CreatedAt) {
		return candidate.CreatedAt.Before(current.CreatedAt)
	}
	return candidate.RID.String() < current.RID.String()
}

// batchUpdate folds an assignment batch into one combined centroid update,
// new_centroid = alpha * mean(batch) + (1 - alpha) * old_centroid.
func (e *Engine) batchUpdate(narrative *model.Narrative, batch []*model.EnrichedMention) *model.CentroidUpdate {
	mean := meanEmbedding(batch, len(narrative.Centroid))

	alpha := e.config.EwmaAlpha
	centroid := make([]float32, len(narrative.Centroid))
	for i := range centroid {
		centroid[i] = float32(alpha*mean[i] + (1-alpha)*float64(narrative.Centroid[i]))
	}

	lastSeen := narrative.LastSeen
	mentionRIDs := make([]uuid.UUID, 0, len(batch))
	for _, mention := range batch {
		if mention.CreatedAt.After(lastSeen) {
			lastSeen = mention.CreatedAt
		}
		mentionRIDs = append(mentionRIDs, mention.RID)
	}

	keywords := mergeKeywords(narrative.Keywords, batch, e.config.MaxKeywords)

	return &model.CentroidUpdate{
		NarrativeRID:    narrative.RID,
		Centroid:        centroid,
		LastSeen:        lastSeen,
		Label:           keywordLabel(keywords),
		Keywords:        keywords,
		ExpectedVersion: narrative.Version,
		MentionRIDs:     mentionRIDs,
	}
}

// meanEmbedding accumulates the batch mean in float64 so repeated cycles
// over the same batch produce identical centroids.
func meanEmbedding(batch []*model.EnrichedMention, dim int) []float64 {
	mean := make([]float64, dim)
	for _, mention := range batch {
		for i, v := range mention.Embedding {
			if i >= dim {
				break
			}
			mean[i] += float64(v)
		}
	}
	for i := range mean {
		mean[i] /= float64(len(batch))
	}
	return mean
}

// CosineSimilarity computes the cosine similarity of two vectors in float64.
// Vectors of different or zero length have similarity 0.
func CosineSimilarity(a []float32, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}

	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

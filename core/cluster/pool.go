package cluster

import (
	"sort"

	"github.com/coder/hnsw"
	"github.com/google/uuid"
	"github.com/siherrmann/narrative/model"
)

// maxNeighborCandidates caps the HNSW candidate set per pool mention. Dense
// regions larger than the cap are still joined through transitive expansion.
const maxNeighborCandidates = 64

// clusterPool groups the unassigned pool into new narratives with density
// based clustering over the mention embeddings. A mention is a core point
// when at least min_cluster_size pool mentions (itself included) lie within
// pool_epsilon cosine distance. Mentions in no dense region stay unassigned.
func (e *Engine) clusterPool(pool []*model.EnrichedMention) ([]*model.NarrativeSeed, []*model.EnrichedMention) {
	var unassigned []*model.EnrichedMention

	points := make([]*model.EnrichedMention, 0, len(pool))
	for _, mention := range pool {
		if len(mention.Embedding) == 0 {
			unassigned = append(unassigned, mention)
			continue
		}
		points = append(points, mention)
	}

	if len(points) < e.config.MinClusterSize {
		return nil, append(unassigned, points...)
	}

	neighbors := e.poolNeighborhoods(points)

	const unvisited = -1
	const noise = -2
	labels := make([]int, len(points))
	for i := range labels {
		labels[i] = unvisited
	}

	clusterCount := 0
	for i := range points {
		if labels[i] != unvisited {
			continue
		}
		if len(neighbors[i]) < e.config.MinClusterSize {
			labels[i] = noise
			continue
		}

		clusterID := clusterCount
		clusterCount++
		labels[i] = clusterID

		queue := append([]int{}, neighbors[i]...)
		for head := 0; head < len(queue); head++ {
			j := queue[head]
			if labels[j] == noise {
				// Border point of this cluster
				labels[j] = clusterID
			}
			if labels[j] != unvisited {
				continue
			}
			labels[j] = clusterID
			if len(neighbors[j]) >= e.config.MinClusterSize {
				queue = append(queue, neighbors[j]...)
			}
		}
	}

	clusters := make([][]*model.EnrichedMention, clusterCount)
	for i, mention := range points {
		if labels[i] < 0 {
			unassigned = append(unassigned, mention)
			continue
		}
		clusters[labels[i]] = append(clusters[labels[i]], mention)
	}

	var seeds []*model.NarrativeSeed
	for _, members := range clusters {
		if len(members) < e.config.MinClusterSize {
			unassigned = append(unassigned, members...)
			continue
		}
		seeds = append(seeds, e.seedNarrative(members))
	}

	return seeds, unassigned
}

// poolNeighborhoods computes the epsilon neighborhood of every pool mention.
// Candidates come from an HNSW graph over the pool, exactness is restored by
// checking the true cosine distance of every candidate.
func (e *Engine) poolNeighborhoods(points []*model.EnrichedMention) [][]int {
	graph := hnsw.NewGraph[int]()
	graph.Distance = hnsw.CosineDistance
	graph.M = 16
	graph.EfSearch = 32

	for i, mention := range points {
		graph.Add(hnsw.MakeNode(i, mention.Embedding))
	}

	k := len(points)
	if k > maxNeighborCandidates {
		k = maxNeighborCandidates
	}

	neighbors := make([][]int, len(points))
	for i, mention := range points {
		for _, candidate := range graph.Search(mention.Embedding, k) {
			distance := 1 - CosineSimilarity(mention.Embedding, points[candidate.Key].Embedding)
			if distance <= e.config.PoolEpsilon {
				neighbors[i] = append(neighbors[i], candidate.Key)
			}
		}
		sort.Ints(neighbors[i])
	}

	return neighbors
}

// seedNarrative builds a new narrative from a dense cluster. The centroid is
// the mean member embedding, created_at/last_seen span the member mentions
// so replayed cycles recreate identical narratives.
func (e *Engine) seedNarrative(members []*model.EnrichedMention) *model.NarrativeSeed {
	mean := meanEmbedding(members, len(members[0].Embedding))
	centroid := make([]float32, len(mean))
	for i, v := range mean {
		centroid[i] = float32(v)
	}

	createdAt := members[0].CreatedAt
	lastSeen := members[0].CreatedAt
	mentionRIDs := make([]uuid.UUID, 0, len(members))
	for _, member := range members {
		if member.CreatedAt.Before(createdAt) {
			createdAt = member.CreatedAt
		}
		if member.CreatedAt.After(lastSeen) {
			lastSeen = member.CreatedAt
		}
		mentionRIDs = append(mentionRIDs, member.RID)
	}

	keywords := topKeywords(keywordCounts(members, nil), e.config.MaxKeywords)

	return &model.NarrativeSeed{
		Label:       keywordLabel(keywords),
		Category:    e.categorize(keywords, members),
		Centroid:    centroid,
		Keywords:    keywords,
		CreatedAt:   createdAt,
		LastSeen:    lastSeen,
		MentionRIDs: mentionRIDs,
	}
}

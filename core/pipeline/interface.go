package pipeline

import (
	"fmt"
	"time"

	"github.com/siherrmann/narrative/model"
)

// EmbedFunc is a function that generates an embedding vector for text
type EmbedFunc func(text string) ([]float32, error)

// SentimentFunc is a function that scores the sentiment of text
// Returns a value in [-1, 1] where negative values mean negative sentiment
type SentimentFunc func(text string) (float64, error)

// Enricher combines the stages that turn a normalized mention into its
// enrichment. The embedder is required, the sentiment stage is optional.
// Influence and toxicity are left to external enrichment and default to 0.
type Enricher struct {
	Embedder    EmbedFunc
	Sentiment   SentimentFunc // Optional
	MaxKeywords int
}

// NewEnricher creates a new enrichment pipeline around an embedder
func NewEnricher(embedder EmbedFunc, maxKeywords int) *Enricher {
	return &Enricher{
		Embedder:    embedder,
		MaxKeywords: maxKeywords,
	}
}

// SetSentimentAnalyzer sets the sentiment function
func (p *Enricher) SetSentimentAnalyzer(analyzer SentimentFunc) {
	p.Sentiment = analyzer
}

// Enrich runs all stages for a single mention. An embedding failure is
// wrapped so callers can hold the whole batch back and retry later.
func (p *Enricher) Enrich(mention *model.Mention) (*model.Enrichment, error) {
	if mention == nil {
		return nil, fmt.Errorf("mention is nil")
	}

	embedding, err := p.Embedder(mention.Text)
	if err != nil {
		return nil, fmt.Errorf("%w for mention %v: %w", model.ErrEmbeddingUnavailable, mention.RID, err)
	}
	if len(embedding) == 0 {
		return nil, fmt.Errorf("%w for mention %v: empty embedding", model.ErrEmbeddingUnavailable, mention.RID)
	}

	enrichment := &model.Enrichment{
		MentionRID: mention.RID,
		Embedding:  embedding,
		Keywords:   ExtractKeywords(mention.Text, p.MaxKeywords),
		EnrichedAt: time.Now().UTC(),
	}

	if p.Sentiment != nil {
		sentiment, err := p.Sentiment(mention.Text)
		if err != nil {
			return nil, fmt.Errorf("failed to score sentiment for mention %v: %w", mention.RID, err)
		}
		enrichment.Sentiment = sentiment
	}

	return enrichment, nil
}

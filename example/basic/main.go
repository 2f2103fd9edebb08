package main

import (
	"context"
	"fmt"
	"hash/fnv"
	"log"
	"math"
	"strings"
	"time"

	"github.com/siherrmann/narrative"
	"github.com/siherrmann/narrative/core/pipeline"
	"github.com/siherrmann/narrative/helper"
	"github.com/siherrmann/narrative/model"
)

// bagOfWordsEmbedder is a tiny deterministic embedder so the example runs
// without downloading a model. For real embeddings use UseDefaultEnricher.
func bagOfWordsEmbedder(dimension int) pipeline.EmbedFunc {
	return func(text string) ([]float32, error) {
		embedding := make([]float32, dimension)
		for _, word := range strings.Fields(strings.ToLower(text)) {
			h := fnv.New32a()
			h.Write([]byte(strings.Trim(word, ".,!?#$@")))
			embedding[h.Sum32()%uint32(dimension)] += 1
		}
		var norm float64
		for _, v := range embedding {
			norm += float64(v) * float64(v)
		}
		norm = math.Sqrt(norm)
		for i := range embedding {
			embedding[i] = float32(float64(embedding[i]) / norm)
		}
		return embedding, nil
	}
}

func main() {
	// Start a test PostgreSQL container
	teardown, dbPort, err := helper.MustStartPostgresContainer()
	if err != nil {
		log.Fatalf("Failed to start PostgreSQL container: %v", err)
	}
	defer teardown(context.Background())

	// Create database configuration using the container port
	dbConfig := &helper.DatabaseConfiguration{
		Host:     "localhost",
		Port:     dbPort,
		User:     "postgres",
		Password: "postgres",
		Name:     "test_db",
		SSLMode:  "disable",
	}

	config := model.DefaultEngineConfig()
	config.MinClusterSize = 2

	tracker, err := narrative.NewTracker(dbConfig, config)
	if err != nil {
		log.Fatalf("Failed to create tracker: %v", err)
	}
	defer tracker.Close()

	tracker.SetEnricher(pipeline.NewEnricher(bagOfWordsEmbedder(config.EmbeddingDim), config.MaxKeywords))

	ctx := context.Background()
	windowSize := config.WindowSize.Std()
	windowStart := time.Now().UTC().Add(-3 * windowSize).Truncate(windowSize)

	// Ingest a synthetic batch of mentions about two emerging topics
	records := []*model.RawMention{
		{Source: "reddit", SourceID: "sub_1", Author: "degen_dave", Lang: "en", CreatedAt: windowStart.Add(1 * time.Minute), Metrics: model.Metrics{"upvotes": 120, "comments": 40}, Text: "New dog coin narrative forming, everyone is talking about $WOOF"},
		{Source: "reddit", SourceID: "sub_2", Author: "ape_alice", Lang: "en", CreatedAt: windowStart.Add(2 * time.Minute), Metrics: model.Metrics{"upvotes": 80, "comments": 12}, Text: "dog coin szn is back, $WOOF narrative everywhere on my feed"},
		{Source: "x", SourceID: "tw_1", Author: "sol_sam", Lang: "en", CreatedAt: windowStart.Add(3 * time.Minute), Metrics: model.Metrics{"likes": 300, "shares": 50}, Text: "dog coin mania again, the narrative is moving fast #solana"},
		{Source: "x", SourceID: "tw_2", Author: "quiet_quinn", Lang: "en", CreatedAt: windowStart.Add(4 * time.Minute), Metrics: model.Metrics{"likes": 5}, Text: "AI agents on chain are the real story, agent tokens incoming"},
		{Source: "x", SourceID: "tw_3", Author: "bot_barry", Lang: "en", CreatedAt: windowStart.Add(5 * time.Minute), Metrics: model.Metrics{"likes": 9}, Text: "on chain AI agents, agent tokens are the next meta"},
		{Source: "x", SourceID: "tw_2", Author: "quiet_quinn", Lang: "en", CreatedAt: windowStart.Add(4 * time.Minute), Metrics: model.Metrics{"likes": 5}, Text: "AI agents on chain are the real story, agent tokens incoming"},
	}

	fmt.Println("Ingesting mentions...")
	result, err := tracker.IngestMentions(ctx, records)
	if err != nil {
		log.Fatalf("Failed to ingest mentions: %v", err)
	}
	fmt.Printf("Stored %d mentions (%d duplicates)\n", len(result.Mentions), result.Duplicates)

	enriched, err := tracker.EnrichPending(ctx, 100)
	if err != nil {
		log.Fatalf("Failed to enrich mentions: %v", err)
	}
	fmt.Printf("Enriched %d mentions\n", enriched)

	// Process the closed window
	cycle, err := tracker.RunCycle(ctx, windowStart)
	if err != nil {
		log.Fatalf("Failed to run cycle: %v", err)
	}
	fmt.Printf("\nCycle over [%s, %s): %d narratives created, %d mentions unassigned\n",
		cycle.WindowStart.Format(time.Kitchen), cycle.WindowEnd.Format(time.Kitchen),
		len(cycle.Created), cycle.Unassigned)

	top, err := tracker.TopNarratives(ctx, windowStart, 10, "")
	if err != nil {
		log.Fatalf("Failed to query top narratives: %v", err)
	}

	fmt.Println("\nTop narratives:")
	for _, n := range top {
		fmt.Printf("  %-30s mentions=%d keywords=%v\n", n.Label, n.Mentions, n.Keywords)

		score, err := tracker.ScoreWindow(ctx, n.RID, windowStart)
		if err != nil {
			log.Fatalf("Failed to score narrative: %v", err)
		}
		fmt.Printf("    VS=%.3f LRS=%.3f (volume=%.2f growth=%.2f novelty=%.2f)\n",
			score.Virality, score.LaunchReadiness,
			score.Factors.Volume, score.Factors.Growth, score.Factors.Novelty)
	}

	alerts, err := tracker.RecentAlerts(ctx, 10)
	if err != nil {
		log.Fatalf("Failed to query alerts: %v", err)
	}
	fmt.Printf("\nAlerts fired: %d\n", len(alerts))

	fmt.Println("\nBasic example completed successfully!")
}

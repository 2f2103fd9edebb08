package narrative

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/siherrmann/narrative/core/alert"
	"github.com/siherrmann/narrative/core/cluster"
	"github.com/siherrmann/narrative/core/normalizer"
	"github.com/siherrmann/narrative/core/pipeline"
	"github.com/siherrmann/narrative/core/scoring"
	"github.com/siherrmann/narrative/core/window"
	"github.com/siherrmann/narrative/database"
	"github.com/siherrmann/narrative/eventbus"
	"github.com/siherrmann/narrative/helper"
	"github.com/siherrmann/narrative/model"
	loadSql "github.com/siherrmann/narrative/sql"
)

// Tracker provides a unified interface to the narrative tracking engine:
// ingestion, enrichment, the cycle scheduler and all database handlers.
type Tracker struct {
	DB         *helper.Database
	Mentions   *database.MentionsDBHandler
	Narratives *database.NarrativesDBHandler
	Stats      *database.StatsDBHandler
	Alerts     *database.AlertsDBHandler
	Config     *model.EngineConfig
	Enricher   *pipeline.Enricher // Optional enrichment pipeline
	Bus        eventbus.AlertBus
	// Engines
	normalizer *normalizer.Normalizer
	cluster    *cluster.Engine
	aggregator *window.Aggregator
	scoring    *scoring.Engine
	evaluator  *alert.Evaluator
	restored   bool
	// Logging
	log *slog.Logger
}

// CycleResult summarizes one completed processing cycle over a closed window.
type CycleResult struct {
	WindowStart time.Time
	WindowEnd   time.Time
	Assigned    int
	Created     []*model.Narrative
	Unassigned  int
	Scores      []*model.Score
	Alerts      []*model.Alert
}

// NewTracker creates a new Tracker instance with all handlers and engines
// initialized. A nil engine config uses the defaults, a non-nil config is
// validated before anything is wired.
func NewTracker(dbConfig *helper.DatabaseConfiguration, engineConfig *model.EngineConfig) (*Tracker, error) {
	if engineConfig == nil {
		engineConfig = model.DefaultEngineConfig()
	}
	err := engineConfig.Validate()
	if err != nil {
		return nil, helper.NewError("validate engine configuration", err)
	}

	// Logger
	opts := helper.PrettyHandlerOptions{
		SlogOpts: slog.HandlerOptions{
			Level: slog.LevelInfo,
		},
	}
	logger := slog.New(helper.NewPrettyHandler(os.Stdout, opts))

	// Initialize database
	db := helper.NewDatabase("narrative", dbConfig, logger)
	err = loadSql.Init(db.Instance)
	if err != nil {
		return nil, helper.NewError("initialize database extensions", err)
	}

	// Create all handlers in the correct order (narratives first, the
	// mention, stats and alert tables reference the narrative table)
	// force=false to not reload if functions already exist
	narratives, err := database.NewNarrativesDBHandler(db, engineConfig.EmbeddingDim, false)
	if err != nil {
		return nil, helper.NewError("create narratives handler", err)
	}

	mentions, err := database.NewMentionsDBHandler(db, engineConfig.EmbeddingDim, false)
	if err != nil {
		return nil, helper.NewError("create mentions handler", err)
	}

	stats, err := database.NewStatsDBHandler(db, false)
	if err != nil {
		return nil, helper.NewError("create stats handler", err)
	}

	alerts, err := database.NewAlertsDBHandler(db, false)
	if err != nil {
		return nil, helper.NewError("create alerts handler", err)
	}

	return &Tracker{
		DB:         db,
		Mentions:   mentions,
		Narratives: narratives,
		Stats:      stats,
		Alerts:     alerts,
		Config:     engineConfig,
		Bus:        eventbus.NewLogAlertBus(logger),
		normalizer: normalizer.NewNormalizer(engineConfig),
		cluster:    cluster.NewEngine(engineConfig),
		aggregator: window.NewAggregator(engineConfig),
		scoring:    scoring.NewEngine(engineConfig),
		evaluator:  alert.NewEvaluator(engineConfig),
		log:        logger,
	}, nil
}

// Close closes the alert bus and the database connection
func (t *Tracker) Close() error {
	if t.Bus != nil {
		t.Bus.Close()
	}
	if t.DB != nil && t.DB.Instance != nil {
		return t.DB.Instance.Close()
	}
	return nil
}

// SetEnricher sets the enrichment pipeline used by EnrichPending
func (t *Tracker) SetEnricher(enricher *pipeline.Enricher) {
	t.Enricher = enricher
}

// UseDefaultEnricher sets up the default enrichment pipeline.
// This uses DefaultEmbedder with the all-MiniLM-L6-v2 model (384 dimensions)
// and DefaultSentimentAnalyzer with a distilbert SST-2 classifier.
func (t *Tracker) UseDefaultEnricher() error {
	embedder, err := pipeline.DefaultEmbedder()
	if err != nil {
		return helper.NewError("create default embedder", err)
	}
	sentiment, err := pipeline.DefaultSentimentAnalyzer()
	if err != nil {
		return helper.NewError("create default sentiment analyzer", err)
	}

	enricher := pipeline.NewEnricher(embedder, t.Config.MaxKeywords)
	enricher.SetSentimentAnalyzer(sentiment)
	t.Enricher = enricher
	return nil
}

// SetAlertBus replaces the alert bus. The default bus logs fired alerts,
// a Kafka bus delivers them to downstream consumers.
func (t *Tracker) SetAlertBus(bus eventbus.AlertBus) {
	if t.Bus != nil {
		t.Bus.Close()
	}
	t.Bus = bus
}

// IngestMentions normalizes a batch of raw connector records and stores the
// surviving mentions. Records failing validation, duplicates and filtered
// languages are counted on the result, they never fail the batch. Mentions
// already stored from an earlier delivery count as duplicates.
func (t *Tracker) IngestMentions(ctx context.Context, records []*model.RawMention) (*normalizer.Result, error) {
	result := t.normalizer.Normalize(records)

	stored := make([]*model.Mention, 0, len(result.Mentions))
	for _, mention := range result.Mentions {
		if err := ctx.Err(); err != nil {
			return result, helper.NewError("ingest mentions", err)
		}

		inserted, err := t.Mentions.InsertMention(mention)
		if err != nil {
			return result, helper.NewError("insert mention", err)
		}
		if !inserted {
			result.Duplicates++
			continue
		}
		stored = append(stored, mention)
	}
	result.Mentions = stored

	t.log.Info("Ingested mentions",
		slog.Int("stored", len(result.Mentions)),
		slog.Int("dropped", result.Dropped),
		slog.Int("duplicates", result.Duplicates),
		slog.Int("filtered", result.Filtered),
	)

	return result, nil
}

// AttachEnrichment stores externally produced enrichment records, for
// deployments where embedding and sentiment run in a separate service.
// The embedding dimension must match the configured dimension.
func (t *Tracker) AttachEnrichment(ctx context.Context, enrichments []*model.Enrichment) error {
	for _, enrichment := range enrichments {
		if err := ctx.Err(); err != nil {
			return helper.NewError("attach enrichment", err)
		}

		if len(enrichment.Embedding) != t.Config.EmbeddingDim {
			return helper.NewError("attach enrichment", fmt.Errorf(
				"embedding for mention %v has %v dimensions, expected %v",
				enrichment.MentionRID, len(enrichment.Embedding), t.Config.EmbeddingDim,
			))
		}

		err := t.Mentions.InsertEnrichment(enrichment)
		if err != nil {
			return helper.NewError("insert enrichment", err)
		}
	}
	return nil
}

// EnrichPending runs the enricher over up to limit mentions that have no
// enrichment yet and returns the number of mentions enriched. An embedding
// provider failure aborts with ErrEmbeddingUnavailable, already enriched
// mentions keep their rows (enrichment is immutable, the retry skips them).
func (t *Tracker) EnrichPending(ctx context.Context, limit int) (int, error) {
	if t.Enricher == nil {
		return 0, helper.NewError("enrich pending", fmt.Errorf("enricher not set, use SetEnricher() first"))
	}

	pending, err := t.Mentions.SelectMentionsMissingEnrichment(limit)
	if err != nil {
		return 0, helper.NewError("select pending mentions", err)
	}

	for i, mention := range pending {
		if err := ctx.Err(); err != nil {
			return i, helper.NewError("enrich pending", err)
		}

		enrichment, err := t.Enricher.Enrich(mention)
		if err != nil {
			return i, helper.NewError("enrich mention", err)
		}
		err = t.Mentions.InsertEnrichment(enrichment)
		if err != nil {
			return i, helper.NewError("insert enrichment", err)
		}
	}

	if len(pending) > 0 {
		t.log.Info("Enriched mentions", slog.Int("enriched", len(pending)))
	}

	return len(pending), nil
}

// NextWindowStart derives the next window to process. After a committed
// cycle this is the window following the watermark, on a fresh database it
// is the most recent window that is already safely closed at now.
func (t *Tracker) NextWindowStart(now time.Time) (time.Time, error) {
	windowSize := t.Config.WindowSize.Std()

	watermark, found, err := t.Stats.Watermark()
	if err != nil {
		return time.Time{}, helper.NewError("select watermark", err)
	}
	if found {
		return watermark.Add(windowSize).UTC(), nil
	}

	return now.UTC().Add(-t.Config.CloseLag.Std()).Add(-windowSize).Truncate(windowSize), nil
}

// RunCycle processes one closed window [windowStart, windowStart+window_size):
// it assigns the unassigned enriched mentions, commits all centroid updates
// and new narratives in one transaction, aggregates the window for every
// active narrative, scores each one and evaluates alerts. The cycle commits
// no partial centroid state, a failure before the commit leaves the database
// untouched and a failure after it is safe to re-run because assignment,
// stats insert and the watermark are idempotent.
// Returns ErrWindowNotClosed while the window cannot be processed yet.
func (t *Tracker) RunCycle(ctx context.Context, windowStart time.Time) (*CycleResult, error) {
	windowSize := t.Config.WindowSize.Std()
	windowStart = windowStart.UTC().Truncate(windowSize)
	windowEnd := windowStart.Add(windowSize)

	if time.Now().UTC().Before(windowEnd.Add(t.Config.CloseLag.Std())) {
		return nil, helper.NewError("run cycle", fmt.Errorf(
			"%w: window [%v, %v)", model.ErrWindowNotClosed, windowStart, windowEnd,
		))
	}

	err := t.restoreEvaluator(windowStart)
	if err != nil {
		return nil, err
	}

	active, clusterResult, created, err := t.commitAssignments(ctx, windowStart, windowEnd)
	if err != nil {
		return nil, err
	}

	result := &CycleResult{
		WindowStart: windowStart,
		WindowEnd:   windowEnd,
		Assigned:    clusterResult.Assigned,
		Created:     created,
		Unassigned:  len(clusterResult.Unassigned),
	}

	// Aggregate and score every narrative of the cycle, including the ones
	// without new mentions (a quiet window is a zero-valued row).
	narratives := append(active, created...)
	scored := make([]*model.WindowStats, 0, len(narratives))
	for _, narrative := range narratives {
		if err := ctx.Err(); err != nil {
			return nil, helper.NewError("run cycle", err)
		}

		score, stats, err := t.scoreWindow(narrative, windowStart, windowEnd)
		if err != nil {
			return nil, err
		}
		result.Scores = append(result.Scores, score)
		scored = append(scored, stats)
	}

	// Alert machines advance only after every stats row of the cycle is
	// written, and roll back when persisting the outcome fails, so an
	// in-process retry of the window advances dwell and cooldown once.
	snapshot := t.evaluator.Snapshot()
	for i, stats := range scored {
		for _, fired := range t.evaluator.Evaluate(result.Scores[i], stats) {
			err = t.Alerts.InsertAlert(fired)
			if err != nil {
				t.evaluator.Rollback(snapshot)
				return nil, helper.NewError("insert alert", err)
			}
			err = t.Bus.Publish(ctx, fired)
			if err != nil {
				t.evaluator.Rollback(snapshot)
				return nil, helper.NewError("publish alert", err)
			}
			result.Alerts = append(result.Alerts, fired)
		}
	}

	_, err = t.Stats.AdvanceWatermark(windowStart)
	if err != nil {
		t.evaluator.Rollback(snapshot)
		return nil, helper.NewError("advance watermark", err)
	}

	t.log.Info("Cycle completed",
		slog.Time("window_start", windowStart),
		slog.Int("assigned", result.Assigned),
		slog.Int("created", len(result.Created)),
		slog.Int("unassigned", result.Unassigned),
		slog.Int("alerts", len(result.Alerts)),
	)

	return result, nil
}

// commitAssignments clusters the unassigned pool against the active
// narratives and commits the outcome in one transaction. A concurrent writer
// surfaces as ErrStaleCentroid, the cycle then re-clusters against the
// refreshed snapshot instead of overwriting, up to cycle_retries times.
func (t *Tracker) commitAssignments(ctx context.Context, windowStart time.Time, windowEnd time.Time) ([]*model.Narrative, *cluster.Result, []*model.Narrative, error) {
	cutoff := windowEnd.Add(-t.Config.LookbackWindow.Std())

	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, nil, nil, helper.NewError("commit assignments", err)
		}

		active, err := t.Narratives.SelectActiveNarratives(cutoff, cutoff)
		if err != nil {
			return nil, nil, nil, helper.NewError("select active narratives", err)
		}

		pool, err := t.Mentions.SelectUnassignedEnriched(cutoff, windowEnd)
		if err != nil {
			return nil, nil, nil, helper.NewError("select unassigned mentions", err)
		}

		clusterResult := t.cluster.Assign(pool, active)

		created, err := t.Narratives.CommitCycle(clusterResult.Updates, clusterResult.Created, windowEnd)
		if err == nil {
			return active, clusterResult, created, nil
		}
		if !errors.Is(err, model.ErrStaleCentroid) || attempt >= t.Config.CycleRetries {
			return nil, nil, nil, helper.NewError("commit cycle", err)
		}

		t.log.Warn("Centroid version conflict, re-clustering",
			slog.Time("window_start", windowStart),
			slog.Int("attempt", attempt+1),
		)
	}
}

// scoreWindow aggregates one narrative over the window, stores the stats row
// and scores it. Alert evaluation happens in the cycle after all stats rows
// of the window are written.
func (t *Tracker) scoreWindow(narrative *model.Narrative, windowStart time.Time, windowEnd time.Time) (*model.Score, *model.WindowStats, error) {
	members, err := t.Mentions.SelectWindowMentions(narrative.RID, windowStart, windowEnd)
	if err != nil {
		return nil, nil, helper.NewError("select window mentions", err)
	}

	prior, err := t.Stats.SelectPriorWindowStats(narrative.RID, windowStart, t.Config.WindowSize.Std())
	if err != nil {
		return nil, nil, helper.NewError("select prior window stats", err)
	}
	priorMentions := 0
	if prior != nil {
		priorMentions = prior.Mentions
	}

	stats := t.aggregator.Aggregate(narrative.RID, windowStart, windowEnd, members, priorMentions)
	_, err = t.Stats.InsertWindowStats(stats)
	if err != nil {
		return nil, nil, helper.NewError("insert window stats", err)
	}

	score, err := t.scoreStats(narrative, stats)
	if err != nil {
		return nil, nil, err
	}

	return score, stats, nil
}

// scoreStats computes the scores for one stats row from the reference
// history and the narrative's novelty against older centroids.
func (t *Tracker) scoreStats(narrative *model.Narrative, stats *model.WindowStats) (*model.Score, error) {
	history, err := t.Stats.SelectRecentWindowStats(narrative.RID, stats.WindowStart, t.Config.ReferenceWindows)
	if err != nil {
		return nil, helper.NewError("select reference windows", err)
	}

	// Novelty compares against centroids older than novelty_age. A narrative
	// unlike all of them scores 1.
	novelty := 1.0
	similarity, found, err := t.Narratives.MaxSimilarityBefore(
		narrative.Centroid,
		stats.WindowEnd.Add(-t.Config.NoveltyAge.Std()),
		&narrative.RID,
	)
	if err != nil {
		return nil, helper.NewError("select novelty similarity", err)
	}
	if found {
		novelty = 1 - similarity
	}

	return t.scoring.Score(stats, history, novelty, nil), nil
}

// ScoreWindow recomputes the scores of one narrative for one already
// aggregated window on demand. Returns ErrInsufficientData when the window
// has not been aggregated.
func (t *Tracker) ScoreWindow(ctx context.Context, narrativeRID uuid.UUID, windowStart time.Time) (*model.Score, error) {
	narrative, err := t.Narratives.SelectNarrative(narrativeRID)
	if err != nil {
		return nil, helper.NewError("select narrative", err)
	}

	stats, err := t.Stats.SelectWindowStats(narrativeRID, windowStart)
	if err != nil {
		return nil, helper.NewError("select window stats", err)
	}
	if stats == nil {
		return nil, helper.NewError("score window", fmt.Errorf(
			"%w: narrative %v window %v", model.ErrInsufficientData, narrativeRID, windowStart,
		))
	}

	return t.scoreStats(narrative, stats)
}

// restoreEvaluator reseeds the alert state machines from recently persisted
// alerts once per process, so a spike that fired before a restart does not
// fire again inside its cooldown.
func (t *Tracker) restoreEvaluator(nextWindowStart time.Time) error {
	if t.restored {
		return nil
	}

	cooldown := time.Duration(t.Config.Alerts.CooldownWindows) * t.Config.WindowSize.Std()
	recent, err := t.Alerts.SelectAlertsSince(nextWindowStart.Add(-cooldown), nil)
	if err != nil {
		return helper.NewError("select recent alerts", err)
	}

	t.evaluator.Restore(recent, nextWindowStart)
	t.restored = true
	return nil
}

// Run processes windows as they become closable until the context is
// cancelled. The next window is always derived from the watermark, so a
// failed cycle is retried wholesale and a restarted process resumes where
// the last commit left off.
func (t *Tracker) Run(ctx context.Context) error {
	const retryDelay = 30 * time.Second

	for {
		windowStart, err := t.NextWindowStart(time.Now())
		if err != nil {
			return err
		}

		closableAt := windowStart.Add(t.Config.WindowSize.Std()).Add(t.Config.CloseLag.Std())
		if wait := time.Until(closableAt); wait > 0 {
			timer := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}

		_, err = t.RunCycle(ctx, windowStart)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			t.log.Error("Cycle failed, retrying",
				slog.Time("window_start", windowStart),
				slog.String("error", err.Error()),
			)
			timer := time.NewTimer(retryDelay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}
	}
}

// TopNarratives returns the narratives with the most mentions since the
// given time. An empty category matches all categories.
func (t *Tracker) TopNarratives(ctx context.Context, since time.Time, limit int, category string) ([]*model.Narrative, error) {
	return t.Narratives.SelectTopNarratives(since, limit, category)
}

// NarrativeStats returns up to limit aggregated windows of a narrative
// before the given time, newest first.
func (t *Tracker) NarrativeStats(ctx context.Context, narrativeRID uuid.UUID, before time.Time, limit int) ([]*model.WindowStats, error) {
	return t.Stats.SelectRecentWindowStats(narrativeRID, before, limit)
}

// RecentAlerts returns the most recently triggered alerts
func (t *Tracker) RecentAlerts(ctx context.Context, limit int) ([]*model.Alert, error) {
	return t.Alerts.SelectRecentAlerts(limit)
}

// AcknowledgeAlert marks an alert as acknowledged by the given actor
func (t *Tracker) AcknowledgeAlert(ctx context.Context, rid uuid.UUID, actor string) (*model.Alert, error) {
	return t.Alerts.AcknowledgeAlert(rid, actor)
}

// ChangeIndexType changes the centroid vector index type between HNSW and
// IVFFlat
func (t *Tracker) ChangeIndexType(ctx context.Context, indexType string, params map[string]interface{}) error {
	return t.Narratives.ChangeIndexType(ctx, indexType, params)
}

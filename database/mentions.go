package database

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/siherrmann/narrative/helper"
	"github.com/siherrmann/narrative/model"
	loadSql "github.com/siherrmann/narrative/sql"
)

// MentionsDBHandlerFunctions defines the interface for Mentions database operations.
type MentionsDBHandlerFunctions interface {
	InsertMention(mention *model.Mention) (bool, error)
	InsertEnrichment(enrichment *model.Enrichment) error
	SelectMention(rid uuid.UUID) (*model.Mention, error)
	SelectEnrichedMention(rid uuid.UUID) (*model.EnrichedMention, error)
	SelectUnassignedEnriched(since time.Time, until time.Time) ([]*model.EnrichedMention, error)
	SelectMentionsMissingEnrichment(limit int) ([]*model.Mention, error)
	SelectWindowMentions(narrativeRID uuid.UUID, start time.Time, end time.Time) ([]*model.EnrichedMention, error)
	CountMentionsSince(narrativeRID uuid.UUID, since time.Time) (int, error)
	AssignMentions(narrativeRID uuid.UUID, mentionRIDs []uuid.UUID, assignedAt time.Time) (int, error)
}

// MentionsDBHandler handles mention-related database operations
type MentionsDBHandler struct {
	db *helper.Database
}

// NewMentionsDBHandler creates a new mentions database handler.
// It initializes the database connection and loads mention-related SQL functions.
// If force is true, it will reload the SQL functions even if they already exist.
func NewMentionsDBHandler(db *helper.Database, embeddingDim int, force bool) (*MentionsDBHandler, error) {
	if db == nil {
		return nil, helper.NewError("database connection validation", fmt.Errorf("database connection is nil"))
	}

	mentionsDbHandler := &MentionsDBHandler{
		db: db,
	}

	err := loadSql.LoadMentionsSql(mentionsDbHandler.db.Instance, force)
	if err != nil {
		return nil, helper.NewError("load mentions sql", err)
	}

	err = mentionsDbHandler.CreateTable(embeddingDim)
	if err != nil {
		return nil, helper.NewError("create table", err)
	}

	db.Logger.Info("Initialized MentionsDBHandler")

	return mentionsDbHandler, nil
}

// CreateTable creates the 'mention' and 'mention_enriched' tables in the database.
// If the tables already exist, it does not create them again.
// It also creates all necessary indexes.
func (h *MentionsDBHandler) CreateTable(embeddingDim int) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Use the SQL init() function to create all tables and indexes
	_, err := h.db.Instance.ExecContext(ctx, `SELECT init_mentions($1);`, embeddingDim)
	if err != nil {
		return helper.NewError("init mentions tables", err)
	}

	h.db.Logger.Info("Checked/created table mention")

	return nil
}

// InsertMention inserts a new mention.
// Repeated deliveries of the same (source, source_id) are deduplicated and
// return the stored row with inserted = false.
func (h *MentionsDBHandler) InsertMention(mention *model.Mention) (bool, error) {
	row := h.db.Instance.QueryRow(
		`SELECT * FROM insert_mention($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		mention.Source,
		mention.SourceID,
		mention.Author,
		mention.Text,
		mention.URL,
		mention.CreatedAt,
		mention.Metrics,
		mention.Lang,
		mention.Entities,
	)

	var inserted bool
	err := row.Scan(
		&mention.ID,
		&mention.RID,
		&mention.Source,
		&mention.SourceID,
		&mention.Author,
		&mention.Text,
		&mention.URL,
		&mention.CreatedAt,
		&mention.Metrics,
		&mention.Lang,
		&mention.Entities,
		&inserted,
	)
	if err != nil {
		return false, helper.NewError("scan", err)
	}

	return inserted, nil
}

// InsertEnrichment attaches derived signals to a mention.
// Enrichment is written once, a repeated insert returns the stored row.
func (h *MentionsDBHandler) InsertEnrichment(enrichment *model.Enrichment) error {
	row := h.db.Instance.QueryRow(
		`SELECT * FROM insert_enrichment($1, $2, $3, $4, $5, $6)`,
		enrichment.MentionRID,
		enrichment.Sentiment,
		pq.Array(enrichment.Embedding),
		pq.Array(enrichment.Keywords),
		enrichment.Influence,
		enrichment.Toxicity,
	)

	err := row.Scan(
		&enrichment.MentionRID,
		&enrichment.Sentiment,
		pq.Array(&enrichment.Embedding),
		pq.Array(&enrichment.Keywords),
		&enrichment.Influence,
		&enrichment.Toxicity,
		&enrichment.EnrichedAt,
	)
	if err != nil {
		return helper.NewError("scan", err)
	}

	return nil
}

// SelectMention retrieves a mention by RID
func (h *MentionsDBHandler) SelectMention(rid uuid.UUID) (*model.Mention, error) {
	row := h.db.Instance.QueryRow(
		`SELECT * FROM select_mention($1)`,
		rid,
	)

	mention := &model.Mention{}
	err := row.Scan(
		&mention.ID,
		&mention.RID,
		&mention.Source,
		&mention.SourceID,
		&mention.Author,
		&mention.Text,
		&mention.URL,
		&mention.CreatedAt,
		&mention.Metrics,
		&mention.Lang,
		&mention.Entities,
	)
	if err != nil {
		return nil, helper.NewError("scan", err)
	}

	return mention, nil
}

// SelectEnrichedMention retrieves a mention joined with its enrichment and
// current narrative assignment
func (h *MentionsDBHandler) SelectEnrichedMention(rid uuid.UUID) (*model.EnrichedMention, error) {
	row := h.db.Instance.QueryRow(
		`SELECT * FROM select_enriched_mention($1)`,
		rid,
	)

	mention := &model.EnrichedMention{}
	err := row.Scan(
		&mention.ID,
		&mention.RID,
		&mention.Source,
		&mention.SourceID,
		&mention.Author,
		&mention.Text,
		&mention.URL,
		&mention.CreatedAt,
		&mention.Metrics,
		&mention.Lang,
		&mention.Entities,
		&mention.Sentiment,
		pq.Array(&mention.Embedding),
		pq.Array(&mention.Keywords),
		&mention.Influence,
		&mention.Toxicity,
		&mention.EnrichedAt,
		&mention.NarrativeRID,
		&mention.AssignedAt,
	)
	if err != nil {
		return nil, helper.NewError("scan", err)
	}

	mention.MentionRID = mention.RID

	return mention, nil
}

// SelectUnassignedEnriched retrieves enriched mentions without a narrative
// assignment created in [since, until), in deterministic processing order
func (h *MentionsDBHandler) SelectUnassignedEnriched(since time.Time, until time.Time) ([]*model.EnrichedMention, error) {
	rows, err := h.db.Instance.Query(
		`SELECT * FROM select_unassigned_enriched($1, $2)`,
		since,
		until,
	)
	if err != nil {
		return nil, helper.NewError("query", err)
	}
	defer rows.Close()

	var mentions []*model.EnrichedMention
	for rows.Next() {
		mention := &model.EnrichedMention{}
		err := rows.Scan(
			&mention.ID,
			&mention.RID,
			&mention.Source,
			&mention.SourceID,
			&mention.Author,
			&mention.Text,
			&mention.URL,
			&mention.CreatedAt,
			&mention.Metrics,
			&mention.Lang,
			&mention.Entities,
			&mention.Sentiment,
			pq.Array(&mention.Embedding),
			pq.Array(&mention.Keywords),
			&mention.Influence,
			&mention.Toxicity,
			&mention.EnrichedAt,
			&mention.NarrativeRID,
			&mention.AssignedAt,
		)
		if err != nil {
			return nil, helper.NewError("scan", err)
		}

		mention.MentionRID = mention.RID

		mentions = append(mentions, mention)
	}

	err = rows.Err()
	if err != nil {
		return nil, helper.NewError("rows error", err)
	}

	return mentions, nil
}

// SelectMentionsMissingEnrichment retrieves up to limit mentions that have no
// enrichment yet, oldest first
func (h *MentionsDBHandler) SelectMentionsMissingEnrichment(limit int) ([]*model.Mention, error) {
	rows, err := h.db.Instance.Query(
		`SELECT * FROM select_mentions_missing_enrichment($1)`,
		limit,
	)
	if err != nil {
		return nil, helper.NewError("query", err)
	}
	defer rows.Close()

	var mentions []*model.Mention
	for rows.Next() {
		mention := &model.Mention{}

		var metricsJSON []byte
		err := rows.Scan(
			&mention.ID,
			&mention.RID,
			&mention.Source,
			&mention.SourceID,
			&mention.Author,
			&mention.Text,
			&mention.URL,
			&mention.CreatedAt,
			&metricsJSON,
			&mention.Lang,
			&mention.Entities,
		)
		if err != nil {
			return nil, helper.NewError("scan", err)
		}

		if err := json.Unmarshal(metricsJSON, &mention.Metrics); err != nil {
			return nil, helper.NewError("unmarshaling metrics", err)
		}

		mentions = append(mentions, mention)
	}

	err = rows.Err()
	if err != nil {
		return nil, helper.NewError("rows error", err)
	}

	return mentions, nil
}

// SelectWindowMentions retrieves the mentions of one narrative inside
// [start, end), in deterministic aggregation order
func (h *MentionsDBHandler) SelectWindowMentions(narrativeRID uuid.UUID, start time.Time, end time.Time) ([]*model.EnrichedMention, error) {
	rows, err := h.db.Instance.Query(
		`SELECT * FROM select_window_mentions($1, $2, $3)`,
		narrativeRID,
		start,
		end,
	)
	if err != nil {
		return nil, helper.NewError("query", err)
	}
	defer rows.Close()

	var mentions []*model.EnrichedMention
	for rows.Next() {
		mention := &model.EnrichedMention{}
		err := rows.Scan(
			&mention.ID,
			&mention.RID,
			&mention.Source,
			&mention.SourceID,
			&mention.Author,
			&mention.Text,
			&mention.URL,
			&mention.CreatedAt,
			&mention.Metrics,
			&mention.Lang,
			&mention.Entities,
			&mention.Sentiment,
			pq.Array(&mention.Embedding),
			pq.Array(&mention.Keywords),
			&mention.Influence,
			&mention.Toxicity,
			&mention.EnrichedAt,
			&mention.NarrativeRID,
			&mention.AssignedAt,
		)
		if err != nil {
			return nil, helper.NewError("scan", err)
		}

		mention.MentionRID = mention.RID

		mentions = append(mentions, mention)
	}

	err = rows.Err()
	if err != nil {
		return nil, helper.NewError("rows error", err)
	}

	return mentions, nil
}

// CountMentionsSince counts the enriched mentions assigned to a narrative
// created at or after since
func (h *MentionsDBHandler) CountMentionsSince(narrativeRID uuid.UUID, since time.Time) (int, error) {
	row := h.db.Instance.QueryRow(
		`SELECT count_mentions_since($1, $2)`,
		narrativeRID,
		since,
	)

	var count int
	err := row.Scan(&count)
	if err != nil {
		return 0, helper.NewError("scan", err)
	}

	return count, nil
}

// AssignMentions assigns the given mentions to a narrative and returns the
// number of rows updated
func (h *MentionsDBHandler) AssignMentions(narrativeRID uuid.UUID, mentionRIDs []uuid.UUID, assignedAt time.Time) (int, error) {
	row := h.db.Instance.QueryRow(
		`SELECT assign_mentions($1, $2, $3)`,
		narrativeRID,
		pq.Array(mentionRIDs),
		assignedAt,
	)

	var updated int
	err := row.Scan(&updated)
	if err != nil {
		return 0, helper.NewError("scan", err)
	}

	return updated, nil
}

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"
	"github.com/siherrmann/narrative/helper"
	"github.com/siherrmann/narrative/model"
	loadSql "github.com/siherrmann/narrative/sql"
)

// NarrativesDBHandlerFunctions defines the interface for Narratives database operations.
type NarrativesDBHandlerFunctions interface {
	InsertNarrative(narrative *model.Narrative) error
	SelectNarrative(rid uuid.UUID) (*model.Narrative, error)
	SelectActiveNarratives(cutoff time.Time, recentSince time.Time) ([]*model.Narrative, error)
	SelectTopNarratives(since time.Time, limit int, category string) ([]*model.Narrative, error)
	MaxSimilarityBefore(centroid []float32, createdBefore time.Time, exclude *uuid.UUID) (float64, bool, error)
	UpdateCentroid(update *model.CentroidUpdate) (*model.Narrative, error)
	CommitCycle(updates []*model.CentroidUpdate, seeds []*model.NarrativeSeed, assignedAt time.Time) ([]*model.Narrative, error)
}

// NarrativesDBHandler handles narrative-related database operations
type NarrativesDBHandler struct {
	db *helper.Database
}

// NewNarrativesDBHandler creates a new narratives database handler.
// It initializes the database connection and loads narrative-related SQL functions.
// If force is true, it will reload the SQL functions even if they already exist.
func NewNarrativesDBHandler(db *helper.Database, embeddingDim int, force bool) (*NarrativesDBHandler, error) {
	if db == nil {
		return nil, helper.NewError("database connection validation", fmt.Errorf("database connection is nil"))
	}

	narrativesDbHandler := &NarrativesDBHandler{
		db: db,
	}

	err := loadSql.LoadNarrativesSql(narrativesDbHandler.db.Instance, force)
	if err != nil {
		return nil, helper.NewError("load narratives sql", err)
	}

	err = narrativesDbHandler.CreateTable(embeddingDim)
	if err != nil {
		return nil, helper.NewError("create table", err)
	}

	db.Logger.Info("Initialized NarrativesDBHandler")

	return narrativesDbHandler, nil
}

// CreateTable creates the 'narrative' table in the database.
// If the table already exists, it does not create it again.
// It also creates all necessary indexes.
func (h *NarrativesDBHandler) CreateTable(embeddingDim int) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Use the SQL init() function to create all tables and indexes
	_, err := h.db.Instance.ExecContext(ctx, `SELECT init_narratives($1);`, embeddingDim)
	if err != nil {
		return helper.NewError("init narratives table", err)
	}

	h.db.Logger.Info("Checked/created table narrative")

	return nil
}

// InsertNarrative inserts a new narrative
func (h *NarrativesDBHandler) InsertNarrative(narrative *model.Narrative) error {
	row := h.db.Instance.QueryRow(
		`SELECT * FROM insert_narrative($1, $2, $3, $4, $5, $6)`,
		narrative.Label,
		narrative.Category,
		pq.Array(narrative.Centroid),
		pq.Array(narrative.Keywords),
		narrative.CreatedAt,
		narrative.LastSeen,
	)

	err := row.Scan(
		&narrative.ID,
		&narrative.RID,
		&narrative.Label,
		&narrative.Category,
		&narrative.CreatedAt,
		&narrative.LastSeen,
		pq.Array(&narrative.Centroid),
		pq.Array(&narrative.Keywords),
		&narrative.Version,
	)
	if err != nil {
		return helper.NewError("scan", err)
	}

	return nil
}

// SelectNarrative retrieves a narrative by RID
func (h *NarrativesDBHandler) SelectNarrative(rid uuid.UUID) (*model.Narrative, error) {
	row := h.db.Instance.QueryRow(
		`SELECT * FROM select_narrative($1)`,
		rid,
	)

	narrative := &model.Narrative{}
	err := row.Scan(
		&narrative.ID,
		&narrative.RID,
		&narrative.Label,
		&narrative.Category,
		&narrative.CreatedAt,
		&narrative.LastSeen,
		pq.Array(&narrative.Centroid),
		pq.Array(&narrative.Keywords),
		&narrative.Version,
	)
	if err != nil {
		return nil, helper.NewError("scan", err)
	}

	return narrative, nil
}

// SelectActiveNarratives retrieves all narratives with last_seen at or after
// cutoff, with the mention count since recentSince, in stable creation order
func (h *NarrativesDBHandler) SelectActiveNarratives(cutoff time.Time, recentSince time.Time) ([]*model.Narrative, error) {
	rows, err := h.db.Instance.Query(
		`SELECT * FROM select_active_narratives($1, $2)`,
		cutoff,
		recentSince,
	)
	if err != nil {
		return nil, helper.NewError("query", err)
	}
	defer rows.Close()

	var narratives []*model.Narrative
	for rows.Next() {
		narrative := &model.Narrative{}
		err := rows.Scan(
			&narrative.ID,
			&narrative.RID,
			&narrative.Label,
			&narrative.Category,
			&narrative.CreatedAt,
			&narrative.LastSeen,
			pq.Array(&narrative.Centroid),
			pq.Array(&narrative.Keywords),
			&narrative.Version,
			&narrative.RecentMentions,
		)
		if err != nil {
			return nil, helper.NewError("scan", err)
		}

		narratives = append(narratives, narrative)
	}

	err = rows.Err()
	if err != nil {
		return nil, helper.NewError("rows error", err)
	}

	return narratives, nil
}

// SelectTopNarratives retrieves narratives ranked by mention count since the
// given time. An empty category matches all categories.
func (h *NarrativesDBHandler) SelectTopNarratives(since time.Time, limit int, category string) ([]*model.Narrative, error) {
	rows, err := h.db.Instance.Query(
		`SELECT * FROM select_top_narratives($1, $2, $3)`,
		since,
		limit,
		category,
	)
	if err != nil {
		return nil, helper.NewError("query", err)
	}
	defer rows.Close()

	var narratives []*model.Narrative
	for rows.Next() {
		narrative := &model.Narrative{}
		err := rows.Scan(
			&narrative.ID,
			&narrative.RID,
			&narrative.Label,
			&narrative.Category,
			&narrative.CreatedAt,
			&narrative.LastSeen,
			pq.Array(&narrative.Centroid),
			pq.Array(&narrative.Keywords),
			&narrative.Version,
			&narrative.Mentions,
		)
		if err != nil {
			return nil, helper.NewError("scan", err)
		}

		narratives = append(narratives, narrative)
	}

	err = rows.Err()
	if err != nil {
		return nil, helper.NewError("rows error", err)
	}

	return narratives, nil
}

// MaxSimilarityBefore returns the highest cosine similarity between the given
// centroid and any narrative created before createdBefore, excluding the given
// RID. found is false when no narrative qualifies.
func (h *NarrativesDBHandler) MaxSimilarityBefore(centroid []float32, createdBefore time.Time, exclude *uuid.UUID) (float64, bool, error) {
	row := h.db.Instance.QueryRow(
		`SELECT max_centroid_similarity($1, $2, $3)`,
		pgvector.NewVector(centroid),
		createdBefore,
		exclude,
	)

	var similarity sql.NullFloat64
	err := row.Scan(&similarity)
	if err != nil {
		return 0, false, helper.NewError("scan", err)
	}

	return similarity.Float64, similarity.Valid, nil
}

// UpdateCentroid applies one optimistic centroid update.
// It returns ErrStaleCentroid when the stored version no longer matches the
// expected version.
func (h *NarrativesDBHandler) UpdateCentroid(update *model.CentroidUpdate) (*model.Narrative, error) {
	row := h.db.Instance.QueryRow(
		`SELECT * FROM update_narrative_centroid($1, $2, $3, $4, $5, $6)`,
		update.NarrativeRID,
		pgvector.NewVector(update.Centroid),
		update.LastSeen,
		update.Label,
		pq.Array(update.Keywords),
		update.ExpectedVersion,
	)

	narrative := &model.Narrative{}
	err := row.Scan(
		&narrative.ID,
		&narrative.RID,
		&narrative.Label,
		&narrative.Category,
		&narrative.CreatedAt,
		&narrative.LastSeen,
		pq.Array(&narrative.Centroid),
		pq.Array(&narrative.Keywords),
		&narrative.Version,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, helper.NewError("update centroid", fmt.Errorf("%w: narrative %s", model.ErrStaleCentroid, update.NarrativeRID))
	}
	if err != nil {
		return nil, helper.NewError("scan", err)
	}

	return narrative, nil
}

// CommitCycle applies all centroid updates, creates all seeded narratives and
// assigns their mentions in a single transaction. Either every change of the
// cycle is visible afterwards or none is.
// It returns the created narratives and ErrStaleCentroid when any expected
// version no longer matches.
func (h *NarrativesDBHandler) CommitCycle(updates []*model.CentroidUpdate, seeds []*model.NarrativeSeed, assignedAt time.Time) ([]*model.Narrative, error) {
	tx, err := h.db.Instance.Begin()
	if err != nil {
		return nil, helper.NewError("begin transaction", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	for _, update := range updates {
		row := tx.QueryRow(
			`SELECT * FROM update_narrative_centroid($1, $2, $3, $4, $5, $6)`,
			update.NarrativeRID,
			pgvector.NewVector(update.Centroid),
			update.LastSeen,
			update.Label,
			pq.Array(update.Keywords),
			update.ExpectedVersion,
		)

		narrative := &model.Narrative{}
		err := row.Scan(
			&narrative.ID,
			&narrative.RID,
			&narrative.Label,
			&narrative.Category,
			&narrative.CreatedAt,
			&narrative.LastSeen,
			pq.Array(&narrative.Centroid),
			pq.Array(&narrative.Keywords),
			&narrative.Version,
		)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, helper.NewError("update centroid", fmt.Errorf("%w: narrative %s", model.ErrStaleCentroid, update.NarrativeRID))
		}
		if err != nil {
			return nil, helper.NewError("scan", err)
		}

		if len(update.MentionRIDs) > 0 {
			var assigned int
			err = tx.QueryRow(
				`SELECT assign_mentions($1, $2, $3)`,
				update.NarrativeRID,
				pq.Array(update.MentionRIDs),
				assignedAt,
			).Scan(&assigned)
			if err != nil {
				return nil, helper.NewError("assign mentions", err)
			}
		}
	}

	var created []*model.Narrative
	for _, seed := range seeds {
		row := tx.QueryRow(
			`SELECT * FROM insert_narrative($1, $2, $3, $4, $5, $6)`,
			seed.Label,
			seed.Category,
			pq.Array(seed.Centroid),
			pq.Array(seed.Keywords),
			seed.CreatedAt,
			seed.LastSeen,
		)

		narrative := &model.Narrative{}
		err := row.Scan(
			&narrative.ID,
			&narrative.RID,
			&narrative.Label,
			&narrative.Category,
			&narrative.CreatedAt,
			&narrative.LastSeen,
			pq.Array(&narrative.Centroid),
			pq.Array(&narrative.Keywords),
			&narrative.Version,
		)
		if err != nil {
			return nil, helper.NewError("scan", err)
		}

		if len(seed.MentionRIDs) > 0 {
			var assigned int
			err = tx.QueryRow(
				`SELECT assign_mentions($1, $2, $3)`,
				narrative.RID,
				pq.Array(seed.MentionRIDs),
				assignedAt,
			).Scan(&assigned)
			if err != nil {
				return nil, helper.NewError("assign mentions", err)
			}
		}

		created = append(created, narrative)
	}

	err = tx.Commit()
	if err != nil {
		return nil, helper.NewError("commit transaction", err)
	}

	return created, nil
}

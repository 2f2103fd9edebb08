package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/siherrmann/narrative/helper"
	"github.com/siherrmann/narrative/model"
	loadSql "github.com/siherrmann/narrative/sql"
)

// StatsDBHandlerFunctions defines the interface for WindowStats database operations.
type StatsDBHandlerFunctions interface {
	InsertWindowStats(stats *model.WindowStats) (bool, error)
	SelectWindowStats(narrativeRID uuid.UUID, windowStart time.Time) (*model.WindowStats, error)
	SelectPriorWindowStats(narrativeRID uuid.UUID, windowStart time.Time, windowSize time.Duration) (*model.WindowStats, error)
	SelectRecentWindowStats(narrativeRID uuid.UUID, before time.Time, limit int) ([]*model.WindowStats, error)
	Watermark() (time.Time, bool, error)
	AdvanceWatermark(windowStart time.Time) (time.Time, error)
}

// StatsDBHandler handles window stats related database operations
type StatsDBHandler struct {
	db *helper.Database
}

// NewStatsDBHandler creates a new window stats database handler.
// It initializes the database connection and loads stats-related SQL functions.
// If force is true, it will reload the SQL functions even if they already exist.
func NewStatsDBHandler(db *helper.Database, force bool) (*StatsDBHandler, error) {
	if db == nil {
		return nil, helper.NewError("database connection validation", fmt.Errorf("database connection is nil"))
	}

	statsDbHandler := &StatsDBHandler{
		db: db,
	}

	err := loadSql.LoadStatsSql(statsDbHandler.db.Instance, force)
	if err != nil {
		return nil, helper.NewError("load stats sql", err)
	}

	err = statsDbHandler.CreateTable()
	if err != nil {
		return nil, helper.NewError("create table", err)
	}

	db.Logger.Info("Initialized StatsDBHandler")

	return statsDbHandler, nil
}

// CreateTable creates the 'narrative_window_stats' and 'engine_watermark'
// tables in the database.
// If the tables already exist, it does not create them again.
func (h *StatsDBHandler) CreateTable() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Use the SQL init() function to create all tables and indexes
	_, err := h.db.Instance.ExecContext(ctx, `SELECT init_window_stats();`)
	if err != nil {
		return helper.NewError("init window stats tables", err)
	}

	h.db.Logger.Info("Checked/created table narrative_window_stats")

	return nil
}

// InsertWindowStats inserts the aggregates of one narrative window.
// Re-aggregating the same window is deduplicated and returns the stored row
// with inserted = false.
func (h *StatsDBHandler) InsertWindowStats(stats *model.WindowStats) (bool, error) {
	row := h.db.Instance.QueryRow(
		`SELECT * FROM insert_window_stats($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		stats.NarrativeRID,
		stats.WindowStart,
		stats.WindowEnd,
		stats.Mentions,
		stats.UniqueAuthors,
		stats.AvgEngagement,
		stats.GrowthRate,
		stats.Sentiment,
		stats.Sources,
		stats.AvgInfluence,
		stats.AvgToxicity,
	)

	var inserted bool
	err := row.Scan(
		&stats.ID,
		&stats.NarrativeRID,
		&stats.WindowStart,
		&stats.WindowEnd,
		&stats.Mentions,
		&stats.UniqueAuthors,
		&stats.AvgEngagement,
		&stats.GrowthRate,
		&stats.Sentiment,
		&stats.Sources,
		&stats.AvgInfluence,
		&stats.AvgToxicity,
		&inserted,
	)
	if err != nil {
		return false, helper.NewError("scan", err)
	}

	return inserted, nil
}

// SelectWindowStats retrieves the stats of one narrative window
func (h *StatsDBHandler) SelectWindowStats(narrativeRID uuid.UUID, windowStart time.Time) (*model.WindowStats, error) {
	row := h.db.Instance.QueryRow(
		`SELECT * FROM select_window_stats($1, $2)`,
		narrativeRID,
		windowStart,
	)

	stats := &model.WindowStats{}
	err := row.Scan(
		&stats.ID,
		&stats.NarrativeRID,
		&stats.WindowStart,
		&stats.WindowEnd,
		&stats.Mentions,
		&stats.UniqueAuthors,
		&stats.AvgEngagement,
		&stats.GrowthRate,
		&stats.Sentiment,
		&stats.Sources,
		&stats.AvgInfluence,
		&stats.AvgToxicity,
	)
	if err != nil {
		return nil, helper.NewError("scan", err)
	}

	return stats, nil
}

// SelectPriorWindowStats retrieves the stats of the window directly before
// windowStart. It returns nil without error when no prior window exists.
func (h *StatsDBHandler) SelectPriorWindowStats(narrativeRID uuid.UUID, windowStart time.Time, windowSize time.Duration) (*model.WindowStats, error) {
	row := h.db.Instance.QueryRow(
		`SELECT * FROM select_window_stats($1, $2)`,
		narrativeRID,
		windowStart.Add(-windowSize),
	)

	stats := &model.WindowStats{}
	err := row.Scan(
		&stats.ID,
		&stats.NarrativeRID,
		&stats.WindowStart,
		&stats.WindowEnd,
		&stats.Mentions,
		&stats.UniqueAuthors,
		&stats.AvgEngagement,
		&stats.GrowthRate,
		&stats.Sentiment,
		&stats.Sources,
		&stats.AvgInfluence,
		&stats.AvgToxicity,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, helper.NewError("scan", err)
	}

	return stats, nil
}

// SelectRecentWindowStats retrieves up to limit windows of a narrative that
// start before the given time, newest first
func (h *StatsDBHandler) SelectRecentWindowStats(narrativeRID uuid.UUID, before time.Time, limit int) ([]*model.WindowStats, error) {
	rows, err := h.db.Instance.Query(
		`SELECT * FROM select_recent_window_stats($1, $2, $3)`,
		narrativeRID,
		before,
		limit,
	)
	if err != nil {
		return nil, helper.NewError("query", err)
	}
	defer rows.Close()

	var statsList []*model.WindowStats
	for rows.Next() {
		stats := &model.WindowStats{}
		err := rows.Scan(
			&stats.ID,
			&stats.NarrativeRID,
			&stats.WindowStart,
			&stats.WindowEnd,
			&stats.Mentions,
			&stats.UniqueAuthors,
			&stats.AvgEngagement,
			&stats.GrowthRate,
			&stats.Sentiment,
			&stats.Sources,
			&stats.AvgInfluence,
			&stats.AvgToxicity,
		)
		if err != nil {
			return nil, helper.NewError("scan", err)
		}

		statsList = append(statsList, stats)
	}

	err = rows.Err()
	if err != nil {
		return nil, helper.NewError("rows error", err)
	}

	return statsList, nil
}

// Watermark returns the start of the last aggregated window.
// found is false when no window has been aggregated yet.
func (h *StatsDBHandler) Watermark() (time.Time, bool, error) {
	row := h.db.Instance.QueryRow(`SELECT select_watermark()`)

	var watermark sql.NullTime
	err := row.Scan(&watermark)
	if err != nil {
		return time.Time{}, false, helper.NewError("scan", err)
	}

	return watermark.Time, watermark.Valid, nil
}

// AdvanceWatermark moves the watermark forward to windowStart and returns the
// stored value. The watermark never moves backwards.
func (h *StatsDBHandler) AdvanceWatermark(windowStart time.Time) (time.Time, error) {
	row := h.db.Instance.QueryRow(
		`SELECT advance_watermark($1)`,
		windowStart,
	)

	var watermark time.Time
	err := row.Scan(&watermark)
	if err != nil {
		return time.Time{}, helper.NewError("scan", err)
	}

	return watermark, nil
}

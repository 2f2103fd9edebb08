package database

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/siherrmann/narrative/helper"
	"github.com/siherrmann/narrative/model"
	loadSql "github.com/siherrmann/narrative/sql"
)

// AlertsDBHandlerFunctions defines the interface for Alerts database operations.
type AlertsDBHandlerFunctions interface {
	InsertAlert(alert *model.Alert) error
	SelectAlertsSince(since time.Time, narrativeRID *uuid.UUID) ([]*model.Alert, error)
	SelectRecentAlerts(limit int) ([]*model.Alert, error)
	AcknowledgeAlert(rid uuid.UUID, actor string) (*model.Alert, error)
}

// AlertsDBHandler handles alert-related database operations
type AlertsDBHandler struct {
	db *helper.Database
}

// NewAlertsDBHandler creates a new alerts database handler.
// It initializes the database connection and loads alert-related SQL functions.
// If force is true, it will reload the SQL functions even if they already exist.
func NewAlertsDBHandler(db *helper.Database, force bool) (*AlertsDBHandler, error) {
	if db == nil {
		return nil, helper.NewError("database connection validation", fmt.Errorf("database connection is nil"))
	}

	alertsDbHandler := &AlertsDBHandler{
		db: db,
	}

	err := loadSql.LoadAlertsSql(alertsDbHandler.db.Instance, force)
	if err != nil {
		return nil, helper.NewError("load alerts sql", err)
	}

	err = alertsDbHandler.CreateTable()
	if err != nil {
		return nil, helper.NewError("create table", err)
	}

	db.Logger.Info("Initialized AlertsDBHandler")

	return alertsDbHandler, nil
}

// CreateTable creates the 'alert' table in the database.
// If the table already exists, it does not create it again.
// It also creates all necessary indexes.
func (h *AlertsDBHandler) CreateTable() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Use the SQL init() function to create all tables and indexes
	_, err := h.db.Instance.ExecContext(ctx, `SELECT init_alerts();`)
	if err != nil {
		return helper.NewError("init alerts table", err)
	}

	h.db.Logger.Info("Checked/created table alert")

	return nil
}

// InsertAlert inserts a new alert
func (h *AlertsDBHandler) InsertAlert(alert *model.Alert) error {
	row := h.db.Instance.QueryRow(
		`SELECT * FROM insert_alert($1, $2, $3, $4)`,
		alert.NarrativeRID,
		alert.AlertType,
		alert.ThresholdConfig,
		alert.TriggeredAt,
	)

	err := row.Scan(
		&alert.ID,
		&alert.RID,
		&alert.NarrativeRID,
		&alert.AlertType,
		&alert.ThresholdConfig,
		&alert.TriggeredAt,
		&alert.AcknowledgedAt,
		&alert.AcknowledgedBy,
	)
	if err != nil {
		return helper.NewError("scan", err)
	}

	return nil
}

// SelectAlertsSince retrieves alerts triggered at or after the given time,
// newest first. A nil narrativeRID matches all narratives.
func (h *AlertsDBHandler) SelectAlertsSince(since time.Time, narrativeRID *uuid.UUID) ([]*model.Alert, error) {
	rows, err := h.db.Instance.Query(
		`SELECT * FROM select_alerts_since($1, $2)`,
		since,
		narrativeRID,
	)
	if err != nil {
		return nil, helper.NewError("query", err)
	}
	defer rows.Close()

	var alerts []*model.Alert
	for rows.Next() {
		alert := &model.Alert{}
		err := rows.Scan(
			&alert.ID,
			&alert.RID,
			&alert.NarrativeRID,
			&alert.AlertType,
			&alert.ThresholdConfig,
			&alert.TriggeredAt,
			&alert.AcknowledgedAt,
			&alert.AcknowledgedBy,
		)
		if err != nil {
			return nil, helper.NewError("scan", err)
		}

		alerts = append(alerts, alert)
	}

	err = rows.Err()
	if err != nil {
		return nil, helper.NewError("rows error", err)
	}

	return alerts, nil
}

// SelectRecentAlerts retrieves the most recent alerts across all narratives
func (h *AlertsDBHandler) SelectRecentAlerts(limit int) ([]*model.Alert, error) {
	rows, err := h.db.Instance.Query(
		`SELECT * FROM select_recent_alerts($1)`,
		limit,
	)
	if err != nil {
		return nil, helper.NewError("query", err)
	}
	defer rows.Close()

	var alerts []*model.Alert
	for rows.Next() {
		alert := &model.Alert{}
		err := rows.Scan(
			&alert.ID,
			&alert.RID,
			&alert.NarrativeRID,
			&alert.AlertType,
			&alert.ThresholdConfig,
			&alert.TriggeredAt,
			&alert.AcknowledgedAt,
			&alert.AcknowledgedBy,
		)
		if err != nil {
			return nil, helper.NewError("scan", err)
		}

		alerts = append(alerts, alert)
	}

	err = rows.Err()
	if err != nil {
		return nil, helper.NewError("rows error", err)
	}

	return alerts, nil
}

// AcknowledgeAlert marks an alert as acknowledged by the given actor.
// Acknowledging an already acknowledged alert keeps the first acknowledgement.
func (h *AlertsDBHandler) AcknowledgeAlert(rid uuid.UUID, actor string) (*model.Alert, error) {
	row := h.db.Instance.QueryRow(
		`SELECT * FROM acknowledge_alert($1, $2)`,
		rid,
		actor,
	)

	alert := &model.Alert{}
	err := row.Scan(
		&alert.ID,
		&alert.RID,
		&alert.NarrativeRID,
		&alert.AlertType,
		&alert.ThresholdConfig,
		&alert.TriggeredAt,
		&alert.AcknowledgedAt,
		&alert.AcknowledgedBy,
	)
	if err != nil {
		return nil, helper.NewError("scan", err)
	}

	return alert, nil
}

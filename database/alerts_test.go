package database

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/siherrmann/narrative/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAlertsNewAlertsDBHandler(t *testing.T) {
	database := initDB(t)

	t.Run("Valid call NewAlertsDBHandler", func(t *testing.T) {
		// Create narratives handler first to ensure narrative table exists (needed for foreign key)
		_, err := NewNarrativesDBHandler(database, 384, true)
		require.NoError(t, err, "Expected NewNarrativesDBHandler to not return an error")

		alertsDbHandler, err := NewAlertsDBHandler(database, true)
		assert.NoError(t, err, "Expected NewAlertsDBHandler to not return an error")
		require.NotNil(t, alertsDbHandler, "Expected NewAlertsDBHandler to return a non-nil instance")
		require.NotNil(t, alertsDbHandler.db, "Expected NewAlertsDBHandler to have a non-nil database instance")
		require.NotNil(t, alertsDbHandler.db.Instance, "Expected NewAlertsDBHandler to have a non-nil database connection instance")
	})

	t.Run("Invalid call NewAlertsDBHandler with nil database", func(t *testing.T) {
		_, err := NewAlertsDBHandler(nil, false)
		assert.Error(t, err, "Expected error when creating AlertsDBHandler with nil database")
		assert.Contains(t, err.Error(), "database connection is nil", "Expected specific error message for nil database connection")
	})
}

func TestAlertsInsert(t *testing.T) {
	narrativesDbHandler, _, _, alertsDbHandler := initHandlers(t)

	narrative := testNarrative(t, narrativesDbHandler, "alert insert test")

	t.Run("Insert alert", func(t *testing.T) {
		alert := &model.Alert{
			NarrativeRID: narrative.RID,
			AlertType:    model.AlertTypeSpike,
			ThresholdConfig: model.Metadata{
				"arm_threshold":    0.7,
				"disarm_threshold": 0.5,
			},
			TriggeredAt: time.Date(2009, 1, 1, 12, 0, 0, 0, time.UTC),
		}

		err := alertsDbHandler.InsertAlert(alert)
		assert.NoError(t, err, "Expected InsertAlert to not return an error")
		assert.NotEmpty(t, alert.ID, "Expected inserted alert to have an ID")
		assert.NotEqual(t, uuid.Nil, alert.RID, "Expected inserted alert to have a RID")
		assert.Equal(t, model.AlertTypeSpike, alert.AlertType, "Expected alert type to match")
		assert.Equal(t, 0.7, alert.ThresholdConfig["arm_threshold"], "Expected the threshold snapshot to round trip")
		assert.Nil(t, alert.AcknowledgedAt, "Expected a new alert to be unacknowledged")
		assert.Nil(t, alert.AcknowledgedBy, "Expected a new alert to have no acknowledging actor")
		assert.False(t, alert.Acknowledged(), "Expected a new alert to not report as acknowledged")
	})
}

func TestAlertsSelectSince(t *testing.T) {
	narrativesDbHandler, _, _, alertsDbHandler := initHandlers(t)

	firstNarrative := testNarrative(t, narrativesDbHandler, "alert since test a")
	secondNarrative := testNarrative(t, narrativesDbHandler, "alert since test b")
	base := time.Date(2009, 2, 1, 12, 0, 0, 0, time.UTC)

	older := &model.Alert{
		NarrativeRID: firstNarrative.RID,
		AlertType:    model.AlertTypeSpike,
		TriggeredAt:  base,
	}
	newer := &model.Alert{
		NarrativeRID: firstNarrative.RID,
		AlertType:    model.AlertTypeGrowth,
		TriggeredAt:  base.Add(30 * time.Minute),
	}
	other := &model.Alert{
		NarrativeRID: secondNarrative.RID,
		AlertType:    model.AlertTypeSpike,
		TriggeredAt:  base.Add(15 * time.Minute),
	}
	for _, alert := range []*model.Alert{older, newer, other} {
		err := alertsDbHandler.InsertAlert(alert)
		require.NoError(t, err)
	}

	t.Run("Select alerts since for one narrative", func(t *testing.T) {
		alerts, err := alertsDbHandler.SelectAlertsSince(base, &firstNarrative.RID)
		assert.NoError(t, err, "Expected SelectAlertsSince to not return an error")
		require.Len(t, alerts, 2, "Expected both alerts of the narrative")
		assert.Equal(t, newer.RID, alerts[0].RID, "Expected the newest alert first")
		assert.Equal(t, older.RID, alerts[1].RID, "Expected the oldest alert last")
	})

	t.Run("Select alerts since filters by time", func(t *testing.T) {
		alerts, err := alertsDbHandler.SelectAlertsSince(base.Add(30*time.Minute), &firstNarrative.RID)
		assert.NoError(t, err)
		require.Len(t, alerts, 1, "Expected only alerts triggered at or after since")
		assert.Equal(t, newer.RID, alerts[0].RID, "Expected the newer alert")
	})

	t.Run("Select alerts since for all narratives", func(t *testing.T) {
		alerts, err := alertsDbHandler.SelectAlertsSince(base, nil)
		assert.NoError(t, err)

		rids := []uuid.UUID{}
		for _, alert := range alerts {
			rids = append(rids, alert.RID)
		}
		assert.Contains(t, rids, older.RID, "Expected alerts of the first narrative")
		assert.Contains(t, rids, other.RID, "Expected alerts of the second narrative")
	})
}

func TestAlertsSelectRecent(t *testing.T) {
	narrativesDbHandler, _, _, alertsDbHandler := initHandlers(t)

	narrative := testNarrative(t, narrativesDbHandler, "alert recent test")
	base := time.Now()

	inserted := []*model.Alert{}
	for i := 0; i < 3; i++ {
		alert := &model.Alert{
			NarrativeRID: narrative.RID,
			AlertType:    model.AlertTypeGrowth,
			TriggeredAt:  base.Add(time.Duration(i) * time.Minute),
		}
		err := alertsDbHandler.InsertAlert(alert)
		require.NoError(t, err)
		inserted = append(inserted, alert)
	}

	t.Run("Select recent alerts", func(t *testing.T) {
		alerts, err := alertsDbHandler.SelectRecentAlerts(2)
		assert.NoError(t, err, "Expected SelectRecentAlerts to not return an error")
		require.Len(t, alerts, 2, "Expected the limit to cap the result")
		assert.Equal(t, inserted[2].RID, alerts[0].RID, "Expected the newest alert first")
		assert.Equal(t, inserted[1].RID, alerts[1].RID, "Expected the second newest alert after")
	})
}

func TestAlertsAcknowledge(t *testing.T) {
	narrativesDbHandler, _, _, alertsDbHandler := initHandlers(t)

	narrative := testNarrative(t, narrativesDbHandler, "alert acknowledge test")

	alert := &model.Alert{
		NarrativeRID: narrative.RID,
		AlertType:    model.AlertTypeSpike,
		TriggeredAt:  time.Date(2009, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	err := alertsDbHandler.InsertAlert(alert)
	require.NoError(t, err)

	t.Run("Acknowledge alert", func(t *testing.T) {
		acknowledged, err := alertsDbHandler.AcknowledgeAlert(alert.RID, "analyst_a")
		assert.NoError(t, err, "Expected AcknowledgeAlert to not return an error")
		require.NotNil(t, acknowledged, "Expected AcknowledgeAlert to return the alert")
		require.NotNil(t, acknowledged.AcknowledgedAt, "Expected the acknowledgement time to be set")
		require.NotNil(t, acknowledged.AcknowledgedBy, "Expected the acknowledging actor to be set")
		assert.Equal(t, "analyst_a", *acknowledged.AcknowledgedBy, "Expected the acknowledging actor to match")
		assert.True(t, acknowledged.Acknowledged(), "Expected the alert to report as acknowledged")
	})

	t.Run("Acknowledge alert twice keeps first acknowledgement", func(t *testing.T) {
		first, err := alertsDbHandler.AcknowledgeAlert(alert.RID, "analyst_a")
		require.NoError(t, err)

		second, err := alertsDbHandler.AcknowledgeAlert(alert.RID, "analyst_b")
		assert.NoError(t, err, "Expected a repeated acknowledgement to not return an error")
		require.NotNil(t, second.AcknowledgedBy, "Expected the acknowledging actor to stay set")
		assert.Equal(t, "analyst_a", *second.AcknowledgedBy, "Expected the first acknowledging actor to win")
		assert.Equal(t, *first.AcknowledgedAt, *second.AcknowledgedAt, "Expected the first acknowledgement time to win")
	})

	t.Run("Acknowledge unknown alert", func(t *testing.T) {
		_, err := alertsDbHandler.AcknowledgeAlert(uuid.New(), "analyst_a")
		assert.Error(t, err, "Expected acknowledging an unknown alert to return an error")
	})
}

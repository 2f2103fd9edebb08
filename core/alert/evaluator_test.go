package alert

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/siherrmann/narrative/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var alertBase = time.Date(2025, 7, 1, 12, 0, 0, 0, time.UTC)

func testAlertConfig() *model.EngineConfig {
	config := model.DefaultEngineConfig()
	config.Alerts.ArmThreshold = 0.7
	config.Alerts.DisarmThreshold = 0.5
	config.Alerts.DwellWindows = 1
	config.Alerts.CooldownWindows = 2
	return config
}

func testWindow(narrativeRID uuid.UUID, window int, virality float64, growth float64) (*model.Score, *model.WindowStats) {
	windowStart := alertBase.Add(time.Duration(window) * 15 * time.Minute)
	stats := &model.WindowStats{
		NarrativeRID: narrativeRID,
		WindowStart:  windowStart,
		WindowEnd:    windowStart.Add(15 * time.Minute),
		Mentions:     10,
		GrowthRate:   growth,
	}
	score := &model.Score{
		NarrativeRID: narrativeRID,
		WindowStart:  windowStart,
		Virality:     virality,
	}
	return score, stats
}

// runTrace feeds consecutive windows of virality values through the evaluator
// and returns the zero based window indexes that fired plus the alerts.
func runTrace(evaluator *Evaluator, narrativeRID uuid.UUID, viralities []float64) ([]int, []*model.Alert) {
	firedAt := []int{}
	fired := []*model.Alert{}
	for i, virality := range viralities {
		score, stats := testWindow(narrativeRID, i, virality, 0)
		for _, alert := range evaluator.Evaluate(score, stats) {
			firedAt = append(firedAt, i)
			fired = append(fired, alert)
		}
	}
	return firedAt, fired
}

func TestEvaluate(t *testing.T) {
	t.Run("Single spike phase fires exactly once", func(t *testing.T) {
		evaluator := NewEvaluator(testAlertConfig())

		firedAt, fired := runTrace(evaluator, uuid.New(), []float64{0.3, 0.85, 0.9, 0.4, 0.2})

		require.Len(t, fired, 1, "Expected exactly one alert for one spike phase")
		assert.Equal(t, []int{2}, firedAt, "Expected the alert once the spike persisted into a second window")
		assert.Equal(t, model.AlertTypeSpike, fired[0].AlertType)
		assert.Equal(t, alertBase.Add(3*15*time.Minute), fired[0].TriggeredAt, "Expected the close time of the firing window")
		assert.Equal(t, 0.7, fired[0].ThresholdConfig["arm_threshold"])
		assert.Equal(t, 0.5, fired[0].ThresholdConfig["disarm_threshold"])
		assert.Equal(t, 1, fired[0].ThresholdConfig["dwell_windows"])
		assert.Equal(t, 0.9, fired[0].ThresholdConfig["virality"])
	})

	t.Run("Single hot window is noise", func(t *testing.T) {
		evaluator := NewEvaluator(testAlertConfig())

		_, fired := runTrace(evaluator, uuid.New(), []float64{0.9, 0.3, 0.3, 0.3})

		assert.Empty(t, fired, "Expected the dwell to filter a one window spike")
	})

	t.Run("Band keeps the narrative armed but restarts the dwell", func(t *testing.T) {
		config := testAlertConfig()
		config.Alerts.DwellWindows = 2
		evaluator := NewEvaluator(config)

		firedAt, fired := runTrace(evaluator, uuid.New(), []float64{0.9, 0.9, 0.6, 0.9, 0.9})

		require.Len(t, fired, 1)
		assert.Equal(t, []int{4}, firedAt, "Expected the band window to restart the dwell")
	})

	t.Run("Below disarm the machine goes quiet immediately", func(t *testing.T) {
		evaluator := NewEvaluator(testAlertConfig())

		firedAt, fired := runTrace(evaluator, uuid.New(), []float64{0.9, 0.45, 0.9, 0.9})

		require.Len(t, fired, 1)
		assert.Equal(t, []int{3}, firedAt, "Expected the drop to force a fresh arm and dwell")
	})

	t.Run("Cooldown gates a persistent spike", func(t *testing.T) {
		config := testAlertConfig()
		config.Alerts.DwellWindows = 0
		evaluator := NewEvaluator(config)

		firedAt, fired := runTrace(evaluator, uuid.New(), []float64{0.9, 0.9, 0.9, 0.9, 0.9})

		require.Len(t, fired, 2)
		assert.Equal(t, []int{0, 3}, firedAt)
	})

	t.Run("Cooldown holds even when the score collapses", func(t *testing.T) {
		config := testAlertConfig()
		config.Alerts.DwellWindows = 0
		config.Alerts.CooldownWindows = 3
		evaluator := NewEvaluator(config)

		firedAt, fired := runTrace(evaluator, uuid.New(), []float64{0.9, 0.2, 0.9, 0.9, 0.9})

		require.Len(t, fired, 2)
		assert.Equal(t, []int{0, 4}, firedAt, "Expected the fired state to outlive the dip")
	})

	t.Run("Growth arms and fires a growth alert", func(t *testing.T) {
		evaluator := NewEvaluator(testAlertConfig())
		narrativeRID := uuid.New()

		fired := []*model.Alert{}
		for i, growth := range []float64{2.0, 1.8, 0.1} {
			score, stats := testWindow(narrativeRID, i, 0.1, growth)
			fired = append(fired, evaluator.Evaluate(score, stats)...)
		}

		require.Len(t, fired, 1)
		assert.Equal(t, model.AlertTypeGrowth, fired[0].AlertType)
		assert.Equal(t, 1.5, fired[0].ThresholdConfig["growth_arm_threshold"])
		assert.Equal(t, 1.8, fired[0].ThresholdConfig["growth_rate"])
	})

	t.Run("Virality wins when both trigger", func(t *testing.T) {
		config := testAlertConfig()
		config.Alerts.DwellWindows = 0
		evaluator := NewEvaluator(config)

		score, stats := testWindow(uuid.New(), 0, 0.9, 2.0)
		alerts := evaluator.Evaluate(score, stats)

		require.Len(t, alerts, 1)
		assert.Equal(t, model.AlertTypeSpike, alerts[0].AlertType)
	})

	t.Run("Growth between disarm and arm holds the armed state", func(t *testing.T) {
		evaluator := NewEvaluator(testAlertConfig())
		narrativeRID := uuid.New()

		firedAt := []int{}
		for i, growth := range []float64{2.0, 0.8, 2.0, 2.0} {
			score, stats := testWindow(narrativeRID, i, 0.1, growth)
			if len(evaluator.Evaluate(score, stats)) > 0 {
				firedAt = append(firedAt, i)
			}
		}

		assert.Equal(t, []int{2}, firedAt)
	})

	t.Run("Narratives do not share state", func(t *testing.T) {
		evaluator := NewEvaluator(testAlertConfig())
		hot := uuid.New()
		cold := uuid.New()

		hotAlerts := []*model.Alert{}
		coldAlerts := []*model.Alert{}
		for i := 0; i < 2; i++ {
			score, stats := testWindow(hot, i, 0.9, 0)
			hotAlerts = append(hotAlerts, evaluator.Evaluate(score, stats)...)
			score, stats = testWindow(cold, i, 0.2, 0)
			coldAlerts = append(coldAlerts, evaluator.Evaluate(score, stats)...)
		}

		require.Len(t, hotAlerts, 1)
		assert.Equal(t, hot, hotAlerts[0].NarrativeRID)
		assert.Empty(t, coldAlerts)
	})

	t.Run("Forget clears the armed state", func(t *testing.T) {
		evaluator := NewEvaluator(testAlertConfig())
		narrativeRID := uuid.New()

		score, stats := testWindow(narrativeRID, 0, 0.9, 0)
		require.Empty(t, evaluator.Evaluate(score, stats))

		evaluator.Forget(narrativeRID)

		score, stats = testWindow(narrativeRID, 1, 0.9, 0)
		assert.Empty(t, evaluator.Evaluate(score, stats), "Expected a forgotten narrative to arm from scratch")

		score, stats = testWindow(narrativeRID, 2, 0.9, 0)
		assert.Len(t, evaluator.Evaluate(score, stats), 1)
	})
}

func TestRestore(t *testing.T) {
	t.Run("Alert inside the cooldown suppresses refiring", func(t *testing.T) {
		config := testAlertConfig()
		config.Alerts.DwellWindows = 0
		config.Alerts.CooldownWindows = 4
		evaluator := NewEvaluator(config)
		narrativeRID := uuid.New()

		// Fired at the window closing at alertBase, two windows evaluated
		// before the restart.
		persisted := &model.Alert{
			NarrativeRID: narrativeRID,
			AlertType:    model.AlertTypeSpike,
			TriggeredAt:  alertBase,
		}
		evaluator.Restore([]*model.Alert{persisted}, alertBase.Add(30*time.Minute))

		firedAt := []int{}
		for i := 2; i <= 4; i++ {
			score, stats := testWindow(narrativeRID, i, 0.9, 0)
			if len(evaluator.Evaluate(score, stats)) > 0 {
				firedAt = append(firedAt, i)
			}
		}

		assert.Equal(t, []int{4}, firedAt, "Expected the remaining cooldown to gate the first two windows")
	})

	t.Run("Expired alerts restore nothing", func(t *testing.T) {
		config := testAlertConfig()
		config.Alerts.DwellWindows = 0
		evaluator := NewEvaluator(config)
		narrativeRID := uuid.New()

		stale := &model.Alert{
			NarrativeRID: narrativeRID,
			AlertType:    model.AlertTypeSpike,
			TriggeredAt:  alertBase.Add(-24 * time.Hour),
		}
		evaluator.Restore([]*model.Alert{stale}, alertBase)

		score, stats := testWindow(narrativeRID, 0, 0.9, 0)
		assert.Len(t, evaluator.Evaluate(score, stats), 1, "Expected an old alert to leave the machine quiet")
	})
}

func TestSnapshotRollback(t *testing.T) {
	t.Run("Replay after rollback fires the same window again", func(t *testing.T) {
		evaluator := NewEvaluator(testAlertConfig())
		narrativeRID := uuid.New()

		// Window 0 arms the machine, then the caller fails to persist the
		// alert of window 1 and rolls back before retrying the window.
		score, stats := testWindow(narrativeRID, 0, 0.9, 0)
		require.Empty(t, evaluator.Evaluate(score, stats))

		snapshot := evaluator.Snapshot()
		score, stats = testWindow(narrativeRID, 1, 0.9, 0)
		require.Len(t, evaluator.Evaluate(score, stats), 1)
		evaluator.Rollback(snapshot)

		alerts := evaluator.Evaluate(score, stats)
		require.Len(t, alerts, 1, "Expected the retried window to fire again")
		assert.Equal(t, alertBase.Add(2*15*time.Minute), alerts[0].TriggeredAt)
	})

	t.Run("Rollback does not rewind the cooldown", func(t *testing.T) {
		config := testAlertConfig()
		config.Alerts.DwellWindows = 0
		evaluator := NewEvaluator(config)
		narrativeRID := uuid.New()

		score, stats := testWindow(narrativeRID, 0, 0.9, 0)
		require.Len(t, evaluator.Evaluate(score, stats), 1)

		// A failed attempt at window 1 counted the cooldown down once. The
		// retry must count it down once, not twice.
		snapshot := evaluator.Snapshot()
		score, stats = testWindow(narrativeRID, 1, 0.9, 0)
		require.Empty(t, evaluator.Evaluate(score, stats))
		evaluator.Rollback(snapshot)
		require.Empty(t, evaluator.Evaluate(score, stats))

		firedAt, fired := []int{}, 0
		for i := 2; i <= 3; i++ {
			score, stats = testWindow(narrativeRID, i, 0.9, 0)
			if alerts := evaluator.Evaluate(score, stats); len(alerts) > 0 {
				firedAt = append(firedAt, i)
				fired += len(alerts)
			}
		}
		require.Equal(t, 1, fired)
		assert.Equal(t, []int{3}, firedAt, "Expected the full cooldown before refiring")
	})

	t.Run("Rollback drops narratives first seen after the snapshot", func(t *testing.T) {
		evaluator := NewEvaluator(testAlertConfig())
		narrativeRID := uuid.New()

		snapshot := evaluator.Snapshot()
		score, stats := testWindow(narrativeRID, 0, 0.9, 0)
		require.Empty(t, evaluator.Evaluate(score, stats))
		evaluator.Rollback(snapshot)

		firedAt, _ := runTrace(evaluator, narrativeRID, []float64{0.9, 0.9})

		assert.Equal(t, []int{1}, firedAt, "Expected the narrative to arm from scratch after rollback")
	})
}

func TestEvaluateSentimentShift(t *testing.T) {
	shiftConfig := func() *model.EngineConfig {
		config := testAlertConfig()
		config.Alerts.SentimentShift = model.SentimentShiftConfig{
			Enabled:         true,
			ArmThreshold:    0.4,
			DisarmThreshold: 0.2,
		}
		return config
	}

	runSentiments := func(evaluator *Evaluator, narrativeRID uuid.UUID, sentiments []float64) ([]int, []*model.Alert) {
		firedAt := []int{}
		fired := []*model.Alert{}
		for i, sentiment := range sentiments {
			score, stats := testWindow(narrativeRID, i, 0.1, 0)
			stats.Sentiment = sentiment
			for _, alert := range evaluator.Evaluate(score, stats) {
				firedAt = append(firedAt, i)
				fired = append(fired, alert)
			}
		}
		return firedAt, fired
	}

	t.Run("Sustained shift fires once", func(t *testing.T) {
		evaluator := NewEvaluator(shiftConfig())

		firedAt, fired := runSentiments(evaluator, uuid.New(), []float64{0.0, 0.1, 0.6, 0.6, 0.6, 0.6, 0.6})

		require.Len(t, fired, 1)
		assert.Equal(t, []int{3}, firedAt, "Expected the shift to fire after persisting one window")
		assert.Equal(t, model.AlertTypeSentimentShift, fired[0].AlertType)
		assert.Equal(t, 0.4, fired[0].ThresholdConfig["arm_threshold"])
		assert.InDelta(t, 0.5, fired[0].ThresholdConfig["sentiment_delta"].(float64), 1e-9)
	})

	t.Run("Return to the old level disarms", func(t *testing.T) {
		evaluator := NewEvaluator(shiftConfig())

		_, fired := runSentiments(evaluator, uuid.New(), []float64{0.0, 0.6, 0.1, 0.1})

		assert.Empty(t, fired, "Expected a one window swing to disarm without firing")
	})

	t.Run("Disabled machine stays silent", func(t *testing.T) {
		evaluator := NewEvaluator(testAlertConfig())

		_, fired := runSentiments(evaluator, uuid.New(), []float64{0.0, 0.9, 0.9, 0.9})

		assert.Empty(t, fired)
	})

	t.Run("Windows without mentions leave the machine untouched", func(t *testing.T) {
		evaluator := NewEvaluator(shiftConfig())
		narrativeRID := uuid.New()

		firedAt := []int{}
		for i, sentiment := range []float64{0.5, 0, 0.9, 0.9} {
			score, stats := testWindow(narrativeRID, i, 0.1, 0)
			stats.Sentiment = sentiment
			if i == 1 {
				stats.Mentions = 0
			}
			if len(evaluator.Evaluate(score, stats)) > 0 {
				firedAt = append(firedAt, i)
			}
		}

		assert.Equal(t, []int{3}, firedAt, "Expected the baseline to survive an empty window")
	})
}

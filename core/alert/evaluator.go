// Package alert turns window scores into alerts with per narrative
// hysteresis so one spike phase emits one alert instead of one per window.
package alert

import (
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/siherrmann/narrative/model"
)

type machineState int

const (
	stateQuiet machineState = iota
	stateArmed
	stateFired
)

// machine is a single quiet-armed-fired loop over one trigger family.
type machine struct {
	state        machineState
	trigger      model.AlertType
	dwell        int
	cooldownLeft int
}

func (m *machine) arm(trigger model.AlertType) {
	m.state = stateArmed
	m.trigger = trigger
	m.dwell = 0
}

func (m *machine) reset() {
	m.state = stateQuiet
	m.trigger = ""
	m.dwell = 0
	m.cooldownLeft = 0
}

type narrativeState struct {
	level machine
	shift machine
	// baseline is the sentiment level the shift machine compares against.
	// It follows the previous window while the machine is quiet and stays
	// anchored while a shift is being confirmed.
	baseline    float64
	hasBaseline bool
}

// Evaluator keeps one state machine per narrative and decides when a scored
// window turns into an alert. A narrative arms when its virality or growth
// crosses the arm threshold, fires after the condition persisted for the
// configured dwell windows and then stays silent for the cooldown.
// The evaluator is driven by a single cycle loop and is not safe for
// concurrent use.
type Evaluator struct {
	config     *model.EngineConfig
	narratives map[uuid.UUID]*narrativeState
}

// NewEvaluator returns an evaluator with all narratives in the quiet state.
func NewEvaluator(config *model.EngineConfig) *Evaluator {
	return &Evaluator{
		config:     config,
		narratives: map[uuid.UUID]*narrativeState{},
	}
}

// Evaluate advances the state machines of one narrative by one closed window
// and returns the alerts fired at that window. The score and stats must
// belong to the same narrative and window.
func (e *Evaluator) Evaluate(score *model.Score, stats *model.WindowStats) []*model.Alert {
	if score == nil || stats == nil {
		return nil
	}

	tracked := e.trackedState(stats.NarrativeRID)
	alerts := []*model.Alert{}
	if alert := e.evaluateLevel(tracked, score, stats); alert != nil {
		alerts = append(alerts, alert)
	}
	if e.config.Alerts.SentimentShift.Enabled {
		if alert := e.evaluateShift(tracked, stats); alert != nil {
			alerts = append(alerts, alert)
		}
	}

	if len(alerts) == 0 {
		return nil
	}
	return alerts
}

// Restore reseeds fired machines from alerts persisted before a restart so a
// spike phase does not fire twice across process boundaries. nextWindowStart
// is the start of the first window the caller will evaluate after restoring.
func (e *Evaluator) Restore(alerts []*model.Alert, nextWindowStart time.Time) {
	windowSize := e.config.WindowSize.Std()
	cooldown := e.config.Alerts.CooldownWindows
	if windowSize <= 0 || cooldown <= 0 {
		return
	}

	for _, alert := range alerts {
		if alert == nil {
			continue
		}
		elapsed := int(nextWindowStart.Sub(alert.TriggeredAt) / windowSize)
		if elapsed < 0 {
			elapsed = 0
		}
		left := cooldown - elapsed
		if left <= 0 {
			continue
		}

		tracked := e.trackedState(alert.NarrativeRID)
		m := &tracked.level
		if alert.AlertType == model.AlertTypeSentimentShift {
			m = &tracked.shift
		}
		if m.state == stateFired && m.cooldownLeft >= left {
			continue
		}
		m.state = stateFired
		m.trigger = alert.AlertType
		m.dwell = 0
		m.cooldownLeft = left
	}
}

// Snapshot captures the current machine states. A caller that persists the
// fired alerts after evaluating can roll a failed attempt back so the retry
// advances every machine by one window, not two.
type Snapshot struct {
	narratives map[uuid.UUID]*narrativeState
}

// Snapshot returns a copy of all machine states.
func (e *Evaluator) Snapshot() *Snapshot {
	narratives := make(map[uuid.UUID]*narrativeState, len(e.narratives))
	for rid, tracked := range e.narratives {
		copied := *tracked
		narratives[rid] = &copied
	}
	return &Snapshot{narratives: narratives}
}

// Rollback resets the evaluator to a snapshot taken earlier.
func (e *Evaluator) Rollback(snapshot *Snapshot) {
	if snapshot == nil {
		return
	}
	e.narratives = snapshot.narratives
}

// Forget drops the state of a narrative that aged out of the active set.
func (e *Evaluator) Forget(narrativeRID uuid.UUID) {
	delete(e.narratives, narrativeRID)
}

func (e *Evaluator) trackedState(narrativeRID uuid.UUID) *narrativeState {
	tracked, ok := e.narratives[narrativeRID]
	if !ok {
		tracked = &narrativeState{}
		e.narratives[narrativeRID] = tracked
	}
	return tracked
}

// evaluateLevel runs the shared machine for the spike and growth triggers.
// Virality wins when both trigger in the same window.
func (e *Evaluator) evaluateLevel(tracked *narrativeState, score *model.Score, stats *model.WindowStats) *model.Alert {
	alerts := e.config.Alerts
	spiking := score.Virality >= alerts.ArmThreshold
	growing := stats.GrowthRate >= alerts.GrowthArmThreshold

	m := &tracked.level
	switch m.state {
	case stateFired:
		// A fired machine waits out the cooldown even below the disarm level.
		m.cooldownLeft--
		if m.cooldownLeft <= 0 {
			m.reset()
		}
	case stateArmed:
		value := score.Virality
		holding := spiking
		if m.trigger == model.AlertTypeGrowth {
			value = stats.GrowthRate
			holding = growing
		}
		switch {
		case value < alerts.DisarmThreshold:
			m.reset()
		case holding:
			m.dwell++
			if m.dwell >= alerts.DwellWindows {
				return e.fire(m, stats, e.levelThresholds(m.trigger, score, stats))
			}
		default:
			// Between disarm and arm the narrative stays armed but has to
			// start the dwell over.
			m.dwell = 0
		}
	default:
		if spiking {
			m.arm(model.AlertTypeSpike)
		} else if growing {
			m.arm(model.AlertTypeGrowth)
		}
		if m.state == stateArmed && alerts.DwellWindows <= 0 {
			return e.fire(m, stats, e.levelThresholds(m.trigger, score, stats))
		}
	}
	return nil
}

// evaluateShift runs the optional sentiment machine over the distance to the
// quiet time baseline. Windows without mentions carry no sentiment and leave
// the machine untouched.
func (e *Evaluator) evaluateShift(tracked *narrativeState, stats *model.WindowStats) *model.Alert {
	if stats.Mentions == 0 {
		return nil
	}
	if !tracked.hasBaseline {
		tracked.baseline = stats.Sentiment
		tracked.hasBaseline = true
		return nil
	}

	shift := e.config.Alerts.SentimentShift
	delta := math.Abs(stats.Sentiment - tracked.baseline)

	m := &tracked.shift
	switch m.state {
	case stateFired:
		m.cooldownLeft--
		if m.cooldownLeft <= 0 {
			m.reset()
			tracked.baseline = stats.Sentiment
		}
	case stateArmed:
		switch {
		case delta < shift.DisarmThreshold:
			m.reset()
			tracked.baseline = stats.Sentiment
		case delta >= shift.ArmThreshold:
			m.dwell++
			if m.dwell >= e.config.Alerts.DwellWindows {
				return e.fire(m, stats, e.shiftThresholds(delta))
			}
		default:
			m.dwell = 0
		}
	default:
		if delta >= shift.ArmThreshold {
			m.arm(model.AlertTypeSentimentShift)
			if e.config.Alerts.DwellWindows <= 0 {
				return e.fire(m, stats, e.shiftThresholds(delta))
			}
		} else {
			tracked.baseline = stats.Sentiment
		}
	}
	return nil
}

// fire emits the alert for the window that completed the dwell and moves the
// machine into the cooldown.
func (e *Evaluator) fire(m *machine, stats *model.WindowStats, thresholds model.Metadata) *model.Alert {
	trigger := m.trigger
	if cooldown := e.config.Alerts.CooldownWindows; cooldown > 0 {
		m.state = stateFired
		m.dwell = 0
		m.cooldownLeft = cooldown
	} else {
		m.reset()
	}

	return &model.Alert{
		NarrativeRID:    stats.NarrativeRID,
		AlertType:       trigger,
		ThresholdConfig: thresholds,
		TriggeredAt:     stats.WindowEnd,
	}
}

func (e *Evaluator) levelThresholds(trigger model.AlertType, score *model.Score, stats *model.WindowStats) model.Metadata {
	alerts := e.config.Alerts
	thresholds := model.Metadata{
		"disarm_threshold": alerts.DisarmThreshold,
		"dwell_windows":    alerts.DwellWindows,
		"cooldown_windows": alerts.CooldownWindows,
	}
	if trigger == model.AlertTypeGrowth {
		thresholds["growth_arm_threshold"] = alerts.GrowthArmThreshold
		thresholds["growth_rate"] = stats.GrowthRate
	} else {
		thresholds["arm_threshold"] = alerts.ArmThreshold
		thresholds["virality"] = score.Virality
	}
	return thresholds
}

func (e *Evaluator) shiftThresholds(delta float64) model.Metadata {
	shift := e.config.Alerts.SentimentShift
	return model.Metadata{
		"arm_threshold":    shift.ArmThreshold,
		"disarm_threshold": shift.DisarmThreshold,
		"dwell_windows":    e.config.Alerts.DwellWindows,
		"cooldown_windows": e.config.Alerts.CooldownWindows,
		"sentiment_delta":  delta,
	}
}

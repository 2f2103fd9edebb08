package scoring

import (
	"math"
	"time"

	"github.com/siherrmann/narrative/model"
)

// Engine computes the virality and launch readiness scores of a narrative
// window. Raw factors are normalized by percentile rank against the
// narrative's own recent windows so scores stay comparable across narratives
// of very different absolute scale.
type Engine struct {
	config *model.EngineConfig
}

// NewEngine creates a scoring engine from the engine configuration.
func NewEngine(config *model.EngineConfig) *Engine {
	return &Engine{config: config}
}

// Score computes the scores of one aggregated window. history holds the
// narrative's previous window stats as the reference distribution, an empty
// reference ranks every factor at 0.5. novelty is derived from centroid
// similarity by the store and passed in, ideation inputs are external and
// default to zero when absent.
func (e *Engine) Score(stats *model.WindowStats, history []*model.WindowStats, novelty float64, ideation *model.IdeationInput) *model.Score {
	reference := make([]*model.WindowStats, 0, len(history)+1)
	for _, window := range history {
		if window.WindowStart.Before(stats.WindowStart) {
			reference = append(reference, window)
		}
	}
	if len(reference) > e.config.ReferenceWindows {
		reference = reference[:e.config.ReferenceWindows]
	}

	factors := model.Factors{
		Volume: percentileRank(
			math.Log1p(float64(stats.Mentions)),
			collect(reference, func(w *model.WindowStats) float64 { return math.Log1p(float64(w.Mentions)) }),
		),
		Growth: percentileRank(
			stats.GrowthRate,
			collect(reference, func(w *model.WindowStats) float64 { return w.GrowthRate }),
		),
		Engagement: percentileRank(
			stats.AvgEngagement,
			collect(reference, func(w *model.WindowStats) float64 { return w.AvgEngagement }),
		),
		Influence: percentileRank(
			stats.AvgInfluence,
			collect(reference, func(w *model.WindowStats) float64 { return w.AvgInfluence }),
		),
		Novelty:  clamp01(novelty),
		Recency:  e.recency(stats, reference),
		Toxicity: stats.AvgToxicity,
	}

	weights := e.config.Weights.Virality
	virality := clamp01(weights.Volume*factors.Volume +
		weights.Growth*factors.Growth +
		weights.Engagement*factors.Engagement +
		weights.Influence*factors.Influence +
		weights.Novelty*factors.Novelty +
		weights.Recency*factors.Recency -
		weights.Toxicity*factors.Toxicity)

	memeFit := 0.0
	copyrightRisk := 0.0
	if ideation != nil {
		memeFit = ideation.MemeFit
		copyrightRisk = ideation.CopyrightRisk
	}

	launchWeights := e.config.Weights.LaunchReadiness
	launchReadiness := launchWeights.Virality*virality +
		launchWeights.MemeFit*memeFit -
		launchWeights.CopyrightRisk*copyrightRisk

	return &model.Score{
		NarrativeRID:    stats.NarrativeRID,
		WindowStart:     stats.WindowStart,
		Virality:        virality,
		LaunchReadiness: launchReadiness,
		Factors:         factors,
	}
}

// recency decays with the time since the most recent spike window, the
// current window included. A window spikes when its growth rate reaches
// spike_growth. Without any spike in reach the factor is 0.
func (e *Engine) recency(stats *model.WindowStats, reference []*model.WindowStats) float64 {
	if stats.GrowthRate >= e.config.SpikeGrowth {
		return 1
	}

	var spikeAt time.Time
	for _, window := range reference {
		if window.GrowthRate >= e.config.SpikeGrowth && window.WindowEnd.After(spikeAt) {
			spikeAt = window.WindowEnd
		}
	}
	if spikeAt.IsZero() {
		return 0
	}

	elapsed := stats.WindowEnd.Sub(spikeAt)
	if elapsed <= 0 {
		return 1
	}

	return math.Pow(0.5, float64(elapsed)/float64(e.config.RecencyHalfLife.Std()))
}

// percentileRank places value inside the reference distribution as the mean
// of the strictly-below and at-or-below ranks, so ties land in the middle.
// An empty reference ranks at 0.5.
func percentileRank(value float64, reference []float64) float64 {
	if len(reference) == 0 {
		return 0.5
	}

	below := 0
	atOrBelow := 0
	for _, other := range reference {
		if other < value {
			below++
		}
		if other <= value {
			atOrBelow++
		}
	}

	return float64(below+atOrBelow) / float64(2*len(reference))
}

func collect(windows []*model.WindowStats, value func(*model.WindowStats) float64) []float64 {
	values := make([]float64, 0, len(windows))
	for _, window := range windows {
		values = append(values, value(window))
	}
	return values
}

func clamp01(value float64) float64 {
	if value < 0 {
		return 0
	}
	if value > 1 {
		return 1
	}
	return value
}

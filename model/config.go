package model

import (
	"fmt"
	"os"
	"time"

	"github.com/siherrmann/narrative/helper"
	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration so YAML configs can use strings like "15m".
type Duration time.Duration

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return helper.NewError("duration decode", err)
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return helper.NewError("duration parse", err)
	}
	*d = Duration(parsed)
	return nil
}

// VSWeights weights the virality score factors. Toxicity is a penalty.
type VSWeights struct {
	Volume     float64 `json:"volume" yaml:"volume"`
	Growth     float64 `json:"growth" yaml:"growth"`
	Engagement float64 `json:"engagement" yaml:"engagement"`
	Influence  float64 `json:"influence" yaml:"influence"`
	Novelty    float64 `json:"novelty" yaml:"novelty"`
	Recency    float64 `json:"recency" yaml:"recency"`
	Toxicity   float64 `json:"toxicity" yaml:"toxicity"`
}

// LRSWeights weights the launch readiness score inputs. CopyrightRisk is a
// penalty.
type LRSWeights struct {
	Virality      float64 `json:"virality" yaml:"virality"`
	MemeFit       float64 `json:"meme_fit" yaml:"meme_fit"`
	CopyrightRisk float64 `json:"copyright_risk" yaml:"copyright_risk"`
}

// ScoringWeights groups the configurable score weights.
type ScoringWeights struct {
	Virality        VSWeights  `json:"virality" yaml:"virality"`
	LaunchReadiness LRSWeights `json:"launch_readiness" yaml:"launch_readiness"`
}

// SentimentShiftConfig configures the optional sentiment shift alert machine.
// Thresholds apply to the absolute sentiment delta between adjacent windows.
type SentimentShiftConfig struct {
	Enabled         bool    `json:"enabled" yaml:"enabled"`
	ArmThreshold    float64 `json:"arm_threshold" yaml:"arm_threshold"`
	DisarmThreshold float64 `json:"disarm_threshold" yaml:"disarm_threshold"`
}

// AlertConfig configures the alert evaluator state machines. Dwell and
// cooldown are counted in whole windows.
type AlertConfig struct {
	ArmThreshold       float64              `json:"arm_threshold" yaml:"arm_threshold"`
	GrowthArmThreshold float64              `json:"growth_arm_threshold" yaml:"growth_arm_threshold"`
	DisarmThreshold    float64              `json:"disarm_threshold" yaml:"disarm_threshold"`
	DwellWindows       int                  `json:"dwell_windows" yaml:"dwell_windows"`
	CooldownWindows    int                  `json:"cooldown_windows" yaml:"cooldown_windows"`
	SentimentShift     SentimentShiftConfig `json:"sentiment_shift" yaml:"sentiment_shift"`
}

// EngineConfig represents the full engine configuration. Zero values are
// filled by DefaultEngineConfig, files loaded with LoadEngineConfig override
// individual keys.
type EngineConfig struct {
	EmbeddingDim int `json:"embedding_dim" yaml:"embedding_dim"`

	// Normalization
	Languages     []string `json:"languages,omitempty" yaml:"languages"`
	MaxTextLength int      `json:"max_text_length" yaml:"max_text_length"`

	// Clustering
	MergeThreshold float64             `json:"merge_threshold" yaml:"merge_threshold"`
	EwmaAlpha      float64             `json:"ewma_alpha" yaml:"ewma_alpha"`
	TieEpsilon     float64             `json:"tie_epsilon" yaml:"tie_epsilon"`
	PoolEpsilon    float64             `json:"pool_epsilon" yaml:"pool_epsilon"` // Max cosine distance inside a pool cluster
	MinClusterSize int                 `json:"min_cluster_size" yaml:"min_cluster_size"`
	MaxKeywords    int                 `json:"max_keywords" yaml:"max_keywords"`
	Categories     map[string][]string `json:"categories,omitempty" yaml:"categories"` // Category -> trigger keywords

	// Windowing
	WindowSize     Duration `json:"window_size" yaml:"window_size"`
	LookbackWindow Duration `json:"lookback_window" yaml:"lookback_window"`
	CloseLag       Duration `json:"close_lag" yaml:"close_lag"` // Safety lag before a window counts as closed

	// Scoring
	EngagementMetrics []string       `json:"engagement_metrics,omitempty" yaml:"engagement_metrics"`
	ReferenceWindows  int            `json:"reference_windows" yaml:"reference_windows"`
	NoveltyAge        Duration       `json:"novelty_age" yaml:"novelty_age"`
	SpikeGrowth       float64        `json:"spike_growth" yaml:"spike_growth"`
	RecencyHalfLife   Duration       `json:"recency_half_life" yaml:"recency_half_life"`
	Weights           ScoringWeights `json:"weights" yaml:"weights"`

	// Alerting
	Alerts     AlertConfig `json:"alerts" yaml:"alerts"`
	AlertTopic string      `json:"alert_topic" yaml:"alert_topic"` // Topic a connected alert bus publishes to

	// Cycle
	CycleRetries int `json:"cycle_retries" yaml:"cycle_retries"`
}

// DefaultEngineConfig returns a sensible default configuration
func DefaultEngineConfig() *EngineConfig {
	return &EngineConfig{
		EmbeddingDim:   384,
		Languages:      []string{"en"},
		MaxTextLength:  4096,
		MergeThreshold: 0.75,
		EwmaAlpha:      0.3,
		TieEpsilon:     0.02,
		PoolEpsilon:    0.25,
		MinClusterSize: 3,
		MaxKeywords:    8,
		Categories:     nil, // No category rules, everything lands in "general"
		WindowSize:     Duration(15 * time.Minute),
		LookbackWindow: Duration(7 * 24 * time.Hour),
		CloseLag:       Duration(5 * time.Minute),
		EngagementMetrics: []string{
			"likes", "shares", "comments", "upvotes", "views",
		},
		ReferenceWindows: 96,
		NoveltyAge:       Duration(7 * 24 * time.Hour),
		SpikeGrowth:      1.0,
		RecencyHalfLife:  Duration(6 * time.Hour),
		Weights: ScoringWeights{
			Virality: VSWeights{
				Volume:     0.25,
				Growth:     0.25,
				Engagement: 0.15,
				Influence:  0.15,
				Novelty:    0.10,
				Recency:    0.10,
				Toxicity:   0.10,
			},
			LaunchReadiness: LRSWeights{
				Virality:      0.6,
				MemeFit:       0.2,
				CopyrightRisk: 0.2,
			},
		},
		Alerts: AlertConfig{
			ArmThreshold:       0.7,
			GrowthArmThreshold: 1.5,
			DisarmThreshold:    0.5,
			DwellWindows:       2,
			CooldownWindows:    8,
			SentimentShift: SentimentShiftConfig{
				Enabled:         false,
				ArmThreshold:    0.4,
				DisarmThreshold: 0.2,
			},
		},
		AlertTopic:   "narrative.alerts",
		CycleRetries: 3,
	}
}

// LoadEngineConfig reads a YAML config file over the defaults and validates
// the result.
func LoadEngineConfig(path string) (*EngineConfig, error) {
	config := DefaultEngineConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, helper.NewError("engine config read", err)
	}
	err = yaml.Unmarshal(data, config)
	if err != nil {
		return nil, helper.NewError("engine config parse", err)
	}

	err = config.Validate()
	if err != nil {
		return nil, err
	}
	return config, nil
}

// Validate checks bounds and ordering of all configured values.
func (c *EngineConfig) Validate() error {
	if c.EmbeddingDim <= 0 {
		return fmt.Errorf("embedding_dim must be positive, got %v", c.EmbeddingDim)
	}
	if c.MaxTextLength <= 0 {
		return fmt.Errorf("max_text_length must be positive, got %v", c.MaxTextLength)
	}
	if c.MergeThreshold <= 0 || c.MergeThreshold > 1 {
		return fmt.Errorf("merge_threshold must be in (0, 1], got %v", c.MergeThreshold)
	}
	if c.EwmaAlpha <= 0 || c.EwmaAlpha > 1 {
		return fmt.Errorf("ewma_alpha must be in (0, 1], got %v", c.EwmaAlpha)
	}
	if c.TieEpsilon < 0 {
		return fmt.Errorf("tie_epsilon must not be negative, got %v", c.TieEpsilon)
	}
	if c.PoolEpsilon <= 0 || c.PoolEpsilon > 2 {
		return fmt.Errorf("pool_epsilon must be in (0, 2], got %v", c.PoolEpsilon)
	}
	if c.MinClusterSize < 2 {
		return fmt.Errorf("min_cluster_size must be at least 2, got %v", c.MinClusterSize)
	}
	if c.MaxKeywords < 1 {
		return fmt.Errorf("max_keywords must be at least 1, got %v", c.MaxKeywords)
	}
	if c.WindowSize.Std() <= 0 {
		return fmt.Errorf("window_size must be positive, got %v", c.WindowSize.Std())
	}
	if c.LookbackWindow.Std() < c.WindowSize.Std() {
		return fmt.Errorf("lookback_window must cover at least one window, got %v", c.LookbackWindow.Std())
	}
	if c.CloseLag.Std() < 0 {
		return fmt.Errorf("close_lag must not be negative, got %v", c.CloseLag.Std())
	}
	if c.ReferenceWindows < 1 {
		return fmt.Errorf("reference_windows must be at least 1, got %v", c.ReferenceWindows)
	}
	if c.NoveltyAge.Std() < 0 {
		return fmt.Errorf("novelty_age must not be negative, got %v", c.NoveltyAge.Std())
	}
	if c.RecencyHalfLife.Std() <= 0 {
		return fmt.Errorf("recency_half_life must be positive, got %v", c.RecencyHalfLife.Std())
	}
	if c.SpikeGrowth < 0 {
		return fmt.Errorf("spike_growth must not be negative, got %v", c.SpikeGrowth)
	}

	for name, weight := range map[string]float64{
		"virality.volume":                 c.Weights.Virality.Volume,
		"virality.growth":                 c.Weights.Virality.Growth,
		"virality.engagement":             c.Weights.Virality.Engagement,
		"virality.influence":              c.Weights.Virality.Influence,
		"virality.novelty":                c.Weights.Virality.Novelty,
		"virality.recency":                c.Weights.Virality.Recency,
		"virality.toxicity":               c.Weights.Virality.Toxicity,
		"launch_readiness.virality":       c.Weights.LaunchReadiness.Virality,
		"launch_readiness.meme_fit":       c.Weights.LaunchReadiness.MemeFit,
		"launch_readiness.copyright_risk": c.Weights.LaunchReadiness.CopyrightRisk,
	} {
		if weight < 0 || weight > 1 {
			return fmt.Errorf("weight %v must be in [0, 1], got %v", name, weight)
		}
	}

	if c.Alerts.ArmThreshold < 0 || c.Alerts.ArmThreshold > 1 {
		return fmt.Errorf("alerts.arm_threshold must be in [0, 1], got %v", c.Alerts.ArmThreshold)
	}
	if c.Alerts.DisarmThreshold < 0 || c.Alerts.DisarmThreshold > 1 {
		return fmt.Errorf("alerts.disarm_threshold must be in [0, 1], got %v", c.Alerts.DisarmThreshold)
	}
	if c.Alerts.DisarmThreshold >= c.Alerts.ArmThreshold {
		return fmt.Errorf("alerts.disarm_threshold %v must be below alerts.arm_threshold %v",
			c.Alerts.DisarmThreshold, c.Alerts.ArmThreshold)
	}
	if c.Alerts.GrowthArmThreshold <= 0 {
		return fmt.Errorf("alerts.growth_arm_threshold must be positive, got %v", c.Alerts.GrowthArmThreshold)
	}
	if c.Alerts.DwellWindows < 0 {
		return fmt.Errorf("alerts.dwell_windows must not be negative, got %v", c.Alerts.DwellWindows)
	}
	if c.Alerts.CooldownWindows < 0 {
		return fmt.Errorf("alerts.cooldown_windows must not be negative, got %v", c.Alerts.CooldownWindows)
	}
	if c.Alerts.SentimentShift.Enabled &&
		c.Alerts.SentimentShift.DisarmThreshold >= c.Alerts.SentimentShift.ArmThreshold {
		return fmt.Errorf("alerts.sentiment_shift.disarm_threshold %v must be below arm_threshold %v",
			c.Alerts.SentimentShift.DisarmThreshold, c.Alerts.SentimentShift.ArmThreshold)
	}
	if c.CycleRetries < 0 {
		return fmt.Errorf("cycle_retries must not be negative, got %v", c.CycleRetries)
	}
	return nil
}

package glucose

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the tunables of the status pipeline.
type Config struct {
	// FirstOrderAlpha is the blend weight of the first-order smoother (a1).
	FirstOrderAlpha float64 `yaml:"a1"`
	// SecondOrderAlpha blends the raw value against the level+trend
	// prediction in the second-order smoother (a2).
	SecondOrderAlpha float64 `yaml:"a2"`
	// SecondOrderBeta blends the level change against the prior trend (b2).
	SecondOrderBeta float64 `yaml:"b2"`
	// FirstOrderWeight is the share of the first-order series in the
	// supersmoothed series; the second-order series gets the rest.
	FirstOrderWeight float64 `yaml:"o1_weight"`

	// DeltaThreshold is the weighted average delta at which the meal
	// detection score reaches 1.
	DeltaThreshold float64 `yaml:"delta_threshold"`
	// DecayWeight is subtracted from the meal score weight per step back
	// in time.
	DecayWeight float64 `yaml:"decay_weight"`
	// MealScoreDeltas caps how many supersmoothed deltas enter the score.
	MealScoreDeltas int `yaml:"meal_score_deltas"`
	// NeutralMealScore is reported when smoothing had too little data.
	NeutralMealScore float64 `yaml:"neutral_meal_score"`

	// StableBandTolerance is the relative half-width of the stable band.
	StableBandTolerance float64 `yaml:"stable_band_tolerance"`
	// StableBandGapMinutes ends the stable band when exceeded between
	// accepted readings.
	StableBandGapMinutes float64 `yaml:"stable_band_gap_minutes"`

	// StaleThresholdMinutes is the maximum age of the newest reading.
	StaleThresholdMinutes float64 `yaml:"stale_threshold_minutes"`

	// WindowSize is the upper bound of the smoothing window.
	WindowSize int `yaml:"window_size"`
	// WindowGapMinutes truncates the smoothing window at the first gap of
	// at least this size.
	WindowGapMinutes float64 `yaml:"window_gap_minutes"`
	// MinSmoothingWindow is the smallest window the smoother accepts.
	MinSmoothingWindow int `yaml:"min_smoothing_window"`
}

// DefaultConfig returns the reference tuning.
func DefaultConfig() Config {
	return Config{
		FirstOrderAlpha:       0.5,
		SecondOrderAlpha:      0.4,
		SecondOrderBeta:       1.0,
		FirstOrderWeight:      0.4,
		DeltaThreshold:        7.0,
		DecayWeight:           0.15,
		MealScoreDeltas:       6,
		NeutralMealScore:      0.5,
		StableBandTolerance:   0.05,
		StableBandGapMinutes:  13,
		StaleThresholdMinutes: 7,
		WindowSize:            25,
		WindowGapMinutes:      12,
		MinSmoothingWindow:    4,
	}
}

// StaleThreshold returns StaleThresholdMinutes as a duration.
func (c Config) StaleThreshold() time.Duration {
	return time.Duration(c.StaleThresholdMinutes * float64(time.Minute))
}

// Validate checks that every field is usable by the pipeline.
func (c Config) Validate() error {
	var errs []error
	fractions := []struct {
		key   string
		value float64
	}{
		{"a1", c.FirstOrderAlpha},
		{"a2", c.SecondOrderAlpha},
		{"b2", c.SecondOrderBeta},
		{"o1_weight", c.FirstOrderWeight},
		{"stable_band_tolerance", c.StableBandTolerance},
	}
	for _, f := range fractions {
		if f.value < 0 || f.value > 1 {
			errs = append(errs, fmt.Errorf("%s must be within [0, 1], got %v", f.key, f.value))
		}
	}
	if c.DeltaThreshold <= 0 {
		errs = append(errs, fmt.Errorf("delta_threshold must be positive, got %v", c.DeltaThreshold))
	}
	if c.DecayWeight < 0 {
		errs = append(errs, fmt.Errorf("decay_weight must not be negative, got %v", c.DecayWeight))
	}
	if c.MealScoreDeltas < 1 {
		errs = append(errs, fmt.Errorf("meal_score_deltas must be at least 1, got %d", c.MealScoreDeltas))
	} else if last := 1 - c.DecayWeight*float64(c.MealScoreDeltas-1); last <= 0 {
		// every meal score weight 1 - decay_weight*i must stay positive
		errs = append(errs, fmt.Errorf("decay_weight %v leaves a non-positive weight over %d meal score deltas",
			c.DecayWeight, c.MealScoreDeltas))
	}
	if c.StableBandGapMinutes <= 0 {
		errs = append(errs, fmt.Errorf("stable_band_gap_minutes must be positive, got %v", c.StableBandGapMinutes))
	}
	if c.StaleThresholdMinutes <= 0 {
		errs = append(errs, fmt.Errorf("stale_threshold_minutes must be positive, got %v", c.StaleThresholdMinutes))
	}
	if c.WindowGapMinutes <= 0 {
		errs = append(errs, fmt.Errorf("window_gap_minutes must be positive, got %v", c.WindowGapMinutes))
	}
	if c.MinSmoothingWindow < 2 {
		errs = append(errs, fmt.Errorf("min_smoothing_window must be at least 2, got %d", c.MinSmoothingWindow))
	}
	if c.WindowSize < c.MinSmoothingWindow {
		errs = append(errs, fmt.Errorf("window_size %d is below min_smoothing_window %d", c.WindowSize, c.MinSmoothingWindow))
	}
	return errors.Join(errs...)
}

// LoadConfig reads a YAML file over DefaultConfig. Keys absent from the file
// keep their defaults. An empty path returns the defaults.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

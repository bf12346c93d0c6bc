package glucose

import "gonum.org/v1/gonum/stat"

// mealScore weighs the most recent supersmoothed deltas with linearly
// decaying weights and normalizes against the delta threshold. The result is
// not clamped: values above 1 signal a steep rise.
func mealScore(s Smoothing, cfg Config) float64 {
	ready, ok := s.(Ready)
	if !ok {
		return cfg.NeutralMealScore
	}

	n := min(ready.Window-1, cfg.MealScoreDeltas)
	weights := make([]float64, n)
	for i := range weights {
		weights[i] = 1 - cfg.DecayWeight*float64(i)
	}
	return stat.Mean(ready.SupersmoothedDeltas[:n], weights) / cfg.DeltaThreshold
}

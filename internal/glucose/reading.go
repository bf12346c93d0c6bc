// Package glucose derives a glucose status snapshot from a CGM reading series.
//
// The pipeline is strictly linear: delta calculation, stable-band averaging,
// window sizing, cascaded exponential smoothing and meal-detection scoring.
// Every computation is pure and owns its working arrays, so a Calculator can be
// shared by concurrent callers as long as each supplies its own snapshot.
package glucose

import (
	"math"
	"sort"
	"time"
)

// SentinelValue is the reading value a sensor reports in its error state.
// Readings at or below it never contribute to delta math.
const SentinelValue = 38.0

// Reading is a single timestamped glucose sample in mg/dL.
type Reading struct {
	Timestamp time.Time `json:"timestamp"`
	Value     float64   `json:"value"`
}

// IsSentinel reports whether the reading carries the sensor error value.
func (r Reading) IsSentinel() bool {
	return r.Value == SentinelValue
}

// IsNewestFirst reports whether readings are ordered by descending timestamp.
// Equal timestamps are allowed.
func IsNewestFirst(readings []Reading) bool {
	for i := 1; i < len(readings); i++ {
		if readings[i].Timestamp.After(readings[i-1].Timestamp) {
			return false
		}
	}
	return true
}

// SortNewestFirst returns a copy of readings ordered by descending timestamp.
// Sources use it before handing a snapshot to the Calculator, which never
// re-sorts its input.
func SortNewestFirst(readings []Reading) []Reading {
	sorted := make([]Reading, len(readings))
	copy(sorted, readings)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.After(sorted[j].Timestamp)
	})
	return sorted
}

// minutesBetween returns the whole-minute distance from then to now.
func minutesBetween(now, then time.Time) float64 {
	return math.Round(now.Sub(then).Minutes())
}

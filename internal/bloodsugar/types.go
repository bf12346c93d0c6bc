// Package bloodsugar classifies glucose statuses for display.
package bloodsugar

import (
	"math"
	"strings"
	"time"

	"github.com/jwulff/glucostatus/internal/glucose"
)

// RangeStatus represents the glucose range classification.
type RangeStatus string

const (
	RangeUrgentLow RangeStatus = "urgentLow"
	RangeLow       RangeStatus = "low"
	RangeNormal    RangeStatus = "normal"
	RangeHigh      RangeStatus = "high"
	RangeVeryHigh  RangeStatus = "veryHigh"
)

// Glucose thresholds in mg/dL.
const (
	ThresholdUrgentLow = 55
	ThresholdLow       = 70
	ThresholdHigh      = 180
	ThresholdVeryHigh  = 250
)

// Trend names as used by Dexcom and Nightscout.
const (
	TrendDoubleUp      = "DoubleUp"
	TrendSingleUp      = "SingleUp"
	TrendFortyFiveUp   = "FortyFiveUp"
	TrendFlat          = "Flat"
	TrendFortyFiveDown = "FortyFiveDown"
	TrendSingleDown    = "SingleDown"
	TrendDoubleDown    = "DoubleDown"
	TrendNone          = "NONE"
)

// TrendArrows maps trend names to arrows for text display.
var TrendArrows = map[string]string{
	"doubleup":      "^^",
	"singleup":      "^",
	"fortyfiveup":   "/",
	"flat":          "-",
	"fortyfivedown": "\\",
	"singledown":    "v",
	"doubledown":    "vv",
}

// Summary is a display-ready view of a glucose status.
type Summary struct {
	Glucose     float64
	GlucoseMmol float64
	Trend       string
	TrendArrow  string
	Delta       float64
	Timestamp   time.Time
	IsStale     bool
	RangeStatus RangeStatus
	MealScore   float64
	Degraded    bool
}

// Summarize builds the display view of a status as of now.
func Summarize(status *glucose.Status, now time.Time) Summary {
	trend := TrendFromDelta(status.Delta)
	return Summary{
		Glucose:     status.Glucose,
		GlucoseMmol: MgdlToMmol(status.Glucose),
		Trend:       trend,
		TrendArrow:  MapTrendArrow(trend),
		Delta:       status.Delta,
		Timestamp:   status.Date,
		IsStale:     IsStaleReading(status.Date, now),
		RangeStatus: ClassifyRange(status.Glucose),
		MealScore:   status.MealDetectionScore,
		Degraded:    status.InsufficientSmoothingData,
	}
}

// ClassifyRange determines the range status for a glucose value.
func ClassifyRange(mgdl float64) RangeStatus {
	if mgdl < ThresholdUrgentLow {
		return RangeUrgentLow
	}
	if mgdl < ThresholdLow {
		return RangeLow
	}
	if mgdl <= ThresholdHigh {
		return RangeNormal
	}
	if mgdl <= ThresholdVeryHigh {
		return RangeHigh
	}
	return RangeVeryHigh
}

// TrendFromDelta maps a delta in mg/dL per 5 minutes to a trend name using
// the per-minute rate bands of Dexcom arrows.
func TrendFromDelta(delta float64) string {
	if math.IsNaN(delta) {
		return TrendNone
	}
	perMinute := delta / 5
	switch {
	case perMinute > 3:
		return TrendDoubleUp
	case perMinute > 2:
		return TrendSingleUp
	case perMinute > 1:
		return TrendFortyFiveUp
	case perMinute >= -1:
		return TrendFlat
	case perMinute >= -2:
		return TrendFortyFiveDown
	case perMinute >= -3:
		return TrendSingleDown
	default:
		return TrendDoubleDown
	}
}

// MapTrendArrow converts a trend string to a display arrow.
func MapTrendArrow(trend string) string {
	lower := strings.ToLower(trend)
	if arrow, ok := TrendArrows[lower]; ok {
		return arrow
	}
	return "?"
}

// StaleThreshold is how old a reading can be before it's shown as stale.
const StaleThreshold = 10 * time.Minute

// IsStaleReading checks if a timestamp is older than the stale threshold.
func IsStaleReading(ts, now time.Time) bool {
	return now.Sub(ts) >= StaleThreshold
}

// MgdlToMmol converts mg/dL to mmol/L with one decimal.
func MgdlToMmol(mgdl float64) float64 {
	return math.Round(mgdl/18.0182*10) / 10
}

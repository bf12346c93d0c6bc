package glucose

import (
	"fmt"
	"math"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// Status is the glucose snapshot consumed once per calculation cycle.
// Deltas are in mg/dL per 5 minutes.
type Status struct {
	Glucose       float64   `json:"glucose"`
	Noise         float64   `json:"noise"` // not reported by all CGMs, always 0
	Delta         float64   `json:"delta"`
	ShortAvgDelta float64   `json:"shortAvgDelta"`
	LongAvgDelta  float64   `json:"longAvgDelta"`
	Date          time.Time `json:"date"`

	BGFiveMinAgo float64 `json:"bgFiveMinAgo"`

	StableBandAverage         float64 `json:"stableBandAverage"`
	StableBandDurationMinutes float64 `json:"stableBandDurationMinutes"`

	InsufficientSmoothingData bool `json:"insufficientSmoothingData"`
	InsufficientFittingData   bool `json:"insufficientFittingData"`

	SupersmoothedNow   float64 `json:"supersmoothedNow"`
	SupersmoothedDelta float64 `json:"supersmoothedDelta"`
	MealDetectionScore float64 `json:"mealDetectionScore"`
}

// Rounded returns a copy with every field at its canonical precision:
// levels to 0.1, rates and scores to 0.01. SupersmoothedDelta is a rate and
// gets 0.01, one digit more than the 0.1 that delta_supersmooth_now
// consumers are used to.
func (s Status) Rounded() Status {
	r := s
	r.Glucose = roundTo(s.Glucose, 1)
	r.Noise = roundTo(s.Noise, 2)
	r.Delta = roundTo(s.Delta, 2)
	r.ShortAvgDelta = roundTo(s.ShortAvgDelta, 2)
	r.LongAvgDelta = roundTo(s.LongAvgDelta, 2)
	r.BGFiveMinAgo = roundTo(s.BGFiveMinAgo, 1)
	r.StableBandAverage = roundTo(s.StableBandAverage, 1)
	r.StableBandDurationMinutes = roundTo(s.StableBandDurationMinutes, 1)
	r.SupersmoothedNow = roundTo(s.SupersmoothedNow, 1)
	r.SupersmoothedDelta = roundTo(s.SupersmoothedDelta, 2)
	r.MealDetectionScore = roundTo(s.MealDetectionScore, 2)
	return r
}

// roundTo rounds half away from zero to the given number of decimal places.
// NaN and infinities are returned unchanged.
func roundTo(v float64, places int32) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return v
	}
	return decimal.NewFromFloat(v).Round(places).InexactFloat64()
}

// Fields returns the status as structured log fields.
func (s Status) Fields() logrus.Fields {
	return logrus.Fields{
		"glucose":            s.Glucose,
		"delta":              s.Delta,
		"shortAvgDelta":      s.ShortAvgDelta,
		"longAvgDelta":       s.LongAvgDelta,
		"date":               s.Date,
		"bgFiveMinAgo":       s.BGFiveMinAgo,
		"stableBandAverage":  s.StableBandAverage,
		"stableBandDuration": s.StableBandDurationMinutes,
		"insufficientSmooth": s.InsufficientSmoothingData,
		"insufficientFit":    s.InsufficientFittingData,
		"supersmoothedNow":   s.SupersmoothedNow,
		"supersmoothedDelta": s.SupersmoothedDelta,
		"mealScore":          s.MealDetectionScore,
	}
}

// String renders a one-line human-readable summary.
func (s Status) String() string {
	return fmt.Sprintf(
		"Glucose: %.0f mg/dl Noise: %.0f Delta: %.0f mg/dl Short avg. delta: %.2f mg/dl Long avg. delta: %.2f mg/dl "+
			"BG 5 min ago: %.0f mg/dl Stable band: %.1f mg/dl for %.0f min "+
			"Insufficient smoothing data: %t Insufficient fitting data: %t "+
			"Supersmoothed: %.0f mg/dl Supersmoothed delta: %.0f mg/dl Meal score: %.2f",
		s.Glucose, s.Noise, s.Delta, s.ShortAvgDelta, s.LongAvgDelta,
		s.BGFiveMinAgo, s.StableBandAverage, s.StableBandDurationMinutes,
		s.InsufficientSmoothingData, s.InsufficientFittingData,
		s.SupersmoothedNow, s.SupersmoothedDelta, s.MealDetectionScore,
	)
}

package glucose

import "slices"

// Smoothing is the outcome of the cascaded smoother: either Ready, carrying
// the smoothed series, or Degraded, carrying raw fallback values.
type Smoothing interface {
	// Level is the denoised glucose level now.
	Level() float64
	// Rate is the denoised delta now.
	Rate() float64

	smoothing()
}

// Ready holds the smoothed series of a window. Every slice is ordered newest
// first.
type Ready struct {
	Window              int       `json:"window"`
	FirstOrder          []float64 `json:"firstOrder"`          // len Window+1, last entry is the seed
	SecondOrder         []float64 `json:"secondOrder"`         // len Window
	SecondOrderDelta    []float64 `json:"secondOrderDelta"`    // len Window
	Supersmoothed       []float64 `json:"supersmoothed"`       // len Window
	SupersmoothedDeltas []float64 `json:"supersmoothedDeltas"` // len Window-1
}

// Level implements Smoothing.
func (r Ready) Level() float64 { return r.Supersmoothed[0] }

// Rate implements Smoothing.
func (r Ready) Rate() float64 { return r.SupersmoothedDeltas[0] }

func (Ready) smoothing() {}

// Degraded is reported when the window is too short to smooth.
type Degraded struct {
	Window        int     `json:"window"`
	FallbackLevel float64 `json:"fallbackLevel"`
	FallbackRate  float64 `json:"fallbackRate"`
}

// Level implements Smoothing.
func (d Degraded) Level() float64 { return d.FallbackLevel }

// Rate implements Smoothing.
func (d Degraded) Rate() float64 { return d.FallbackRate }

func (Degraded) smoothing() {}

// smooth runs both exponential smoothers over the newest window readings and
// blends them. readings must hold at least two entries.
func smooth(readings []Reading, window int, cfg Config) Smoothing {
	if window < cfg.MinSmoothingWindow {
		return Degraded{
			Window:        window,
			FallbackLevel: readings[0].Value,
			FallbackRate:  readings[0].Value - readings[1].Value,
		}
	}

	values := make([]float64, window)
	for i := range values {
		values[i] = readings[i].Value
	}

	o1 := firstOrder(values, cfg.FirstOrderAlpha)
	o2, o2Delta := secondOrder(values, cfg.SecondOrderAlpha, cfg.SecondOrderBeta)

	ss := make([]float64, len(o2))
	for i := range o2 {
		ss[i] = cfg.FirstOrderWeight*o1[i] + (1-cfg.FirstOrderWeight)*o2[i]
	}
	ssDeltas := make([]float64, len(ss)-1)
	for i := range ssDeltas {
		ssDeltas[i] = ss[i] - ss[i+1]
	}

	return Ready{
		Window:              window,
		FirstOrder:          o1,
		SecondOrder:         o2,
		SecondOrderDelta:    o2Delta,
		Supersmoothed:       ss,
		SupersmoothedDeltas: ssDeltas,
	}
}

// firstOrder is single exponential smoothing seeded with the oldest value.
// values and the result are newest first; the result has one extra entry,
// the seed, at the end.
func firstOrder(values []float64, alpha float64) []float64 {
	n := len(values)
	series := make([]float64, 0, n+1)
	series = append(series, values[n-1])
	for i := n - 1; i >= 0; i-- {
		prev := series[len(series)-1]
		series = append(series, prev+alpha*(values[i]-prev))
	}
	slices.Reverse(series)
	return series
}

// secondOrder is double exponential smoothing seeded with the oldest value and
// the oldest raw delta. Both results are newest first and as long as values.
func secondOrder(values []float64, alpha, beta float64) (level, trend []float64) {
	n := len(values)
	level = make([]float64, 0, n)
	trend = make([]float64, 0, n)
	level = append(level, values[n-1])
	trend = append(trend, values[n-2]-values[n-1])

	for i := n - 2; i >= 0; i-- {
		prevLevel := level[len(level)-1]
		prevTrend := trend[len(trend)-1]
		next := alpha*values[i] + (1-alpha)*(prevLevel+prevTrend)
		level = append(level, next)
		trend = append(trend, beta*(next-prevLevel)+(1-beta)*prevTrend)
	}

	slices.Reverse(level)
	slices.Reverse(trend)
	return level, trend
}

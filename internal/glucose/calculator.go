package glucose

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/sirupsen/logrus"
)

var (
	// ErrNoData is returned for an empty snapshot.
	ErrNoData = errors.New("no glucose readings")
	// ErrStaleData is returned when the newest reading is older than the
	// stale threshold and stale data was not allowed.
	ErrStaleData = errors.New("glucose readings are stale")
)

// Calculator derives Status values from reading snapshots. It holds no
// mutable state and is safe for concurrent use.
type Calculator struct {
	cfg Config
	log logrus.FieldLogger
}

// NewCalculator creates a calculator for a validated cfg. A nil logger
// discards output.
func NewCalculator(cfg Config, log logrus.FieldLogger) (*Calculator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if log == nil {
		discard := logrus.New()
		discard.SetOutput(io.Discard)
		log = discard
	}
	return &Calculator{cfg: cfg, log: log}, nil
}

// Config returns the calculator's configuration.
func (c *Calculator) Config() Config {
	return c.cfg
}

// Trace is the unrounded outcome of one computation together with the
// intermediate smoothing state.
type Trace struct {
	Status    Status    `json:"status"`
	Readings  int       `json:"readings"`
	Window    int       `json:"window"`
	Smoothing Smoothing `json:"smoothing"`
}

// Calculate computes the status for a newest-first snapshot and rounds it to
// canonical precision. It returns ErrNoData or ErrStaleData with a nil status
// when the snapshot cannot be used.
func (c *Calculator) Calculate(readings []Reading, now time.Time, allowStale bool) (*Status, error) {
	status, err := c.Compute(readings, now, allowStale)
	if err != nil {
		return nil, err
	}
	c.log.WithFields(status.Fields()).Debug(status.String())
	rounded := status.Rounded()
	return &rounded, nil
}

// Compute is Calculate without rounding.
func (c *Calculator) Compute(readings []Reading, now time.Time, allowStale bool) (*Status, error) {
	trace, err := c.Trace(readings, now, allowStale)
	if err != nil {
		return nil, err
	}
	return &trace.Status, nil
}

// Trace runs the full pipeline and keeps its intermediate results.
func (c *Calculator) Trace(readings []Reading, now time.Time, allowStale bool) (*Trace, error) {
	if len(readings) == 0 {
		c.log.Debug("no readings")
		return nil, ErrNoData
	}

	newest := readings[0]
	if newest.Timestamp.Before(now.Add(-c.cfg.StaleThreshold())) && !allowStale {
		c.log.WithFields(logrus.Fields{
			"newest": newest.Timestamp,
			"age":    now.Sub(newest.Timestamp),
		}).Debug("old data")
		return nil, ErrStaleData
	}

	if len(readings) == 1 {
		c.log.Debug("single reading")
		return &Trace{
			Status: Status{
				Glucose:                   newest.Value,
				Date:                      newest.Timestamp,
				StableBandAverage:         newest.Value,
				InsufficientSmoothingData: true,
				SupersmoothedNow:          newest.Value,
				MealDetectionScore:        c.cfg.NeutralMealScore,
			},
			Readings: 1,
			Window:   1,
			Smoothing: Degraded{
				Window:        1,
				FallbackLevel: newest.Value,
			},
		}, nil
	}

	d := computeDeltas(readings, c.log)
	band := computeStableBand(readings, d.Now, c.cfg)
	window := windowSize(readings, c.cfg, c.log)
	smoothed := smooth(readings, window, c.cfg)
	_, degraded := smoothed.(Degraded)

	return &Trace{
		Status: Status{
			Glucose:                   d.Now,
			Delta:                     d.Delta,
			ShortAvgDelta:             d.ShortAvgDelta,
			LongAvgDelta:              d.LongAvgDelta,
			Date:                      newest.Timestamp,
			BGFiveMinAgo:              readings[1].Value,
			StableBandAverage:         band.Average,
			StableBandDurationMinutes: band.DurationMinutes,
			InsufficientSmoothingData: degraded,
			SupersmoothedNow:          smoothed.Level(),
			SupersmoothedDelta:        smoothed.Rate(),
			MealDetectionScore:        mealScore(smoothed, c.cfg),
		},
		Readings:  len(readings),
		Window:    window,
		Smoothing: smoothed,
	}, nil
}

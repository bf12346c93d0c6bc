package glucose

import (
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)

// fiveMinuteSeries builds a newest-first snapshot with one reading every five
// minutes, the first one at start.
func fiveMinuteSeries(start time.Time, values ...float64) []Reading {
	readings := make([]Reading, len(values))
	for i, v := range values {
		readings[i] = Reading{Timestamp: start.Add(-time.Duration(i) * 5 * time.Minute), Value: v}
	}
	return readings
}

func constant(n int, v float64) []float64 {
	values := make([]float64, n)
	for i := range values {
		values[i] = v
	}
	return values
}

func newTestCalculator(t *testing.T) (*Calculator, *test.Hook) {
	t.Helper()
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	calc, err := NewCalculator(DefaultConfig(), logger)
	require.NoError(t, err)
	return calc, hook
}

func TestCalculateEmptySnapshot(t *testing.T) {
	calc, hook := newTestCalculator(t)

	status, err := calc.Calculate(nil, testNow, false)

	assert.ErrorIs(t, err, ErrNoData)
	assert.Nil(t, status)
	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, "no readings", hook.LastEntry().Message)
}

func TestCalculateSingleReading(t *testing.T) {
	calc, _ := newTestCalculator(t)
	readings := []Reading{{Timestamp: testNow.Add(-2 * time.Minute), Value: 123}}

	status, err := calc.Calculate(readings, testNow, false)
	require.NoError(t, err)

	assert.Equal(t, 123.0, status.Glucose)
	assert.Equal(t, 0.0, status.Delta)
	assert.Equal(t, 0.0, status.ShortAvgDelta)
	assert.Equal(t, 0.0, status.LongAvgDelta)
	assert.Equal(t, 123.0, status.StableBandAverage)
	assert.Equal(t, 0.0, status.StableBandDurationMinutes)
	assert.True(t, status.InsufficientSmoothingData)
	assert.Equal(t, 123.0, status.SupersmoothedNow)
	assert.Equal(t, 0.0, status.SupersmoothedDelta)
	assert.Equal(t, 0.5, status.MealDetectionScore)
	assert.Equal(t, readings[0].Timestamp, status.Date)
}

func TestCalculateStaleData(t *testing.T) {
	tests := []struct {
		name       string
		age        time.Duration
		allowStale bool
		wantErr    error
	}{
		{"fresh", 2 * time.Minute, false, nil},
		{"exactly at threshold", 7 * time.Minute, false, nil},
		{"stale", 8 * time.Minute, false, ErrStaleData},
		{"stale but allowed", 8 * time.Minute, true, nil},
		{"very old but allowed", 3 * time.Hour, true, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calc, _ := newTestCalculator(t)
			readings := fiveMinuteSeries(testNow.Add(-tt.age), 100, 102, 104)

			status, err := calc.Calculate(readings, testNow, tt.allowStale)

			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, status)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, status)
		})
	}
}

func TestCalculateStaleThresholdFromConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.StaleThresholdMinutes = 15
	calc, err := NewCalculator(cfg, nil)
	require.NoError(t, err)
	readings := fiveMinuteSeries(testNow.Add(-10*time.Minute), 100, 100)

	_, err = calc.Calculate(readings, testNow, false)
	assert.NoError(t, err)
}

func TestCalculateFlatLine(t *testing.T) {
	calc, _ := newTestCalculator(t)
	// 60 minutes of readings at 100 mg/dL
	readings := fiveMinuteSeries(testNow, constant(13, 100)...)

	status, err := calc.Calculate(readings, testNow, false)
	require.NoError(t, err)

	assert.Equal(t, 100.0, status.Glucose)
	assert.Equal(t, 0.0, status.Delta)
	assert.Equal(t, 0.0, status.ShortAvgDelta)
	assert.Equal(t, 0.0, status.LongAvgDelta)
	assert.Equal(t, 100.0, status.BGFiveMinAgo)
	assert.Equal(t, 100.0, status.StableBandAverage)
	assert.Equal(t, 60.0, status.StableBandDurationMinutes)
	assert.False(t, status.InsufficientSmoothingData)
	assert.False(t, status.InsufficientFittingData)
	assert.Equal(t, 100.0, status.SupersmoothedNow)
	assert.Equal(t, 0.0, status.SupersmoothedDelta)
	assert.Equal(t, 0.0, status.MealDetectionScore)
}

func TestCalculateLinearRise(t *testing.T) {
	calc, _ := newTestCalculator(t)
	// 100 -> 160 over 30 minutes
	readings := fiveMinuteSeries(testNow, 160, 150, 140, 130, 120, 110, 100)

	raw, err := calc.Compute(readings, testNow, false)
	require.NoError(t, err)

	assert.InDelta(t, 10.0, raw.Delta, 1e-9)
	assert.InDelta(t, 10.0, raw.ShortAvgDelta, 1e-9)
	assert.InDelta(t, 10.0, raw.LongAvgDelta, 1e-9)
	assert.InDelta(t, 156.0625, raw.SupersmoothedNow, 1e-9)
	assert.InDelta(t, 9.9375, raw.SupersmoothedDelta, 1e-9)
	// weighted mean 9.595 against a threshold of 7
	assert.InDelta(t, 9.595/7, raw.MealDetectionScore, 1e-9)
	assert.Greater(t, raw.MealDetectionScore, 1.0)

	status, err := calc.Calculate(readings, testNow, false)
	require.NoError(t, err)

	assert.Equal(t, 10.0, status.Delta)
	assert.Equal(t, 156.1, status.SupersmoothedNow)
	assert.Equal(t, 9.94, status.SupersmoothedDelta)
	assert.Equal(t, 1.37, status.MealDetectionScore)
	assert.Equal(t, 150.0, status.BGFiveMinAgo)
	assert.Equal(t, 160.0, status.StableBandAverage)
	assert.Equal(t, 0.0, status.StableBandDurationMinutes)
}

func TestCalculateFalling(t *testing.T) {
	calc, _ := newTestCalculator(t)
	readings := fiveMinuteSeries(testNow, 100, 110, 120, 130, 140, 150, 160)

	status, err := calc.Calculate(readings, testNow, false)
	require.NoError(t, err)

	assert.Equal(t, -10.0, status.Delta)
	assert.Less(t, status.SupersmoothedDelta, 0.0)
	assert.Less(t, status.MealDetectionScore, -1.0)
}

func TestCalculateGapTruncatesWindow(t *testing.T) {
	tests := []struct {
		name       string
		gap        time.Duration
		gapMinutes float64
		wantWindow int
	}{
		{"two missing readings", 15 * time.Minute, 12, 10},
		{"one missing reading within tolerance", 10 * time.Minute, 12, 25},
		{"one missing reading with tighter gap", 10 * time.Minute, 10, 10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			readings := fiveMinuteSeries(testNow, constant(30, 120)...)
			// readings 10.. are shifted back so that 9 and 10 are tt.gap apart
			for i := 10; i < len(readings); i++ {
				readings[i].Timestamp = readings[i].Timestamp.Add(-(tt.gap - 5*time.Minute))
			}

			cfg := DefaultConfig()
			cfg.WindowGapMinutes = tt.gapMinutes
			calc, err := NewCalculator(cfg, nil)
			require.NoError(t, err)
			trace, err := calc.Trace(readings, testNow, false)
			require.NoError(t, err)

			assert.Equal(t, tt.wantWindow, trace.Window)
			ready, ok := trace.Smoothing.(Ready)
			require.True(t, ok)
			assert.Len(t, ready.Supersmoothed, tt.wantWindow)
		})
	}
}

func TestCalculateSentinelTruncatesWindow(t *testing.T) {
	readings := fiveMinuteSeries(testNow, constant(30, 120)...)
	readings[5].Value = SentinelValue

	calc, _ := newTestCalculator(t)
	trace, err := calc.Trace(readings, testNow, false)
	require.NoError(t, err)

	assert.Equal(t, 5, trace.Window)
	ready, ok := trace.Smoothing.(Ready)
	require.True(t, ok)
	assert.Len(t, ready.Supersmoothed, 5)
	assert.NotContains(t, ready.FirstOrder, SentinelValue)
	assert.InDelta(t, 120.0, trace.Status.SupersmoothedNow, 1e-9)
	assert.Equal(t, 0.0, trace.Status.Delta)
}

func TestCalculateDegradedSmoothing(t *testing.T) {
	readings := fiveMinuteSeries(testNow, 130, 120, 110, 100, 100, 100)
	readings[2].Value = SentinelValue

	calc, _ := newTestCalculator(t)
	trace, err := calc.Trace(readings, testNow, false)
	require.NoError(t, err)

	assert.Equal(t, 2, trace.Window)
	assert.Equal(t, Degraded{Window: 2, FallbackLevel: 130, FallbackRate: 10}, trace.Smoothing)
	assert.True(t, trace.Status.InsufficientSmoothingData)
	assert.Equal(t, 0.5, trace.Status.MealDetectionScore)
	assert.Equal(t, 130.0, trace.Status.SupersmoothedNow)
	assert.Equal(t, 10.0, trace.Status.SupersmoothedDelta)
}

func TestCalculateShortSeriesIsDegraded(t *testing.T) {
	calc, _ := newTestCalculator(t)
	readings := fiveMinuteSeries(testNow, 110, 105, 100)

	status, err := calc.Calculate(readings, testNow, false)
	require.NoError(t, err)

	assert.True(t, status.InsufficientSmoothingData)
	assert.Equal(t, 0.5, status.MealDetectionScore)
	assert.Equal(t, 110.0, status.SupersmoothedNow)
	assert.Equal(t, 5.0, status.SupersmoothedDelta)
	assert.Equal(t, 5.0, status.Delta)
}

func TestCalculateIsDeterministic(t *testing.T) {
	calc, _ := newTestCalculator(t)
	readings := fiveMinuteSeries(testNow, 181, 173, 170, 158, 161, 149, 140, 142, 133, 121, 124, 118)

	first, err := calc.Compute(readings, testNow, false)
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		again, err := calc.Compute(readings, testNow, false)
		require.NoError(t, err)
		assert.Equal(t, *first, *again)
	}
}

func TestCalculateConcurrentCallers(t *testing.T) {
	calc, _ := newTestCalculator(t)
	live := fiveMinuteSeries(testNow, 181, 173, 170, 158, 161, 149, 140, 142, 133)
	replay := fiveMinuteSeries(testNow.Add(-6*time.Hour), 90, 92, 95, 99, 104, 110)

	wantLive, err := calc.Calculate(live, testNow, false)
	require.NoError(t, err)
	wantReplay, err := calc.Calculate(replay, testNow, true)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			got, err := calc.Calculate(live, testNow, false)
			assert.NoError(t, err)
			assert.Equal(t, wantLive, got)
		}()
		go func() {
			defer wg.Done()
			got, err := calc.Calculate(replay, testNow, true)
			assert.NoError(t, err)
			assert.Equal(t, wantReplay, got)
		}()
	}
	wg.Wait()
}

func TestCalculateDoesNotMutateSnapshot(t *testing.T) {
	calc, _ := newTestCalculator(t)
	readings := []Reading{
		{Timestamp: testNow, Value: 100},
		{Timestamp: testNow.Add(-time.Minute), Value: 104},
		{Timestamp: testNow.Add(-5 * time.Minute), Value: 98},
		{Timestamp: testNow.Add(-10 * time.Minute), Value: 96},
		{Timestamp: testNow.Add(-15 * time.Minute), Value: 94},
	}
	before := make([]Reading, len(readings))
	copy(before, readings)

	_, err := calc.Calculate(readings, testNow, false)
	require.NoError(t, err)

	assert.Equal(t, before, readings)
}

func TestCalculateLogsSummary(t *testing.T) {
	calc, hook := newTestCalculator(t)
	readings := fiveMinuteSeries(testNow, constant(6, 100)...)

	_, err := calc.Calculate(readings, testNow, false)
	require.NoError(t, err)

	entry := hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, logrus.DebugLevel, entry.Level)
	assert.Contains(t, entry.Message, "Glucose: 100 mg/dl")
	assert.Equal(t, 100.0, entry.Data["glucose"])
}

func TestCalculateStaleLogsOldData(t *testing.T) {
	calc, hook := newTestCalculator(t)
	readings := fiveMinuteSeries(testNow.Add(-20*time.Minute), 100, 100)

	_, err := calc.Calculate(readings, testNow, false)
	require.ErrorIs(t, err, ErrStaleData)

	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, "old data", hook.LastEntry().Message)
}

func TestNewCalculatorRejectsInvalidConfig(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr string
	}{
		{"zero config", Config{}, "min_smoothing_window must be at least 2"},
		{"no smoothing minimum", func() Config {
			cfg := DefaultConfig()
			cfg.MinSmoothingWindow = 0
			return cfg
		}(), "min_smoothing_window must be at least 2"},
		{"meal weights cancel out", func() Config {
			cfg := DefaultConfig()
			cfg.DecayWeight = 0.4
			return cfg
		}(), "decay_weight 0.4"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calc, err := NewCalculator(tt.cfg, nil)

			require.Error(t, err)
			assert.Nil(t, calc)
			assert.Contains(t, err.Error(), "invalid config")
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

// A sensor error as the newest reading leaves no smoothing window, so the
// fallback level is the raw 38.
func TestCalculateSentinelAsNewestReading(t *testing.T) {
	calc, _ := newTestCalculator(t)
	readings := fiveMinuteSeries(testNow, SentinelValue, 120, 120, 120, 120, 120)

	trace, err := calc.Trace(readings, testNow, false)
	require.NoError(t, err)

	assert.Equal(t, 0, trace.Window)
	assert.Equal(t, Degraded{Window: 0, FallbackLevel: SentinelValue, FallbackRate: -82}, trace.Smoothing)
	assert.True(t, trace.Status.InsufficientSmoothingData)
	assert.Equal(t, SentinelValue, trace.Status.Glucose)
	assert.Equal(t, SentinelValue, trace.Status.SupersmoothedNow)
	assert.Equal(t, -82.0, trace.Status.SupersmoothedDelta)
	assert.Equal(t, -82.0, trace.Status.Delta)
	assert.Equal(t, 0.5, trace.Status.MealDetectionScore)
}

package glucose

import "github.com/sirupsen/logrus"

// windowSize returns how many of the newest readings form a contiguous,
// sentinel-free window for smoothing.
func windowSize(readings []Reading, cfg Config, log logrus.FieldLogger) int {
	size := min(cfg.WindowSize, len(readings))

	for i := 0; i < size; i++ {
		if readings[i].IsSentinel() {
			log.WithField("index", i).Debug("sensor error value ends smoothing window")
			return i
		}
		if i+1 < len(readings) &&
			minutesBetween(readings[i].Timestamp, readings[i+1].Timestamp) >= cfg.WindowGapMinutes {
			// keep the more recent reading of the pair
			log.WithField("index", i).Debug("reading gap ends smoothing window")
			return i + 1
		}
	}
	return size
}

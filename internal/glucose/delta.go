package glucose

import (
	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/stat"
)

// Age boundaries in minutes of the delta buckets, measured from the newest
// reading.
const (
	nowWindowMinutes   = 2.5
	lastWindowMinutes  = 7.5
	shortWindowMinutes = 17.5
	longWindowMinutes  = 42.5
)

// deltas is the output of the delta calculator.
type deltas struct {
	Now           float64 // newest value averaged with readings < 2.5 min older
	Delta         float64
	ShortAvgDelta float64
	LongAvgDelta  float64
}

// computeDeltas buckets readings by age relative to readings[0] and averages
// the per-candidate rates. readings must hold at least two entries.
func computeDeltas(readings []Reading, log logrus.FieldLogger) deltas {
	newest := readings[0]
	nowValues := []float64{newest.Value}
	now := newest.Value

	var lastDeltas, shortDeltas, longDeltas []float64

scan:
	for _, then := range readings[1:] {
		if then.Value <= SentinelValue {
			continue
		}

		minutesAgo := minutesBetween(newest.Timestamp, then.Timestamp)
		if minutesAgo < 0 {
			log.WithField("timestamp", then.Timestamp).Debug("skipping reading newer than now")
			continue
		}

		// mg/dL per 5 minutes
		avgDelta := (now - then.Value) / minutesAgo * 5

		switch {
		case minutesAgo < nowWindowMinutes:
			nowValues = append(nowValues, then.Value)
			now = stat.Mean(nowValues, nil)
		case minutesAgo < shortWindowMinutes:
			log.WithFields(logrus.Fields{"minutesAgo": minutesAgo, "avgDelta": avgDelta}).Debug("short delta")
			shortDeltas = append(shortDeltas, avgDelta)
			if minutesAgo < lastWindowMinutes {
				lastDeltas = append(lastDeltas, avgDelta)
			}
		case minutesAgo < longWindowMinutes:
			log.WithFields(logrus.Fields{"minutesAgo": minutesAgo, "avgDelta": avgDelta}).Debug("long delta")
			longDeltas = append(longDeltas, avgDelta)
		default:
			break scan
		}
	}

	d := deltas{
		Now:           now,
		ShortAvgDelta: average(shortDeltas),
		LongAvgDelta:  average(longDeltas),
	}
	if len(lastDeltas) == 0 {
		d.Delta = d.ShortAvgDelta
	} else {
		d.Delta = average(lastDeltas)
	}
	return d
}

// average is the arithmetic mean, 0 for an empty slice.
func average(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	return stat.Mean(values, nil)
}

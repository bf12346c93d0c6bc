package glucose

// stableBand is the running average of the most recent readings that stay
// within the tolerance band, and how far back in minutes it reaches.
type stableBand struct {
	Average         float64
	DurationMinutes float64
}

// computeStableBand extends a running mean backward from the refined now value
// until a reading leaves the band or the series has a gap.
func computeStableBand(readings []Reading, now float64, cfg Config) stableBand {
	newest := readings[0].Timestamp
	sum := now
	count := 1.0
	band := stableBand{Average: now}

	for _, then := range readings[1:] {
		minutesAgo := minutesBetween(newest, then.Timestamp)
		if minutesAgo-band.DurationMinutes > cfg.StableBandGapMinutes {
			break
		}
		lower := band.Average * (1 - cfg.StableBandTolerance)
		upper := band.Average * (1 + cfg.StableBandTolerance)
		if then.Value <= lower || then.Value >= upper {
			break
		}
		sum += then.Value
		count++
		band.Average = sum / count
		band.DurationMinutes = minutesAgo
	}
	return band
}

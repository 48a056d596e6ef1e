package features

import "github.com/MrMerge8/recursive/internal/domain/models"

// Window sizes in candles: one hour, four hours and two hours of 5m bars,
// plus the half-hour volume window.
const (
	MinCandles     = 12
	shortWindow    = 12
	mediumWindow   = 48
	recentWindow   = 24
	volumeWindow   = 6
	neutralPercent = 50
)

// BuildSnapshot derives market structure from candles ordered oldest first.
// Fewer than MinCandles yields the zero Snapshot.
func BuildSnapshot(candles []models.Candle) models.Snapshot {
	if len(candles) < MinCandles {
		return models.Snapshot{}
	}
	closes := Closes(candles)
	price := closes[len(closes)-1]

	s := models.Snapshot{
		CurrentPrice: price,
		MAShort:      Mean(Tail(closes, shortWindow)),
		MAMedium:     Mean(Tail(closes, mediumWindow)),
		MAFull:       Mean(closes),
		RecentHigh:   MaxHigh(Tail(candles, recentWindow)),
		RecentLow:    MinLow(Tail(candles, recentWindow)),
		DayHigh:      MaxHigh(candles),
		DayLow:       MinLow(candles),
	}

	s.VolatilityPct = SampleStdDev(ComputePctReturns(closes))
	s.Momentum1hPct = momentum(closes, shortWindow)
	s.Momentum4hPct = momentum(closes, mediumWindow)

	s.VolumeRatio = 1
	if avg := MeanVolume(candles); avg > 0 {
		s.VolumeRatio = MeanVolume(Tail(candles, volumeWindow)) / avg
	}

	s.PositionInRange = neutralPercent
	if rng := s.DayHigh - s.DayLow; rng > 0 {
		s.PositionInRange = (price - s.DayLow) / rng * 100
	}

	s.Trend = classifyTrend(price, s.MAShort, s.MAMedium, s.MAFull)
	return s
}

// momentum is the percent change from the close n candles back (inclusive of
// the latest), 0 when there is not enough history.
func momentum(closes []float64, n int) float64 {
	if len(closes) < n {
		return 0
	}
	base := closes[len(closes)-n]
	if base == 0 {
		return 0
	}
	return (closes[len(closes)-1] - base) / base * 100
}

// classifyTrend uses strict comparisons only; any tie is RANGING.
func classifyTrend(price, short, medium, full float64) models.Trend {
	switch {
	case price > short && short > medium && medium > full:
		return models.TrendStrongUp
	case price > short && short > medium:
		return models.TrendUp
	case price < short && short < medium && medium < full:
		return models.TrendStrongDown
	case price < short && short < medium:
		return models.TrendDown
	default:
		return models.TrendRanging
	}
}

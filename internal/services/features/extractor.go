package features

import (
	"math"

	"github.com/MrMerge8/recursive/internal/domain/models"
)

// Closes extracts close prices in candle order.
func Closes(candles []models.Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.Close
	}
	return out
}

// ComputePctReturns computes simple returns r_t = (C_t - C_{t-1}) / C_{t-1} * 100.
// It returns a slice of length len(closes)-1, or nil if insufficient data.
func ComputePctReturns(closes []float64) []float64 {
	if len(closes) < 2 {
		return nil
	}
	out := make([]float64, 0, len(closes)-1)
	for i := 1; i < len(closes); i++ {
		prev := closes[i-1]
		if prev == 0 {
			out = append(out, 0)
			continue
		}
		out = append(out, (closes[i]-prev)/prev*100)
	}
	return out
}

// Mean of xs, 0 when empty.
func Mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	sum := 0.0
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

// SampleStdDev uses the n-1 denominator; fewer than two values yield 0.
func SampleStdDev(xs []float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	mean := Mean(xs)
	ss := 0.0
	for _, x := range xs {
		d := x - mean
		ss += d * d
	}
	return math.Sqrt(ss / float64(len(xs)-1))
}

// Tail returns the last n elements (all of them if n exceeds the length).
func Tail[T any](xs []T, n int) []T {
	if n >= len(xs) {
		return xs
	}
	return xs[len(xs)-n:]
}

// MaxHigh and MinLow scan candle extremes; both return 0 for no candles.
func MaxHigh(candles []models.Candle) float64 {
	if len(candles) == 0 {
		return 0
	}
	m := candles[0].High
	for _, c := range candles[1:] {
		if c.High > m {
			m = c.High
		}
	}
	return m
}

func MinLow(candles []models.Candle) float64 {
	if len(candles) == 0 {
		return 0
	}
	m := candles[0].Low
	for _, c := range candles[1:] {
		if c.Low < m {
			m = c.Low
		}
	}
	return m
}

func MeanVolume(candles []models.Candle) float64 {
	if len(candles) == 0 {
		return 0
	}
	sum := 0.0
	for _, c := range candles {
		sum += c.Volume
	}
	return sum / float64(len(candles))
}

// Package indicator implements the technical-indicator series math used by
// the signal-generation strategies. All functions are pure: they take a
// chronologically ascending close series and return a series of the same
// length, with math.NaN() marking warm-up entries that cannot be computed yet.
package indicator

import "math"

// Valid reports whether an indicator value is usable (not a warm-up NaN).
func Valid(v float64) bool {
	return !math.IsNaN(v)
}

// SMA computes the simple moving average over the given period.
func SMA(closes []float64, period int) []float64 {
	out := nanSeries(len(closes))
	if period <= 0 || len(closes) < period {
		return out
	}

	sum := 0.0
	for i, c := range closes {
		sum += c
		if i >= period {
			sum -= closes[i-period]
		}
		if i >= period-1 {
			out[i] = sum / float64(period)
		}
	}
	return out
}

func nanSeries(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}

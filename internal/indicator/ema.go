package indicator

// EMA computes the exponential moving average with smoothing 2/(period+1),
// seeded from the first close so the whole series is defined.
func EMA(closes []float64, period int) []float64 {
	out := nanSeries(len(closes))
	if period <= 0 || len(closes) == 0 {
		return out
	}

	alpha := 2.0 / float64(period+1)
	ema := closes[0]
	out[0] = ema
	for i := 1; i < len(closes); i++ {
		ema = alpha*closes[i] + (1-alpha)*ema
		out[i] = ema
	}
	return out
}

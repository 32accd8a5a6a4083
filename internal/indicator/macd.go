package indicator

// MACDResult holds the three MACD series, all aligned to the input closes.
type MACDResult struct {
	Line      []float64
	Signal    []float64
	Histogram []float64
}

// MACD computes the Moving Average Convergence Divergence: the difference of
// a fast and slow EMA, a signal EMA over that difference, and the histogram.
func MACD(closes []float64, fast, slow, signal int) MACDResult {
	n := len(closes)
	res := MACDResult{
		Line:      nanSeries(n),
		Signal:    nanSeries(n),
		Histogram: nanSeries(n),
	}
	if n == 0 || fast <= 0 || slow <= 0 || signal <= 0 || fast >= slow {
		return res
	}

	fastEMA := EMA(closes, fast)
	slowEMA := EMA(closes, slow)
	for i := 0; i < n; i++ {
		res.Line[i] = fastEMA[i] - slowEMA[i]
	}

	// Signal line is an EMA over the MACD line, only meaningful once the
	// slow EMA has seen a full period.
	start := slow - 1
	if start >= n {
		return res
	}
	signalSeries := EMA(res.Line[start:], signal)
	for i, v := range signalSeries {
		res.Signal[start+i] = v
		res.Histogram[start+i] = res.Line[start+i] - v
	}
	return res
}

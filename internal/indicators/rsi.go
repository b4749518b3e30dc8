package indicators

// RSI computes Wilder's relative strength index. Output index 0 corresponds to
// values[period]; fewer than period+1 values yield an empty slice.
func RSI(values []float64, period int) ([]float64, error) {
	if period <= 0 {
		return nil, ErrInvalidPeriod
	}
	if len(values) < period+1 {
		return []float64{}, nil
	}

	var gains, losses float64
	for i := 1; i <= period; i++ {
		g, l := split(values[i] - values[i-1])
		gains += g
		losses += l
	}
	p := float64(period)
	avgGain := gains / p
	avgLoss := losses / p

	out := make([]float64, 0, len(values)-period)
	out = append(out, rsiValue(avgGain, avgLoss))
	for i := period + 1; i < len(values); i++ {
		g, l := split(values[i] - values[i-1])
		avgGain = (avgGain*(p-1) + g) / p
		avgLoss = (avgLoss*(p-1) + l) / p
		out = append(out, rsiValue(avgGain, avgLoss))
	}
	return out, nil
}

func split(delta float64) (gain, loss float64) {
	if delta > 0 {
		return delta, 0
	}
	return 0, -delta
}

func rsiValue(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - (100 / (1 + rs))
}

package indicators

import "errors"

// ErrInvalidPeriod is returned when an indicator period is not positive.
var ErrInvalidPeriod = errors.New("indicators: period must be > 0")

// SMA returns the simple moving average series. Output index 0 is the window
// ending at values[period-1]; fewer than period values yield an empty slice.
func SMA(values []float64, period int) ([]float64, error) {
	if period <= 0 {
		return nil, ErrInvalidPeriod
	}
	if len(values) < period {
		return []float64{}, nil
	}

	out := make([]float64, 0, len(values)-period+1)
	rolling := 0.0
	for _, v := range values[:period] {
		rolling += v
	}
	out = append(out, rolling/float64(period))
	for i := period; i < len(values); i++ {
		rolling += values[i] - values[i-period]
		out = append(out, rolling/float64(period))
	}
	return out, nil
}

// EMA returns the exponential moving average series seeded with the SMA of
// the first period values, alpha = 2/(period+1).
func EMA(values []float64, period int) ([]float64, error) {
	if period <= 0 {
		return nil, ErrInvalidPeriod
	}
	if len(values) < period {
		return []float64{}, nil
	}

	seed := 0.0
	for _, v := range values[:period] {
		seed += v
	}
	seed /= float64(period)

	out := make([]float64, 0, len(values)-period+1)
	out = append(out, seed)
	alpha := 2 / float64(period+1)
	prev := seed
	for i := period; i < len(values); i++ {
		cur := (values[i]-prev)*alpha + prev
		out = append(out, cur)
		prev = cur
	}
	return out, nil
}

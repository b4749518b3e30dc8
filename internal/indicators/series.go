package indicators

// Series maps indicator output back onto source indices: At(i) refers to the
// same element as the i-th input value.
type Series struct {
	values []float64
	offset int
}

// Align wraps raw indicator output whose first value belongs to input index offset.
func Align(values []float64, offset int) Series {
	return Series{values: values, offset: offset}
}

// At returns the value aligned with input index i.
func (s Series) At(i int) (float64, bool) {
	j := i - s.offset
	if j < 0 || j >= len(s.values) {
		return 0, false
	}
	return s.values[j], true
}

// Offset is the first input index with a value.
func (s Series) Offset() int { return s.offset }

// Len is the number of input indices covered, counting the unfilled prefix.
func (s Series) Len() int {
	if len(s.values) == 0 {
		return 0
	}
	return s.offset + len(s.values)
}

// SMASeries is SMA aligned to its input.
func SMASeries(values []float64, period int) (Series, error) {
	out, err := SMA(values, period)
	if err != nil {
		return Series{}, err
	}
	return Align(out, period-1), nil
}

// EMASeries is EMA aligned to its input.
func EMASeries(values []float64, period int) (Series, error) {
	out, err := EMA(values, period)
	if err != nil {
		return Series{}, err
	}
	return Align(out, period-1), nil
}

// RSISeries is RSI aligned to its input.
func RSISeries(values []float64, period int) (Series, error) {
	out, err := RSI(values, period)
	if err != nil {
		return Series{}, err
	}
	return Align(out, period), nil
}

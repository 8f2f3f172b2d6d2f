package common

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Round rounds v half away from zero to the given number of decimal places
func Round(v float64, decimals int) float64 {
	scale := math.Pow(10, float64(decimals))
	return math.Round(v*scale) / scale
}

// RoundAll returns a rounded copy of values
func RoundAll(values []float64, decimals int) []float64 {
	out := make([]float64, len(values))
	for i, v := range values {
		out[i] = Round(v, decimals)
	}
	return out
}

// Mean calculates the arithmetic mean using gonum
func Mean(data []float64) float64 {
	if len(data) == 0 {
		return 0.0
	}
	return stat.Mean(data, nil)
}

// StandardDeviation calculates the sample standard deviation using gonum
func StandardDeviation(data []float64) float64 {
	if len(data) < 2 {
		return 0.0
	}
	return stat.StdDev(data, nil)
}

// RMS calculates root mean square
func RMS(data []float64) float64 {
	if len(data) == 0 {
		return 0.0
	}
	return math.Sqrt(floats.Dot(data, data) / float64(len(data)))
}

// NormalizeMax scales data in place so its maximum becomes 1. Data whose
// maximum is not positive is left untouched. Returns the original maximum.
func NormalizeMax(data []float64) float64 {
	if len(data) == 0 {
		return 0
	}
	peak := floats.Max(data)
	if peak <= 0 {
		return peak
	}
	floats.Scale(1/peak, data)
	return peak
}

// ArgMax returns the index of the first maximum, -1 for empty input
func ArgMax(data []float64) int {
	if len(data) == 0 {
		return -1
	}
	return floats.MaxIdx(data)
}

// MovingAverage returns a centred moving average with the given half width
func MovingAverage(data []float64, halfWidth int) []float64 {
	out := make([]float64, len(data))
	if len(data) == 0 {
		return out
	}

	// prefix sums keep this linear in len(data)
	prefix := make([]float64, len(data)+1)
	for i, v := range data {
		prefix[i+1] = prefix[i] + v
	}

	for i := range data {
		lo := max(0, i-halfWidth)
		hi := min(len(data), i+halfWidth+1)
		out[i] = (prefix[hi] - prefix[lo]) / float64(hi-lo)
	}

	return out
}

// ParabolicPeak refines the position of a peak at index i using its two
// neighbours. Returns i unchanged at the borders or for a flat neighbourhood.
func ParabolicPeak(data []float64, i int) float64 {
	if i <= 0 || i >= len(data)-1 {
		return float64(i)
	}
	left, centre, right := data[i-1], data[i], data[i+1]
	denom := left - 2*centre + right
	if denom == 0 {
		return float64(i)
	}
	offset := 0.5 * (left - right) / denom
	if offset > 0.5 || offset < -0.5 {
		return float64(i)
	}
	return float64(i) + offset
}

// NextPowerOfTwo finds the next power of 2 >= n
func NextPowerOfTwo(n int) int {
	if n <= 1 {
		return 1
	}
	power := 1
	for power < n {
		power <<= 1
	}
	return power
}

// SortedUnique sorts values in place and drops NaNs and repeats, reusing the backing array
func SortedUnique(values []float64) []float64 {
	sort.Float64s(values)
	out := values[:0]
	for _, v := range values {
		if math.IsNaN(v) {
			continue
		}
		if len(out) > 0 && out[len(out)-1] == v {
			continue
		}
		out = append(out, v)
	}
	return out
}

// Median returns the lower median of data, or 0 when data is empty. data is not modified.
func Median(data []float64) float64 {
	if len(data) == 0 {
		return 0
	}
	sorted := append([]float64(nil), data...)
	sort.Float64s(sorted)
	return stat.Quantile(0.5, stat.Empirical, sorted, nil)
}

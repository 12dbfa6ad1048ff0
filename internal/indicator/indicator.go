// Package indicator computes rolling-window statistics over a price window.
// Every function is pure and reports missing or degenerate input as an error
// instead of a numeric placeholder.
package indicator

import (
	"errors"
	"fmt"
	"math"
	"sort"
)

var (
	// ErrNotReady marks any indicator that could not be computed.
	ErrNotReady = errors.New("indicator not ready")
	// ErrDegenerate marks zero dispersion or a zero denominator. It matches ErrNotReady.
	ErrDegenerate = fmt.Errorf("degenerate statistics: %w", ErrNotReady)
)

// DefaultEpsilon is the relative dispersion below which a window counts as flat.
const DefaultEpsilon = 1e-12

const madScale = 1.4826

func flat(dispersion, center, eps float64) bool {
	if eps <= 0 {
		eps = DefaultEpsilon
	}
	return dispersion <= eps*math.Max(1, math.Abs(center))
}

func insufficient(name string, have, need int) error {
	return fmt.Errorf("%s needs %d points, have %d: %w", name, need, have, ErrNotReady)
}

// MeanStd returns the mean and sample standard deviation of values.
func MeanStd(values []float64, eps float64) (float64, float64, error) {
	n := len(values)
	if n < 2 {
		return 0, 0, insufficient("mean/std", n, 2)
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	mean := sum / float64(n)
	var ss float64
	for _, v := range values {
		d := v - mean
		ss += d * d
	}
	std := math.Sqrt(ss / float64(n-1))
	if flat(std, mean, eps) {
		return mean, 0, ErrDegenerate
	}
	return mean, std, nil
}

// ZScore is (last - mean) / std over values.
func ZScore(values []float64, eps float64) (float64, error) {
	mean, std, err := MeanStd(values, eps)
	if err != nil {
		return 0, err
	}
	return (values[len(values)-1] - mean) / std, nil
}

// Median returns the median of values without modifying them.
func Median(values []float64) (float64, error) {
	n := len(values)
	if n == 0 {
		return 0, insufficient("median", 0, 1)
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	if n%2 == 1 {
		return sorted[n/2], nil
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2, nil
}

// MedianMAD returns the median and the normal-consistent median absolute deviation.
func MedianMAD(values []float64, eps float64) (float64, float64, error) {
	if len(values) < 3 {
		return 0, 0, insufficient("median/mad", len(values), 3)
	}
	med, err := Median(values)
	if err != nil {
		return 0, 0, err
	}
	devs := make([]float64, len(values))
	for i, v := range values {
		devs[i] = math.Abs(v - med)
	}
	mad, err := Median(devs)
	if err != nil {
		return 0, 0, err
	}
	mad *= madScale
	if flat(mad, med, eps) {
		return med, 0, ErrDegenerate
	}
	return med, mad, nil
}

// RobustZ is (last - median) / MAD.
func RobustZ(values []float64, eps float64) (float64, error) {
	med, mad, err := MedianMAD(values, eps)
	if err != nil {
		return 0, err
	}
	return (values[len(values)-1] - med) / mad, nil
}

// RSI computes the relative strength index over the trailing period deltas.
// It returns 100 when there are no losses and 0 when there are no gains.
func RSI(values []float64, period int) (float64, error) {
	if period < 1 {
		return 0, fmt.Errorf("rsi period %d: %w", period, ErrNotReady)
	}
	if len(values) < period+1 {
		return 0, insufficient("rsi", len(values), period+1)
	}
	tail := values[len(values)-period-1:]
	var gains, losses float64
	for i := 1; i < len(tail); i++ {
		d := tail[i] - tail[i-1]
		if d > 0 {
			gains += d
		} else {
			losses -= d
		}
	}
	switch {
	case gains == 0 && losses == 0:
		return 0, ErrDegenerate
	case losses == 0:
		return 100, nil
	case gains == 0:
		return 0, nil
	}
	rs := gains / losses
	return 100 - 100/(1+rs), nil
}

// VolatilityRatio compares the std-dev of the last short points to the whole window.
func VolatilityRatio(values []float64, short int, eps float64) (float64, error) {
	if short < 2 || len(values) <= short {
		return 0, insufficient("volatility ratio", len(values), short+1)
	}
	_, long, err := MeanStd(values, eps)
	if err != nil {
		return 0, err
	}
	shortStd, err := sampleStd(values[len(values)-short:])
	if err != nil {
		return 0, err
	}
	return shortStd / long, nil
}

func sampleStd(values []float64) (float64, error) {
	n := len(values)
	if n < 2 {
		return 0, insufficient("std", n, 2)
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	mean := sum / float64(n)
	var ss float64
	for _, v := range values {
		d := v - mean
		ss += d * d
	}
	return math.Sqrt(ss / float64(n-1)), nil
}

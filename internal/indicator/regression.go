package indicator

import (
	"fmt"
	"math"
)

// Trend is an ordinary least squares fit of price against tick index.
type Trend struct {
	Slope       float64
	Intercept   float64
	NormSlope   float64 // slope per tick relative to the mean level
	R2          float64
	ResidualStd float64
	ResidualZ   float64 // last residual in units of ResidualStd
	Hetero      float64 // recent residual variance over window residual variance
	Residuals   []float64
}

// Regression fits values (or their logs) against 0..n-1. recentFrac selects the
// trailing share of residuals compared in the heteroscedasticity ratio.
func Regression(values []float64, logPrice bool, recentFrac, eps float64) (Trend, error) {
	n := len(values)
	if n < 3 {
		return Trend{}, insufficient("regression", n, 3)
	}
	y := values
	if logPrice {
		y = make([]float64, n)
		for i, v := range values {
			if v <= 0 {
				return Trend{}, fmt.Errorf("log of non-positive price: %w", ErrNotReady)
			}
			y[i] = math.Log(v)
		}
	}
	xMean := float64(n-1) / 2
	var yMean float64
	for _, v := range y {
		yMean += v
	}
	yMean /= float64(n)
	var sxx, sxy, sst float64
	for i, v := range y {
		dx := float64(i) - xMean
		dy := v - yMean
		sxx += dx * dx
		sxy += dx * dy
		sst += dy * dy
	}
	if sxx == 0 || flat(math.Sqrt(sst/float64(n)), yMean, eps) {
		return Trend{}, ErrDegenerate
	}
	slope := sxy / sxx
	intercept := yMean - slope*xMean
	residuals := make([]float64, n)
	var sse float64
	for i, v := range y {
		r := v - (intercept + slope*float64(i))
		residuals[i] = r
		sse += r * r
	}
	residStd := math.Sqrt(sse / float64(n-2))
	if flat(residStd, yMean, eps) {
		return Trend{}, ErrDegenerate
	}
	hetero, err := Heteroscedasticity(residuals, recentFrac)
	if err != nil {
		return Trend{}, err
	}
	norm := slope
	if !logPrice {
		norm = slope / math.Abs(yMean)
	}
	return Trend{
		Slope:       slope,
		Intercept:   intercept,
		NormSlope:   norm,
		R2:          1 - sse/sst,
		ResidualStd: residStd,
		ResidualZ:   residuals[n-1] / residStd,
		Hetero:      hetero,
		Residuals:   residuals,
	}, nil
}

// Heteroscedasticity returns the mean squared residual of the trailing
// ceil(frac*n) residuals divided by the mean squared residual of all of them.
func Heteroscedasticity(residuals []float64, frac float64) (float64, error) {
	n := len(residuals)
	if n < 2 {
		return 0, insufficient("heteroscedasticity", n, 2)
	}
	if frac <= 0 || frac > 1 {
		return 0, fmt.Errorf("recent fraction %v out of range: %w", frac, ErrNotReady)
	}
	k := int(math.Ceil(frac * float64(n)))
	if k < 1 {
		k = 1
	}
	var all, recent float64
	for i, r := range residuals {
		sq := r * r
		all += sq
		if i >= n-k {
			recent += sq
		}
	}
	all /= float64(n)
	recent /= float64(k)
	if all == 0 {
		return 0, ErrDegenerate
	}
	return recent / all, nil
}

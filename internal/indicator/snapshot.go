package indicator

import (
	"fmt"

	"dip-ladder-bot/internal/config"
)

// Snapshot bundles the indicators computed from one window. It is only
// produced when every indicator is available.
type Snapshot struct {
	Last        float64
	Prev        float64
	Mean        float64
	StdDev      float64
	Z           float64
	Median      float64
	MAD         float64
	RobustZ     float64
	RSI         float64
	Trend       Trend
	VolRatio    float64
	RelativeVol float64
	// Deviation is the z-score of the configured deviation model.
	Deviation float64
}

// MinPoints is the shortest window Compute accepts for cfg.
func MinPoints(cfg config.IndicatorConfig) int {
	need := cfg.RSIPeriod + 1
	if cfg.ShortWindow+1 > need {
		need = cfg.ShortWindow + 1
	}
	if need < 3 {
		need = 3
	}
	return need
}

// Compute evaluates every indicator over prices.
func Compute(prices []float64, cfg config.IndicatorConfig) (Snapshot, error) {
	if need := MinPoints(cfg); len(prices) < need {
		return Snapshot{}, insufficient("snapshot", len(prices), need)
	}
	eps := cfg.FlatEpsilon
	snap := Snapshot{
		Last: prices[len(prices)-1],
		Prev: prices[len(prices)-2],
	}
	var err error
	if snap.Mean, snap.StdDev, err = MeanStd(prices, eps); err != nil {
		return Snapshot{}, fmt.Errorf("zscore: %w", err)
	}
	snap.Z = (snap.Last - snap.Mean) / snap.StdDev
	snap.RelativeVol = snap.StdDev / snap.Mean
	if snap.RSI, err = RSI(prices, cfg.RSIPeriod); err != nil {
		return Snapshot{}, fmt.Errorf("rsi: %w", err)
	}
	if snap.Trend, err = Regression(prices, cfg.LogPrice, cfg.HeteroRecent, eps); err != nil {
		return Snapshot{}, fmt.Errorf("regression: %w", err)
	}
	if snap.VolRatio, err = VolatilityRatio(prices, cfg.ShortWindow, eps); err != nil {
		return Snapshot{}, fmt.Errorf("volatility ratio: %w", err)
	}
	switch cfg.DeviationModel {
	case config.DeviationRobust:
		if snap.Median, snap.MAD, err = MedianMAD(prices, eps); err != nil {
			return Snapshot{}, fmt.Errorf("robust zscore: %w", err)
		}
		snap.RobustZ = (snap.Last - snap.Median) / snap.MAD
		snap.Deviation = snap.RobustZ
	case config.DeviationRegression:
		snap.Deviation = snap.Trend.ResidualZ
	default:
		snap.Deviation = snap.Z
	}
	return snap, nil
}

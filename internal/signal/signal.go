// Package signal classifies a symbol as an entry candidate from its latest
// quote and indicator snapshot.
package signal

import (
	"errors"
	"fmt"

	"dip-ladder-bot/internal/config"
	"dip-ladder-bot/internal/indicator"
	"dip-ladder-bot/internal/market"
)

var ErrRejected = errors.New("entry rejected")

// Reason tags carried by rejections and candidates.
const (
	ReasonHeld          = "held"
	ReasonCooldown      = "cooldown"
	ReasonNotReady      = "indicators_not_ready"
	ReasonLowVolatility = "low_volatility"
	ReasonVolExpanding  = "volatility_expanding"
	ReasonRegimeChange  = "residual_regime_change"
	ReasonFallingTrend  = "falling_trend"
	ReasonPoorFit       = "poor_trend_fit"
	ReasonLowLiquidity  = "low_liquidity"
	ReasonLowVolume     = "low_volume"
	ReasonCrashing      = "change_24h_floor"
	ReasonShallow       = "shallow_dip"
	ReasonMomentum      = "rsi_above_ceiling"
	ReasonFalling       = "still_falling"
)

// Rejection explains why a symbol is not a candidate this tick.
type Rejection struct {
	Symbol string
	Reason string
	Err    error
}

func (r *Rejection) Error() string {
	if r.Err != nil {
		return fmt.Sprintf("%s: %s: %v", r.Symbol, r.Reason, r.Err)
	}
	return fmt.Sprintf("%s: %s", r.Symbol, r.Reason)
}

func (r *Rejection) Is(target error) bool {
	return target == ErrRejected
}

func (r *Rejection) Unwrap() error {
	return r.Err
}

// Candidate is a symbol that passed every entry gate.
type Candidate struct {
	Symbol    string
	Score     float64
	Price     float64
	Deviation float64
	RSI       float64
	Reasons   []string
}

// Evaluator applies the entry gates in a fixed order; the first failing gate
// decides the rejection reason.
type Evaluator struct {
	cfg config.SignalConfig
}

func New(cfg config.SignalConfig) *Evaluator {
	return &Evaluator{cfg: cfg}
}

func reject(symbol, reason string, err error) (Candidate, error) {
	return Candidate{}, &Rejection{Symbol: symbol, Reason: reason, Err: err}
}

func (e *Evaluator) Evaluate(symbol string, q market.Quote, snap indicator.Snapshot, snapErr error, held, cooling bool) (Candidate, error) {
	cfg := e.cfg
	switch {
	case held:
		return reject(symbol, ReasonHeld, nil)
	case cooling:
		return reject(symbol, ReasonCooldown, nil)
	case snapErr != nil:
		return reject(symbol, ReasonNotReady, snapErr)
	}
	if cfg.MinRelativeVol > 0 && snap.RelativeVol < cfg.MinRelativeVol {
		return reject(symbol, ReasonLowVolatility, nil)
	}
	if cfg.MaxVolRatio > 0 && snap.VolRatio > cfg.MaxVolRatio {
		return reject(symbol, ReasonVolExpanding, nil)
	}
	if cfg.MaxHetero > 0 && snap.Trend.Hetero > cfg.MaxHetero {
		return reject(symbol, ReasonRegimeChange, nil)
	}
	if cfg.SlopeGuard && snap.Trend.NormSlope < cfg.MinSlope {
		return reject(symbol, ReasonFallingTrend, nil)
	}
	if cfg.MinR2 > 0 && snap.Trend.R2 < cfg.MinR2 {
		return reject(symbol, ReasonPoorFit, nil)
	}
	if cfg.MinLiquidity > 0 && q.HasLiquidity && q.Liquidity < cfg.MinLiquidity {
		return reject(symbol, ReasonLowLiquidity, nil)
	}
	if cfg.MinVolume24h > 0 && q.HasVolume && q.Volume24h < cfg.MinVolume24h {
		return reject(symbol, ReasonLowVolume, nil)
	}
	if cfg.ChangeGuard && q.HasChange && q.Change24h < cfg.MinChange24h {
		return reject(symbol, ReasonCrashing, nil)
	}
	if snap.Deviation >= -cfg.EntryDeviation {
		return reject(symbol, ReasonShallow, nil)
	}
	if snap.RSI > cfg.RSICeiling {
		return reject(symbol, ReasonMomentum, nil)
	}
	if cfg.RequireStable && snap.Last < snap.Prev {
		return reject(symbol, ReasonFalling, nil)
	}
	depth := -snap.Deviation
	reasons := []string{
		fmt.Sprintf("deviation=%.3f", snap.Deviation),
		fmt.Sprintf("rsi=%.1f", snap.RSI),
	}
	if cfg.RequireStable {
		reasons = append(reasons, "stabilized")
	}
	return Candidate{
		Symbol:    symbol,
		Score:     depth + (cfg.RSICeiling-snap.RSI)/100,
		Price:     snap.Last,
		Deviation: snap.Deviation,
		RSI:       snap.RSI,
		Reasons:   reasons,
	}, nil
}

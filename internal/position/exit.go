package position

import (
	"dip-ladder-bot/internal/config"
	"dip-ladder-bot/internal/indicator"
)

// EvaluateExit returns the first exit rule that fires at price. snapErr makes
// the deviation based rules unavailable without blocking the ROI based ones.
// Under the profit-only policy no exit is returned below the profit floor.
func EvaluateExit(p *Position, price float64, snap indicator.Snapshot, snapErr error, cfg config.ExitConfig) (ExitReason, bool) {
	reason, ok := firstExit(p, price, snap, snapErr, cfg)
	if !ok {
		return "", false
	}
	if cfg.ProfitOnly && p.ROI(price) < cfg.ProfitFloor {
		return "", false
	}
	return reason, true
}

func firstExit(p *Position, price float64, snap indicator.Snapshot, snapErr error, cfg config.ExitConfig) (ExitReason, bool) {
	roi := p.ROI(price)
	ready := snapErr == nil
	if cfg.MaxStaleTicks > 0 && p.StaleTicks >= cfg.MaxStaleTicks {
		return ExitStale, true
	}
	if ready && cfg.HardStopDeviation > 0 && snap.Deviation <= -cfg.HardStopDeviation {
		return ExitHardStop, true
	}
	if cfg.StopLoss > 0 && roi <= -cfg.StopLoss {
		return ExitHardStop, true
	}
	if roi >= cfg.TakeProfit {
		return ExitTakeProfit, true
	}
	if cfg.MeanReversion && ready && snap.Deviation >= cfg.ExitDeviation && roi >= cfg.ProfitFloor {
		return ExitMeanReversion, true
	}
	if cfg.TrailArm > 0 && cfg.TrailGiveback > 0 && p.PeakROI >= cfg.TrailArm {
		if p.PeakROI-roi >= cfg.TrailGiveback*p.PeakROI {
			return ExitTrailing, true
		}
	}
	if cfg.MaxHoldTicks > 0 && p.Age >= cfg.MaxHoldTicks {
		return ExitTime, true
	}
	return "", false
}

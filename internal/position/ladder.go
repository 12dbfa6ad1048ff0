package position

import (
	"errors"
	"fmt"
	"math"

	"dip-ladder-bot/internal/config"
	"dip-ladder-bot/internal/indicator"
)

var (
	ErrNoBudget            = errors.New("no risk budget available")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrBelowMinOrder       = errors.New("order below minimum")
)

// Plan is the risk budget for one ladder and the size of its first rung.
type Plan struct {
	Budget float64
	Base   float64
}

// budgetTolerance absorbs float error when the last rung spends the budget exactly.
const budgetTolerance = 1e-9

// PlanEntry sizes a new ladder so that the entry and every rung up to
// max_levels fit the budget.
func PlanEntry(balance float64, portfolio config.PortfolioConfig, ladder config.LadderConfig) (Plan, error) {
	budget := math.Inf(1)
	if portfolio.SlotBudget > 0 {
		budget = portfolio.SlotBudget
	}
	if portfolio.RiskFraction > 0 {
		budget = math.Min(budget, balance*portfolio.RiskFraction)
	}
	if math.IsInf(budget, 1) || budget <= 0 {
		return Plan{}, ErrNoBudget
	}
	var units float64
	for i := 0; i <= ladder.MaxLevels; i++ {
		units += math.Pow(ladder.Multiplier, float64(i))
	}
	base := budget / units
	if base > balance {
		return Plan{}, fmt.Errorf("base %.8f exceeds balance %.8f: %w", base, balance, ErrInsufficientBalance)
	}
	if base < portfolio.MinOrder {
		return Plan{}, fmt.Errorf("base %.8f below %.8f: %w", base, portfolio.MinOrder, ErrBelowMinOrder)
	}
	return Plan{Budget: budget, Base: base}, nil
}

// RungAmount is the quote amount of the next ladder fill.
func (p *Position) RungAmount(multiplier float64) float64 {
	return p.BaseAmount * math.Pow(multiplier, float64(p.Level+1))
}

// RequiredDrop is the fractional fall from the last fill that arms the next rung.
func (p *Position) RequiredDrop(cfg config.LadderConfig) float64 {
	return cfg.Step * math.Pow(cfg.StepScale, float64(p.Level))
}

// EvaluateDCA decides whether to add a rung at price. cash bounds the amount
// alongside the ladder budget.
func EvaluateDCA(p *Position, price float64, snap indicator.Snapshot, snapErr error, cfg config.LadderConfig, cash float64) (float64, []string, bool) {
	if p.State != StateOpen || p.Level >= cfg.MaxLevels || p.LastFillPrice <= 0 {
		return 0, nil, false
	}
	drop := 1 - price/p.LastFillPrice
	required := p.RequiredDrop(cfg)
	if drop < required {
		return 0, nil, false
	}
	reasons := []string{
		fmt.Sprintf("level=%d", p.Level+1),
		fmt.Sprintf("drop=%.4f", drop),
	}
	if cfg.MomentumGate {
		if snapErr != nil {
			return 0, nil, false
		}
		if cfg.RSICeiling > 0 && snap.RSI > cfg.RSICeiling {
			return 0, nil, false
		}
		if cfg.MaxVolRatio > 0 && snap.VolRatio > cfg.MaxVolRatio {
			return 0, nil, false
		}
		reasons = append(reasons, fmt.Sprintf("rsi=%.1f", snap.RSI))
	}
	amount := p.RungAmount(cfg.Multiplier)
	if p.Cost+amount > p.Budget*(1+budgetTolerance) {
		return 0, nil, false
	}
	if amount > cash {
		return 0, nil, false
	}
	return amount, reasons, true
}

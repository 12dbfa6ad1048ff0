package engine

import (
	"fmt"

	"dip-ladder-bot/internal/config"

	"go.uber.org/zap"
)

// OnFill applies a confirmed execution. Under the optimistic policy state was
// already applied when the intent was emitted, so fills are only logged.
func (e *Engine) OnFill(f Fill) error {
	if e.cfg.FillPolicy != config.FillConfirmed {
		e.log.Debug("fill ignored under optimistic policy", zap.String("symbol", f.Symbol))
		return nil
	}
	p, ok := e.pending[f.Symbol]
	if !ok {
		return fmt.Errorf("%s: %w", f.Symbol, ErrNoPending)
	}
	if f.Side != p.intent.Side {
		return fmt.Errorf("%s: side %s for %s intent: %w", f.Symbol, f.Side, p.intent.Side, ErrFillMismatch)
	}
	if !(f.Amount > 0) || !(f.Price > 0) {
		return fmt.Errorf("%s: amount %v price %v: %w", f.Symbol, f.Amount, f.Price, ErrFillMismatch)
	}
	delete(e.pending, f.Symbol)
	return e.applyFill(p.intent, p.plan, f.Amount, f.Price)
}

// OnReject drops the pending intent of symbol after the venue refused it.
func (e *Engine) OnReject(symbol string) error {
	if e.cfg.FillPolicy != config.FillConfirmed {
		return nil
	}
	if _, ok := e.pending[symbol]; !ok {
		return fmt.Errorf("%s: %w", symbol, ErrNoPending)
	}
	delete(e.pending, symbol)
	return nil
}

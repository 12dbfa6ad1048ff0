package replay

import (
	"context"
	"errors"

	"dip-ladder-bot/internal/engine"
	"dip-ladder-bot/internal/exec"
	"dip-ladder-bot/internal/series"

	"go.uber.org/zap"
)

type Summary struct {
	Ticks     int
	Entries   int
	DCAs      int
	Exits     int
	Rejected  int
	Failed    int
	Balance   float64
	Realized  float64
	Open      int
	MarkValue float64
	Equity    float64
}

// Run feeds frames through eng, executing each intent against executor and
// reporting fills back. The final mark uses the last seen price per symbol.
func Run(ctx context.Context, eng *engine.Engine, executor *exec.Executor, frames []Frame, log *zap.Logger) (Summary, error) {
	if log == nil {
		log = zap.NewNop()
	}
	var sum Summary
	last := make(map[string]float64)
	for _, f := range frames {
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		for symbol, q := range f.Quotes {
			if series.ValidPrice(q.Price) {
				last[symbol] = q.Price
			}
		}
		intent, err := eng.OnTick(f.Quotes)
		if err != nil {
			log.Warn("engine tick failed", zap.Int64("frame", f.Tick), zap.Error(err))
		}
		sum.Ticks++
		sum.Rejected += eng.LastReport().Rejected
		if intent == nil {
			continue
		}
		switch intent.Kind {
		case engine.KindEntry:
			sum.Entries++
		case engine.KindDCA:
			sum.DCAs++
		case engine.KindExit:
			sum.Exits++
		}
		x, err := executor.Execute(ctx, *intent)
		if err != nil {
			sum.Failed++
			log.Warn("replay execution failed", zap.String("symbol", intent.Symbol), zap.Error(err))
			if errors.Is(err, exec.ErrRejected) {
				_ = eng.OnReject(intent.Symbol)
			}
			continue
		}
		if err := eng.OnFill(x.Fill()); err != nil {
			log.Warn("replay fill not applied", zap.String("symbol", intent.Symbol), zap.Error(err))
		}
	}
	sum.Balance = eng.Balance()
	sum.Realized = eng.Realized()
	for _, p := range eng.Positions() {
		sum.Open++
		price, ok := last[p.Symbol]
		if !ok {
			price = p.LastFillPrice
		}
		sum.MarkValue += p.Value(price)
	}
	sum.Equity = sum.Balance + sum.MarkValue
	return sum, nil
}

package exec

import (
	"context"
	"fmt"
	"sync"

	"dip-ladder-bot/internal/config"
	"dip-ladder-bot/internal/engine"

	"github.com/shopspring/decimal"
)

var bps = decimal.NewFromInt(10_000)

// Paper fills every order immediately at the reference price moved against
// the trader by the slippage, then charges the fee in quote currency.
type Paper struct {
	slippage decimal.Decimal
	fee      decimal.Decimal

	mu  sync.Mutex
	seq int64
}

func NewPaper(cfg config.ExecutionConfig) *Paper {
	return &Paper{
		slippage: decimal.NewFromFloat(cfg.SlippageBps).Div(bps),
		fee:      decimal.NewFromFloat(cfg.FeeBps).Div(bps),
	}
}

func (p *Paper) Submit(ctx context.Context, order Order) (Execution, error) {
	if err := ctx.Err(); err != nil {
		return Execution{}, err
	}
	if !order.RefPrice.IsPositive() || !order.Amount.IsPositive() {
		return Execution{}, fmt.Errorf("%s price %s amount %s: %w", order.Symbol, order.RefPrice, order.Amount, ErrRejected)
	}
	one := decimal.NewFromInt(1)
	var price, fee decimal.Decimal
	switch order.Side {
	case engine.SideBuy:
		if order.Unit != engine.UnitQuote {
			return Execution{}, fmt.Errorf("buy in %s units: %w", order.Unit, ErrRejected)
		}
		fill := order.RefPrice.Mul(one.Add(p.slippage))
		fee = order.Amount.Mul(p.fee)
		qty := order.Amount.Sub(fee).Div(fill)
		price = order.Amount.Div(qty)
	case engine.SideSell:
		if order.Unit != engine.UnitBase {
			return Execution{}, fmt.Errorf("sell in %s units: %w", order.Unit, ErrRejected)
		}
		fill := order.RefPrice.Mul(one.Sub(p.slippage))
		gross := order.Amount.Mul(fill)
		fee = gross.Mul(p.fee)
		price = gross.Sub(fee).Div(order.Amount)
	default:
		return Execution{}, fmt.Errorf("side %q: %w", order.Side, ErrRejected)
	}
	p.mu.Lock()
	p.seq++
	id := fmt.Sprintf("paper-%d", p.seq)
	p.mu.Unlock()
	amount, _ := order.Amount.Float64()
	px, _ := price.Float64()
	f, _ := fee.Float64()
	return Execution{
		OrderID:       id,
		ClientOrderID: order.ClientOrderID,
		Symbol:        order.Symbol,
		Side:          string(order.Side),
		Amount:        amount,
		Price:         px,
		Fee:           f,
	}, nil
}

// Package position tracks one held symbol through its ladder and decides
// when it should average down or close.
package position

import (
	"errors"
	"fmt"

	"dip-ladder-bot/internal/config"
)

var (
	ErrClosed      = errors.New("position closed")
	ErrInvalidFill = errors.New("invalid fill")
)

// Position is an open ladder on one symbol. Amounts are in quote currency,
// Quantity is in base units.
type Position struct {
	Symbol        string  `msgpack:"symbol"`
	State         State   `msgpack:"state"`
	AvgPrice      float64 `msgpack:"avg_price"`
	Quantity      float64 `msgpack:"quantity"`
	Cost          float64 `msgpack:"cost"`
	LastFillPrice float64 `msgpack:"last_fill_price"`
	Level         int     `msgpack:"level"`
	HighWater     float64 `msgpack:"high_water"`
	PeakROI       float64 `msgpack:"peak_roi"`
	Age           int     `msgpack:"age"`
	StaleTicks    int     `msgpack:"stale_ticks"`
	Budget        float64 `msgpack:"budget"`
	BaseAmount    float64 `msgpack:"base_amount"`
}

func validFill(price, amount float64) error {
	if !(price > 0) || !(amount > 0) {
		return fmt.Errorf("price %v amount %v: %w", price, amount, ErrInvalidFill)
	}
	return nil
}

// Open starts a position with one fill of amount at price under plan.
func Open(symbol string, price, amount float64, plan Plan) (*Position, error) {
	if err := validFill(price, amount); err != nil {
		return nil, err
	}
	return &Position{
		Symbol:        symbol,
		State:         StateOpen,
		AvgPrice:      price,
		Quantity:      amount / price,
		Cost:          amount,
		LastFillPrice: price,
		HighWater:     price,
		Budget:        plan.Budget,
		BaseAmount:    plan.Base,
	}, nil
}

// Average adds a ladder fill. The average price moves toward price and the
// level increases by one.
func (p *Position) Average(price, amount float64, agePolicy string) error {
	if err := validFill(price, amount); err != nil {
		return err
	}
	if nextState(p.State, EventAverage) != StateOpen {
		return ErrClosed
	}
	qty := amount / price
	p.AvgPrice = (p.AvgPrice*p.Quantity + amount) / (p.Quantity + qty)
	p.Quantity += qty
	p.Cost += amount
	p.LastFillPrice = price
	p.Level++
	p.PeakROI = 0
	if agePolicy == config.AgeReset {
		p.Age = 0
	}
	return nil
}

// Close marks the position terminal.
func (p *Position) Close() error {
	next := nextState(p.State, EventClose)
	if next == p.State {
		return ErrClosed
	}
	p.State = next
	return nil
}

// Observe records a fresh price for the tick.
func (p *Position) Observe(price float64) {
	p.Age++
	p.StaleTicks = 0
	if price > p.HighWater {
		p.HighWater = price
	}
	if roi := p.ROI(price); roi > p.PeakROI {
		p.PeakROI = roi
	}
}

// MarkStale records a tick on which the symbol had no usable quote. Age only
// advances on observed ticks.
func (p *Position) MarkStale() {
	p.StaleTicks++
}

func (p *Position) ROI(price float64) float64 {
	if p.AvgPrice <= 0 {
		return 0
	}
	return price/p.AvgPrice - 1
}

func (p *Position) Value(price float64) float64 {
	return p.Quantity * price
}

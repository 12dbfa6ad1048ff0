package engine

import (
	"errors"
	"fmt"

	"dip-ladder-bot/internal/position"
)

var ErrInvalidState = errors.New("invalid engine state")

// State is the persistable part of an engine. Pending intents are not kept;
// after a restart they are treated as never sent.
type State struct {
	Tick      int64                `msgpack:"tick"`
	Cash      float64              `msgpack:"cash"`
	Realized  float64              `msgpack:"realized"`
	Positions []position.Position  `msgpack:"positions"`
	Cooldowns map[string]int       `msgpack:"cooldowns"`
	Series    map[string][]float64 `msgpack:"series"`
}

func (e *Engine) Snapshot() State {
	s := State{
		Tick:      e.tick,
		Cash:      e.cash,
		Realized:  e.realized,
		Positions: e.Positions(),
		Cooldowns: e.Cooldowns(),
		Series:    make(map[string][]float64),
	}
	for _, symbol := range e.series.Symbols() {
		s.Series[symbol] = e.series.Values(symbol)
	}
	return s
}

// Restore replaces the engine's state with s.
func (e *Engine) Restore(s State) error {
	if s.Cash < 0 {
		return fmt.Errorf("cash %v: %w", s.Cash, ErrInvalidState)
	}
	positions := make(map[string]*position.Position, len(s.Positions))
	for i := range s.Positions {
		p := s.Positions[i]
		if p.Symbol == "" || p.State != position.StateOpen || !(p.AvgPrice > 0) || !(p.Quantity > 0) {
			return fmt.Errorf("position %q: %w", p.Symbol, ErrInvalidState)
		}
		if _, dup := positions[p.Symbol]; dup {
			return fmt.Errorf("duplicate position %q: %w", p.Symbol, ErrInvalidState)
		}
		positions[p.Symbol] = &p
	}
	e.tick = s.Tick
	e.cash = s.Cash
	e.realized = s.Realized
	e.positions = positions
	e.pending = make(map[string]*pendingOrder)
	e.cooldowns = make(map[string]int, len(s.Cooldowns))
	for symbol, n := range s.Cooldowns {
		if n > 0 {
			e.cooldowns[symbol] = n
		}
	}
	for _, symbol := range e.series.Symbols() {
		e.series.Restore(symbol, nil)
	}
	for symbol, prices := range s.Series {
		e.series.Restore(symbol, prices)
	}
	return nil
}

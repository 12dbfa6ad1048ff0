package market

import (
	"sync"
	"time"

	"dip-ladder-bot/internal/series"
)

// Quote is one symbol's observation for a tick. The Has flags mark optional
// fields the source actually supplied.
type Quote struct {
	Price        float64
	Liquidity    float64
	Volume24h    float64
	Change24h    float64
	HasLiquidity bool
	HasVolume    bool
	HasChange    bool
}

// Board holds the latest quote per symbol, written by feed goroutines and
// read by the tick loop.
type Board struct {
	mu      sync.RWMutex
	quotes  map[string]Quote
	seen    map[string]time.Time
	updated time.Time
	now     func() time.Time
}

func NewBoard() *Board {
	return &Board{
		quotes: make(map[string]Quote),
		seen:   make(map[string]time.Time),
		now:    time.Now,
	}
}

// Update stores the valid quotes. The board only counts as updated when at
// least one quote was accepted.
func (b *Board) Update(quotes map[string]Quote) {
	if len(quotes) == 0 {
		return
	}
	now := b.now()
	b.mu.Lock()
	defer b.mu.Unlock()
	accepted := 0
	for symbol, q := range quotes {
		if symbol == "" || !series.ValidPrice(q.Price) {
			continue
		}
		b.quotes[symbol] = q
		b.seen[symbol] = now
		accepted++
	}
	if accepted > 0 {
		b.updated = now
	}
}

// Fresh copies the quotes updated within maxAge. A zero maxAge returns all of them.
func (b *Board) Fresh(maxAge time.Duration) map[string]Quote {
	now := b.now()
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make(map[string]Quote, len(b.quotes))
	for symbol, q := range b.quotes {
		if maxAge > 0 && now.Sub(b.seen[symbol]) > maxAge {
			continue
		}
		out[symbol] = q
	}
	return out
}

// UpdatedAt is the time of the last accepted update, zero before the first.
func (b *Board) UpdatedAt() time.Time {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.updated
}

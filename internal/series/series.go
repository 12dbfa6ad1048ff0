// Package series keeps a bounded rolling price window per symbol.
package series

import (
	"errors"
	"math"
	"sort"
)

// ErrNotReady is returned while a symbol has fewer observations than the window capacity.
var ErrNotReady = errors.New("price window not ready")

type ring struct {
	buf    []float64
	next   int
	count  int
	absent int
}

func newRing(capacity int) *ring {
	return &ring{buf: make([]float64, capacity)}
}

func (r *ring) push(v float64) {
	r.buf[r.next] = v
	r.next = (r.next + 1) % len(r.buf)
	if r.count < len(r.buf) {
		r.count++
	}
}

func (r *ring) values() []float64 {
	out := make([]float64, r.count)
	start := (r.next - r.count + len(r.buf)) % len(r.buf)
	for i := 0; i < r.count; i++ {
		out[i] = r.buf[(start+i)%len(r.buf)]
	}
	return out
}

func (r *ring) last() float64 {
	return r.buf[(r.next-1+len(r.buf))%len(r.buf)]
}

// Store holds one ring buffer per symbol. It is not safe for concurrent use;
// the engine that owns it serializes access.
type Store struct {
	capacity int
	rings    map[string]*ring
}

func New(capacity int) *Store {
	if capacity < 1 {
		capacity = 1
	}
	return &Store{capacity: capacity, rings: make(map[string]*ring)}
}

func (s *Store) Capacity() int { return s.capacity }

// Append records price for symbol. Non-positive and non-finite prices are dropped.
func (s *Store) Append(symbol string, price float64) bool {
	if symbol == "" || !ValidPrice(price) {
		return false
	}
	r := s.rings[symbol]
	if r == nil {
		r = newRing(s.capacity)
		s.rings[symbol] = r
	}
	r.push(price)
	r.absent = 0
	return true
}

// Window returns a copy of the full window, oldest first.
func (s *Store) Window(symbol string) ([]float64, error) {
	r := s.rings[symbol]
	if r == nil || r.count < s.capacity {
		return nil, ErrNotReady
	}
	return r.values(), nil
}

// Values returns whatever history exists for symbol, full or not.
func (s *Store) Values(symbol string) []float64 {
	r := s.rings[symbol]
	if r == nil {
		return nil
	}
	return r.values()
}

// Last returns the most recent observed price.
func (s *Store) Last(symbol string) (float64, bool) {
	r := s.rings[symbol]
	if r == nil || r.count == 0 {
		return 0, false
	}
	return r.last(), true
}

func (s *Store) size(symbol string) int {
	r := s.rings[symbol]
	if r == nil {
		return 0
	}
	return r.count
}

// Sweep ages every symbol missing from present and drops those absent for more
// than evictAfter consecutive sweeps. Symbols for which held returns true are kept.
// It returns the evicted symbols in sorted order.
func (s *Store) Sweep(present map[string]bool, held func(string) bool, evictAfter int) []string {
	var evicted []string
	for symbol, r := range s.rings {
		if present[symbol] {
			continue
		}
		r.absent++
		if held != nil && held(symbol) {
			continue
		}
		if r.absent > evictAfter {
			delete(s.rings, symbol)
			evicted = append(evicted, symbol)
		}
	}
	sort.Strings(evicted)
	return evicted
}

// Restore replaces the history of symbol, keeping the newest capacity prices.
func (s *Store) Restore(symbol string, prices []float64) {
	r := newRing(s.capacity)
	for _, p := range prices {
		if ValidPrice(p) {
			r.push(p)
		}
	}
	if r.count == 0 {
		delete(s.rings, symbol)
		return
	}
	s.rings[symbol] = r
}

// Symbols lists tracked symbols in sorted order.
func (s *Store) Symbols() []string {
	out := make([]string, 0, len(s.rings))
	for symbol := range s.rings {
		out = append(out, symbol)
	}
	sort.Strings(out)
	return out
}

// ValidPrice reports whether p is a positive finite price.
func ValidPrice(p float64) bool {
	return p > 0 && !math.IsNaN(p) && !math.IsInf(p, 0)
}

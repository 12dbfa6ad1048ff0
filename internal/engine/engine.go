// Package engine turns a stream of per-tick price maps into at most one order
// intent per tick. An Engine is not safe for concurrent use; the host owns the
// single goroutine that calls OnTick and OnFill.
package engine

import (
	"errors"
	"sort"

	"dip-ladder-bot/internal/config"
	"dip-ladder-bot/internal/position"
	"dip-ladder-bot/internal/series"
	"dip-ladder-bot/internal/signal"

	"go.uber.org/zap"
)

var (
	ErrUnknownSymbol = errors.New("unknown symbol")
	ErrNoPending     = errors.New("no pending intent for symbol")
	ErrFillMismatch  = errors.New("fill does not match pending intent")
)

type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Unit declares what an intent or fill amount is denominated in.
type Unit string

const (
	UnitQuote Unit = "quote"
	UnitBase  Unit = "base"
)

type Kind string

const (
	KindEntry Kind = "entry"
	KindDCA   Kind = "dca"
	KindExit  Kind = "exit"
)

// Intent is the single order decision of a tick. BUY amounts are quote
// currency, SELL amounts are base quantity; Unit says which. ID is unique per
// emitted intent and survives restarts, unlike Tick.
type Intent struct {
	ID      string
	Tick    int64
	Side    Side
	Symbol  string
	Amount  float64
	Unit    Unit
	Price   float64
	Kind    Kind
	Reasons []string
}

// Fill confirms execution of an intent, with Amount in the intent's unit.
type Fill struct {
	Symbol string
	Side   Side
	Amount float64
	Price  float64
}

// Report summarizes the last OnTick call.
type Report struct {
	Tick       int64
	Quotes     int
	Rejected   int
	Stale      []string
	Evicted    []string
	Expired    []string
	Exits      int
	DCAs       int
	Candidates int
	Intent     *Intent
}

type pendingOrder struct {
	intent Intent
	plan   position.Plan
	age    int
}

type Engine struct {
	cfg     config.StrategyConfig
	log     *zap.Logger
	series  *series.Store
	signals *signal.Evaluator

	positions map[string]*position.Position
	cooldowns map[string]int
	pending   map[string]*pendingOrder
	allow     map[string]bool
	deny      map[string]bool

	cash       float64
	realized   float64
	tick       int64
	buysPaused bool
	report     Report
}

func New(cfg config.StrategyConfig, log *zap.Logger) (*Engine, error) {
	if err := config.ValidateStrategy(cfg); err != nil {
		return nil, err
	}
	if log == nil {
		log = zap.NewNop()
	}
	e := &Engine{
		cfg:       cfg,
		log:       log,
		series:    series.New(cfg.Indicators.Window),
		signals:   signal.New(cfg.Signal),
		positions: make(map[string]*position.Position),
		cooldowns: make(map[string]int),
		pending:   make(map[string]*pendingOrder),
		deny:      make(map[string]bool),
		cash:      cfg.StartingBalance,
	}
	if len(cfg.Symbols) > 0 {
		e.allow = make(map[string]bool, len(cfg.Symbols))
		for _, s := range cfg.Symbols {
			e.allow[s] = true
		}
	}
	for _, s := range cfg.SymbolBlacklist {
		e.deny[s] = true
	}
	return e, nil
}

func (e *Engine) tradable(symbol string) bool {
	if e.deny[symbol] {
		return false
	}
	return e.allow == nil || e.allow[symbol]
}

// Balance is the cash not spent on filled orders.
func (e *Engine) Balance() float64 { return e.cash }

// Available is Balance minus the quote reserved by unconfirmed BUY intents.
func (e *Engine) Available() float64 { return e.cash - e.reserved() }

// Realized is the cumulative realized profit of closed positions.
func (e *Engine) Realized() float64 { return e.realized }

func (e *Engine) Tick() int64 { return e.tick }

// PauseBuys stops entries and ladder fills while exits keep running.
func (e *Engine) PauseBuys(paused bool) { e.buysPaused = paused }

func (e *Engine) BuysPaused() bool { return e.buysPaused }

func (e *Engine) LastReport() Report { return e.report }

// Positions returns copies of the open positions ordered by symbol.
func (e *Engine) Positions() []position.Position {
	out := make([]position.Position, 0, len(e.positions))
	for _, symbol := range e.heldSymbols() {
		out = append(out, *e.positions[symbol])
	}
	return out
}

func (e *Engine) Position(symbol string) (position.Position, bool) {
	p, ok := e.positions[symbol]
	if !ok {
		return position.Position{}, false
	}
	return *p, true
}

func (e *Engine) Cooldowns() map[string]int {
	out := make(map[string]int, len(e.cooldowns))
	for k, v := range e.cooldowns {
		out[k] = v
	}
	return out
}

// Pending lists symbols awaiting a fill confirmation.
func (e *Engine) Pending() []string {
	out := make([]string, 0, len(e.pending))
	for symbol := range e.pending {
		out = append(out, symbol)
	}
	sort.Strings(out)
	return out
}

// Exposure is the quote cost committed to open positions.
func (e *Engine) Exposure() float64 {
	var total float64
	for _, p := range e.positions {
		total += p.Cost
	}
	return total
}

func (e *Engine) heldSymbols() []string {
	out := make([]string, 0, len(e.positions))
	for symbol := range e.positions {
		out = append(out, symbol)
	}
	sort.Strings(out)
	return out
}

func (e *Engine) occupied(symbol string) bool {
	_, held := e.positions[symbol]
	_, waiting := e.pending[symbol]
	return held || waiting
}

func (e *Engine) reserved() float64 {
	var total float64
	for _, p := range e.pending {
		if p.intent.Side == SideBuy {
			total += p.intent.Amount
		}
	}
	return total
}

func (e *Engine) openSlots() int {
	used := len(e.positions)
	for symbol, p := range e.pending {
		if p.intent.Kind == KindEntry {
			if _, held := e.positions[symbol]; !held {
				used++
			}
		}
	}
	return e.cfg.Portfolio.MaxPositions - used
}

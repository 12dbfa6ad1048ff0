package engine

import (
	"errors"
	"fmt"
	"sort"

	"dip-ladder-bot/internal/config"
	"dip-ladder-bot/internal/indicator"
	"dip-ladder-bot/internal/market"
	"dip-ladder-bot/internal/position"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var errStale = fmt.Errorf("no quote this tick: %w", indicator.ErrNotReady)

// decision is one ranked candidate action. Exactly one is selected per tick.
type decision struct {
	kind     Kind
	symbol   string
	severity int
	score    float64
	price    float64
	amount   float64
	plan     position.Plan
	reasons  []string
}

func kindRank(k Kind) int {
	switch k {
	case KindExit:
		return 0
	case KindDCA:
		return 1
	default:
		return 2
	}
}

// before orders exits by severity then symbol, DCA by symbol, and entries by
// score descending then symbol.
func (d decision) before(o decision) bool {
	if kindRank(d.kind) != kindRank(o.kind) {
		return kindRank(d.kind) < kindRank(o.kind)
	}
	switch d.kind {
	case KindExit:
		if d.severity != o.severity {
			return d.severity < o.severity
		}
	case KindEntry:
		if d.score != o.score {
			return d.score > o.score
		}
	}
	return d.symbol < o.symbol
}

type snapshotFunc func(symbol string) (indicator.Snapshot, error)

// OnTick ingests one price map and returns the tick's intent, or nil when no
// rule fires. Malformed quotes are skipped per symbol.
func (e *Engine) OnTick(quotes map[string]market.Quote) (*Intent, error) {
	e.tick++
	rep := Report{Tick: e.tick}
	e.ageCooldowns()
	rep.Expired = e.expirePending()

	symbols := make([]string, 0, len(quotes))
	for symbol := range quotes {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)
	present := make(map[string]bool, len(symbols))
	for _, symbol := range symbols {
		if !e.tradable(symbol) {
			continue
		}
		if !e.series.Append(symbol, quotes[symbol].Price) {
			rep.Rejected++
			continue
		}
		present[symbol] = true
	}
	rep.Quotes = len(present)

	for _, symbol := range e.heldSymbols() {
		p := e.positions[symbol]
		if present[symbol] {
			p.Observe(quotes[symbol].Price)
			continue
		}
		p.MarkStale()
		rep.Stale = append(rep.Stale, symbol)
	}
	rep.Evicted = e.series.Sweep(present, e.occupied, e.cfg.EvictAfterTicks)

	snapshot := e.snapshotter()
	exits := e.exitDecisions(present, quotes, snapshot)
	exiting := make(map[string]bool, len(exits))
	for _, d := range exits {
		exiting[d.symbol] = true
	}
	var dcas, entries []decision
	if !e.buysPaused {
		dcas = e.dcaDecisions(present, quotes, exiting, snapshot)
		entries = e.entryDecisions(symbols, present, quotes, snapshot)
	}
	rep.Exits, rep.DCAs, rep.Candidates = len(exits), len(dcas), len(entries)

	decisions := append(append(exits, dcas...), entries...)
	if len(decisions) == 0 {
		e.report = rep
		return nil, nil
	}
	sort.SliceStable(decisions, func(i, j int) bool {
		return decisions[i].before(decisions[j])
	})
	intent, err := e.emit(decisions[0])
	rep.Intent = intent
	e.report = rep
	return intent, err
}

func (e *Engine) ageCooldowns() {
	for symbol, n := range e.cooldowns {
		if n <= 1 {
			delete(e.cooldowns, symbol)
			continue
		}
		e.cooldowns[symbol] = n - 1
	}
}

func (e *Engine) expirePending() []string {
	var expired []string
	for symbol, p := range e.pending {
		p.age++
		if e.cfg.PendingTicks > 0 && p.age > e.cfg.PendingTicks {
			delete(e.pending, symbol)
			expired = append(expired, symbol)
			e.log.Warn("pending intent expired without fill",
				zap.String("symbol", symbol),
				zap.String("kind", string(p.intent.Kind)),
				zap.Int64("tick", p.intent.Tick),
			)
		}
	}
	sort.Strings(expired)
	return expired
}

func (e *Engine) snapshotter() snapshotFunc {
	type result struct {
		snap indicator.Snapshot
		err  error
	}
	memo := make(map[string]result)
	return func(symbol string) (indicator.Snapshot, error) {
		if r, ok := memo[symbol]; ok {
			return r.snap, r.err
		}
		var r result
		window, err := e.series.Window(symbol)
		if err != nil {
			r.err = fmt.Errorf("%w: %w", indicator.ErrNotReady, err)
		} else {
			r.snap, r.err = indicator.Compute(window, e.cfg.Indicators)
		}
		memo[symbol] = r
		return r.snap, r.err
	}
}

func (e *Engine) exitDecisions(present map[string]bool, quotes map[string]market.Quote, snapshot snapshotFunc) []decision {
	var out []decision
	for _, symbol := range e.heldSymbols() {
		if _, waiting := e.pending[symbol]; waiting {
			continue
		}
		p := e.positions[symbol]
		var (
			price   float64
			snap    indicator.Snapshot
			snapErr error
		)
		if present[symbol] {
			price = quotes[symbol].Price
			snap, snapErr = snapshot(symbol)
		} else {
			if e.cfg.Exit.MaxStaleTicks == 0 || p.StaleTicks < e.cfg.Exit.MaxStaleTicks {
				continue
			}
			last, ok := e.series.Last(symbol)
			if !ok {
				last = p.LastFillPrice
			}
			price, snapErr = last, errStale
		}
		reason, ok := position.EvaluateExit(p, price, snap, snapErr, e.cfg.Exit)
		if !ok {
			continue
		}
		out = append(out, decision{
			kind:     KindExit,
			symbol:   symbol,
			severity: reason.Severity(),
			price:    price,
			amount:   p.Quantity,
			reasons: []string{
				string(reason),
				fmt.Sprintf("roi=%.4f", p.ROI(price)),
				fmt.Sprintf("level=%d", p.Level),
				fmt.Sprintf("age=%d", p.Age),
			},
		})
	}
	return out
}

func (e *Engine) dcaDecisions(present map[string]bool, quotes map[string]market.Quote, exiting map[string]bool, snapshot snapshotFunc) []decision {
	var out []decision
	for _, symbol := range e.heldSymbols() {
		if !present[symbol] || exiting[symbol] {
			continue
		}
		if _, waiting := e.pending[symbol]; waiting {
			continue
		}
		p := e.positions[symbol]
		price := quotes[symbol].Price
		snap, snapErr := snapshot(symbol)
		amount, reasons, ok := position.EvaluateDCA(p, price, snap, snapErr, e.cfg.Ladder, e.Available())
		if !ok {
			continue
		}
		out = append(out, decision{
			kind:    KindDCA,
			symbol:  symbol,
			price:   price,
			amount:  amount,
			reasons: reasons,
		})
	}
	return out
}

func (e *Engine) entryDecisions(symbols []string, present map[string]bool, quotes map[string]market.Quote, snapshot snapshotFunc) []decision {
	if e.openSlots() <= 0 {
		return nil
	}
	plan, err := position.PlanEntry(e.Available(), e.cfg.Portfolio, e.cfg.Ladder)
	if err != nil {
		e.log.Debug("entries disabled this tick", zap.Error(err))
		return nil
	}
	var out []decision
	for _, symbol := range symbols {
		if !present[symbol] {
			continue
		}
		held := e.occupied(symbol)
		cooling := e.cooldowns[symbol] > 0
		var (
			snap    indicator.Snapshot
			snapErr error
		)
		if !held && !cooling {
			snap, snapErr = snapshot(symbol)
		}
		cand, err := e.signals.Evaluate(symbol, quotes[symbol], snap, snapErr, held, cooling)
		if err != nil {
			continue
		}
		out = append(out, decision{
			kind:    KindEntry,
			symbol:  symbol,
			score:   cand.Score,
			price:   cand.Price,
			amount:  plan.Base,
			plan:    plan,
			reasons: append(cand.Reasons, fmt.Sprintf("score=%.3f", cand.Score)),
		})
	}
	return out
}

func (e *Engine) emit(d decision) (*Intent, error) {
	intent := Intent{
		ID:      uuid.NewString(),
		Tick:    e.tick,
		Symbol:  d.symbol,
		Amount:  d.amount,
		Price:   d.price,
		Kind:    d.kind,
		Reasons: d.reasons,
		Side:    SideBuy,
		Unit:    UnitQuote,
	}
	if d.kind == KindExit {
		intent.Side, intent.Unit = SideSell, UnitBase
	}
	if e.cfg.FillPolicy == config.FillConfirmed {
		e.pending[d.symbol] = &pendingOrder{intent: intent, plan: d.plan}
		return &intent, nil
	}
	if err := e.applyFill(intent, d.plan, intent.Amount, intent.Price); err != nil {
		return nil, err
	}
	return &intent, nil
}

// applyFill moves cash and position state for an executed intent.
func (e *Engine) applyFill(intent Intent, plan position.Plan, amount, price float64) error {
	symbol := intent.Symbol
	switch intent.Kind {
	case KindEntry:
		p, err := position.Open(symbol, price, amount, plan)
		if err != nil {
			return fmt.Errorf("open %s: %w", symbol, err)
		}
		e.positions[symbol] = p
		e.cash -= amount
	case KindDCA:
		p, ok := e.positions[symbol]
		if !ok {
			return fmt.Errorf("average %s: %w", symbol, ErrUnknownSymbol)
		}
		if err := p.Average(price, amount, e.cfg.Ladder.AgePolicy); err != nil {
			return fmt.Errorf("average %s: %w", symbol, err)
		}
		e.cash -= amount
	case KindExit:
		p, ok := e.positions[symbol]
		if !ok {
			return fmt.Errorf("close %s: %w", symbol, ErrUnknownSymbol)
		}
		if err := p.Close(); err != nil && !errors.Is(err, position.ErrClosed) {
			return fmt.Errorf("close %s: %w", symbol, err)
		}
		proceeds := amount * price
		e.cash += proceeds
		e.realized += proceeds - p.Cost
		delete(e.positions, symbol)
		if n := e.cfg.Portfolio.Cooldown(); n > 0 {
			e.cooldowns[symbol] = n
		}
	default:
		return fmt.Errorf("intent kind %q: %w", intent.Kind, ErrFillMismatch)
	}
	return nil
}

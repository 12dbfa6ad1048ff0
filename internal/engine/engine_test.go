package engine

import (
	"errors"
	"math"
	"math/rand"
	"reflect"
	"sort"
	"testing"

	"dip-ladder-bot/internal/config"
	"dip-ladder-bot/internal/market"
	"dip-ladder-bot/internal/position"

	"go.uber.org/zap"
)

func testConfig() config.StrategyConfig {
	cfg := config.Default()
	cfg.Signal.RSICeiling = 45
	cfg.Portfolio.SlotBudget = 100
	cfg.Portfolio.RiskFraction = 0
	cooldown := 3
	cfg.Portfolio.CooldownTicks = &cooldown
	cfg.Ladder.MaxLevels = 0
	return cfg
}

func newEngine(t *testing.T, cfg config.StrategyConfig) *Engine {
	t.Helper()
	e, err := New(cfg, zap.NewNop())
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	return e
}

// calm is 19 ticks of a gentle oscillation around 100.
func calm() []float64 {
	out := make([]float64, 19)
	for i := range out {
		out[i] = 100 + math.Sin(float64(i))
	}
	return out
}

func quotes(prices map[string]float64) map[string]market.Quote {
	out := make(map[string]market.Quote, len(prices))
	for symbol, p := range prices {
		out[symbol] = market.Quote{Price: p}
	}
	return out
}

func tick(t *testing.T, e *Engine, prices map[string]float64) *Intent {
	t.Helper()
	intent, err := e.OnTick(quotes(prices))
	if err != nil {
		t.Fatalf("tick %d: %v", e.Tick(), err)
	}
	return intent
}

// warmUp feeds the calm path for every symbol and expects no intent.
func warmUp(t *testing.T, e *Engine, symbols ...string) {
	t.Helper()
	for _, p := range calm() {
		prices := make(map[string]float64, len(symbols))
		for _, s := range symbols {
			prices[s] = p
		}
		if intent := tick(t, e, prices); intent != nil {
			t.Fatalf("unexpected intent during warm up: %+v", intent)
		}
	}
}

func openPosition(symbol string, price, qty float64) position.Position {
	return position.Position{
		Symbol:        symbol,
		State:         position.StateOpen,
		AvgPrice:      price,
		Quantity:      qty,
		Cost:          price * qty,
		LastFillPrice: price,
		HighWater:     price,
		Budget:        price * qty,
		BaseAmount:    price * qty,
	}
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := testConfig()
	cfg.Portfolio.MaxPositions = 0
	if _, err := New(cfg, nil); err == nil {
		t.Fatalf("expected invalid config error")
	}
}

func TestEntryPicksDeepestDipThenExits(t *testing.T) {
	e := newEngine(t, testConfig())
	warmUp(t, e, "AAA", "BBB")

	intent := tick(t, e, map[string]float64{"AAA": 95, "BBB": 97})
	if intent == nil {
		t.Fatalf("expected entry intent")
	}
	if intent.Symbol != "AAA" || intent.Side != SideBuy || intent.Kind != KindEntry || intent.Unit != UnitQuote {
		t.Fatalf("unexpected intent %+v", intent)
	}
	if intent.Amount != 100 || intent.Price != 95 {
		t.Fatalf("expected 100 quote at 95, got %f at %f", intent.Amount, intent.Price)
	}
	if e.LastReport().Candidates != 2 {
		t.Fatalf("expected both symbols to be candidates, got %d", e.LastReport().Candidates)
	}
	if len(e.Positions()) != 1 || e.Balance() != 900 {
		t.Fatalf("expected one position and 900 cash, got %d %f", len(e.Positions()), e.Balance())
	}

	intent = tick(t, e, map[string]float64{"AAA": 97, "BBB": 97})
	if intent == nil || intent.Kind != KindExit || intent.Symbol != "AAA" {
		t.Fatalf("expected AAA exit, got %+v", intent)
	}
	if intent.Side != SideSell || intent.Unit != UnitBase || !closeEnough(intent.Amount, 100.0/95) {
		t.Fatalf("expected base quantity sell, got %+v", intent)
	}
	if intent.Reasons[0] != string(position.ExitTakeProfit) {
		t.Fatalf("expected take profit reason, got %v", intent.Reasons)
	}
	if !closeEnough(e.Balance(), 900+100.0*97/95) {
		t.Fatalf("unexpected balance %f", e.Balance())
	}
	if e.Cooldowns()["AAA"] != 3 {
		t.Fatalf("expected cooldown 3, got %v", e.Cooldowns())
	}
	if !closeEnough(e.Realized(), 100.0*97/95-100) {
		t.Fatalf("unexpected realized %f", e.Realized())
	}
}

func closeEnough(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestFlatWindowNeverEnters(t *testing.T) {
	e := newEngine(t, testConfig())
	for i := 0; i < 20; i++ {
		if intent := tick(t, e, map[string]float64{"FLAT": 100}); intent != nil {
			t.Fatalf("tick %d: unexpected intent %+v", i+1, intent)
		}
	}
	if e.LastReport().Candidates != 0 {
		t.Fatalf("expected no candidates on a flat window")
	}
}

func TestMalformedQuotesSkippedPerSymbol(t *testing.T) {
	e := newEngine(t, testConfig())
	_, err := e.OnTick(map[string]market.Quote{
		"NAN": {Price: math.NaN()},
		"NEG": {Price: -1},
		"OK":  {Price: 10},
	})
	if err != nil {
		t.Fatalf("malformed quotes should not error: %v", err)
	}
	rep := e.LastReport()
	if rep.Rejected != 2 || rep.Quotes != 1 {
		t.Fatalf("expected 2 rejected and 1 accepted, got %+v", rep)
	}
}

func TestCooldownExclusivity(t *testing.T) {
	e := newEngine(t, testConfig())
	if err := e.Restore(State{
		Cash:      1000,
		Cooldowns: map[string]int{"AAA": 3},
		Series:    map[string][]float64{"AAA": calm()},
	}); err != nil {
		t.Fatalf("restore: %v", err)
	}
	path := []float64{95, 94, 93}
	want := []int{2, 1, 0}
	for i, price := range path {
		intent := tick(t, e, map[string]float64{"AAA": price})
		left := e.Cooldowns()["AAA"]
		if left != want[i] {
			t.Fatalf("tick %d: expected cooldown %d, got %d", i+1, want[i], left)
		}
		if left > 0 && intent != nil {
			t.Fatalf("tick %d: entry emitted during cooldown: %+v", i+1, intent)
		}
		if left == 0 {
			if _, ok := e.Cooldowns()["AAA"]; ok {
				t.Fatalf("expired cooldown should be removed")
			}
			if intent == nil || intent.Kind != KindEntry {
				t.Fatalf("expected entry once the cooldown ended, got %+v", intent)
			}
		}
	}
}

func TestDipThenRecoveryScenario(t *testing.T) {
	cfg := testConfig()
	cfg.Exit.TakeProfit = 0.01
	cfg.Exit.ProfitFloor = 0.01
	cfg.Exit.ProfitOnly = true
	e := newEngine(t, cfg)
	if err := e.Restore(State{Cash: 900, Positions: []position.Position{openPosition("BTC", 100, 1)}}); err != nil {
		t.Fatalf("restore: %v", err)
	}
	if intent := tick(t, e, map[string]float64{"BTC": 96}); intent != nil {
		t.Fatalf("no action expected at 96, got %+v", intent)
	}
	intent := tick(t, e, map[string]float64{"BTC": 101})
	if intent == nil || intent.Side != SideSell {
		t.Fatalf("expected sell at 101, got %+v", intent)
	}
	if roi := intent.Price/100 - 1; roi < 0.01 {
		t.Fatalf("sell emitted at roi %f", roi)
	}
	if len(e.Positions()) != 0 {
		t.Fatalf("position should be closed")
	}
}

func TestExitsRankedBySeverity(t *testing.T) {
	cfg := testConfig()
	cfg.Exit.StopLoss = 0.05
	e := newEngine(t, cfg)
	if err := e.Restore(State{Cash: 800, Positions: []position.Position{
		openPosition("AAA", 100, 1),
		openPosition("ZZZ", 100, 1),
	}}); err != nil {
		t.Fatalf("restore: %v", err)
	}
	intent := tick(t, e, map[string]float64{"AAA": 110, "ZZZ": 90})
	if intent == nil || intent.Symbol != "ZZZ" || intent.Reasons[0] != string(position.ExitHardStop) {
		t.Fatalf("expected ZZZ hard stop first, got %+v", intent)
	}
	if e.LastReport().Exits != 2 {
		t.Fatalf("expected two exit candidates, got %d", e.LastReport().Exits)
	}
	intent = tick(t, e, map[string]float64{"AAA": 110, "ZZZ": 90})
	if intent == nil || intent.Symbol != "AAA" {
		t.Fatalf("expected AAA exit next, got %+v", intent)
	}
}

func TestDecisionOrdering(t *testing.T) {
	ds := []decision{
		{kind: KindEntry, symbol: "B", score: 3},
		{kind: KindEntry, symbol: "A", score: 3},
		{kind: KindEntry, symbol: "C", score: 5},
		{kind: KindDCA, symbol: "D"},
		{kind: KindExit, symbol: "E", severity: position.ExitTime.Severity()},
		{kind: KindExit, symbol: "F", severity: position.ExitHardStop.Severity()},
		{kind: KindDCA, symbol: "C"},
	}
	sort.SliceStable(ds, func(i, j int) bool { return ds[i].before(ds[j]) })
	var got []string
	for _, d := range ds {
		got = append(got, string(d.kind)+":"+d.symbol)
	}
	want := []string{"exit:F", "exit:E", "dca:C", "dca:D", "entry:C", "entry:A", "entry:B"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestStaleHeldSymbolHoldsByDefault(t *testing.T) {
	e := newEngine(t, testConfig())
	if err := e.Restore(State{Cash: 900, Positions: []position.Position{openPosition("AAA", 100, 1)}}); err != nil {
		t.Fatalf("restore: %v", err)
	}
	for i := 0; i < 100; i++ {
		if intent := tick(t, e, nil); intent != nil {
			t.Fatalf("unexpected intent while stale: %+v", intent)
		}
	}
	p, ok := e.Position("AAA")
	if !ok || p.StaleTicks != 100 || p.Age != 0 {
		t.Fatalf("expected held position with 100 stale ticks, got %+v", p)
	}
	if len(e.LastReport().Stale) != 1 {
		t.Fatalf("expected stale symbol in report")
	}
}

func TestStaleHeldSymbolForceCloses(t *testing.T) {
	cfg := testConfig()
	cfg.Exit.MaxStaleTicks = 2
	e := newEngine(t, cfg)
	if err := e.Restore(State{
		Cash:      900,
		Positions: []position.Position{openPosition("AAA", 100, 1)},
		Series:    map[string][]float64{"AAA": {100, 99}},
	}); err != nil {
		t.Fatalf("restore: %v", err)
	}
	if intent := tick(t, e, nil); intent != nil {
		t.Fatalf("first stale tick should hold, got %+v", intent)
	}
	intent := tick(t, e, nil)
	if intent == nil || intent.Reasons[0] != string(position.ExitStale) {
		t.Fatalf("expected stale exit, got %+v", intent)
	}
	if intent.Price != 99 {
		t.Fatalf("expected last known price 99, got %f", intent.Price)
	}
}

func TestConfirmedFillPolicy(t *testing.T) {
	cfg := testConfig()
	cfg.FillPolicy = config.FillConfirmed
	e := newEngine(t, cfg)
	warmUp(t, e, "AAA")

	intent := tick(t, e, map[string]float64{"AAA": 95})
	if intent == nil || intent.Kind != KindEntry {
		t.Fatalf("expected entry intent, got %+v", intent)
	}
	if len(e.Positions()) != 0 || e.Balance() != 1000 {
		t.Fatalf("state must wait for the fill")
	}
	if got := e.Pending(); len(got) != 1 || got[0] != "AAA" {
		t.Fatalf("expected AAA pending, got %v", got)
	}
	if intent := tick(t, e, map[string]float64{"AAA": 94}); intent != nil {
		t.Fatalf("pending symbol must not get a second intent, got %+v", intent)
	}
	if err := e.OnFill(Fill{Symbol: "AAA", Side: SideSell, Amount: 1, Price: 95}); !errors.Is(err, ErrFillMismatch) {
		t.Fatalf("expected side mismatch, got %v", err)
	}
	if err := e.OnFill(Fill{Symbol: "AAA", Side: SideBuy, Amount: 100, Price: 95.5}); err != nil {
		t.Fatalf("fill: %v", err)
	}
	p, ok := e.Position("AAA")
	if !ok || p.AvgPrice != 95.5 || e.Balance() != 900 {
		t.Fatalf("expected position at fill price, got %+v cash %f", p, e.Balance())
	}
	if err := e.OnFill(Fill{Symbol: "AAA", Side: SideBuy, Amount: 100, Price: 95.5}); !errors.Is(err, ErrNoPending) {
		t.Fatalf("expected ErrNoPending on duplicate fill, got %v", err)
	}
}

func TestConfirmedPendingExpires(t *testing.T) {
	cfg := testConfig()
	cfg.FillPolicy = config.FillConfirmed
	cfg.PendingTicks = 2
	e := newEngine(t, cfg)
	warmUp(t, e, "AAA")
	if intent := tick(t, e, map[string]float64{"AAA": 95}); intent == nil {
		t.Fatalf("expected entry intent")
	}
	if e.Available() != 900 || e.Balance() != 1000 {
		t.Fatalf("expected 100 reserved, got available %f balance %f", e.Available(), e.Balance())
	}
	for i := 0; i < 2; i++ {
		tick(t, e, map[string]float64{"AAA": 100})
		if len(e.Pending()) != 1 {
			t.Fatalf("pending should survive %d ticks", i+1)
		}
	}
	tick(t, e, map[string]float64{"AAA": 100})
	if len(e.Pending()) != 0 {
		t.Fatalf("pending should expire")
	}
	if e.Available() != 1000 {
		t.Fatalf("expected reservation released on expiry, got %f", e.Available())
	}
	if got := e.LastReport().Expired; len(got) != 1 || got[0] != "AAA" {
		t.Fatalf("expected AAA expired, got %v", got)
	}
	if err := e.OnReject("AAA"); !errors.Is(err, ErrNoPending) {
		t.Fatalf("expected ErrNoPending, got %v", err)
	}
}

func TestConfirmedEntryReservesCash(t *testing.T) {
	cfg := testConfig()
	cfg.StartingBalance = 150
	cfg.FillPolicy = config.FillConfirmed
	cfg.PendingTicks = 5
	e := newEngine(t, cfg)
	warmUp(t, e, "AAA", "BBB")
	intent := tick(t, e, map[string]float64{"AAA": 95, "BBB": 97})
	if intent == nil || intent.Symbol != "AAA" || intent.Amount != 100 {
		t.Fatalf("expected AAA entry for 100, got %+v", intent)
	}
	if e.Available() != 50 {
		t.Fatalf("expected 50 available while AAA is unconfirmed, got %f", e.Available())
	}
	if intent := tick(t, e, map[string]float64{"AAA": 95, "BBB": 96}); intent != nil {
		t.Fatalf("BBB entry must not spend reserved cash, got %+v", intent)
	}
	if err := e.OnFill(Fill{Symbol: "AAA", Side: SideBuy, Amount: 100, Price: 95}); err != nil {
		t.Fatalf("fill: %v", err)
	}
	if e.Balance() != 50 || e.Available() != 50 {
		t.Fatalf("expected 50 cash after fill, got balance %f available %f", e.Balance(), e.Available())
	}

	e = newEngine(t, cfg)
	warmUp(t, e, "AAA", "BBB")
	if intent := tick(t, e, map[string]float64{"AAA": 95, "BBB": 97}); intent == nil {
		t.Fatalf("expected entry intent")
	}
	if err := e.OnReject("AAA"); err != nil {
		t.Fatalf("reject: %v", err)
	}
	if e.Available() != 150 {
		t.Fatalf("expected reservation released on reject, got %f", e.Available())
	}
	if intent := tick(t, e, map[string]float64{"AAA": 95, "BBB": 96}); intent == nil || intent.Kind != KindEntry {
		t.Fatalf("expected entry once cash is released, got %+v", intent)
	}
}

func TestIntentsCarryDistinctIDs(t *testing.T) {
	e := newEngine(t, testConfig())
	warmUp(t, e, "AAA", "BBB")
	entry := tick(t, e, map[string]float64{"AAA": 95, "BBB": 97})
	exit := tick(t, e, map[string]float64{"AAA": 97, "BBB": 97})
	if entry == nil || exit == nil {
		t.Fatalf("expected entry and exit intents, got %+v %+v", entry, exit)
	}
	if entry.ID == "" || exit.ID == "" || entry.ID == exit.ID {
		t.Fatalf("expected distinct non-empty ids, got %q and %q", entry.ID, exit.ID)
	}

	restarted := newEngine(t, testConfig())
	warmUp(t, restarted, "AAA", "BBB")
	again := tick(t, restarted, map[string]float64{"AAA": 95, "BBB": 97})
	if again == nil || again.Tick != entry.Tick || again.ID == entry.ID {
		t.Fatalf("expected a new id for a repeated tick, got %+v", again)
	}
}

func TestDefaultsSkipResidualRegimeChange(t *testing.T) {
	feedQuietDrop := func(e *Engine) *Intent {
		for i := 0; i < 19; i++ {
			if intent := tick(t, e, map[string]float64{"AAA": 100 + 0.3*math.Sin(float64(i))}); intent != nil {
				t.Fatalf("unexpected intent during warm up: %+v", intent)
			}
		}
		return tick(t, e, map[string]float64{"AAA": 96})
	}

	e := newEngine(t, config.Default())
	if intent := feedQuietDrop(e); intent != nil {
		t.Fatalf("expected regime change to block the entry, got %+v", intent)
	}
	if e.LastReport().Candidates != 0 {
		t.Fatalf("expected no candidates, got %d", e.LastReport().Candidates)
	}

	cfg := config.Default()
	cfg.Signal.MaxHetero = -1
	e = newEngine(t, cfg)
	if intent := feedQuietDrop(e); intent == nil || intent.Kind != KindEntry {
		t.Fatalf("expected entry with the regime guard disabled, got %+v", intent)
	}
}

func TestZeroCooldownSkipsCooling(t *testing.T) {
	cfg := testConfig()
	off := 0
	cfg.Portfolio.CooldownTicks = &off
	e := newEngine(t, cfg)
	warmUp(t, e, "AAA", "BBB")
	if intent := tick(t, e, map[string]float64{"AAA": 95, "BBB": 97}); intent == nil || intent.Kind != KindEntry {
		t.Fatalf("expected entry, got %+v", intent)
	}
	if intent := tick(t, e, map[string]float64{"AAA": 97, "BBB": 97}); intent == nil || intent.Kind != KindExit {
		t.Fatalf("expected exit, got %+v", intent)
	}
	if len(e.Cooldowns()) != 0 {
		t.Fatalf("expected no cooldown when disabled, got %v", e.Cooldowns())
	}
}

func TestOptimisticIgnoresFills(t *testing.T) {
	e := newEngine(t, testConfig())
	if err := e.OnFill(Fill{Symbol: "AAA", Side: SideBuy, Amount: 1, Price: 1}); err != nil {
		t.Fatalf("optimistic fills should be ignored, got %v", err)
	}
	if err := e.OnReject("AAA"); err != nil {
		t.Fatalf("optimistic rejects should be ignored, got %v", err)
	}
}

func TestSymbolFilters(t *testing.T) {
	cfg := testConfig()
	cfg.SymbolBlacklist = []string{"AAA"}
	e := newEngine(t, cfg)
	warmUp(t, e, "AAA")
	if intent := tick(t, e, map[string]float64{"AAA": 95}); intent != nil {
		t.Fatalf("blacklisted symbol entered: %+v", intent)
	}

	cfg = testConfig()
	cfg.Symbols = []string{"BBB"}
	e = newEngine(t, cfg)
	warmUp(t, e, "AAA", "BBB")
	intent := tick(t, e, map[string]float64{"AAA": 95, "BBB": 97})
	if intent == nil || intent.Symbol != "BBB" {
		t.Fatalf("expected only whitelisted BBB, got %+v", intent)
	}
}

func TestMaxPositions(t *testing.T) {
	cfg := testConfig()
	cfg.Portfolio.MaxPositions = 1
	e := newEngine(t, cfg)
	warmUp(t, e, "AAA", "BBB")
	if intent := tick(t, e, map[string]float64{"AAA": 95, "BBB": 97}); intent == nil || intent.Symbol != "AAA" {
		t.Fatalf("expected AAA entry, got %+v", intent)
	}
	if intent := tick(t, e, map[string]float64{"AAA": 95, "BBB": 96}); intent != nil {
		t.Fatalf("slot limit should block BBB, got %+v", intent)
	}
}

func TestSnapshotRestoreRoundTrip(t *testing.T) {
	e := newEngine(t, testConfig())
	warmUp(t, e, "AAA")
	tick(t, e, map[string]float64{"AAA": 95})
	snap := e.Snapshot()

	other := newEngine(t, testConfig())
	if err := other.Restore(snap); err != nil {
		t.Fatalf("restore: %v", err)
	}
	if !reflect.DeepEqual(other.Snapshot(), snap) {
		t.Fatalf("restored snapshot differs")
	}
	if other.Tick() != 20 || other.Balance() != 900 {
		t.Fatalf("unexpected restored tick %d cash %f", other.Tick(), other.Balance())
	}
}

func TestRestoreRejectsInvalidState(t *testing.T) {
	e := newEngine(t, testConfig())
	bad := openPosition("AAA", 100, 1)
	bad.Quantity = 0
	if err := e.Restore(State{Positions: []position.Position{bad}}); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState, got %v", err)
	}
	dup := openPosition("AAA", 100, 1)
	if err := e.Restore(State{Positions: []position.Position{dup, dup}}); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState for duplicates, got %v", err)
	}
}

func TestAtMostOneActionPerTick(t *testing.T) {
	cfg := testConfig()
	cfg.Ladder.MaxLevels = 3
	cfg.Ladder.Step = 0.02
	cfg.Portfolio.SlotBudget = 200
	cfg.Exit.StopLoss = 0.15
	cfg.Exit.MaxHoldTicks = 40
	// The crash schedule is one shock in a quiet walk; keep it tradable.
	cfg.Signal.MaxHetero = -1
	cfg.Signal.MaxVolRatio = -1
	e := newEngine(t, cfg)
	rng := rand.New(rand.NewSource(7))
	symbols := []string{"AAA", "BBB", "CCC", "DDD", "EEE"}
	prices := map[string]float64{}
	for _, s := range symbols {
		prices[s] = 100
	}
	intents := 0
	for i := 0; i < 600; i++ {
		for j, s := range symbols {
			step := (rng.Float64() - 0.5) * 0.006
			if (i+7*j)%37 == 0 {
				step = -0.05
			}
			prices[s] *= 1 + step
		}
		before := e.Snapshot()
		intent := tick(t, e, prices)
		after := e.Snapshot()
		changed := diffPositions(before.Positions, after.Positions)
		if intent == nil {
			if changed != 0 || before.Cash != after.Cash {
				t.Fatalf("tick %d: state changed without an intent", i)
			}
			continue
		}
		intents++
		if changed != 1 {
			t.Fatalf("tick %d: expected exactly one position change, got %d", i, changed)
		}
		for _, p := range after.Positions {
			if prev, ok := findPosition(before.Positions, p.Symbol); ok && p.Level < prev.Level {
				t.Fatalf("tick %d: ladder level decreased for %s", i, p.Symbol)
			}
		}
		if after.Cash < -1e-9 {
			t.Fatalf("tick %d: cash went negative: %f", i, after.Cash)
		}
	}
	if intents == 0 {
		t.Fatalf("expected the crash schedule to produce intents")
	}
}

func findPosition(ps []position.Position, symbol string) (position.Position, bool) {
	for _, p := range ps {
		if p.Symbol == symbol {
			return p, true
		}
	}
	return position.Position{}, false
}

// diffPositions counts symbols whose ladder was opened, closed or filled.
func diffPositions(before, after []position.Position) int {
	changed := 0
	for _, p := range after {
		prev, ok := findPosition(before, p.Symbol)
		if !ok || prev.Level != p.Level || prev.Cost != p.Cost {
			changed++
		}
	}
	for _, p := range before {
		if _, ok := findPosition(after, p.Symbol); !ok {
			changed++
		}
	}
	return changed
}

func TestPausedBuysStillExit(t *testing.T) {
	e := newEngine(t, testConfig())
	warmUp(t, e, "AAA", "BBB")
	e.PauseBuys(true)
	if intent := tick(t, e, map[string]float64{"AAA": 95, "BBB": 97}); intent != nil {
		t.Fatalf("expected no entry while buys are paused, got %+v", intent)
	}
	e.PauseBuys(false)

	e = newEngine(t, testConfig())
	warmUp(t, e, "AAA", "BBB")
	if intent := tick(t, e, map[string]float64{"AAA": 95, "BBB": 97}); intent == nil || intent.Kind != KindEntry {
		t.Fatalf("expected entry, got %+v", intent)
	}
	e.PauseBuys(true)
	intent := tick(t, e, map[string]float64{"AAA": 97, "BBB": 97})
	if intent == nil || intent.Kind != KindExit {
		t.Fatalf("expected exit while buys are paused, got %+v", intent)
	}
}

package app

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"dip-ladder-bot/internal/config"
	"dip-ladder-bot/internal/engine"
	"dip-ladder-bot/internal/exec"
	"dip-ladder-bot/internal/market"
	"dip-ladder-bot/internal/metrics"
	"dip-ladder-bot/internal/state"

	"go.uber.org/zap"
)

type countingCounter struct {
	mu sync.Mutex
	n  int
}

func (c *countingCounter) Inc() {
	c.mu.Lock()
	c.n++
	c.mu.Unlock()
}

func (c *countingCounter) Value() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.n
}

type failingVenue struct {
	err   error
	calls int
}

func (f *failingVenue) Submit(ctx context.Context, order exec.Order) (exec.Execution, error) {
	f.calls++
	return exec.Execution{}, f.err
}

func testConfig() *config.Config {
	strat := config.Default()
	strat.Signal.RSICeiling = 45
	strat.Portfolio.SlotBudget = 100
	strat.Portfolio.RiskFraction = 0
	cooldown := 3
	strat.Portfolio.CooldownTicks = &cooldown
	strat.Ladder.MaxLevels = 0
	disabled := false
	return &config.Config{
		Feed:     config.FeedConfig{RESTURL: "http://unused"},
		State:    config.StateConfig{Backend: config.BackendMemory, SaveInterval: time.Hour},
		Strategy: strat,
		Risk:     config.RiskConfig{MaxFeedAge: time.Minute},
		Execution: config.ExecutionConfig{
			Mode:           config.ModePaper,
			AmountDecimals: 8,
			RetryAttempts:  1,
			RetryBackoff:   time.Millisecond,
		},
		Metrics: config.MetricsConfig{Enabled: &disabled},
	}
}

func newTestApp(t *testing.T, cfg *config.Config, store state.Store, venue exec.Venue) *App {
	t.Helper()
	md := market.New(nil, nil, market.NewBoard(), zap.NewNop())
	if venue == nil {
		venue = exec.NewPaper(cfg.Execution)
	}
	a, err := newApp(context.Background(), cfg, zap.NewNop(), store, md, venue)
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	return a
}

func feed(t *testing.T, a *App, prices map[string]float64) error {
	t.Helper()
	quotes := make(map[string]market.Quote, len(prices))
	for symbol, p := range prices {
		quotes[symbol] = market.Quote{Price: p}
	}
	a.market.Board().Update(quotes)
	return a.tick(context.Background())
}

// warmUp feeds 19 calm ticks around 100 for AAA and BBB.
func warmUp(t *testing.T, a *App) {
	t.Helper()
	for i := 0; i < 19; i++ {
		p := 100 + math.Sin(float64(i))
		if err := feed(t, a, map[string]float64{"AAA": p, "BBB": p}); err != nil {
			t.Fatalf("warm up tick: %v", err)
		}
	}
	if len(a.engine.Positions()) != 0 {
		t.Fatalf("unexpected position during warm up")
	}
}

func TestTickExecutesEntryAndPersists(t *testing.T) {
	cfg := testConfig()
	store := state.NewMemory()
	a := newTestApp(t, cfg, store, nil)
	warmUp(t, a)

	if err := feed(t, a, map[string]float64{"AAA": 95, "BBB": 97}); err != nil {
		t.Fatalf("tick: %v", err)
	}
	if _, ok := a.engine.Position("AAA"); !ok {
		t.Fatalf("expected AAA position after dip")
	}
	intent := a.engine.LastReport().Intent
	if intent == nil || intent.ID == "" {
		t.Fatalf("expected an identified entry intent, got %+v", intent)
	}
	if _, ok, _ := store.Get(context.Background(), "cloid:"+exec.IntentKey(*intent)); !ok {
		t.Fatalf("expected client order id to be reserved for the entry")
	}

	a.saveState(context.Background())
	b := newTestApp(t, cfg, store, nil)
	if b.engine.Tick() != 20 {
		t.Fatalf("expected restored tick 20, got %d", b.engine.Tick())
	}
	if _, ok := b.engine.Position("AAA"); !ok {
		t.Fatalf("expected AAA position to survive restart")
	}
	if b.engine.Balance() != a.engine.Balance() {
		t.Fatalf("expected balance %v, got %v", a.engine.Balance(), b.engine.Balance())
	}
}

func TestStaleFeedEngagesKillSwitch(t *testing.T) {
	a := newTestApp(t, testConfig(), state.NewMemory(), nil)
	engaged := &countingCounter{}
	restored := &countingCounter{}
	a.metrics = metrics.NewNoop()
	a.metrics.KillSwitchEngaged = engaged
	a.metrics.KillSwitchRestored = restored

	if err := a.tick(context.Background()); err != nil {
		t.Fatalf("tick: %v", err)
	}
	if !a.feedKilled || a.engine.Tick() != 0 {
		t.Fatalf("expected kill switch before first price update")
	}

	a.market.Board().Update(map[string]market.Quote{"AAA": {Price: 100}})
	a.now = func() time.Time { return time.Now().Add(time.Hour) }
	if err := a.tick(context.Background()); err != nil {
		t.Fatalf("tick: %v", err)
	}
	if engaged.Value() != 1 {
		t.Fatalf("expected single engagement, got %d", engaged.Value())
	}

	a.now = time.Now
	if err := a.tick(context.Background()); err != nil {
		t.Fatalf("tick: %v", err)
	}
	if a.feedKilled || restored.Value() != 1 {
		t.Fatalf("expected kill switch restored")
	}
	if a.engine.Tick() != 1 {
		t.Fatalf("expected engine to tick once feed is fresh, got %d", a.engine.Tick())
	}
}

func TestExposureLimitPausesBuys(t *testing.T) {
	cfg := testConfig()
	cfg.Risk.MaxExposure = 50
	a := newTestApp(t, cfg, state.NewMemory(), nil)
	warmUp(t, a)
	if err := feed(t, a, map[string]float64{"AAA": 95, "BBB": 97}); err != nil {
		t.Fatalf("tick: %v", err)
	}
	if a.engine.BuysPaused() {
		t.Fatalf("buys should not pause before exposure is committed")
	}
	if err := feed(t, a, map[string]float64{"AAA": 94, "BBB": 96}); err != nil {
		t.Fatalf("tick: %v", err)
	}
	if !a.engine.BuysPaused() {
		t.Fatalf("expected buys paused at exposure %v", a.engine.Exposure())
	}
	if _, ok := a.engine.Position("BBB"); ok {
		t.Fatalf("expected no new entry while paused")
	}
}

func TestConsecutiveErrorsStopLoop(t *testing.T) {
	cfg := testConfig()
	cfg.Risk.MaxConsecutiveErr = 1
	venue := &failingVenue{err: errors.New("venue down")}
	a := newTestApp(t, cfg, state.NewMemory(), venue)
	warmUp(t, a)
	err := feed(t, a, map[string]float64{"AAA": 95, "BBB": 97})
	if !errors.Is(err, ErrTooManyErrors) {
		t.Fatalf("expected too many errors, got %v", err)
	}
	if venue.calls != 1 {
		t.Fatalf("expected one submit, got %d", venue.calls)
	}
}

func TestRejectedOrderClearsPending(t *testing.T) {
	cfg := testConfig()
	cfg.Strategy.FillPolicy = config.FillConfirmed
	cfg.Strategy.PendingTicks = 5
	a := newTestApp(t, cfg, state.NewMemory(), &failingVenue{err: exec.ErrRejected})
	warmUp(t, a)
	if err := feed(t, a, map[string]float64{"AAA": 95, "BBB": 97}); err != nil {
		t.Fatalf("tick: %v", err)
	}
	if len(a.engine.Pending()) != 0 {
		t.Fatalf("expected pending cleared after rejection, got %v", a.engine.Pending())
	}
	if len(a.engine.Positions()) != 0 {
		t.Fatalf("expected no position after rejection")
	}
}

func TestConfirmedFillAppliesPosition(t *testing.T) {
	cfg := testConfig()
	cfg.Strategy.FillPolicy = config.FillConfirmed
	cfg.Strategy.PendingTicks = 5
	a := newTestApp(t, cfg, state.NewMemory(), nil)
	warmUp(t, a)
	if err := feed(t, a, map[string]float64{"AAA": 95, "BBB": 97}); err != nil {
		t.Fatalf("tick: %v", err)
	}
	p, ok := a.engine.Position("AAA")
	if !ok {
		t.Fatalf("expected position once paper fill is confirmed")
	}
	if math.Abs(p.AvgPrice-95) > 1e-6 {
		t.Fatalf("expected average price 95, got %v", p.AvgPrice)
	}
	if len(a.engine.Pending()) != 0 {
		t.Fatalf("expected no pending after fill")
	}
}

type recordingGauge struct {
	value float64
	sets  int
}

func (g *recordingGauge) Set(v float64) {
	g.value = v
	g.sets++
}

func TestRecordGaugesReportsJournalDrops(t *testing.T) {
	a := newTestApp(t, testConfig(), state.NewMemory(), nil)
	dropped := &recordingGauge{value: -1}
	a.metrics = metrics.NewNoop()
	a.metrics.JournalDropped = dropped
	a.recordGauges()
	if dropped.sets != 1 || dropped.value != 0 {
		t.Fatalf("expected journal drops gauge set to 0 without a journal, got %v after %d sets", dropped.value, dropped.sets)
	}
}

func TestCheckConnectivity(t *testing.T) {
	cfg := config.RiskConfig{MaxFeedAge: 10 * time.Second}
	now := time.Unix(1_700_000_000, 0)
	if err := CheckConnectivity(cfg, now.Add(-5*time.Second), now); err != nil {
		t.Fatalf("expected fresh feed, got %v", err)
	}
	if err := CheckConnectivity(cfg, now.Add(-11*time.Second), now); !errors.Is(err, ErrFeedStale) {
		t.Fatalf("expected stale feed, got %v", err)
	}
	if err := CheckConnectivity(cfg, time.Time{}, now); !errors.Is(err, ErrFeedStale) {
		t.Fatalf("expected stale feed before first update, got %v", err)
	}
	if err := CheckConnectivity(config.RiskConfig{}, time.Time{}, now); err != nil {
		t.Fatalf("expected disabled check to pass, got %v", err)
	}
}

func TestCheckExposure(t *testing.T) {
	cfg := config.RiskConfig{MaxExposure: 100}
	if err := CheckExposure(cfg, 99); err != nil {
		t.Fatalf("expected exposure below limit, got %v", err)
	}
	if err := CheckExposure(cfg, 100); !errors.Is(err, ErrExposure) {
		t.Fatalf("expected exposure error, got %v", err)
	}
	if err := CheckExposure(config.RiskConfig{}, 1e9); err != nil {
		t.Fatalf("expected disabled limit to pass, got %v", err)
	}
}

func TestIntentKindsCounted(t *testing.T) {
	a := newTestApp(t, testConfig(), state.NewMemory(), nil)
	entries := &countingCounter{}
	a.metrics = metrics.NewNoop()
	a.metrics.Entries = entries
	a.countIntent(engine.KindEntry)
	a.countIntent(engine.KindExit)
	if entries.Value() != 1 {
		t.Fatalf("expected one entry counted, got %d", entries.Value())
	}
}

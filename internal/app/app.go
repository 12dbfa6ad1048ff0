package app

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"time"

	"dip-ladder-bot/internal/alerts"
	"dip-ladder-bot/internal/config"
	"dip-ladder-bot/internal/engine"
	"dip-ladder-bot/internal/exec"
	"dip-ladder-bot/internal/feed/rest"
	"dip-ladder-bot/internal/feed/ws"
	"dip-ladder-bot/internal/market"
	"dip-ladder-bot/internal/metrics"
	"dip-ladder-bot/internal/state"
	"dip-ladder-bot/internal/timescale"

	"github.com/vmihailenco/msgpack/v5"
	"go.uber.org/zap"
)

type App struct {
	cfg         *config.Config
	log         *zap.Logger
	store       state.Store
	market      *market.MarketData
	engine      *engine.Engine
	executor    *exec.Executor
	metrics     *metrics.Metrics
	prom        *metrics.Prometheus
	alerts      *alerts.Telegram
	timescale   *timescale.Writer
	fingerprint string
	now         func() time.Time

	feedKilled     bool
	exposureKilled bool
	consecutiveErr int
	lastSave       time.Time
}

func New(cfg *config.Config, log *zap.Logger) (*App, error) {
	store, err := state.Open(cfg.State)
	if err != nil {
		return nil, err
	}
	var wsClient *ws.Client
	if cfg.Feed.WSURL != "" {
		wsClient = ws.New(cfg.Feed.WSURL, ws.Options{
			ReconnectDelay: cfg.Feed.ReconnectDelay,
			PingInterval:   cfg.Feed.PingInterval,
		}, log)
	}
	var restClient *rest.Client
	if cfg.Feed.RESTURL != "" {
		restClient = rest.New(cfg.Feed.RESTURL, cfg.Feed.Timeout, log)
	}
	marketData := market.New(wsClient, restClient, market.NewBoard(), log)
	marketData.Configure(cfg.Feed.Subscribe, cfg.Feed.PollInterval)

	a, err := newApp(context.Background(), cfg, log, store, marketData, exec.NewPaper(cfg.Execution))
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	writer, err := timescale.New(cfg.Timescale, log)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("timescale: %w", err)
	}
	a.timescale = writer
	return a, nil
}

func newApp(ctx context.Context, cfg *config.Config, log *zap.Logger, store state.Store, marketData *market.MarketData, venue exec.Venue) (*App, error) {
	strat := cfg.Strategy
	if strat.Jitter > 0 {
		config.ApplyJitter(&strat, strat.JitterSeed, strat.Jitter)
	}
	eng, err := engine.New(strat, log)
	if err != nil {
		return nil, err
	}
	fingerprint, err := strategyFingerprint(strat)
	if err != nil {
		return nil, err
	}
	snap, ok, err := state.LoadEngineSnapshot(ctx, store)
	if err != nil {
		return nil, err
	}
	if ok {
		if snap.Fingerprint != fingerprint {
			log.Warn("strategy parameters changed since last save", zap.String("saved", snap.Fingerprint), zap.String("current", fingerprint))
		}
		if err := eng.Restore(snap.Engine); err != nil {
			return nil, fmt.Errorf("restore engine: %w", err)
		}
		log.Info("restored engine state",
			zap.Int64("tick", snap.Engine.Tick),
			zap.Int("positions", len(snap.Engine.Positions)),
			zap.Float64("cash", snap.Engine.Cash),
		)
	}

	m := metrics.NewNoop()
	var prom *metrics.Prometheus
	if cfg.Metrics.EnabledValue() {
		prom = metrics.NewPrometheus()
		m = prom.Metrics
	}
	marketData.OnRejected(func(n int) {
		for i := 0; i < n; i++ {
			m.PayloadsRejected.Inc()
		}
	})
	return &App{
		cfg:         cfg,
		log:         log,
		store:       store,
		market:      marketData,
		engine:      eng,
		executor:    exec.New(venue, store, cfg.Execution, log),
		metrics:     m,
		prom:        prom,
		alerts:      alerts.NewTelegram(cfg.Telegram, log),
		fingerprint: fingerprint,
		now:         time.Now,
	}, nil
}

// strategyFingerprint identifies the effective parameter set a saved state
// was produced under.
func strategyFingerprint(s config.StrategyConfig) (string, error) {
	raw, err := msgpack.Marshal(s)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:8]), nil
}

func (a *App) Run(ctx context.Context) error {
	defer a.close()
	a.timescale.Start(ctx)
	a.startMetricsServer(ctx)
	if err := a.market.Start(ctx); err != nil {
		return err
	}
	a.lastSave = a.now()

	ticker := time.NewTicker(a.cfg.Strategy.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			a.saveState(context.Background())
			return ctx.Err()
		case <-ticker.C:
			if err := a.tick(ctx); err != nil {
				a.saveState(context.Background())
				a.alerts.Notify(context.Background(), fmt.Sprintf("Bot stopped: %v", err))
				return err
			}
		}
	}
}

func (a *App) close() {
	if err := a.timescale.Close(); err != nil {
		a.log.Warn("timescale close failed", zap.Error(err))
	}
	if err := a.store.Close(); err != nil {
		a.log.Warn("state store close failed", zap.Error(err))
	}
}

func (a *App) startMetricsServer(ctx context.Context) {
	if a.prom == nil {
		return
	}
	mux := http.NewServeMux()
	mux.Handle(a.cfg.Metrics.Path, a.prom.Handler())
	srv := &http.Server{
		Addr:              a.cfg.Metrics.Address,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.Warn("metrics server failed", zap.Error(err))
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	a.log.Info("metrics server listening", zap.String("address", a.cfg.Metrics.Address), zap.String("path", a.cfg.Metrics.Path))
}

// tick runs one strategy step. Only the consecutive error limit is returned
// as an error; everything else is logged and the loop continues.
func (a *App) tick(ctx context.Context) error {
	now := a.now()
	board := a.market.Board()
	lastUpdate := board.UpdatedAt()
	if !lastUpdate.IsZero() {
		a.metrics.FeedAge.Set(now.Sub(lastUpdate).Seconds())
	}
	if err := CheckConnectivity(a.cfg.Risk, lastUpdate, now); err != nil {
		a.engageFeedKill(ctx, err)
		return nil
	}
	a.restoreFeedKill(ctx)
	a.checkExposure(ctx)

	intent, err := a.engine.OnTick(board.Fresh(a.cfg.Risk.MaxFeedAge))
	a.metrics.Ticks.Inc()
	rep := a.engine.LastReport()
	for i := 0; i < rep.Rejected; i++ {
		a.metrics.QuotesRejected.Inc()
	}
	if err != nil {
		a.log.Warn("engine tick failed", zap.Int64("tick", a.engine.Tick()), zap.Error(err))
	}
	if intent != nil {
		if err := a.execute(ctx, *intent); err != nil {
			return err
		}
	}
	a.recordGauges()
	a.recordPositions(now, board.Fresh(0))
	if a.cfg.State.SaveInterval > 0 && now.Sub(a.lastSave) >= a.cfg.State.SaveInterval {
		a.saveState(ctx)
	}
	return nil
}

func (a *App) execute(ctx context.Context, intent engine.Intent) error {
	log := a.log.With(
		zap.String("intent_id", intent.ID),
		zap.String("symbol", intent.Symbol),
		zap.String("kind", string(intent.Kind)),
		zap.String("side", string(intent.Side)),
		zap.Int64("tick", intent.Tick),
	)
	a.countIntent(intent.Kind)
	a.timescale.EnqueueIntent(timescale.NewIntentRecord(a.now().UTC(), intent))

	x, err := a.executor.Execute(ctx, intent)
	if err != nil {
		a.metrics.OrdersFailed.Inc()
		a.consecutiveErr++
		log.Warn("order execution failed", zap.Int("consecutive", a.consecutiveErr), zap.Error(err))
		if errors.Is(err, exec.ErrRejected) {
			if rejErr := a.engine.OnReject(intent.Symbol); rejErr != nil {
				log.Debug("reject not applied", zap.Error(rejErr))
			}
		}
		if limit := a.cfg.Risk.MaxConsecutiveErr; limit > 0 && a.consecutiveErr >= limit {
			return fmt.Errorf("%d failures: %w", a.consecutiveErr, ErrTooManyErrors)
		}
		return nil
	}
	a.consecutiveErr = 0
	a.metrics.OrdersPlaced.Inc()
	if err := a.engine.OnFill(x.Fill()); err != nil {
		log.Warn("fill not applied", zap.Error(err))
	}
	log.Info("order executed",
		zap.String("order_id", x.OrderID),
		zap.String("client_order_id", x.ClientOrderID),
		zap.Float64("amount", x.Amount),
		zap.Float64("price", x.Price),
		zap.Float64("fee", x.Fee),
		zap.Strings("reasons", intent.Reasons),
	)
	a.alerts.Notify(ctx, alerts.FormatIntent(intent))
	return nil
}

func (a *App) countIntent(kind engine.Kind) {
	switch kind {
	case engine.KindEntry:
		a.metrics.Entries.Inc()
	case engine.KindDCA:
		a.metrics.DCAs.Inc()
	case engine.KindExit:
		a.metrics.Exits.Inc()
	}
}

func (a *App) engageFeedKill(ctx context.Context, err error) {
	if a.feedKilled {
		return
	}
	a.feedKilled = true
	a.metrics.KillSwitchEngaged.Inc()
	a.log.Warn("kill switch engaged", zap.Error(err))
	a.alerts.Notify(ctx, fmt.Sprintf("Kill switch engaged: %v", err))
}

func (a *App) restoreFeedKill(ctx context.Context) {
	if !a.feedKilled {
		return
	}
	a.feedKilled = false
	a.metrics.KillSwitchRestored.Inc()
	a.log.Info("kill switch restored")
	a.alerts.Notify(ctx, "Kill switch restored: price feed fresh")
}

// checkExposure pauses buys while committed cost is at or above the limit.
func (a *App) checkExposure(ctx context.Context) {
	err := CheckExposure(a.cfg.Risk, a.engine.Exposure())
	switch {
	case err != nil && !a.exposureKilled:
		a.exposureKilled = true
		a.engine.PauseBuys(true)
		a.metrics.KillSwitchEngaged.Inc()
		a.log.Warn("buys paused", zap.Error(err))
		a.alerts.Notify(ctx, fmt.Sprintf("Buys paused: %v", err))
	case err == nil && a.exposureKilled:
		a.exposureKilled = false
		a.engine.PauseBuys(false)
		a.metrics.KillSwitchRestored.Inc()
		a.log.Info("buys resumed")
		a.alerts.Notify(ctx, "Buys resumed: exposure below limit")
	}
}

func (a *App) recordGauges() {
	a.metrics.Balance.Set(a.engine.Balance())
	a.metrics.Exposure.Set(a.engine.Exposure())
	a.metrics.Realized.Set(a.engine.Realized())
	a.metrics.OpenPositions.Set(float64(len(a.engine.Positions())))
	a.metrics.JournalDropped.Set(float64(a.timescale.Dropped()))
}

func (a *App) recordPositions(now time.Time, quotes map[string]market.Quote) {
	if a.timescale == nil {
		return
	}
	tick := a.engine.Tick()
	for _, p := range a.engine.Positions() {
		price := p.LastFillPrice
		if q, ok := quotes[p.Symbol]; ok {
			price = q.Price
		}
		a.timescale.EnqueuePosition(timescale.NewPositionSnapshot(now.UTC(), tick, p, price))
	}
}

func (a *App) saveState(ctx context.Context) {
	now := a.now()
	if err := state.SaveEngineSnapshot(ctx, a.store, a.engine.Snapshot(), a.fingerprint, now); err != nil {
		a.log.Warn("engine state save failed", zap.Error(err))
		return
	}
	a.lastSave = now
}

// Package timescale journals order intents and position snapshots to
// PostgreSQL/TimescaleDB. Writes are queued and never block the tick loop.
package timescale

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"dip-ladder-bot/internal/config"
	"dip-ladder-bot/internal/engine"
	"dip-ladder-bot/internal/position"

	_ "github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"
)

const writeTimeout = 3 * time.Second

type IntentRecord struct {
	Time    time.Time
	ID      string
	Tick    int64
	Symbol  string
	Kind    string
	Side    string
	Unit    string
	Amount  float64
	Price   float64
	Reasons string
}

func NewIntentRecord(now time.Time, intent engine.Intent) IntentRecord {
	return IntentRecord{
		Time:    now,
		ID:      intent.ID,
		Tick:    intent.Tick,
		Symbol:  intent.Symbol,
		Kind:    string(intent.Kind),
		Side:    string(intent.Side),
		Unit:    string(intent.Unit),
		Amount:  intent.Amount,
		Price:   intent.Price,
		Reasons: strings.Join(intent.Reasons, "; "),
	}
}

type PositionSnapshot struct {
	Time       time.Time
	Tick       int64
	Symbol     string
	Level      int
	AvgPrice   float64
	Quantity   float64
	Cost       float64
	Price      float64
	ROI        float64
	PeakROI    float64
	Age        int
	StaleTicks int
}

// NewPositionSnapshot marks p at price; callers pass the last seen quote.
func NewPositionSnapshot(now time.Time, tick int64, p position.Position, price float64) PositionSnapshot {
	return PositionSnapshot{
		Time:       now,
		Tick:       tick,
		Symbol:     p.Symbol,
		Level:      p.Level,
		AvgPrice:   p.AvgPrice,
		Quantity:   p.Quantity,
		Cost:       p.Cost,
		Price:      price,
		ROI:        p.ROI(price),
		PeakROI:    p.PeakROI,
		Age:        p.Age,
		StaleTicks: p.StaleTicks,
	}
}

type Writer struct {
	db        *sql.DB
	log       *zap.Logger
	schema    string
	intents   chan IntentRecord
	positions chan PositionSnapshot
	started   atomic.Bool
	dropInt   atomic.Uint64
	dropPos   atomic.Uint64
}

func New(cfg config.TimescaleConfig, log *zap.Logger) (*Writer, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		return nil, errors.New("timescale dsn is required")
	}
	schema := strings.TrimSpace(cfg.Schema)
	if schema == "" {
		schema = "public"
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	w := newWriter(db, schema, cfg.QueueSize, log)
	if err := w.ensureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return w, nil
}

func newWriter(db *sql.DB, schema string, queueSize int, log *zap.Logger) *Writer {
	if queueSize <= 0 {
		queueSize = 256
	}
	return &Writer{
		db:        db,
		log:       log,
		schema:    schema,
		intents:   make(chan IntentRecord, queueSize),
		positions: make(chan PositionSnapshot, queueSize),
	}
}

func (w *Writer) Start(ctx context.Context) {
	if w == nil {
		return
	}
	if !w.started.CompareAndSwap(false, true) {
		return
	}
	go w.run(ctx)
}

func (w *Writer) Close() error {
	if w == nil || w.db == nil {
		return nil
	}
	return w.db.Close()
}

func (w *Writer) EnqueueIntent(rec IntentRecord) {
	if w == nil {
		return
	}
	select {
	case w.intents <- rec:
	default:
		if w.dropInt.Add(1) == 1 && w.log != nil {
			w.log.Warn("timescale intent queue full")
		}
	}
}

func (w *Writer) EnqueuePosition(snap PositionSnapshot) {
	if w == nil {
		return
	}
	select {
	case w.positions <- snap:
	default:
		if w.dropPos.Add(1) == 1 && w.log != nil {
			w.log.Warn("timescale position queue full")
		}
	}
}

// Dropped reports how many records were discarded on full queues.
func (w *Writer) Dropped() uint64 {
	if w == nil {
		return 0
	}
	return w.dropInt.Load() + w.dropPos.Load()
}

func (w *Writer) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case rec := <-w.intents:
			w.writeIntent(ctx, rec)
		case snap := <-w.positions:
			w.writePosition(ctx, snap)
		}
	}
}

func (w *Writer) ensureSchema(ctx context.Context) error {
	if w.db == nil {
		return errors.New("timescale db not initialized")
	}
	if w.schema != "public" {
		if err := w.exec(ctx, fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", w.schema)); err != nil {
			return err
		}
	}
	if err := w.exec(ctx, fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		ts TIMESTAMPTZ NOT NULL,
		intent_id TEXT NOT NULL DEFAULT '',
		tick BIGINT NOT NULL,
		symbol TEXT NOT NULL,
		kind TEXT NOT NULL,
		side TEXT NOT NULL,
		unit TEXT NOT NULL,
		amount DOUBLE PRECISION NOT NULL,
		price DOUBLE PRECISION NOT NULL,
		reasons TEXT NOT NULL DEFAULT ''
	)`, w.table("intents"))); err != nil {
		return err
	}
	if err := w.exec(ctx, fmt.Sprintf("ALTER TABLE %s ADD COLUMN IF NOT EXISTS intent_id TEXT NOT NULL DEFAULT ''", w.table("intents"))); err != nil {
		return err
	}
	if err := w.exec(ctx, fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		ts TIMESTAMPTZ NOT NULL,
		tick BIGINT NOT NULL,
		symbol TEXT NOT NULL,
		level INTEGER NOT NULL,
		avg_price DOUBLE PRECISION NOT NULL,
		quantity DOUBLE PRECISION NOT NULL,
		cost DOUBLE PRECISION NOT NULL,
		price DOUBLE PRECISION NOT NULL,
		roi DOUBLE PRECISION NOT NULL,
		peak_roi DOUBLE PRECISION NOT NULL,
		age INTEGER NOT NULL,
		stale_ticks INTEGER NOT NULL
	)`, w.table("position_snapshots"))); err != nil {
		return err
	}
	if err := w.exec(ctx, "CREATE EXTENSION IF NOT EXISTS timescaledb"); err != nil {
		if w.log != nil {
			w.log.Warn("timescale extension ensure failed", zap.Error(err))
		}
		return nil
	}
	for _, name := range []string{"intents", "position_snapshots"} {
		if err := w.exec(ctx, fmt.Sprintf("SELECT create_hypertable('%s', 'ts', if_not_exists => TRUE)", w.table(name))); err != nil && w.log != nil {
			w.log.Warn("timescale hypertable create failed", zap.String("table", name), zap.Error(err))
		}
	}
	return nil
}

func (w *Writer) writeIntent(ctx context.Context, rec IntentRecord) {
	if w.db == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	query := fmt.Sprintf(`INSERT INTO %s (
		ts, intent_id, tick, symbol, kind, side, unit, amount, price, reasons
	) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`, w.table("intents"))
	if _, err := w.db.ExecContext(ctx, query,
		rec.Time,
		rec.ID,
		rec.Tick,
		rec.Symbol,
		rec.Kind,
		rec.Side,
		rec.Unit,
		rec.Amount,
		rec.Price,
		rec.Reasons,
	); err != nil && w.log != nil {
		w.log.Warn("timescale intent insert failed", zap.Error(err))
	}
}

func (w *Writer) writePosition(ctx context.Context, snap PositionSnapshot) {
	if w.db == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	query := fmt.Sprintf(`INSERT INTO %s (
		ts, tick, symbol, level, avg_price, quantity, cost, price, roi, peak_roi, age, stale_ticks
	) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`, w.table("position_snapshots"))
	if _, err := w.db.ExecContext(ctx, query,
		snap.Time,
		snap.Tick,
		snap.Symbol,
		snap.Level,
		snap.AvgPrice,
		snap.Quantity,
		snap.Cost,
		snap.Price,
		snap.ROI,
		snap.PeakROI,
		snap.Age,
		snap.StaleTicks,
	); err != nil && w.log != nil {
		w.log.Warn("timescale position insert failed", zap.Error(err))
	}
}

func (w *Writer) exec(ctx context.Context, query string) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	_, err := w.db.ExecContext(ctx, query)
	return err
}

func (w *Writer) table(name string) string {
	return w.schema + "." + name
}

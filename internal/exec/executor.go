// Package exec turns engine intents into venue orders with retries and
// idempotent client order ids.
package exec

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"dip-ladder-bot/internal/config"
	"dip-ladder-bot/internal/engine"
	"dip-ladder-bot/internal/state"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/vmihailenco/msgpack/v5"
	"go.uber.org/zap"
)

var (
	// ErrRejected marks a venue refusal that retrying cannot fix.
	ErrRejected   = errors.New("order rejected")
	ErrNoIntentID = errors.New("intent has no id")
)

type Order struct {
	Symbol        string
	Side          engine.Side
	Unit          engine.Unit
	Amount        decimal.Decimal
	RefPrice      decimal.Decimal
	ClientOrderID string
}

// Execution is the venue's report of a filled order. Amount is in the order's
// unit; Price is the effective price including fees and slippage.
type Execution struct {
	OrderID       string  `msgpack:"order_id"`
	ClientOrderID string  `msgpack:"client_order_id"`
	Symbol        string  `msgpack:"symbol"`
	Side          string  `msgpack:"side"`
	Amount        float64 `msgpack:"amount"`
	Price         float64 `msgpack:"price"`
	Fee           float64 `msgpack:"fee"`
}

func (x Execution) Fill() engine.Fill {
	return engine.Fill{Symbol: x.Symbol, Side: engine.Side(x.Side), Amount: x.Amount, Price: x.Price}
}

type Venue interface {
	Submit(ctx context.Context, order Order) (Execution, error)
}

type Executor struct {
	venue    Venue
	store    state.Store
	log      *zap.Logger
	attempts int
	backoff  time.Duration
	decimals int32

	mu    sync.Mutex
	cache map[string]Execution
}

func New(venue Venue, store state.Store, cfg config.ExecutionConfig, log *zap.Logger) *Executor {
	attempts := cfg.RetryAttempts
	if attempts < 1 {
		attempts = 1
	}
	return &Executor{
		venue:    venue,
		store:    store,
		log:      log,
		attempts: attempts,
		backoff:  cfg.RetryBackoff,
		decimals: cfg.AmountDecimals,
		cache:    make(map[string]Execution),
	}
}

// IntentKey identifies an intent across restarts. Ticks restart from the
// last saved state after a crash, so the key carries the intent's ID.
func IntentKey(intent engine.Intent) string {
	return fmt.Sprintf("%s:%s:%s", intent.Symbol, intent.Kind, intent.ID)
}

// Quantize truncates amount to the configured precision so an order never
// spends more than the engine allotted.
func (e *Executor) Quantize(amount float64) decimal.Decimal {
	return decimal.NewFromFloat(amount).Truncate(e.decimals)
}

// Execute submits intent once. Repeated calls for the same intent return the
// first execution without touching the venue.
func (e *Executor) Execute(ctx context.Context, intent engine.Intent) (Execution, error) {
	if intent.ID == "" {
		return Execution{}, fmt.Errorf("%s %s: %w", intent.Symbol, intent.Kind, ErrNoIntentID)
	}
	key := IntentKey(intent)
	execKey := "exec:" + key
	e.mu.Lock()
	if x, ok := e.cache[execKey]; ok {
		e.mu.Unlock()
		return x, nil
	}
	e.mu.Unlock()
	if x, ok, err := e.loadExecution(ctx, execKey); err != nil {
		return Execution{}, err
	} else if ok {
		e.remember(execKey, x)
		return x, nil
	}

	amount := e.Quantize(intent.Amount)
	if !amount.IsPositive() {
		return Execution{}, fmt.Errorf("%s amount %v below precision: %w", intent.Symbol, intent.Amount, ErrRejected)
	}
	cloid, err := e.clientOrderID(ctx, key)
	if err != nil {
		return Execution{}, err
	}
	order := Order{
		Symbol:        intent.Symbol,
		Side:          intent.Side,
		Unit:          intent.Unit,
		Amount:        amount,
		RefPrice:      decimal.NewFromFloat(intent.Price),
		ClientOrderID: cloid,
	}
	x, err := e.submitWithRetry(ctx, order)
	if err != nil {
		return Execution{}, err
	}
	if e.store != nil {
		if payload, err := msgpack.Marshal(x); err != nil {
			e.log.Warn("failed to encode execution", zap.Error(err))
		} else if err := e.store.Set(ctx, execKey, payload); err != nil {
			e.log.Warn("failed to persist execution", zap.Error(err))
		}
	}
	e.remember(execKey, x)
	return x, nil
}

func (e *Executor) remember(key string, x Execution) {
	e.mu.Lock()
	e.cache[key] = x
	e.mu.Unlock()
}

func (e *Executor) loadExecution(ctx context.Context, key string) (Execution, bool, error) {
	if e.store == nil {
		return Execution{}, false, nil
	}
	raw, ok, err := e.store.Get(ctx, key)
	if err != nil || !ok {
		return Execution{}, false, err
	}
	var x Execution
	if err := msgpack.Unmarshal(raw, &x); err != nil {
		return Execution{}, false, fmt.Errorf("decode execution %s: %w", key, err)
	}
	return x, true, nil
}

// clientOrderID returns the id reserved for key, creating and persisting one
// before the first submission.
func (e *Executor) clientOrderID(ctx context.Context, key string) (string, error) {
	cloidKey := "cloid:" + key
	if e.store != nil {
		if raw, ok, err := e.store.Get(ctx, cloidKey); err != nil {
			return "", err
		} else if ok {
			return string(raw), nil
		}
	}
	id := uuid.NewString()
	if e.store != nil {
		if err := e.store.Set(ctx, cloidKey, []byte(id)); err != nil {
			return "", err
		}
	}
	return id, nil
}

func (e *Executor) submitWithRetry(ctx context.Context, order Order) (Execution, error) {
	var x Execution
	err := e.retry(ctx, func() error {
		var err error
		x, err = e.venue.Submit(ctx, order)
		return err
	})
	if err != nil {
		return Execution{}, err
	}
	if x.OrderID == "" {
		return Execution{}, errors.New("empty order id")
	}
	if x.ClientOrderID == "" {
		x.ClientOrderID = order.ClientOrderID
	}
	return x, nil
}

func (e *Executor) retry(ctx context.Context, fn func() error) error {
	backoff := e.backoff
	for attempt := 0; attempt < e.attempts; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		if errors.Is(err, ErrRejected) {
			return err
		}
		if attempt == e.attempts-1 {
			return fmt.Errorf("retry failed: %w", err)
		}
		e.log.Debug("order submit failed, retrying", zap.Int("attempt", attempt+1), zap.Error(err))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
			backoff *= 2
		}
	}
	return nil
}

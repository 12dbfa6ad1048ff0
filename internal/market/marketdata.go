package market

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"dip-ladder-bot/internal/feed/rest"
	"dip-ladder-bot/internal/feed/ws"

	"go.uber.org/zap"
)

// MarketData feeds a Board from a websocket push source, a REST poll source,
// or both.
type MarketData struct {
	ws           *ws.Client
	rest         *rest.Client
	board        *Board
	log          *zap.Logger
	subscribe    json.RawMessage
	pollInterval time.Duration
	onRejected   func(n int)
}

func New(wsClient *ws.Client, restClient *rest.Client, board *Board, log *zap.Logger) *MarketData {
	return &MarketData{ws: wsClient, rest: restClient, board: board, log: log}
}

// Configure sets the websocket subscription payload and the REST poll interval.
func (m *MarketData) Configure(subscribe string, pollInterval time.Duration) {
	if subscribe != "" {
		m.subscribe = json.RawMessage(subscribe)
	}
	m.pollInterval = pollInterval
}

// OnRejected registers a callback for payloads that could not be parsed.
func (m *MarketData) OnRejected(fn func(n int)) {
	m.onRejected = fn
}

func (m *MarketData) Board() *Board {
	return m.board
}

// Start primes the board and launches the feed goroutines.
func (m *MarketData) Start(ctx context.Context) error {
	if m.ws == nil && m.rest == nil {
		return errors.New("no market data source configured")
	}
	if m.rest != nil {
		if err := m.Refresh(ctx); err != nil {
			m.log.Warn("initial price fetch failed", zap.Error(err))
		}
		go func() {
			_ = m.rest.Poll(ctx, m.pollInterval, m.handleMessage)
		}()
	}
	if m.ws != nil {
		if err := m.ws.Connect(ctx); err != nil {
			return err
		}
		if len(m.subscribe) > 0 {
			if err := m.ws.Subscribe(ctx, m.subscribe); err != nil {
				return err
			}
		}
		go func() {
			_ = m.ws.Run(ctx, m.handleMessage)
		}()
	}
	return nil
}

// Refresh performs one synchronous REST fetch.
func (m *MarketData) Refresh(ctx context.Context) error {
	if m.rest == nil {
		return nil
	}
	body, err := m.rest.Fetch(ctx)
	if err != nil {
		return err
	}
	m.handleMessage(body)
	return nil
}

func (m *MarketData) handleMessage(msg json.RawMessage) {
	quotes, err := ParsePriceMap(msg)
	if err != nil {
		m.log.Debug("price payload rejected", zap.Error(err))
		if m.onRejected != nil {
			m.onRejected(1)
		}
		return
	}
	m.board.Update(quotes)
}

// Package ws is a reconnecting websocket client for push price feeds.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
	"nhooyr.io/websocket"
)

var ErrNotConnected = errors.New("ws not connected")

// Options tunes reconnects and keepalive. A nil PingMessage sends protocol
// level pings instead of an application payload.
type Options struct {
	ReconnectDelay time.Duration
	PingInterval   time.Duration
	PingMessage    json.RawMessage
	ReadLimit      int64
}

type Client struct {
	url  string
	opts Options
	log  *zap.Logger

	mu         sync.Mutex
	conn       *websocket.Conn
	subs       []json.RawMessage
	reconnects int
}

func New(url string, opts Options, log *zap.Logger) *Client {
	if opts.ReadLimit == 0 {
		opts.ReadLimit = 1 << 20
	}
	return &Client{url: url, opts: opts, log: log}
}

func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		return nil
	}
	conn, _, err := websocket.Dial(ctx, c.url, nil)
	if err != nil {
		return err
	}
	conn.SetReadLimit(c.opts.ReadLimit)
	c.conn = conn
	return nil
}

// Subscribe sends msg now and replays it after every reconnect.
func (c *Client) Subscribe(ctx context.Context, msg json.RawMessage) error {
	c.mu.Lock()
	c.subs = append(c.subs, msg)
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}
	return conn.Write(ctx, websocket.MessageText, msg)
}

// Reconnects reports how many times the read loop re-dialed.
func (c *Client) Reconnects() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reconnects
}

// Run reads messages into handler until ctx is done, reconnecting on read errors.
func (c *Client) Run(ctx context.Context, handler func(json.RawMessage)) error {
	first := true
	for {
		if err := c.ensureConnected(ctx, !first); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.log.Warn("ws dial failed", zap.Error(err))
			if !c.wait(ctx) {
				return ctx.Err()
			}
			continue
		}
		first = false
		pingCtx, cancel := context.WithCancel(ctx)
		pingDone := make(chan struct{})
		go func() {
			defer close(pingDone)
			c.pingLoop(pingCtx)
		}()
		err := c.readLoop(ctx, handler)
		cancel()
		<-pingDone
		if ctx.Err() != nil {
			c.resetConn()
			return ctx.Err()
		}
		c.logReadLoopError(err)
		c.resetConn()
		if !c.wait(ctx) {
			return ctx.Err()
		}
	}
}

func (c *Client) wait(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(c.opts.ReconnectDelay):
		return true
	}
}

func (c *Client) ensureConnected(ctx context.Context, replay bool) error {
	c.mu.Lock()
	had := c.conn != nil
	c.mu.Unlock()
	if err := c.Connect(ctx); err != nil {
		return err
	}
	c.mu.Lock()
	conn := c.conn
	subs := append([]json.RawMessage(nil), c.subs...)
	if !had && replay {
		c.reconnects++
	}
	c.mu.Unlock()
	if had && !replay {
		return nil
	}
	for _, sub := range subs {
		if err := conn.Write(ctx, websocket.MessageText, sub); err != nil {
			return err
		}
	}
	return nil
}

func (c *Client) readLoop(ctx context.Context, handler func(json.RawMessage)) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return err
		}
		if handler != nil {
			handler(json.RawMessage(data))
		}
	}
}

func (c *Client) pingLoop(ctx context.Context) {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil || c.opts.PingInterval <= 0 {
		return
	}
	ticker := time.NewTicker(c.opts.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			var err error
			if len(c.opts.PingMessage) > 0 {
				err = conn.Write(ctx, websocket.MessageText, c.opts.PingMessage)
			} else {
				pingCtx, cancel := context.WithTimeout(ctx, c.opts.PingInterval)
				err = conn.Ping(pingCtx)
				cancel()
			}
			if err != nil {
				if ctx.Err() == nil {
					c.log.Debug("ws ping failed", zap.Error(err))
				}
				return
			}
		}
	}
}

func (c *Client) logReadLoopError(err error) {
	if websocket.CloseStatus(err) == websocket.StatusNormalClosure {
		c.log.Info("ws closed by peer", zap.Error(err))
		return
	}
	c.log.Warn("ws read loop ended", zap.Error(err))
}

func (c *Client) resetConn() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		_ = c.conn.Close(websocket.StatusNormalClosure, "reset")
		c.conn = nil
	}
}

// Close drops the current connection, if any.
func (c *Client) Close() {
	c.resetConn()
}

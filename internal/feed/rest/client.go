// Package rest polls an HTTP endpoint that serves a JSON price map.
package rest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

var ErrStatus = errors.New("price endpoint returned non-2xx")

type Client struct {
	url    string
	client *resty.Client
	log    *zap.Logger
}

func New(url string, timeout time.Duration, log *zap.Logger) *Client {
	client := resty.New().
		SetTimeout(timeout).
		SetRetryCount(2).
		SetRetryWaitTime(200*time.Millisecond).
		SetRetryMaxWaitTime(2*time.Second).
		SetHeader("Accept", "application/json").
		SetHeader("User-Agent", "dip-ladder-bot")
	return &Client{url: strings.TrimSpace(url), client: client, log: log}
}

// Fetch returns the raw response body of one GET.
func (c *Client) Fetch(ctx context.Context) (json.RawMessage, error) {
	resp, err := c.client.R().SetContext(ctx).Get(c.url)
	if err != nil {
		return nil, err
	}
	if !resp.IsSuccess() {
		body := resp.Body()
		if len(body) > 256 {
			body = body[:256]
		}
		return nil, fmt.Errorf("%w: %d %s", ErrStatus, resp.StatusCode(), string(body))
	}
	return json.RawMessage(resp.Body()), nil
}

// Poll fetches every interval until ctx is done. Failed polls are logged and skipped.
func (c *Client) Poll(ctx context.Context, interval time.Duration, handler func(json.RawMessage)) error {
	if interval <= 0 {
		return fmt.Errorf("poll interval %v must be > 0", interval)
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		body, err := c.Fetch(ctx)
		switch {
		case err == nil:
			handler(body)
		case ctx.Err() != nil:
			return ctx.Err()
		default:
			c.log.Warn("price poll failed", zap.String("url", c.url), zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

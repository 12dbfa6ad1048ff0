package alerts

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"dip-ladder-bot/internal/config"
	"dip-ladder-bot/internal/engine"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

const telegramBaseURL = "https://api.telegram.org"

type Telegram struct {
	enabled bool
	token   string
	chatID  string
	client  *resty.Client
	log     *zap.Logger
}

func NewTelegram(cfg config.TelegramConfig, log *zap.Logger) *Telegram {
	return newTelegram(cfg, log, telegramBaseURL)
}

func newTelegram(cfg config.TelegramConfig, log *zap.Logger, baseURL string) *Telegram {
	client := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetTimeout(10*time.Second).
		SetHeader("Content-Type", "application/json")
	return &Telegram{
		enabled: cfg.Enabled,
		token:   strings.TrimSpace(cfg.Token),
		chatID:  strings.TrimSpace(cfg.ChatID),
		client:  client,
		log:     log,
	}
}

func (t *Telegram) Enabled() bool { return t.enabled }

type sendResult struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
}

func (t *Telegram) Send(ctx context.Context, message string) error {
	if !t.enabled {
		return nil
	}
	if t.token == "" || t.chatID == "" {
		return errors.New("telegram token and chat_id are required")
	}
	if strings.TrimSpace(message) == "" {
		return errors.New("telegram message is empty")
	}
	var result sendResult
	resp, err := t.client.R().
		SetContext(ctx).
		SetBody(map[string]string{"chat_id": t.chatID, "text": message}).
		SetResult(&result).
		Post("/bot" + t.token + "/sendMessage")
	if err != nil {
		return err
	}
	if resp.IsError() {
		body := string(resp.Body())
		if len(body) > 2048 {
			body = body[:2048]
		}
		return fmt.Errorf("telegram send failed: http %d: %s", resp.StatusCode(), strings.TrimSpace(body))
	}
	if !result.OK {
		desc := strings.TrimSpace(result.Description)
		if desc == "" {
			desc = "unknown telegram error"
		}
		return fmt.Errorf("telegram send failed: %s", desc)
	}
	return nil
}

// Notify sends message and only logs failures.
func (t *Telegram) Notify(ctx context.Context, message string) {
	if err := t.Send(ctx, message); err != nil && t.log != nil {
		t.log.Warn("telegram notify failed", zap.Error(err))
	}
}

// FormatIntent renders an intent as a one-line alert.
func FormatIntent(intent engine.Intent) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s %s", strings.ToUpper(string(intent.Kind)), intent.Side, intent.Symbol)
	switch intent.Unit {
	case engine.UnitQuote:
		fmt.Fprintf(&b, " %.2f quote", intent.Amount)
	default:
		fmt.Fprintf(&b, " %.6g units", intent.Amount)
	}
	fmt.Fprintf(&b, " @ %.6g", intent.Price)
	if len(intent.Reasons) > 0 {
		fmt.Fprintf(&b, " (%s)", strings.Join(intent.Reasons, ", "))
	}
	return b.String()
}

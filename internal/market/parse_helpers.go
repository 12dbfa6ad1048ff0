package market

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"dip-ladder-bot/internal/series"
)

var ErrPayload = errors.New("price payload is not a JSON object")

// ParsePriceMap decodes a symbol keyed price map. Values may be bare numbers,
// numeric strings or objects carrying price, liquidity, volume and 24h change.
// The map may sit under a "data" or "data.mids" envelope. Entries without a
// usable price are skipped.
func ParsePriceMap(payload []byte) (map[string]Quote, error) {
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode price map: %w", err)
	}
	root, ok := toMap(raw)
	if !ok {
		return nil, ErrPayload
	}
	entries := unwrapEnvelope(root)
	out := make(map[string]Quote, len(entries))
	for symbol, v := range entries {
		symbol = strings.TrimSpace(symbol)
		if symbol == "" {
			continue
		}
		q, ok := quoteFromAny(v)
		if !ok {
			continue
		}
		out[symbol] = q
	}
	return out, nil
}

func unwrapEnvelope(root map[string]any) map[string]any {
	data, ok := toMap(root["data"])
	if !ok {
		if mids, ok := toMap(root["mids"]); ok {
			return mids
		}
		return root
	}
	if mids, ok := toMap(data["mids"]); ok {
		return mids
	}
	return data
}

func quoteFromAny(v any) (Quote, bool) {
	if price, ok := floatFromAny(v); ok {
		return Quote{Price: price}, series.ValidPrice(price)
	}
	m, ok := toMap(v)
	if !ok {
		return Quote{}, false
	}
	price := floatFromMap(m, "price", "priceUsd", "mid", "last", "close")
	if !series.ValidPrice(price) {
		return Quote{}, false
	}
	q := Quote{Price: price}
	q.Liquidity, q.HasLiquidity = nestedFloat(m, "usd", "liquidity", "liquidityUsd")
	q.Volume24h, q.HasVolume = nestedFloat(m, "h24", "volume24h", "volume", "vol24h")
	q.Change24h, q.HasChange = nestedFloat(m, "h24", "priceChange24h", "change24h", "priceChange")
	return q, true
}

// nestedFloat reads the first present key, descending one level into inner
// when the value is an object such as {"liquidity": {"usd": 1}}.
func nestedFloat(m map[string]any, inner string, keys ...string) (float64, bool) {
	for _, key := range keys {
		v, ok := m[key]
		if !ok {
			continue
		}
		if f, ok := floatFromAny(v); ok {
			return f, true
		}
		if sub, ok := toMap(v); ok {
			if f, ok := floatFromAny(sub[inner]); ok {
				return f, true
			}
		}
	}
	return 0, false
}

func toMap(v any) (map[string]any, bool) {
	m, ok := v.(map[string]any)
	return m, ok
}

func floatFromMap(m map[string]any, keys ...string) float64 {
	for _, key := range keys {
		if v, ok := m[key]; ok {
			if f, ok := floatFromAny(v); ok {
				return f
			}
		}
	}
	return 0
}

func floatFromAny(v any) (float64, bool) {
	switch val := v.(type) {
	case float64:
		return val, true
	case float32:
		return float64(val), true
	case int:
		return float64(val), true
	case int64:
		return float64(val), true
	case json.Number:
		f, err := val.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

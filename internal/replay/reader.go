// Package replay runs recorded price files through an engine offline.
package replay

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"dip-ladder-bot/internal/market"
)

var ErrFormat = errors.New("replay file format")

// Frame is the price map of one recorded tick.
type Frame struct {
	Tick   int64
	Quotes map[string]market.Quote
}

// ReadFrames parses rows of tick,symbol,price[,liquidity,volume_24h,change_24h]
// into frames ordered as they appear. A header row starting with "tick" is
// skipped. Rows with an unparseable price are kept with a zero price so the
// engine can count them as rejected.
func ReadFrames(r io.Reader) ([]Frame, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	cr.Comment = '#'

	var frames []Frame
	line := 0
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrFormat, err)
		}
		line++
		if line == 1 && strings.EqualFold(strings.TrimSpace(rec[0]), "tick") {
			continue
		}
		if len(rec) < 3 {
			return nil, fmt.Errorf("%w: line %d has %d fields", ErrFormat, line, len(rec))
		}
		tick, err := strconv.ParseInt(strings.TrimSpace(rec[0]), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: line %d tick: %w", ErrFormat, line, err)
		}
		symbol := strings.TrimSpace(rec[1])
		if symbol == "" {
			return nil, fmt.Errorf("%w: line %d has no symbol", ErrFormat, line)
		}
		if len(frames) == 0 || frames[len(frames)-1].Tick != tick {
			if len(frames) > 0 && tick < frames[len(frames)-1].Tick {
				return nil, fmt.Errorf("%w: line %d tick %d goes backwards", ErrFormat, line, tick)
			}
			frames = append(frames, Frame{Tick: tick, Quotes: make(map[string]market.Quote)})
		}
		frames[len(frames)-1].Quotes[symbol] = parseQuote(rec[2:])
	}
	return frames, nil
}

func parseQuote(fields []string) market.Quote {
	var q market.Quote
	q.Price, _ = parseField(fields, 0)
	q.Liquidity, q.HasLiquidity = parseField(fields, 1)
	q.Volume24h, q.HasVolume = parseField(fields, 2)
	q.Change24h, q.HasChange = parseField(fields, 3)
	return q
}

func parseField(fields []string, i int) (float64, bool) {
	if i >= len(fields) {
		return 0, false
	}
	s := strings.TrimSpace(fields[i])
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

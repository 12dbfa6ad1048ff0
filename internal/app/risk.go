package app

import (
	"errors"
	"fmt"
	"time"

	"dip-ladder-bot/internal/config"
)

var (
	ErrFeedStale     = errors.New("price feed stale")
	ErrExposure      = errors.New("exposure above limit")
	ErrTooManyErrors = errors.New("too many consecutive execution errors")
)

// CheckConnectivity fails when the last price update is older than the
// configured maximum. A zero lastUpdate means the feed never delivered.
func CheckConnectivity(cfg config.RiskConfig, lastUpdate, now time.Time) error {
	if cfg.MaxFeedAge <= 0 {
		return nil
	}
	if lastUpdate.IsZero() {
		return fmt.Errorf("no price update received: %w", ErrFeedStale)
	}
	if age := now.Sub(lastUpdate); age > cfg.MaxFeedAge {
		return fmt.Errorf("feed age %s exceeds %s: %w", age, cfg.MaxFeedAge, ErrFeedStale)
	}
	return nil
}

func CheckExposure(cfg config.RiskConfig, exposure float64) error {
	if cfg.MaxExposure > 0 && exposure >= cfg.MaxExposure {
		return fmt.Errorf("exposure %.2f reaches %.2f: %w", exposure, cfg.MaxExposure, ErrExposure)
	}
	return nil
}

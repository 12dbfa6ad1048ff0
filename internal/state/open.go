package state

import (
	"fmt"
	"os"
	"path/filepath"

	"dip-ladder-bot/internal/config"
	"dip-ladder-bot/internal/state/badger"
	"dip-ladder-bot/internal/state/sqlite"
)

// Open returns the Store selected by cfg.Backend.
func Open(cfg config.StateConfig) (Store, error) {
	switch cfg.Backend {
	case config.BackendMemory:
		return NewMemory(), nil
	case config.BackendSQLite:
		if err := ensureDir(filepath.Dir(cfg.SQLitePath)); err != nil {
			return nil, err
		}
		return sqlite.New(cfg.SQLitePath)
	case config.BackendBadger:
		if err := ensureDir(cfg.BadgerDir); err != nil {
			return nil, err
		}
		return badger.New(cfg.BadgerDir)
	default:
		return nil, fmt.Errorf("state backend %q is not supported", cfg.Backend)
	}
}

func ensureDir(dir string) error {
	if dir == "" || dir == "." {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}
	return nil
}

package state

import (
	"context"
	"fmt"
	"time"

	"dip-ladder-bot/internal/engine"

	"github.com/vmihailenco/msgpack/v5"
)

const (
	EngineSnapshotKey = "engine:snapshot"
	snapshotVersion   = 1
)

// EngineSnapshot is the persisted envelope around an engine.State.
type EngineSnapshot struct {
	Version     int          `msgpack:"version"`
	SavedAtMS   int64        `msgpack:"saved_at_ms"`
	Engine      engine.State `msgpack:"engine"`
	Fingerprint string       `msgpack:"fingerprint"`
}

func LoadEngineSnapshot(ctx context.Context, store Store) (EngineSnapshot, bool, error) {
	if store == nil {
		return EngineSnapshot{}, false, nil
	}
	raw, ok, err := store.Get(ctx, EngineSnapshotKey)
	if err != nil {
		return EngineSnapshot{}, false, err
	}
	if !ok || len(raw) == 0 {
		return EngineSnapshot{}, false, nil
	}
	var snap EngineSnapshot
	if err := msgpack.Unmarshal(raw, &snap); err != nil {
		return EngineSnapshot{}, false, fmt.Errorf("decode engine snapshot: %w", err)
	}
	if snap.Version != snapshotVersion {
		return EngineSnapshot{}, false, fmt.Errorf("engine snapshot version %d, want %d", snap.Version, snapshotVersion)
	}
	return snap, true, nil
}

// SaveEngineSnapshot stores st stamped with now. fingerprint identifies the
// strategy parameters the state was produced under.
func SaveEngineSnapshot(ctx context.Context, store Store, st engine.State, fingerprint string, now time.Time) error {
	if store == nil {
		return nil
	}
	payload, err := msgpack.Marshal(EngineSnapshot{
		Version:     snapshotVersion,
		SavedAtMS:   now.UnixMilli(),
		Engine:      st,
		Fingerprint: fingerprint,
	})
	if err != nil {
		return fmt.Errorf("encode engine snapshot: %w", err)
	}
	return store.Set(ctx, EngineSnapshotKey, payload)
}

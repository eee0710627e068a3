package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/sellerpulse/notifier/internal/domain"
)

// Snapshots older than this are dropped; the next sync for that user is a
// baseline again.
const snapshotTTL = 7 * 24 * time.Hour

// SnapshotStore keeps the last seen snapshot per (user, entity type) in a
// KV backend so sync batches can omit the previous snapshot.
type SnapshotStore struct {
	kv KV
}

func NewSnapshotStore(kv KV) *SnapshotStore {
	return &SnapshotStore{kv: kv}
}

func snapshotKey(userID int64, entity domain.EntityType) string {
	return fmt.Sprintf("snap:%d:%s", userID, entity)
}

// GetSnapshot returns the cached snapshot, or nil if none is stored.
func (s *SnapshotStore) GetSnapshot(ctx context.Context, userID int64, entity domain.EntityType) (*domain.Snapshot, error) {
	raw, err := s.kv.Get(ctx, snapshotKey(userID, entity))
	if err != nil {
		return nil, fmt.Errorf("reading cached snapshot: %w", err)
	}
	if raw == nil {
		return nil, nil
	}

	var snap domain.Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return nil, fmt.Errorf("decoding cached snapshot: %w", err)
	}
	return &snap, nil
}

// PutSnapshot stores the snapshot as the new previous for the next sync.
func (s *SnapshotStore) PutSnapshot(ctx context.Context, userID int64, entity domain.EntityType, snap domain.Snapshot) error {
	raw, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encoding snapshot: %w", err)
	}
	if err := s.kv.Set(ctx, snapshotKey(userID, entity), raw, snapshotTTL); err != nil {
		return fmt.Errorf("storing snapshot: %w", err)
	}
	return nil
}

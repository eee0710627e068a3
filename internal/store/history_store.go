package store

import (
	"context"
	"fmt"

	"github.com/sellerpulse/notifier/internal/domain"
)

// RecordDelivered upserts a notification history row and reports whether it
// was new. A repeat write for the same (user, event type, entity) key — a
// duplicate delivery under at-least-once semantics — is not an error, it
// just returns false.
func (s *PostgresStore) RecordDelivered(ctx context.Context, key domain.EventKey) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO notification_history (user_id, event_type, entity_id)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id, event_type, entity_id) DO NOTHING
	`, key.UserID, key.EventType, key.EntityID)
	if err != nil {
		return false, fmt.Errorf("inserting history entry: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// WasDelivered reports whether the event was already delivered.
func (s *PostgresStore) WasDelivered(ctx context.Context, key domain.EventKey) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM notification_history
			WHERE user_id = $1 AND event_type = $2 AND entity_id = $3
		)
	`, key.UserID, key.EventType, key.EntityID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("querying history: %w", err)
	}
	return exists, nil
}

// ListHistory returns recent history entries for a user.
func (s *PostgresStore) ListHistory(ctx context.Context, userID int64, limit int) ([]domain.HistoryEntry, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, user_id, event_type, entity_id, delivered_at
		FROM notification_history
		WHERE user_id = $1
		ORDER BY delivered_at DESC
		LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("querying history: %w", err)
	}
	defer rows.Close()

	var entries []domain.HistoryEntry
	for rows.Next() {
		var e domain.HistoryEntry
		if err := rows.Scan(&e.ID, &e.UserID, &e.EventType, &e.EntityID, &e.DeliveredAt); err != nil {
			return nil, fmt.Errorf("scanning history entry: %w", err)
		}
		entries = append(entries, e)
	}

	if entries == nil {
		entries = []domain.HistoryEntry{}
	}
	return entries, nil
}

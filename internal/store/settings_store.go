package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/sellerpulse/notifier/internal/domain"
)

const settingsColumns = `user_id, notifications_enabled, new_orders_enabled, order_status_enabled,
	negative_reviews_enabled, critical_stocks_enabled, review_rating_threshold,
	grouping_enabled, max_group_size, group_timeout_sec, updated_at`

// GetSettings returns the user's notification settings, or the defaults if
// the user never changed anything.
func (s *PostgresStore) GetSettings(ctx context.Context, userID int64) (domain.NotificationSettings, error) {
	var st domain.NotificationSettings
	err := s.pool.QueryRow(ctx, `
		SELECT `+settingsColumns+`
		FROM notification_settings WHERE user_id = $1
	`, userID).Scan(
		&st.UserID, &st.NotificationsEnabled, &st.NewOrdersEnabled, &st.OrderStatusEnabled,
		&st.NegativeReviewsEnabled, &st.CriticalStocksEnabled, &st.ReviewRatingThreshold,
		&st.GroupingEnabled, &st.MaxGroupSize, &st.GroupTimeoutSec, &st.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.DefaultSettings(userID), nil
		}
		return domain.NotificationSettings{}, fmt.Errorf("querying settings: %w", err)
	}
	return st, nil
}

// UpdateSettings applies a partial update inside a transaction so
// concurrent updates for the same user serialize on the row lock. Callers
// must Validate the request first; this method validates again as a
// backstop so an invalid value can never land in the table.
func (s *PostgresStore) UpdateSettings(ctx context.Context, userID int64, req domain.UpdateSettingsRequest) (domain.NotificationSettings, error) {
	if err := req.Validate(); err != nil {
		return domain.NotificationSettings{}, err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return domain.NotificationSettings{}, fmt.Errorf("beginning settings update: %w", err)
	}
	defer tx.Rollback(ctx)

	current := domain.DefaultSettings(userID)
	err = tx.QueryRow(ctx, `
		SELECT `+settingsColumns+`
		FROM notification_settings WHERE user_id = $1 FOR UPDATE
	`, userID).Scan(
		&current.UserID, &current.NotificationsEnabled, &current.NewOrdersEnabled, &current.OrderStatusEnabled,
		&current.NegativeReviewsEnabled, &current.CriticalStocksEnabled, &current.ReviewRatingThreshold,
		&current.GroupingEnabled, &current.MaxGroupSize, &current.GroupTimeoutSec, &current.UpdatedAt,
	)
	if err != nil && err != pgx.ErrNoRows {
		return domain.NotificationSettings{}, fmt.Errorf("reading settings for update: %w", err)
	}

	updated := req.Apply(current)

	err = tx.QueryRow(ctx, `
		INSERT INTO notification_settings (
			user_id, notifications_enabled, new_orders_enabled, order_status_enabled,
			negative_reviews_enabled, critical_stocks_enabled, review_rating_threshold,
			grouping_enabled, max_group_size, group_timeout_sec, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW())
		ON CONFLICT (user_id) DO UPDATE SET
			notifications_enabled = EXCLUDED.notifications_enabled,
			new_orders_enabled = EXCLUDED.new_orders_enabled,
			order_status_enabled = EXCLUDED.order_status_enabled,
			negative_reviews_enabled = EXCLUDED.negative_reviews_enabled,
			critical_stocks_enabled = EXCLUDED.critical_stocks_enabled,
			review_rating_threshold = EXCLUDED.review_rating_threshold,
			grouping_enabled = EXCLUDED.grouping_enabled,
			max_group_size = EXCLUDED.max_group_size,
			group_timeout_sec = EXCLUDED.group_timeout_sec,
			updated_at = NOW()
		RETURNING updated_at
	`, updated.UserID, updated.NotificationsEnabled, updated.NewOrdersEnabled, updated.OrderStatusEnabled,
		updated.NegativeReviewsEnabled, updated.CriticalStocksEnabled, updated.ReviewRatingThreshold,
		updated.GroupingEnabled, updated.MaxGroupSize, updated.GroupTimeoutSec,
	).Scan(&updated.UpdatedAt)
	if err != nil {
		return domain.NotificationSettings{}, fmt.Errorf("upserting settings: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return domain.NotificationSettings{}, fmt.Errorf("committing settings update: %w", err)
	}
	return updated, nil
}

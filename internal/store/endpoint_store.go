package store

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/sellerpulse/notifier/internal/domain"
)

// RegisterEndpoint creates or replaces the user's webhook endpoint and
// generates a fresh signing secret.
func (s *PostgresStore) RegisterEndpoint(ctx context.Context, userID int64, req domain.RegisterEndpointRequest) (*domain.WebhookEndpoint, error) {
	secret, err := generateSecretKey()
	if err != nil {
		return nil, fmt.Errorf("generating secret key: %w", err)
	}

	var ep domain.WebhookEndpoint
	err = s.pool.QueryRow(ctx, `
		INSERT INTO webhook_endpoints (user_id, webhook_url, secret_key, is_active, rate_limit_per_second)
		VALUES ($1, $2, $3, true, $4)
		ON CONFLICT (user_id) DO UPDATE SET
			webhook_url = EXCLUDED.webhook_url,
			secret_key = EXCLUDED.secret_key,
			is_active = true,
			rate_limit_per_second = EXCLUDED.rate_limit_per_second,
			updated_at = NOW()
		RETURNING user_id, webhook_url, secret_key, is_active, rate_limit_per_second, created_at, updated_at
	`, userID, req.WebhookURL, secret, req.RateLimitPerSecond).Scan(
		&ep.UserID, &ep.WebhookURL, &ep.SecretKey, &ep.IsActive,
		&ep.RateLimitPerSecond, &ep.CreatedAt, &ep.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("upserting webhook endpoint: %w", err)
	}
	return &ep, nil
}

// GetEndpoint returns the user's registered endpoint, or nil if none.
func (s *PostgresStore) GetEndpoint(ctx context.Context, userID int64) (*domain.WebhookEndpoint, error) {
	var ep domain.WebhookEndpoint
	err := s.pool.QueryRow(ctx, `
		SELECT user_id, webhook_url, secret_key, is_active, rate_limit_per_second, created_at, updated_at
		FROM webhook_endpoints WHERE user_id = $1
	`, userID).Scan(
		&ep.UserID, &ep.WebhookURL, &ep.SecretKey, &ep.IsActive,
		&ep.RateLimitPerSecond, &ep.CreatedAt, &ep.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("querying webhook endpoint: %w", err)
	}
	return &ep, nil
}

// DeactivateEndpoint marks the endpoint inactive without losing its
// configuration. Sealed groups for the user are dropped while inactive.
func (s *PostgresStore) DeactivateEndpoint(ctx context.Context, userID int64) error {
	result, err := s.pool.Exec(ctx, `
		UPDATE webhook_endpoints SET is_active = false, updated_at = NOW()
		WHERE user_id = $1
	`, userID)
	if err != nil {
		return fmt.Errorf("deactivating webhook endpoint: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("webhook endpoint not found")
	}
	return nil
}

func generateSecretKey() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

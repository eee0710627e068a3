package store

import (
	"context"
	"fmt"
)

// DeliveryMetrics holds aggregated delivery statistics.
type DeliveryMetrics struct {
	TotalDeliveries  int     `json:"total_deliveries"`
	SuccessCount     int     `json:"success_count"`
	FailedCount      int     `json:"failed_count"`
	SuccessRate      float64 `json:"success_rate"`
	AvgResponseMs    float64 `json:"avg_response_ms"`
	DeadLetterCount  int     `json:"dead_letter_count"`
	ActiveEndpoints  int     `json:"active_endpoints"`
	DeliveredEvents  int     `json:"delivered_events"`
}

// GetDeliveryMetrics returns aggregated delivery statistics from the
// database.
func (s *PostgresStore) GetDeliveryMetrics(ctx context.Context) (*DeliveryMetrics, error) {
	var m DeliveryMetrics

	err := s.pool.QueryRow(ctx, `
		SELECT
			COUNT(*) AS total,
			COUNT(*) FILTER (WHERE status = 'success') AS success,
			COUNT(*) FILTER (WHERE status = 'failed') AS failed,
			COALESCE(AVG(response_time_ms) FILTER (WHERE response_time_ms > 0), 0) AS avg_response_ms
		FROM delivery_attempts
	`).Scan(&m.TotalDeliveries, &m.SuccessCount, &m.FailedCount, &m.AvgResponseMs)
	if err != nil {
		return nil, fmt.Errorf("querying delivery metrics: %w", err)
	}

	if m.TotalDeliveries > 0 {
		m.SuccessRate = float64(m.SuccessCount) / float64(m.TotalDeliveries) * 100
	}

	err = s.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM dead_letter_queue WHERE resolved_at IS NULL
	`).Scan(&m.DeadLetterCount)
	if err != nil {
		return nil, fmt.Errorf("querying dead letter count: %w", err)
	}

	err = s.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM webhook_endpoints WHERE is_active = true
	`).Scan(&m.ActiveEndpoints)
	if err != nil {
		return nil, fmt.Errorf("querying active endpoints: %w", err)
	}

	err = s.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM notification_history
	`).Scan(&m.DeliveredEvents)
	if err != nil {
		return nil, fmt.Errorf("querying delivered events: %w", err)
	}

	return &m, nil
}

package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sellerpulse/notifier/internal/detector"
	"github.com/sellerpulse/notifier/internal/domain"
)

// SettingsSource resolves a user's notification settings, falling back to
// defaults for users who never changed anything.
type SettingsSource interface {
	GetSettings(ctx context.Context, userID int64) (domain.NotificationSettings, error)
}

// SnapshotCache persists the last seen snapshot per (user, entity type) so
// a sync batch may omit the previous snapshot. Implemented on Redis in
// production and in memory for tests, selected by configuration.
type SnapshotCache interface {
	GetSnapshot(ctx context.Context, userID int64, entity domain.EntityType) (*domain.Snapshot, error)
	PutSnapshot(ctx context.Context, userID int64, entity domain.EntityType, snap domain.Snapshot) error
}

// Pipeline runs one user's sync batch through detect -> filter -> group ->
// enqueue. A batch for one user runs inline on the caller's goroutine, so
// events keep arrival order; batches for different users are independent.
type Pipeline struct {
	detector  *detector.Detector
	grouper   *Grouper
	enqueuer  *Enqueuer
	settings  SettingsSource
	snapshots SnapshotCache
	logger    *slog.Logger
}

// NewPipeline wires the notification pipeline.
func NewPipeline(det *detector.Detector, grouper *Grouper, enq *Enqueuer, settings SettingsSource, snapshots SnapshotCache, logger *slog.Logger) *Pipeline {
	return &Pipeline{
		detector:  det,
		grouper:   grouper,
		enqueuer:  enq,
		settings:  settings,
		snapshots: snapshots,
		logger:    logger,
	}
}

// SyncResult reports what a sync batch produced.
type SyncResult struct {
	Detected int  `json:"detected"`
	Filtered int  `json:"filtered"`
	Queued   int  `json:"queued"`
	Baseline bool `json:"baseline,omitempty"`
}

// ProcessSync handles one inbound sync batch. previous may be nil, in which
// case the cached snapshot is used; with no cached snapshot either, the
// batch is a baseline: current is stored and no events fire.
func (p *Pipeline) ProcessSync(ctx context.Context, userID int64, entity domain.EntityType, previous *domain.Snapshot, current domain.Snapshot) (SyncResult, error) {
	settings, err := p.settings.GetSettings(ctx, userID)
	if err != nil {
		return SyncResult{}, fmt.Errorf("loading settings: %w", err)
	}

	if previous == nil {
		cached, err := p.snapshots.GetSnapshot(ctx, userID, entity)
		if err != nil {
			return SyncResult{}, fmt.Errorf("loading cached snapshot: %w", err)
		}
		if cached == nil {
			if err := p.snapshots.PutSnapshot(ctx, userID, entity, current); err != nil {
				return SyncResult{}, fmt.Errorf("storing baseline snapshot: %w", err)
			}
			p.logger.Info("baseline snapshot stored", "user_id", userID, "entity_type", entity)
			return SyncResult{Baseline: true}, nil
		}
		previous = cached
	}

	events := p.detector.Detect(userID, entity, *previous, current, settings)

	// Store current as the next previous. Best-effort: a failed write means
	// the next diff re-detects, and history dedupe suppresses re-delivery.
	if err := p.snapshots.PutSnapshot(ctx, userID, entity, current); err != nil {
		p.logger.Warn("failed to store snapshot", "user_id", userID, "entity_type", entity, "error", err)
	}

	res := SyncResult{Detected: len(events)}
	for _, e := range events {
		if !Allows(e, settings) {
			res.Filtered++
			continue
		}
		for _, sealed := range p.grouper.Add(e, settings) {
			if err := p.enqueuer.EnqueueGroup(ctx, sealed); err != nil {
				p.logger.Error("failed to enqueue sealed group",
					"user_id", sealed.UserID,
					"size", len(sealed.Events),
					"error", err,
				)
				continue
			}
			res.Queued++
		}
	}

	p.logger.Info("sync batch processed",
		"user_id", userID,
		"entity_type", entity,
		"detected", res.Detected,
		"filtered", res.Filtered,
		"queued", res.Queued,
	)
	return res, nil
}

// Sweep seals timed-out groups and queues them. Registered with the cron
// scheduler; also safe to call directly.
func (p *Pipeline) Sweep(ctx context.Context) {
	sealed := p.grouper.SweepExpired(func(userID int64) domain.NotificationSettings {
		s, err := p.settings.GetSettings(ctx, userID)
		if err != nil {
			p.logger.Warn("settings lookup failed during sweep, using defaults", "user_id", userID, "error", err)
			return domain.DefaultSettings(userID)
		}
		return s
	})

	for _, g := range sealed {
		if err := p.enqueuer.EnqueueGroup(ctx, g); err != nil {
			p.logger.Error("failed to enqueue swept group", "user_id", g.UserID, "error", err)
		}
	}
}

// FlushAll seals every open group and queues it. Called on shutdown.
func (p *Pipeline) FlushAll(ctx context.Context) {
	for _, g := range p.grouper.Flush() {
		if err := p.enqueuer.EnqueueGroup(ctx, g); err != nil {
			p.logger.Error("failed to enqueue flushed group", "user_id", g.UserID, "error", err)
		}
	}
}

// OpenGroups reports the number of currently open groups, for metrics.
func (p *Pipeline) OpenGroups() int {
	return p.grouper.OpenCount()
}

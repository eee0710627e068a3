package engine

import (
	"log/slog"
	"sync"
	"time"

	"github.com/sellerpulse/notifier/internal/domain"
)

// Grouper batches qualifying events per user. Each user has an independent
// state machine (no group -> open -> sealed); events for the same user must
// arrive through Add in order, events for different users are fully
// independent. A periodic sweep seals groups whose timeout elapsed with no
// new events.
type Grouper struct {
	mu     sync.Mutex
	open   map[int64]*domain.NotificationGroup
	logger *slog.Logger

	now func() time.Time
}

// NewGrouper creates an empty grouper.
func NewGrouper(logger *slog.Logger) *Grouper {
	return &Grouper{
		open:   make(map[int64]*domain.NotificationGroup),
		logger: logger,
		now:    time.Now,
	}
}

// Add routes one qualifying event through the user's group state machine
// and returns any groups sealed as a result. With grouping disabled the
// event comes back immediately as a sealed group of one.
func (g *Grouper) Add(e domain.DomainEvent, s domain.NotificationSettings) []*domain.NotificationGroup {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()

	if !s.GroupingEnabled {
		var sealed []*domain.NotificationGroup
		// An earlier open group (settings changed mid-window) goes out first
		// so per-user ordering holds.
		if open, ok := g.open[e.UserID]; ok {
			delete(g.open, e.UserID)
			g.seal(open, now, domain.SealGroupingDisabled)
			sealed = append(sealed, open)
		}
		single := &domain.NotificationGroup{
			UserID:   e.UserID,
			Events:   []domain.DomainEvent{e},
			OpenedAt: now,
		}
		g.seal(single, now, domain.SealGroupingDisabled)
		return append(sealed, single)
	}

	open, ok := g.open[e.UserID]
	if ok && now.Sub(open.OpenedAt) >= s.GroupTimeout() {
		// Window expired between sweeps; seal it before opening a new one.
		delete(g.open, e.UserID)
		g.seal(open, now, domain.SealTimeout)
		sealed := []*domain.NotificationGroup{open}
		fresh := g.openGroup(e, now)
		if full := g.maybeSealBySize(fresh, s, now); full != nil {
			sealed = append(sealed, full)
		}
		return sealed
	}

	if !ok {
		fresh := g.openGroup(e, now)
		if sealed := g.maybeSealBySize(fresh, s, now); sealed != nil {
			return []*domain.NotificationGroup{sealed}
		}
		return nil
	}

	open.Events = append(open.Events, e)
	if sealed := g.maybeSealBySize(open, s, now); sealed != nil {
		return []*domain.NotificationGroup{sealed}
	}
	return nil
}

// SweepExpired seals every open group whose timeout has elapsed. Safe to
// run concurrently with Add. The per-user timeout comes from the settings
// snapshot captured when the group was opened via lookup; callers pass a
// settings lookup so a user's current timeout applies.
func (g *Grouper) SweepExpired(lookup func(userID int64) domain.NotificationSettings) []*domain.NotificationGroup {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	var sealed []*domain.NotificationGroup
	for userID, open := range g.open {
		s := lookup(userID)
		if now.Sub(open.OpenedAt) < s.GroupTimeout() {
			continue
		}
		delete(g.open, userID)
		g.seal(open, now, domain.SealTimeout)
		sealed = append(sealed, open)
	}
	return sealed
}

// Flush seals and returns every open group regardless of age. Called on
// shutdown so pending events are dispatched rather than lost.
func (g *Grouper) Flush() []*domain.NotificationGroup {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	sealed := make([]*domain.NotificationGroup, 0, len(g.open))
	for userID, open := range g.open {
		delete(g.open, userID)
		g.seal(open, now, domain.SealFlush)
		sealed = append(sealed, open)
	}
	return sealed
}

// OpenCount returns the number of currently open groups.
func (g *Grouper) OpenCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.open)
}

func (g *Grouper) openGroup(e domain.DomainEvent, now time.Time) *domain.NotificationGroup {
	fresh := &domain.NotificationGroup{
		UserID:   e.UserID,
		Events:   []domain.DomainEvent{e},
		OpenedAt: now,
	}
	g.open[e.UserID] = fresh
	return fresh
}

// maybeSealBySize seals the group if it reached the user's size cap.
// Returns the sealed group, or nil if it stays open.
func (g *Grouper) maybeSealBySize(group *domain.NotificationGroup, s domain.NotificationSettings, now time.Time) *domain.NotificationGroup {
	if len(group.Events) < s.MaxGroupSize {
		return nil
	}
	delete(g.open, group.UserID)
	g.seal(group, now, domain.SealSizeCap)
	return group
}

func (g *Grouper) seal(group *domain.NotificationGroup, now time.Time, reason domain.SealReason) {
	group.SealedAt = now
	group.Reason = reason
	g.logger.Debug("group sealed",
		"user_id", group.UserID,
		"size", len(group.Events),
		"reason", reason,
	)
}

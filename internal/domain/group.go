package domain

import "time"

// SealReason records why a group stopped accepting events.
type SealReason string

const (
	SealSizeCap          SealReason = "size_cap"
	SealTimeout          SealReason = "timeout"
	SealFlush            SealReason = "flush"
	SealGroupingDisabled SealReason = "grouping_disabled"
)

// NotificationGroup is a batch of events for one user. While open it is
// owned exclusively by the grouping stage; once sealed it is handed to the
// dispatcher and never modified again.
type NotificationGroup struct {
	UserID   int64
	Events   []DomainEvent // insertion order = detection order
	OpenedAt time.Time
	SealedAt time.Time // zero while open
	Reason   SealReason
}

// Sealed reports whether the group has been sealed.
func (g *NotificationGroup) Sealed() bool {
	return !g.SealedAt.IsZero()
}

// MaxPriority returns the highest priority among the group's events.
func (g *NotificationGroup) MaxPriority() Priority {
	p := PriorityLow
	for _, e := range g.Events {
		switch e.Priority {
		case PriorityHigh:
			return PriorityHigh
		case PriorityMedium:
			p = PriorityMedium
		}
	}
	return p
}

package engine

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/sellerpulse/notifier/internal/domain"
)

type fakeEndpoints struct {
	endpoint *domain.WebhookEndpoint
	err      error
}

func (f *fakeEndpoints) GetEndpoint(_ context.Context, _ int64) (*domain.WebhookEndpoint, error) {
	return f.endpoint, f.err
}

type fakeHistory struct {
	delivered map[domain.EventKey]bool
	err       error
}

func (f *fakeHistory) WasDelivered(_ context.Context, key domain.EventKey) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	return f.delivered[key], nil
}

func activeEndpoint(userID int64) *domain.WebhookEndpoint {
	return &domain.WebhookEndpoint{
		UserID:             userID,
		WebhookURL:         "https://bot.example.com/webhook",
		SecretKey:          "test-secret",
		IsActive:           true,
		RateLimitPerSecond: 10,
	}
}

func newTestEnqueuer(t *testing.T, endpoints EndpointSource, history HistorySource) (*Enqueuer, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return NewEnqueuer(endpoints, history, rdb, 5, testLogger()), rdb
}

func sealedGroup(userID int64, events ...domain.DomainEvent) *domain.NotificationGroup {
	now := time.Now()
	return &domain.NotificationGroup{
		UserID:   userID,
		Events:   events,
		OpenedAt: now,
		SealedAt: now,
		Reason:   domain.SealSizeCap,
	}
}

func queuedJobs(t *testing.T, rdb *redis.Client) []DeliveryJob {
	t.Helper()
	members, err := rdb.ZRange(context.Background(), DeliveryQueueKey, 0, -1).Result()
	if err != nil {
		t.Fatalf("reading queue: %v", err)
	}
	jobs := make([]DeliveryJob, 0, len(members))
	for _, m := range members {
		var job DeliveryJob
		if err := json.Unmarshal([]byte(m), &job); err != nil {
			t.Fatalf("unmarshaling queued job: %v", err)
		}
		jobs = append(jobs, job)
	}
	return jobs
}

func TestEnqueueGroup_QueuesJob(t *testing.T) {
	q, rdb := newTestEnqueuer(t, &fakeEndpoints{endpoint: activeEndpoint(42)}, &fakeHistory{})

	g := sealedGroup(42, testEvent(42, 1), testEvent(42, 2))
	if err := q.EnqueueGroup(context.Background(), g); err != nil {
		t.Fatalf("EnqueueGroup: %v", err)
	}

	jobs := queuedJobs(t, rdb)
	if len(jobs) != 1 {
		t.Fatalf("expected 1 queued job, got %d", len(jobs))
	}

	job := jobs[0]
	if job.NotificationID == "" {
		t.Error("job should carry a notification id")
	}
	if job.UserID != 42 {
		t.Errorf("user_id = %d, want 42", job.UserID)
	}
	if job.EndpointURL != "https://bot.example.com/webhook" {
		t.Errorf("endpoint url = %s", job.EndpointURL)
	}
	if job.SecretKey != "test-secret" {
		t.Errorf("secret = %s", job.SecretKey)
	}
	if job.Attempt != 1 || job.MaxRetries != 5 {
		t.Errorf("attempt/max = %d/%d, want 1/5", job.Attempt, job.MaxRetries)
	}
	if job.PayloadType != domain.PayloadTypeGroup {
		t.Errorf("payload type = %s, want %s", job.PayloadType, domain.PayloadTypeGroup)
	}
	if len(job.Events) != 2 {
		t.Errorf("job carries %d event keys, want 2", len(job.Events))
	}

	var payload domain.WebhookPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		t.Fatalf("unmarshaling payload: %v", err)
	}
	if payload.UserID != 42 {
		t.Errorf("payload user_id = %d, want 42", payload.UserID)
	}

	depth, err := q.QueueDepth(context.Background())
	if err != nil || depth != 1 {
		t.Errorf("QueueDepth = %d, %v, want 1, nil", depth, err)
	}
}

func TestEnqueueGroup_SingleEventCollapses(t *testing.T) {
	q, rdb := newTestEnqueuer(t, &fakeEndpoints{endpoint: activeEndpoint(42)}, &fakeHistory{})

	g := sealedGroup(42, testEvent(42, 1))
	g.Reason = domain.SealGroupingDisabled
	if err := q.EnqueueGroup(context.Background(), g); err != nil {
		t.Fatalf("EnqueueGroup: %v", err)
	}

	jobs := queuedJobs(t, rdb)
	if len(jobs) != 1 {
		t.Fatalf("expected 1 queued job, got %d", len(jobs))
	}
	if jobs[0].PayloadType == domain.PayloadTypeGroup {
		t.Errorf("size-1 group should queue a single-event payload, got type %s", jobs[0].PayloadType)
	}
}

func TestEnqueueGroup_NoActiveEndpoint_Drops(t *testing.T) {
	inactive := activeEndpoint(42)
	inactive.IsActive = false

	tests := []struct {
		name     string
		endpoint *domain.WebhookEndpoint
	}{
		{"no endpoint", nil},
		{"inactive endpoint", inactive},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, rdb := newTestEnqueuer(t, &fakeEndpoints{endpoint: tt.endpoint}, &fakeHistory{})

			if err := q.EnqueueGroup(context.Background(), sealedGroup(42, testEvent(42, 1))); err != nil {
				t.Fatalf("drop should not be an error: %v", err)
			}
			if jobs := queuedJobs(t, rdb); len(jobs) != 0 {
				t.Errorf("expected empty queue, got %d jobs", len(jobs))
			}
		})
	}
}

func TestEnqueueGroup_DedupesDeliveredEvents(t *testing.T) {
	e1, e2 := testEvent(42, 1), testEvent(42, 2)
	history := &fakeHistory{delivered: map[domain.EventKey]bool{e1.Key(): true}}
	q, rdb := newTestEnqueuer(t, &fakeEndpoints{endpoint: activeEndpoint(42)}, history)

	if err := q.EnqueueGroup(context.Background(), sealedGroup(42, e1, e2)); err != nil {
		t.Fatalf("EnqueueGroup: %v", err)
	}

	jobs := queuedJobs(t, rdb)
	if len(jobs) != 1 {
		t.Fatalf("expected 1 queued job, got %d", len(jobs))
	}
	if len(jobs[0].Events) != 1 || jobs[0].Events[0] != e2.Key() {
		t.Errorf("job events = %+v, want only %+v", jobs[0].Events, e2.Key())
	}
}

func TestEnqueueGroup_AllDelivered_DropsGroup(t *testing.T) {
	e1 := testEvent(42, 1)
	history := &fakeHistory{delivered: map[domain.EventKey]bool{e1.Key(): true}}
	q, rdb := newTestEnqueuer(t, &fakeEndpoints{endpoint: activeEndpoint(42)}, history)

	if err := q.EnqueueGroup(context.Background(), sealedGroup(42, e1)); err != nil {
		t.Fatalf("EnqueueGroup: %v", err)
	}
	if jobs := queuedJobs(t, rdb); len(jobs) != 0 {
		t.Errorf("fully-delivered group should not be queued, got %d jobs", len(jobs))
	}
}

func TestEnqueueGroup_HistoryErrorKeepsEvent(t *testing.T) {
	history := &fakeHistory{err: errors.New("connection refused")}
	q, rdb := newTestEnqueuer(t, &fakeEndpoints{endpoint: activeEndpoint(42)}, history)

	if err := q.EnqueueGroup(context.Background(), sealedGroup(42, testEvent(42, 1))); err != nil {
		t.Fatalf("EnqueueGroup: %v", err)
	}
	if jobs := queuedJobs(t, rdb); len(jobs) != 1 {
		t.Errorf("history failure must not drop events, got %d jobs", len(jobs))
	}
}

func TestEnqueuePayload_RequiresActiveEndpoint(t *testing.T) {
	q, _ := newTestEnqueuer(t, &fakeEndpoints{endpoint: nil}, &fakeHistory{})

	payload := domain.NewEventPayload(testEvent(42, 1))
	err := q.EnqueuePayload(context.Background(), 42, payload)
	if err == nil {
		t.Fatal("expected error when no active endpoint is registered")
	}
	if !errors.Is(err, ErrNoActiveEndpoint) {
		t.Errorf("expected ErrNoActiveEndpoint, got %v", err)
	}
}

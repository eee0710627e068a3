package worker

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/sellerpulse/notifier/internal/domain"
	"github.com/sellerpulse/notifier/internal/engine"
	"github.com/sellerpulse/notifier/internal/store"
	ws "github.com/sellerpulse/notifier/internal/websocket"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

// fakeStore records persistence calls in memory.
type fakeStore struct {
	mu          sync.Mutex
	attempts    []store.DeliveryAttemptRecord
	deadLetters []store.DeadLetterRecord
	history     map[domain.EventKey]bool
	historyErr  error
}

func newFakeStore() *fakeStore {
	return &fakeStore{history: make(map[domain.EventKey]bool)}
}

func (f *fakeStore) RecordDeliveryAttempt(_ context.Context, rec store.DeliveryAttemptRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attempts = append(f.attempts, rec)
	return nil
}

func (f *fakeStore) InsertDeadLetter(_ context.Context, rec store.DeadLetterRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deadLetters = append(f.deadLetters, rec)
	return nil
}

func (f *fakeStore) RecordDelivered(_ context.Context, key domain.EventKey) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.historyErr != nil {
		return false, f.historyErr
	}
	if f.history[key] {
		return false, nil
	}
	f.history[key] = true
	return true, nil
}

func (f *fakeStore) lastAttempt(t *testing.T) store.DeliveryAttemptRecord {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.attempts) == 0 {
		t.Fatal("no delivery attempts recorded")
	}
	return f.attempts[len(f.attempts)-1]
}

func newTestDeliverer(t *testing.T, st Store) (*Deliverer, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	logger := testLogger()
	cb := engine.NewCircuitBreaker(rdb, logger)
	rl := engine.NewRateLimiter(rdb, logger)
	hub := ws.NewHub(logger)
	backoff := func(attempt int) time.Duration { return time.Duration(attempt) * time.Second }

	return NewDeliverer(st, rdb, cb, rl, hub, 5*time.Second, backoff, logger), rdb
}

func testJob(t *testing.T, url string, attempt, maxRetries int) engine.DeliveryJob {
	t.Helper()
	payload, err := json.Marshal(domain.WebhookPayload{
		Type:   "new_order",
		UserID: 42,
		Data:   domain.OrderEventData{OrderID: "o-1"},
	})
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return engine.DeliveryJob{
		NotificationID:     "notif-1",
		UserID:             42,
		EndpointURL:        url,
		Payload:            payload,
		SecretKey:          "test-secret",
		PayloadType:        "new_order",
		Events:             []domain.EventKey{{UserID: 42, EventType: domain.EventNewOrder, EntityID: "o-1"}},
		Attempt:            attempt,
		MaxRetries:         maxRetries,
		RateLimitPerSecond: 100,
	}
}

func queueLen(t *testing.T, rdb *redis.Client) int64 {
	t.Helper()
	n, err := rdb.ZCard(context.Background(), engine.DeliveryQueueKey).Result()
	if err != nil {
		t.Fatalf("ZCard: %v", err)
	}
	return n
}

func TestDeliver_Success(t *testing.T) {
	var (
		mu       sync.Mutex
		requests int
		gotSig   string
		gotType  string
		gotBody  []byte
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		requests++
		gotSig = r.Header.Get("X-Webhook-Signature")
		gotType = r.Header.Get("X-Webhook-Type")
		gotBody, _ = io.ReadAll(r.Body)
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	st := newFakeStore()
	d, rdb := newTestDeliverer(t, st)
	job := testJob(t, server.URL, 1, 5)

	d.Deliver(context.Background(), job)

	mu.Lock()
	defer mu.Unlock()
	if requests != 1 {
		t.Fatalf("endpoint received %d requests, want 1", requests)
	}
	if gotType != "new_order" {
		t.Errorf("X-Webhook-Type = %s, want new_order", gotType)
	}
	if want := computeHMAC(job.Payload, job.SecretKey); gotSig != want {
		t.Errorf("signature = %s, want %s", gotSig, want)
	}
	if string(gotBody) != string(job.Payload) {
		t.Errorf("delivered body differs from job payload")
	}

	if !st.history[job.Events[0]] {
		t.Error("history entry not written on success")
	}
	attempt := st.lastAttempt(t)
	if attempt.Status != "success" {
		t.Errorf("attempt status = %s, want success", attempt.Status)
	}
	if attempt.HTTPStatusCode == nil || *attempt.HTTPStatusCode != http.StatusOK {
		t.Errorf("attempt status code = %v, want 200", attempt.HTTPStatusCode)
	}
	if n := queueLen(t, rdb); n != 0 {
		t.Errorf("queue should be empty after success, has %d", n)
	}
}

func TestDeliver_FailureRequeuesWithBackoff(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	st := newFakeStore()
	d, rdb := newTestDeliverer(t, st)

	before := time.Now()
	d.Deliver(context.Background(), testJob(t, server.URL, 1, 5))

	if n := queueLen(t, rdb); n != 1 {
		t.Fatalf("expected 1 requeued job, got %d", n)
	}

	entries, err := rdb.ZRangeWithScores(context.Background(), engine.DeliveryQueueKey, 0, -1).Result()
	if err != nil {
		t.Fatalf("ZRangeWithScores: %v", err)
	}
	readyAt := time.UnixMicro(int64(entries[0].Score))
	if readyAt.Before(before.Add(500 * time.Millisecond)) {
		t.Errorf("requeued job ready at %v, want at least ~1s in the future", readyAt)
	}

	var requeued engine.DeliveryJob
	if err := json.Unmarshal([]byte(entries[0].Member.(string)), &requeued); err != nil {
		t.Fatalf("unmarshal requeued job: %v", err)
	}
	if requeued.Attempt != 2 {
		t.Errorf("requeued attempt = %d, want 2", requeued.Attempt)
	}

	attempt := st.lastAttempt(t)
	if attempt.Status != "failed" {
		t.Errorf("attempt status = %s, want failed", attempt.Status)
	}
	if attempt.ErrorMessage == "" {
		t.Error("failed attempt should carry an error message")
	}
	if attempt.NextRetryAt == nil {
		t.Error("failed attempt with retries left should carry next_retry_at")
	}
	if len(st.history) != 0 {
		t.Error("failure must not write history")
	}
}

func TestDeliver_NetworkErrorRequeues(t *testing.T) {
	st := newFakeStore()
	d, rdb := newTestDeliverer(t, st)

	// Nothing listens here.
	d.Deliver(context.Background(), testJob(t, "http://127.0.0.1:1", 1, 5))

	if n := queueLen(t, rdb); n != 1 {
		t.Fatalf("expected 1 requeued job, got %d", n)
	}
	attempt := st.lastAttempt(t)
	if attempt.HTTPStatusCode != nil {
		t.Errorf("network failure should record no status code, got %v", *attempt.HTTPStatusCode)
	}
}

func TestDeliver_ExhaustedGoesToDeadLetter(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	st := newFakeStore()
	d, rdb := newTestDeliverer(t, st)

	d.Deliver(context.Background(), testJob(t, server.URL, 5, 5))

	if n := queueLen(t, rdb); n != 0 {
		t.Errorf("exhausted job must not requeue, queue has %d", n)
	}
	if len(st.deadLetters) != 1 {
		t.Fatalf("expected 1 dead letter, got %d", len(st.deadLetters))
	}
	dl := st.deadLetters[0]
	if dl.NotificationID != "notif-1" || dl.UserID != 42 {
		t.Errorf("dead letter = %+v", dl)
	}
	if dl.TotalAttempts != 5 {
		t.Errorf("total attempts = %d, want 5", dl.TotalAttempts)
	}
	if dl.LastHTTPStatus == nil || *dl.LastHTTPStatus != http.StatusBadGateway {
		t.Errorf("last status = %v, want 502", dl.LastHTTPStatus)
	}
	if len(dl.Payload) == 0 {
		t.Error("dead letter should carry the original payload")
	}

	attempt := st.lastAttempt(t)
	if attempt.NextRetryAt != nil {
		t.Error("final attempt should not schedule a retry")
	}
}

func TestDeliver_HistoryWriteFailureRetries(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	st := newFakeStore()
	st.historyErr = context.DeadlineExceeded
	d, rdb := newTestDeliverer(t, st)

	// The POST landed but the durability point was not reached: the job must
	// come back for another round.
	d.Deliver(context.Background(), testJob(t, server.URL, 1, 5))

	if n := queueLen(t, rdb); n != 1 {
		t.Fatalf("expected requeue after history failure, queue has %d", n)
	}
	attempt := st.lastAttempt(t)
	if attempt.Status != "failed" {
		t.Errorf("attempt status = %s, want failed", attempt.Status)
	}
}

func TestDeliver_RepeatDeliveryIsIdempotent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	st := newFakeStore()
	d, _ := newTestDeliverer(t, st)

	job := testJob(t, server.URL, 1, 5)
	d.Deliver(context.Background(), job)
	d.Deliver(context.Background(), job)

	// Second delivery of the same events finds the history row already there
	// and still completes cleanly.
	if len(st.history) != 1 {
		t.Errorf("history has %d entries, want 1", len(st.history))
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	for _, a := range st.attempts {
		if a.Status != "success" {
			t.Errorf("attempt status = %s, want success", a.Status)
		}
	}
}

func TestComputeHMAC(t *testing.T) {
	payload := []byte(`{"type":"new_order"}`)

	sig1 := computeHMAC(payload, "secret-a")
	sig2 := computeHMAC(payload, "secret-a")
	sig3 := computeHMAC(payload, "secret-b")

	if sig1 != sig2 {
		t.Error("same payload and secret must produce the same signature")
	}
	if sig1 == sig3 {
		t.Error("different secrets must produce different signatures")
	}
	if len(sig1) != 64 {
		t.Errorf("signature length = %d, want 64 hex chars", len(sig1))
	}
}

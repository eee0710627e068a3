package store

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/sellerpulse/notifier/internal/domain"
)

// Both implementations must honor the same contract; exercise them through
// one table.
func kvImplementations(t *testing.T) map[string]KV {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	return map[string]KV{
		"redis":  NewRedisKV(client),
		"memory": NewMemoryKV(),
	}
}

func TestKV_GetSetDelete(t *testing.T) {
	for name, kv := range kvImplementations(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			got, err := kv.Get(ctx, "missing")
			if err != nil || got != nil {
				t.Errorf("Get(missing) = %v, %v, want nil, nil", got, err)
			}

			if err := kv.Set(ctx, "k", []byte("v1"), 0); err != nil {
				t.Fatalf("Set: %v", err)
			}
			got, err = kv.Get(ctx, "k")
			if err != nil || string(got) != "v1" {
				t.Errorf("Get = %q, %v, want v1", got, err)
			}

			if err := kv.Set(ctx, "k", []byte("v2"), 0); err != nil {
				t.Fatalf("Set overwrite: %v", err)
			}
			got, _ = kv.Get(ctx, "k")
			if string(got) != "v2" {
				t.Errorf("Get after overwrite = %q, want v2", got)
			}

			if err := kv.Delete(ctx, "k"); err != nil {
				t.Fatalf("Delete: %v", err)
			}
			got, err = kv.Get(ctx, "k")
			if err != nil || got != nil {
				t.Errorf("Get after delete = %v, %v, want nil, nil", got, err)
			}
		})
	}
}

func TestMemoryKV_TTLExpiry(t *testing.T) {
	kv := NewMemoryKV()
	ctx := context.Background()

	if err := kv.Set(ctx, "k", []byte("v"), 10*time.Millisecond); err != nil {
		t.Fatalf("Set: %v", err)
	}

	got, _ := kv.Get(ctx, "k")
	if string(got) != "v" {
		t.Fatalf("value should be visible before expiry, got %q", got)
	}

	time.Sleep(20 * time.Millisecond)
	got, err := kv.Get(ctx, "k")
	if err != nil || got != nil {
		t.Errorf("Get after expiry = %v, %v, want nil, nil", got, err)
	}
}

func TestMemoryKV_ValueIsolation(t *testing.T) {
	kv := NewMemoryKV()
	ctx := context.Background()

	original := []byte("abc")
	kv.Set(ctx, "k", original, 0)
	original[0] = 'x'

	got, _ := kv.Get(ctx, "k")
	if string(got) != "abc" {
		t.Errorf("stored value mutated through caller's slice: %q", got)
	}

	got[0] = 'y'
	again, _ := kv.Get(ctx, "k")
	if string(again) != "abc" {
		t.Errorf("stored value mutated through returned slice: %q", again)
	}
}

func TestSnapshotStore_RoundTrip(t *testing.T) {
	s := NewSnapshotStore(NewMemoryKV())
	ctx := context.Background()

	got, err := s.GetSnapshot(ctx, 42, domain.EntityOrders)
	if err != nil || got != nil {
		t.Fatalf("GetSnapshot(absent) = %v, %v, want nil, nil", got, err)
	}

	snap := domain.Snapshot{Orders: []domain.OrderRecord{{ID: "o-1", Status: "new", ProductName: "Blue mug"}}}
	if err := s.PutSnapshot(ctx, 42, domain.EntityOrders, snap); err != nil {
		t.Fatalf("PutSnapshot: %v", err)
	}

	got, err = s.GetSnapshot(ctx, 42, domain.EntityOrders)
	if err != nil {
		t.Fatalf("GetSnapshot: %v", err)
	}
	if got == nil || len(got.Orders) != 1 || got.Orders[0].ID != "o-1" {
		t.Errorf("round-tripped snapshot = %+v", got)
	}

	// Keyed per entity type: a stocks lookup for the same user is empty.
	other, err := s.GetSnapshot(ctx, 42, domain.EntityStocks)
	if err != nil || other != nil {
		t.Errorf("GetSnapshot(stocks) = %v, %v, want nil, nil", other, err)
	}
}

package stores

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newPersistentTestStore(t *testing.T) (*PersistentSessions, func()) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis run failed: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := NewPersistentSessions(rdb, "pr", []byte("fedcba9876543210fedcba9876543210"))

	return store, func() {
		_ = rdb.Close()
		mr.Close()
	}
}

const testEmail = "ada@example.com"

func TestConsumeMatchDeletesRow(t *testing.T) {
	store, cleanup := newPersistentTestStore(t)
	defer cleanup()
	ctx := context.Background()

	created := time.Now()
	if err := store.Save(ctx, testEmail, "series-a", "token-1", 7, created, time.Hour); err != nil {
		t.Fatalf("save: %v", err)
	}

	result, err := store.Consume(ctx, testEmail, "series-a", "token-1")
	if err != nil {
		t.Fatalf("consume: %v", err)
	}
	if result.Status != ConsumeMatched {
		t.Fatalf("expected match, got %v", result.Status)
	}
	if result.UserID != 7 {
		t.Fatalf("expected user 7, got %d", result.UserID)
	}
	if result.CreatedAt.Unix() != created.Unix() {
		t.Fatalf("created-at mismatch: %v != %v", result.CreatedAt, created)
	}

	// The row was consumed; the loser of a race sees a miss, never a second
	// success.
	again, err := store.Consume(ctx, testEmail, "series-a", "token-1")
	if err != nil {
		t.Fatalf("second consume: %v", err)
	}
	if again.Status != ConsumeNotFound {
		t.Fatalf("expected not-found after consumption, got %v", again.Status)
	}
}

func TestConsumeMismatchPurgesEverySeries(t *testing.T) {
	store, cleanup := newPersistentTestStore(t)
	defer cleanup()
	ctx := context.Background()

	now := time.Now()
	if err := store.Save(ctx, testEmail, "series-a", "token-1", 7, now, time.Hour); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := store.Save(ctx, testEmail, "series-b", "token-2", 7, now, time.Hour); err != nil {
		t.Fatalf("save: %v", err)
	}

	result, err := store.Consume(ctx, testEmail, "series-a", "wrong-token")
	if err != nil {
		t.Fatalf("consume: %v", err)
	}
	if result.Status != ConsumeReplay {
		t.Fatalf("expected replay, got %v", result.Status)
	}

	count, err := store.Count(ctx, testEmail)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 0 {
		t.Fatalf("replay must delete all rows for the email, %d left", count)
	}
}

func TestConsumeUnknownSeries(t *testing.T) {
	store, cleanup := newPersistentTestStore(t)
	defer cleanup()
	ctx := context.Background()

	result, err := store.Consume(ctx, testEmail, "never-saved", "token-1")
	if err != nil {
		t.Fatalf("consume: %v", err)
	}
	if result.Status != ConsumeNotFound {
		t.Fatalf("expected not-found, got %v", result.Status)
	}
}

func TestSaveReplacesTokenUnderSameSeries(t *testing.T) {
	store, cleanup := newPersistentTestStore(t)
	defer cleanup()
	ctx := context.Background()

	now := time.Now()
	if err := store.Save(ctx, testEmail, "series-a", "token-1", 7, now, time.Hour); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := store.Save(ctx, testEmail, "series-a", "token-2", 7, now, time.Hour); err != nil {
		t.Fatalf("save: %v", err)
	}

	count, err := store.Count(ctx, testEmail)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 1 {
		t.Fatalf("one series must hold one live row, got %d", count)
	}

	old, err := store.Consume(ctx, testEmail, "series-a", "token-1")
	if err != nil {
		t.Fatalf("consume: %v", err)
	}
	if old.Status != ConsumeReplay {
		t.Fatalf("superseded token must read as replay, got %v", old.Status)
	}
}

func TestDeleteSeries(t *testing.T) {
	store, cleanup := newPersistentTestStore(t)
	defer cleanup()
	ctx := context.Background()

	now := time.Now()
	if err := store.Save(ctx, testEmail, "series-a", "token-1", 7, now, time.Hour); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := store.Save(ctx, testEmail, "series-b", "token-2", 7, now, time.Hour); err != nil {
		t.Fatalf("save: %v", err)
	}

	if err := store.DeleteSeries(ctx, testEmail, "series-a"); err != nil {
		t.Fatalf("delete: %v", err)
	}

	count, err := store.Count(ctx, testEmail)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected the other series to survive, got %d", count)
	}

	result, err := store.Consume(ctx, testEmail, "series-b", "token-2")
	if err != nil {
		t.Fatalf("consume: %v", err)
	}
	if result.Status != ConsumeMatched {
		t.Fatalf("surviving series must still match, got %v", result.Status)
	}
}

func TestRowsExpireWithTTL(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis run failed: %v", err)
	}
	defer mr.Close()
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	store := NewPersistentSessions(rdb, "pr", []byte("fedcba9876543210fedcba9876543210"))
	ctx := context.Background()

	if err := store.Save(ctx, testEmail, "series-a", "token-1", 7, time.Now(), time.Minute); err != nil {
		t.Fatalf("save: %v", err)
	}

	mr.FastForward(2 * time.Minute)

	result, err := store.Consume(ctx, testEmail, "series-a", "token-1")
	if err != nil {
		t.Fatalf("consume: %v", err)
	}
	if result.Status != ConsumeNotFound {
		t.Fatalf("expired row must miss, got %v", result.Status)
	}
}

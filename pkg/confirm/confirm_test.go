package confirm

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
)

func newTestBroker(t *testing.T) *Broker {
	t.Helper()
	return NewBroker(NewMemoryStore(), &Config{
		TTL:       5 * time.Minute,
		Retention: 24 * time.Hour,
	})
}

func TestBroker_IssueValidateRoundtrip(t *testing.T) {
	b := newTestBroker(t)
	ctx := context.Background()

	token, err := b.Issue(ctx, "fp-1")
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}
	if !strings.HasPrefix(token.Value, "conf_") {
		t.Errorf("token value %q missing conf_ prefix", token.Value)
	}
	if len(token.Value) != len("conf_")+32 {
		t.Errorf("token value length = %d, want %d", len(token.Value), len("conf_")+32)
	}
	if token.ID == "" {
		t.Error("token ID is empty")
	}

	consumed, err := b.Validate(ctx, token.Value, "fp-1")
	if err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	if !consumed.Consumed {
		t.Error("returned token not marked consumed")
	}
	if consumed.ConsumedAt.IsZero() {
		t.Error("ConsumedAt not set")
	}
}

func TestBroker_SingleUse(t *testing.T) {
	b := newTestBroker(t)
	ctx := context.Background()

	token, err := b.Issue(ctx, "fp-1")
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}

	if _, err := b.Validate(ctx, token.Value, "fp-1"); err != nil {
		t.Fatalf("first Validate failed: %v", err)
	}
	if _, err := b.Validate(ctx, token.Value, "fp-1"); !errors.Is(err, ErrTokenConsumed) {
		t.Errorf("second Validate error = %v, want ErrTokenConsumed", err)
	}
}

func TestBroker_FingerprintMismatch(t *testing.T) {
	b := newTestBroker(t)
	ctx := context.Background()

	token, err := b.Issue(ctx, "fp-original")
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}

	if _, err := b.Validate(ctx, token.Value, "fp-modified"); !errors.Is(err, ErrFingerprintMismatch) {
		t.Errorf("Validate error = %v, want ErrFingerprintMismatch", err)
	}

	// The mismatch must not consume the token.
	if _, err := b.Validate(ctx, token.Value, "fp-original"); err != nil {
		t.Errorf("Validate with correct fingerprint after mismatch failed: %v", err)
	}
}

func TestBroker_Expiry(t *testing.T) {
	b := newTestBroker(t)
	ctx := context.Background()

	token, err := b.Issue(ctx, "fp-1")
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}

	b.now = func() time.Time { return time.Now().Add(6 * time.Minute) }

	if _, err := b.Validate(ctx, token.Value, "fp-1"); !errors.Is(err, ErrTokenExpired) {
		t.Errorf("Validate error = %v, want ErrTokenExpired", err)
	}
}

func TestBroker_UnknownToken(t *testing.T) {
	b := newTestBroker(t)

	if _, err := b.Validate(context.Background(), "conf_deadbeef", "fp-1"); !errors.Is(err, ErrTokenNotFound) {
		t.Errorf("Validate error = %v, want ErrTokenNotFound", err)
	}
}

func TestBroker_ConcurrentConsume(t *testing.T) {
	b := newTestBroker(t)
	ctx := context.Background()

	token, err := b.Issue(ctx, "fp-1")
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}

	const workers = 50
	var (
		wg        sync.WaitGroup
		successes int64
		consumed  int64
		mu        sync.Mutex
	)

	start := make(chan struct{})
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := b.Validate(ctx, token.Value, "fp-1")
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case errors.Is(err, ErrTokenConsumed):
				consumed++
			default:
				t.Errorf("unexpected Validate error: %v", err)
			}
		}()
	}
	close(start)
	wg.Wait()

	if successes != 1 {
		t.Errorf("got %d successes, want exactly 1", successes)
	}
	if consumed != workers-1 {
		t.Errorf("got %d ErrTokenConsumed, want %d", consumed, workers-1)
	}
}

func TestBroker_UniqueValues(t *testing.T) {
	b := newTestBroker(t)
	ctx := context.Background()

	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		token, err := b.Issue(ctx, "fp-1")
		if err != nil {
			t.Fatalf("Issue failed: %v", err)
		}
		if seen[token.Value] {
			t.Fatalf("duplicate token value %q", token.Value)
		}
		seen[token.Value] = true
	}
}

func TestMemoryStore_Purge(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	now := time.Now()

	old, err := newToken("fp-old", time.Minute, now.Add(-48*time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	live, err := newToken("fp-live", 5*time.Minute, now)
	if err != nil {
		t.Fatal(err)
	}
	if err := store.Put(ctx, old); err != nil {
		t.Fatal(err)
	}
	if err := store.Put(ctx, live); err != nil {
		t.Fatal(err)
	}

	removed, err := store.Purge(ctx, now.Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("Purge failed: %v", err)
	}
	if removed != 1 {
		t.Errorf("Purge removed %d, want 1", removed)
	}

	if _, err := store.Get(ctx, old.Value); !errors.Is(err, ErrTokenNotFound) {
		t.Errorf("old token still present, err = %v", err)
	}
	if _, err := store.Get(ctx, live.Value); err != nil {
		t.Errorf("live token removed: %v", err)
	}
}

func TestSQLiteStore_ConsumeLifecycle(t *testing.T) {
	store, err := NewSQLiteStore(t.TempDir() + "/tokens.db")
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	now := time.Now()

	token, err := newToken("fp-1", 5*time.Minute, now)
	if err != nil {
		t.Fatal(err)
	}
	if err := store.Put(ctx, token); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	got, err := store.Consume(ctx, token.Value, "fp-1", now)
	if err != nil {
		t.Fatalf("Consume failed: %v", err)
	}
	if !got.Consumed {
		t.Error("consumed token not marked")
	}

	if _, err := store.Consume(ctx, token.Value, "fp-1", now); !errors.Is(err, ErrTokenConsumed) {
		t.Errorf("second Consume error = %v, want ErrTokenConsumed", err)
	}
}

func TestSQLiteStore_ConcurrentConsume(t *testing.T) {
	store, err := NewSQLiteStore(t.TempDir() + "/tokens.db")
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	now := time.Now()

	token, err := newToken("fp-1", 5*time.Minute, now)
	if err != nil {
		t.Fatal(err)
	}
	if err := store.Put(ctx, token); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	const workers = 20
	var (
		wg        sync.WaitGroup
		successes int64
		mu        sync.Mutex
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := store.Consume(ctx, token.Value, "fp-1", now); err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if successes != 1 {
		t.Errorf("got %d successes, want exactly 1", successes)
	}
}

package tokencache

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestGetTokenCachesUntilExpiry(t *testing.T) {
	cache := New(nil, zap.NewNop())
	calls := 0
	fetch := func(ctx context.Context) (string, time.Duration, error) {
		calls++
		return "tok-1", 10 * time.Minute, nil
	}

	for i := 0; i < 3; i++ {
		token, err := cache.GetToken(context.Background(), "paypal:client", fetch)
		if err != nil {
			t.Fatalf("GetToken error: %v", err)
		}
		if token != "tok-1" {
			t.Fatalf("expected tok-1, got %q", token)
		}
	}
	if calls != 1 {
		t.Fatalf("expected a single fetch, got %d", calls)
	}
}

func TestGetTokenShortTTLNotPinned(t *testing.T) {
	cache := New(nil, zap.NewNop())
	calls := 0
	fetch := func(ctx context.Context) (string, time.Duration, error) {
		calls++
		return "tok", 30 * time.Second, nil
	}

	if _, err := cache.GetToken(context.Background(), "k", fetch); err != nil {
		t.Fatalf("GetToken error: %v", err)
	}

	// TTL below the skew collapses to one second.
	cache.mu.Lock()
	entry := cache.local["k"]
	cache.mu.Unlock()
	if until := time.Until(entry.expiresAt); until > 2*time.Second {
		t.Fatalf("expected near-immediate expiry, got %v", until)
	}
}

func TestGetTokenFetchError(t *testing.T) {
	cache := New(nil, zap.NewNop())
	wantErr := errors.New("provider down")
	_, err := cache.GetToken(context.Background(), "k", func(ctx context.Context) (string, time.Duration, error) {
		return "", 0, wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Fatalf("expected fetch error, got %v", err)
	}
}

func TestInvalidateForcesRefetch(t *testing.T) {
	cache := New(nil, zap.NewNop())
	calls := 0
	fetch := func(ctx context.Context) (string, time.Duration, error) {
		calls++
		return "tok", 10 * time.Minute, nil
	}

	if _, err := cache.GetToken(context.Background(), "k", fetch); err != nil {
		t.Fatalf("GetToken error: %v", err)
	}
	cache.Invalidate(context.Background(), "k")
	if _, err := cache.GetToken(context.Background(), "k", fetch); err != nil {
		t.Fatalf("GetToken error: %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected refetch after invalidate, got %d calls", calls)
	}
}

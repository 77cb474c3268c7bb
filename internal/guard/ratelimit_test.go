package guard_test

import (
	"context"
	"testing"
	"time"

	"github.com/nhle/travelbot/internal/guard"
	"github.com/nhle/travelbot/internal/store"
)

func TestRateLimiterCapsRepliesPerWindow(t *testing.T) {
	ctx := context.Background()
	limiter := guard.NewRateLimiter(store.NewMemoryStore(), 3, time.Hour)

	for i := 0; i < 3; i++ {
		ok, _, err := limiter.Allow(ctx, "alice@example.com")
		if err != nil {
			t.Fatalf("allow: %v", err)
		}
		if !ok {
			t.Fatalf("reply %d should be allowed", i+1)
		}
		if err := limiter.Record(ctx, "alice@example.com"); err != nil {
			t.Fatalf("record: %v", err)
		}
	}

	ok, reason, err := limiter.Allow(ctx, "alice@example.com")
	if err != nil {
		t.Fatalf("allow: %v", err)
	}
	if ok {
		t.Fatal("fourth reply within the window should be rejected")
	}
	if reason == "" {
		t.Fatal("expected a rejection reason")
	}
}

func TestRateLimiterWindowExpiry(t *testing.T) {
	ctx := context.Background()
	limiter := guard.NewRateLimiter(store.NewMemoryStore(), 3, time.Hour)

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	limiter.SetNowFunc(func() time.Time { return now })

	for i := 0; i < 3; i++ {
		if err := limiter.Record(ctx, "alice@example.com"); err != nil {
			t.Fatalf("record: %v", err)
		}
	}
	if ok, _, _ := limiter.Allow(ctx, "alice@example.com"); ok {
		t.Fatal("budget should be exhausted")
	}

	now = now.Add(time.Hour + time.Minute)
	ok, _, err := limiter.Allow(ctx, "alice@example.com")
	if err != nil {
		t.Fatalf("allow: %v", err)
	}
	if !ok {
		t.Fatal("replies outside the window should not count")
	}
}

func TestRateLimiterIsPerRecipient(t *testing.T) {
	ctx := context.Background()
	limiter := guard.NewRateLimiter(store.NewMemoryStore(), 1, time.Hour)

	if err := limiter.Record(ctx, "alice@example.com"); err != nil {
		t.Fatalf("record: %v", err)
	}
	if ok, _, _ := limiter.Allow(ctx, "alice@example.com"); ok {
		t.Fatal("alice should be over budget")
	}
	if ok, _, _ := limiter.Allow(ctx, "bob@example.com"); !ok {
		t.Fatal("bob should be unaffected")
	}
}

func TestRateLimiterNormalizesRecipient(t *testing.T) {
	ctx := context.Background()
	limiter := guard.NewRateLimiter(store.NewMemoryStore(), 1, time.Hour)

	if err := limiter.Record(ctx, "Alice <ALICE@example.com>"); err != nil {
		t.Fatalf("record: %v", err)
	}
	if ok, _, _ := limiter.Allow(ctx, "alice@example.com"); ok {
		t.Fatal("display name and case should not bypass the limit")
	}
}

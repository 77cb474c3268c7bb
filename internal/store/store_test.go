package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/nhle/travelbot/internal/model"
	"github.com/nhle/travelbot/internal/store"
)

// newTestSQLite creates an in-memory SQLiteStore with all migrations
// applied, closed automatically when the test completes.
func newTestSQLite(t *testing.T) *store.SQLiteStore {
	t.Helper()

	s, err := store.NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("creating test store: %v", err)
	}
	t.Cleanup(func() {
		if err := s.Close(); err != nil {
			t.Errorf("closing test store: %v", err)
		}
	})
	return s
}

// backends runs a subtest against both store implementations.
func backends(t *testing.T, fn func(t *testing.T, s store.Store)) {
	t.Run("memory", func(t *testing.T) {
		fn(t, store.NewMemoryStore())
	})
	t.Run("sqlite", func(t *testing.T) {
		fn(t, newTestSQLite(t))
	})
}

func TestAttemptRoundTrip(t *testing.T) {
	backends(t, func(t *testing.T, s store.Store) {
		ctx := context.Background()

		rec, err := s.GetAttempt(ctx, "missing")
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if rec != nil {
			t.Fatal("absent record should be nil")
		}

		want := model.AttemptRecord{
			MessageID:   "m1",
			Count:       2,
			LastAttempt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
			LastReason:  "request timeout",
		}
		if err := s.PutAttempt(ctx, want); err != nil {
			t.Fatalf("put: %v", err)
		}

		got, err := s.GetAttempt(ctx, "m1")
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if got == nil {
			t.Fatal("record not found")
		}
		if got.Count != want.Count || got.LastReason != want.LastReason {
			t.Fatalf("got %+v, want %+v", got, want)
		}
		if !got.LastAttempt.Equal(want.LastAttempt) {
			t.Fatalf("last attempt %v, want %v", got.LastAttempt, want.LastAttempt)
		}
	})
}

func TestAttemptUpsert(t *testing.T) {
	backends(t, func(t *testing.T, s store.Store) {
		ctx := context.Background()

		rec := model.AttemptRecord{MessageID: "m1", Count: 1, LastAttempt: time.Now().UTC()}
		if err := s.PutAttempt(ctx, rec); err != nil {
			t.Fatalf("put: %v", err)
		}
		rec.Count = 2
		rec.LastReason = "second failure"
		if err := s.PutAttempt(ctx, rec); err != nil {
			t.Fatalf("second put: %v", err)
		}

		got, err := s.GetAttempt(ctx, "m1")
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if got.Count != 2 || got.LastReason != "second failure" {
			t.Fatalf("got %+v", got)
		}
	})
}

func TestClearAttempt(t *testing.T) {
	backends(t, func(t *testing.T, s store.Store) {
		ctx := context.Background()

		if err := s.PutAttempt(ctx, model.AttemptRecord{MessageID: "m1", Count: 1, LastAttempt: time.Now().UTC()}); err != nil {
			t.Fatalf("put: %v", err)
		}
		if err := s.ClearAttempt(ctx, "m1"); err != nil {
			t.Fatalf("clear: %v", err)
		}
		if rec, _ := s.GetAttempt(ctx, "m1"); rec != nil {
			t.Fatal("record should be gone")
		}

		// Clearing an absent record is not an error.
		if err := s.ClearAttempt(ctx, "m1"); err != nil {
			t.Fatalf("second clear: %v", err)
		}
	})
}

func TestReplyLedgerWindow(t *testing.T) {
	backends(t, func(t *testing.T, s store.Store) {
		ctx := context.Background()
		base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

		for i := 0; i < 3; i++ {
			if err := s.RecordReply(ctx, "alice@example.com", base.Add(time.Duration(i)*time.Minute)); err != nil {
				t.Fatalf("record: %v", err)
			}
		}
		if err := s.RecordReply(ctx, "bob@example.com", base); err != nil {
			t.Fatalf("record: %v", err)
		}

		count, err := s.CountReplies(ctx, "alice@example.com", base.Add(-time.Hour))
		if err != nil {
			t.Fatalf("count: %v", err)
		}
		if count != 3 {
			t.Fatalf("count %d, want 3", count)
		}

		// Only entries at or after the cutoff count.
		count, err = s.CountReplies(ctx, "alice@example.com", base.Add(30*time.Second))
		if err != nil {
			t.Fatalf("count: %v", err)
		}
		if count != 2 {
			t.Fatalf("count %d, want 2", count)
		}

		count, err = s.CountReplies(ctx, "bob@example.com", base.Add(-time.Hour))
		if err != nil {
			t.Fatalf("count: %v", err)
		}
		if count != 1 {
			t.Fatalf("count %d, want 1", count)
		}
	})
}

func TestCountRepliesPrunesExpired(t *testing.T) {
	backends(t, func(t *testing.T, s store.Store) {
		ctx := context.Background()
		base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

		if err := s.RecordReply(ctx, "alice@example.com", base.Add(-2*time.Hour)); err != nil {
			t.Fatalf("record: %v", err)
		}
		if err := s.RecordReply(ctx, "alice@example.com", base); err != nil {
			t.Fatalf("record: %v", err)
		}

		count, err := s.CountReplies(ctx, "alice@example.com", base.Add(-time.Hour))
		if err != nil {
			t.Fatalf("count: %v", err)
		}
		if count != 1 {
			t.Fatalf("count %d, want 1", count)
		}
	})
}

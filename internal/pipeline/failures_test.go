package pipeline_test

import (
	"context"
	"testing"

	"github.com/rs/zerolog"

	"github.com/nhle/travelbot/internal/pipeline"
	"github.com/nhle/travelbot/internal/store"
)

func TestTrackerPoisonsAtBudget(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	tracker := pipeline.NewFailureTracker(st, 3, false, zerolog.Nop())

	for i := 0; i < 2; i++ {
		d := tracker.RecordFailure(ctx, "m1", "timeout", pipeline.ClassTransient)
		if d != pipeline.DecisionRetry {
			t.Fatalf("failure %d: expected retry", i+1)
		}
	}
	if d := tracker.RecordFailure(ctx, "m1", "timeout", pipeline.ClassTransient); d != pipeline.DecisionPoison {
		t.Fatal("third failure should poison")
	}
}

func TestTrackerPermanentPoisonsImmediately(t *testing.T) {
	ctx := context.Background()
	tracker := pipeline.NewFailureTracker(store.NewMemoryStore(), 3, false, zerolog.Nop())

	if d := tracker.RecordFailure(ctx, "m1", "unsupported input", pipeline.ClassPermanent); d != pipeline.DecisionPoison {
		t.Fatal("permanent failure should poison on first occurrence")
	}
}

func TestTrackerParsePoisonShortcut(t *testing.T) {
	ctx := context.Background()
	tracker := pipeline.NewFailureTracker(store.NewMemoryStore(), 5, true, zerolog.Nop())

	if d := tracker.RecordFailure(ctx, "m1", "malformed reasoning output: no parseable JSON object", pipeline.ClassParse); d != pipeline.DecisionRetry {
		t.Fatal("first parse failure should retry")
	}
	if d := tracker.RecordFailure(ctx, "m1", "malformed reasoning output: no parseable JSON object", pipeline.ClassParse); d != pipeline.DecisionPoison {
		t.Fatal("repeated identical parse failure should poison")
	}
}

func TestTrackerParseFailureCountsNormallyWhenDisabled(t *testing.T) {
	ctx := context.Background()
	tracker := pipeline.NewFailureTracker(store.NewMemoryStore(), 3, false, zerolog.Nop())

	reason := "malformed reasoning output: empty response"
	if d := tracker.RecordFailure(ctx, "m1", reason, pipeline.ClassParse); d != pipeline.DecisionRetry {
		t.Fatal("first parse failure should retry")
	}
	if d := tracker.RecordFailure(ctx, "m1", reason, pipeline.ClassParse); d != pipeline.DecisionRetry {
		t.Fatal("second parse failure should still retry with the shortcut disabled")
	}
	if d := tracker.RecordFailure(ctx, "m1", reason, pipeline.ClassParse); d != pipeline.DecisionPoison {
		t.Fatal("budget exhaustion should poison")
	}
}

func TestTrackerSuccessResetsCount(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	tracker := pipeline.NewFailureTracker(st, 3, false, zerolog.Nop())

	tracker.RecordFailure(ctx, "m1", "timeout", pipeline.ClassTransient)
	tracker.RecordFailure(ctx, "m1", "timeout", pipeline.ClassTransient)
	tracker.RecordSuccess(ctx, "m1")

	rec, err := st.GetAttempt(ctx, "m1")
	if err != nil {
		t.Fatalf("get attempt: %v", err)
	}
	if rec != nil {
		t.Fatalf("attempt record should be cleared, got count %d", rec.Count)
	}

	if d := tracker.RecordFailure(ctx, "m1", "timeout", pipeline.ClassTransient); d != pipeline.DecisionRetry {
		t.Fatal("count should restart after a success")
	}
}

func TestTrackerIndependentPerMessage(t *testing.T) {
	ctx := context.Background()
	tracker := pipeline.NewFailureTracker(store.NewMemoryStore(), 2, false, zerolog.Nop())

	tracker.RecordFailure(ctx, "m1", "timeout", pipeline.ClassTransient)
	if d := tracker.RecordFailure(ctx, "m2", "timeout", pipeline.ClassTransient); d != pipeline.DecisionRetry {
		t.Fatal("m2 should have its own budget")
	}
}

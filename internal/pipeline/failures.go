package pipeline

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/nhle/travelbot/internal/model"
	"github.com/nhle/travelbot/internal/store"
)

// Decision is the tracker's verdict after recording one failure.
type Decision int

const (
	// DecisionRetry leaves the message unacknowledged so the next
	// monitor cycle offers it again.
	DecisionRetry Decision = iota

	// DecisionPoison tells the pipeline to send the fallback reply if
	// still permitted, acknowledge the message, and clear its record.
	DecisionPoison
)

// FailureTracker centralizes retry-count accounting. Every transient
// and permanent failure is routed through it before the pipeline
// returns, so no step duplicates the bookkeeping.
type FailureTracker struct {
	store        store.Store
	maxAttempts  int
	parsePoisons bool
	now          func() time.Time
	logger       zerolog.Logger
}

// NewFailureTracker creates a tracker that poisons a message once its
// failed-attempt count reaches maxAttempts. When parsePoisons is set,
// a second consecutive identical parse failure poisons immediately.
func NewFailureTracker(s store.Store, maxAttempts int, parsePoisons bool, logger zerolog.Logger) *FailureTracker {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &FailureTracker{
		store:        s,
		maxAttempts:  maxAttempts,
		parsePoisons: parsePoisons,
		now:          time.Now,
		logger:       logger.With().Str("component", "failure_tracker").Logger(),
	}
}

// RecordFailure increments the attempt record for the message and
// decides whether the caller should retry or poison. A permanent class
// bypasses the budget entirely. The attempt count never decreases
// until the record is cleared, and a count at or above the budget can
// only yield poison.
func (t *FailureTracker) RecordFailure(
	ctx context.Context, messageID, reason string, class FailureClass,
) Decision {
	rec, err := t.store.GetAttempt(ctx, messageID)
	if err != nil {
		t.logger.Error().Str("message_id", messageID).Err(err).
			Msg("reading attempt record, assuming first failure")
	}
	if rec == nil {
		rec = &model.AttemptRecord{MessageID: messageID}
	}

	repeatedParse := class == ClassParse && t.parsePoisons &&
		rec.Count > 0 && rec.LastReason == reason

	rec.Count++
	rec.LastAttempt = t.now()
	rec.LastReason = reason

	if err := t.store.PutAttempt(ctx, *rec); err != nil {
		t.logger.Error().Str("message_id", messageID).Err(err).
			Msg("persisting attempt record")
	}

	switch {
	case class == ClassPermanent:
		t.logger.Warn().Str("message_id", messageID).Str("reason", reason).
			Msg("permanent failure, poisoning without retry")
		return DecisionPoison
	case repeatedParse:
		t.logger.Warn().Str("message_id", messageID).Str("reason", reason).
			Msg("repeated identical parse failure, poisoning")
		return DecisionPoison
	case rec.Count >= t.maxAttempts:
		t.logger.Warn().Str("message_id", messageID).
			Int("attempts", rec.Count).
			Msg("retry budget exhausted, poisoning")
		return DecisionPoison
	default:
		t.logger.Info().Str("message_id", messageID).
			Int("attempts", rec.Count).
			Int("max_attempts", t.maxAttempts).
			Str("reason", reason).
			Msg("transient failure recorded, will retry")
		return DecisionRetry
	}
}

// RecordSuccess clears the attempt history for a message; a success
// after earlier transient failures resets it.
func (t *FailureTracker) RecordSuccess(ctx context.Context, messageID string) {
	if err := t.store.ClearAttempt(ctx, messageID); err != nil {
		t.logger.Error().Str("message_id", messageID).Err(err).
			Msg("clearing attempt record")
	}
}

// Clear removes the attempt record after a terminal poison outcome.
func (t *FailureTracker) Clear(ctx context.Context, messageID string) {
	if err := t.store.ClearAttempt(ctx, messageID); err != nil {
		t.logger.Error().Str("message_id", messageID).Err(err).
			Msg("clearing attempt record")
	}
}

// SetNowFunc overrides the tracker's clock. Test use only.
func (t *FailureTracker) SetNowFunc(now func() time.Time) {
	t.now = now
}

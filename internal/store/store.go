package store

import (
	"context"
	"time"

	"github.com/nhle/travelbot/internal/model"
)

// Store persists the daemon's retry and rate-limit state: one attempt
// record per in-flight message and a ledger of sent-reply timestamps
// per normalized recipient.
//
// The default backend is in-memory with process lifetime. The SQLite
// backend survives restarts; entries expire by TTL on access, there is
// no background sweep.
type Store interface {
	// GetAttempt returns the attempt record for a message id, or nil
	// when no failure has been recorded.
	GetAttempt(ctx context.Context, messageID string) (*model.AttemptRecord, error)

	// PutAttempt inserts or replaces the attempt record for a message.
	PutAttempt(ctx context.Context, rec model.AttemptRecord) error

	// ClearAttempt deletes the attempt record for a message. Clearing
	// an absent record is a no-op.
	ClearAttempt(ctx context.Context, messageID string) error

	// CountReplies returns how many replies were recorded for the
	// recipient at or after since. Older ledger entries are pruned.
	CountReplies(ctx context.Context, recipient string, since time.Time) (int, error)

	// RecordReply appends a reply timestamp for the recipient.
	RecordReply(ctx context.Context, recipient string, at time.Time) error

	Close() error
}

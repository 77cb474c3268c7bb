package guard

import (
	"context"
	"fmt"
	"time"

	"github.com/nhle/travelbot/internal/store"
)

// RateLimiter caps how many replies one recipient may receive within a
// trailing window. It is the second line of defense: it holds even when
// the content classifier under-detects a loop. The check runs at send
// time, not intake time, because a message can be reclassified as
// repliable only after the reasoning output confirms travel content.
type RateLimiter struct {
	store  store.Store
	max    int
	window time.Duration
	now    func() time.Time
}

// NewRateLimiter creates a limiter allowing max replies per recipient
// within the given window, backed by the supplied store.
func NewRateLimiter(s store.Store, max int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		store:  s,
		max:    max,
		window: window,
		now:    time.Now,
	}
}

// Allow reports whether a reply to the recipient is currently
// permitted. It does not record a send.
func (r *RateLimiter) Allow(ctx context.Context, recipient string) (bool, string, error) {
	addr := normalizeAddress(recipient)
	since := r.now().Add(-r.window)

	count, err := r.store.CountReplies(ctx, addr, since)
	if err != nil {
		return false, "", fmt.Errorf("consulting reply ledger: %w", err)
	}

	if count >= r.max {
		return false, fmt.Sprintf(
			"rate limit exceeded: %d replies to %s in %s", count, addr, r.window,
		), nil
	}
	return true, "", nil
}

// Record notes that a reply was sent to the recipient now.
func (r *RateLimiter) Record(ctx context.Context, recipient string) error {
	return r.store.RecordReply(ctx, normalizeAddress(recipient), r.now())
}

// SetNowFunc overrides the limiter's clock. Test use only.
func (r *RateLimiter) SetNowFunc(now func() time.Time) {
	r.now = now
}

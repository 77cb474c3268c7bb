package store

import (
	"context"
	"sync"
	"time"

	"github.com/nhle/travelbot/internal/model"
)

// MemoryStore keeps attempt records and the reply ledger in process
// memory. All state is lost on restart, which is the documented default
// behavior for the daemon.
type MemoryStore struct {
	mu       sync.Mutex
	attempts map[string]model.AttemptRecord
	replies  map[string][]time.Time
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		attempts: make(map[string]model.AttemptRecord),
		replies:  make(map[string][]time.Time),
	}
}

func (s *MemoryStore) GetAttempt(_ context.Context, messageID string) (*model.AttemptRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.attempts[messageID]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (s *MemoryStore) PutAttempt(_ context.Context, rec model.AttemptRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.attempts[rec.MessageID] = rec
	return nil
}

func (s *MemoryStore) ClearAttempt(_ context.Context, messageID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.attempts, messageID)
	return nil
}

func (s *MemoryStore) CountReplies(_ context.Context, recipient string, since time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	history := s.replies[recipient]
	kept := history[:0]
	for _, t := range history {
		if !t.Before(since) {
			kept = append(kept, t)
		}
	}
	if len(kept) == 0 {
		delete(s.replies, recipient)
	} else {
		s.replies[recipient] = kept
	}

	return len(kept), nil
}

func (s *MemoryStore) RecordReply(_ context.Context, recipient string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.replies[recipient] = append(s.replies[recipient], at)
	return nil
}

func (s *MemoryStore) Close() error {
	return nil
}

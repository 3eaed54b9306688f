package protocol

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// InMemoryStore keeps the messages sent in response to each request, keyed
// by the request's msg_id. The kernel checks reply ordering against it.
type InMemoryStore struct {
	mu       sync.RWMutex
	byParent map[string][]Message
	overall  []Message
	limit    int
}

// NewInMemoryStore creates a store that keeps at most limit messages
// overall. limit <= 0 keeps everything.
func NewInMemoryStore(limit int) *InMemoryStore {
	return &InMemoryStore{
		byParent: make(map[string][]Message),
		overall:  make([]Message, 0),
		limit:    limit,
	}
}

// Append records one sent message under its parent's msg_id.
func (s *InMemoryStore) Append(_ context.Context, msg Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	parentID := msg.ParentHeader.MsgID
	s.byParent[parentID] = append(s.byParent[parentID], msg)
	s.overall = append(s.overall, msg)
	if s.limit > 0 && len(s.overall) > s.limit {
		s.overall = s.overall[len(s.overall)-s.limit:]
	}
	return nil
}

// ListByParent returns the messages sent for one request, in send order.
func (s *InMemoryStore) ListByParent(_ context.Context, parentID string) ([]Message, error) {
	parentID = strings.TrimSpace(parentID)
	if parentID == "" {
		return nil, fmt.Errorf("parent msg_id must not be empty")
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	items := s.byParent[parentID]
	out := make([]Message, len(items))
	copy(out, items)
	return out, nil
}

// Forget drops the messages recorded for one request.
func (s *InMemoryStore) Forget(parentID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.byParent, parentID)
}

// All returns every retained message, oldest first.
func (s *InMemoryStore) All() []Message {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Message, len(s.overall))
	copy(out, s.overall)
	return out
}

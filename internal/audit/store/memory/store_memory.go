package memory

import (
	"context"
	"sync"

	"realreview/internal/audit"
	id "realreview/pkg/domain"
)

type InMemoryStore struct {
	mu     sync.RWMutex
	events map[id.ImageID][]audit.ModerationEvent
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{events: make(map[id.ImageID][]audit.ModerationEvent)}
}

func (s *InMemoryStore) Append(_ context.Context, event *audit.ModerationEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events[event.ImageID] = append(s.events[event.ImageID], *event)
	return nil
}

// ListByImage returns the events for an image in the order they were appended.
func (s *InMemoryStore) ListByImage(_ context.Context, imageID id.ImageID) ([]*audit.ModerationEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stored := s.events[imageID]
	out := make([]*audit.ModerationEvent, 0, len(stored))
	for i := range stored {
		ev := stored[i]
		out = append(out, &ev)
	}
	return out, nil
}

package user

import (
	"context"
	"fmt"
	"sync"

	"realreview/internal/auth/models"
	id "realreview/pkg/domain"
	"realreview/pkg/platform/sentinel"
)

// InMemoryUserStore keeps users keyed by ID with an email index.
type InMemoryUserStore struct {
	mu      sync.RWMutex
	users   map[id.UserID]*models.User
	byEmail map[string]id.UserID
}

func New() *InMemoryUserStore {
	return &InMemoryUserStore{
		users:   make(map[id.UserID]*models.User),
		byEmail: make(map[string]id.UserID),
	}
}

// CreateIfEmailAvailable inserts user unless its email is taken.
func (s *InMemoryUserStore) CreateIfEmailAvailable(_ context.Context, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, taken := s.byEmail[user.Email]; taken {
		return fmt.Errorf("email %q: %w", user.Email, sentinel.ErrAlreadyUsed)
	}
	if _, exists := s.users[user.ID]; exists {
		return fmt.Errorf("user id: %w", sentinel.ErrAlreadyUsed)
	}
	stored := *user
	s.users[user.ID] = &stored
	s.byEmail[user.Email] = user.ID
	return nil
}

func (s *InMemoryUserStore) FindByID(_ context.Context, userID id.UserID) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[userID]
	if !ok {
		return nil, fmt.Errorf("user %s: %w", userID, sentinel.ErrNotFound)
	}
	found := *u
	return &found, nil
}

func (s *InMemoryUserStore) FindByEmail(_ context.Context, email string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	userID, ok := s.byEmail[email]
	if !ok {
		return nil, fmt.Errorf("user by email: %w", sentinel.ErrNotFound)
	}
	found := *s.users[userID]
	return &found, nil
}

// UpdateRole changes a user's role.
func (s *InMemoryUserStore) UpdateRole(_ context.Context, userID id.UserID, role id.Role) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[userID]
	if !ok {
		return fmt.Errorf("user %s: %w", userID, sentinel.ErrNotFound)
	}
	u.Role = role
	return nil
}

package identity

import (
	"context"
	"sync"

	"github.com/mmynk/splitclaim/internal/models"
)

// Ensure MemoryStore implements Store
var _ Store = (*MemoryStore)(nil)

// MemoryStore keeps the identity in memory. It is lost when the process exits.
type MemoryStore struct {
	mu   sync.Mutex
	user *models.User
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Read implements Store.
func (s *MemoryStore) Read(ctx context.Context) (*models.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.user == nil {
		return nil, nil
	}
	user := *s.user
	return &user, nil
}

// Write implements Store.
func (s *MemoryStore) Write(ctx context.Context, user models.User) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.user = &user
	return nil
}

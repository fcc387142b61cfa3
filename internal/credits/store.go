package credits

import (
	"context"
	"fmt"
	"sync"
)

// Store persists per-user balances. Implementations must make Apply
// atomic: either every balance field commits or none do.
type Store interface {
	Balances(ctx context.Context, userID string) (Balances, error)
	Apply(ctx context.Context, userID string, split Split) error
}

// MemStore is an in-memory Store for tests and for unmetered or
// single-process use.
type MemStore struct {
	mu    sync.Mutex
	users map[string]Balances
}

// NewMemStore seeds an in-memory store with the given balances.
func NewMemStore(users map[string]Balances) *MemStore {
	m := make(map[string]Balances, len(users))
	for k, v := range users {
		m[k] = v
	}
	return &MemStore{users: m}
}

func (s *MemStore) Balances(_ context.Context, userID string) (Balances, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.users[userID]
	if !ok {
		return Balances{}, fmt.Errorf("unknown user %q", userID)
	}
	return b, nil
}

func (s *MemStore) Apply(_ context.Context, userID string, split Split) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.users[userID]
	if !ok {
		return fmt.Errorf("unknown user %q", userID)
	}
	Apply(&b, split)
	s.users[userID] = b
	return nil
}

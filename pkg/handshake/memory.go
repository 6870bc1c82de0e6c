package handshake

import (
	"context"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// MemoryStateStore keeps pending states in an expiring in-process LRU. The
// mutex makes the lookup-and-delete in Consume atomic; the LRU's TTL takes
// care of abandoned handshakes.
type MemoryStateStore struct {
	mu     sync.Mutex
	states *expirable.LRU[string, *State]
}

// NewMemoryStateStore creates an in-process state store with the given TTL
func NewMemoryStateStore(ttl time.Duration) *MemoryStateStore {
	return &MemoryStateStore{
		states: expirable.NewLRU[string, *State](4096, nil, ttl),
	}
}

// Put stores a pending state under its token
func (s *MemoryStateStore) Put(ctx context.Context, state *State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states.Add(state.Token, state)
	return nil
}

// Consume atomically removes and returns the state
func (s *MemoryStateStore) Consume(ctx context.Context, token string) (*State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, ok := s.states.Get(token)
	if !ok {
		return nil, ErrInvalidState
	}
	s.states.Remove(token)
	return state, nil
}

package handshake

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// RedisStateStore keeps pending handshake states in Redis. Consumption uses
// GETDEL, so concurrent completions with the same token race on the server
// and exactly one wins.
type RedisStateStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStateStore creates a Redis-backed state store with the given TTL
func NewRedisStateStore(client *redis.Client, ttl time.Duration) *RedisStateStore {
	return &RedisStateStore{client: client, ttl: ttl}
}

func stateKey(token string) string {
	return "sso_state:" + token
}

// Put stores a pending state under its token
func (s *RedisStateStore) Put(ctx context.Context, state *State) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal handshake state: %w", err)
	}
	if err := s.client.Set(ctx, stateKey(state.Token), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to store handshake state: %w", err)
	}
	return nil
}

// Consume atomically removes and returns the state
func (s *RedisStateStore) Consume(ctx context.Context, token string) (*State, error) {
	data, err := s.client.GetDel(ctx, stateKey(token)).Result()
	if err == redis.Nil {
		return nil, ErrInvalidState
	}
	if err != nil {
		return nil, fmt.Errorf("failed to consume handshake state: %w", err)
	}

	var state State
	if err := json.Unmarshal([]byte(data), &state); err != nil {
		return nil, ErrInvalidState
	}
	return &state, nil
}

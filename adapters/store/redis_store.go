package store

import (
	"context"
	"fmt"
	"time"

	"github.com/quillwire/devlink/ports"
	"github.com/redis/go-redis/v9"
)

// usedTokenPrefix namespaces consumed-token keys in the shared cluster. The
// prefix is part of the wire-level contract and must not change.
const usedTokenPrefix = "usedToken::"

// RedisReplayStore is a Redis implementation of the ReplayStore interface. The
// backing cluster is shared by every server instance; keys expire on their own
// and are never deleted explicitly.
type RedisReplayStore struct {
	client *redis.Client
}

// NewRedisReplayStore creates a new Redis replay store.
func NewRedisReplayStore(client *redis.Client) ports.ReplayStore {
	return &RedisReplayStore{client: client}
}

// IsConsumed checks whether the token's key exists in Redis.
func (s *RedisReplayStore) IsConsumed(ctx context.Context, token string) (bool, error) {
	exists, err := s.client.Exists(ctx, usedTokenKey(token)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check token consumption: %w", err)
	}

	return exists > 0, nil
}

// Claim marks the token consumed with SET NX so exactly one concurrent claimer
// wins. The TTL matches the token's remaining possible validity, after which the
// key expires on its own.
func (s *RedisReplayStore) Claim(ctx context.Context, token string, ttl time.Duration) (bool, error) {
	claimed, err := s.client.SetNX(ctx, usedTokenKey(token), "", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to claim token: %w", err)
	}

	return claimed, nil
}

func usedTokenKey(token string) string {
	return usedTokenPrefix + token
}

package sessions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// RedisStore keeps grants in Redis so multiple gateway instances can share
// sessions. Keys expire with the grant, so no cleanup job is needed.
// Redeem uses GETDEL and requires Redis 6.2 or newer.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore wraps an existing Redis client. keyPrefix namespaces the
// grant keys; empty defaults to "arcade:session:".
func NewRedisStore(client *redis.Client, keyPrefix string) *RedisStore {
	if keyPrefix == "" {
		keyPrefix = "arcade:session:"
	}
	return &RedisStore{client: client, prefix: keyPrefix}
}

func (s *RedisStore) key(token string) string {
	return s.prefix + token
}

func (s *RedisStore) Put(ctx context.Context, grant Grant) error {
	ttl := time.Until(grant.ExpiresAt)
	if ttl <= 0 {
		return fmt.Errorf("sessions: grant %s already expired", grant.Token)
	}
	data, err := json.Marshal(grant)
	if err != nil {
		return fmt.Errorf("sessions: marshal grant: %w", err)
	}
	if err := s.client.Set(ctx, s.key(grant.Token), data, ttl).Err(); err != nil {
		return fmt.Errorf("sessions: store grant: %w", err)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, token string) (Grant, error) {
	data, err := s.client.Get(ctx, s.key(token)).Bytes()
	return s.decode(data, err)
}

func (s *RedisStore) Redeem(ctx context.Context, token string) (Grant, error) {
	data, err := s.client.GetDel(ctx, s.key(token)).Bytes()
	return s.decode(data, err)
}

func (s *RedisStore) decode(data []byte, err error) (Grant, error) {
	if errors.Is(err, redis.Nil) {
		return Grant{}, ErrNotFound
	}
	if err != nil {
		return Grant{}, fmt.Errorf("sessions: load grant: %w", err)
	}
	var grant Grant
	if err := json.Unmarshal(data, &grant); err != nil {
		return Grant{}, fmt.Errorf("sessions: unmarshal grant: %w", err)
	}
	return grant, nil
}

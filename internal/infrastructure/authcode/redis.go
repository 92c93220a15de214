package authcode

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/lukekeith/makeready/internal/domain/entities"
	"github.com/lukekeith/makeready/internal/domain/repositories"
)

const redisKeyPrefix = "makeready:authcode:"

// redisEntry is the payload stored under each code key. Expiry is enforced
// by the key TTL rather than a stored timestamp.
type redisEntry struct {
	SessionID string `json:"session_id"`
	UserID    string `json:"user_id"`
}

// RedisStore is an AuthCodeStore backed by Redis, for deployments where
// the callback and the exchange may land on different processes. GETDEL
// makes redemption atomic server-side.
type RedisStore struct {
	client redis.UniversalClient
}

var _ repositories.AuthCodeStore = (*RedisStore)(nil)

// NewRedisStore constructs a Redis-backed store. The client is owned by
// the caller and is not closed by Close.
func NewRedisStore(client redis.UniversalClient) *RedisStore {
	return &RedisStore{client: client}
}

// Issue generates a fresh opaque code and stores it with the given TTL
func (s *RedisStore) Issue(ctx context.Context, sessionID, userID string, ttl time.Duration) (string, error) {
	code, err := generateCode()
	if err != nil {
		return "", fmt.Errorf("failed to generate auth code: %w", err)
	}

	payload, err := json.Marshal(redisEntry{SessionID: sessionID, UserID: userID})
	if err != nil {
		return "", fmt.Errorf("failed to marshal auth code entry: %w", err)
	}

	if err := s.client.Set(ctx, redisKeyPrefix+code, payload, ttl).Err(); err != nil {
		return "", fmt.Errorf("failed to persist auth code: %w", err)
	}

	return code, nil
}

// Redeem atomically consumes the entry for code
func (s *RedisStore) Redeem(ctx context.Context, code string) (*entities.AuthCode, error) {
	payload, err := s.client.GetDel(ctx, redisKeyPrefix+code).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, repositories.ErrAuthCodeNotFound
		}
		return nil, fmt.Errorf("failed to redeem auth code: %w", err)
	}

	var entry redisEntry
	if err := json.Unmarshal(payload, &entry); err != nil {
		return nil, fmt.Errorf("failed to decode auth code entry: %w", err)
	}

	return &entities.AuthCode{
		Code:      code,
		SessionID: entry.SessionID,
		UserID:    entry.UserID,
	}, nil
}

// Close is a no-op; the Redis client lifecycle belongs to the caller
func (s *RedisStore) Close() error {
	return nil
}

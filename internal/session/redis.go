package session

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const bindingPrefix = "session:active:"

// RedisRegistry maps users to their active session in Redis. SETNX makes the
// check-and-bind atomic across engine instances.
type RedisRegistry struct {
	client *redis.Client
}

// NewRedisRegistry builds a Redis-backed registry.
func NewRedisRegistry(client *redis.Client) *RedisRegistry {
	return &RedisRegistry{client: client}
}

// Bind claims the user for the session, failing when another binding exists.
func (r *RedisRegistry) Bind(ctx context.Context, userID int64, sessionID string) error {
	ok, err := r.client.SetNX(ctx, bindingKey(userID), sessionID, 0).Result()
	if err != nil {
		return fmt.Errorf("bind user %d: %w", userID, err)
	}
	if !ok {
		return ErrAlreadyInSession
	}
	return nil
}

// ActiveSession returns the user's current session binding, if any.
func (r *RedisRegistry) ActiveSession(ctx context.Context, userID int64) (string, bool, error) {
	sid, err := r.client.Get(ctx, bindingKey(userID)).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("lookup user %d: %w", userID, err)
	}
	return sid, true, nil
}

// Release removes the bindings for the given users.
func (r *RedisRegistry) Release(ctx context.Context, userIDs ...int64) error {
	if len(userIDs) == 0 {
		return nil
	}
	keys := make([]string, 0, len(userIDs))
	for _, uid := range userIDs {
		keys = append(keys, bindingKey(uid))
	}
	if err := r.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("release bindings: %w", err)
	}
	return nil
}

func bindingKey(userID int64) string {
	return fmt.Sprintf("%s%d", bindingPrefix, userID)
}

package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"repolaunch-server/internal/config"
	"repolaunch-server/internal/model"
)

// releaseScript deletes the lock key only when it still holds the caller's
// token. Without the token check a holder whose lock expired could delete a
// lock since reacquired by someone else.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// RedisStore is the production Store backed by Redis. SET NX gives the
// creation lock a true conditional write, and per-key TTL covers session
// expiry and rate-limit windows.
type RedisStore struct {
	client     *redis.Client
	sessionTTL time.Duration
	lockTTL    time.Duration
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(cfg *config.Config) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port),
		Username: cfg.Redis.Username,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		PoolSize: cfg.Redis.PoolSize,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisStore{
		client:     client,
		sessionTTL: cfg.Lifecycle.SessionTTL,
		lockTTL:    cfg.Lifecycle.LockTTL,
	}, nil
}

func (s *RedisStore) GetSession(ctx context.Context, id string) (*model.Session, error) {
	data, err := s.client.Get(ctx, sessionKey(id)).Bytes()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var session model.Session
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("corrupt session record %s: %w", id, err)
	}
	return &session, nil
}

func (s *RedisStore) PutSession(ctx context.Context, session *model.Session) error {
	data, err := json.Marshal(session)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, sessionKey(session.ID), data, s.sessionTTL).Err()
}

func (s *RedisStore) DeleteSession(ctx context.Context, id string) error {
	return s.client.Del(ctx, sessionKey(id)).Err()
}

func (s *RedisStore) GetActiveSession(ctx context.Context, repoKey string) (string, error) {
	id, err := s.client.Get(ctx, activeKey(repoKey)).Result()
	if err == redis.Nil {
		return "", ErrNotFound
	}
	return id, err
}

func (s *RedisStore) SetActiveSession(ctx context.Context, repoKey, sessionID string) error {
	return s.client.Set(ctx, activeKey(repoKey), sessionID, s.sessionTTL).Err()
}

func (s *RedisStore) DeleteActiveSession(ctx context.Context, repoKey string) error {
	return s.client.Del(ctx, activeKey(repoKey)).Err()
}

func (s *RedisStore) AcquireLock(ctx context.Context, repoKey, token string) (bool, error) {
	return s.client.SetNX(ctx, lockKey(repoKey), token, s.lockTTL).Result()
}

func (s *RedisStore) ReleaseLock(ctx context.Context, repoKey, token string) error {
	return releaseScript.Run(ctx, s.client, []string{lockKey(repoKey)}, token).Err()
}

func (s *RedisStore) LockHeld(ctx context.Context, repoKey string) (bool, error) {
	n, err := s.client.Exists(ctx, lockKey(repoKey)).Result()
	return n > 0, err
}

func (s *RedisStore) IncrCounter(ctx context.Context, key string, window int) (int64, error) {
	count, err := s.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, err
	}
	// The TTL starts with the first hit of the window; later hits inherit it.
	if count == 1 {
		if err := s.client.Expire(ctx, key, time.Duration(window)*time.Second).Err(); err != nil {
			return count, err
		}
	}
	return count, nil
}

func (s *RedisStore) DecrCounter(ctx context.Context, key string) error {
	count, err := s.client.Decr(ctx, key).Result()
	if err != nil {
		return err
	}
	if count < 0 {
		return s.client.Set(ctx, key, 0, redis.KeepTTL).Err()
	}
	return nil
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

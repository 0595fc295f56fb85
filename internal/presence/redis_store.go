package presence

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis key pattern:
// {prefix}:user:{user_id}   HASH
//   - online: "1"
//   - instance_id: owning instance
//   - updated_at: unix millis

const (
	fieldOnline     = "online"
	fieldInstanceID = "instance_id"
	fieldUpdatedAt  = "updated_at"
)

var deleteIfOwned = redis.NewScript(`
if redis.call("HGET", KEYS[1], "instance_id") == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisStore implements Store with one hash per user.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore creates a presence store on an existing client.
func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "presence"
	}
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) userKey(userID string) string {
	return fmt.Sprintf("%s:user:%s", s.prefix, userID)
}

func (s *RedisStore) Get(ctx context.Context, userID string) (*Record, error) {
	vals, err := s.client.HGetAll(ctx, s.userKey(userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read presence: %w", err)
	}
	if len(vals) == 0 {
		return nil, nil
	}

	rec := &Record{
		UserID:     userID,
		Online:     vals[fieldOnline] == "1",
		InstanceID: vals[fieldInstanceID],
	}
	if ms, err := strconv.ParseInt(vals[fieldUpdatedAt], 10, 64); err == nil {
		rec.UpdatedAt = time.UnixMilli(ms).UTC()
	}
	return rec, nil
}

func (s *RedisStore) Set(ctx context.Context, rec Record, ttl time.Duration) error {
	online := "0"
	if rec.Online {
		online = "1"
	}
	key := s.userKey(rec.UserID)

	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, key,
		fieldOnline, online,
		fieldInstanceID, rec.InstanceID,
		fieldUpdatedAt, rec.UpdatedAt.UnixMilli(),
	)
	pipe.Expire(ctx, key, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to write presence: %w", err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, userID, instanceID string) error {
	if err := deleteIfOwned.Run(ctx, s.client, []string{s.userKey(userID)}, instanceID).Err(); err != nil {
		return fmt.Errorf("failed to delete presence: %w", err)
	}
	return nil
}

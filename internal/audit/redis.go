package audit

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// DefaultKey is the Redis list that receives audit records.
const DefaultKey = "blockchain"

// RedisLog stores records as JSON strings in a Redis list. Append pushes to
// the head, so index 0 is always the newest record.
type RedisLog struct {
	client *redis.Client
	key    string
}

// NewRedisLog connects to redisURL and verifies the connection.
func NewRedisLog(ctx context.Context, redisURL, key string) (*RedisLog, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("audit: parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("audit: ping redis: %w", err)
	}
	return NewRedisLogFromClient(client, key), nil
}

// NewRedisLogFromClient wraps an existing client. An empty key selects
// DefaultKey.
func NewRedisLogFromClient(client *redis.Client, key string) *RedisLog {
	if key == "" {
		key = DefaultKey
	}
	return &RedisLog{client: client, key: key}
}

// Key returns the list name.
func (l *RedisLog) Key() string { return l.key }

// Append pushes rec onto the list.
func (l *RedisLog) Append(ctx context.Context, rec Record) error {
	b, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return l.client.LPush(ctx, l.key, b).Err()
}

// Recent returns up to n records, newest first. n <= 0 returns nothing.
func (l *RedisLog) Recent(ctx context.Context, n int) ([]Record, error) {
	out := []Record{}
	if n <= 0 {
		return out, nil
	}
	raw, err := l.client.LRange(ctx, l.key, 0, int64(n-1)).Result()
	if err != nil {
		return nil, err
	}
	for _, s := range raw {
		var rec Record
		if err := json.Unmarshal([]byte(s), &rec); err != nil {
			return nil, fmt.Errorf("audit: decode record: %w", err)
		}
		out = append(out, rec)
	}
	return out, nil
}

// Len returns the number of stored records.
func (l *RedisLog) Len(ctx context.Context) (int64, error) {
	return l.client.LLen(ctx, l.key).Result()
}

// Ping checks the Redis connection.
func (l *RedisLog) Ping(ctx context.Context) error {
	return l.client.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (l *RedisLog) Close() error {
	return l.client.Close()
}

package embedcache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/datar-psa/goanchor/api"
)

// DefaultRedisPrefix namespaces the keys written by RedisStore
const DefaultRedisPrefix = "goanchor:embedding:"

type redisEntry struct {
	Model  string     `json:"model"`
	Text   string     `json:"text"`
	Vector api.Vector `json:"vector"`
}

// RedisStore shares cached vectors between processes through Redis
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisStore creates a store on client. An empty prefix means
// DefaultRedisPrefix; a zero ttl keeps entries until cleared.
func NewRedisStore(client *redis.Client, prefix string, ttl time.Duration) *RedisStore {
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	return &RedisStore{client: client, prefix: prefix, ttl: ttl}
}

func (s *RedisStore) key(model, text string) string {
	return s.prefix + storeKey(model, text)
}

// Get implements Store
func (s *RedisStore) Get(ctx context.Context, model string, texts []string) (map[string]api.Vector, error) {
	out := make(map[string]api.Vector, len(texts))
	if len(texts) == 0 {
		return out, nil
	}

	keys := make([]string, len(texts))
	for i, t := range texts {
		keys[i] = s.key(model, t)
	}

	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil && err != redis.Nil {
		return nil, fmt.Errorf("failed to read cached embeddings: %w", err)
	}

	for i, raw := range values {
		str, ok := raw.(string)
		if !ok {
			continue
		}
		var entry redisEntry
		if err := json.Unmarshal([]byte(str), &entry); err != nil {
			continue
		}
		if entry.Model != model || entry.Text != texts[i] {
			continue
		}
		out[texts[i]] = entry.Vector
	}
	return out, nil
}

// Put implements Store
func (s *RedisStore) Put(ctx context.Context, model string, vectors map[string]api.Vector) error {
	if len(vectors) == 0 {
		return nil
	}
	pipe := s.client.Pipeline()
	for t, v := range vectors {
		data, err := json.Marshal(redisEntry{Model: model, Text: t, Vector: v})
		if err != nil {
			return err
		}
		pipe.Set(ctx, s.key(model, t), data, s.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to cache embeddings: %w", err)
	}
	return nil
}

// Clear implements Store. Only keys under the store prefix are removed.
func (s *RedisStore) Clear(ctx context.Context) error {
	iter := s.client.Scan(ctx, 0, s.prefix+"*", 100).Iterator()
	var batch []string
	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) == 100 {
			if err := s.client.Del(ctx, batch...).Err(); err != nil {
				return fmt.Errorf("failed to clear embedding cache: %w", err)
			}
			batch = batch[:0]
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("failed to scan embedding cache: %w", err)
	}
	if len(batch) > 0 {
		if err := s.client.Del(ctx, batch...).Err(); err != nil {
			return fmt.Errorf("failed to clear embedding cache: %w", err)
		}
	}
	return nil
}

var _ Store = (*RedisStore)(nil)

package proofs

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	platformredis "lexbounty/internal/platform/redis"
)

// RedisStore records each hash as a key holding the document size. Keys do
// not expire: a proof referenced by a milestone must stay resolvable.
type RedisStore struct {
	client    redis.UniversalClient
	namespace string
}

func NewRedis(client redis.UniversalClient, namespace string) *RedisStore {
	return &RedisStore{client: client, namespace: namespace}
}

func (r *RedisStore) key(hash string) string {
	return platformredis.Key(r.namespace, "proof", hash)
}

func (r *RedisStore) Store(ctx context.Context, content []byte) (string, error) {
	if len(content) == 0 {
		return "", ErrEmptyDocument
	}
	h := Hash(content)
	if err := r.client.SetNX(ctx, r.key(h), len(content), 0).Err(); err != nil {
		return "", fmt.Errorf("register proof: %w", err)
	}
	return h, nil
}

func (r *RedisStore) Exists(ctx context.Context, hash string) (bool, error) {
	n, err := r.client.Exists(ctx, r.key(hash)).Result()
	if err != nil {
		return false, fmt.Errorf("lookup proof: %w", err)
	}
	return n > 0, nil
}

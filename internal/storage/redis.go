package storage

import (
	"context"
	"errors"
	"strings"

	"github.com/redis/go-redis/v9"
)

// RedisBackend stores each document as a string value under a namespaced
// key, the same flat layout a browser key-value store would use.
type RedisBackend struct {
	client    *redis.Client
	namespace string
}

func NewRedisBackend(client *redis.Client, namespace string) *RedisBackend {
	return &RedisBackend{client: client, namespace: namespace}
}

// Key maps a document name to its redis key. Separators become "_" and any
// other character outside [A-Za-z0-9_] is dropped.
func (r *RedisBackend) Key(name string) string {
	var b strings.Builder
	for _, ch := range name {
		switch {
		case ch == '/' || ch == '\\':
			b.WriteByte('_')
		case ch == '_' || (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z') || (ch >= '0' && ch <= '9'):
			b.WriteRune(ch)
		}
	}
	if r.namespace == "" {
		return b.String()
	}
	return r.namespace + ":" + b.String()
}

func (r *RedisBackend) Get(ctx context.Context, name string) ([]byte, bool, error) {
	data, err := r.client.Get(ctx, r.Key(name)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

func (r *RedisBackend) Put(ctx context.Context, name string, data []byte) error {
	return r.client.Set(ctx, r.Key(name), data, 0).Err()
}

func (r *RedisBackend) Delete(ctx context.Context, name string) error {
	return r.client.Del(ctx, r.Key(name)).Err()
}

func (r *RedisBackend) Exists(ctx context.Context, name string) (bool, error) {
	n, err := r.client.Exists(ctx, r.Key(name)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *RedisBackend) Durable() bool { return true }

func (r *RedisBackend) Close() error {
	return r.client.Close()
}

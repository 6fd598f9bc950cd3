// Package redis provides the redis-backed key/value store implementation.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/parley-ai/parley/pkg/kvstore"
)

const scanBatchSize = 100

// Store implements kvstore.Store on a redis instance. Keys are namespaced
// under a fixed prefix so one redis database can host several services.
type Store struct {
	client    goredis.UniversalClient
	namespace string
}

// NewStore connects to redis at the given URL (redis://...) and pings it.
func NewStore(ctx context.Context, url, namespace string) (*Store, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}

	client := goredis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	if namespace == "" {
		namespace = "parley"
	}

	return &Store{client: client, namespace: namespace}, nil
}

func (s *Store) namespaced(key string) string {
	return s.namespace + ":" + key
}

func (s *Store) Get(ctx context.Context, key string) (kvstore.Record, error) {
	payload, err := s.client.Get(ctx, s.namespaced(key)).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, kvstore.ErrNotFound
		}

		return nil, fmt.Errorf("redis get %s: %w", key, err)
	}

	var record kvstore.Record
	if err := json.Unmarshal(payload, &record); err != nil {
		return nil, fmt.Errorf("redis get %s: corrupt record: %w", key, err)
	}

	return record, nil
}

func (s *Store) Put(ctx context.Context, key string, record kvstore.Record) error {
	payload, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("redis put %s: %w", key, err)
	}

	if err := s.client.Set(ctx, s.namespaced(key), payload, 0).Err(); err != nil {
		return fmt.Errorf("redis put %s: %w", key, err)
	}

	return nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.namespaced(key)).Err(); err != nil {
		return fmt.Errorf("redis delete %s: %w", key, err)
	}

	return nil
}

func (s *Store) Query(ctx context.Context, prefix string, limit int) (map[string]kvstore.Record, error) {
	pattern := s.namespaced(prefix) + "*"
	results := make(map[string]kvstore.Record)

	iter := s.client.Scan(ctx, 0, pattern, scanBatchSize).Iterator()
	for iter.Next(ctx) {
		if limit > 0 && len(results) >= limit {
			break
		}

		fullKey := iter.Val()

		record, err := s.Get(ctx, fullKey[len(s.namespace)+1:])
		if err != nil {
			if errors.Is(err, kvstore.ErrNotFound) {
				continue
			}

			return nil, err
		}

		results[fullKey[len(s.namespace)+1:]] = record
	}

	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("redis query %s: %w", prefix, err)
	}

	return results, nil
}

func (s *Store) HealthCheck(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *Store) Close(_ context.Context) error {
	return s.client.Close()
}

// Package snapshot keeps the last known good contribution report per
// condominium and year.
package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/golang/snappy"
	"github.com/redis/go-redis/v9"
	"github.com/smallbiznis/condopay/internal/cache"
	"github.com/smallbiznis/condopay/internal/contribution/domain"
)

type Store interface {
	Get(ctx context.Context, condominiumID snowflake.ID, year int) (domain.Snapshot, bool, error)
	Put(ctx context.Context, snapshot domain.Snapshot, ttl time.Duration) error
}

func key(condominiumID snowflake.ID, year int) string {
	return fmt.Sprintf("%s:%d", condominiumID, year)
}

type memoryStore struct {
	items cache.Cache[string, domain.Snapshot]
}

func NewMemoryStore() Store {
	return &memoryStore{items: cache.NewTTLCache[string, domain.Snapshot]()}
}

func (s *memoryStore) Get(_ context.Context, condominiumID snowflake.ID, year int) (domain.Snapshot, bool, error) {
	snap, ok := s.items.Get(key(condominiumID, year))
	return snap, ok, nil
}

func (s *memoryStore) Put(_ context.Context, snapshot domain.Snapshot, ttl time.Duration) error {
	s.items.Set(key(snapshot.CondominiumID, snapshot.Year), snapshot, ttl)
	return nil
}

// redisStore shares snapshots between replicas. Values are snappy compressed JSON.
type redisStore struct {
	client redis.UniversalClient
	prefix string
}

func NewRedisStore(client redis.UniversalClient, prefix string) Store {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = "condopay"
	}
	return &redisStore{client: client, prefix: prefix}
}

func (s *redisStore) redisKey(condominiumID snowflake.ID, year int) string {
	return s.prefix + ":snapshot:" + key(condominiumID, year)
}

func (s *redisStore) Get(ctx context.Context, condominiumID snowflake.ID, year int) (domain.Snapshot, bool, error) {
	raw, err := s.client.Get(ctx, s.redisKey(condominiumID, year)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.Snapshot{}, false, nil
	}
	if err != nil {
		return domain.Snapshot{}, false, err
	}
	snap, err := Decode(raw)
	if err != nil {
		return domain.Snapshot{}, false, err
	}
	return snap, true, nil
}

func (s *redisStore) Put(ctx context.Context, snapshot domain.Snapshot, ttl time.Duration) error {
	raw, err := Encode(snapshot)
	if err != nil {
		return err
	}
	if ttl < 0 {
		ttl = 0
	}
	return s.client.Set(ctx, s.redisKey(snapshot.CondominiumID, snapshot.Year), raw, ttl).Err()
}

func Encode(snapshot domain.Snapshot) ([]byte, error) {
	payload, err := json.Marshal(snapshot)
	if err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}
	return snappy.Encode(nil, payload), nil
}

func Decode(raw []byte) (domain.Snapshot, error) {
	payload, err := snappy.Decode(nil, raw)
	if err != nil {
		return domain.Snapshot{}, fmt.Errorf("decompress snapshot: %w", err)
	}
	var snap domain.Snapshot
	if err := json.Unmarshal(payload, &snap); err != nil {
		return domain.Snapshot{}, fmt.Errorf("decode snapshot: %w", err)
	}
	return snap, nil
}

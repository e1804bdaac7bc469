package cache

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/extra/redisotel/v9"
	"github.com/redis/go-redis/v9"

	"github.com/scidatahub/containerdb/internal/config"
)

// New builds the Redis client for the dataset detail cache. A nil client
// is returned when the cache is disabled; callers treat that as a miss.
func New(cfg *config.Config) (*redis.Client, error) {
	if !cfg.Redis.Enabled {
		return nil, nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, err
	}
	return client, nil
}

// RegisterOpenTelemetryPlugin adds command span instrumentation. Call it
// after the tracer provider is installed so the hook picks up the global
// provider. A nil client means the cache is disabled.
func RegisterOpenTelemetryPlugin(rdb *redis.Client) error {
	if rdb == nil {
		return nil
	}
	return redisotel.InstrumentTracing(rdb)
}

const detailTTL = 5 * time.Minute

// DatasetCache caches serialized dataset detail payloads. Entries are
// scoped per user because visibility is permissioned; writes to a record
// or its replacement chain invalidate all entries for that record.
type DatasetCache struct {
	client *redis.Client
}

func NewDatasetCache(client *redis.Client) *DatasetCache {
	return &DatasetCache{client: client}
}

func key(userID, id uuid.UUID) string {
	return "dataset:detail:" + id.String() + ":" + userID.String()
}

// Get returns the cached payload or nil on miss. Cache errors degrade to
// a miss; the database stays authoritative.
func (c *DatasetCache) Get(ctx context.Context, userID, id uuid.UUID) []byte {
	if c == nil || c.client == nil {
		return nil
	}
	raw, err := c.client.Get(ctx, key(userID, id)).Bytes()
	if err != nil {
		return nil
	}
	return raw
}

func (c *DatasetCache) Set(ctx context.Context, userID, id uuid.UUID, payload []byte) {
	if c == nil || c.client == nil {
		return
	}
	c.client.Set(ctx, key(userID, id), payload, detailTTL)
}

// Invalidate drops the entries of every given identifier, for all users.
// The TTL bounds staleness if a scan is cut short by an error.
func (c *DatasetCache) Invalidate(ctx context.Context, ids ...uuid.UUID) {
	if c == nil || c.client == nil || len(ids) == 0 {
		return
	}
	for _, id := range ids {
		var cursor uint64
		for {
			keys, next, err := c.client.Scan(ctx, cursor, "dataset:detail:"+id.String()+":*", 100).Result()
			if err != nil {
				return
			}
			if len(keys) > 0 {
				c.client.Del(ctx, keys...)
			}
			if next == 0 {
				break
			}
			cursor = next
		}
	}
}

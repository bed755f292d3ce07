package notification

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/notifykit/notifykit/pkg/logger"
)

// CachedStore decorates a Store with a Redis read-through cache keyed by
// record id. Cache failures are logged and never surfaced: the wrapped store
// remains the source of truth, the cache only absorbs status-poll traffic.
type CachedStore struct {
	Store

	client redis.UniversalClient
	ttl    time.Duration
	logger *slog.Logger
}

// CachedStoreOption configures a CachedStore.
type CachedStoreOption func(*CachedStore)

// WithCacheTTL sets the expiry of cached records. Default is one minute.
func WithCacheTTL(ttl time.Duration) CachedStoreOption {
	return func(c *CachedStore) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithCacheLogger sets the logger for cache failures.
func WithCacheLogger(log *slog.Logger) CachedStoreOption {
	return func(c *CachedStore) {
		if log != nil {
			c.logger = log
		}
	}
}

// NewCachedStore wraps a store with a Redis cache.
func NewCachedStore(store Store, client redis.UniversalClient, opts ...CachedStoreOption) (*CachedStore, error) {
	if store == nil {
		return nil, errors.New("notification: store cannot be nil")
	}
	if client == nil {
		return nil, errors.New("notification: redis client cannot be nil")
	}

	c := &CachedStore{
		Store:  store,
		client: client,
		ttl:    time.Minute,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *CachedStore) Get(ctx context.Context, id uuid.UUID) (*Record, error) {
	key := cacheKey(id)

	if data, err := c.client.Get(ctx, key).Bytes(); err == nil {
		var rec Record
		if err := json.Unmarshal(data, &rec); err == nil {
			return &rec, nil
		}
		// A corrupt entry falls through to the store and gets overwritten.
	} else if !errors.Is(err, redis.Nil) {
		c.logger.LogAttrs(ctx, slog.LevelWarn, "notification cache read failed",
			logger.NotificationID(id),
			logger.Error(err),
		)
	}

	rec, err := c.Store.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	c.put(ctx, rec)
	return rec, nil
}

func (c *CachedStore) Update(ctx context.Context, id uuid.UUID, patch Patch) (*Record, error) {
	rec, err := c.Store.Update(ctx, id, patch)
	if err != nil {
		return nil, err
	}

	// Refresh instead of invalidate so status polls see the transition
	// without a store round trip.
	c.put(ctx, rec)
	return rec, nil
}

func (c *CachedStore) put(ctx context.Context, rec *Record) {
	data, err := json.Marshal(rec)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, cacheKey(rec.ID), data, c.ttl).Err(); err != nil {
		c.logger.LogAttrs(ctx, slog.LevelWarn, "notification cache write failed",
			logger.NotificationID(rec.ID),
			logger.Error(err),
		)
	}
}

func cacheKey(id uuid.UUID) string {
	return "notification:" + id.String()
}

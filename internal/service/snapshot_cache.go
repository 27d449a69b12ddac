package service

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/aislen404/mapabalizasv16/internal/domain"
	"github.com/aislen404/mapabalizasv16/internal/feed"
	"github.com/aislen404/mapabalizasv16/internal/store"
	"go.uber.org/zap"
)

// SnapshotCache single-entry TTL cache of the last normalized feed result
type SnapshotCache struct {
	kv     store.KV
	key    string
	ttl    time.Duration
	now    func() time.Time
	logger *zap.Logger
}

// cacheEntry is the stored form; it keeps the fields Snapshot hides from JSON
type cacheEntry struct {
	Balizas   []domain.Baliza `json:"balizas"`
	Source    string          `json:"source"`
	Fallback  bool            `json:"fallback"`
	FetchedAt time.Time       `json:"fetched_at"`
	CachedAt  time.Time       `json:"cached_at"`
}

// NewSnapshotCache creates a cache storing under key in kv
func NewSnapshotCache(kv store.KV, key string, ttl time.Duration, now func() time.Time, logger *zap.Logger) *SnapshotCache {
	if now == nil {
		now = time.Now
	}
	return &SnapshotCache{kv: kv, key: key, ttl: ttl, now: now, logger: logger}
}

func (c *SnapshotCache) load(ctx context.Context) (cacheEntry, bool) {
	raw, err := c.kv.Get(ctx, c.key)
	if err != nil {
		if !errors.Is(err, store.ErrMiss) {
			c.logger.Warn("snapshot cache read failed", zap.String("key", c.key), zap.Error(err))
		}
		return cacheEntry{}, false
	}
	var e cacheEntry
	if err := json.Unmarshal([]byte(raw), &e); err != nil {
		c.logger.Warn("discarding undecodable snapshot cache entry", zap.String("key", c.key), zap.Error(err))
		return cacheEntry{}, false
	}
	// expiry is also checked against the injected clock
	if c.now().Sub(e.CachedAt) >= c.ttl {
		return cacheEntry{}, false
	}
	return e, true
}

// Get returns the cached snapshot while it is younger than the TTL
func (c *SnapshotCache) Get(ctx context.Context) (feed.Snapshot, bool) {
	e, ok := c.load(ctx)
	if !ok {
		return feed.Snapshot{}, false
	}
	return feed.Snapshot{Balizas: e.Balizas, Source: e.Source, Fallback: e.Fallback, FetchedAt: e.FetchedAt}, true
}

// Put replaces the cached snapshot
func (c *SnapshotCache) Put(ctx context.Context, snap feed.Snapshot) error {
	b, err := json.Marshal(cacheEntry{
		Balizas:   snap.Balizas,
		Source:    snap.Source,
		Fallback:  snap.Fallback,
		FetchedAt: snap.FetchedAt,
		CachedAt:  c.now(),
	})
	if err != nil {
		return err
	}
	return c.kv.Set(ctx, c.key, string(b), c.ttl)
}

// Invalidate drops the cached snapshot
func (c *SnapshotCache) Invalidate(ctx context.Context) error {
	return c.kv.Delete(ctx, c.key)
}

// Age is the time since the live entry was stored; false when there is none
func (c *SnapshotCache) Age(ctx context.Context) (time.Duration, bool) {
	e, ok := c.load(ctx)
	if !ok {
		return 0, false
	}
	return c.now().Sub(e.CachedAt), true
}

package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"ms-auction/internal/logger"
	"ms-auction/internal/models"
)

const statusKeyPrefix = "auction_status:"

// StatusCache keeps short-lived batch-status snapshots in Redis for the
// polling UI. Cache misses and failures fall through to the database; the
// write path only ever invalidates, it never waits on Redis.
type StatusCache struct {
	client *redis.Client
	ttl    time.Duration
	log    *logger.Logger
}

func NewStatusCache(client *redis.Client, ttl time.Duration, log *logger.Logger) *StatusCache {
	return &StatusCache{client: client, ttl: ttl, log: log}
}

func statusKey(auctionID int64) string {
	return fmt.Sprintf("%s%d", statusKeyPrefix, auctionID)
}

// GetStatus returns the cached snapshot for one auction, if present and
// still fresh.
func (c *StatusCache) GetStatus(ctx context.Context, auctionID int64) (*models.AuctionStatus, bool) {
	val, err := c.client.Get(ctx, statusKey(auctionID)).Result()
	if err == redis.Nil {
		return nil, false
	}
	if err != nil {
		c.log.Warn("CACHE", fmt.Sprintf("status cache read failed for auction %d: %v", auctionID, err))
		return nil, false
	}

	var status models.AuctionStatus
	if err := json.Unmarshal([]byte(val), &status); err != nil {
		c.log.Warn("CACHE", fmt.Sprintf("status cache decode failed for auction %d: %v", auctionID, err))
		return nil, false
	}
	return &status, true
}

// SetStatus stores a snapshot with the configured TTL.
func (c *StatusCache) SetStatus(ctx context.Context, status *models.AuctionStatus) {
	payload, err := json.Marshal(status)
	if err != nil {
		c.log.Warn("CACHE", fmt.Sprintf("status cache encode failed for auction %d: %v", status.AuctionID, err))
		return
	}
	if err := c.client.Set(ctx, statusKey(status.AuctionID), payload, c.ttl).Err(); err != nil {
		c.log.Warn("CACHE", fmt.Sprintf("status cache write failed for auction %d: %v", status.AuctionID, err))
	}
}

// Invalidate drops the snapshot after an accepted write so the next poll sees
// the new price without waiting out the TTL.
func (c *StatusCache) Invalidate(ctx context.Context, auctionID int64) {
	if err := c.client.Del(ctx, statusKey(auctionID)).Err(); err != nil {
		c.log.Warn("CACHE", fmt.Sprintf("status cache invalidate failed for auction %d: %v", auctionID, err))
	}
}

// SweepGuard is a Redis SetNX lease so only one replica runs the lifecycle
// sweep at a time.
type SweepGuard struct {
	client *redis.Client
	ttl    time.Duration
}

func NewSweepGuard(client *redis.Client, ttl time.Duration) *SweepGuard {
	return &SweepGuard{client: client, ttl: ttl}
}

const sweepLockKey = "lifecycle_sweep_lock"

// TryAcquire claims the sweep lease. Returns false when another replica holds
// it.
func (g *SweepGuard) TryAcquire(ctx context.Context, holder string) (bool, error) {
	return g.client.SetNX(ctx, sweepLockKey, holder, g.ttl).Result()
}

// Release drops the lease if this holder still owns it.
func (g *SweepGuard) Release(ctx context.Context, holder string) error {
	val, err := g.client.Get(ctx, sweepLockKey).Result()
	if err == redis.Nil {
		return nil
	}
	if err != nil {
		return err
	}
	if val == holder {
		return g.client.Del(ctx, sweepLockKey).Err()
	}
	return nil
}

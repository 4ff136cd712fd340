package redisclient

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"time"

	"reservation-service/internal/timewindow"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

//go:embed scripts/release_lock.lua
var releaseLockScript string

type Client struct {
	rdb           *redis.Client
	releaseScript *redis.Script
}

// NewClient creates a new Redis client with Lua scripts loaded
func NewClient(addr, password string, db int) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &Client{
		rdb:           rdb,
		releaseScript: redis.NewScript(releaseLockScript),
	}, nil
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Ping checks connectivity
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

func lockKey(key string) string {
	return fmt.Sprintf("lock:%s", key)
}

// AcquireLock takes an advisory lock and returns the owner token needed to release it.
// ok is false when another holder owns the lock.
func (c *Client) AcquireLock(ctx context.Context, key string, ttl time.Duration) (token string, ok bool, err error) {
	token = uuid.New().String()
	ok, err = c.rdb.SetNX(ctx, lockKey(key), token, ttl).Result()
	if err != nil {
		return "", false, fmt.Errorf("acquire lock %s: %w", key, err)
	}
	if !ok {
		return "", false, nil
	}
	return token, true, nil
}

// ReleaseLock releases the lock only if token still owns it
func (c *Client) ReleaseLock(ctx context.Context, key, token string) error {
	_, err := c.releaseScript.Run(ctx, c.rdb, []string{lockKey(key)}, token).Result()
	if err != nil {
		return fmt.Errorf("release lock script failed: %w", err)
	}
	return nil
}

func occupancyKey(locationID, date string) string {
	return fmt.Sprintf("occupancy:%s:%s", locationID, date)
}

// CacheOccupancy stores the per-table interval view for a location and date.
// The view is a read-through index only; decisions always recompute from reservations.
func (c *Client) CacheOccupancy(ctx context.Context, locationID, date string, byTable map[string][]timewindow.Interval, ttl time.Duration) error {
	pipe := c.rdb.TxPipeline()
	key := occupancyKey(locationID, date)
	pipe.Del(ctx, key)

	if len(byTable) == 0 {
		// sentinel so an empty floor is still a cache hit
		pipe.HSet(ctx, key, "_", "[]")
	}
	for tableID, intervals := range byTable {
		raw, err := json.Marshal(intervals)
		if err != nil {
			return fmt.Errorf("failed to marshal occupancy for table %s: %w", tableID, err)
		}
		pipe.HSet(ctx, key, tableID, raw)
	}
	pipe.Expire(ctx, key, ttl)

	_, err := pipe.Exec(ctx)
	return err
}

// GetOccupancy returns the cached view; found is false on a cache miss
func (c *Client) GetOccupancy(ctx context.Context, locationID, date string) (map[string][]timewindow.Interval, bool, error) {
	result, err := c.rdb.HGetAll(ctx, occupancyKey(locationID, date)).Result()
	if err != nil {
		return nil, false, err
	}
	if len(result) == 0 {
		return nil, false, nil
	}

	byTable := make(map[string][]timewindow.Interval, len(result))
	for tableID, raw := range result {
		if tableID == "_" {
			continue
		}
		var intervals []timewindow.Interval
		if err := json.Unmarshal([]byte(raw), &intervals); err != nil {
			return nil, false, fmt.Errorf("corrupt occupancy entry for table %s: %w", tableID, err)
		}
		byTable[tableID] = intervals
	}
	return byTable, true, nil
}

// InvalidateOccupancy drops the cached view so the next read rebuilds it
func (c *Client) InvalidateOccupancy(ctx context.Context, locationID, date string) error {
	return c.rdb.Del(ctx, occupancyKey(locationID, date)).Err()
}

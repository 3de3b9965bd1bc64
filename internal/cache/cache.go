package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/therealutkarshpriyadarshi/subsync/internal/metrics"
	"github.com/therealutkarshpriyadarshi/subsync/pkg/models"
)

// Cache provides caching functionality using Redis
type Cache struct {
	client *redis.Client
}

// NewCache creates a new cache instance
func NewCache(host string, port int, password string, db int) (*Cache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", host, port),
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &Cache{client: client}, nil
}

// Close closes the Redis connection
func (c *Cache) Close() error {
	return c.client.Close()
}

// Site Info Operations

// SetSiteInfo caches the detected title and episode of a page
func (c *Cache) SetSiteInfo(ctx context.Context, pageURL string, info *models.SiteInfo, ttl time.Duration) error {
	return c.setJSON(ctx, siteKey(pageURL), info, ttl)
}

// GetSiteInfo returns cached site info, or nil on a miss
func (c *Cache) GetSiteInfo(ctx context.Context, pageURL string) (*models.SiteInfo, error) {
	var info models.SiteInfo
	found, err := c.getJSON(ctx, siteKey(pageURL), &info)
	metrics.RecordCacheAccess("site_info", found)
	if err != nil || !found {
		return nil, err
	}
	return &info, nil
}

// DeleteSiteInfo removes cached site info
func (c *Cache) DeleteSiteInfo(ctx context.Context, pageURL string) error {
	return c.client.Del(ctx, siteKey(pageURL)).Err()
}

// Video Data Operations

// SetVideoData caches the tracks discovered for a page
func (c *Cache) SetVideoData(ctx context.Context, pageURL string, data *models.VideoData, ttl time.Duration) error {
	return c.setJSON(ctx, videoKey(pageURL), data, ttl)
}

// GetVideoData returns cached tracks for a page, or nil on a miss
func (c *Cache) GetVideoData(ctx context.Context, pageURL string) (*models.VideoData, error) {
	var data models.VideoData
	found, err := c.getJSON(ctx, videoKey(pageURL), &data)
	metrics.RecordCacheAccess("video_data", found)
	if err != nil || !found {
		return nil, err
	}
	return &data, nil
}

// InvalidatePages drops every cached site info and track list
func (c *Cache) InvalidatePages(ctx context.Context) error {
	if err := c.DeletePattern(ctx, "site:*"); err != nil {
		return err
	}
	return c.DeletePattern(ctx, "video:*")
}

// Retrieval Progress Operations

// SetRetrievalProgress stores the manifest progress of a track in a session
func (c *Cache) SetRetrievalProgress(ctx context.Context, sessionID, name string, percent int, ttl time.Duration) error {
	key := progressKey(sessionID)
	pipe := c.client.TxPipeline()
	pipe.HSet(ctx, key, name, percent)
	pipe.Expire(ctx, key, ttl)
	_, err := pipe.Exec(ctx)
	return err
}

// GetRetrievalProgress returns the progress of every track in a session
func (c *Cache) GetRetrievalProgress(ctx context.Context, sessionID string) (map[string]int, error) {
	values, err := c.client.HGetAll(ctx, progressKey(sessionID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get progress from cache: %w", err)
	}

	progress := make(map[string]int, len(values))
	for name, raw := range values {
		percent, err := strconv.Atoi(raw)
		if err != nil {
			continue
		}
		progress[name] = percent
	}
	return progress, nil
}

// ClearRetrievalProgress removes the progress of a session
func (c *Cache) ClearRetrievalProgress(ctx context.Context, sessionID string) error {
	return c.client.Del(ctx, progressKey(sessionID)).Err()
}

// Stats Cache Operations

// IncrementStat increments a statistic counter
func (c *Cache) IncrementStat(ctx context.Context, stat string) error {
	key := fmt.Sprintf("stats:%s", stat)
	return c.client.Incr(ctx, key).Err()
}

// GetStat retrieves a statistic value
func (c *Cache) GetStat(ctx context.Context, stat string) (int64, error) {
	key := fmt.Sprintf("stats:%s", stat)
	value, err := c.client.Get(ctx, key).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return value, err
}

// Rate Limiting Operations

// CheckRateLimit checks if a rate limit has been exceeded
func (c *Cache) CheckRateLimit(ctx context.Context, key string, limit int64, window time.Duration) (bool, error) {
	rateLimitKey := fmt.Sprintf("ratelimit:%s", key)

	count, err := c.client.Incr(ctx, rateLimitKey).Result()
	if err != nil {
		return false, fmt.Errorf("failed to increment rate limit: %w", err)
	}

	if count == 1 {
		if err := c.client.Expire(ctx, rateLimitKey, window).Err(); err != nil {
			return false, fmt.Errorf("failed to set expiry: %w", err)
		}
	}

	return count <= limit, nil
}

// Locking Operations for Distributed Systems

// AcquireLock attempts to acquire a distributed lock
func (c *Cache) AcquireLock(ctx context.Context, resource string, ttl time.Duration) (bool, error) {
	key := fmt.Sprintf("lock:%s", resource)
	return c.client.SetNX(ctx, key, "locked", ttl).Result()
}

// ReleaseLock releases a distributed lock
func (c *Cache) ReleaseLock(ctx context.Context, resource string) error {
	key := fmt.Sprintf("lock:%s", resource)
	return c.client.Del(ctx, key).Err()
}

// DeletePattern deletes all keys matching a pattern
func (c *Cache) DeletePattern(ctx context.Context, pattern string) error {
	iter := c.client.Scan(ctx, 0, pattern, 0).Iterator()
	for iter.Next(ctx) {
		if err := c.client.Del(ctx, iter.Val()).Err(); err != nil {
			return fmt.Errorf("failed to delete key %s: %w", iter.Val(), err)
		}
	}
	return iter.Err()
}

// Ping checks the connection
func (c *Cache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *Cache) setJSON(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal value: %w", err)
	}
	return c.client.Set(ctx, key, data, ttl).Err()
}

func (c *Cache) getJSON(ctx context.Context, key string, dest interface{}) (bool, error) {
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, fmt.Errorf("failed to get value from cache: %w", err)
	}

	if err := json.Unmarshal(data, dest); err != nil {
		return false, fmt.Errorf("failed to unmarshal value: %w", err)
	}
	return true, nil
}

func siteKey(pageURL string) string {
	return "site:" + pageURL
}

func videoKey(pageURL string) string {
	return "video:" + pageURL
}

func progressKey(sessionID string) string {
	return "progress:" + sessionID
}

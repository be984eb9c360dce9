package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/nerrad567/slotlink-core/internal/infrastructure/config"
)

const (
	defaultConnectTimeout = 5 * time.Second
	defaultLatestTTL      = 24 * time.Hour

	keyLatestFormat = "slot:last:%d"
	timeLayout      = "2006-01-02T15:04:05.000Z07:00"
)

// Client is the latest-value cache. Safe for concurrent use.
type Client struct {
	rdb *goredis.Client
	ttl time.Duration

	mu     sync.RWMutex
	closed bool
}

// Latest is a cached slot value. ID is the stored reading's row id.
type Latest struct {
	ID    int64
	Value string
	At    time.Time
}

// Connect pings Redis and returns a ready client. It returns ErrDisabled
// when redis.enabled is false.
func Connect(cfg config.RedisConfig) (*Client, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), defaultConnectTimeout)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close() //nolint:errcheck // already failing
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	ttl := time.Duration(cfg.LatestTTL) * time.Second
	if ttl <= 0 {
		ttl = defaultLatestTTL
	}
	return &Client{rdb: rdb, ttl: ttl}, nil
}

// LatestKey returns the cache key for a slot.
func LatestKey(slotNumber int) string {
	return fmt.Sprintf(keyLatestFormat, slotNumber)
}

// SetLatest stores reading id's value as the slot's latest and refreshes
// the TTL.
func (c *Client) SetLatest(ctx context.Context, slotNumber int, id int64, value string, at time.Time) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}

	key := LatestKey(slotNumber)
	_, err := c.rdb.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.HSet(ctx, key, "id", id, "value", value, "at", at.UTC().Format(timeLayout))
		pipe.Expire(ctx, key, c.ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("caching latest for slot %d: %w", slotNumber, err)
	}
	return nil
}

// GetLatest returns the cached value, or nil if none is cached.
func (c *Client) GetLatest(ctx context.Context, slotNumber int) (*Latest, error) {
	if !c.IsConnected() {
		return nil, ErrNotConnected
	}

	fields, err := c.rdb.HGetAll(ctx, LatestKey(slotNumber)).Result()
	if errors.Is(err, goredis.Nil) || (err == nil && len(fields) == 0) {
		return nil, nil //nolint:nilnil // cache miss
	}
	if err != nil {
		return nil, fmt.Errorf("reading latest for slot %d: %w", slotNumber, err)
	}

	latest := &Latest{Value: fields["value"]}
	latest.ID, _ = strconv.ParseInt(fields["id"], 10, 64) //nolint:errcheck // written by SetLatest
	latest.At, _ = time.Parse(timeLayout, fields["at"])   //nolint:errcheck // written by SetLatest
	return latest, nil
}

// DeleteLatest drops the cached value of a slot.
func (c *Client) DeleteLatest(ctx context.Context, slotNumber int) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}
	if err := c.rdb.Del(ctx, LatestKey(slotNumber)).Err(); err != nil {
		return fmt.Errorf("deleting latest for slot %d: %w", slotNumber, err)
	}
	return nil
}

// HealthCheck pings Redis.
func (c *Client) HealthCheck(ctx context.Context) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}
	if err := c.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis health check failed: %w", err)
	}
	return nil
}

// IsConnected reports whether the client is open. It does not ping.
func (c *Client) IsConnected() bool {
	if c == nil {
		return false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.rdb != nil && !c.closed
}

// Close closes the connection pool. Safe to call more than once.
func (c *Client) Close() error {
	if c == nil || c.rdb == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	return c.rdb.Close()
}

package infrastructure

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"grainflow/models"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

const balanceKeyPrefix = "wallet:user:"

// setIfNewer stores ARGV[1] unless the cached view carries a higher version than ARGV[2].
// ARGV[3] is the TTL in milliseconds, 0 for none. Undecodable entries are overwritten.
var setIfNewer = redis.NewScript(`
local current = redis.call('GET', KEYS[1])
if current then
	local ok, cached = pcall(cjson.decode, current)
	if ok and type(cached) == 'table' and tonumber(cached['version']) and tonumber(cached['version']) > tonumber(ARGV[2]) then
		return 0
	end
end
if tonumber(ARGV[3]) > 0 then
	redis.call('SET', KEYS[1], ARGV[1], 'PX', ARGV[3])
else
	redis.call('SET', KEYS[1], ARGV[1])
end
return 1
`)

// RedisBalanceCache caches balance views in Redis. It is a read-through cache; the
// ledger in Postgres stays the source of truth.
type RedisBalanceCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisBalanceCache creates a cache over an existing client
func NewRedisBalanceCache(client *redis.Client, ttl time.Duration) *RedisBalanceCache {
	return &RedisBalanceCache{
		client: client,
		ttl:    ttl,
	}
}

// ConnectRedis opens and pings a Redis client
func ConnectRedis(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", addr, err)
	}

	log.WithField("addr", addr).Info("Connected to Redis")
	return client, nil
}

func balanceKey(userID int64) string {
	return fmt.Sprintf("%s%d", balanceKeyPrefix, userID)
}

// Get returns nil without error on a miss
func (c *RedisBalanceCache) Get(ctx context.Context, userID int64) (*models.BalanceView, error) {
	raw, err := c.client.Get(ctx, balanceKey(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read cached balance for user %d: %w", userID, err)
	}

	var view models.BalanceView
	if err := json.Unmarshal(raw, &view); err != nil {
		return nil, fmt.Errorf("failed to decode cached balance for user %d: %w", userID, err)
	}
	return &view, nil
}

// Set stores a view with the configured TTL unless a newer version is already cached
func (c *RedisBalanceCache) Set(ctx context.Context, view *models.BalanceView) error {
	raw, err := json.Marshal(view)
	if err != nil {
		return fmt.Errorf("failed to encode balance for user %d: %w", view.UserID, err)
	}

	stored, err := setIfNewer.Run(ctx, c.client, []string{balanceKey(view.UserID)}, raw, view.Version, c.ttl.Milliseconds()).Int()
	if err != nil {
		return fmt.Errorf("failed to cache balance for user %d: %w", view.UserID, err)
	}
	if stored == 0 {
		log.WithFields(log.Fields{
			"userID":  view.UserID,
			"version": view.Version,
		}).Debug("Kept newer cached balance")
	}
	return nil
}

// Invalidate drops a cached view
func (c *RedisBalanceCache) Invalidate(ctx context.Context, userID int64) error {
	if err := c.client.Del(ctx, balanceKey(userID)).Err(); err != nil {
		return fmt.Errorf("failed to invalidate cached balance for user %d: %w", userID, err)
	}
	return nil
}

package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/tom474/fleetbooking/config"
	"github.com/tom474/fleetbooking/internal/domain"
)

// RedisCache provides the per-entity operation locks that serialize
// approval/assignment mutations, and a read-through cache for resolved
// locations.
type RedisCache struct {
	client      *redis.Client
	locationTTL time.Duration
}

func NewRedisCache(cfg config.RedisConfig, locationTTL time.Duration) *RedisCache {
	return &RedisCache{
		client:      redis.NewClient(&redis.Options{Addr: cfg.Addr, Password: cfg.Password, DB: cfg.DB}),
		locationTTL: locationTTL,
	}
}

func (c *RedisCache) AcquireDriverLock(ctx context.Context, driverID string, ttl time.Duration) (bool, error) {
	return c.client.SetNX(ctx, driverLockKey(driverID), "locked", ttl).Result()
}

func (c *RedisCache) ReleaseDriverLock(ctx context.Context, driverID string) error {
	return c.client.Del(ctx, driverLockKey(driverID)).Err()
}

func (c *RedisCache) AcquireBookingLock(ctx context.Context, bookingID string, ttl time.Duration) (bool, error) {
	return c.client.SetNX(ctx, bookingLockKey(bookingID), "locked", ttl).Result()
}

func (c *RedisCache) ReleaseBookingLock(ctx context.Context, bookingID string) error {
	return c.client.Del(ctx, bookingLockKey(bookingID)).Err()
}

func (c *RedisCache) GetLocation(ctx context.Context, id string) (*domain.Location, error) {
	data, err := c.client.Get(ctx, locationKey(id)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, err
	}

	var location domain.Location
	if err := json.Unmarshal(data, &location); err != nil {
		return nil, err
	}
	return &location, nil
}

func (c *RedisCache) SetLocation(ctx context.Context, location *domain.Location) error {
	payload, err := json.Marshal(location)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, locationKey(location.ID), payload, c.locationTTL).Err()
}

func driverLockKey(driverID string) string {
	return fmt.Sprintf("lock:driver:%s", driverID)
}

func bookingLockKey(bookingID string) string {
	return fmt.Sprintf("lock:booking:%s", bookingID)
}

func locationKey(id string) string {
	return fmt.Sprintf("cache:location:%s", id)
}

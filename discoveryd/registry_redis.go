package discoveryd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/user/paybeacon/beacon"
)

const (
	regKeyPrefix  = "pb:beacon:"
	ctxKeyPrefix  = "pb:ctx:"
	rateKeyPrefix = "pb:rl:"
)

// RedisRegistry stores registrations in Redis. Token expiry rides on Redis
// key TTLs, so expired registrations vanish without a sweeper.
type RedisRegistry struct {
	client *redis.Client
}

// NewRedisRegistry wraps an existing client.
func NewRedisRegistry(client *redis.Client) *RedisRegistry {
	return &RedisRegistry{client: client}
}

// NewRedisClient connects and pings a Redis server.
func NewRedisClient(ctx context.Context, cfg RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return client, nil
}

func regKey(token uint32) string {
	return regKeyPrefix + beacon.TokenHex(token)
}

func ctxKey(dctx beacon.DiscoveryContext) string {
	return ctxKeyPrefix + string(dctx)
}

func (r *RedisRegistry) Create(ctx context.Context, reg Registration) error {
	payload, err := json.Marshal(reg)
	if err != nil {
		return err
	}

	ttl := time.Until(reg.ExpiresAt)
	if ttl <= 0 {
		return fmt.Errorf("registration already expired")
	}

	ok, err := r.client.SetNX(ctx, regKey(reg.Token), payload, ttl).Result()
	if err != nil {
		return err
	}
	if !ok {
		return ErrTokenTaken
	}

	// Context index entries may outlive their registration; readers
	// treat a missing registration key as eviction.
	if err := r.client.SAdd(ctx, ctxKey(reg.Context), beacon.TokenHex(reg.Token)).Err(); err != nil {
		return err
	}
	return nil
}

func (r *RedisRegistry) Get(ctx context.Context, token uint32) (*Registration, error) {
	data, err := r.client.Get(ctx, regKey(token)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	var reg Registration
	if err := json.Unmarshal(data, &reg); err != nil {
		return nil, err
	}
	return &reg, nil
}

func (r *RedisRegistry) Delete(ctx context.Context, token uint32) error {
	reg, err := r.Get(ctx, token)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	if err := r.client.Del(ctx, regKey(token)).Err(); err != nil {
		return err
	}
	return r.client.SRem(ctx, ctxKey(reg.Context), beacon.TokenHex(token)).Err()
}

func (r *RedisRegistry) ActiveByContext(ctx context.Context, dctx beacon.DiscoveryContext) ([]Registration, error) {
	contexts := []beacon.DiscoveryContext{dctx}
	if dctx == "" {
		contexts = []beacon.DiscoveryContext{beacon.ContextP2PReceive, beacon.ContextMerchantReceive}
	}

	var out []Registration
	for _, dc := range contexts {
		members, err := r.client.SMembers(ctx, ctxKey(dc)).Result()
		if err != nil {
			return nil, err
		}
		for _, hex := range members {
			token, err := beacon.ParseTokenHex(hex)
			if err != nil {
				continue
			}
			reg, err := r.Get(ctx, token)
			if errors.Is(err, ErrNotFound) {
				// Registration key expired; drop the stale index entry.
				r.client.SRem(ctx, ctxKey(dc), hex)
				continue
			}
			if err != nil {
				return nil, err
			}
			out = append(out, *reg)
		}
	}
	return out, nil
}

func (r *RedisRegistry) IncrementLookup(ctx context.Context, principal string, window time.Duration) (int64, time.Time, error) {
	key := rateKeyPrefix + principal

	count, err := r.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, time.Time{}, err
	}
	if count == 1 {
		if err := r.client.Expire(ctx, key, window).Err(); err != nil {
			return 0, time.Time{}, err
		}
	}

	ttl, err := r.client.TTL(ctx, key).Result()
	if err != nil || ttl < 0 {
		ttl = window
	}
	return count, time.Now().Add(ttl), nil
}

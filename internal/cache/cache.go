// Package cache puts a Redis read-through cache in front of the promotion
// and tax sources.
package cache

import (
	"context"
	"slices"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/xenking/pos-pricing/internal/domain/promotion"
	"github.com/xenking/pos-pricing/internal/domain/tax"
)

const (
	keyPrefix     = "pos-pricing:"
	promotionsKey = keyPrefix + "promotions:"
	taxesKey      = keyPrefix + "taxes"
)

// Cache wraps a promotion source and a tax source.
//
// Cached promotion lists are keyed by branch only, so a promotion whose
// window opens or closes shows up or disappears within one TTL; callers
// re-filter with promotion.Eligible. Redis failures are logged and the
// request falls through to the wrapped source.
type Cache struct {
	client redis.UniversalClient
	promos promotion.Source
	taxes  tax.Source
	ttl    time.Duration
}

var (
	_ promotion.Source = (*Cache)(nil)
	_ tax.Source       = (*Cache)(nil)
)

// New creates a Cache. A nil client or a non-positive ttl disables caching.
func New(client redis.UniversalClient, promos promotion.Source, taxes tax.Source, ttl time.Duration) *Cache {
	return &Cache{client: client, promos: promos, taxes: taxes, ttl: ttl}
}

func (c *Cache) enabled() bool {
	return c.client != nil && c.ttl > 0
}

// ActivePromotions implements promotion.Source.
func (c *Cache) ActivePromotions(ctx context.Context, branchID string, now time.Time) ([]promotion.Promotion, error) {
	return readThrough(ctx, c, promotionsKey+branchID,
		func(ctx context.Context) ([]promotion.Promotion, error) {
			return c.promos.ActivePromotions(ctx, branchID, now)
		},
		promotion.UnmarshalList,
		promotion.EncodeList,
	)
}

// ActiveTaxes implements tax.Source.
func (c *Cache) ActiveTaxes(ctx context.Context) ([]tax.Definition, error) {
	return readThrough(ctx, c, taxesKey,
		c.taxes.ActiveTaxes,
		func(data []byte) ([]tax.Definition, error) {
			return tax.DecodeDefinitions(jx.DecodeBytes(data))
		},
		tax.EncodeDefinitions,
	)
}

// InvalidatePromotions drops cached promotion lists for the given branches,
// or for every branch when none are given.
func (c *Cache) InvalidatePromotions(ctx context.Context, branchIDs ...string) error {
	if !c.enabled() {
		return nil
	}
	keys := make([]string, 0, len(branchIDs))
	for _, id := range branchIDs {
		keys = append(keys, promotionsKey+id)
	}
	if len(keys) == 0 {
		iter := c.client.Scan(ctx, 0, promotionsKey+"*", 100).Iterator()
		for iter.Next(ctx) {
			keys = append(keys, iter.Val())
		}
		if err := iter.Err(); err != nil {
			return errors.Wrap(err, "scan promotion keys")
		}
	}
	if len(keys) == 0 {
		return nil
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		return errors.Wrap(err, "delete promotion keys")
	}
	return nil
}

// InvalidateTaxes drops the cached tax definitions.
func (c *Cache) InvalidateTaxes(ctx context.Context) error {
	if !c.enabled() {
		return nil
	}
	if err := c.client.Del(ctx, taxesKey).Err(); err != nil {
		return errors.Wrap(err, "delete tax key")
	}
	return nil
}

// Ping checks the Redis connection.
func (c *Cache) Ping(ctx context.Context) error {
	if c.client == nil {
		return nil
	}
	return c.client.Ping(ctx).Err()
}

func readThrough[T any](
	ctx context.Context,
	c *Cache,
	key string,
	load func(context.Context) ([]T, error),
	decode func([]byte) ([]T, error),
	encode func(*jx.Encoder, []T),
) ([]T, error) {
	if !c.enabled() {
		return load(ctx)
	}
	lg := zctx.From(ctx).With(zap.String("cache_key", key))

	data, err := c.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		v, err := decode(data)
		if err == nil {
			lg.Debug("Cache hit")
			return v, nil
		}
		lg.Warn("Dropping undecodable cache entry", zap.Error(err))
	case errors.Is(err, redis.Nil):
		lg.Debug("Cache miss")
	default:
		lg.Warn("Cache read failed", zap.Error(err))
	}

	v, err := load(ctx)
	if err != nil {
		return nil, err
	}

	e := jx.GetEncoder()
	defer jx.PutEncoder(e)
	encode(e, v)
	if err := c.client.Set(ctx, key, slices.Clone(e.Bytes()), c.ttl).Err(); err != nil {
		lg.Warn("Cache write failed", zap.Error(err))
	}
	return v, nil
}

package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/redis/go-redis/v9"

	"github.com/xenking/pos-pricing/internal/cache"
	"github.com/xenking/pos-pricing/internal/domain/discount"
	"github.com/xenking/pos-pricing/internal/domain/promotion"
	"github.com/xenking/pos-pricing/internal/domain/tax"
	"github.com/xenking/pos-pricing/internal/repository"
)

type seedData struct {
	Promotions []promotion.Promotion
	Taxes      []tax.Definition
}

func main() {
	var (
		databaseURL string
		redisURL    string
		seedFile    string
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&redisURL, "redis-url", "", "Redis URL whose promotion cache is invalidated after seeding (or REDIS_URL env)")
	flag.StringVar(&seedFile, "seed-file", "db/seed/pricing.json", "path to the promotions and taxes JSON file")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}
	if redisURL == "" {
		redisURL = os.Getenv("REDIS_URL")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, redisURL, seedFile); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, databaseURL, redisURL, seedFile string) error {
	data, err := readSeed(seedFile)
	if err != nil {
		return err
	}

	slog.Info("connecting to database")

	pool, err := repository.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	slog.Info("running migrations")

	if err := repository.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	promos := repository.NewPromotionRepository(pool)
	for _, p := range data.Promotions {
		if err := promos.Upsert(ctx, p); err != nil {
			return err
		}
		slog.Info("upserted promotion",
			slog.String("id", p.ID),
			slog.String("type", string(p.Effect.Type)),
			slog.Bool("active", p.Active),
		)
	}

	taxes := repository.NewTaxRepository(pool)
	for i, def := range data.Taxes {
		if err := taxes.Upsert(ctx, def, i); err != nil {
			return err
		}
		slog.Info("upserted tax", slog.String("code", def.Code), slog.String("rate", def.Rate.String()))
	}

	if redisURL == "" {
		return nil
	}
	return invalidateCache(ctx, redisURL, promos, taxes)
}

// readSeed decodes {"promotions": [...], "taxes": [...]} and validates it
// before anything is written.
func readSeed(path string) (*seedData, error) {
	slog.Info("reading seed file", slog.String("path", path))

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read seed file")
	}

	var data seedData
	if err := jx.DecodeBytes(raw).Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "promotions":
			data.Promotions, err = promotion.DecodeList(d)
		case "taxes":
			data.Taxes, err = tax.DecodeDefinitions(d)
		default:
			err = d.Skip()
		}
		if err != nil {
			return errors.Wrapf(err, "decode %q", key)
		}
		return nil
	}); err != nil {
		return nil, errors.Wrap(err, "parse seed file")
	}

	for _, p := range data.Promotions {
		if p.Effect == nil {
			return nil, errors.Errorf("promotion %q has no effect", p.ID)
		}
		if err := discount.ValidatePayload(p.Effect); err != nil {
			return nil, errors.Wrapf(err, "promotion %q", p.ID)
		}
		if err := p.LogicErr(); err != nil {
			return nil, errors.Wrapf(err, "promotion %q", p.ID)
		}
	}
	if err := tax.Validate(data.Taxes); err != nil {
		return nil, err
	}
	return &data, nil
}

func invalidateCache(ctx context.Context, redisURL string, promos promotion.Source, taxes tax.Source) error {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return errors.Wrap(err, "parse redis url")
	}
	client := redis.NewClient(opts)
	defer func() { _ = client.Close() }()

	c := cache.New(client, promos, taxes, time.Minute)
	if err := c.InvalidatePromotions(ctx); err != nil {
		return err
	}
	if err := c.InvalidateTaxes(ctx); err != nil {
		return err
	}

	slog.Info("invalidated promotion cache")
	return nil
}

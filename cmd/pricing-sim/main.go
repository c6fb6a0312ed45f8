// Command pricing-sim runs a file of what-if checkout scenarios through the
// pricing pipeline and writes one JSON result per line.
package main

import (
	"context"
	"os"

	"github.com/cristalhq/aconfig"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xenking/pos-pricing/internal/domain/checkout"
	"github.com/xenking/pos-pricing/internal/domain/pricing"
	"github.com/xenking/pos-pricing/internal/domain/promotion"
	"github.com/xenking/pos-pricing/internal/domain/rule"
	"github.com/xenking/pos-pricing/internal/simulation"
)

// SimConfig is loaded from POS_SIM_* variables and flags.
type SimConfig struct {
	Input    string `flag:"in" usage:"Scenario file: JSON array or JSON lines, .gz is gunzipped" validate:"required"`
	Output   string `flag:"out" default:"-" usage:"Result file (JSON lines, .gz compresses); - writes to stdout"`
	Defaults string `flag:"defaults" usage:"Promotions and taxes applied to scenarios without their own (seed file layout)"`
	Workers  int    `flag:"workers" default:"0" usage:"Parallel scenarios, 0 means GOMAXPROCS" validate:"gte=0"`

	SweepProduct    string   `flag:"sweep-product" usage:"Expand every scenario into a price sweep for this product"`
	SweepPrices     []string `flag:"sweep-prices" usage:"Comma separated unit prices for the sweep"`
	SweepElasticity float64  `flag:"sweep-elasticity" default:"1" usage:"Constant price elasticity of demand" validate:"gte=0"`
}

func loadConfig() (*SimConfig, error) {
	var cfg SimConfig
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "POS_SIM",
		SkipFiles: true,
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	if err := validator.New().Struct(&cfg); err != nil {
		return nil, errors.Wrap(err, "invalid config")
	}
	if cfg.SweepProduct != "" && len(cfg.SweepPrices) == 0 {
		return nil, errors.New("--sweep-prices is required with --sweep-product")
	}
	return &cfg, nil
}

func main() {
	app.Run(func(ctx context.Context, lg *zap.Logger, m *app.Telemetry) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		return run(ctx, lg, m, cfg)
	})
}

func run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *SimConfig) error {
	batch, err := simulation.NewLoader(lg.Named("loader"), 0).LoadFile(ctx, cfg.Input)
	if err != nil {
		return errors.Wrap(err, "load scenarios")
	}

	var defaults simulation.Defaults
	if cfg.Defaults != "" {
		if defaults, err = simulation.LoadDefaults(cfg.Defaults); err != nil {
			return errors.Wrap(err, "load defaults")
		}
	}

	scenarios := batch.Scenarios
	if cfg.SweepProduct != "" {
		if scenarios, err = sweep(scenarios, cfg); err != nil {
			return err
		}
	}
	lg.Info("Scenarios loaded",
		zap.Int("scenarios", len(scenarios)),
		zap.Int("duplicates", len(batch.Duplicates)),
		zap.Int("default_promotions", len(defaults.Promotions)),
	)

	rules, err := rule.NewEvaluator(lg.Named("rule"), m.MeterProvider().Meter("github.com/xenking/pos-pricing/internal/domain/rule"))
	if err != nil {
		return errors.Wrap(err, "create rule evaluator")
	}
	calc := pricing.NewCalculator(promotion.NewEngine(lg.Named("promotion"), rules), lg.Named("pricing"))
	harness, err := simulation.NewHarness(checkout.NewPipeline(calc), simulation.Options{
		Workers:  cfg.Workers,
		Defaults: defaults,
		Logger:   lg.Named("simulation"),
		Meter:    m.MeterProvider(),
		Tracer:   m.TracerProvider(),
	})
	if err != nil {
		return errors.Wrap(err, "create harness")
	}

	results := harness.SimulateBatch(ctx, scenarios)
	simulation.SortResults(results)

	if err := writeResults(cfg.Output, results); err != nil {
		return err
	}

	s := simulation.Summarize(results)
	lg.Info("Simulation summary",
		zap.Int("total", s.Total),
		zap.Int("ok", s.OK),
		zap.Int("failed", s.Failed),
		zap.Stringer("revenue", s.Revenue),
		zap.String("best_id", s.BestID),
		zap.Stringer("best_revenue", s.BestRevenue),
	)
	return ctx.Err()
}

func sweep(scenarios []simulation.Scenario, cfg *SimConfig) ([]simulation.Scenario, error) {
	prices := make([]decimal.Decimal, 0, len(cfg.SweepPrices))
	for _, raw := range cfg.SweepPrices {
		p, err := decimal.NewFromString(raw)
		if err != nil {
			return nil, errors.Wrapf(err, "parse sweep price %q", raw)
		}
		prices = append(prices, p)
	}

	out := make([]simulation.Scenario, 0, len(scenarios)*len(prices))
	for _, s := range scenarios {
		out = append(out, simulation.ElasticitySweep(s, cfg.SweepProduct, prices, cfg.SweepElasticity)...)
	}
	return out, nil
}

func writeResults(path string, results []simulation.Result) error {
	var (
		w   *simulation.Writer
		err error
	)
	if path == "-" {
		w = simulation.NewWriter(os.Stdout)
	} else if w, err = simulation.CreateFile(path); err != nil {
		return errors.Wrap(err, "create output")
	}

	if err := w.WriteAll(results); err != nil {
		_ = w.Close()
		return errors.Wrap(err, "write results")
	}
	if err := w.Close(); err != nil {
		return errors.Wrap(err, "close output")
	}
	return nil
}

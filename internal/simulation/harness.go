package simulation

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"github.com/go-faster/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/pos-pricing/internal/domain/checkout"
)

// Options configures a Harness. Zero values get defaults.
type Options struct {
	// Workers bounds the number of scenarios evaluated at once.
	// Defaults to GOMAXPROCS.
	Workers  int
	Defaults Defaults
	Logger   *zap.Logger
	Meter    metric.MeterProvider
	Tracer   trace.TracerProvider
}

// Harness evaluates scenarios through a checkout pipeline.
type Harness struct {
	eval     func(checkout.Input) (*checkout.Quote, error)
	defaults Defaults
	workers  int
	lg       *zap.Logger
	tracer   trace.Tracer

	scenarios metric.Int64Counter
	duration  metric.Float64Histogram
}

// NewHarness creates a Harness around pipeline.
func NewHarness(pipeline *checkout.Pipeline, opts Options) (*Harness, error) {
	if pipeline == nil {
		pipeline = checkout.NewPipeline(nil)
	}
	if opts.Workers <= 0 {
		opts.Workers = runtime.GOMAXPROCS(0)
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Meter == nil {
		opts.Meter = metricnoop.NewMeterProvider()
	}
	if opts.Tracer == nil {
		opts.Tracer = tracenoop.NewTracerProvider()
	}

	meter := opts.Meter.Meter("github.com/xenking/pos-pricing/internal/simulation")
	scenarios, err := meter.Int64Counter("pricing.simulation.scenarios",
		metric.WithDescription("Simulated scenarios by outcome"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "create scenarios counter")
	}
	duration, err := meter.Float64Histogram("pricing.simulation.duration",
		metric.WithDescription("Scenario evaluation time"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "create duration histogram")
	}

	return &Harness{
		eval:      pipeline.Run,
		defaults:  opts.Defaults,
		workers:   opts.Workers,
		lg:        opts.Logger,
		tracer:    opts.Tracer.Tracer("github.com/xenking/pos-pricing/internal/simulation"),
		scenarios: scenarios,
		duration:  duration,
	}, nil
}

// SimulateBatch evaluates every scenario and returns one result per
// scenario, in input order. A failing or panicking scenario yields a result
// with OK false and never affects the others. Once ctx is done no new
// scenario is started and the remaining ones report the context error.
func (h *Harness) SimulateBatch(ctx context.Context, scenarios []Scenario) []Result {
	ctx, span := h.tracer.Start(ctx, "simulation.SimulateBatch",
		trace.WithAttributes(
			attribute.Int("scenarios", len(scenarios)),
			attribute.Int("workers", h.workers),
		),
	)
	defer span.End()

	results := make([]Result, len(scenarios))
	var g errgroup.Group
	g.SetLimit(h.workers)

	for i := range scenarios {
		if err := ctx.Err(); err != nil {
			for j := i; j < len(scenarios); j++ {
				results[j] = Result{ID: scenarios[j].ID, Error: err.Error()}
			}
			break
		}
		g.Go(func() error {
			results[i] = h.run(ctx, scenarios[i])
			return nil
		})
	}
	_ = g.Wait()

	failed := 0
	for _, r := range results {
		if !r.OK {
			failed++
		}
	}
	span.SetAttributes(attribute.Int("failed", failed))
	if failed > 0 {
		span.SetStatus(codes.Error, fmt.Sprintf("%d scenarios failed", failed))
	}
	h.lg.Info("Simulation batch done",
		zap.Int("scenarios", len(scenarios)),
		zap.Int("failed", failed),
	)
	return results
}

// WithWorkers returns a copy of h bounded to n concurrent scenarios.
// Non-positive n returns h.
func (h *Harness) WithWorkers(n int) *Harness {
	if n <= 0 || n == h.workers {
		return h
	}
	c := *h
	c.workers = n
	return &c
}

// Simulate evaluates a single scenario.
func (h *Harness) Simulate(ctx context.Context, s Scenario) Result {
	return h.run(ctx, s)
}

func (h *Harness) run(ctx context.Context, s Scenario) (res Result) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			h.lg.Error("Scenario panicked",
				zap.String("scenario_id", s.ID),
				zap.Any("panic", r),
			)
			res = Result{ID: s.ID, Error: fmt.Sprintf("panic: %v", r)}
		}
		res.Duration = time.Since(start)

		outcome := "ok"
		if !res.OK {
			outcome = "failed"
		}
		attrs := metric.WithAttributes(attribute.String("outcome", outcome))
		h.scenarios.Add(ctx, 1, attrs)
		h.duration.Record(ctx, float64(res.Duration.Microseconds())/1000, attrs)
	}()

	q, err := h.eval(s.input(h.defaults))
	if err != nil {
		h.lg.Debug("Scenario failed", zap.String("scenario_id", s.ID), zap.Error(err))
		return Result{ID: s.ID, Error: err.Error()}
	}
	q.ID = s.ID
	return Result{ID: s.ID, OK: true, Quote: q}
}

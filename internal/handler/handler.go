// Package handler serves the pricing core over HTTP with jx JSON codecs.
package handler

import (
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/xenking/pos-pricing/internal/domain/checkout"
	"github.com/xenking/pos-pricing/internal/domain/pricing"
	"github.com/xenking/pos-pricing/internal/simulation"
)

// Config holds non-dependency configuration for the Handler.
type Config struct {
	// MaxBodyBytes caps request bodies. Defaults to 1 MiB.
	MaxBodyBytes int64
	// MaxScenarios caps the scenarios accepted by one simulate call.
	// Zero means no limit.
	MaxScenarios int
	// MaxWorkers caps the per-request worker override for simulate.
	MaxWorkers int
}

// Handler exposes pricing, tax, payment, quote and simulation endpoints.
type Handler struct {
	quotes   *checkout.Service
	calc     *pricing.Calculator
	harness  *simulation.Harness
	validate *validator.Validate
	cfg      Config
}

// NewHandler constructs a Handler with the required domain dependencies.
func NewHandler(
	cfg Config,
	quotes *checkout.Service,
	calc *pricing.Calculator,
	harness *simulation.Harness,
) *Handler {
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 1 << 20
	}
	if calc == nil {
		calc = pricing.NewCalculator(nil, nil)
	}
	return &Handler{
		quotes:   quotes,
		calc:     calc,
		harness:  harness,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		cfg:      cfg,
	}
}

// Register mounts the API routes on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/pricing", h.Pricing)
	mux.HandleFunc("POST /api/tax", h.Tax)
	mux.HandleFunc("POST /api/payment-status", h.PaymentStatus)
	mux.HandleFunc("POST /api/quote", h.Quote)
	mux.HandleFunc("POST /api/simulate", h.Simulate)
	mux.HandleFunc("POST /api/promotions/validate", h.ValidatePromotion)
}

package checkout

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xenking/pos-pricing/internal/domain/cart"
	"github.com/xenking/pos-pricing/internal/domain/payment"
	"github.com/xenking/pos-pricing/internal/domain/pricing"
	"github.com/xenking/pos-pricing/internal/domain/promotion"
	"github.com/xenking/pos-pricing/internal/domain/tax"
)

// QuoteRequest holds the input for a quote.
type QuoteRequest struct {
	BranchID        string
	Lines           []cart.LineItem
	ManualDiscounts []pricing.ManualDiscount
	Payments        []payment.Payment
	Tip             *payment.TipConfig
	Extra           map[string]any
}

// Service quotes carts against the configured promotion and tax sources.
type Service struct {
	promos   promotion.Source
	taxes    tax.Source
	pipeline *Pipeline
	now      func() time.Time
}

// NewService creates a checkout Service with the required dependencies.
func NewService(
	promos promotion.Source,
	taxes tax.Source,
	pipeline *Pipeline,
) *Service {
	if pipeline == nil {
		pipeline = NewPipeline(nil)
	}
	return &Service{
		promos:   promos,
		taxes:    taxes,
		pipeline: pipeline,
		now:      time.Now,
	}
}

// Quote loads the active promotions and taxes and runs the pipeline.
//
// Promotions returned by the source are filtered again for the branch and
// the current time.
func (s *Service) Quote(ctx context.Context, req QuoteRequest) (*Quote, error) {
	if len(req.Lines) == 0 {
		return nil, ErrEmptyCart
	}
	lg := zctx.From(ctx)
	now := s.now()

	promos, err := s.promos.ActivePromotions(ctx, req.BranchID, now)
	if err != nil {
		return nil, errors.Wrap(err, "load promotions")
	}
	promos = promotion.Eligible(promos, now, req.BranchID)

	taxes, err := s.taxes.ActiveTaxes(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "load taxes")
	}

	extra := make(map[string]any, len(req.Extra)+2)
	for k, v := range req.Extra {
		extra[k] = v
	}
	extra["branchId"] = req.BranchID
	extra["now"] = float64(now.Unix())

	q, err := s.pipeline.Run(Input{
		Lines:           req.Lines,
		ManualDiscounts: req.ManualDiscounts,
		Promotions:      promos,
		Taxes:           taxes,
		Payments:        req.Payments,
		Tip:             req.Tip,
		Extra:           extra,
	})
	if err != nil {
		return nil, err
	}
	q.ID = uuid.New().String()

	for _, f := range q.Pricing.Failures {
		lg.Warn("Promotion skipped",
			zap.String("quote_id", q.ID),
			zap.String("promo_id", f.PromoID),
			zap.String("kind", f.Kind),
			zap.Error(f.Err),
		)
	}
	lg.Debug("Quote computed",
		zap.String("quote_id", q.ID),
		zap.Int("promotions", len(promos)),
		zap.Stringer("total_due", q.TotalDue),
		zap.String("status", string(q.Payment.Status)),
	)
	return q, nil
}

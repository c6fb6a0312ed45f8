package handler

import (
	"fmt"
	"net/http"

	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/pos-pricing/internal/domain/cart"
	"github.com/xenking/pos-pricing/internal/domain/checkout"
	"github.com/xenking/pos-pricing/internal/domain/discount"
	"github.com/xenking/pos-pricing/internal/domain/payment"
	"github.com/xenking/pos-pricing/internal/domain/promotion"
	"github.com/xenking/pos-pricing/internal/domain/tax"
	"github.com/xenking/pos-pricing/internal/simulation"
)

// Pricing prices lines with the given manual discounts and promotions.
// Promotions are applied as given, without eligibility filtering.
func (h *Handler) Pricing(w http.ResponseWriter, r *http.Request) {
	var req pricingRequest
	if err := h.decodeBody(w, r, req.field); err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeError(w, r, err)
		return
	}

	res, err := h.calc.Calculate(req.Lines, req.ManualDiscounts, req.Promotions, req.Context)
	if err != nil {
		writeError(w, r, err)
		return
	}
	logFailures(r, res.Failures)
	writeJSON(w, http.StatusOK, res.Encode)
}

// Tax computes tax lines for already priced lines. A line's discount or
// netTotal, when sent, lowers its taxable base.
func (h *Handler) Tax(w http.ResponseWriter, r *http.Request) {
	var req taxRequest
	if err := h.decodeBody(w, r, req.field); err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeError(w, r, err)
		return
	}

	lines, err := cart.PreparePriced(req.Lines)
	if err != nil {
		writeError(w, r, err)
		return
	}
	res, err := tax.Calculate(lines, req.Taxes)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res.Encode)
}

// PaymentStatus reconciles payments against a total.
func (h *Handler) PaymentStatus(w http.ResponseWriter, r *http.Request) {
	var req paymentStatusRequest
	if err := h.decodeBody(w, r, req.field); err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeError(w, r, err)
		return
	}

	res, err := payment.EvaluateStatus(*req.Total, req.Payments)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res.Encode)
}

// Quote prices a cart against the stored promotions and taxes.
func (h *Handler) Quote(w http.ResponseWriter, r *http.Request) {
	var req quoteRequest
	if err := h.decodeBody(w, r, req.field); err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeError(w, r, err)
		return
	}

	q, err := h.quotes.Quote(r.Context(), checkout.QuoteRequest{
		BranchID:        req.BranchID,
		Lines:           req.Lines,
		ManualDiscounts: req.ManualDiscounts,
		Payments:        req.Payments,
		Tip:             req.Tip,
		Extra:           req.Context,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, q.Encode)
}

// Simulate runs a scenario batch and returns results sorted by id with a
// summary.
func (h *Handler) Simulate(w http.ResponseWriter, r *http.Request) {
	var req simulateRequest
	if err := h.decodeBody(w, r, req.field); err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeError(w, r, err)
		return
	}
	if h.cfg.MaxScenarios > 0 && len(req.Scenarios) > h.cfg.MaxScenarios {
		writeError(w, r, unprocessable(KindTooManyScenarios,
			fmt.Sprintf("%d scenarios exceeds limit %d", len(req.Scenarios), h.cfg.MaxScenarios)))
		return
	}

	workers := req.Workers
	if h.cfg.MaxWorkers > 0 {
		workers = min(workers, h.cfg.MaxWorkers)
	}
	results := h.harness.WithWorkers(workers).SimulateBatch(r.Context(), req.Scenarios)
	simulation.SortResults(results)
	summary := simulation.Summarize(results)

	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.ObjStart()
		e.FieldStart("results")
		simulation.EncodeResults(e, results)
		e.FieldStart("summary")
		summary.Encode(e)
		e.ObjEnd()
	})
}

// ValidatePromotion checks a promotion's effect and logic without applying
// it. The body is a promotion object; only "effect" is required.
func (h *Handler) ValidatePromotion(w http.ResponseWriter, r *http.Request) {
	data, err := h.readBody(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var p promotion.Promotion
	if err := p.Decode(jx.DecodeBytes(data)); err != nil {
		writeError(w, r, malformed(err))
		return
	}
	if err := p.LogicErr(); err != nil {
		writeError(w, r, err)
		return
	}
	if p.Effect == nil {
		writeError(w, r, unprocessable(promotion.KindInvalidEvent, `"effect" is required`))
		return
	}
	if err := discount.Validate(p.Effect); err != nil {
		writeError(w, r, err)
		return
	}
	if err := discount.ValidatePayload(p.Effect); err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.ObjStart()
		e.FieldStart("valid")
		e.Bool(true)
		e.FieldStart("effect")
		p.Effect.Encode(e)
		if p.Logic != nil {
			e.FieldStart("logic")
			p.Logic.Encode(e)
		}
		e.ObjEnd()
	})
}

func logFailures(r *http.Request, failures []promotion.Failure) {
	if len(failures) == 0 {
		return
	}
	lg := zctx.From(r.Context())
	for _, f := range failures {
		lg.Warn("Promotion skipped",
			zap.String("promo_id", f.PromoID),
			zap.String("kind", f.Kind),
			zap.Error(f.Err),
		)
	}
}

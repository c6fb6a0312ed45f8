package handler

import (
	"io"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/pos-pricing/internal/domain/cart"
	"github.com/xenking/pos-pricing/internal/domain/payment"
	"github.com/xenking/pos-pricing/internal/domain/pricing"
	"github.com/xenking/pos-pricing/internal/domain/promotion"
	"github.com/xenking/pos-pricing/internal/domain/rule"
	"github.com/xenking/pos-pricing/internal/domain/tax"
	"github.com/xenking/pos-pricing/internal/money"
	"github.com/xenking/pos-pricing/internal/simulation"
)

type pricingRequest struct {
	Lines           []cart.LineItem          `validate:"required,min=1,max=500"`
	ManualDiscounts []pricing.ManualDiscount `validate:"max=20"`
	Promotions      []promotion.Promotion    `validate:"max=500"`
	Context         map[string]any
}

type taxRequest struct {
	Lines []cart.LineItem  `validate:"required,min=1,max=500"`
	Taxes []tax.Definition `validate:"max=100"`
}

type paymentStatusRequest struct {
	Total    *decimal.Decimal  `validate:"required"`
	Payments []payment.Payment `validate:"max=50"`
}

type quoteRequest struct {
	BranchID        string                   `validate:"max=64"`
	Lines           []cart.LineItem          `validate:"required,min=1,max=500"`
	ManualDiscounts []pricing.ManualDiscount `validate:"max=20"`
	Payments        []payment.Payment        `validate:"max=50"`
	Tip             *payment.TipConfig
	Context         map[string]any
}

type simulateRequest struct {
	Scenarios []simulation.Scenario `validate:"required,min=1"`
	Workers   int                   `validate:"gte=0"`
}

// readBody reads the request body up to the configured limit.
func (h *Handler) readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.cfg.MaxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, &apiError{Status: http.StatusRequestEntityTooLarge, Kind: KindMalformedJSON, Message: err.Error()}
		}
		return nil, malformed(errors.Wrap(err, "read body"))
	}
	return data, nil
}

// decodeBody reads a JSON object body field by field. Decode failures
// become 400 errors.
func (h *Handler) decodeBody(w http.ResponseWriter, r *http.Request, fn func(d *jx.Decoder, key string) error) error {
	data, err := h.readBody(w, r)
	if err != nil {
		return err
	}
	if err := jx.DecodeBytes(data).Obj(fn); err != nil {
		return malformed(err)
	}
	return nil
}

func decodeContext(d *jx.Decoder) (map[string]any, error) {
	v, err := rule.DecodeValue(d)
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, nil
	}
	m, ok := v.(map[string]any)
	if !ok {
		return nil, errors.New(`"context" must be an object`)
	}
	return m, nil
}

func wrapKey(key string, err error) error {
	if err != nil {
		return errors.Wrapf(err, "decode %q", key)
	}
	return nil
}

func (req *pricingRequest) field(d *jx.Decoder, key string) error {
	var err error
	switch key {
	case "lines":
		req.Lines, err = cart.DecodeLines(d)
	case "manualDiscounts":
		req.ManualDiscounts, err = pricing.DecodeManual(d)
	case "promotions":
		req.Promotions, err = promotion.DecodeList(d)
	case "context":
		req.Context, err = decodeContext(d)
	default:
		err = d.Skip()
	}
	return wrapKey(key, err)
}

func (req *taxRequest) field(d *jx.Decoder, key string) error {
	var err error
	switch key {
	case "lines":
		req.Lines, err = cart.DecodePricedLines(d)
	case "taxes":
		req.Taxes, err = tax.DecodeDefinitions(d)
	default:
		err = d.Skip()
	}
	return wrapKey(key, err)
}

func (req *paymentStatusRequest) field(d *jx.Decoder, key string) error {
	var err error
	switch key {
	case "total":
		var v decimal.Decimal
		v, err = money.Decode(d)
		req.Total = &v
	case "payments":
		req.Payments, err = payment.DecodePayments(d)
	default:
		err = d.Skip()
	}
	return wrapKey(key, err)
}

func (req *quoteRequest) field(d *jx.Decoder, key string) error {
	var err error
	switch key {
	case "branchId":
		req.BranchID, err = d.Str()
	case "lines":
		req.Lines, err = cart.DecodeLines(d)
	case "manualDiscounts":
		req.ManualDiscounts, err = pricing.DecodeManual(d)
	case "payments":
		req.Payments, err = payment.DecodePayments(d)
	case "tip":
		req.Tip, err = payment.DecodeTip(d)
	case "context":
		req.Context, err = decodeContext(d)
	default:
		err = d.Skip()
	}
	return wrapKey(key, err)
}

func (req *simulateRequest) field(d *jx.Decoder, key string) error {
	var err error
	switch key {
	case "scenarios":
		req.Scenarios, err = simulation.DecodeScenarios(d)
	case "workers":
		req.Workers, err = d.Int()
	default:
		err = d.Skip()
	}
	return wrapKey(key, err)
}

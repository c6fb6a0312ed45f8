package handler

import (
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/xenking/pos-pricing/internal/domain/checkout"
	"github.com/xenking/pos-pricing/internal/domain/payment"
)

// Error kinds that have no typed error of their own.
const (
	KindMalformedJSON    = "MALFORMED_JSON"
	KindValidation       = "VALIDATION_FAILED"
	KindEmptyCart        = "EMPTY_CART"
	KindInvalidPayment   = "INVALID_PAYMENT"
	KindInvalidTip       = "INVALID_TIP"
	KindTooManyScenarios = "TOO_MANY_SCENARIOS"
	KindInternal         = "INTERNAL"
)

// apiError is the body of every non-2xx response.
type apiError struct {
	Status  int
	Kind    string
	Message string
}

func (e *apiError) Error() string { return e.Message }

func (e *apiError) Encode(enc *jx.Encoder) {
	enc.ObjStart()
	enc.FieldStart("code")
	enc.Int(e.Status)
	enc.FieldStart("kind")
	enc.Str(e.Kind)
	enc.FieldStart("message")
	enc.Str(e.Message)
	enc.ObjEnd()
}

func malformed(err error) *apiError {
	return &apiError{Status: http.StatusBadRequest, Kind: KindMalformedJSON, Message: err.Error()}
}

func unprocessable(kind, msg string) *apiError {
	return &apiError{Status: http.StatusUnprocessableEntity, Kind: kind, Message: msg}
}

// mapError converts domain errors to API errors. Anything unrecognised is a
// 500 with a generic message.
func mapError(err error) *apiError {
	var ae *apiError
	if errors.As(err, &ae) {
		return ae
	}

	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		return unprocessable(KindValidation, verrs.Error())
	}

	var kinded interface{ Kind() string }
	if errors.As(err, &kinded) {
		return unprocessable(kinded.Kind(), err.Error())
	}

	switch {
	case errors.Is(err, checkout.ErrEmptyCart):
		return unprocessable(KindEmptyCart, err.Error())
	case errors.Is(err, payment.ErrNegativePayment):
		return unprocessable(KindInvalidPayment, err.Error())
	case errors.Is(err, payment.ErrInvalidTip):
		return unprocessable(KindInvalidTip, err.Error())
	}

	return &apiError{
		Status:  http.StatusInternalServerError,
		Kind:    KindInternal,
		Message: "internal server error",
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	ae := mapError(err)
	if ae.Status >= http.StatusInternalServerError {
		zctx.From(r.Context()).Error("Request failed", zap.Error(err))
	}
	writeJSON(w, ae.Status, ae.Encode)
}

func writeJSON(w http.ResponseWriter, status int, encode func(*jx.Encoder)) {
	e := jx.GetEncoder()
	defer jx.PutEncoder(e)
	encode(e)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(e.Bytes())
}

package checkout

import (
	"github.com/go-faster/jx"

	"github.com/xenking/pos-pricing/internal/money"
)

// Encode writes the quote as JSON.
func (q *Quote) Encode(e *jx.Encoder) {
	e.ObjStart()
	if q.ID != "" {
		e.FieldStart("id")
		e.Str(q.ID)
	}
	e.FieldStart("pricing")
	q.Pricing.Encode(e)
	e.FieldStart("tax")
	q.Tax.Encode(e)
	e.FieldStart("tip")
	money.EncodeAmount(e, q.Tip)
	e.FieldStart("totalDue")
	money.EncodeAmount(e, q.TotalDue)
	e.FieldStart("payment")
	q.Payment.Encode(e)
	e.ObjEnd()
}

package httpmiddleware

import (
	"net/http"

	"github.com/go-faster/jx"
)

// Error kinds written by the middlewares. The body shape matches the API
// error body: {"code", "kind", "message"}.
const (
	KindRateLimited = "RATE_LIMITED"
	KindInternal    = "INTERNAL"
)

func writeProblem(w http.ResponseWriter, status int, kind, msg string) {
	e := jx.GetEncoder()
	defer jx.PutEncoder(e)

	e.ObjStart()
	e.FieldStart("code")
	e.Int(status)
	e.FieldStart("kind")
	e.Str(kind)
	e.FieldStart("message")
	e.Str(msg)
	e.ObjEnd()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(e.Bytes())
}

package security

import (
	"errors"
	"net/http"

	"github.com/noah-isme/storefront-checkout/internal/common"
)

// BodyLimit caps request payloads. Checkout bodies are small JSON documents,
// so anything larger is rejected before decoding.
type BodyLimit struct {
	Max int64
}

// Middleware rejects declared oversize bodies up front and wraps the rest in
// http.MaxBytesReader so handlers see a read error past Max.
func (b BodyLimit) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if b.Max <= 0 || r.Body == nil || r.Body == http.NoBody {
			next.ServeHTTP(w, r)
			return
		}
		if r.ContentLength > b.Max {
			tooLarge(w)
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, b.Max)
		next.ServeHTTP(w, r)
	})
}

// IsTooLarge reports whether err came from a body cut off by BodyLimit.
func IsTooLarge(err error) bool {
	var maxErr *http.MaxBytesError
	return errors.As(err, &maxErr)
}

func tooLarge(w http.ResponseWriter) {
	common.JSONError(w, http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE", "request body too large", nil)
}

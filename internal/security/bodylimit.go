package security

import "net/http"

// BodyLimit caps request payload sizes. Basket and checkout payloads are a
// few hundred bytes, so anything large is a mistake or abuse.
type BodyLimit struct {
	Max int64
}

// Middleware answers 413 when the declared length exceeds the cap and wraps
// the body with http.MaxBytesReader so chunked streams cannot exceed it
// either.
func (b BodyLimit) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if b.Max <= 0 || r.Body == nil {
			next.ServeHTTP(w, r)
			return
		}
		if r.ContentLength > b.Max {
			http.Error(w, "request entity too large", http.StatusRequestEntityTooLarge)
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, b.Max)
		next.ServeHTTP(w, r)
	})
}

package middleware

import "net/http"

// MaxBodySize caps request bodies at maxBytes. A declared Content-Length over
// the cap is refused with 413 up front; otherwise reads past the cap fail with
// *http.MaxBytesError and the handler decides the response.
func MaxBodySize(maxBytes int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.ContentLength > maxBytes {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusRequestEntityTooLarge)
				//nolint:errcheck // Response write errors are unrecoverable
				w.Write([]byte(`{"error":"invalid_request","message":"request body too large"}`))
				return
			}
			r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			next.ServeHTTP(w, r)
		})
	}
}

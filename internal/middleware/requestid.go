package middleware

import (
	"net/http"

	"github.com/google/uuid"
)

// RequestID tags every request so error responses and log lines can be
// correlated. An inbound X-Request-ID is kept. The ID is written back
// onto the request header, which is where error responses read it.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
			r.Header.Set("X-Request-ID", id)
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r)
	})
}

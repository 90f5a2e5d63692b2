package idempotency

import (
	"bytes"
	"errors"
	"log/slog"
	"net/http"
)

// HeaderKey is the request header carrying the client supplied key.
const HeaderKey = "Idempotency-Key"

// Middleware replays completed responses for repeated Idempotency-Key headers.
// scope returns the caller identity the key is namespaced under. Requests
// without the header pass through untouched.
func Middleware(store *Store, scope func(*http.Request) string, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get(HeaderKey)
			if header == "" || store == nil || r.Method == http.MethodGet {
				next.ServeHTTP(w, r)
				return
			}

			key := Key(scope(r), r.Method, r.URL.Path, header)
			stored, err := store.Begin(r.Context(), key)
			switch {
			case errors.Is(err, ErrInProgress):
				http.Error(w, "request with this idempotency key is in progress", http.StatusConflict)
				return
			case err != nil:
				logger.Warn("idempotency: store unavailable, executing without replay", "error", err)
				next.ServeHTTP(w, r)
				return
			case stored != nil:
				if stored.ContentType != "" {
					w.Header().Set("Content-Type", stored.ContentType)
				}
				w.Header().Set("Idempotent-Replayed", "true")
				w.WriteHeader(stored.Status)
				_, _ = w.Write(stored.Body)
				return
			}

			rec := &recorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)

			if rec.status >= http.StatusInternalServerError {
				if err := store.Release(r.Context(), key); err != nil {
					logger.Warn("idempotency: release failed", "key", key, "error", err)
				}
				return
			}
			resp := Response{Status: rec.status, ContentType: rec.Header().Get("Content-Type"), Body: rec.body.Bytes()}
			if err := store.Complete(r.Context(), key, resp); err != nil {
				logger.Warn("idempotency: complete failed", "key", key, "error", err)
			}
		})
	}
}

type recorder struct {
	http.ResponseWriter
	status int
	body   bytes.Buffer
}

func (r *recorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *recorder) Write(b []byte) (int, error) {
	r.body.Write(b)
	return r.ResponseWriter.Write(b)
}

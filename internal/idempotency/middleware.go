package idempotency

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/RaikyD/storefront-orders/internal/logger"
)

const (
	HeaderKey      = "Idempotency-Key"
	HeaderReplayed = "Idempotent-Replayed"
	maxKeyLength   = 255
)

// Middleware replays completed responses for a repeated Idempotency-Key. scope namespaces keys,
// typically by caller, so two users cannot collide. Requests without the header pass through.
func Middleware(store Store, ttl time.Duration, scope func(*http.Request) string) func(http.Handler) http.Handler {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := strings.TrimSpace(r.Header.Get(HeaderKey))
			if key == "" {
				next.ServeHTTP(w, r)
				return
			}
			if len(key) > maxKeyLength {
				writeError(w, http.StatusBadRequest, "validation", "invalid_input", "Idempotency-Key is too long")
				return
			}
			if scope != nil {
				key = scope(r) + ":" + key
			}
			key = r.Method + ":" + r.URL.Path + ":" + key

			ctx := r.Context()
			rec, started, err := store.Begin(ctx, key, ttl)
			if err != nil {
				logger.Warn("idempotency store unavailable", "err", err)
				writeError(w, http.StatusServiceUnavailable, "transient", "storage_unavailable", "service temporarily unavailable")
				return
			}
			if rec != nil {
				if rec.ContentType != "" {
					w.Header().Set("Content-Type", rec.ContentType)
				}
				w.Header().Set(HeaderReplayed, "true")
				w.WriteHeader(rec.Status)
				_, _ = w.Write(rec.Body)
				return
			}
			if !started {
				writeError(w, http.StatusConflict, "conflict", "request_in_progress", "a request with this Idempotency-Key is in progress")
				return
			}

			cw := &captureWriter{ResponseWriter: w, status: http.StatusOK}
			defer func() {
				if p := recover(); p != nil {
					_ = store.Abort(ctx, key)
					panic(p)
				}
			}()
			next.ServeHTTP(cw, r)

			// Only successful responses are replayed; failures may be retried with the same key.
			if cw.status >= 200 && cw.status < 300 {
				err = store.Complete(ctx, key, Record{
					Status:      cw.status,
					ContentType: cw.Header().Get("Content-Type"),
					Body:        cw.body.Bytes(),
				}, ttl)
			} else {
				err = store.Abort(ctx, key)
			}
			if err != nil {
				logger.Warn("idempotency record not saved", "err", err)
			}
		})
	}
}

type captureWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
	body        bytes.Buffer
}

func (w *captureWriter) WriteHeader(status int) {
	if !w.wroteHeader {
		w.status = status
		w.wroteHeader = true
	}
	w.ResponseWriter.WriteHeader(status)
}

func (w *captureWriter) Write(b []byte) (int, error) {
	w.wroteHeader = true
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

func writeError(w http.ResponseWriter, status int, kind, code, msg string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]string{"kind": kind, "code": code, "message": msg},
	})
}

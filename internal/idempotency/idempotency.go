// Package idempotency replays the first response of a mutating request that
// is retried with the same Idempotency-Key.
package idempotency

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"lexbounty/pkg/requestcontext"
)

// HeaderKey is the request header carrying the client's idempotency key.
const HeaderKey = "Idempotency-Key"

// HeaderReplayed marks a response served from the idempotency store.
const HeaderReplayed = "Idempotent-Replayed"

// maxKeyLength bounds client supplied keys.
const maxKeyLength = 255

// pendingTTL bounds how long a reservation outlives a request that never
// finished, e.g. after a crash.
const pendingTTL = time.Minute

// Record is a stored response. A pending record marks a key whose first
// request is still running.
type Record struct {
	Pending     bool   `json:"pending,omitempty"`
	Status      int    `json:"status"`
	ContentType string `json:"content_type"`
	Body        []byte `json:"body"`
}

// Store keeps records for a bounded time.
//
// Reserve claims an unused key with a pending record and reports whether this
// caller won it. Save completes a key, replacing a pending record but never a
// completed one. Release drops a pending record so the request can be retried.
type Store interface {
	Get(ctx context.Context, key string) (*Record, bool, error)
	Reserve(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Save(ctx context.Context, key string, rec Record, ttl time.Duration) error
	Release(ctx context.Context, key string) error
}

// Key scopes a client key to the caller and endpoint.
func Key(actor, method, path, clientKey string) string {
	return strings.Join([]string{"idem", actor, method, path, clientKey}, "|")
}

type recorder struct {
	http.ResponseWriter
	status int
	body   bytes.Buffer
}

func (r *recorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *recorder) Write(p []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	r.body.Write(p)
	return r.ResponseWriter.Write(p)
}

// Middleware replays stored responses for repeated keys on non-GET requests.
// The key is reserved before the handler runs, so a duplicate arriving while
// the first request is in flight gets 409 instead of running twice. Server
// errors release the key so the client may retry them. A store failure
// degrades to executing the request.
func Middleware(store Store, ttl time.Duration, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			clientKey := r.Header.Get(HeaderKey)
			if clientKey == "" || r.Method == http.MethodGet || r.Method == http.MethodHead {
				next.ServeHTTP(w, r)
				return
			}
			ctx := r.Context()
			if len(clientKey) > maxKeyLength {
				writeError(w, http.StatusBadRequest, "bad_request", "Idempotency-Key is too long")
				return
			}

			key := Key(requestcontext.ActorID(ctx).String(), r.Method, r.URL.Path, clientKey)
			warn := func(msg string, err error) {
				logger.WarnContext(ctx, msg, "error", err, "request_id", requestcontext.RequestID(ctx))
			}

			rec, found, err := store.Get(ctx, key)
			if err != nil {
				warn("idempotency lookup failed", err)
				next.ServeHTTP(w, r)
				return
			}
			if found {
				replay(w, rec)
				return
			}

			reserved, err := store.Reserve(ctx, key, min(ttl, pendingTTL))
			if err != nil {
				warn("idempotency reserve failed", err)
				next.ServeHTTP(w, r)
				return
			}
			if !reserved {
				// lost the race to a concurrent duplicate
				rec, found, err := store.Get(ctx, key)
				if err == nil && found {
					replay(w, rec)
					return
				}
				writeInFlight(w)
				return
			}

			capture := &recorder{ResponseWriter: w}
			completed := false
			defer func() {
				if completed {
					return
				}
				// freed even when the client has gone away
				if err := store.Release(context.WithoutCancel(ctx), key); err != nil {
					warn("idempotency release failed", err)
				}
			}()

			next.ServeHTTP(capture, r)
			if capture.status == 0 || capture.status >= http.StatusInternalServerError {
				return
			}
			err = store.Save(context.WithoutCancel(ctx), key, Record{
				Status:      capture.status,
				ContentType: w.Header().Get("Content-Type"),
				Body:        capture.body.Bytes(),
			}, ttl)
			if err != nil {
				warn("idempotency save failed", err)
				return
			}
			completed = true
		})
	}
}

func replay(w http.ResponseWriter, rec *Record) {
	if rec.Pending {
		writeInFlight(w)
		return
	}
	if rec.ContentType != "" {
		w.Header().Set("Content-Type", rec.ContentType)
	}
	w.Header().Set(HeaderReplayed, "true")
	w.WriteHeader(rec.Status)
	_, _ = w.Write(rec.Body)
}

func writeInFlight(w http.ResponseWriter) {
	w.Header().Set("Retry-After", "1")
	writeError(w, http.StatusConflict, "conflict", "a request with this Idempotency-Key is still in progress")
}

func writeError(w http.ResponseWriter, status int, code, description string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":             code,
		"error_description": description,
	})
}

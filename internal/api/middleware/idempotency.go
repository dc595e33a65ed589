package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/ayo6706/logistics-wallet/internal/api/problem"
	"github.com/ayo6706/logistics-wallet/internal/idempotency"
	"github.com/ayo6706/logistics-wallet/internal/observability"
	"go.uber.org/zap"
)

const (
	maxIdempotencyKeyLen = 255
	finalizeTimeout      = 5 * time.Second
)

// IdempotencyMiddleware makes money-moving POSTs safe to retry. Keys are scoped to the
// caller's business so two tenants can reuse the same key. A key replayed with the same
// body returns the stored response; a different body is a 409.
func IdempotencyMiddleware(store *idempotency.Store, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if store == nil || r.Method != http.MethodPost {
				next.ServeHTTP(w, r)
				return
			}

			clientKey := r.Header.Get("Idempotency-Key")
			switch {
			case clientKey == "":
				observability.IncrementIdempotencyEvent("missing_key")
				problem.Write(w, r, http.StatusBadRequest, problem.Type("idempotency/missing-key"), "", "Idempotency-Key header is required")
				return
			case len(clientKey) > maxIdempotencyKeyLen:
				observability.IncrementIdempotencyEvent("invalid_key")
				problem.Write(w, r, http.StatusBadRequest, problem.Type("idempotency/invalid-key"), "", "Idempotency-Key must be at most 255 characters")
				return
			}

			body, err := io.ReadAll(r.Body)
			if err != nil {
				problem.Write(w, r, http.StatusBadRequest, problem.Type("request/invalid-body"), "", "Failed to read request body")
				return
			}
			_ = r.Body.Close()
			r.Body = io.NopCloser(bytes.NewReader(body))

			principal, _ := PrincipalFromContext(r.Context())
			key := principal.Scope() + ":" + clientKey
			reqHash := hashRequest(r.Method, r.URL.Path, body)
			log := logger.With(zap.String("idempotency_key", key), zap.String("trace_id", TraceIDFromContext(r.Context())))

			if served := replay(w, r, store, log, key, reqHash); served {
				return
			}

			reserved, err := store.Reserve(r.Context(), key, reqHash, r.Method, r.URL.Path)
			if err != nil {
				observability.IncrementIdempotencyEvent("reserve_error")
				log.Error("idempotency reserve failed", zap.Error(err))
				problem.Write(w, r, http.StatusInternalServerError, problem.Type("idempotency/unavailable"), "", "idempotency unavailable")
				return
			}
			if !reserved {
				// Lost the race to a concurrent request with the same key.
				waitForOther(w, r, store, log, key, reqHash, "replay_after_reserve")
				return
			}
			observability.IncrementIdempotencyEvent("reserved")

			rec := &capture{ResponseWriter: w}
			next.ServeHTTP(rec, r)

			contentType := rec.Header().Get("Content-Type")
			if contentType == "" {
				contentType = "application/json"
			}
			// The handler's work is already committed, so record it even if the client hung up.
			finalizeCtx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), finalizeTimeout)
			defer cancel()
			if _, err := store.Finalize(finalizeCtx, key, reqHash, rec.statusCode(), rec.body.Bytes(), contentType); err != nil {
				observability.IncrementIdempotencyEvent("finalize_error")
				log.Warn("idempotency finalize failed", zap.Error(err))
				return
			}
			observability.IncrementIdempotencyEvent("finalized")
		})
	}
}

// replay answers from a completed record, rejects a mismatched body, or waits on an
// in-flight twin. It reports whether a response was written.
func replay(w http.ResponseWriter, r *http.Request, store *idempotency.Store, log *zap.Logger, key, reqHash string) bool {
	rec, err := store.Lookup(r.Context(), key, reqHash)
	switch {
	case err == nil:
		observability.IncrementIdempotencyEvent("replay")
		writeRecord(w, rec)
		return true
	case errors.Is(err, idempotency.ErrHashMismatch):
		observability.IncrementIdempotencyEvent("hash_mismatch")
		problem.Write(w, r, http.StatusConflict, problem.Type("idempotency/key-conflict"), "", "Idempotency-Key was already used with a different request")
		return true
	case errors.Is(err, idempotency.ErrInProgress):
		waitForOther(w, r, store, log, key, reqHash, "replay_after_wait")
		return true
	case errors.Is(err, idempotency.ErrNotFound):
		return false
	default:
		observability.IncrementIdempotencyEvent("lookup_error")
		log.Warn("idempotency lookup failed", zap.Error(err))
		return false
	}
}

func waitForOther(w http.ResponseWriter, r *http.Request, store *idempotency.Store, log *zap.Logger, key, reqHash, event string) {
	rec, err := store.WaitForCompletion(r.Context(), key, reqHash)
	if err == nil {
		observability.IncrementIdempotencyEvent(event)
		writeRecord(w, rec)
		return
	}
	observability.IncrementIdempotencyEvent("in_progress_conflict")
	log.Warn("idempotency wait failed", zap.Error(err))
	problem.Write(w, r, http.StatusConflict, problem.Type("idempotency/in-progress"), "", "a request with this Idempotency-Key is still processing")
}

func hashRequest(method, path string, body []byte) string {
	h := sha256.New()
	h.Write([]byte(method + "|" + path + "|"))
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}

// capture tees the response so it can be stored for replays.
type capture struct {
	http.ResponseWriter
	status int
	body   bytes.Buffer
}

func (c *capture) WriteHeader(code int) {
	c.status = code
	c.ResponseWriter.WriteHeader(code)
}

func (c *capture) Write(b []byte) (int, error) {
	if c.status == 0 {
		c.status = http.StatusOK
	}
	c.body.Write(b)
	return c.ResponseWriter.Write(b)
}

func (c *capture) statusCode() int {
	if c.status == 0 {
		return http.StatusOK
	}
	return c.status
}

func writeRecord(w http.ResponseWriter, rec *idempotency.Record) {
	w.Header().Set("Content-Type", rec.ContentType)
	w.Header().Set("X-Idempotent-Replay", rec.ServedBy)
	w.WriteHeader(rec.Status)
	_, _ = w.Write(rec.Body)
}

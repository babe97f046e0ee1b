package idempotency

import (
	"bytes"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"gravitywell/gateway/middleware"
)

const (
	HeaderKey    = "Idempotency-Key"
	HeaderReplay = "Idempotent-Replayed"
	maxKeyLength = 128
)

// Middleware replays stored responses for repeated keys. Requests without a
// key pass through. Server errors are not stored so the client may retry.
type Middleware struct {
	store    *LevelDBStore
	logger   *slog.Logger
	now      func() time.Time
	mu       sync.Mutex
	inFlight map[string]struct{}
}

func NewMiddleware(store *LevelDBStore, logger *slog.Logger) *Middleware {
	if logger == nil {
		logger = slog.Default()
	}
	return &Middleware{store: store, logger: logger, now: time.Now, inFlight: make(map[string]struct{})}
}

func (m *Middleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := strings.TrimSpace(r.Header.Get(HeaderKey))
		if raw == "" || m.store == nil {
			next.ServeHTTP(w, r)
			return
		}
		if len(raw) > maxKeyLength {
			http.Error(w, "idempotency key too long", http.StatusBadRequest)
			return
		}
		key := compositeKey(r, raw)
		rec, ok, err := m.store.Lookup(r.Context(), key)
		if err != nil {
			m.logger.Error("idempotency lookup", "error", err)
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			return
		}
		if ok {
			replay(w, rec)
			return
		}
		if !m.acquire(key) {
			http.Error(w, "request with this idempotency key in progress", http.StatusConflict)
			return
		}
		defer m.release(key)

		capture := &captureWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(capture, r)
		if capture.status >= http.StatusInternalServerError {
			return
		}
		if err := m.store.Save(r.Context(), Record{
			Key:         key,
			Status:      capture.status,
			ContentType: capture.Header().Get("Content-Type"),
			Body:        capture.body.Bytes(),
			ObservedAt:  m.now(),
		}); err != nil {
			m.logger.Error("idempotency save", "error", err)
		}
	})
}

func (m *Middleware) acquire(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, busy := m.inFlight[key]; busy {
		return false
	}
	m.inFlight[key] = struct{}{}
	return true
}

func (m *Middleware) release(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.inFlight, key)
}

func replay(w http.ResponseWriter, rec *Record) {
	if rec.ContentType != "" {
		w.Header().Set("Content-Type", rec.ContentType)
	}
	w.Header().Set(HeaderReplay, "true")
	w.WriteHeader(rec.Status)
	_, _ = w.Write(rec.Body)
}

// compositeKey scopes the client key to the caller and route. The
// authenticated subject wins over the API key header.
func compositeKey(r *http.Request, key string) string {
	caller := middleware.Subject(r.Context())
	if caller == "" {
		caller = strings.TrimSpace(r.Header.Get("X-API-Key"))
	}
	return strings.Join([]string{caller, r.Method, r.URL.Path, key}, "|")
}

type captureWriter struct {
	http.ResponseWriter
	status int
	body   bytes.Buffer
}

func (c *captureWriter) WriteHeader(code int) {
	c.status = code
	c.ResponseWriter.WriteHeader(code)
}

func (c *captureWriter) Write(p []byte) (int, error) {
	c.body.Write(p)
	return c.ResponseWriter.Write(p)
}

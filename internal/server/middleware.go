package server

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

type contextKey string

// ContextKeyRequestID is the context key for the request ID.
const ContextKeyRequestID contextKey = "request_id"

// Middleware wraps an http.Handler with additional functionality.
type Middleware func(http.Handler) http.Handler

// Chain applies middlewares around h. The first middleware is the
// outermost one.
func Chain(h http.Handler, middlewares ...Middleware) http.Handler {
	for i := len(middlewares) - 1; i >= 0; i-- {
		h = middlewares[i](h)
	}
	return h
}

// RequestID propagates the client's X-Request-ID or generates one.
func RequestID() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID := r.Header.Get("X-Request-ID")
			if requestID == "" {
				requestID = uuid.NewString()
			}
			w.Header().Set("X-Request-ID", requestID)

			ctx := context.WithValue(r.Context(), ContextKeyRequestID, requestID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetRequestIDFromContext returns the request ID set by RequestID, or "".
func GetRequestIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(ContextKeyRequestID).(string); ok {
		return id
	}
	return ""
}

// Timer records how long the wrapped handler takes for each request.
//
// Requests that take at least the threshold produce one log line; faster
// requests are silent. All measurement state is local to the request; the
// only shared sinks are the logger and the metrics, both safe for
// concurrent use.
type Timer struct {
	threshold time.Duration
	clock     clock.Clock
	log       *logrus.Entry
	metrics   *Metrics
}

// NewTimer creates a Timer. A nil clock means the wall clock; metrics may
// be nil.
func NewTimer(threshold time.Duration, clk clock.Clock, log *logrus.Entry, metrics *Metrics) *Timer {
	if clk == nil {
		clk = clock.New()
	}
	return &Timer{
		threshold: threshold,
		clock:     clk,
		log:       log,
		metrics:   metrics,
	}
}

// Threshold returns the slow-request threshold.
func (t *Timer) Threshold() time.Duration {
	return t.threshold
}

// Record handles one completed request. It reports whether a slow-request
// line was written.
func (t *Timer) Record(method, path, requestID string, status int, elapsed time.Duration) bool {
	slow := elapsed >= t.threshold
	if t.metrics != nil {
		t.metrics.Observe(method, status, elapsed, slow)
	}
	if !slow {
		return false
	}

	t.log.WithFields(logrus.Fields{
		"method":     method,
		"path":       path,
		"status":     status,
		"elapsed_ms": FormatMillis(elapsed),
		"request_id": requestID,
	}).Warnf("slow request: %s %s took %sms", method, path, FormatMillis(elapsed))
	return true
}

// Middleware returns the timing middleware. The start timestamp is taken
// right before next runs and the end timestamp right after.
func (t *Timer) Middleware() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			start := t.clock.Now()
			next.ServeHTTP(wrapped, r)
			elapsed := t.clock.Since(start)

			t.Record(r.Method, r.URL.Path, GetRequestIDFromContext(r.Context()), wrapped.statusCode, elapsed)
		})
	}
}

// FormatMillis renders d in milliseconds with two decimals.
func FormatMillis(d time.Duration) string {
	return fmt.Sprintf("%.2f", float64(d)/float64(time.Millisecond))
}

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode  int
	wroteHeader bool
}

func (w *responseWriter) WriteHeader(code int) {
	if !w.wroteHeader {
		w.statusCode = code
		w.wroteHeader = true
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *responseWriter) Write(b []byte) (int, error) {
	w.wroteHeader = true
	return w.ResponseWriter.Write(b)
}

// ReadFrom forwards to the underlying writer when it implements
// io.ReaderFrom, so http.FileServer keeps the sendfile path.
func (w *responseWriter) ReadFrom(r io.Reader) (int64, error) {
	w.wroteHeader = true
	if rf, ok := w.ResponseWriter.(io.ReaderFrom); ok {
		return rf.ReadFrom(r)
	}
	return io.Copy(w.ResponseWriter, r)
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (w *responseWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

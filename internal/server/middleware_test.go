package server

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestTimer returns a Timer on a mock clock together with the hook that
// captures its log output.
func newTestTimer(threshold time.Duration, metrics *Metrics) (*Timer, *clock.Mock, *test.Hook) {
	logger, hook := test.NewNullLogger()
	mock := clock.NewMock()
	return NewTimer(threshold, mock, logger.WithField("layer", "server"), metrics), mock, hook
}

// sleepingHandler advances the mock clock by d, standing in for a handler
// that takes d to complete.
func sleepingHandler(mock *clock.Mock, d time.Duration, status int) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mock.Add(d)
		w.WriteHeader(status)
	})
}

func TestTimer_Threshold(t *testing.T) {
	tests := []struct {
		name    string
		elapsed time.Duration
		wantLog bool
		wantMs  string
	}{
		{"fast request is silent", 10 * time.Millisecond, false, ""},
		{"just below threshold", 99990 * time.Microsecond, false, ""},
		{"exactly at threshold", 100 * time.Millisecond, true, "100.00"},
		{"above threshold", 153456 * time.Microsecond, true, "153.46"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			timer, mock, hook := newTestTimer(100*time.Millisecond, nil)
			h := timer.Middleware()(sleepingHandler(mock, tt.elapsed, http.StatusOK))

			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/assets/app.js", nil))

			if !tt.wantLog {
				assert.Empty(t, hook.AllEntries())
				return
			}

			require.Len(t, hook.AllEntries(), 1)
			entry := hook.LastEntry()
			assert.Equal(t, logrus.WarnLevel, entry.Level)
			assert.Equal(t, "GET", entry.Data["method"])
			assert.Equal(t, "/assets/app.js", entry.Data["path"])
			assert.Equal(t, tt.wantMs, entry.Data["elapsed_ms"])
			assert.Equal(t, http.StatusOK, entry.Data["status"])
			assert.Contains(t, entry.Message, "GET /assets/app.js")
		})
	}
}

// TestTimer_CapturesStatus verifies that the status written by the inner
// handler is reported, including POST requests.
func TestTimer_CapturesStatus(t *testing.T) {
	timer, mock, hook := newTestTimer(0, nil)
	h := timer.Middleware()(sleepingHandler(mock, time.Millisecond, http.StatusNotFound))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/form", nil))

	require.Len(t, hook.AllEntries(), 1)
	assert.Equal(t, http.StatusNotFound, hook.LastEntry().Data["status"])
	assert.Equal(t, "POST", hook.LastEntry().Data["method"])
}

// TestTimer_RequestID verifies the request id set by RequestID reaches the
// slow-request line.
func TestTimer_RequestID(t *testing.T) {
	timer, mock, hook := newTestTimer(0, nil)
	h := Chain(sleepingHandler(mock, time.Millisecond, http.StatusOK), RequestID(), timer.Middleware())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "req-123")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, "req-123", rec.Header().Get("X-Request-ID"))
	require.Len(t, hook.AllEntries(), 1)
	assert.Equal(t, "req-123", hook.LastEntry().Data["request_id"])
}

// TestTimer_Concurrent verifies that concurrent requests are measured
// independently.
func TestTimer_Concurrent(t *testing.T) {
	logger, hook := test.NewNullLogger()
	timer := NewTimer(100*time.Millisecond, nil, logger.WithField("layer", "server"), nil)

	h := timer.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
		}()
	}
	wg.Wait()

	assert.Empty(t, hook.AllEntries(), "instant requests must not be logged")
}

func TestTimer_Metrics(t *testing.T) {
	metrics := NewMetrics()
	timer, mock, _ := newTestTimer(100*time.Millisecond, metrics)

	fast := timer.Middleware()(sleepingHandler(mock, time.Millisecond, http.StatusOK))
	slow := timer.Middleware()(sleepingHandler(mock, 200*time.Millisecond, http.StatusOK))

	fast.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	slow.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, float64(2), testutil.ToFloat64(metrics.requests.WithLabelValues("GET", "200")))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.slowRequests.WithLabelValues("GET")))
}

func TestRequestID_Generated(t *testing.T) {
	var seen string
	h := RequestID()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestIDFromContext(r.Context())
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.NotEmpty(t, seen)
	assert.Equal(t, seen, rec.Header().Get("X-Request-ID"))
	assert.Len(t, seen, 36, "expected a canonical UUID")
}

func TestChain_Order(t *testing.T) {
	var order []string
	mw := func(name string) Middleware {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}

	h := Chain(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		order = append(order, "handler")
	}), mw("outer"), mw("inner"))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, []string{"outer", "inner", "handler"}, order)
}

func TestFormatMillis(t *testing.T) {
	assert.Equal(t, "0.00", FormatMillis(0))
	assert.Equal(t, "100.00", FormatMillis(100*time.Millisecond))
	assert.Equal(t, "1.50", FormatMillis(1500*time.Microsecond))
	assert.Equal(t, "1234.57", FormatMillis(1234567*time.Microsecond))
}

// readerFromRecorder is a ResponseRecorder that also implements
// io.ReaderFrom, like the net/http connection writer does.
type readerFromRecorder struct {
	*httptest.ResponseRecorder
	readFromCalls int
}

func (r *readerFromRecorder) ReadFrom(src io.Reader) (int64, error) {
	r.readFromCalls++
	return io.Copy(r.ResponseRecorder, src)
}

func TestResponseWriter_ReadFrom(t *testing.T) {
	t.Run("forwards to underlying ReaderFrom", func(t *testing.T) {
		rec := &readerFromRecorder{ResponseRecorder: httptest.NewRecorder()}
		w := &responseWriter{ResponseWriter: rec, statusCode: http.StatusOK}

		var _ io.ReaderFrom = w
		n, err := w.ReadFrom(strings.NewReader("hello"))
		require.NoError(t, err)
		assert.Equal(t, int64(5), n)
		assert.Equal(t, 1, rec.readFromCalls)
		assert.Equal(t, "hello", rec.Body.String())
		assert.True(t, w.wroteHeader)
	})

	t.Run("copies when underlying writer lacks ReadFrom", func(t *testing.T) {
		rec := httptest.NewRecorder()
		w := &responseWriter{ResponseWriter: rec, statusCode: http.StatusOK}

		n, err := w.ReadFrom(strings.NewReader("hello"))
		require.NoError(t, err)
		assert.Equal(t, int64(5), n)
		assert.Equal(t, "hello", rec.Body.String())
	})

	t.Run("file server writes through the timer", func(t *testing.T) {
		timer, _, _ := newTestTimer(time.Hour, nil)
		files := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Hide strings.Reader's WriteTo so io.Copy takes the ReadFrom path,
			// as it does for the *os.File that http.FileServer copies from.
			src := struct{ io.Reader }{strings.NewReader("static body")}
			_, err := io.Copy(w, src)
			assert.NoError(t, err)
		})
		rec := &readerFromRecorder{ResponseRecorder: httptest.NewRecorder()}

		timer.Middleware()(files).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, 1, rec.readFromCalls, "io.Copy must reach the underlying ReadFrom")
		assert.Equal(t, "static body", rec.Body.String())
	})
}

package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/klauspost/compress/gzhttp"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/shinji-kodama/devserve/internal/logging"
)

// readHeaderTimeout bounds how long a client may take to send headers.
const readHeaderTimeout = 10 * time.Second

// Options configures a Server.
type Options struct {
	// Root is the directory served over HTTP.
	Root string

	// Port is the TCP port to bind on all interfaces. 0 lets the OS choose.
	Port int

	// SlowThreshold is passed to the request Timer.
	SlowThreshold time.Duration

	// Gzip enables response compression.
	Gzip bool

	// Metrics, when non-nil, is fed by the Timer and served on MetricsPath.
	Metrics *Metrics

	// Clock is used for request timing. Nil means the wall clock.
	Clock clock.Clock

	// Logger receives slow-request lines. Nil discards them.
	Logger *logrus.Logger
}

// Server serves static files from a document root.
type Server struct {
	opts       Options
	log        *logrus.Entry
	timer      *Timer
	handler    http.Handler
	httpServer *http.Server

	mu       sync.Mutex
	listener net.Listener
}

// New creates a Server. It does not bind anything yet.
func New(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	log := logging.Layer(logger, "server")

	s := &Server{
		opts:  opts,
		log:   log,
		timer: NewTimer(opts.SlowThreshold, opts.Clock, log, opts.Metrics),
	}
	s.handler = s.buildHandler()
	s.httpServer = &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: readHeaderTimeout,
	}
	return s
}

// buildHandler composes the file server with the middleware stack.
// POST and every other method are left to http.FileServer's default
// behaviour; no method gets custom semantics.
func (s *Server) buildHandler() http.Handler {
	files := http.FileServer(http.Dir(s.opts.Root))

	middlewares := []Middleware{RequestID()}
	if s.opts.Gzip {
		middlewares = append(middlewares, func(next http.Handler) http.Handler {
			return gzhttp.GzipHandler(next)
		})
	}
	// The timer must stay innermost so it measures the file handler only.
	middlewares = append(middlewares, s.timer.Middleware())

	handler := Chain(files, middlewares...)

	if s.opts.Metrics == nil {
		return handler
	}
	mux := http.NewServeMux()
	mux.Handle(MetricsPath, s.opts.Metrics.Handler())
	mux.Handle("/", handler)
	return mux
}

// Handler returns the fully composed HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Timer returns the request timer.
func (s *Server) Timer() *Timer {
	return s.timer
}

// Listen binds the TCP listener on all interfaces. It is safe to call
// Serve without Listen; splitting the two lets callers time the bind and
// learn the real port before requests are accepted.
func (s *Server) Listen() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listener != nil {
		return nil
	}
	ln, err := net.Listen("tcp", net.JoinHostPort("", strconv.Itoa(s.opts.Port)))
	if err != nil {
		return fmt.Errorf("failed to listen on port %d: %w", s.opts.Port, err)
	}
	s.listener = ln
	return nil
}

// Port returns the port the listener is bound to, or 0 before Listen.
func (s *Server) Port() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listener == nil {
		return 0
	}
	if addr, ok := s.listener.Addr().(*net.TCPAddr); ok {
		return addr.Port
	}
	return 0
}

// Serve accepts connections until ctx is cancelled, then closes the
// listener and every open connection and returns nil. In-flight requests
// are not drained, so cancellation returns promptly.
//
// An error is returned only when binding or accepting fails.
func (s *Server) Serve(ctx context.Context) error {
	if err := s.Listen(); err != nil {
		return err
	}

	s.mu.Lock()
	ln := s.listener
	s.mu.Unlock()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		s.log.Debug("closing listener")
		// Close rather than Shutdown: termination must not wait for
		// in-flight requests.
		_ = s.httpServer.Close()
		return nil
	})

	return g.Wait()
}

// Close releases the listener of a server that was bound with Listen but
// never served. It is a no-op otherwise.
func (s *Server) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listener == nil {
		return nil
	}
	err := s.listener.Close()
	s.listener = nil
	return err
}

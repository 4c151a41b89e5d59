package app

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/benbjohnson/clock"
	"github.com/sirupsen/logrus"

	"github.com/shinji-kodama/devserve/internal/config"
	"github.com/shinji-kodama/devserve/internal/discovery"
	"github.com/shinji-kodama/devserve/internal/logging"
	"github.com/shinji-kodama/devserve/internal/model"
	"github.com/shinji-kodama/devserve/internal/port"
	"github.com/shinji-kodama/devserve/internal/server"
)

// PortAllocator chooses the port to listen on.
type PortAllocator interface {
	Allocate(preferred int) (port.Allocation, error)
}

// BrowserOpener opens a URL for the user.
type BrowserOpener interface {
	Open(url string) error
}

// Deps are the collaborators of a Runner. Zero values get production
// defaults, except Browser: a nil Browser means no browser is opened.
type Deps struct {
	Allocator PortAllocator
	Publisher discovery.Publisher
	Browser   BrowserOpener
	Metrics   *server.Metrics
	Logger    *logrus.Logger
	Clock     clock.Clock

	// Out receives the human-readable startup banner. Nil means stdout.
	Out io.Writer

	// PID is published as the process identifier. 0 means os.Getpid().
	PID int
}

// Runner runs a single server instance.
type Runner struct {
	cfg  config.Config
	deps Deps
	log  *logrus.Entry

	mu        sync.Mutex
	state     model.State
	discovery model.DiscoveryState
	ready     chan struct{}
	readyOnce sync.Once
}

// New creates a Runner for cfg.
func New(cfg config.Config, deps Deps) *Runner {
	if deps.Allocator == nil {
		deps.Allocator = port.NewAllocator(port.NewScanner())
	}
	if deps.Publisher == nil {
		deps.Publisher = discovery.NewFilePublisher(cfg.StateDir)
	}
	if deps.Logger == nil {
		deps.Logger = logging.Discard()
	}
	if deps.Clock == nil {
		deps.Clock = clock.New()
	}
	if deps.Out == nil {
		deps.Out = os.Stdout
	}
	if deps.PID == 0 {
		deps.PID = os.Getpid()
	}

	return &Runner{
		cfg:   cfg,
		deps:  deps,
		log:   logging.Layer(deps.Logger, "app"),
		state: model.StateIdle,
		ready: make(chan struct{}),
	}
}

// State returns the current lifecycle state.
func (r *Runner) State() model.State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Discovery returns the published identity. It is only meaningful once
// Ready is closed.
func (r *Runner) Discovery() model.DiscoveryState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.discovery
}

// Ready is closed when the instance enters the Serving state.
func (r *Runner) Ready() <-chan struct{} {
	return r.ready
}

func (r *Runner) transition(next model.State) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.state.CanTransitionTo(next) {
		r.log.WithFields(logrus.Fields{"from": r.state, "to": next}).Error("illegal state transition ignored")
		return
	}
	r.log.WithFields(logrus.Fields{"from": r.state, "to": next}).Debug("state transition")
	r.state = next
}

// abort moves the lifecycle to Terminated after a startup failure.
func (r *Runner) abort() {
	r.transition(model.StateShuttingDown)
	r.transition(model.StateTerminated)
}

// Run executes the whole lifecycle and blocks until ctx is cancelled.
//
// Startup failures (no free port, bind failure, discovery write failure)
// are returned as *model.CLIError. A cancellation is a clean shutdown and
// returns nil.
func (r *Runner) Run(ctx context.Context) error {
	clk := r.deps.Clock

	// Step 1: Allocate a port. No retry: failure aborts the process.
	start := clk.Now()
	alloc, err := r.deps.Allocator.Allocate(r.cfg.Port)
	if err != nil {
		r.abort()
		return model.WrapCLIError(model.ExitPortAllocationFailed, "failed to allocate a free port", err)
	}
	r.log.WithFields(logrus.Fields{
		"port":        alloc.Port,
		"source":      alloc.Source,
		"duration_ms": server.FormatMillis(clk.Since(start)),
	}).Info("port allocated")
	r.transition(model.StatePortAllocated)

	// Step 2: Bind the listener on all interfaces.
	srv := server.New(server.Options{
		Root:          r.cfg.Root,
		Port:          alloc.Port,
		SlowThreshold: r.cfg.SlowThreshold,
		Gzip:          r.cfg.Gzip,
		Metrics:       r.deps.Metrics,
		Clock:         clk,
		Logger:        r.deps.Logger,
	})
	start = clk.Now()
	if err := srv.Listen(); err != nil {
		r.abort()
		return model.WrapCLIError(model.ExitBindFailed,
			fmt.Sprintf("failed to bind listener on port %d", alloc.Port), err)
	}
	r.log.WithField("duration_ms", server.FormatMillis(clk.Since(start))).Info("listener ready")

	// Step 3: Publish the PID and the port the listener actually holds.
	state := model.DiscoveryState{PID: r.deps.PID, Port: srv.Port()}
	if err := r.deps.Publisher.Publish(state); err != nil {
		_ = srv.Close()
		_ = r.deps.Publisher.Clear()
		r.abort()
		return model.WrapCLIError(model.ExitDiscoveryFailed, "failed to write discovery files", err)
	}
	r.mu.Lock()
	r.discovery = state
	r.mu.Unlock()
	r.transition(model.StateDiscoveryPersisted)

	url := state.BaseURL()
	fmt.Fprintf(r.deps.Out, "devserve running at %s\n", url)
	fmt.Fprintln(r.deps.Out, "Press Ctrl+C to stop the server")
	r.log.WithFields(logrus.Fields{"url": url, "root": r.cfg.Root, "pid": state.PID}).Info("serving")

	// Step 4: Open the browser. Failures only warrant a warning.
	if r.deps.Browser != nil {
		start = clk.Now()
		err := r.deps.Browser.Open(url)
		entry := r.log.WithField("duration_ms", server.FormatMillis(clk.Since(start)))
		if err != nil {
			entry.WithError(err).Warn("could not open browser")
		} else {
			entry.Info("browser launched")
		}
	}

	// Step 5: Serve until cancelled.
	r.transition(model.StateServing)
	r.readyOnce.Do(func() { close(r.ready) })
	serveErr := srv.Serve(ctx)

	// Step 6: Tear down. Discovery cleanup errors are swallowed.
	r.transition(model.StateShuttingDown)
	fmt.Fprintln(r.deps.Out, "Shutting down server...")
	if err := r.deps.Publisher.Clear(); err != nil {
		r.log.WithError(err).Debug("discovery cleanup failed")
	}
	r.transition(model.StateTerminated)

	if serveErr != nil {
		return model.WrapCLIError(model.ExitGeneralError, "server stopped unexpectedly", serveErr)
	}
	return nil
}

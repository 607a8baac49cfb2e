// Package inproc is the inline worker class: workers run as goroutine groups
// inside the supervisor's own process, each serving an independent dup of the
// shared listening socket.
//
// The class exists for development and for deterministic supervisor tests.
// Crash isolation is weaker than the process class: a fault that takes the
// process down takes every worker with it.
package inproc

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"sync"

	"github.com/passbooklabs/passbook/internal/logging"
	"github.com/passbooklabs/passbook/internal/observability"
	"github.com/passbooklabs/passbook/internal/worker"
	"github.com/passbooklabs/passbook/pkg/apps"
	"github.com/passbooklabs/passbook/pkg/ports"
)

// Launcher implements ports.Launcher on goroutines.
type Launcher struct {
	listener *net.TCPListener
	registry *apps.Registry
	log      *slog.Logger
	metrics  *observability.HTTPMetrics
	rate     float64
	burst    int
}

// Option configures the launcher.
type Option func(*Launcher)

// WithLogger sets the logger handed to every worker runtime.
func WithLogger(log *slog.Logger) Option {
	return func(l *Launcher) { l.log = log }
}

// WithMetrics shares one set of HTTP collectors across every inline worker.
func WithMetrics(m *observability.HTTPMetrics) Option {
	return func(l *Launcher) { l.metrics = m }
}

// WithRateLimit enables the per-client limiter inside each worker.
func WithRateLimit(rps float64, burst int) Option {
	return func(l *Launcher) { l.rate, l.burst = rps, burst }
}

// New creates an inline launcher accepting from listener.
func New(listener *net.TCPListener, registry *apps.Registry, opts ...Option) *Launcher {
	l := &Launcher{
		listener: listener,
		registry: registry,
		log:      logging.NewNop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Class implements ports.Launcher.
func (l *Launcher) Class() string { return "inline" }

// Launch builds a fresh application instance and serves it on a dup of the
// shared socket. Closing the dup never disturbs the supervisor's bind or the
// other workers' accepts.
func (l *Launcher) Launch(ctx context.Context, spec ports.WorkerSpec) (ports.Handle, error) {
	factory, err := l.registry.Resolve(spec.AppRef)
	if err != nil {
		return nil, err
	}

	log := l.log.With("worker", spec.ID)
	appHandler, err := factory(ctx, apps.Runtime{Logger: log, Options: spec.AppOptions})
	if err != nil {
		return nil, fmt.Errorf("building application %q: %w", spec.AppRef, err)
	}

	ln, err := dupListener(l.listener)
	if err != nil {
		return nil, err
	}

	h := &handle{
		id:    spec.ID,
		ln:    ln,
		ready: make(chan struct{}),
		done:  make(chan struct{}),
	}

	rt, err := worker.NewRuntime(worker.Config{
		Listener:    ln,
		Handler:     appHandler,
		Logger:      log,
		GracePeriod: spec.GracePeriod,
		MaxInFlight: spec.MaxInFlight,
		RateLimit:   l.rate,
		RateBurst:   l.burst,
		Metrics:     l.metrics,
		OnReady:     func() { close(h.ready) },
	})
	if err != nil {
		ln.Close()
		return nil, err
	}

	runCtx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel

	go func() {
		defer close(h.done)
		defer cancel()
		defer func() {
			// A panic escaping the runtime is this class's "crash": record
			// it instead of taking the supervisor down with us.
			if rec := recover(); rec != nil {
				h.setErr(fmt.Errorf("worker %s panic: %v", spec.ID, rec))
			}
		}()
		h.setErr(rt.Run(runCtx))
	}()

	return h, nil
}

// dupListener clones the accept side of the socket: an independent file
// descriptor over the same kernel listen queue.
func dupListener(tl *net.TCPListener) (net.Listener, error) {
	f, err := tl.File()
	if err != nil {
		return nil, fmt.Errorf("dup listener: %w", err)
	}
	defer f.Close()

	ln, err := net.FileListener(f)
	if err != nil {
		return nil, fmt.Errorf("dup listener: %w", err)
	}
	return ln, nil
}

type handle struct {
	id     string
	ln     net.Listener
	cancel context.CancelFunc
	ready  chan struct{}
	done   chan struct{}

	mu  sync.Mutex
	err error
}

func (h *handle) ID() string { return h.id }

func (h *handle) PID() int { return os.Getpid() }

func (h *handle) Ready() <-chan struct{} { return h.ready }

func (h *handle) Done() <-chan struct{} { return h.done }

func (h *handle) Err() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.err
}

func (h *handle) setErr(err error) {
	h.mu.Lock()
	h.err = err
	h.mu.Unlock()
}

// Drain asks the runtime to stop accepting and finish in-flight work.
func (h *handle) Drain() error {
	h.cancel()
	return nil
}

// Kill abandons the worker immediately: the dup listener closes under the
// runtime, Serve returns, and in-flight work is lost. The drain context is
// left alone so the runtime cannot wander into its graceful path instead.
func (h *handle) Kill() error {
	return h.ln.Close()
}

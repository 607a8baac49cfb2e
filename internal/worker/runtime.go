// Package worker is the runtime every worker executes, regardless of class:
// recover the shared listener, build the application handler, serve HTTP
// through a bounded dispatcher, and drain on request.
//
// The supervisor decides when a worker starts, restarts, and dies; this
// package only knows how to serve and how to stop serving.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/passbooklabs/passbook/internal/logging"
	"github.com/passbooklabs/passbook/internal/observability"
)

// Config assembles one worker runtime.
type Config struct {
	// Listener is the accept side of the supervisor-owned socket: an
	// inherited file listener for process workers, a dup for inline ones.
	Listener net.Listener

	// Handler is the application, before any runtime middleware.
	Handler http.Handler

	Logger *slog.Logger

	// GracePeriod bounds the drain phase once Run's context is done.
	GracePeriod time.Duration

	// MaxInFlight bounds concurrent requests; beyond it the worker answers 503.
	MaxInFlight int

	// RateLimit and RateBurst configure the per-client limiter; 0 disables it.
	RateLimit float64
	RateBurst int

	// Metrics may be shared across inline workers. Nil skips the metrics
	// middleware.
	Metrics *observability.HTTPMetrics

	// OnReady is called once the runtime is accepting connections.
	OnReady func()
}

// Runtime serves one worker's share of the pool's traffic.
type Runtime struct {
	cfg        Config
	dispatcher *Dispatcher
	limiter    *observability.RateLimiter
}

// NewRuntime validates cfg and builds the runtime.
func NewRuntime(cfg Config) (*Runtime, error) {
	if cfg.Listener == nil {
		return nil, errors.New("worker: listener is required")
	}
	if cfg.Handler == nil {
		return nil, errors.New("worker: handler is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.NewNop()
	}
	if cfg.GracePeriod <= 0 {
		cfg.GracePeriod = 30 * time.Second
	}
	return &Runtime{
		cfg:        cfg,
		dispatcher: NewDispatcher(cfg.MaxInFlight),
		limiter:    observability.NewRateLimiter(cfg.RateLimit, cfg.RateBurst),
	}, nil
}

// InFlight reports the number of requests currently admitted.
func (rt *Runtime) InFlight() int { return rt.dispatcher.InFlight() }

// Run serves until the context is done, then drains: the listener closes
// immediately (no new connections) and in-flight requests get up to the
// grace period before the remaining connections are cut.
//
// A nil return means the worker stopped because it was asked to; any other
// return is a serve fault the supervisor counts as a crash.
func (rt *Runtime) Run(ctx context.Context) error {
	srv := &http.Server{
		Handler:           rt.buildHandler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(rt.cfg.Listener)
	}()

	if rt.cfg.OnReady != nil {
		rt.cfg.OnReady()
	}
	rt.cfg.Logger.Info("worker serving", "addr", rt.cfg.Listener.Addr().String(), "max_inflight", rt.cfg.MaxInFlight)

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("worker serve: %w", err)
	case <-ctx.Done():
	}

	rt.cfg.Logger.Info("worker draining", "grace", rt.cfg.GracePeriod, "in_flight", rt.dispatcher.InFlight())

	shutdownCtx, cancel := context.WithTimeout(context.Background(), rt.cfg.GracePeriod)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		// Grace period exceeded: abandon whatever is still in flight.
		_ = srv.Close()
		rt.cfg.Logger.Warn("drain deadline exceeded, aborting connections", "err", err, "abandoned", rt.dispatcher.InFlight())
	}
	<-errCh

	// After a forced close, handlers can still be unwinding on dead
	// connections. Hold termination until they release their slots, so a
	// stopped worker means no request goroutine remains.
	waitCtx, waitCancel := context.WithTimeout(context.Background(), time.Second)
	defer waitCancel()
	_ = rt.dispatcher.WaitIdle(waitCtx)
	return nil
}

// buildHandler wraps the application in the runtime middleware stack. The
// dispatcher sits innermost so every layer above it observes rejected
// requests too.
func (rt *Runtime) buildHandler() http.Handler {
	h := rt.dispatch(rt.cfg.Handler)

	mws := []observability.Middleware{
		observability.RequestID,
		observability.Logger(rt.cfg.Logger),
	}
	if rt.cfg.Metrics != nil {
		mws = append(mws, observability.Metrics(rt.cfg.Metrics))
	}
	if rt.limiter != nil {
		mws = append(mws, rt.limiter.Handler)
	}
	mws = append(mws, observability.Recoverer(rt.cfg.Logger))

	return observability.Chain(h, mws...)
}

// dispatch is the bounded admission gate: saturation answers 503 instead of
// queueing, so a stuck handler can never wedge the whole worker.
func (rt *Runtime) dispatch(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !rt.dispatcher.Acquire() {
			if rt.cfg.Metrics != nil {
				rt.cfg.Metrics.Saturated.Inc()
			}
			w.Header().Set("Retry-After", "1")
			writeJSONError(w, http.StatusServiceUnavailable, "Too many requests in flight.")
			return
		}
		defer rt.dispatcher.Release()
		next.ServeHTTP(w, r)
	})
}

func writeJSONError(w http.ResponseWriter, status int, detail string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"detail": detail})
}

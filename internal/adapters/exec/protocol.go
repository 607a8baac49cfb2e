// Package exec is the process worker class: the supervisor re-execs its own
// binary and hands each child the shared listening socket as an inherited
// file descriptor.
//
// The handshake between supervisor and worker:
//
//	fd 3    the listening socket (dup of the supervisor's bind)
//	fd 4    readiness pipe; the worker writes one line once it is accepting
//	stdin   lifeline pipe; EOF means the supervisor is gone and the worker
//	        must shut itself down
//
// Worker parameters travel in PASSBOOK_WORKER_* environment variables. None
// of this is public contract; it only has to agree between the two halves of
// the same binary.
package exec

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"time"
)

// Child-side file descriptor numbers, fixed by ExtraFiles order.
const (
	listenerFD = 3
	readyFD    = 4
)

// Environment variables carrying the worker parameters.
const (
	EnvID          = "PASSBOOK_WORKER_ID"
	EnvAppRef      = "PASSBOOK_WORKER_APP"
	EnvAppOptions  = "PASSBOOK_WORKER_APP_OPTIONS"
	EnvGrace       = "PASSBOOK_WORKER_GRACE"
	EnvMaxInFlight = "PASSBOOK_WORKER_MAX_INFLIGHT"
	EnvRateLimit   = "PASSBOOK_WORKER_RATE_LIMIT"
	EnvRateBurst   = "PASSBOOK_WORKER_RATE_BURST"
	EnvLogLevel    = "PASSBOOK_WORKER_LOG_LEVEL"
)

// Params is everything a worker process needs to build its runtime.
type Params struct {
	ID          string
	AppRef      string
	AppOptions  map[string]any
	GracePeriod time.Duration
	MaxInFlight int
	RateLimit   float64
	RateBurst   int
	LogLevel    string
}

// environ encodes the parameters for a child's environment.
func (p Params) environ() ([]string, error) {
	opts, err := json.Marshal(p.AppOptions)
	if err != nil {
		return nil, fmt.Errorf("encoding worker options: %w", err)
	}
	return []string{
		EnvID + "=" + p.ID,
		EnvAppRef + "=" + p.AppRef,
		EnvAppOptions + "=" + string(opts),
		EnvGrace + "=" + p.GracePeriod.String(),
		EnvMaxInFlight + "=" + strconv.Itoa(p.MaxInFlight),
		EnvRateLimit + "=" + strconv.FormatFloat(p.RateLimit, 'f', -1, 64),
		EnvRateBurst + "=" + strconv.Itoa(p.RateBurst),
		EnvLogLevel + "=" + p.LogLevel,
	}, nil
}

// ParamsFromEnv decodes worker parameters through lookup, usually
// os.LookupEnv. ID and app reference are mandatory; everything else has a
// zero default.
func ParamsFromEnv(lookup func(string) (string, bool)) (Params, error) {
	var p Params

	id, ok := lookup(EnvID)
	if !ok || id == "" {
		return p, fmt.Errorf("%s not set: not launched by a supervisor", EnvID)
	}
	p.ID = id

	ref, ok := lookup(EnvAppRef)
	if !ok || ref == "" {
		return p, fmt.Errorf("%s not set: not launched by a supervisor", EnvAppRef)
	}
	p.AppRef = ref

	if raw, ok := lookup(EnvAppOptions); ok && raw != "" {
		if err := json.Unmarshal([]byte(raw), &p.AppOptions); err != nil {
			return p, fmt.Errorf("decoding %s: %w", EnvAppOptions, err)
		}
	}
	if raw, ok := lookup(EnvGrace); ok && raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return p, fmt.Errorf("decoding %s: %w", EnvGrace, err)
		}
		p.GracePeriod = d
	}
	if raw, ok := lookup(EnvMaxInFlight); ok && raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return p, fmt.Errorf("decoding %s: %w", EnvMaxInFlight, err)
		}
		p.MaxInFlight = n
	}
	if raw, ok := lookup(EnvRateLimit); ok && raw != "" {
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return p, fmt.Errorf("decoding %s: %w", EnvRateLimit, err)
		}
		p.RateLimit = f
	}
	if raw, ok := lookup(EnvRateBurst); ok && raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return p, fmt.Errorf("decoding %s: %w", EnvRateBurst, err)
		}
		p.RateBurst = n
	}
	if raw, ok := lookup(EnvLogLevel); ok {
		p.LogLevel = raw
	}
	return p, nil
}

// InheritedListener recovers the listening socket the supervisor passed on
// fd 3.
func InheritedListener() (net.Listener, error) {
	f := os.NewFile(uintptr(listenerFD), "passbook-listener")
	if f == nil {
		return nil, fmt.Errorf("listener fd %d not inherited: not launched by a supervisor", listenerFD)
	}
	defer f.Close()

	ln, err := net.FileListener(f)
	if err != nil {
		return nil, fmt.Errorf("recovering inherited listener: %w", err)
	}
	return ln, nil
}

// SignalReady tells the supervisor this worker is accepting connections by
// writing one line to the readiness pipe and closing it.
func SignalReady() error {
	f := os.NewFile(uintptr(readyFD), "passbook-ready")
	if f == nil {
		return fmt.Errorf("readiness pipe fd %d not inherited", readyFD)
	}
	defer f.Close()

	if _, err := f.Write([]byte("ready\n")); err != nil {
		return fmt.Errorf("signalling readiness: %w", err)
	}
	return nil
}

// WatchLifeline derives a context that is cancelled when r reaches EOF.
// Workers pass their stdin: the supervisor holds the write end of that pipe
// for the worker's whole life, so EOF only ever means the supervisor died.
func WatchLifeline(ctx context.Context, r io.Reader) context.Context {
	ctx, cancel := context.WithCancel(ctx)
	go func() {
		defer cancel()
		buf := make([]byte, 1)
		for {
			if _, err := r.Read(buf); err != nil {
				return
			}
		}
	}()
	return ctx
}

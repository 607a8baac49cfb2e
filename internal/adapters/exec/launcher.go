package exec

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	osexec "os/exec"
	"sync"
	"syscall"

	"github.com/passbooklabs/passbook/internal/logging"
	"github.com/passbooklabs/passbook/pkg/ports"
)

// Launcher implements ports.Launcher on child processes.
type Launcher struct {
	listener *net.TCPListener
	binary   string
	args     []string
	log      *slog.Logger
	rate     float64
	burst    int
	logLevel string
	extraEnv []string
}

// Option configures the launcher.
type Option func(*Launcher)

// WithLogger sets the launcher's own logger. Workers log to their inherited
// stderr regardless.
func WithLogger(log *slog.Logger) Option {
	return func(l *Launcher) { l.log = log }
}

// WithRateLimit enables the per-client limiter inside each worker.
func WithRateLimit(rps float64, burst int) Option {
	return func(l *Launcher) { l.rate, l.burst = rps, burst }
}

// WithLogLevel sets the log level workers start with.
func WithLogLevel(level string) Option {
	return func(l *Launcher) { l.logLevel = level }
}

// WithEnv appends KEY=value pairs to every worker's environment.
func WithEnv(kv ...string) Option {
	return func(l *Launcher) { l.extraEnv = append(l.extraEnv, kv...) }
}

// New creates a process launcher. binary and args name the command to
// re-exec, normally the supervisor's own executable with the hidden worker
// subcommand.
func New(listener *net.TCPListener, binary string, args []string, opts ...Option) *Launcher {
	l := &Launcher{
		listener: listener,
		binary:   binary,
		args:     args,
		log:      logging.NewNop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Class implements ports.Launcher.
func (l *Launcher) Class() string { return "process" }

// Launch spawns one worker process with the listener on fd 3, the readiness
// pipe on fd 4 and the lifeline pipe on stdin.
func (l *Launcher) Launch(ctx context.Context, spec ports.WorkerSpec) (ports.Handle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	lf, err := l.listener.File()
	if err != nil {
		return nil, fmt.Errorf("dup listener: %w", err)
	}

	readyR, readyW, err := os.Pipe()
	if err != nil {
		lf.Close()
		return nil, fmt.Errorf("readiness pipe: %w", err)
	}
	lifeR, lifeW, err := os.Pipe()
	if err != nil {
		lf.Close()
		readyR.Close()
		readyW.Close()
		return nil, fmt.Errorf("lifeline pipe: %w", err)
	}

	closeAll := func() {
		lf.Close()
		readyR.Close()
		readyW.Close()
		lifeR.Close()
		lifeW.Close()
	}

	env, err := Params{
		ID:          spec.ID,
		AppRef:      spec.AppRef,
		AppOptions:  spec.AppOptions,
		GracePeriod: spec.GracePeriod,
		MaxInFlight: spec.MaxInFlight,
		RateLimit:   l.rate,
		RateBurst:   l.burst,
		LogLevel:    l.logLevel,
	}.environ()
	if err != nil {
		closeAll()
		return nil, err
	}

	cmd := osexec.Command(l.binary, l.args...)
	cmd.Stdin = lifeR
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.Env = append(os.Environ(), append(l.extraEnv, env...)...)
	cmd.ExtraFiles = []*os.File{lf, readyW}

	if err := cmd.Start(); err != nil {
		closeAll()
		return nil, fmt.Errorf("spawning worker %s: %w", spec.ID, err)
	}
	l.log.Debug("worker process started", "worker", spec.ID, "pid", cmd.Process.Pid)

	// The child holds its own copies now.
	lf.Close()
	readyW.Close()
	lifeR.Close()

	h := &handle{
		id:       spec.ID,
		cmd:      cmd,
		lifeline: lifeW,
		ready:    make(chan struct{}),
		done:     make(chan struct{}),
	}
	go h.watchReady(readyR)
	go h.wait()
	return h, nil
}

type handle struct {
	id       string
	cmd      *osexec.Cmd
	lifeline *os.File
	ready    chan struct{}
	done     chan struct{}

	mu  sync.Mutex
	err error
}

func (h *handle) ID() string { return h.id }

func (h *handle) PID() int { return h.cmd.Process.Pid }

func (h *handle) Ready() <-chan struct{} { return h.ready }

func (h *handle) Done() <-chan struct{} { return h.done }

func (h *handle) Err() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.err
}

// watchReady closes the ready channel on the worker's first line. A read
// error means the worker died first; Done carries that story.
func (h *handle) watchReady(r *os.File) {
	defer r.Close()
	if _, err := bufio.NewReader(r).ReadString('\n'); err != nil {
		return
	}
	close(h.ready)
}

func (h *handle) wait() {
	err := h.cmd.Wait()
	h.mu.Lock()
	h.err = err
	h.mu.Unlock()
	h.lifeline.Close()
	close(h.done)
}

// Drain sends SIGTERM; the worker shuts down within its grace period.
func (h *handle) Drain() error {
	err := h.cmd.Process.Signal(syscall.SIGTERM)
	if err != nil && errors.Is(err, os.ErrProcessDone) {
		return nil
	}
	return err
}

// Kill sends SIGKILL, abandoning in-flight work.
func (h *handle) Kill() error {
	err := h.cmd.Process.Kill()
	if err != nil && errors.Is(err, os.ErrProcessDone) {
		return nil
	}
	return err
}

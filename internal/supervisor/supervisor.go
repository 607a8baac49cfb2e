// Package supervisor runs the worker pool: N workers accepting from one
// shared socket, a restart budget per worker, bounded drain on shutdown and
// rolling replacement on reload.
//
// The supervisor never touches the socket itself. It is bound once by the
// caller and wired into a ports.Launcher; the supervisor only decides when
// workers exist.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/passbooklabs/passbook/internal/logging"
	"github.com/passbooklabs/passbook/internal/observability"
	"github.com/passbooklabs/passbook/pkg/domain"
	"github.com/passbooklabs/passbook/pkg/ports"
)

// Config sizes and paces the pool.
type Config struct {
	// Workers is the pool size.
	Workers int

	// AppRef names the registered application every worker serves.
	AppRef string

	// AppOptions is handed to the application factory in each worker.
	AppOptions map[string]any

	// GracePeriod bounds the drain of one worker.
	GracePeriod time.Duration

	// BootTimeout bounds spawn-to-ready; a worker that takes longer is
	// killed and counted as a crash.
	BootTimeout time.Duration

	// MaxInFlight bounds concurrent requests per worker.
	MaxInFlight int

	// Restart is the backoff policy for crashed workers.
	Restart RestartPolicy
}

func (c Config) withDefaults() Config {
	if c.Workers <= 0 {
		c.Workers = 1
	}
	if c.GracePeriod <= 0 {
		c.GracePeriod = 30 * time.Second
	}
	if c.BootTimeout <= 0 {
		c.BootTimeout = 30 * time.Second
	}
	if c.MaxInFlight <= 0 {
		c.MaxInFlight = 1024
	}
	if c.Restart == (RestartPolicy{}) {
		c.Restart = DefaultRestartPolicy()
	}
	return c
}

// Supervisor owns one pool of workers. Run may be called once.
type Supervisor struct {
	cfg      Config
	launcher ports.Launcher
	log      *slog.Logger
	metrics  *observability.PoolMetrics

	slots  []*slot
	reload chan struct{}
}

// Option configures the supervisor.
type Option func(*Supervisor)

// WithLogger sets the supervisor's logger.
func WithLogger(log *slog.Logger) Option {
	return func(s *Supervisor) { s.log = log }
}

// WithMetrics publishes pool state to the given collectors.
func WithMetrics(m *observability.PoolMetrics) Option {
	return func(s *Supervisor) { s.metrics = m }
}

// New builds a supervisor over launcher.
func New(cfg Config, launcher ports.Launcher, opts ...Option) *Supervisor {
	s := &Supervisor{
		cfg:      cfg.withDefaults(),
		launcher: launcher,
		log:      logging.NewNop(),
		reload:   make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(s)
	}
	for i := 0; i < s.cfg.Workers; i++ {
		s.slots = append(s.slots, newSlot(fmt.Sprintf("worker-%d", i)))
	}
	return s
}

// Run launches the pool and blocks until ctx is cancelled and every worker
// has drained, or until every worker has spent its restart budget. The
// first case returns nil, the second domain.ErrPoolExhausted.
func (s *Supervisor) Run(ctx context.Context) error {
	s.log.Info("worker pool starting",
		"workers", s.cfg.Workers,
		"class", s.launcher.Class(),
		"app", s.cfg.AppRef)
	s.publish()

	pumpCtx, stopPump := context.WithCancel(ctx)
	pumpDone := make(chan struct{})
	go func() {
		defer close(pumpDone)
		s.reloadPump(pumpCtx)
	}()

	var wg sync.WaitGroup
	errs := make([]error, len(s.slots))
	for i, sl := range s.slots {
		wg.Add(1)
		go func(i int, sl *slot) {
			defer wg.Done()
			errs[i] = s.runSlot(ctx, sl)
		}(i, sl)
	}
	wg.Wait()
	stopPump()
	<-pumpDone

	if ctx.Err() != nil {
		s.log.Info("worker pool stopped")
		return nil
	}

	var abandoned int
	var last error
	for _, err := range errs {
		if err != nil {
			abandoned++
			last = err
		}
	}
	if abandoned == len(s.slots) {
		s.log.Error("worker pool exhausted", "workers", len(s.slots))
		return fmt.Errorf("%w: %v", domain.ErrPoolExhausted, last)
	}
	return nil
}

// Reload asks the pool to replace its workers one at a time. It never
// blocks; a reload already in flight absorbs the request.
func (s *Supervisor) Reload() {
	select {
	case s.reload <- struct{}{}:
	default:
	}
}

// Status snapshots every worker slot.
func (s *Supervisor) Status() []domain.WorkerStatus {
	out := make([]domain.WorkerStatus, 0, len(s.slots))
	for _, sl := range s.slots {
		out = append(out, sl.Status())
	}
	return out
}

// runSlot is the lifecycle loop of one worker slot: launch, await readiness,
// serve until crash or shutdown, back off and relaunch within the budget.
func (s *Supervisor) runSlot(ctx context.Context, sl *slot) error {
	var attempt int
	for {
		select {
		case <-ctx.Done():
			s.retire(sl)
			return nil
		default:
		}

		h, err := s.launcher.Launch(ctx, s.specFor(sl))
		if err != nil {
			s.log.Error("worker launch failed", "worker", sl.id, "error", err)
			s.transition(sl, domain.StateCrashed)
			if stop := s.backoff(ctx, sl, &attempt); stop != nil {
				if errors.Is(stop, errBudgetSpent) {
					return s.abandon(sl, err)
				}
				s.retire(sl)
				return nil
			}
			continue
		}
		sl.setPID(h.PID())
		s.publish()

		boot := time.NewTimer(s.cfg.BootTimeout)
		select {
		case <-h.Ready():
			boot.Stop()

		case <-h.Done():
			boot.Stop()
			cause := h.Err()
			s.log.Error("worker exited during boot", "worker", sl.id, "pid", h.PID(), "error", cause)
			s.transition(sl, domain.StateCrashed)
			if stop := s.backoff(ctx, sl, &attempt); stop != nil {
				if errors.Is(stop, errBudgetSpent) {
					return s.abandon(sl, cause)
				}
				s.retire(sl)
				return nil
			}
			continue

		case <-boot.C:
			s.log.Error("worker boot timeout", "worker", sl.id, "pid", h.PID(), "timeout", s.cfg.BootTimeout)
			_ = h.Kill()
			<-h.Done()
			s.transition(sl, domain.StateCrashed)
			if stop := s.backoff(ctx, sl, &attempt); stop != nil {
				if errors.Is(stop, errBudgetSpent) {
					return s.abandon(sl, domain.ErrBootTimeout)
				}
				s.retire(sl)
				return nil
			}
			continue

		case <-ctx.Done():
			boot.Stop()
			_ = h.Kill()
			<-h.Done()
			s.retire(sl)
			return nil
		}

		s.transition(sl, domain.StateServing)
		servedAt := time.Now()
		s.log.Info("worker serving", "worker", sl.id, "pid", h.PID(), "restarts", sl.Restarts())

		serving := true
		for serving {
			select {
			case <-h.Done():
				serving = false
				if time.Since(servedAt) >= s.cfg.Restart.ResetAfter {
					attempt = 0
				}
				cause := h.Err()
				s.log.Error("worker crashed",
					"worker", sl.id,
					"pid", h.PID(),
					"uptime", time.Since(servedAt).Round(time.Millisecond),
					"error", cause)
				s.transition(sl, domain.StateCrashed)
				if stop := s.backoff(ctx, sl, &attempt); stop != nil {
					if errors.Is(stop, errBudgetSpent) {
						return s.abandon(sl, cause)
					}
					s.retire(sl)
					return nil
				}

			case ack := <-sl.reload:
				if nh, ok := s.replace(ctx, sl, h); ok {
					h = nh
					servedAt = time.Now()
					attempt = 0
				}
				close(ack)

			case <-ctx.Done():
				s.transition(sl, domain.StateDraining)
				s.drain(h)
				s.retire(sl)
				return nil
			}
		}
	}
}

var errBudgetSpent = errors.New("restart budget spent")

// backoff sleeps out the next restart delay. nil means relaunch; otherwise
// the slot is finished, either errBudgetSpent or the cancelled context.
func (s *Supervisor) backoff(ctx context.Context, sl *slot, attempt *int) error {
	*attempt++
	if s.cfg.Restart.MaxRetries > 0 && *attempt > s.cfg.Restart.MaxRetries {
		return errBudgetSpent
	}

	delay := s.cfg.Restart.Delay(*attempt)
	s.transition(sl, domain.StateRestarting)
	sl.bumpRestarts()
	if s.metrics != nil {
		s.metrics.Restarts.Inc()
	}
	s.log.Warn("worker restarting",
		"worker", sl.id,
		"attempt", *attempt,
		"budget", s.cfg.Restart.MaxRetries,
		"delay", delay)

	t := time.NewTimer(delay)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// abandon retires a slot whose budget is spent and reports why.
func (s *Supervisor) abandon(sl *slot, cause error) error {
	if cause == nil {
		cause = errors.New("worker exited unexpectedly")
	}
	s.retire(sl)
	s.log.Error("worker abandoned", "worker", sl.id, "restarts", sl.Restarts(), "error", cause)
	return fmt.Errorf("worker %s abandoned after %d restarts: %w", sl.id, sl.Restarts(), cause)
}

// drain asks a worker to finish up, waits out the grace period, then kills.
func (s *Supervisor) drain(h ports.Handle) {
	if err := h.Drain(); err != nil {
		s.log.Warn("worker drain signal failed", "worker", h.ID(), "error", err)
	}
	t := time.NewTimer(s.cfg.GracePeriod)
	defer t.Stop()
	select {
	case <-h.Done():
	case <-t.C:
		s.log.Warn("worker exceeded grace period, killing", "worker", h.ID(), "pid", h.PID())
		_ = h.Kill()
		<-h.Done()
	}
}

// replace performs one rolling swap: launch a successor, wait for it to come
// up, then drain the incumbent. On any failure the incumbent keeps serving.
func (s *Supervisor) replace(ctx context.Context, sl *slot, old ports.Handle) (ports.Handle, bool) {
	s.log.Info("worker reloading", "worker", sl.id, "pid", old.PID())

	nh, err := s.launcher.Launch(ctx, s.specFor(sl))
	if err != nil {
		s.log.Error("reload launch failed, keeping incumbent", "worker", sl.id, "error", err)
		return nil, false
	}

	boot := time.NewTimer(s.cfg.BootTimeout)
	defer boot.Stop()
	select {
	case <-nh.Ready():
	case <-nh.Done():
		s.log.Error("reload worker exited during boot, keeping incumbent", "worker", sl.id, "error", nh.Err())
		return nil, false
	case <-boot.C:
		s.log.Error("reload worker boot timeout, keeping incumbent", "worker", sl.id)
		_ = nh.Kill()
		<-nh.Done()
		return nil, false
	case <-ctx.Done():
		_ = nh.Kill()
		<-nh.Done()
		return nil, false
	}

	sl.setPID(nh.PID())
	s.publish()
	s.drain(old)
	s.log.Info("worker reloaded", "worker", sl.id, "pid", nh.PID())
	return nh, true
}

// reloadPump serializes rolling reloads: one slot at a time, skipping slots
// that are not serving when their turn comes.
func (s *Supervisor) reloadPump(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.reload:
		}
		s.log.Info("rolling reload requested", "workers", len(s.slots))

		for _, sl := range s.slots {
			if sl.State() != domain.StateServing {
				continue
			}
			ack := make(chan struct{})
			select {
			case sl.reload <- ack:
				select {
				case <-ack:
				case <-ctx.Done():
					return
				}
			default:
				// The slot left serving since the check; let it be.
			}
		}
	}
}

func (s *Supervisor) specFor(sl *slot) ports.WorkerSpec {
	return ports.WorkerSpec{
		ID:          sl.id,
		AppRef:      s.cfg.AppRef,
		AppOptions:  s.cfg.AppOptions,
		GracePeriod: s.cfg.GracePeriod,
		MaxInFlight: s.cfg.MaxInFlight,
	}
}

// transition moves a slot to the next lifecycle state and publishes the new
// pool snapshot.
func (s *Supervisor) transition(sl *slot, next domain.WorkerState) {
	prev := sl.setState(next)
	if !prev.CanTransition(next) {
		s.log.Warn("unexpected worker transition", "worker", sl.id, "from", prev, "to", next)
	}
	s.publish()
}

// retire walks a slot down to terminated along legal lifecycle steps.
func (s *Supervisor) retire(sl *slot) {
	if sl.State() == domain.StateStarting {
		s.transition(sl, domain.StateDraining)
	}
	if sl.State() != domain.StateTerminated {
		s.transition(sl, domain.StateTerminated)
	}
}

func (s *Supervisor) publish() {
	if s.metrics != nil {
		s.metrics.SetStates(s.Status())
	}
}

// slot is the supervisor-side record of one worker position in the pool.
// The worker process behind it comes and goes; the slot endures.
type slot struct {
	id     string
	reload chan chan struct{}

	mu       sync.Mutex
	state    domain.WorkerState
	pid      int
	restarts int
	since    time.Time
}

func newSlot(id string) *slot {
	return &slot{
		id:     id,
		reload: make(chan chan struct{}),
		state:  domain.StateStarting,
		since:  time.Now(),
	}
}

func (sl *slot) State() domain.WorkerState {
	sl.mu.Lock()
	defer sl.mu.Unlock()
	return sl.state
}

func (sl *slot) setState(next domain.WorkerState) domain.WorkerState {
	sl.mu.Lock()
	defer sl.mu.Unlock()
	prev := sl.state
	sl.state = next
	sl.since = time.Now()
	return prev
}

func (sl *slot) setPID(pid int) {
	sl.mu.Lock()
	defer sl.mu.Unlock()
	sl.pid = pid
}

func (sl *slot) bumpRestarts() {
	sl.mu.Lock()
	defer sl.mu.Unlock()
	sl.restarts++
}

func (sl *slot) Restarts() int {
	sl.mu.Lock()
	defer sl.mu.Unlock()
	return sl.restarts
}

func (sl *slot) Status() domain.WorkerStatus {
	sl.mu.Lock()
	defer sl.mu.Unlock()
	return domain.WorkerStatus{
		ID:       sl.id,
		PID:      sl.pid,
		State:    sl.state,
		Restarts: sl.restarts,
		Since:    sl.since,
	}
}

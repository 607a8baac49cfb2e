package passbook

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/passbooklabs/passbook/internal/adapters/inproc"
	"github.com/passbooklabs/passbook/internal/apps/analyzer"
	"github.com/passbooklabs/passbook/internal/logging"
	"github.com/passbooklabs/passbook/internal/observability"
	"github.com/passbooklabs/passbook/internal/supervisor"
	"github.com/passbooklabs/passbook/pkg/apps"
	"github.com/passbooklabs/passbook/pkg/domain"
)

// Service is one configured bootstrap: a socket, a worker pool, and the
// application the pool serves. Zero-value defaults: one worker, the analyzer
// application, 30s grace and boot deadlines.
type Service struct {
	bind        string
	workers     int
	appRef      string
	appOptions  map[string]any
	registry    *apps.Registry
	log         *slog.Logger
	grace       time.Duration
	boot        time.Duration
	maxInFlight int
	rateLimit   float64
	rateBurst   int
	restart     supervisor.RestartPolicy
	promReg     *prometheus.Registry

	mu  sync.Mutex
	ln  *net.TCPListener
	sup *supervisor.Supervisor
}

// Option configures a Service.
type Option func(*Service)

// WithWorkers sets the pool size.
func WithWorkers(n int) Option {
	return func(s *Service) { s.workers = n }
}

// WithApp selects the application the pool serves and its option map.
func WithApp(ref string, options map[string]any) Option {
	return func(s *Service) {
		s.appRef = ref
		s.appOptions = options
	}
}

// WithRegistry replaces the built-in application registry, so embedders can
// serve their own handlers.
func WithRegistry(reg *apps.Registry) Option {
	return func(s *Service) { s.registry = reg }
}

// WithLogger sets the structured logger for the supervisor and every worker.
func WithLogger(log *slog.Logger) Option {
	return func(s *Service) { s.log = log }
}

// WithGracePeriod bounds the drain of one worker on shutdown or reload.
func WithGracePeriod(d time.Duration) Option {
	return func(s *Service) { s.grace = d }
}

// WithBootTimeout bounds a worker's spawn-to-ready window.
func WithBootTimeout(d time.Duration) Option {
	return func(s *Service) { s.boot = d }
}

// WithMaxInFlight bounds concurrent requests per worker; beyond it the
// worker answers 503.
func WithMaxInFlight(n int) Option {
	return func(s *Service) { s.maxInFlight = n }
}

// WithRateLimit enables the per-client limiter inside each worker.
func WithRateLimit(rps float64, burst int) Option {
	return func(s *Service) { s.rateLimit, s.rateBurst = rps, burst }
}

// WithRestartBudget caps restarts per worker before the slot is abandoned.
// 0 means unlimited.
func WithRestartBudget(retries int) Option {
	return func(s *Service) { s.restart.MaxRetries = retries }
}

// WithMetrics registers the pool and HTTP collectors on reg, so an embedding
// process can expose them on its own /metrics endpoint.
func WithMetrics(reg *prometheus.Registry) Option {
	return func(s *Service) { s.promReg = reg }
}

// New configures a service listening on bind. The default application is the
// statement analyzer; WithRegistry and WithApp select anything else.
func New(bind string, opts ...Option) (*Service, error) {
	if bind == "" {
		return nil, domain.ErrNoBindAddress
	}
	s := &Service{
		bind:        bind,
		workers:     1,
		appRef:      analyzer.Name,
		log:         logging.NewNop(),
		grace:       30 * time.Second,
		boot:        30 * time.Second,
		maxInFlight: 1024,
		restart:     supervisor.DefaultRestartPolicy(),
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.registry == nil {
		s.registry = apps.NewRegistry()
		analyzer.Register(s.registry)
	}
	if _, err := s.registry.Resolve(s.appRef); err != nil {
		return nil, err
	}
	return s, nil
}

// Listen binds the pool's socket. Run calls it when needed; call it directly
// to surface bind errors early, or to learn the port behind ":0" before the
// pool starts.
func (s *Service) Listen() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln != nil {
		return nil
	}

	ln, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("binding %s: %w", s.bind, err)
	}
	s.ln = ln.(*net.TCPListener)
	return nil
}

// Addr returns the bound address, or nil before Listen.
func (s *Service) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// Run serves until ctx is done and every worker has drained. It may be
// called once. A nil return means a clean shutdown; domain.ErrPoolExhausted
// means every worker spent its restart budget.
func (s *Service) Run(ctx context.Context) error {
	if err := s.Listen(); err != nil {
		return err
	}

	s.mu.Lock()
	ln := s.ln

	launcherOpts := []inproc.Option{
		inproc.WithLogger(s.log),
		inproc.WithRateLimit(s.rateLimit, s.rateBurst),
	}
	supOpts := []supervisor.Option{supervisor.WithLogger(s.log)}
	if s.promReg != nil {
		launcherOpts = append(launcherOpts, inproc.WithMetrics(observability.NewHTTPMetrics(s.promReg)))
		supOpts = append(supOpts, supervisor.WithMetrics(observability.NewPoolMetrics(s.promReg)))
	}

	s.sup = supervisor.New(supervisor.Config{
		Workers:     s.workers,
		AppRef:      s.appRef,
		AppOptions:  s.appOptions,
		GracePeriod: s.grace,
		BootTimeout: s.boot,
		MaxInFlight: s.maxInFlight,
		Restart:     s.restart,
	}, inproc.New(ln, s.registry, launcherOpts...), supOpts...)
	sup := s.sup
	s.mu.Unlock()

	defer ln.Close()
	return sup.Run(ctx)
}

// Reload asks the pool to replace its workers one at a time. A no-op before
// Run.
func (s *Service) Reload() {
	s.mu.Lock()
	sup := s.sup
	s.mu.Unlock()
	if sup != nil {
		sup.Reload()
	}
}

// Status snapshots every worker slot. Empty before Run.
func (s *Service) Status() []domain.WorkerStatus {
	s.mu.Lock()
	sup := s.sup
	s.mu.Unlock()
	if sup == nil {
		return nil
	}
	return sup.Status()
}

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/passbooklabs/passbook/internal/adapters/exec"
	"github.com/passbooklabs/passbook/internal/adapters/inproc"
	"github.com/passbooklabs/passbook/internal/config"
	"github.com/passbooklabs/passbook/internal/logging"
	"github.com/passbooklabs/passbook/internal/observability"
	"github.com/passbooklabs/passbook/internal/supervisor"
	"github.com/passbooklabs/passbook/pkg/apps"
	"github.com/passbooklabs/passbook/pkg/ports"
)

var serveCmd = &cobra.Command{
	Use:   "serve [app-ref]",
	Short: "Bind the socket and run the worker pool",
	Long: `Serve binds one TCP socket, then launches and supervises a pool of
workers that accept from it. Process workers are re-execs of this binary
with the socket as an inherited file descriptor; inline workers are
goroutine groups for development.

The bind address comes from --bind, the PORT environment variable, or the
config file, in that order of precedence. SIGTERM and SIGINT drain the pool
within the grace period; SIGHUP replaces workers one at a time.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("bind", "", "Listen address (host:port)")
	serveCmd.Flags().Int("workers", 0, "Worker pool size")
	serveCmd.Flags().String("worker-class", "", "Worker class: process or inline")
	serveCmd.Flags().Duration("grace-period", 0, "Drain deadline per worker")
	serveCmd.Flags().Duration("boot-timeout", 0, "Spawn-to-ready deadline per worker")
	serveCmd.Flags().Int("max-inflight", 0, "Concurrent request bound per worker")
	serveCmd.Flags().Float64("rate-limit", 0, "Per-client requests per second, 0 disables")
	serveCmd.Flags().Int("rate-burst", 0, "Per-client burst on top of --rate-limit")
	serveCmd.Flags().String("control-addr", "", "Operator listener for health, status, and metrics")
	serveCmd.Flags().String("config", "", "YAML config file")
	serveCmd.Flags().String("cache", "", "Analysis cache backend: memory or redis")
	serveCmd.Flags().String("redis-addr", "", "Redis address for --cache redis")
	serveCmd.Flags().String("formats", "", "Provisioned format pack store directory")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := resolveServeConfig(cmd, args)
	if err != nil {
		return startupErr(err)
	}

	level, err := logging.ParseLevel(cfg.LogLevel)
	if err != nil {
		return startupErr(err)
	}
	log := logging.New(level)

	registry := appRegistry()
	if _, err := registry.Resolve(cfg.App.Ref); err != nil {
		return startupErr(err)
	}

	// The single bind of the whole pool. Workers only ever accept.
	ln, err := net.Listen("tcp", cfg.Server.Bind)
	if err != nil {
		return startupErr(fmt.Errorf("binding %s: %w", cfg.Server.Bind, err))
	}
	defer ln.Close()
	log.Info("socket bound", "addr", ln.Addr().String(), "app", cfg.App.Ref)

	reg := observability.NewRegistry()
	pool := observability.NewPoolMetrics(reg)

	launcher, err := buildLauncher(cfg, ln.(*net.TCPListener), registry, reg, log)
	if err != nil {
		return startupErr(err)
	}

	sup := supervisor.New(supervisor.Config{
		Workers:     cfg.Server.Workers,
		AppRef:      cfg.App.Ref,
		AppOptions:  cfg.AppOptions(),
		GracePeriod: cfg.Server.GracePeriod.Std(),
		BootTimeout: cfg.Server.BootTimeout.Std(),
		MaxInFlight: cfg.Server.MaxInFlight,
		Restart: supervisor.RestartPolicy{
			MaxRetries:   cfg.Restart.MaxRetries,
			InitialDelay: cfg.Restart.InitialDelay.Std(),
			MaxDelay:     cfg.Restart.MaxDelay.Std(),
			Multiplier:   cfg.Restart.Multiplier,
			ResetAfter:   cfg.Restart.ResetAfter.Std(),
		},
	}, launcher, supervisor.WithLogger(log), supervisor.WithMetrics(pool))

	if cfg.Server.ControlAddr != "" {
		ctrlLn, err := net.Listen("tcp", cfg.Server.ControlAddr)
		if err != nil {
			return startupErr(fmt.Errorf("binding control listener: %w", err))
		}
		ctrl := &http.Server{
			Handler:           sup.ControlHandler(reg),
			ReadHeaderTimeout: 10 * time.Second,
		}
		defer ctrl.Close()
		go func() {
			if err := ctrl.Serve(ctrlLn); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("control listener failed", "error", err)
			}
		}()
		log.Info("control listener up", "addr", ctrlLn.Addr().String())
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)
	go func() {
		for range hup {
			log.Info("SIGHUP received, rolling reload")
			sup.Reload()
		}
	}()

	if err := sup.Run(ctx); err != nil {
		return runtimeErr(err)
	}
	log.Info("shutdown complete")
	return nil
}

// resolveServeConfig layers the sources: defaults, then the config file,
// then PORT, then flags. Validation runs on the final shape.
func resolveServeConfig(cmd *cobra.Command, args []string) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}

	if len(args) == 1 {
		cfg.App.Ref = args[0]
	}

	flags := cmd.Flags()
	if flags.Changed("bind") {
		cfg.Server.Bind, _ = flags.GetString("bind")
	}
	if flags.Changed("workers") {
		cfg.Server.Workers, _ = flags.GetInt("workers")
	}
	if flags.Changed("worker-class") {
		cfg.Server.WorkerClass, _ = flags.GetString("worker-class")
	}
	if flags.Changed("grace-period") {
		d, _ := flags.GetDuration("grace-period")
		cfg.Server.GracePeriod = config.Duration(d)
	}
	if flags.Changed("boot-timeout") {
		d, _ := flags.GetDuration("boot-timeout")
		cfg.Server.BootTimeout = config.Duration(d)
	}
	if flags.Changed("max-inflight") {
		cfg.Server.MaxInFlight, _ = flags.GetInt("max-inflight")
	}
	if flags.Changed("rate-limit") {
		cfg.Server.RateLimit, _ = flags.GetFloat64("rate-limit")
	}
	if flags.Changed("rate-burst") {
		cfg.Server.RateBurst, _ = flags.GetInt("rate-burst")
	}
	if flags.Changed("control-addr") {
		cfg.Server.ControlAddr, _ = flags.GetString("control-addr")
	}
	if flags.Changed("cache") {
		cfg.Cache.Backend, _ = flags.GetString("cache")
	}
	if flags.Changed("redis-addr") {
		cfg.Cache.RedisAddr, _ = flags.GetString("redis-addr")
	}
	if flags.Changed("formats") {
		dir, _ := flags.GetString("formats")
		if cfg.App.Options == nil {
			cfg.App.Options = make(map[string]any)
		}
		cfg.App.Options["formats_dir"] = dir
	}
	cfg.LogLevel = logLevel(cmd, cfg.LogLevel)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// buildLauncher picks the worker class. Process workers re-exec this binary
// with the hidden worker subcommand; inline workers share the supervisor's
// metrics registry.
func buildLauncher(cfg *config.Config, ln *net.TCPListener, registry *apps.Registry, reg *prometheus.Registry, log *slog.Logger) (ports.Launcher, error) {
	switch cfg.Server.WorkerClass {
	case config.ClassInline:
		return inproc.New(ln, registry,
			inproc.WithLogger(log),
			inproc.WithMetrics(observability.NewHTTPMetrics(reg)),
			inproc.WithRateLimit(cfg.Server.RateLimit, cfg.Server.RateBurst),
		), nil
	default:
		self, err := os.Executable()
		if err != nil {
			return nil, fmt.Errorf("resolving own binary: %w", err)
		}
		return exec.New(ln, self, []string{"worker"},
			exec.WithLogger(log),
			exec.WithRateLimit(cfg.Server.RateLimit, cfg.Server.RateBurst),
			exec.WithLogLevel(cfg.LogLevel),
		), nil
	}
}

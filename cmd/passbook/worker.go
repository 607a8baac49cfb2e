package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/passbooklabs/passbook/internal/adapters/exec"
	"github.com/passbooklabs/passbook/internal/logging"
	"github.com/passbooklabs/passbook/internal/worker"
	"github.com/passbooklabs/passbook/pkg/apps"
)

// workerCmd is the process-class entry point. The supervisor re-execs its
// own binary with this subcommand; parameters arrive in the environment and
// the shared socket on an inherited file descriptor. Never run it by hand.
var workerCmd = &cobra.Command{
	Use:    "worker",
	Short:  "Run one worker (launched by the supervisor)",
	Hidden: true,
	Args:   cobra.NoArgs,
	RunE:   runWorker,
}

func init() {
	rootCmd.AddCommand(workerCmd)
}

func runWorker(cmd *cobra.Command, args []string) error {
	params, err := exec.ParamsFromEnv(os.LookupEnv)
	if err != nil {
		return startupErr(err)
	}

	level, err := logging.ParseLevel(params.LogLevel)
	if err != nil {
		return startupErr(err)
	}
	log := logging.New(level).With("worker", params.ID)

	ln, err := exec.InheritedListener()
	if err != nil {
		return startupErr(err)
	}
	defer ln.Close()

	factory, err := appRegistry().Resolve(params.AppRef)
	if err != nil {
		return startupErr(err)
	}

	// Drain on SIGTERM from the supervisor; the lifeline covers the case
	// where the supervisor dies without signalling.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = exec.WatchLifeline(ctx, os.Stdin)

	handler, err := factory(ctx, apps.Runtime{Logger: log, Options: params.AppOptions})
	if err != nil {
		return startupErr(fmt.Errorf("building application %q: %w", params.AppRef, err))
	}

	rt, err := worker.NewRuntime(worker.Config{
		Listener:    ln,
		Handler:     handler,
		Logger:      log,
		GracePeriod: params.GracePeriod,
		MaxInFlight: params.MaxInFlight,
		RateLimit:   params.RateLimit,
		RateBurst:   params.RateBurst,
		OnReady: func() {
			if err := exec.SignalReady(); err != nil {
				log.Warn("readiness signal failed", "error", err)
			}
		},
	})
	if err != nil {
		return startupErr(err)
	}

	if err := rt.Run(ctx); err != nil {
		return runtimeErr(err)
	}
	return nil
}

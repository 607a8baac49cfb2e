package ports

import (
	"context"
	"time"
)

// WorkerSpec describes one worker the supervisor wants running.
type WorkerSpec struct {
	// ID is the supervisor-assigned identity; stable across restarts of the same slot.
	ID string

	// AppRef is the registry name of the application the worker serves.
	AppRef string

	// AppOptions is the free-form option map handed to the application factory.
	AppOptions map[string]any

	// GracePeriod bounds the drain phase.
	GracePeriod time.Duration

	// MaxInFlight bounds concurrent requests inside the worker; beyond it the
	// worker answers 503.
	MaxInFlight int
}

// Handle is one live worker as seen by the supervisor.
type Handle interface {
	// ID returns the spec ID the worker was launched with.
	ID() string

	// PID returns the OS process id, or the supervisor's own pid for inline workers.
	PID() int

	// Ready is closed once the worker is accepting connections.
	Ready() <-chan struct{}

	// Done is closed when the worker has exited; Err reports why.
	Done() <-chan struct{}

	// Err returns the exit error after Done is closed. nil means a clean exit.
	Err() error

	// Drain asks the worker to stop accepting and finish in-flight work.
	// It does not wait; the caller watches Done against its own deadline.
	Drain() error

	// Kill terminates the worker immediately, abandoning in-flight work.
	Kill() error
}

// Launcher spawns workers of one class. The listening socket is bound by the
// supervisor and wired into the launcher at construction; workers only ever
// accept from it.
type Launcher interface {
	// Class names the worker class ("process" or "inline").
	Class() string

	// Launch starts one worker. The context bounds the spawn itself, not the
	// worker's lifetime.
	Launch(ctx context.Context, spec WorkerSpec) (Handle, error)
}

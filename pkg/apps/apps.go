// Package apps is the registry of applications a passbook runtime can serve.
//
// An application is anything that can answer HTTP: a factory builds one
// http.Handler per worker, so a restarted worker always starts from a fresh
// handler instance. The supervisor resolves the configured application
// reference against a Registry at startup and hands the factory to every
// worker it launches.
package apps

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"sync"

	"github.com/passbooklabs/passbook/pkg/domain"
)

// Runtime carries the per-worker context a factory builds its handler from.
type Runtime struct {
	// Logger is the worker's structured logger, never nil.
	Logger *slog.Logger

	// Options is the application option map from configuration, already
	// merged with runtime-provided entries such as cache settings.
	Options map[string]any
}

// Factory builds one handler instance for one worker.
type Factory func(ctx context.Context, rt Runtime) (http.Handler, error)

// Registry manages the available applications.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry creates a new empty registry.
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]Factory),
	}
}

// Register adds an application to the registry.
// If an application with the same name exists, it is overwritten.
func (r *Registry) Register(name string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = f
}

// Resolve looks up an application factory by name.
// Returns domain.ErrUnknownApp if no application is registered under it.
func (r *Registry) Resolve(name string) (Factory, error) {
	r.mu.RLock()
	f, ok := r.factories[name]
	r.mu.RUnlock()

	if !ok {
		known := r.Names()
		if len(known) == 0 {
			return nil, fmt.Errorf("%w: %q (no applications registered)", domain.ErrUnknownApp, name)
		}
		return nil, fmt.Errorf("%w: %q (registered: %s)", domain.ErrUnknownApp, name, strings.Join(known, ", "))
	}
	return f, nil
}

// Names returns the registered application names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names) // Deterministic order
	return names
}

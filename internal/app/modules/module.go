// Package modules contains the domain-oriented dependency modules of the
// composition root.
package modules

import (
	"context"

	"github.com/riverqueue/river"

	"halcyon.studio/cinema/internal/api/handlers"
)

// Module represents a domain-specific dependency unit in the composition root.
type Module interface {
	// Name returns a stable module identifier for logging/debugging.
	Name() string

	// RegisterWorkers registers module workers into a shared River worker registry.
	RegisterWorkers(*river.Workers)

	// Shutdown performs module-local graceful cleanup.
	Shutdown(context.Context) error
}

// ServerDepsContributor is implemented by modules that own HTTP server
// dependencies. Contributions run after the River client exists.
type ServerDepsContributor interface {
	ContributeServerDeps(*handlers.ServerDeps)
}

// Starter is implemented by modules with background services. Start must
// not block; long-running loops go to the worker pools or their own
// goroutine bound to ctx.
type Starter interface {
	Start(ctx context.Context) error
}

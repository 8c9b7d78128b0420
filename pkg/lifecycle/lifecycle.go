// Package lifecycle pkg/lifecycle/lifecycle.go runs the supervisor loop:
// signal handling, the slow poll, and ordered shutdown.
package lifecycle

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"
)

const DefaultPollInterval = 5 * time.Second

// Stopper is implemented by every long-lived component.
type Stopper interface {
	Stop()
}

// Component pairs a stopper with a name for shutdown logging.
type Component struct {
	Name    string
	Stopper Stopper
}

// Options configures the supervisor loop.
type Options struct {
	// PollInterval is the cadence of the Poll callback; zero means
	// DefaultPollInterval.
	PollInterval time.Duration

	// Poll runs every interval while the process is up. The supervisor
	// uses it to observe the reload-requested flag and probe for
	// external configuration edits.
	Poll func()

	// ShutdownOrder lists the components to stop, in order, once a
	// termination signal arrives. No background task outlives its
	// dependencies.
	ShutdownOrder []Component
}

// Run blocks until SIGINT/SIGTERM (or context cancellation), polling on
// the configured cadence, then stops every component in order.
func Run(ctx context.Context, opts *Options) {
	interval := opts.PollInterval
	if interval <= 0 {
		interval = DefaultPollInterval
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	running := true
	for running {
		select {
		case sig := <-sigChan:
			log.Printf("Received signal %v, initiating shutdown", sig)
			running = false
		case <-ctx.Done():
			log.Printf("Context canceled, initiating shutdown")
			running = false
		case <-ticker.C:
			if opts.Poll != nil {
				opts.Poll()
			}
		}
	}

	for _, component := range opts.ShutdownOrder {
		log.Printf("Stopping %s", component.Name)
		component.Stopper.Stop()
	}
}

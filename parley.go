// Package parley provides a high-level façade over the lifecycle Controller
// and its supporting services (registry, store, enrichment, sweeping),
// enabling rapid construction of session-managed conversational backends.
// Most applications interact with this package by:
//  1. Creating a Parley via New() (optionally overriding default in-memory services)
//  2. Calling Start() to recover persisted sessions and launch background workers
//  3. Driving conversations through Controller() (PostMessage, Pause, Close, ...)
//  4. Calling Shutdown() to pause every live session and drain the workers
//
// The façade delegates session semantics to lifecycle.Controller while keeping
// setup and usage ergonomics concise. All defaults are safe for local
// development and testing; production deployments typically supply a durable
// store, a real responder and a structured logger.
package parley

import (
	"context"
	"time"

	"github.com/parleyhq/parley/core"
	"github.com/parleyhq/parley/enrich"
	"github.com/parleyhq/parley/lifecycle"
	"github.com/parleyhq/parley/logging"
	"github.com/parleyhq/parley/registry"
	"github.com/parleyhq/parley/responder"
	"github.com/parleyhq/parley/store/memory"
	"github.com/parleyhq/parley/sweep"
)

// Options configures the Parley instance.
type Options struct {
	// Store holds the durable account and conversation records (defaults
	// to an in-memory implementation if not provided).
	Store core.DocumentStore

	// Registry holds hot turn slices for active sessions (defaults to the
	// in-memory registry).
	Registry core.Registry

	// Responder produces replies and summaries (defaults to the mock
	// responder, suitable for tests and local development only).
	Responder responder.Responder

	// SystemPrompt is the base instruction for reply generation.
	SystemPrompt string

	// HistoryLimit caps the turns sent to the responder per reply.
	HistoryLimit int

	// IdleTimeout before the sweeper reclaims an inactive session.
	IdleTimeout time.Duration

	// SweepInterval between sweeper passes.
	SweepInterval time.Duration

	// EnrichWorkers bounds concurrent post-close enrichment runs.
	EnrichWorkers int

	// EnrichQueueSize bounds pending enrichment requests.
	EnrichQueueSize int

	// Logger (defaults to NoOp logger if nil)
	Logger logging.Logger
}

// Parley is the high-level façade aggregating the controller and its
// background services.
type Parley struct {
	opts       Options
	controller *lifecycle.Controller
	scheduler  *enrich.Scheduler
	sweeper    *sweep.Sweeper
}

// New creates a new Parley instance with optional overrides. Any unset
// service is initialized with an in-memory implementation.
func New(optFns ...func(o *Options)) *Parley {
	opts := Options{
		Store:         memory.New(),
		Registry:      registry.NewInMemory(),
		Responder:     responder.NewMock(),
		IdleTimeout:   sweep.DefaultIdleTimeout,
		SweepInterval: sweep.DefaultInterval,
		Logger:        logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	// The scheduler writes summaries and insights back through the
	// controller so its cache stays coherent with the store.
	var controller *lifecycle.Controller

	scheduler := enrich.New(opts.Store, opts.Responder, func(o *enrich.Options) {
		o.Workers = opts.EnrichWorkers
		o.QueueSize = opts.EnrichQueueSize
		o.Logger = opts.Logger
		o.AttachSummary = func(ctx context.Context, sessionKey, summary string) error {
			return controller.AttachSummary(ctx, sessionKey, summary)
		}
		o.UpdateInsight = func(ctx context.Context, accountID, insight string) error {
			return controller.UpdateInsight(ctx, accountID, insight)
		}
	})

	controller = lifecycle.New(opts.Store, opts.Registry, func(o *lifecycle.Options) {
		o.Responder = opts.Responder
		o.Enricher = scheduler
		o.SystemPrompt = opts.SystemPrompt
		o.HistoryLimit = opts.HistoryLimit
		o.Logger = opts.Logger
	})

	sweeper := sweep.New(controller, func(o *sweep.Options) {
		o.Interval = opts.SweepInterval
		o.IdleTimeout = opts.IdleTimeout
		o.Logger = opts.Logger
	})

	return &Parley{
		opts:       opts,
		controller: controller,
		scheduler:  scheduler,
		sweeper:    sweeper,
	}
}

// Controller exposes the lifecycle operations (accounts, sessions, turns).
func (p *Parley) Controller() *lifecycle.Controller { return p.controller }

// Start recovers persisted sessions into the registry and launches the
// enrichment workers and the idle sweeper.
func (p *Parley) Start(ctx context.Context) error {
	if err := p.controller.Recover(ctx); err != nil {
		return err
	}
	p.scheduler.Start(ctx)
	p.sweeper.Start(ctx)
	return nil
}

// Shutdown pauses every live session, checkpointing it to the store, then
// stops the sweeper and drains the enrichment workers.
func (p *Parley) Shutdown(ctx context.Context) error {
	p.sweeper.Stop()
	err := p.controller.PauseAll(ctx)
	p.scheduler.Stop()
	return err
}

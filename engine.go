package starpay

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/xraph/starpay/entitlement"
	"github.com/xraph/starpay/invoice"
	"github.com/xraph/starpay/keylock"
	"github.com/xraph/starpay/plan"
	"github.com/xraph/starpay/plugin"
	"github.com/xraph/starpay/reference"
	"github.com/xraph/starpay/store"
)

// DefaultPreCheckoutDeadline is the budget for answering a pre-checkout
// query. Telegram allows ten seconds; the engine answers well before that.
const DefaultPreCheckoutDeadline = 2 * time.Second

// Engine is the payment reconciliation engine.
type Engine struct {
	catalog   *plan.Catalog
	store     store.Store
	channel   invoice.Channel
	activator entitlement.Activator

	codec   *reference.Codec
	locker  keylock.Locker
	plugins *plugin.Registry
	logger  zerolog.Logger
	clock   func() time.Time
	rules   []Rule

	preCheckoutDeadline time.Duration
	optErrs             []error
}

// New creates an Engine. The catalog, store, payment channel and activator
// are required.
func New(catalog *plan.Catalog, s store.Store, ch invoice.Channel, act entitlement.Activator, opts ...Option) (*Engine, error) {
	switch {
	case catalog == nil:
		return nil, fmt.Errorf("%w: catalog is required", ErrInvalidInput)
	case s == nil:
		return nil, fmt.Errorf("%w: store is required", ErrInvalidInput)
	case ch == nil:
		return nil, fmt.Errorf("%w: payment channel is required", ErrInvalidInput)
	case act == nil:
		return nil, fmt.Errorf("%w: activator is required", ErrInvalidInput)
	}

	e := &Engine{
		catalog:             catalog,
		store:               s,
		channel:             ch,
		activator:           act,
		codec:               reference.NewCodec(nil),
		locker:              keylock.NewLocal(),
		plugins:             plugin.NewRegistry(),
		logger:              zerolog.Nop(),
		clock:               time.Now,
		preCheckoutDeadline: DefaultPreCheckoutDeadline,
	}

	for _, opt := range opts {
		opt(e)
	}
	if err := errors.Join(e.optErrs...); err != nil {
		return nil, err
	}

	return e, nil
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
		e.plugins.WithLogger(logger)
	}
}

// WithPlugin registers a plugin. Registering two plugins with the same name
// makes New fail.
func WithPlugin(p plugin.Plugin) Option {
	return func(e *Engine) {
		if err := e.plugins.Register(p); err != nil {
			e.optErrs = append(e.optErrs, err)
		}
	}
}

// WithPluginTimeout bounds each plugin hook call.
func WithPluginTimeout(d time.Duration) Option {
	return func(e *Engine) { e.plugins.WithTimeout(d) }
}

// WithLocker sets the per-charge lock. Use keylock.Redis when several
// engine replicas receive the same updates.
func WithLocker(l keylock.Locker) Option {
	return func(e *Engine) { e.locker = l }
}

// WithCodec sets the payment reference codec, typically a signing one.
func WithCodec(c *reference.Codec) Option {
	return func(e *Engine) { e.codec = c }
}

// WithPreCheckoutDeadline sets the pre-checkout answer budget.
func WithPreCheckoutDeadline(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.preCheckoutDeadline = d
		}
	}
}

// WithPreCheckoutRule adds a check run after the built-in pre-checkout
// validation.
func WithPreCheckoutRule(r Rule) Option {
	return func(e *Engine) { e.rules = append(e.rules, r) }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.clock = now }
}

// Start migrates the store and initializes plugins.
func (e *Engine) Start(ctx context.Context) error {
	if err := e.store.Migrate(ctx); err != nil {
		return err
	}

	e.plugins.EmitInit(ctx)

	e.logger.Info().
		Int("plans", e.catalog.Len()).
		Int("plugins", e.plugins.Count()).
		Bool("signed_references", e.codec.Signed()).
		Dur("precheckout_deadline", e.preCheckoutDeadline).
		Msg("starpay engine started")

	return nil
}

// Stop notifies plugins and closes the store.
func (e *Engine) Stop(ctx context.Context) error {
	e.plugins.EmitShutdown(ctx)
	return e.store.Close()
}

// Health reports whether the ledger store is reachable.
func (e *Engine) Health(ctx context.Context) error {
	return e.store.Ping(ctx)
}

// Catalog returns the plan catalog.
func (e *Engine) Catalog() *plan.Catalog { return e.catalog }

// Logger returns the engine's logger.
func (e *Engine) Logger() zerolog.Logger { return e.logger }

func chargeKey(chargeID string) string { return "charge:" + chargeID }

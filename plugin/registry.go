package plugin

import (
	"context"
	"fmt"
	"reflect"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/xraph/starpay/charge"
	"github.com/xraph/starpay/invoice"
)

// DefaultTimeout bounds a single hook call.
const DefaultTimeout = 5 * time.Second

// Registry manages all registered plugins and provides efficient dispatch.
// It uses type-cached discovery for O(1) dispatch performance.
type Registry struct {
	mu      sync.RWMutex
	plugins []Plugin
	logger  zerolog.Logger
	timeout time.Duration

	// Type-cached plugin lists for efficient dispatch
	onInit               []OnInit
	onShutdown           []OnShutdown
	onInvoiceIssued      []OnInvoiceIssued
	onPreCheckout        []OnPreCheckout
	onChargeSettled      []OnChargeSettled
	onChargeDuplicate    []OnChargeDuplicate
	onSettlementRejected []OnSettlementRejected
	onActivationFailed   []OnActivationFailed
	onReconciled         []OnReconciled
}

// NewRegistry creates a new plugin registry.
func NewRegistry() *Registry {
	return &Registry{
		logger:  zerolog.Nop(),
		timeout: DefaultTimeout,
	}
}

// WithLogger sets the logger for the registry.
func (r *Registry) WithLogger(logger zerolog.Logger) *Registry {
	r.logger = logger
	return r
}

// WithTimeout sets the per-hook timeout. Non-positive values keep the default.
func (r *Registry) WithTimeout(d time.Duration) *Registry {
	if d > 0 {
		r.timeout = d
	}
	return r
}

// Register adds a plugin to the registry and caches its interfaces.
func (r *Registry) Register(p Plugin) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.plugins {
		if existing.Name() == p.Name() {
			return fmt.Errorf("plugin: duplicate registration: %s", p.Name())
		}
	}

	r.plugins = append(r.plugins, p)

	if v, ok := p.(OnInit); ok {
		r.onInit = append(r.onInit, v)
	}
	if v, ok := p.(OnShutdown); ok {
		r.onShutdown = append(r.onShutdown, v)
	}
	if v, ok := p.(OnInvoiceIssued); ok {
		r.onInvoiceIssued = append(r.onInvoiceIssued, v)
	}
	if v, ok := p.(OnPreCheckout); ok {
		r.onPreCheckout = append(r.onPreCheckout, v)
	}
	if v, ok := p.(OnChargeSettled); ok {
		r.onChargeSettled = append(r.onChargeSettled, v)
	}
	if v, ok := p.(OnChargeDuplicate); ok {
		r.onChargeDuplicate = append(r.onChargeDuplicate, v)
	}
	if v, ok := p.(OnSettlementRejected); ok {
		r.onSettlementRejected = append(r.onSettlementRejected, v)
	}
	if v, ok := p.(OnActivationFailed); ok {
		r.onActivationFailed = append(r.onActivationFailed, v)
	}
	if v, ok := p.(OnReconciled); ok {
		r.onReconciled = append(r.onReconciled, v)
	}

	r.logger.Info().
		Str("plugin", p.Name()).
		Strs("interfaces", implementedInterfaces(p)).
		Msg("plugin registered")

	return nil
}

var hookTypes = []struct {
	name string
	typ  reflect.Type
}{
	{"OnInit", reflect.TypeFor[OnInit]()},
	{"OnShutdown", reflect.TypeFor[OnShutdown]()},
	{"OnInvoiceIssued", reflect.TypeFor[OnInvoiceIssued]()},
	{"OnPreCheckout", reflect.TypeFor[OnPreCheckout]()},
	{"OnChargeSettled", reflect.TypeFor[OnChargeSettled]()},
	{"OnChargeDuplicate", reflect.TypeFor[OnChargeDuplicate]()},
	{"OnSettlementRejected", reflect.TypeFor[OnSettlementRejected]()},
	{"OnActivationFailed", reflect.TypeFor[OnActivationFailed]()},
	{"OnReconciled", reflect.TypeFor[OnReconciled]()},
}

func implementedInterfaces(p Plugin) []string {
	var names []string
	v := reflect.TypeOf(p)
	for _, h := range hookTypes {
		if v.Implements(h.typ) {
			names = append(names, h.name)
		}
	}
	return names
}

// Get returns a plugin by name.
func (r *Registry) Get(name string) Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, p := range r.plugins {
		if p.Name() == name {
			return p
		}
	}
	return nil
}

// List returns all registered plugins.
func (r *Registry) List() []Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Plugin, len(r.plugins))
	copy(result, r.plugins)
	return result
}

// Count returns the number of registered plugins.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.plugins)
}

// ──────────────────────────────────────────────────
// Event emission methods
// ──────────────────────────────────────────────────

// EmitInit calls OnInit for all plugins that implement it.
func (r *Registry) EmitInit(ctx context.Context) {
	r.mu.RLock()
	plugins := r.onInit
	r.mu.RUnlock()

	for _, p := range plugins {
		r.dispatch(ctx, p.Name(), "OnInit", func(ctx context.Context) error {
			return p.OnInit(ctx)
		})
	}
}

// EmitShutdown calls OnShutdown for all plugins that implement it.
func (r *Registry) EmitShutdown(ctx context.Context) {
	r.mu.RLock()
	plugins := r.onShutdown
	r.mu.RUnlock()

	for _, p := range plugins {
		r.dispatch(ctx, p.Name(), "OnShutdown", func(ctx context.Context) error {
			return p.OnShutdown(ctx)
		})
	}
}

// EmitInvoiceIssued emits an invoice issued event.
func (r *Registry) EmitInvoiceIssued(ctx context.Context, inv *invoice.Invoice) {
	r.mu.RLock()
	plugins := r.onInvoiceIssued
	r.mu.RUnlock()

	for _, p := range plugins {
		r.dispatch(ctx, p.Name(), "OnInvoiceIssued", func(ctx context.Context) error {
			return p.OnInvoiceIssued(ctx, inv)
		})
	}
}

// EmitPreCheckout emits a pre-checkout verdict.
func (r *Registry) EmitPreCheckout(ctx context.Context, pc PreCheckout) {
	r.mu.RLock()
	plugins := r.onPreCheckout
	r.mu.RUnlock()

	for _, p := range plugins {
		r.dispatch(ctx, p.Name(), "OnPreCheckout", func(ctx context.Context) error {
			return p.OnPreCheckout(ctx, pc)
		})
	}
}

// EmitChargeSettled emits a charge settled event.
func (r *Registry) EmitChargeSettled(ctx context.Context, rec *charge.Record) {
	r.mu.RLock()
	plugins := r.onChargeSettled
	r.mu.RUnlock()

	for _, p := range plugins {
		r.dispatch(ctx, p.Name(), "OnChargeSettled", func(ctx context.Context) error {
			return p.OnChargeSettled(ctx, rec)
		})
	}
}

// EmitChargeDuplicate emits a duplicate delivery event.
func (r *Registry) EmitChargeDuplicate(ctx context.Context, chargeID string) {
	r.mu.RLock()
	plugins := r.onChargeDuplicate
	r.mu.RUnlock()

	for _, p := range plugins {
		r.dispatch(ctx, p.Name(), "OnChargeDuplicate", func(ctx context.Context) error {
			return p.OnChargeDuplicate(ctx, chargeID)
		})
	}
}

// EmitSettlementRejected emits a rejected settlement event.
func (r *Registry) EmitSettlementRejected(ctx context.Context, rej Rejection) {
	r.mu.RLock()
	plugins := r.onSettlementRejected
	r.mu.RUnlock()

	for _, p := range plugins {
		r.dispatch(ctx, p.Name(), "OnSettlementRejected", func(ctx context.Context) error {
			return p.OnSettlementRejected(ctx, rej)
		})
	}
}

// EmitActivationFailed emits an activation failure event.
func (r *Registry) EmitActivationFailed(ctx context.Context, rec *charge.Record, cause error) {
	r.mu.RLock()
	plugins := r.onActivationFailed
	r.mu.RUnlock()

	for _, p := range plugins {
		r.dispatch(ctx, p.Name(), "OnActivationFailed", func(ctx context.Context) error {
			return p.OnActivationFailed(ctx, rec, cause)
		})
	}
}

// EmitReconciled emits a reconciled charge event.
func (r *Registry) EmitReconciled(ctx context.Context, rec *charge.Record) {
	r.mu.RLock()
	plugins := r.onReconciled
	r.mu.RUnlock()

	for _, p := range plugins {
		r.dispatch(ctx, p.Name(), "OnReconciled", func(ctx context.Context) error {
			return p.OnReconciled(ctx, rec)
		})
	}
}

func (r *Registry) dispatch(ctx context.Context, pluginName, hook string, fn func(context.Context) error) {
	if err := r.callWithTimeout(ctx, pluginName, fn); err != nil {
		r.logger.Warn().
			Str("plugin", pluginName).
			Str("hook", hook).
			Err(err).
			Msg("plugin hook failed")
	}
}

// callWithTimeout calls a plugin function with a timeout.
// Plugins should never block the payment pipeline.
func (r *Registry) callWithTimeout(ctx context.Context, pluginName string, fn func(context.Context) error) error {
	hctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				done <- fmt.Errorf("plugin panic: %s: %v", pluginName, rec)
			}
		}()
		done <- fn(hctx)
	}()

	select {
	case err := <-done:
		return err
	case <-hctx.Done():
		return fmt.Errorf("plugin timeout: %s", pluginName)
	}
}

package extension

import (
	"time"

	"github.com/xraph/starpay"
	"github.com/xraph/starpay/entitlement"
	"github.com/xraph/starpay/invoice"
	"github.com/xraph/starpay/plan"
	"github.com/xraph/starpay/plugin"
	"github.com/xraph/starpay/store"
)

// Option configures the Starpay Forge extension.
type Option func(*Extension)

// WithStore sets the ledger store.
func WithStore(s store.Store) Option {
	return func(e *Extension) { e.store = s }
}

// WithCatalog sets the plan catalog, overriding PlansFile.
func WithCatalog(c *plan.Catalog) Option {
	return func(e *Extension) { e.catalog = c }
}

// WithChannel sets the payment channel invoices are submitted to.
func WithChannel(ch invoice.Channel) Option {
	return func(e *Extension) { e.channel = ch }
}

// WithActivator sets the entitlement activator. Without one the extension
// grants subscriptions through subscription.Service on the same store.
func WithActivator(a entitlement.Activator) Option {
	return func(e *Extension) { e.activator = a }
}

// WithEngineOption passes a starpay.Option through to the underlying engine.
func WithEngineOption(opt starpay.Option) Option {
	return func(e *Extension) {
		e.engineOpts = append(e.engineOpts, opt)
	}
}

// WithPlugin registers an engine plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(e *Extension) {
		e.engineOpts = append(e.engineOpts, starpay.WithPlugin(p))
	}
}

// WithConfig sets the Forge extension configuration.
func WithConfig(cfg Config) Option {
	return func(e *Extension) { e.config = cfg }
}

// WithDisableMigrate skips engine start.
func WithDisableMigrate() Option {
	return func(e *Extension) { e.config.DisableMigrate = true }
}

// WithRequireConfig requires config to be present in YAML files.
// If true and no config is found, Register returns an error.
func WithRequireConfig(require bool) Option {
	return func(e *Extension) { e.config.RequireConfig = require }
}

// WithPlansFile loads the catalog from a YAML file.
func WithPlansFile(path string) Option {
	return func(e *Extension) { e.config.PlansFile = path }
}

// WithReferenceKey enables signed payment references.
func WithReferenceKey(key string) Option {
	return func(e *Extension) { e.config.ReferenceKey = key }
}

// WithPreCheckoutDeadline sets the pre-checkout answer budget.
func WithPreCheckoutDeadline(d time.Duration) Option {
	return func(e *Extension) { e.config.PreCheckoutDeadline = d }
}

// WithGroveDatabase sets the name of the grove.DB to resolve from the DI container.
// The extension constructs the matching store backend (postgres/sqlite/mongo)
// for the grove driver. Pass an empty string to use the default (unnamed) grove.DB.
func WithGroveDatabase(name string) Option {
	return func(e *Extension) {
		e.config.GroveDatabase = name
		e.useGrove = true
	}
}

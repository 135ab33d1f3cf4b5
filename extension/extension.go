// Package extension provides the Forge extension adapter for Starpay.
//
// It implements the forge.Extension interface to integrate the payment
// engine into a Forge application with DI registration and lifecycle
// management.
//
// Configuration can be provided programmatically via Option functions
// or via YAML configuration files under "extensions.starpay" or "starpay" keys.
package extension

import (
	"context"
	"errors"
	"fmt"

	"github.com/xraph/forge"
	"github.com/xraph/grove"
	"github.com/xraph/vessel"

	"github.com/xraph/starpay"
	"github.com/xraph/starpay/entitlement"
	"github.com/xraph/starpay/invoice"
	"github.com/xraph/starpay/plan"
	"github.com/xraph/starpay/reference"
	"github.com/xraph/starpay/store"
	"github.com/xraph/starpay/store/memory"
	"github.com/xraph/starpay/store/mongo"
	"github.com/xraph/starpay/store/postgres"
	"github.com/xraph/starpay/store/sqlite"
	"github.com/xraph/starpay/subscription"
)

// ExtensionName is the name registered with Forge.
const ExtensionName = "starpay"

// ExtensionDescription is the human-readable description.
const ExtensionDescription = "Telegram Stars payment reconciliation engine"

// ExtensionVersion is the semantic version.
const ExtensionVersion = "0.1.0"

// Ensure Extension implements forge.Extension at compile time.
var _ forge.Extension = (*Extension)(nil)

// Extension adapts Starpay as a Forge extension.
type Extension struct {
	*forge.BaseExtension

	config     Config
	engine     *starpay.Engine
	store      store.Store
	catalog    *plan.Catalog
	channel    invoice.Channel
	activator  entitlement.Activator
	engineOpts []starpay.Option
	useGrove   bool
}

// New creates a new Starpay Forge extension with the given options.
func New(opts ...Option) *Extension {
	e := &Extension{
		BaseExtension: forge.NewBaseExtension(ExtensionName, ExtensionVersion, ExtensionDescription),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Engine returns the underlying engine.
// This is nil until Register is called.
func (e *Extension) Engine() *starpay.Engine { return e.engine }

// Register implements [forge.Extension]. It loads configuration,
// initializes the engine, and registers it in the DI container.
func (e *Extension) Register(fapp forge.App) error {
	if err := e.BaseExtension.Register(fapp); err != nil {
		return err
	}

	if err := e.loadConfiguration(); err != nil {
		return err
	}

	if e.channel == nil {
		return errors.New("starpay: a payment channel is required; use WithChannel")
	}

	if e.store == nil {
		s, err := e.resolveStore(fapp.Container())
		if err != nil {
			return err
		}
		e.store = s
	}

	if e.catalog == nil {
		c, err := loadCatalog(e.config.PlansFile)
		if err != nil {
			return err
		}
		e.catalog = c
	}

	if e.activator == nil {
		svc := subscription.NewService(e.store)
		e.activator = svc
		if err := vessel.Provide(fapp.Container(), func() (*subscription.Service, error) {
			return svc, nil
		}); err != nil {
			return err
		}
	}

	eng, err := starpay.New(e.catalog, e.store, e.channel, e.activator, e.buildEngineOpts()...)
	if err != nil {
		return err
	}
	e.engine = eng

	return vessel.Provide(fapp.Container(), func() (*starpay.Engine, error) {
		return e.engine, nil
	})
}

// Start implements [forge.Extension].
func (e *Extension) Start(ctx context.Context) error {
	if e.engine == nil {
		return errors.New("starpay: extension not initialized")
	}

	if !e.config.DisableMigrate {
		if err := e.engine.Start(ctx); err != nil {
			return err
		}
	}

	e.MarkStarted()
	return nil
}

// Stop implements [forge.Extension].
func (e *Extension) Stop(ctx context.Context) error {
	if e.engine != nil {
		if err := e.engine.Stop(ctx); err != nil {
			e.MarkStopped()
			return err
		}
	}
	e.MarkStopped()
	return nil
}

// Health implements [forge.Extension].
func (e *Extension) Health(ctx context.Context) error {
	if e.engine == nil {
		return errors.New("starpay: engine not initialized")
	}
	return e.engine.Health(ctx)
}

// buildEngineOpts constructs starpay.Option values from the resolved config.
// Pass-through options come last so they win.
func (e *Extension) buildEngineOpts() []starpay.Option {
	opts := make([]starpay.Option, 0, len(e.engineOpts)+3)

	if e.config.ReferenceKey != "" {
		opts = append(opts, starpay.WithCodec(reference.NewCodec([]byte(e.config.ReferenceKey))))
	}
	if e.config.PreCheckoutDeadline > 0 {
		opts = append(opts, starpay.WithPreCheckoutDeadline(e.config.PreCheckoutDeadline))
	}
	if e.config.PluginTimeout > 0 {
		opts = append(opts, starpay.WithPluginTimeout(e.config.PluginTimeout))
	}

	return append(opts, e.engineOpts...)
}

// resolveStore builds a store on the grove.DB from the container, or falls
// back to the in-memory store when no database was requested.
func (e *Extension) resolveStore(c forge.Container) (store.Store, error) {
	if !e.useGrove && e.config.GroveDatabase == "" {
		e.Logger().Warn("starpay: no store configured, using in-memory ledger")
		return memory.New(), nil
	}

	var (
		db  *grove.DB
		err error
	)
	if e.config.GroveDatabase != "" {
		db, err = vessel.InjectNamed[*grove.DB](c, e.config.GroveDatabase)
	} else {
		db, err = vessel.Inject[*grove.DB](c)
	}
	if err != nil {
		return nil, fmt.Errorf("starpay: resolve grove database %q: %w", e.config.GroveDatabase, err)
	}
	return storeForDriver(db)
}

func storeForDriver(db *grove.DB) (store.Store, error) {
	switch name := db.Driver().Name(); name {
	case "pg":
		return postgres.New(db), nil
	case "sqlite":
		return sqlite.New(db), nil
	case "mongo":
		return mongo.New(db), nil
	default:
		return nil, fmt.Errorf("starpay: unsupported grove driver %q", name)
	}
}

func loadCatalog(path string) (*plan.Catalog, error) {
	if path == "" {
		return plan.DefaultCatalog(), nil
	}
	return plan.LoadFile(path)
}

// --- Config Loading (mirrors grove/shield extension pattern) ---

// loadConfiguration loads config from YAML files or programmatic sources.
func (e *Extension) loadConfiguration() error {
	programmaticConfig := e.config

	fileConfig, configLoaded := e.tryLoadFromConfigFile()

	if !configLoaded {
		if programmaticConfig.RequireConfig {
			return errors.New("starpay: configuration is required but not found in config files; " +
				"ensure 'extensions.starpay' or 'starpay' key exists in your config")
		}
		e.config = mergeWithDefaults(programmaticConfig)
	} else {
		e.config = mergeConfigurations(fileConfig, programmaticConfig)
	}

	e.Logger().Debug("starpay: configuration loaded",
		forge.F("disable_migrate", e.config.DisableMigrate),
		forge.F("plans_file", e.config.PlansFile),
		forge.F("signed_references", e.config.ReferenceKey != ""),
		forge.F("precheckout_deadline", e.config.PreCheckoutDeadline),
		forge.F("grove_database", e.config.GroveDatabase),
	)

	return nil
}

// tryLoadFromConfigFile attempts to load config from YAML files.
func (e *Extension) tryLoadFromConfigFile() (Config, bool) {
	cm := e.App().Config()

	for _, key := range []string{"extensions.starpay", "starpay"} {
		if !cm.IsSet(key) {
			continue
		}
		var cfg Config
		if err := cm.Bind(key, &cfg); err != nil {
			e.Logger().Warn("starpay: failed to bind config",
				forge.F("key", key),
				forge.F("error", err.Error()),
			)
			continue
		}
		e.Logger().Debug("starpay: loaded config from file", forge.F("key", key))
		return cfg, true
	}

	return Config{}, false
}

// mergeWithDefaults fills zero-valued fields with defaults.
func mergeWithDefaults(cfg Config) Config {
	defaults := DefaultConfig()
	if cfg.PreCheckoutDeadline == 0 {
		cfg.PreCheckoutDeadline = defaults.PreCheckoutDeadline
	}
	if cfg.PluginTimeout == 0 {
		cfg.PluginTimeout = defaults.PluginTimeout
	}
	return cfg
}

// mergeConfigurations merges YAML config with programmatic options.
// YAML config takes precedence for most fields; programmatic values fill gaps.
func mergeConfigurations(yamlConfig, programmaticConfig Config) Config {
	if programmaticConfig.DisableMigrate {
		yamlConfig.DisableMigrate = true
	}

	if yamlConfig.PlansFile == "" {
		yamlConfig.PlansFile = programmaticConfig.PlansFile
	}
	if yamlConfig.ReferenceKey == "" {
		yamlConfig.ReferenceKey = programmaticConfig.ReferenceKey
	}
	if yamlConfig.GroveDatabase == "" {
		yamlConfig.GroveDatabase = programmaticConfig.GroveDatabase
	}
	if yamlConfig.PreCheckoutDeadline == 0 {
		yamlConfig.PreCheckoutDeadline = programmaticConfig.PreCheckoutDeadline
	}
	if yamlConfig.PluginTimeout == 0 {
		yamlConfig.PluginTimeout = programmaticConfig.PluginTimeout
	}

	return mergeWithDefaults(yamlConfig)
}

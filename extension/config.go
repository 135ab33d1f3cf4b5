package extension

import "time"

// Config holds the Starpay extension configuration.
// Fields can be set programmatically via Option functions or loaded from
// YAML configuration files (under "extensions.starpay" or "starpay" keys).
type Config struct {
	// DisableMigrate skips engine start (store migration and plugin init).
	DisableMigrate bool `json:"disable_migrate" mapstructure:"disable_migrate" yaml:"disable_migrate"`

	// PlansFile is a YAML plan catalog. Empty means the stock catalog.
	PlansFile string `json:"plans_file" mapstructure:"plans_file" yaml:"plans_file"`

	// ReferenceKey enables signed payment references.
	ReferenceKey string `json:"reference_key" mapstructure:"reference_key" yaml:"reference_key"`

	// PreCheckoutDeadline bounds each pre-checkout answer (default: 2s).
	PreCheckoutDeadline time.Duration `json:"precheckout_deadline" mapstructure:"precheckout_deadline" yaml:"precheckout_deadline"`

	// PluginTimeout bounds each plugin hook call (default: 5s).
	PluginTimeout time.Duration `json:"plugin_timeout" mapstructure:"plugin_timeout" yaml:"plugin_timeout"`

	// GroveDatabase is the name of a grove.DB registered in the DI container.
	// When set, the extension resolves this named database and constructs
	// the matching store for its driver (pg/sqlite/mongo).
	// When empty and WithGroveDatabase was called, the default (unnamed) DB is used.
	GroveDatabase string `json:"grove_database" mapstructure:"grove_database" yaml:"grove_database"`

	// RequireConfig requires config to be present in YAML files.
	// If true and no config is found, Register returns an error.
	RequireConfig bool `json:"-" yaml:"-"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		PreCheckoutDeadline: 2 * time.Second,
		PluginTimeout:       5 * time.Second,
	}
}

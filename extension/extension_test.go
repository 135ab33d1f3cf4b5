package extension

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/starpay/store/memory"
)

func TestNewAppliesOptions(t *testing.T) {
	s := memory.New()
	e := New(
		WithStore(s),
		WithPlansFile("plans.yaml"),
		WithReferenceKey("0123456789abcdef"),
		WithPreCheckoutDeadline(time.Second),
		WithGroveDatabase("payments"),
		WithDisableMigrate(),
	)

	assert.Equal(t, ExtensionName, e.Name())
	assert.Same(t, s, e.store)
	assert.True(t, e.useGrove)
	assert.Equal(t, "payments", e.config.GroveDatabase)
	assert.Equal(t, "plans.yaml", e.config.PlansFile)
	assert.Equal(t, time.Second, e.config.PreCheckoutDeadline)
	assert.True(t, e.config.DisableMigrate)
	assert.Nil(t, e.Engine())
}

func TestMergeWithDefaults(t *testing.T) {
	got := mergeWithDefaults(Config{PluginTimeout: time.Second})
	assert.Equal(t, 2*time.Second, got.PreCheckoutDeadline)
	assert.Equal(t, time.Second, got.PluginTimeout)
}

func TestMergeConfigurations(t *testing.T) {
	file := Config{
		PlansFile:           "from-file.yaml",
		PreCheckoutDeadline: 3 * time.Second,
	}
	prog := Config{
		PlansFile:      "from-code.yaml",
		ReferenceKey:   "0123456789abcdef",
		GroveDatabase:  "payments",
		DisableMigrate: true,
	}

	got := mergeConfigurations(file, prog)
	assert.Equal(t, "from-file.yaml", got.PlansFile)
	assert.Equal(t, "0123456789abcdef", got.ReferenceKey)
	assert.Equal(t, "payments", got.GroveDatabase)
	assert.Equal(t, 3*time.Second, got.PreCheckoutDeadline)
	assert.Equal(t, 5*time.Second, got.PluginTimeout)
	assert.True(t, got.DisableMigrate)
}

func TestBuildEngineOpts(t *testing.T) {
	e := New(WithReferenceKey("0123456789abcdef"))
	e.config = mergeWithDefaults(e.config)
	assert.Len(t, e.buildEngineOpts(), 3)

	bare := New()
	assert.Empty(t, bare.buildEngineOpts())
}

func TestLoadCatalogDefault(t *testing.T) {
	c, err := loadCatalog("")
	require.NoError(t, err)
	assert.Positive(t, c.Len())

	_, err = loadCatalog("does-not-exist.yaml")
	assert.Error(t, err)
}

func TestHealthBeforeRegister(t *testing.T) {
	require.Error(t, New().Health(t.Context()))
	require.Error(t, New().Start(t.Context()))
}

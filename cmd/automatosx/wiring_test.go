package main

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/automatosx/automatosx/pkg/config"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	dir := t.TempDir()
	return config.Config{
		Providers: config.ProvidersConfig{
			Entries: []config.ProviderEntry{{Name: "mock", Command: []string{"mock-cli"}}},
			Default: "mock",
		},
		Session:       config.SessionConfig{Path: dir + "/sessions.json"},
		Memory:        config.MemoryConfig{Path: dir + "/memory.db"},
		Workspace:     config.WorkspaceConfig{Root: dir},
		MockProviders: true,
	}
}

func TestBuildKernelWiresEveryComponent(t *testing.T) {
	cfg := testConfig(t)
	cfg.SetDefaults()
	require.NoError(t, cfg.Validate())

	kernel, cleanup, err := buildKernel(context.Background(), cfg, slog.Default())
	require.NoError(t, err)
	require.NotNil(t, kernel)
	defer cleanup()

	assert.Empty(t, kernel.ListAgents())
}

func TestBuildRouterUsesMockProvidersWhenConfigured(t *testing.T) {
	cfg := testConfig(t)
	router := buildRouter(cfg)
	require.NotNil(t, router)
	defer router.Destroy()

	router.Warmup(context.Background())
	snapshot := router.Metrics()
	require.Len(t, snapshot.Providers, 1)
	assert.Equal(t, "mock", snapshot.Providers[0].Name)
}

func TestBuildRouterToleratesNoConfiguredProviders(t *testing.T) {
	cfg := testConfig(t)
	cfg.Providers = config.ProvidersConfig{}

	router := buildRouter(cfg)
	require.NotNil(t, router)
	defer router.Destroy()

	assert.Empty(t, router.Metrics().Providers)
}

func TestBuildCheckpointManagerDisabledByDefault(t *testing.T) {
	mgr, err := buildCheckpointManager(config.CheckpointConfig{}, slog.Default())
	require.NoError(t, err)
	assert.False(t, mgr.IsEnabled())
}

func TestBuildCheckpointManagerRejectsEnabledWithoutDirectory(t *testing.T) {
	_, err := buildCheckpointManager(config.CheckpointConfig{Enabled: true}, slog.Default())
	assert.Error(t, err)
}

func TestBuildCheckpointManagerEnabledWithDirectory(t *testing.T) {
	dir := t.TempDir()
	mgr, err := buildCheckpointManager(config.CheckpointConfig{Enabled: true, Directory: dir}, slog.Default())
	require.NoError(t, err)
	assert.True(t, mgr.IsEnabled())
}

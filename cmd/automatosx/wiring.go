package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/automatosx/automatosx/pkg/checkpoint"
	"github.com/automatosx/automatosx/pkg/config"
	"github.com/automatosx/automatosx/pkg/memory"
	"github.com/automatosx/automatosx/pkg/orchestrator"
	"github.com/automatosx/automatosx/pkg/profile"
	"github.com/automatosx/automatosx/pkg/progress"
	"github.com/automatosx/automatosx/pkg/provider"
	"github.com/automatosx/automatosx/pkg/session"
	"github.com/automatosx/automatosx/pkg/workspace"
)

// buildKernel constructs every component Config describes and wires them
// into an *orchestrator.Kernel. The returned cleanup releases everything
// that owns a resource (router subprocess pool, memory database); it is
// always safe to call, even after a partial failure.
func buildKernel(ctx context.Context, cfg config.Config, log *slog.Logger) (*orchestrator.Kernel, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	router := buildRouter(cfg)
	router.Warmup(ctx)
	router.Start(ctx)
	closers = append(closers, func() {
		if err := router.Destroy(); err != nil {
			log.Warn("router shutdown error", "error", err)
		}
	})

	memStore, err := memory.Open(memory.Config{
		Path:                cfg.Memory.Path,
		MaxEntries:          cfg.Memory.MaxEntries,
		CleanupBatchPercent: cfg.Memory.CleanupBatchPercent,
		TrackAccess:         cfg.Memory.TrackAccess,
	}, log)
	if err != nil {
		cleanup()
		return nil, func() {}, fmt.Errorf("opening memory store: %w", err)
	}
	closers = append(closers, func() {
		if err := memStore.Close(); err != nil {
			log.Warn("memory store shutdown error", "error", err)
		}
	})

	sessions := session.NewManager(cfg.Session.Path, log)
	ws := workspace.New(cfg.Workspace.Root)
	bus := progress.NewBus(cfg.Progress.Throttle(), log)

	checkpoints, err := buildCheckpointManager(cfg.Checkpoint, log)
	if err != nil {
		cleanup()
		return nil, func() {}, fmt.Errorf("configuring checkpoints: %w", err)
	}

	kernel := orchestrator.New(orchestrator.Config{
		Profiles:                 profile.NewRegistryLoader(),
		Abilities:                profile.NewRegistryAbilityLoader(),
		Providers:                router,
		Sessions:                 sessions,
		Memory:                   memStore,
		Workspace:                ws,
		Progress:                 bus,
		Checkpoints:              checkpoints,
		DefaultProvider:          cfg.Providers.Default,
		MaxConcurrentDelegations: cfg.Delegation.MaxConcurrentAgents,
		Logger:                   log,
	})

	return kernel, cleanup, nil
}

// buildRouter turns the configured provider entries into live Provider
// instances: deterministic in-process stubs under AUTOMATOSX_MOCK_PROVIDERS,
// opaque CLI subprocesses otherwise. An empty entry list is valid — the
// router simply has nothing to dispatch to until one is configured.
func buildRouter(cfg config.Config) *provider.Router {
	entries := cfg.Providers.Entries
	providers := make([]provider.Provider, 0, len(entries))
	for _, e := range entries {
		descriptor := provider.Descriptor{
			Name:       e.Name,
			Priority:   e.Priority,
			Command:    e.Command,
			CustomPath: e.CustomPath,
			VersionArg: e.VersionArg,
			MinVersion: e.MinVersion,
		}
		if cfg.MockProviders {
			providers = append(providers, provider.NewMockProvider(descriptor))
		} else {
			providers = append(providers, provider.NewCLIProvider(descriptor))
		}
	}
	return provider.NewRouter(providers)
}

func buildCheckpointManager(cfg config.CheckpointConfig, log *slog.Logger) (*checkpoint.Manager, error) {
	ckCfg := &checkpoint.Config{
		Enabled:                cfg.Enabled,
		Directory:              cfg.Directory,
		RecoveryTimeoutSeconds: cfg.RecoveryTimeoutSeconds,
	}
	if err := ckCfg.Validate(); err != nil {
		return nil, err
	}
	var storage *checkpoint.Storage
	if ckCfg.IsEnabled() {
		storage = checkpoint.NewStorage(ckCfg.Directory)
	}
	return checkpoint.NewManager(ckCfg, storage, log), nil
}

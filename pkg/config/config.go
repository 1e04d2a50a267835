// Package config defines the typed configuration shape the core accepts
// from its caller. Parsing a config file format is explicitly out of
// scope here — a deployment's CLI, test harness, or embedding program is
// responsible for producing a Config value however it likes (flags, a
// YAML file, environment variables, hardcoded defaults); this package
// only describes the fields pkg/orchestrator and its collaborators
// actually consume, plus SetDefaults/Validate in the teacher's style.
package config

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the complete set of values cmd/automatosx reads once at
// startup and threads through every constructor. No package under pkg/
// reads an environment variable or a file directly; they all receive
// their slice of Config (or plain fields extracted from it) as
// constructor arguments.
type Config struct {
	Logging    LoggingConfig    `yaml:"logging,omitempty"`
	Providers  ProvidersConfig  `yaml:"providers,omitempty"`
	Session    SessionConfig    `yaml:"session,omitempty"`
	Memory     MemoryConfig     `yaml:"memory,omitempty"`
	Workspace  WorkspaceConfig  `yaml:"workspace,omitempty"`
	Checkpoint CheckpointConfig `yaml:"checkpoint,omitempty"`
	Progress   ProgressConfig   `yaml:"progress,omitempty"`
	Delegation DelegationConfig `yaml:"delegation,omitempty"`

	// ConfigPath is carried from AUTOMATOSX_CONFIG_PATH for the caller's own
	// use (e.g. an external profile loader rooted at this path); the core
	// never opens or parses it itself.
	ConfigPath string `yaml:"configPath,omitempty"`

	// MockProviders mirrors AUTOMATOSX_MOCK_PROVIDERS: when true, the
	// provider set built by the caller should be in-process stubs rather
	// than subprocess CLI backends.
	MockProviders bool `yaml:"mockProviders,omitempty"`
}

// LoggingConfig configures the process-wide logger.
type LoggingConfig struct {
	// Level is one of "debug", "info", "warn", "error". Empty means "info".
	Level string `yaml:"level,omitempty"`
	// Format is "simple" or "verbose". Empty means "simple".
	Format string `yaml:"format,omitempty"`
}

// SetDefaults applies the teacher's zero-value-means-default convention.
func (c *LoggingConfig) SetDefaults() {
	if c.Level == "" {
		c.Level = "info"
	}
	if c.Format == "" {
		c.Format = "simple"
	}
}

// Validate checks LoggingConfig.
func (c *LoggingConfig) Validate() error {
	switch c.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging level %q is not one of debug, info, warn, error", c.Level)
	}
	switch c.Format {
	case "", "simple", "verbose":
	default:
		return fmt.Errorf("logging format %q is not one of simple, verbose", c.Format)
	}
	return nil
}

// ProviderEntry configures one CLI-subprocess provider the router owns.
// Mirrors provider.Descriptor, trimmed to what a caller typically needs to
// set explicitly; the rest of Descriptor's fields take sensible zero-value
// defaults inside pkg/provider itself.
type ProviderEntry struct {
	Name       string   `yaml:"name"`
	Priority   int      `yaml:"priority,omitempty"`
	Command    []string `yaml:"command"`
	CustomPath string   `yaml:"customPath,omitempty"`
	VersionArg string   `yaml:"versionArg,omitempty"`
	MinVersion string   `yaml:"minVersion,omitempty"`
}

// Validate checks a single ProviderEntry.
func (c *ProviderEntry) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("provider name is required")
	}
	if len(c.Command) == 0 {
		return fmt.Errorf("provider %q: command is required", c.Name)
	}
	return nil
}

// ProvidersConfig is the full set of configured providers plus routing
// defaults.
type ProvidersConfig struct {
	Entries []ProviderEntry `yaml:"entries,omitempty"`
	// Default pins which provider name the router prefers absent an
	// explicit per-request ProviderName.
	Default string `yaml:"default,omitempty"`
}

// Validate checks ProvidersConfig, including that Default (if set) names a
// configured provider.
func (c *ProvidersConfig) Validate() error {
	seen := make(map[string]bool, len(c.Entries))
	for i := range c.Entries {
		if err := c.Entries[i].Validate(); err != nil {
			return err
		}
		seen[c.Entries[i].Name] = true
	}
	if c.Default != "" && !seen[c.Default] {
		return fmt.Errorf("default provider %q is not in providers.entries", c.Default)
	}
	return nil
}

// SessionConfig configures the Session Manager's persistence file.
type SessionConfig struct {
	// Path is where sessions are persisted as JSON. Required.
	Path string `yaml:"path"`
}

// Validate checks SessionConfig.
func (c *SessionConfig) Validate() error {
	if c.Path == "" {
		return fmt.Errorf("session path is required")
	}
	return nil
}

// MemoryConfig mirrors memory.Config, kept here so the caller assembles
// one Config value instead of reaching into pkg/memory directly.
type MemoryConfig struct {
	Path                string `yaml:"path"`
	MaxEntries          int    `yaml:"maxEntries,omitempty"`
	CleanupBatchPercent int    `yaml:"cleanupBatchPercent,omitempty"`
	TrackAccess         bool   `yaml:"trackAccess,omitempty"`
}

// Validate checks MemoryConfig.
func (c *MemoryConfig) Validate() error {
	if c.Path == "" {
		return fmt.Errorf("memory path is required")
	}
	if c.MaxEntries < 0 {
		return fmt.Errorf("memory maxEntries must be non-negative")
	}
	if c.CleanupBatchPercent < 0 || c.CleanupBatchPercent > 100 {
		return fmt.Errorf("memory cleanupBatchPercent must be between 0 and 100")
	}
	return nil
}

// WorkspaceConfig configures the scoped filesystem root.
type WorkspaceConfig struct {
	Root string `yaml:"root"`
}

// Validate checks WorkspaceConfig.
func (c *WorkspaceConfig) Validate() error {
	if c.Root == "" {
		return fmt.Errorf("workspace root is required")
	}
	return nil
}

// CheckpointConfig mirrors checkpoint.Config.
type CheckpointConfig struct {
	Enabled                bool   `yaml:"enabled,omitempty"`
	Directory              string `yaml:"directory,omitempty"`
	RecoveryTimeoutSeconds int    `yaml:"recoveryTimeoutSeconds,omitempty"`
}

// SetDefaults applies defaults.
func (c *CheckpointConfig) SetDefaults() {
	if c.RecoveryTimeoutSeconds == 0 {
		c.RecoveryTimeoutSeconds = 3600
	}
}

// Validate checks CheckpointConfig.
func (c *CheckpointConfig) Validate() error {
	if c.Enabled && c.Directory == "" {
		return fmt.Errorf("checkpoint directory is required when checkpointing is enabled")
	}
	if c.RecoveryTimeoutSeconds < 0 {
		return fmt.Errorf("checkpoint recoveryTimeoutSeconds must be non-negative")
	}
	return nil
}

// ProgressConfig configures the progress event bus.
type ProgressConfig struct {
	// ThrottleMs coalesces rapid progress events; zero leaves the bus at
	// progress.DefaultThrottle (100ms).
	ThrottleMs int `yaml:"throttleMs,omitempty"`
}

// Throttle returns ThrottleMs as a time.Duration.
func (c *ProgressConfig) Throttle() time.Duration {
	if c.ThrottleMs <= 0 {
		return 0
	}
	return time.Duration(c.ThrottleMs) * time.Millisecond
}

// Validate checks ProgressConfig.
func (c *ProgressConfig) Validate() error {
	if c.ThrottleMs < 0 {
		return fmt.Errorf("progress throttleMs must be non-negative")
	}
	return nil
}

// DelegationConfig bounds parallel delegation fan-out.
type DelegationConfig struct {
	// MaxConcurrentAgents bounds how many delegated agents may run at once
	// within one session. Zero means delegation.DefaultMaxConcurrentAgents.
	MaxConcurrentAgents int `yaml:"maxConcurrentAgents,omitempty"`
}

// Validate checks DelegationConfig.
func (c *DelegationConfig) Validate() error {
	if c.MaxConcurrentAgents < 0 {
		return fmt.Errorf("delegation maxConcurrentAgents must be non-negative")
	}
	return nil
}

// SetDefaults fills every section's zero-valued fields with their defaults.
// Fields with no sensible process-wide default (paths, provider entries)
// are left for the caller to set explicitly; Validate catches it if they
// don't.
func (c *Config) SetDefaults() {
	c.Logging.SetDefaults()
	c.Checkpoint.SetDefaults()
}

// Validate checks every section of Config, returning the first error found
// wrapped with the section name, matching the teacher's
// validate-and-wrap-per-section convention.
func (c *Config) Validate() error {
	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging: %w", err)
	}
	if err := c.Providers.Validate(); err != nil {
		return fmt.Errorf("providers: %w", err)
	}
	if err := c.Session.Validate(); err != nil {
		return fmt.Errorf("session: %w", err)
	}
	if err := c.Memory.Validate(); err != nil {
		return fmt.Errorf("memory: %w", err)
	}
	if err := c.Workspace.Validate(); err != nil {
		return fmt.Errorf("workspace: %w", err)
	}
	if err := c.Checkpoint.Validate(); err != nil {
		return fmt.Errorf("checkpoint: %w", err)
	}
	if err := c.Progress.Validate(); err != nil {
		return fmt.Errorf("progress: %w", err)
	}
	if err := c.Delegation.Validate(); err != nil {
		return fmt.Errorf("delegation: %w", err)
	}
	return nil
}

// String renders Config as YAML for debug logging. Never used to parse a
// config file back in — this is a one-way dump, not a loader.
func (c *Config) String() string {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Sprintf("<config: marshal error: %v>", err)
	}
	return string(data)
}

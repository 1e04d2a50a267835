package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetDefaultsFillsLoggingAndCheckpoint(t *testing.T) {
	var c Config
	c.SetDefaults()

	assert.Equal(t, "info", c.Logging.Level)
	assert.Equal(t, "simple", c.Logging.Format)
	assert.Equal(t, 3600, c.Checkpoint.RecoveryTimeoutSeconds)
}

func TestSetDefaultsPreservesExplicitValues(t *testing.T) {
	c := Config{Logging: LoggingConfig{Level: "debug", Format: "verbose"}}
	c.SetDefaults()

	assert.Equal(t, "debug", c.Logging.Level)
	assert.Equal(t, "verbose", c.Logging.Format)
}

func validConfig() Config {
	return Config{
		Providers: ProvidersConfig{
			Entries: []ProviderEntry{{Name: "claude", Command: []string{"claude", "-p"}}},
			Default: "claude",
		},
		Session:   SessionConfig{Path: "/tmp/sessions.json"},
		Memory:    MemoryConfig{Path: "/tmp/memory.db"},
		Workspace: WorkspaceConfig{Root: "/tmp/workspace"},
	}
}

func TestValidateAcceptsWellFormedConfig(t *testing.T) {
	c := validConfig()
	c.SetDefaults()
	require.NoError(t, c.Validate())
}

func TestValidateRejectsUnknownLoggingLevel(t *testing.T) {
	c := validConfig()
	c.Logging.Level = "verbose-ish"
	assert.Error(t, c.Validate())
}

func TestValidateRejectsProviderMissingCommand(t *testing.T) {
	c := validConfig()
	c.Providers.Entries = []ProviderEntry{{Name: "claude"}}
	assert.Error(t, c.Validate())
}

func TestValidateRejectsDefaultProviderNotConfigured(t *testing.T) {
	c := validConfig()
	c.Providers.Default = "missing"
	assert.Error(t, c.Validate())
}

func TestValidateRejectsMissingSessionPath(t *testing.T) {
	c := validConfig()
	c.Session.Path = ""
	assert.Error(t, c.Validate())
}

func TestValidateRejectsMissingMemoryPath(t *testing.T) {
	c := validConfig()
	c.Memory.Path = ""
	assert.Error(t, c.Validate())
}

func TestValidateRejectsMissingWorkspaceRoot(t *testing.T) {
	c := validConfig()
	c.Workspace.Root = ""
	assert.Error(t, c.Validate())
}

func TestValidateRejectsCheckpointEnabledWithoutDirectory(t *testing.T) {
	c := validConfig()
	c.Checkpoint.Enabled = true
	assert.Error(t, c.Validate())
}

func TestProgressThrottleConvertsMillisecondsToDuration(t *testing.T) {
	c := ProgressConfig{ThrottleMs: 250}
	assert.Equal(t, 250_000_000, int(c.Throttle()))
}

func TestProgressThrottleZeroReturnsZeroDuration(t *testing.T) {
	c := ProgressConfig{}
	assert.Equal(t, int64(0), c.Throttle().Nanoseconds())
}

func TestStringRendersYAMLWithSessionPath(t *testing.T) {
	c := validConfig()
	c.SetDefaults()
	out := c.String()
	assert.Contains(t, out, "/tmp/sessions.json")
}

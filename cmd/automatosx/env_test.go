package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConfigFromEnvDefaultsToInfoLevel(t *testing.T) {
	t.Setenv("AUTOMATOSX_DEBUG", "")
	t.Setenv("AUTOMATOSX_QUIET", "")

	cfg := configFromEnv()
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.False(t, cfg.MockProviders)
}

func TestConfigFromEnvDebugWinsOverQuiet(t *testing.T) {
	t.Setenv("AUTOMATOSX_DEBUG", "1")
	t.Setenv("AUTOMATOSX_QUIET", "1")

	cfg := configFromEnv()
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestConfigFromEnvQuietLowersLevel(t *testing.T) {
	t.Setenv("AUTOMATOSX_DEBUG", "")
	t.Setenv("AUTOMATOSX_QUIET", "true")

	cfg := configFromEnv()
	assert.Equal(t, "error", cfg.Logging.Level)
}

func TestConfigFromEnvCarriesConfigPathAndMockProviders(t *testing.T) {
	t.Setenv("AUTOMATOSX_CONFIG_PATH", "/etc/automatosx/config.yaml")
	t.Setenv("AUTOMATOSX_MOCK_PROVIDERS", "1")

	cfg := configFromEnv()
	assert.Equal(t, "/etc/automatosx/config.yaml", cfg.ConfigPath)
	assert.True(t, cfg.MockProviders)
}

func TestEnvBoolTreatsZeroAndFalseAsUnset(t *testing.T) {
	t.Setenv("AUTOMATOSX_TEST_FLAG", "0")
	assert.False(t, envBool("AUTOMATOSX_TEST_FLAG"))

	t.Setenv("AUTOMATOSX_TEST_FLAG", "false")
	assert.False(t, envBool("AUTOMATOSX_TEST_FLAG"))

	t.Setenv("AUTOMATOSX_TEST_FLAG", "1")
	assert.True(t, envBool("AUTOMATOSX_TEST_FLAG"))
}

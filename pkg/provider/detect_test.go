package provider

import (
	"testing"

	"github.com/Masterminds/semver/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseVersionExtractsDottedVersionFromFreeformOutput(t *testing.T) {
	v, ok := parseVersion("claude-cli version 1.4.2 (build 91)")
	require.True(t, ok)
	assert.Equal(t, "1.4.2", v.String())
}

func TestParseVersionToleratesMissingPatchSegment(t *testing.T) {
	v, ok := parseVersion("v1.4")
	require.True(t, ok)
	assert.True(t, v.Equal(mustVersion(t, "1.4.0")))
}

func TestParseVersionRejectsOutputWithNoVersion(t *testing.T) {
	_, ok := parseVersion("command not found")
	assert.False(t, ok)
}

func TestParseVersionComparesCorrectly(t *testing.T) {
	newer, ok := parseVersion("2.0.0")
	require.True(t, ok)
	older, ok := parseVersion("1.9.9")
	require.True(t, ok)
	assert.True(t, older.LessThan(newer))
	assert.False(t, newer.LessThan(older))
}

func mustVersion(t *testing.T, s string) *semver.Version {
	t.Helper()
	v, err := semver.NewVersion(s)
	require.NoError(t, err)
	return v
}

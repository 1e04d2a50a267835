package provider

import (
	"context"
	"os/exec"
	"regexp"
	"strings"
	"time"

	"github.com/Masterminds/semver/v3"
)

// versionPattern pulls a bare dotted-number version out of free-form
// "--version" output (e.g. "claude-cli version 1.4.2 (build 91)").
var versionPattern = regexp.MustCompile(`\d+(\.\d+)+`)

// parseVersion extracts the dotted version substring from s and parses it
// with semver, tolerating missing minor/patch segments.
func parseVersion(s string) (*semver.Version, bool) {
	m := versionPattern.FindString(s)
	if m == "" {
		return nil, false
	}
	v, err := semver.NewVersion(m)
	if err != nil {
		return nil, false
	}
	return v, true
}

// DetectionResult reports whether a provider's backend binary was found and
// meets its minimum version, if one was configured.
type DetectionResult struct {
	Found          bool
	Path           string
	Version        string
	MeetsMinimum   bool
	FailureMessage string
}

// Detect resolves a provider's backend binary: CustomPath if set, otherwise
// the first element of Command via PATH lookup, then runs VersionArg (or
// "--version") and compares against MinVersion if configured.
func Detect(ctx context.Context, d Descriptor) DetectionResult {
	path := d.CustomPath
	if path == "" && len(d.Command) > 0 {
		resolved, err := exec.LookPath(d.Command[0])
		if err != nil {
			return DetectionResult{Found: false, FailureMessage: "binary not found on PATH: " + d.Command[0]}
		}
		path = resolved
	}
	if path == "" {
		return DetectionResult{Found: false, FailureMessage: "no command configured"}
	}

	versionArg := d.VersionArg
	if versionArg == "" {
		versionArg = "--version"
	}

	probeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	out, err := exec.CommandContext(probeCtx, path, versionArg).Output()
	if err != nil {
		return DetectionResult{Found: true, Path: path, FailureMessage: "version probe failed: " + err.Error()}
	}

	version := strings.TrimSpace(string(out))
	result := DetectionResult{Found: true, Path: path, Version: version, MeetsMinimum: true}

	if d.MinVersion == "" {
		return result
	}

	got, ok := parseVersion(version)
	if !ok {
		result.MeetsMinimum = false
		result.FailureMessage = "could not parse version output: " + version
		return result
	}
	min, ok := parseVersion(d.MinVersion)
	if !ok {
		return result
	}
	result.MeetsMinimum = !got.LessThan(min)
	if !result.MeetsMinimum {
		result.FailureMessage = "version " + version + " below minimum " + d.MinVersion
	}
	return result
}

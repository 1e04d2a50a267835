package main

import (
	"os"

	"github.com/automatosx/automatosx/pkg/config"
)

// configFromEnv reads every process-wide environment toggle exactly once
// and assembles a config.Config. No other file in this module calls
// os.Getenv; pkg/* receives the resulting typed value instead.
func configFromEnv() config.Config {
	debug := envBool("AUTOMATOSX_DEBUG")
	quiet := envBool("AUTOMATOSX_QUIET")

	level := "info"
	switch {
	case debug:
		level = "debug"
	case quiet:
		level = "error"
	}

	root := workdir()

	return config.Config{
		Logging: config.LoggingConfig{Level: level},
		Session: config.SessionConfig{Path: root + "/automatosx.sessions.json"},
		Memory:  config.MemoryConfig{Path: root + "/automatosx.memory.db"},
		Workspace: config.WorkspaceConfig{
			Root: root,
		},
		ConfigPath:    os.Getenv("AUTOMATOSX_CONFIG_PATH"),
		MockProviders: envBool("AUTOMATOSX_MOCK_PROVIDERS"),
	}
}

func envBool(name string) bool {
	v := os.Getenv(name)
	return v != "" && v != "0" && v != "false"
}

func workdir() string {
	dir, err := os.Getwd()
	if err != nil {
		return "."
	}
	return dir
}

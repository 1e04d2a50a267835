package checkpoint

import (
	"fmt"
	"time"
)

// Config configures checkpoint behavior for the Stage Execution Controller.
type Config struct {
	// Enabled enables checkpointing at all. Default: false.
	Enabled bool

	// Directory is where checkpoint files are written, one per runId.
	Directory string

	// RecoveryTimeoutSeconds bounds how old a checkpoint may be and still be
	// considered recoverable. Zero means the default of 1 hour.
	RecoveryTimeoutSeconds int
}

// SetDefaults applies default values to unset fields.
func (c *Config) SetDefaults() {
	if c.RecoveryTimeoutSeconds == 0 {
		c.RecoveryTimeoutSeconds = 3600
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.Enabled && c.Directory == "" {
		return fmt.Errorf("checkpoint directory is required when checkpointing is enabled")
	}
	if c.RecoveryTimeoutSeconds < 0 {
		return fmt.Errorf("recovery timeout must be non-negative")
	}
	return nil
}

// RecoveryTimeout returns the recovery timeout as a duration.
func (c *Config) RecoveryTimeout() time.Duration {
	if c == nil || c.RecoveryTimeoutSeconds <= 0 {
		return time.Hour
	}
	return time.Duration(c.RecoveryTimeoutSeconds) * time.Second
}

// IsEnabled reports whether checkpointing is enabled.
func (c *Config) IsEnabled() bool {
	return c != nil && c.Enabled
}

// Package stage plans and executes a profile's multi-stage workflow: a
// dependency DAG of named stages with optional parallelism, per-stage
// retries and timeouts, condition-gated skipping, checkpointing, and
// progress streaming.
package stage

import (
	"context"
	"time"
)

// Stage is one node of a profile's stage DAG.
type Stage struct {
	Name         string
	Description  string
	Dependencies []string
	Parallel     bool

	// Condition is a symbolic predicate over the outputs of prior stages,
	// e.g. "impl.success" or "!impl.failed && plan.success". A false
	// condition marks the stage skipped instead of executed.
	Condition string

	Timeout    time.Duration
	MaxRetries int
	RetryDelay time.Duration

	Model    string
	Provider string
}

// Output is what a stage execution produces.
type Output struct {
	Content    string
	TokensUsed int
	Model      string
}

// ChunkFunc receives incremental text as a stage streams its response. It is
// invoked zero or more times before ExecuteFunc returns.
type ChunkFunc func(chunk string)

// ExecuteFunc runs one stage attempt. deps holds the Output of every stage
// of the run that has already completed (not only s.Dependencies), keyed by
// stage name.
type ExecuteFunc func(ctx context.Context, s Stage, task string, deps map[string]Output, onChunk ChunkFunc) (Output, error)

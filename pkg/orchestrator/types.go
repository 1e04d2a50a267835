// Package orchestrator wires the Provider Router, Session Manager,
// Delegation Engine, Stage Execution Controller, Context Assembler, Memory
// Store, Workspace, and Progress Channel into the single request pipeline:
// resolve an agent, assemble its execution context, run it (single-shot or
// staged), persist the exchange to memory, and return.
package orchestrator

import (
	"time"

	"github.com/automatosx/automatosx/pkg/stage"
)

// RunRequest starts one top-level or delegated agent invocation.
type RunRequest struct {
	AgentName string
	Task      string

	Provider   string
	Model      string
	SkipMemory bool

	// SessionID joins an existing session instead of creating one. Empty
	// creates a new session with AgentName as its sole initial member.
	SessionID       string
	DelegationChain []string
	SharedData      map[string]any

	// Staged-run controls, forwarded to stage.Controller when the resolved
	// profile declares stages.
	Interactive       bool
	Streaming         bool
	Resumable         bool
	AutoConfirm       bool
	ContinueOnFailure bool
	Confirm           stage.ConfirmFunc
	PromptTimeout     time.Duration

	// OnChunk, if set, receives best-effort streamed output for a
	// single-shot (non-staged) run.
	OnChunk func(chunk string)
}

// RunResult is what one Run call produces.
type RunResult struct {
	SessionID    string
	Response     string
	Provider     string
	Model        string
	Warnings     []string
	MemoryID     int64
	StageResult  *stage.Result
	CheckpointID string
}

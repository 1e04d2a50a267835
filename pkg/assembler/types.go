// Package assembler builds the ExecutionContext an agent executes with:
// the resolved profile, merged prompt, injected memory, and provider
// choice, all assembled deterministically from a profile loader, an
// ability loader, and an optional memory searcher.
package assembler

import (
	"context"

	"github.com/automatosx/automatosx/pkg/profile"
)

// DefaultMemoryTopK is how many memory entries are injected when a caller
// does not override it.
const DefaultMemoryTopK = 5

// DefaultMemoryCharBudget bounds the total character length of injected
// memory content.
const DefaultMemoryCharBudget = 4000

// MemoryHit is one memory entry surfaced to the assembler, independent of
// pkg/memory's own Entry shape so this package never imports it.
type MemoryHit struct {
	Content string
}

// MemoryFilter narrows a memory search to a type and/or tag set, both
// optional.
type MemoryFilter struct {
	Type string
	Tags []string
}

// MemorySearcher is the narrow slice of MemoryStore the assembler needs.
type MemorySearcher interface {
	Search(ctx context.Context, text string, limit int, filter MemoryFilter) ([]MemoryHit, error)
}

// Options customizes one Assemble call.
type Options struct {
	Provider        string
	Model           string
	SkipMemory      bool
	SessionID       string
	DelegationChain []string
	SharedData      map[string]string

	MemoryTopK       int
	MemoryCharBudget int
	MemoryFilter     MemoryFilter
	StrictAbilities  bool
}

// ExecutionContext is what Assemble produces: everything an executor or
// the delegation engine needs to run one agent invocation.
type ExecutionContext struct {
	Profile profile.Profile

	Provider string
	Model    string

	Prompt string

	SessionID       string
	DelegationChain []string
	SharedData      map[string]string

	// Warnings accumulates non-fatal problems (unknown abilities, missing
	// memory backend) encountered while assembling.
	Warnings []string
}

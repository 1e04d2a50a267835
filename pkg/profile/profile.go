// Package profile defines the data shapes an agent profile carries and the
// narrow loader contracts the core consumes. Parsing an on-disk profile
// format is explicitly out of scope here: Loader and AbilityLoader are
// satisfied by an external implementation, and this package only describes
// what the core needs once a profile has been loaded.
package profile

import "time"

// Stage is one node of a profile's stage DAG, as declared in the profile
// itself (distinct from pkg/stage's runtime Stage, which the orchestrator
// kernel converts this into).
type Stage struct {
	Name         string
	Description  string
	Dependencies []string
	Parallel     bool
	Condition    string
	Timeout      time.Duration
	MaxRetries   int
	RetryDelay   time.Duration
	Model        string
	Provider     string
}

// Orchestration holds delegation-related profile settings.
type Orchestration struct {
	// MaxDelegationDepth bounds how many hops a delegation chain started by
	// this agent may reach. Zero means DefaultMaxDelegationDepth.
	MaxDelegationDepth int
}

// DefaultMaxDelegationDepth mirrors pkg/delegation's default so profile.go
// has no import dependency on it.
const DefaultMaxDelegationDepth = 2

// Profile is the immutable, externally-loaded description of one agent.
type Profile struct {
	Name        string // canonical
	DisplayName string
	Team        string
	Role        string
	Description string

	SystemPrompt string
	Abilities    []string

	Provider    string
	Model       string
	Temperature float64
	MaxTokens   int

	Orchestration Orchestration
	Stages        []Stage
}

// EffectiveMaxDelegationDepth returns the configured depth, or the default
// when unset.
func (p *Profile) EffectiveMaxDelegationDepth() int {
	if p.Orchestration.MaxDelegationDepth <= 0 {
		return DefaultMaxDelegationDepth
	}
	return p.Orchestration.MaxDelegationDepth
}

// Loader resolves a canonical or display name to a Profile. Implementations
// own whatever on-disk or remote format a deployment uses; this core never
// parses profile files itself.
type Loader interface {
	Load(name string) (*Profile, error)
	// Names returns every canonical agent name the loader knows about, used
	// to build nearest-neighbor suggestions on a miss.
	Names() []string
}

// AbilityLoader resolves an ability name to its text content.
type AbilityLoader interface {
	Load(name string) (string, error)
}

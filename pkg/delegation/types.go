// Package delegation implements one agent calling another within a shared
// session: depth and cycle enforcement, session resolution, and the
// execution handoff back into the top-level run pipeline.
package delegation

import "time"

// Context carries the state threaded through a delegation call.
type Context struct {
	SessionID       string
	DelegationChain []string
	SharedData      map[string]any
}

// clone returns a context safe to extend independently of the caller's copy
// (used when fanning out parallel delegations).
func (c Context) clone() Context {
	shared := make(map[string]any, len(c.SharedData))
	for k, v := range c.SharedData {
		shared[k] = v
	}
	return Context{
		SessionID:       c.SessionID,
		DelegationChain: append([]string(nil), c.DelegationChain...),
		SharedData:      shared,
	}
}

// Request asks the engine to run toAgent on behalf of fromAgent.
type Request struct {
	FromAgent string
	ToAgent   string
	Task      string
	Context   Context
}

// Outputs summarizes artifacts produced by a delegated execution.
type Outputs struct {
	Files         []string
	MemoryIDs     []int64
	WorkspacePath string
}

// Result is the outcome of one delegate() call.
type Result struct {
	DelegationID string
	FromAgent    string
	ToAgent      string
	Status       string
	Response     string
	Duration     time.Duration
	Outputs      Outputs
	StartTime    time.Time
	EndTime      time.Time
	Err          error
}

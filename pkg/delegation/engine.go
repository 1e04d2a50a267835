package delegation

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/automatosx/automatosx/pkg/apperrors"
	"github.com/automatosx/automatosx/pkg/session"
)

// DepthResolver answers the maximum delegation depth configured for an
// agent's profile. Implemented by the profile/assembler layer; kept as a
// narrow interface here so this package never imports the profile loader
// directly.
type DepthResolver interface {
	MaxDelegationDepth(agentName string) (int, error)
}

// ExecuteFunc runs the same single-/multi-stage execution pipeline used for
// a top-level request, scoped to one delegated call. The orchestrator
// supplies this callback so Engine never imports the orchestrator package.
type ExecuteFunc func(ctx context.Context, agentName, task string, dctx Context) (response string, outputs Outputs, err error)

// DefaultMaxDelegationDepth is used when a profile omits
// orchestration.maxDelegationDepth.
const DefaultMaxDelegationDepth = 2

// DefaultMaxConcurrentAgents bounds parallel delegation fan-out when the
// caller does not configure one explicitly.
const DefaultMaxConcurrentAgents = 4

// Engine implements agent-to-agent delegation.
type Engine struct {
	Sessions *session.Manager
	Depths   DepthResolver
	Execute  ExecuteFunc

	// MaxConcurrentAgents bounds parallel delegations started via
	// DelegateParallel. Zero uses DefaultMaxConcurrentAgents.
	MaxConcurrentAgents int
}

// configured reports whether the engine has everything required to
// delegate: a session manager, a depth resolver, and an execution callback.
func (e *Engine) configured() bool {
	return e.Sessions != nil && e.Depths != nil && e.Execute != nil
}

// Delegate validates, routes, executes, and returns a Result for one
// agent-to-agent call.
func (e *Engine) Delegate(ctx context.Context, req Request) (*Result, error) {
	if !e.configured() {
		return nil, apperrors.New(apperrors.CodeDelegationNotConfigured, "delegation engine is missing required dependencies")
	}

	maxDepth, err := e.Depths.MaxDelegationDepth(req.FromAgent)
	if err != nil {
		return nil, err
	}
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDelegationDepth
	}

	if len(req.Context.DelegationChain) >= maxDepth {
		return nil, apperrors.New(apperrors.CodeMaxDepthExceeded, "maximum delegation depth exceeded").
			WithContext("maxDepth", maxDepth).
			WithContext("chain", req.Context.DelegationChain)
	}

	for _, caller := range req.Context.DelegationChain {
		if caller == req.ToAgent {
			return nil, apperrors.New(apperrors.CodeCycleDetected, req.ToAgent+" already in delegation chain").
				WithContext("toAgent", req.ToAgent).
				WithContext("chain", req.Context.DelegationChain)
		}
	}

	sess, err := e.resolveSession(req)
	if err != nil {
		return nil, err
	}

	if err := e.Sessions.AddAgent(sess.ID, req.ToAgent); err != nil {
		return nil, err
	}

	childChain := append(append([]string(nil), req.Context.DelegationChain...), req.FromAgent)
	childCtx := Context{
		SessionID:       sess.ID,
		DelegationChain: childChain,
		SharedData:      req.Context.SharedData,
	}

	start := time.Now().UTC()
	response, outputs, execErr := e.Execute(ctx, req.ToAgent, req.Task, childCtx)
	end := time.Now().UTC()

	result := &Result{
		DelegationID: uuid.NewString(),
		FromAgent:    req.FromAgent,
		ToAgent:      req.ToAgent,
		Response:     response,
		Outputs:      outputs,
		StartTime:    start,
		EndTime:      end,
		Duration:     end.Sub(start),
	}

	if execErr != nil {
		if _, ok := apperrors.As(execErr); ok {
			result.Status = "failed"
			result.Err = execErr
			return result, execErr
		}
		wrapped := apperrors.Wrap(apperrors.CodeDelegationExecutionFailed, execErr, "delegated execution failed").
			WithContext("fromAgent", req.FromAgent).
			WithContext("toAgent", req.ToAgent)
		result.Status = "failed"
		result.Err = wrapped
		return result, wrapped
	}

	result.Status = "completed"
	return result, nil
}

// resolveSession fetches the session named by req.Context.SessionID, or
// creates a new one with fromAgent as initiator when none is given.
func (e *Engine) resolveSession(req Request) (*session.Session, error) {
	if req.Context.SessionID == "" {
		return e.Sessions.CreateSession(req.Task, req.FromAgent), nil
	}

	sess, err := e.Sessions.GetSession(req.Context.SessionID)
	if err != nil {
		return nil, err
	}
	if sess.Status != session.StatusActive {
		return nil, apperrors.New(apperrors.CodeSessionNotActive, "session is not active").WithContext("sessionId", sess.ID)
	}
	return sess, nil
}

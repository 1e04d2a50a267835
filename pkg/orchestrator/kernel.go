package orchestrator

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/automatosx/automatosx/pkg/apperrors"
	"github.com/automatosx/automatosx/pkg/assembler"
	"github.com/automatosx/automatosx/pkg/checkpoint"
	"github.com/automatosx/automatosx/pkg/delegation"
	"github.com/automatosx/automatosx/pkg/memory"
	"github.com/automatosx/automatosx/pkg/profile"
	"github.com/automatosx/automatosx/pkg/progress"
	"github.com/automatosx/automatosx/pkg/provider"
	"github.com/automatosx/automatosx/pkg/session"
	"github.com/automatosx/automatosx/pkg/stage"
	"github.com/automatosx/automatosx/pkg/workspace"
)

// Config supplies every dependency the Kernel wires together. Memory,
// Workspace, and Checkpoints are optional: a nil Memory store disables
// recall/persistence (the assembler treats it as "no memory configured"),
// a nil Checkpoints manager disables resumability, and a nil Workspace
// makes Kernel.Workspace return nil.
type Config struct {
	Profiles  profile.Loader
	Abilities profile.AbilityLoader
	Providers *provider.Router
	Sessions  *session.Manager
	Memory    *memory.Store
	Workspace *workspace.Workspace
	Progress  *progress.Bus
	Checkpoints *checkpoint.Manager

	DefaultProvider          string
	MaxConcurrentDelegations int

	Logger *slog.Logger
}

// Kernel is the top-level request pipeline: resolve an agent, assemble its
// context, execute it (single-shot or staged), persist the exchange, and
// return. It also supplies the callbacks the Delegation Engine and Stage
// Execution Controller need without either of those packages importing it.
type Kernel struct {
	profiles  profile.Loader
	abilities profile.AbilityLoader
	providers *provider.Router
	sessions  *session.Manager
	memoryStore *memory.Store
	workspace *workspace.Workspace
	progressBus *progress.Bus
	checkpoints *checkpoint.Manager

	defaultProvider string
	logger          *slog.Logger

	Delegation *delegation.Engine
}

// New builds a Kernel from cfg, wiring the delegation engine's ExecuteFunc
// and DepthResolver back to the kernel itself.
func New(cfg Config) *Kernel {
	k := &Kernel{
		profiles:        cfg.Profiles,
		abilities:       cfg.Abilities,
		providers:       cfg.Providers,
		sessions:        cfg.Sessions,
		memoryStore:     cfg.Memory,
		workspace:       cfg.Workspace,
		progressBus:     cfg.Progress,
		checkpoints:     cfg.Checkpoints,
		defaultProvider: cfg.DefaultProvider,
		logger:          cfg.Logger,
	}
	k.Delegation = &delegation.Engine{
		Sessions:            k.sessions,
		Depths:              depthResolver{profiles: k.profiles},
		Execute:             k.delegateExecute,
		MaxConcurrentAgents: cfg.MaxConcurrentDelegations,
	}
	return k
}

func (k *Kernel) log() *slog.Logger {
	if k.logger != nil {
		return k.logger
	}
	return slog.Default()
}

func (k *Kernel) assembler() *assembler.Assembler {
	a := &assembler.Assembler{
		Profiles:        k.profiles,
		Abilities:       k.abilities,
		DefaultProvider: k.defaultProvider,
		Logger:          k.log(),
	}
	if k.memoryStore != nil {
		a.Memory = memorySearcher{store: k.memoryStore}
	}
	return a
}

// depthResolver adapts profile.Loader into delegation.DepthResolver so the
// delegation engine never imports the profile package directly.
type depthResolver struct {
	profiles profile.Loader
}

func (d depthResolver) MaxDelegationDepth(agentName string) (int, error) {
	p, err := d.profiles.Load(agentName)
	if err != nil {
		return 0, err
	}
	return p.EffectiveMaxDelegationDepth(), nil
}

// memorySearcher adapts *memory.Store into assembler.MemorySearcher. It
// lives here, not in pkg/memory or pkg/assembler, so neither of those
// packages needs to import the other's types.
type memorySearcher struct {
	store *memory.Store
}

func (m memorySearcher) Search(ctx context.Context, text string, limit int, filter assembler.MemoryFilter) ([]assembler.MemoryHit, error) {
	if m.store == nil {
		return nil, nil
	}
	entries, err := m.store.Search(ctx, memory.SearchOptions{
		Text:  text,
		Type:  memory.EntryType(filter.Type),
		Tags:  filter.Tags,
		Limit: limit,
	})
	if err != nil {
		return nil, err
	}
	hits := make([]assembler.MemoryHit, len(entries))
	for i, e := range entries {
		hits[i] = assembler.MemoryHit{Content: e.Content}
	}
	return hits, nil
}

// stringifyShared renders a delegation SharedData map (map[string]any) into
// the map[string]string shape assembler.Options carries, so arbitrary
// values survive a hop through the assembler without it needing to know
// their original types.
func stringifyShared(in map[string]any) map[string]string {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		if s, ok := v.(string); ok {
			out[k] = s
			continue
		}
		out[k] = fmt.Sprint(v)
	}
	return out
}

// Run resolves agentName, assembles its execution context, executes it, and
// persists the exchange to memory. Agents declaring stages run through the
// Stage Execution Controller; agents without stages run as a single
// provider dispatch.
func (k *Kernel) Run(ctx context.Context, req RunRequest) (*RunResult, error) {
	ec, err := k.assembler().Assemble(ctx, req.AgentName, req.Task, assembler.Options{
		Provider:        req.Provider,
		Model:           req.Model,
		SkipMemory:      req.SkipMemory,
		SessionID:       req.SessionID,
		DelegationChain: req.DelegationChain,
		SharedData:      stringifyShared(req.SharedData),
	})
	if err != nil {
		return nil, err
	}

	sessionID := req.SessionID
	if sessionID == "" && k.sessions != nil {
		sessionID = k.sessions.CreateSession(req.Task, req.AgentName).ID
	} else if sessionID != "" && k.sessions != nil {
		_ = k.sessions.AddAgent(sessionID, req.AgentName)
	}

	if len(ec.Profile.Stages) > 0 {
		return k.runStaged(ctx, ec, req, sessionID)
	}
	return k.runSingle(ctx, ec, req, sessionID)
}

func (k *Kernel) runSingle(ctx context.Context, ec *assembler.ExecutionContext, req RunRequest, sessionID string) (*RunResult, error) {
	resp, err := k.providers.Execute(ctx, provider.ExecutionRequest{
		Prompt:          ec.Prompt,
		Model:           ec.Model,
		ProviderName:    ec.Provider,
		FallbackEnabled: true,
		OnToken:         req.OnChunk,
	})
	if err != nil {
		if k.sessions != nil {
			_ = k.sessions.FailSession(sessionID, err)
		}
		return nil, err
	}

	result := &RunResult{
		SessionID: sessionID,
		Response:  resp.Content,
		Provider:  resp.ProviderName,
		Model:     resp.Model,
		Warnings:  ec.Warnings,
	}
	result.MemoryID = k.recordMemory(ctx, req.AgentName, req.Task, resp.Content)
	return result, nil
}

func (k *Kernel) runStaged(ctx context.Context, ec *assembler.ExecutionContext, req RunRequest, sessionID string) (*RunResult, error) {
	stages := make([]stage.Stage, len(ec.Profile.Stages))
	for i, s := range ec.Profile.Stages {
		stages[i] = stage.Stage{
			Name:         s.Name,
			Description:  s.Description,
			Dependencies: s.Dependencies,
			Parallel:     s.Parallel,
			Condition:    s.Condition,
			Timeout:      s.Timeout,
			MaxRetries:   s.MaxRetries,
			RetryDelay:   s.RetryDelay,
			Model:        s.Model,
			Provider:     s.Provider,
		}
	}

	controller := &stage.Controller{
		Execute:     k.executeStage(ec),
		Progress:    k.progressBus,
		Checkpoints: k.checkpoints,
		Logger:      k.log(),
	}

	runID := uuid.NewString()
	opts := stage.RunOptions{
		RunID:             runID,
		AgentName:         req.AgentName,
		Task:              req.Task,
		Chain:             req.DelegationChain,
		Interactive:       req.Interactive,
		Streaming:         req.Streaming,
		Resumable:         req.Resumable,
		AutoConfirm:       req.AutoConfirm,
		ContinueOnFailure: req.ContinueOnFailure,
		PromptTimeout:     req.PromptTimeout,
		Confirm:           req.Confirm,
	}

	res, err := controller.Run(ctx, stages, opts)
	if err != nil {
		if k.sessions != nil {
			_ = k.sessions.FailSession(sessionID, err)
		}
		return nil, err
	}

	result := &RunResult{
		SessionID:    sessionID,
		Response:     res.FinalOutput,
		Provider:     ec.Provider,
		Model:        ec.Model,
		Warnings:     ec.Warnings,
		StageResult:  res,
		CheckpointID: runID,
	}
	result.MemoryID = k.recordMemory(ctx, req.AgentName, req.Task, res.FinalOutput)
	return result, nil
}

// executeStage closes over the assembled context to build the per-stage
// dispatch the Stage Execution Controller calls for each wave member. A
// stage's own Model/Provider override the agent-level choice when set.
func (k *Kernel) executeStage(ec *assembler.ExecutionContext) stage.ExecuteFunc {
	order := make([]string, len(ec.Profile.Stages))
	for i, s := range ec.Profile.Stages {
		order[i] = s.Name
	}
	return func(ctx context.Context, s stage.Stage, task string, deps map[string]stage.Output, onChunk stage.ChunkFunc) (stage.Output, error) {
		providerName := ec.Provider
		if s.Provider != "" {
			providerName = s.Provider
		}
		model := ec.Model
		if s.Model != "" {
			model = s.Model
		}

		prompt := buildStagePrompt(ec.Prompt, s.Name, task, order, deps)
		resp, err := k.providers.Execute(ctx, provider.ExecutionRequest{
			Prompt:          prompt,
			Model:           model,
			ProviderName:    providerName,
			FallbackEnabled: true,
			OnToken:         onChunk,
		})
		if err != nil {
			return stage.Output{}, err
		}
		return stage.Output{Content: resp.Content, TokensUsed: resp.TokensUsed.Total, Model: resp.Model}, nil
	}
}

// buildStagePrompt appends the stage's own task and the outputs of the
// already-completed stages to the agent-level prompt. Outputs follow order
// (the profile's declaration order, in which every dependency precedes its
// dependents) so earlier stages' text always precedes later ones.
func buildStagePrompt(agentPrompt, stageName, task string, order []string, deps map[string]stage.Output) string {
	out := agentPrompt
	if stageName != "" {
		out += "\n\n## Stage: " + stageName
	}
	for _, name := range order {
		dep, ok := deps[name]
		if !ok || dep.Content == "" {
			continue
		}
		out += "\n\n## Output of " + name + "\n" + dep.Content
	}
	if task != "" {
		out += "\n\n## Task\n" + task
	}
	return out
}

// recordMemory stores the exchange as a conversation entry. A nil memory
// store or a write failure is non-fatal: the run already succeeded and
// losing the memory side-effect is logged, not returned as an error.
func (k *Kernel) recordMemory(ctx context.Context, agentName, task, response string) int64 {
	if k.memoryStore == nil || response == "" {
		return 0
	}
	content := fmt.Sprintf("Task: %s\n\nResponse: %s", task, response)
	entry, err := k.memoryStore.Add(ctx, content, nil, memory.Metadata{
		Type:    memory.EntryTypeConversation,
		AgentID: agentName,
	})
	if err != nil {
		k.log().Warn("failed to record memory entry", "agent", agentName, "error", err)
		return 0
	}
	return entry.ID
}

// delegateExecute is the delegation.ExecuteFunc the Delegation Engine calls
// for each delegated hop. It re-enters Run with the delegated context
// threaded through as the new request's session and chain.
func (k *Kernel) delegateExecute(ctx context.Context, agentName, task string, dctx delegation.Context) (string, delegation.Outputs, error) {
	res, err := k.Run(ctx, RunRequest{
		AgentName:       agentName,
		Task:            task,
		SessionID:       dctx.SessionID,
		DelegationChain: dctx.DelegationChain,
		SharedData:      dctx.SharedData,
	})
	if err != nil {
		return "", delegation.Outputs{}, err
	}
	outputs := delegation.Outputs{}
	if res.MemoryID != 0 {
		outputs.MemoryIDs = []int64{res.MemoryID}
	}
	return res.Response, outputs, nil
}

// Status summarizes the kernel's live dependencies for the get_status RPC.
type Status struct {
	KnownAgents    []string
	Providers      []provider.ProviderSnapshot
	ActiveSessions int
	MemoryEntries  int
}

// GetStatus reports a snapshot of known agents, provider health, active
// sessions, and memory occupancy.
func (k *Kernel) GetStatus(ctx context.Context) (Status, error) {
	status := Status{}
	if k.sessions != nil {
		status.ActiveSessions = len(k.sessions.GetActiveSessions())
	}
	if k.memoryStore != nil {
		stats, err := k.memoryStore.GetStats(ctx)
		if err != nil {
			return status, err
		}
		status.MemoryEntries = stats.TotalEntries
	}
	if k.profiles != nil {
		status.KnownAgents = k.profiles.Names()
	}
	if k.providers != nil {
		status.Providers = k.providers.Metrics().Providers
	}
	return status, nil
}

// ListAgents returns every agent name the profile loader knows about.
func (k *Kernel) ListAgents() []string {
	if k.profiles == nil {
		return nil
	}
	return k.profiles.Names()
}

// SearchMemory exposes the memory store's FTS search to RPC callers.
func (k *Kernel) SearchMemory(ctx context.Context, query string, limit int) ([]memory.Entry, error) {
	if k.memoryStore == nil {
		return nil, apperrors.New(apperrors.CodeMemoryNotInitialized, "memory store is not configured")
	}
	return k.memoryStore.Search(ctx, memory.SearchOptions{Text: query, Limit: limit})
}

// Sessions exposes the session manager for RPC session_* methods.
func (k *Kernel) Sessions() *session.Manager { return k.sessions }

// MemoryStore exposes the memory store for RPC memory_* methods.
func (k *Kernel) MemoryStore() *memory.Store { return k.memoryStore }

// Workspace exposes the workspace for any future filesystem-facing RPC
// methods.
func (k *Kernel) Workspace() *workspace.Workspace { return k.workspace }

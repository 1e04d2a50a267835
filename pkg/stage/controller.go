package stage

import (
	"context"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/automatosx/automatosx/pkg/apperrors"
	"github.com/automatosx/automatosx/pkg/checkpoint"
	"github.com/automatosx/automatosx/pkg/progress"
)

// DefaultProgressUpdateInterval is how often a synthetic stage-progress
// event is emitted for stages whose backend does not stream chunks.
const DefaultProgressUpdateInterval = 500 * time.Millisecond

// DefaultPromptTimeout bounds how long an interactive checkpoint waits for
// a Confirm decision before proceeding as if declined.
const DefaultPromptTimeout = 5 * time.Minute

// ConfirmFunc is consulted before each wave when RunOptions.Interactive is
// set. Returning false aborts the run (remaining stages are left pending).
type ConfirmFunc func(ctx context.Context, waveIndex int, stageNames []string) (bool, error)

// RunOptions configures one run of the controller.
type RunOptions struct {
	RunID     string
	AgentName string
	Task      string
	Chain     []string

	Interactive       bool
	Streaming         bool
	Resumable         bool
	AutoConfirm       bool
	ContinueOnFailure bool

	PromptTimeout          time.Duration
	ProgressUpdateInterval time.Duration
	Confirm                ConfirmFunc
}

func (o RunOptions) mode() checkpoint.Mode {
	switch {
	case o.Interactive:
		return checkpoint.ModeInteractive
	case o.Streaming:
		return checkpoint.ModeStreaming
	case o.AutoConfirm:
		return checkpoint.ModeAutoConfirm
	default:
		return checkpoint.ModeDefault
	}
}

// Result is the outcome of a completed or aborted run.
type Result struct {
	RunID       string
	Success     bool
	FinalOutput string
	Stages      []checkpoint.StageRecord
}

// Controller plans and executes a stage DAG, persisting checkpoints and
// streaming progress as it goes.
type Controller struct {
	Execute     ExecuteFunc
	Progress    *progress.Bus
	Checkpoints *checkpoint.Manager
	Logger      *slog.Logger
}

func (c *Controller) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.Default()
}

// Run plans stages and executes the resulting DAG from scratch.
func (c *Controller) Run(ctx context.Context, stages []Stage, opts RunOptions) (*Result, error) {
	waves, err := Plan(stages)
	if err != nil {
		return nil, err
	}

	cp := checkpoint.New(opts.RunID, opts.AgentName, opts.Task, opts.mode(), opts.Chain, TopologicalNames(waves))
	return c.executeWaves(ctx, cp, stages, waves, opts)
}

// Resume continues a previously checkpointed run: completed stages are
// fast-forwarded without re-execution, failed/pending/running stages are
// re-run, and skipped stages have their conditions re-evaluated against the
// current outputs.
func (c *Controller) Resume(ctx context.Context, cp *checkpoint.Checkpoint, stages []Stage, opts RunOptions) (*Result, error) {
	waves, err := Plan(stages)
	if err != nil {
		return nil, err
	}
	opts.RunID = cp.RunID
	opts.AgentName = cp.AgentName
	opts.Task = cp.Task
	opts.Chain = cp.Chain

	return c.executeWaves(ctx, cp, stages, waves, opts)
}

// run carries the mutable state of one executeWaves call. cp and deps are
// shared by every stage goroutine in a parallel wave, so every access goes
// through mu: stages within a wave never read each other's output (the DAG
// forbids same-wave dependencies), but Checkpoint.UpdatedAt and the deps map
// header are still shared memory.
type run struct {
	mu     sync.Mutex
	cp     *checkpoint.Checkpoint
	deps   map[string]Output
	byName map[string]Stage
	opts   RunOptions
}

func (c *Controller) executeWaves(ctx context.Context, cp *checkpoint.Checkpoint, stages []Stage, waves []Wave, opts RunOptions) (*Result, error) {
	byName := make(map[string]Stage, len(stages))
	for _, s := range stages {
		byName[s.Name] = s
	}

	deps := make(map[string]Output, len(stages))
	for _, rec := range cp.Stages {
		if rec.Status == checkpoint.StageStatusCompleted {
			deps[rec.Name] = Output{Content: rec.Output, TokensUsed: rec.TokensUsed}
		}
	}

	r := &run{cp: cp, deps: deps, byName: byName, opts: opts}
	aborted := false

waveLoop:
	for waveIdx, wave := range waves {
		if aborted {
			break
		}

		if opts.Interactive {
			proceed, err := c.confirmWave(ctx, waveIdx, wave, opts)
			if err != nil {
				return nil, err
			}
			if !proceed {
				break waveLoop
			}
		}

		if len(wave.Parallel) > 0 {
			// Stages within a wave never depend on one another, so one
			// failing must not cancel its siblings: every parallel stage
			// in the wave runs to completion regardless of the others.
			var wg sync.WaitGroup
			var failMu sync.Mutex
			var failed bool
			for _, name := range wave.Parallel {
				name := name
				wg.Add(1)
				go func() {
					defer wg.Done()
					if err := c.runOne(ctx, r, name); err != nil {
						failMu.Lock()
						failed = true
						failMu.Unlock()
					}
				}()
			}
			wg.Wait()
			if failed && !opts.ContinueOnFailure {
				c.abortRemaining(r, stages)
				aborted = true
				continue waveLoop
			}
		}

		for _, name := range wave.Serial {
			if err := c.runOne(ctx, r, name); err != nil && !opts.ContinueOnFailure {
				c.abortRemaining(r, stages)
				aborted = true
				break
			}
		}
	}

	c.persist(cp, opts.Resumable)

	return &Result{
		RunID:       cp.RunID,
		Success:     cp.Success(),
		FinalOutput: cp.FinalOutput(),
		Stages:      cp.Stages,
	}, nil
}

// runOne executes a single stage, honoring its condition and dependency
// outcomes before attempting it, and the per-attempt retry/timeout policy
// while running it.
func (c *Controller) runOne(ctx context.Context, r *run, name string) error {
	r.mu.Lock()
	s := r.byName[name]
	rec := r.cp.Stage(name)
	if rec == nil {
		r.mu.Unlock()
		return nil
	}
	if rec.Status == checkpoint.StageStatusCompleted {
		r.mu.Unlock()
		return nil // fast-forwarded on resume
	}

	if blocked, reason := blockedByDependency(s, r.cp); blocked {
		r.cp.MarkSkipped(s.Name)
		c.persist(r.cp, r.opts.Resumable)
		r.mu.Unlock()
		c.logger().Debug("stage skipped: dependency not satisfied", "stage", s.Name, "reason", reason)
		return nil
	}

	if !evaluateCondition(s.Condition, outcomeOf(r.cp)) {
		r.cp.MarkSkipped(s.Name)
		c.persist(r.cp, r.opts.Resumable)
		r.mu.Unlock()
		return nil
	}
	idx := stageIndex(r.cp, s.Name)
	r.mu.Unlock()

	return c.attempt(ctx, r, s, idx)
}

// blockedByDependency reports whether s must be skipped because a
// dependency failed or was itself skipped; this cascades regardless of
// ContinueOnFailure, since a dependency's output is simply unavailable.
// Callers must hold r.mu.
func blockedByDependency(s Stage, cp *checkpoint.Checkpoint) (bool, string) {
	for _, dep := range s.Dependencies {
		rec := cp.Stage(dep)
		if rec == nil {
			continue
		}
		if rec.Status == checkpoint.StageStatusFailed || rec.Status == checkpoint.StageStatusSkipped {
			return true, dep
		}
	}
	return false, ""
}

// outcomeOf must be called, and its returned function invoked, only while
// r.mu is held.
func outcomeOf(cp *checkpoint.Checkpoint) func(string) (bool, bool) {
	return func(name string) (bool, bool) {
		rec := cp.Stage(name)
		if rec == nil {
			return false, false
		}
		return rec.Status == checkpoint.StageStatusCompleted, rec.Status == checkpoint.StageStatusFailed
	}
}

func (c *Controller) attempt(ctx context.Context, r *run, s Stage, idx int) error {
	r.mu.Lock()
	r.cp.MarkRunning(s.Name)
	c.persist(r.cp, r.opts.Resumable)
	r.mu.Unlock()
	c.publish(progress.Event{Kind: progress.KindStageStart, StageIndex: idx, StageName: s.Name})

	maxAttempts := s.MaxRetries + 1
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var lastErr error
	for i := 0; i < maxAttempts; i++ {
		if i > 0 {
			if err := c.waitRetryDelay(ctx, s.RetryDelay); err != nil {
				lastErr = err
				break
			}
			r.mu.Lock()
			r.cp.MarkRunning(s.Name)
			c.persist(r.cp, r.opts.Resumable)
			r.mu.Unlock()
		}

		out, err := c.executeAttempt(ctx, r, s, idx)
		if err == nil {
			r.mu.Lock()
			r.cp.MarkCompleted(s.Name, out.Content, out.TokensUsed)
			r.deps[s.Name] = out
			c.persist(r.cp, r.opts.Resumable)
			r.mu.Unlock()
			c.publish(progress.Event{Kind: progress.KindStageComplete, StageIndex: idx, StageName: s.Name})
			return nil
		}
		lastErr = err
	}

	r.mu.Lock()
	r.cp.MarkFailed(s.Name, lastErr)
	c.persist(r.cp, r.opts.Resumable)
	r.mu.Unlock()
	c.publish(progress.Event{Kind: progress.KindStageError, StageIndex: idx, StageName: s.Name, Err: lastErr})
	return lastErr
}

func (c *Controller) waitRetryDelay(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(delay):
		return nil
	}
}

func (c *Controller) executeAttempt(ctx context.Context, r *run, s Stage, idx int) (Output, error) {
	attemptCtx := ctx
	if s.Timeout > 0 {
		var cancel context.CancelFunc
		attemptCtx, cancel = context.WithTimeout(ctx, s.Timeout)
		defer cancel()
	}

	stopEstimator := c.startSyntheticProgress(ctx, idx, s.Name, r.opts)

	r.mu.Lock()
	depsSnapshot := make(map[string]Output, len(r.deps))
	for k, v := range r.deps {
		depsSnapshot[k] = v
	}
	r.mu.Unlock()

	out, err := c.Execute(attemptCtx, s, r.opts.Task, depsSnapshot, func(chunk string) {
		stopEstimator()
		c.publish(progress.Event{Kind: progress.KindTokenStream, StageIndex: idx, StageName: s.Name, Chunk: chunk})
	})
	stopEstimator()
	return out, err
}

// startSyntheticProgress emits stage-progress events on an interval for
// backends that never call onChunk, using an asymptotic estimator that
// approaches but never reaches 100% before the stage actually finishes. It
// returns a function that stops the ticker; it is safe to call more than
// once.
func (c *Controller) startSyntheticProgress(ctx context.Context, idx int, name string, opts RunOptions) func() {
	interval := opts.ProgressUpdateInterval
	if interval <= 0 {
		interval = DefaultProgressUpdateInterval
	}

	done := make(chan struct{})
	var once sync.Once
	stop := func() {
		once.Do(func() { close(done) })
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		start := time.Now()
		tau := interval * 10

		for {
			select {
			case <-ctx.Done():
				return
			case <-done:
				return
			case <-ticker.C:
				elapsed := time.Since(start)
				percent := 100 * (1 - math.Exp(-float64(elapsed)/float64(tau)))
				c.publish(progress.Event{Kind: progress.KindStageProgress, StageIndex: idx, StageName: name, Percent: percent})
			}
		}
	}()

	return stop
}

func (c *Controller) confirmWave(ctx context.Context, waveIdx int, wave Wave, opts RunOptions) (bool, error) {
	c.publish(progress.Event{Kind: progress.KindCheckpoint, Payload: wave.Names()})

	if opts.AutoConfirm || opts.Confirm == nil {
		return true, nil
	}

	timeout := opts.PromptTimeout
	if timeout <= 0 {
		timeout = DefaultPromptTimeout
	}
	promptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ok, err := opts.Confirm(promptCtx, waveIdx, wave.Names())
	if err != nil {
		if promptCtx.Err() != nil {
			return false, nil
		}
		return false, apperrors.Wrap(apperrors.CodeInvalidInput, err, "interactive checkpoint confirmation failed")
	}
	return ok, nil
}

// abortRemaining marks every stage not already completed or failed as
// skipped, implementing the continueOnFailure=false halt behavior.
func (c *Controller) abortRemaining(r *run, stages []Stage) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range stages {
		rec := r.cp.Stage(s.Name)
		if rec == nil {
			continue
		}
		if rec.Status == checkpoint.StageStatusPending || rec.Status == checkpoint.StageStatusRunning {
			r.cp.MarkSkipped(s.Name)
		}
	}
}

func (c *Controller) publish(e progress.Event) {
	if c.Progress == nil {
		return
	}
	c.Progress.Publish(e)
}

func (c *Controller) persist(cp *checkpoint.Checkpoint, resumable bool) {
	if c.Checkpoints == nil {
		return
	}
	_ = c.Checkpoints.Persist(cp, resumable)
}

func stageIndex(cp *checkpoint.Checkpoint, name string) int {
	for i, s := range cp.Stages {
		if s.Name == name {
			return i
		}
	}
	return -1
}

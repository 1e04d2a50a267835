// Package checkpoint captures and restores the per-stage status of a multi-
// stage run, so that a run interrupted partway through (process crash, user
// cancellation, transient failure) can resume without re-executing stages
// that already completed.
//
// A checkpoint is scoped to a single run, not a whole session: it records
// runId, the agent whose stages are being executed, the task, the
// delegation chain active at the top of the run, and one StageRecord per
// declared stage. Resuming replays completed stages and re-runs anything
// pending, failed, or still running when the checkpoint was written.
package checkpoint

import (
	"encoding/json"
	"fmt"
	"time"
)

// StageStatus is the lifecycle state of one stage within a checkpoint.
type StageStatus string

const (
	StageStatusPending   StageStatus = "pending"
	StageStatusRunning   StageStatus = "running"
	StageStatusCompleted StageStatus = "completed"
	StageStatusFailed    StageStatus = "failed"
	StageStatusSkipped   StageStatus = "skipped"
)

// Mode is the execution mode a run was started with, recorded so resume can
// restore the same behavior (e.g. whether to re-prompt interactively).
type Mode string

const (
	ModeDefault     Mode = "default"
	ModeInteractive Mode = "interactive"
	ModeStreaming   Mode = "streaming"
	ModeAutoConfirm Mode = "auto_confirm"
)

// StageRecord is the persisted status of one stage.
type StageRecord struct {
	Name       string      `json:"name"`
	Status     StageStatus `json:"status"`
	Output     string      `json:"output,omitempty"`
	DurationMs int64       `json:"durationMs,omitempty"`
	TokensUsed int         `json:"tokensUsed,omitempty"`
	StartedAt  *time.Time  `json:"startedAt,omitempty"`
	EndedAt    *time.Time  `json:"endedAt,omitempty"`
	Attempts   int         `json:"attempts"`
	Error      string      `json:"error,omitempty"`
}

// Checkpoint is the full persisted record of a run.
type Checkpoint struct {
	RunID     string        `json:"runId"`
	AgentName string        `json:"agentName"`
	Task      string        `json:"task"`
	Mode      Mode          `json:"mode"`
	Stages    []StageRecord `json:"stages"`
	Chain     []string      `json:"chain"`
	CreatedAt time.Time     `json:"createdAt"`
	UpdatedAt time.Time     `json:"updatedAt"`
}

// New creates a Checkpoint with one pending StageRecord per stage name, in
// declaration order.
func New(runID, agentName, task string, mode Mode, chain []string, stageNames []string) *Checkpoint {
	now := time.Now().UTC()
	stages := make([]StageRecord, len(stageNames))
	for i, name := range stageNames {
		stages[i] = StageRecord{Name: name, Status: StageStatusPending}
	}
	return &Checkpoint{
		RunID:     runID,
		AgentName: agentName,
		Task:      task,
		Mode:      mode,
		Stages:    stages,
		Chain:     append([]string(nil), chain...),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Stage returns a pointer to the named stage's record, or nil if unknown.
func (c *Checkpoint) Stage(name string) *StageRecord {
	for i := range c.Stages {
		if c.Stages[i].Name == name {
			return &c.Stages[i]
		}
	}
	return nil
}

// MarkRunning transitions a stage to running and records the start time and
// attempt count.
func (c *Checkpoint) MarkRunning(name string) {
	s := c.Stage(name)
	if s == nil {
		return
	}
	now := time.Now().UTC()
	s.Status = StageStatusRunning
	s.StartedAt = &now
	s.Attempts++
	c.UpdatedAt = now
}

// MarkCompleted transitions a stage to completed and records its output.
func (c *Checkpoint) MarkCompleted(name, output string, tokensUsed int) {
	s := c.Stage(name)
	if s == nil {
		return
	}
	now := time.Now().UTC()
	s.Status = StageStatusCompleted
	s.Output = output
	s.TokensUsed = tokensUsed
	s.EndedAt = &now
	if s.StartedAt != nil {
		s.DurationMs = now.Sub(*s.StartedAt).Milliseconds()
	}
	s.Error = ""
	c.UpdatedAt = now
}

// MarkFailed transitions a stage to failed and records the terminal error.
func (c *Checkpoint) MarkFailed(name string, cause error) {
	s := c.Stage(name)
	if s == nil {
		return
	}
	now := time.Now().UTC()
	s.Status = StageStatusFailed
	s.EndedAt = &now
	if s.StartedAt != nil {
		s.DurationMs = now.Sub(*s.StartedAt).Milliseconds()
	}
	if cause != nil {
		s.Error = cause.Error()
	}
	c.UpdatedAt = now
}

// MarkSkipped transitions a stage to skipped, e.g. because its condition
// evaluated false or an upstream dependency failed with continueOnFailure
// disabled.
func (c *Checkpoint) MarkSkipped(name string) {
	s := c.Stage(name)
	if s == nil {
		return
	}
	s.Status = StageStatusSkipped
	c.UpdatedAt = time.Now().UTC()
}

// Success reports whether every non-skipped stage completed.
func (c *Checkpoint) Success() bool {
	for _, s := range c.Stages {
		if s.Status == StageStatusSkipped {
			continue
		}
		if s.Status != StageStatusCompleted {
			return false
		}
	}
	return true
}

// FinalOutput returns the output of the last completed, non-skipped stage in
// declared order, matching the DAG's topological order produced by the stage
// planner.
func (c *Checkpoint) FinalOutput() string {
	var out string
	for _, s := range c.Stages {
		if s.Status == StageStatusCompleted {
			out = s.Output
		}
	}
	return out
}

// IsExpired reports whether the checkpoint is older than timeout, measured
// from UpdatedAt. A non-positive timeout means no expiry.
func (c *Checkpoint) IsExpired(timeout time.Duration) bool {
	if timeout <= 0 || c.UpdatedAt.IsZero() {
		return false
	}
	return time.Since(c.UpdatedAt) > timeout
}

// Serialize converts the Checkpoint to JSON bytes.
func (c *Checkpoint) Serialize() ([]byte, error) {
	if c == nil {
		return nil, fmt.Errorf("cannot serialize nil checkpoint")
	}
	return json.MarshalIndent(c, "", "  ")
}

// Deserialize reconstructs a Checkpoint from JSON bytes.
func Deserialize(data []byte) (*Checkpoint, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("cannot deserialize empty data")
	}
	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, fmt.Errorf("unmarshal checkpoint: %w", err)
	}
	return &cp, nil
}

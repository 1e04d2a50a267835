package checkpoint

import (
	"log/slog"

	"github.com/automatosx/automatosx/pkg/apperrors"
)

// Manager is the integration point between the Stage Execution Controller
// and checkpoint persistence. It owns no in-memory state itself beyond its
// Storage/Config; callers pass the live *Checkpoint for each run and Manager
// decides whether (per Config and the run's resumable flag) to write it.
type Manager struct {
	config  *Config
	storage *Storage
	logger  *slog.Logger
}

// NewManager creates a Manager. storage may be nil only if config is
// disabled; callers that enable checkpointing must supply a Storage rooted
// at Config.Directory.
func NewManager(config *Config, storage *Storage, logger *slog.Logger) *Manager {
	if config == nil {
		config = &Config{}
	}
	config.SetDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{config: config, storage: storage, logger: logger}
}

// IsEnabled reports whether checkpointing is configured on.
func (m *Manager) IsEnabled() bool {
	return m.config.IsEnabled()
}

// Config returns the manager's configuration.
func (m *Manager) Config() *Config {
	return m.config
}

// shouldPersist reports whether cp should be written to disk for the given
// run's resumable flag; checkpointing must be both globally enabled and
// requested for this run.
func (m *Manager) shouldPersist(resumable bool) bool {
	return m.IsEnabled() && resumable && m.storage != nil
}

// Persist writes cp if checkpointing applies to this run; a silent no-op
// otherwise. Stage Execution Controller calls this after every
// stage state change when resumable is true.
func (m *Manager) Persist(cp *Checkpoint, resumable bool) error {
	if !m.shouldPersist(resumable) {
		return nil
	}
	if err := m.storage.Save(cp); err != nil {
		m.logger.Warn("failed to persist checkpoint", "runId", cp.RunID, "error", err)
		return err
	}
	m.logger.Debug("persisted checkpoint", "runId", cp.RunID)
	return nil
}

// Load retrieves a checkpoint for resume. Fails if checkpointing is
// disabled, the run is missing, or the checkpoint has expired.
func (m *Manager) Load(runID string) (*Checkpoint, error) {
	if !m.IsEnabled() || m.storage == nil {
		return nil, apperrors.New(apperrors.CodeCheckpointNotFound, "checkpointing is disabled").WithContext("runId", runID)
	}
	cp, err := m.storage.Load(runID)
	if err != nil {
		return nil, err
	}
	if cp.IsExpired(m.config.RecoveryTimeout()) {
		m.logger.Warn("checkpoint expired", "runId", runID)
		return nil, apperrors.New(apperrors.CodeCheckpointNotFound, "checkpoint has expired").WithContext("runId", runID)
	}
	return cp, nil
}

// Clear removes a run's checkpoint, e.g. after a successful, non-resumable
// completion.
func (m *Manager) Clear(runID string) error {
	if m.storage == nil {
		return nil
	}
	return m.storage.Clear(runID)
}

// ListPending returns every checkpoint currently on disk whose overall
// success has not yet been reached.
func (m *Manager) ListPending() ([]*Checkpoint, error) {
	if m.storage == nil {
		return nil, nil
	}
	all, err := m.storage.ListAll()
	if err != nil {
		return nil, err
	}
	var pending []*Checkpoint
	for _, cp := range all {
		if !cp.Success() {
			pending = append(pending, cp)
		}
	}
	return pending, nil
}

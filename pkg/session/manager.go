package session

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/automatosx/automatosx/pkg/apperrors"
)

// MaxSessions bounds the in-memory session table; cleanup evicts the oldest
// sessions by UpdatedAt once the count exceeds it.
const MaxSessions = 100

// debounceInterval is how long the manager waits after a mutation before
// flushing to disk, coalescing bursts of rapid changes into one write.
const debounceInterval = 100 * time.Millisecond

// Manager owns the live session table and its persistence file. All mutating
// operations run under a single write lock; readers see consistent
// snapshots.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	store    *store

	debounceMu    sync.Mutex
	debounceTimer *time.Timer
	dirty         bool

	logger *slog.Logger
}

// NewManager creates a Manager persisting to path. It attempts to load any
// existing persistence file; load failures (missing file, malformed JSON)
// yield an empty in-memory state with a warning, never a fatal error.
func NewManager(path string, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	m := &Manager{
		sessions: make(map[string]*Session),
		store:    newStore(path),
		logger:   logger,
	}

	loaded, err := m.store.load()
	if err != nil {
		logger.Warn("failed to load sessions persistence file; starting empty", "path", path, "error", err)
		return m
	}
	for _, s := range loaded {
		if s.ID == "" || s.Initiator == "" {
			logger.Warn("dropping malformed session record", "session", s)
			continue
		}
		m.sessions[s.ID] = s
	}
	return m
}

// CreateSession starts a new active session with initiator as the sole
// member, insertion-ordered first.
func (m *Manager) CreateSession(task, initiator string) *Session {
	now := time.Now().UTC()
	s := &Session{
		ID:        uuid.NewString(),
		Initiator: initiator,
		Task:      task,
		Agents:    []string{initiator},
		Status:    StatusActive,
		CreatedAt: now,
		UpdatedAt: now,
		Metadata:  map[string]any{},
	}

	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()

	m.scheduleFlush()
	m.cleanupLocked()
	return s.clone()
}

// GetSession returns a copy of the session with the given id.
func (m *Manager) GetSession(id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.sessions[id]
	if !ok {
		return nil, apperrors.New(apperrors.CodeSessionNotFound, "session not found").WithContext("sessionId", id)
	}
	return s.clone(), nil
}

// AddAgent appends name to the session's agent list; a no-op if already
// present. Fails if the session does not exist.
func (m *Manager) AddAgent(id, name string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	if !ok {
		m.mu.Unlock()
		return apperrors.New(apperrors.CodeSessionNotFound, "session not found").WithContext("sessionId", id)
	}
	if !s.hasAgent(name) {
		s.Agents = append(s.Agents, name)
		s.UpdatedAt = time.Now().UTC()
	}
	m.mu.Unlock()

	m.scheduleFlush()
	return nil
}

// GetActiveSessions returns copies of every session currently active.
func (m *Manager) GetActiveSessions() []*Session {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*Session
	for _, s := range m.sessions {
		if s.Status == StatusActive {
			out = append(out, s.clone())
		}
	}
	sortByUpdatedAtDesc(out)
	return out
}

// GetActiveSessionsForAgent returns active sessions containing name, most
// recently updated first.
func (m *Manager) GetActiveSessionsForAgent(name string) []*Session {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*Session
	for _, s := range m.sessions {
		if s.Status == StatusActive && s.hasAgent(name) {
			out = append(out, s.clone())
		}
	}
	sortByUpdatedAtDesc(out)
	return out
}

// CompleteSession transitions a session to completed. Calling it on an
// already-terminal session is an idempotent no-op that logs a warning.
func (m *Manager) CompleteSession(id string) error {
	return m.terminate(id, StatusCompleted, nil)
}

// FailSession transitions a session to failed, recording cause's message
// into metadata under "error". No stack trace is recorded.
func (m *Manager) FailSession(id string, cause error) error {
	return m.terminate(id, StatusFailed, cause)
}

func (m *Manager) terminate(id string, status Status, cause error) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	if !ok {
		m.mu.Unlock()
		m.logger.Warn("failSession/completeSession on missing session", "sessionId", id)
		return apperrors.New(apperrors.CodeSessionNotFound, "session not found").WithContext("sessionId", id)
	}
	if s.Status != StatusActive {
		m.mu.Unlock()
		m.logger.Warn("terminal transition on already-terminated session is a no-op", "sessionId", id, "status", s.Status)
		return nil
	}
	s.Status = status
	s.UpdatedAt = time.Now().UTC()
	if cause != nil {
		s.Metadata["error"] = map[string]any{"message": cause.Error()}
	}
	m.mu.Unlock()

	m.scheduleFlush()
	return nil
}

// UpdateMetadata shallow-merges patch into the session's metadata.
func (m *Manager) UpdateMetadata(id string, patch map[string]any) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	if !ok {
		m.mu.Unlock()
		return apperrors.New(apperrors.CodeSessionNotFound, "session not found").WithContext("sessionId", id)
	}
	for k, v := range patch {
		s.Metadata[k] = v
	}
	s.UpdatedAt = time.Now().UTC()
	m.mu.Unlock()

	m.scheduleFlush()
	return nil
}

// cleanupLocked evicts the oldest sessions by UpdatedAt once the table
// exceeds MaxSessions. Must be called without m.mu held.
func (m *Manager) cleanupLocked() {
	m.mu.Lock()
	if len(m.sessions) <= MaxSessions {
		m.mu.Unlock()
		return
	}

	all := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		all = append(all, s)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].UpdatedAt.Before(all[j].UpdatedAt) })

	excess := len(all) - MaxSessions
	for i := 0; i < excess; i++ {
		delete(m.sessions, all[i].ID)
	}
	m.mu.Unlock()

	m.scheduleFlush()
}

// CleanupOldSessions removes completed/failed sessions whose UpdatedAt is
// older than olderThanDays. Active sessions are never evicted by time.
func (m *Manager) CleanupOldSessions(olderThanDays int) int {
	cutoff := time.Now().UTC().AddDate(0, 0, -olderThanDays)

	m.mu.Lock()
	removed := 0
	for id, s := range m.sessions {
		if s.Status == StatusActive {
			continue
		}
		if s.UpdatedAt.Before(cutoff) {
			delete(m.sessions, id)
			removed++
		}
	}
	m.mu.Unlock()

	if removed > 0 {
		m.scheduleFlush()
	}
	return removed
}

// Flush forces an immediate, synchronous persistence write, bypassing the
// debounce window. Callers should invoke this on clean shutdown.
func (m *Manager) Flush() error {
	m.debounceMu.Lock()
	if m.debounceTimer != nil {
		m.debounceTimer.Stop()
		m.debounceTimer = nil
	}
	m.debounceMu.Unlock()
	return m.flushNow()
}

func (m *Manager) flushNow() error {
	m.mu.RLock()
	all := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		all = append(all, s.clone())
	}
	m.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.Before(all[j].CreatedAt) })

	if err := m.store.save(all); err != nil {
		m.logger.Warn("failed to persist sessions", "error", err)
		m.debounceMu.Lock()
		m.dirty = true
		m.debounceMu.Unlock()
		return err
	}
	return nil
}

// scheduleFlush arms (or re-uses) the debounce timer. If a prior flush
// failed, the next mutation's flush retries it.
func (m *Manager) scheduleFlush() {
	m.debounceMu.Lock()
	defer m.debounceMu.Unlock()

	if m.debounceTimer != nil {
		return
	}
	m.debounceTimer = time.AfterFunc(debounceInterval, func() {
		m.debounceMu.Lock()
		m.debounceTimer = nil
		m.debounceMu.Unlock()
		_ = m.flushNow()
	})
}

func sortByUpdatedAtDesc(sessions []*Session) {
	sort.Slice(sessions, func(i, j int) bool { return sessions[i].UpdatedAt.After(sessions[j].UpdatedAt) })
}

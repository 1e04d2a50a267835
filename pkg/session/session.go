// Package session owns the lifecycle of multi-agent sessions: creation,
// agent membership, status transitions, and debounced JSON persistence.
//
// A session binds multiple agents cooperating on one overall task. It is
// created on demand by a top-level run or explicitly via the RPC surface,
// grows its agent list as delegations fan out, and terminates exactly once
// into completed or failed.
package session

import (
	"errors"
	"time"
)

// Status is the session lifecycle state. The only legal transitions are
// active -> completed and active -> failed; both are terminal.
type Status string

const (
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// ErrSessionNotFound is a sentinel for an unknown session id. Manager
// methods do not return it: they report an unknown id as an
// *apperrors.Error with CodeSessionNotFound.
var ErrSessionNotFound = errors.New("session not found")

// ErrSessionNotActive is a sentinel for a mutation on a terminated session.
// Manager methods do not return it: a terminal transition on an already
// terminated session is a no-op that returns nil.
var ErrSessionNotActive = errors.New("session is not active")

// Session is the persisted, serializable record of a multi-agent run.
type Session struct {
	ID        string         `json:"id"`
	Initiator string         `json:"initiator"`
	Task      string         `json:"task"`
	Agents    []string       `json:"agents"`
	Status    Status         `json:"status"`
	CreatedAt time.Time      `json:"createdAt"`
	UpdatedAt time.Time      `json:"updatedAt"`
	Metadata  map[string]any `json:"metadata"`
}

// clone returns a deep-enough copy safe to hand to callers without exposing
// the manager's internal slice/map backing arrays.
func (s *Session) clone() *Session {
	out := *s
	out.Agents = append([]string(nil), s.Agents...)
	out.Metadata = make(map[string]any, len(s.Metadata))
	for k, v := range s.Metadata {
		out.Metadata[k] = v
	}
	return &out
}

// hasAgent reports whether name is already present in the session's agent list.
func (s *Session) hasAgent(name string) bool {
	for _, a := range s.Agents {
		if a == name {
			return true
		}
	}
	return false
}

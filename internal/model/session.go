package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// SearchStatus represents the lifecycle state of a search session.
type SearchStatus string

const (
	StatusPending   SearchStatus = "pending"
	StatusRunning   SearchStatus = "running"
	StatusCompleted SearchStatus = "completed"
	StatusCancelled SearchStatus = "cancelled"
	StatusError     SearchStatus = "error"
)

func (s SearchStatus) String() string { return string(s) }

// Terminal reports whether the status is absorbing.
func (s SearchStatus) Terminal() bool {
	switch s {
	case StatusCompleted, StatusCancelled, StatusError:
		return true
	default:
		return false
	}
}

// ValidateTransition returns an error if the session may not move from s to target.
func (s SearchStatus) ValidateTransition(target SearchStatus) error {
	if !s.canTransition(target) {
		return fmt.Errorf("invalid search status transition from %s to %s", s, target)
	}
	return nil
}

func (s SearchStatus) canTransition(target SearchStatus) bool {
	switch s {
	case StatusPending:
		// completed is reachable only through running
		return target == StatusRunning || target == StatusCancelled || target == StatusError
	case StatusRunning:
		return target == StatusCompleted || target == StatusCancelled || target == StatusError
	default:
		return false
	}
}

// ResultItem is a single company found by a search. The payload is kept
// verbatim, only the identifier is interpreted.
type ResultItem struct {
	ID      string          `json:"id"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Summary holds the statistics reported by the upstream on completion.
type Summary struct {
	Total      uint  `json:"total"`
	Found      uint  `json:"found"`
	DurationMs int64 `json:"durationMs,omitempty"`
}

// Snapshot is an immutable view of a search session handed out to
// subscribers and callers.
type Snapshot struct {
	ID          string         `json:"id"`
	Kind        SearchKind     `json:"kind"`
	Filters     SearchFilters  `json:"filters"`
	Status      SearchStatus   `json:"status"`
	Phase       SearchPhase    `json:"phase,omitempty"`
	StartedAt   time.Time      `json:"startedAt"`
	CompletedAt *time.Time     `json:"completedAt,omitempty"`
	Results     []ResultItem   `json:"results"`
	Progress    SearchProgress `json:"progress"`
	Summary     *Summary       `json:"summary,omitempty"`
	Error       string         `json:"error,omitempty"`
}

// Elapsed returns the run time of the session, up to now for active sessions.
func (s Snapshot) Elapsed() time.Duration {
	if s.StartedAt.IsZero() {
		return 0
	}
	if s.CompletedAt != nil {
		return s.CompletedAt.Sub(s.StartedAt)
	}
	return time.Since(s.StartedAt)
}

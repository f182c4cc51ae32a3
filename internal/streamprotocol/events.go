// Package streamprotocol defines the inbound event wire format for the
// monitoring stream. Events arrive as single JSON objects discriminated
// by a "type" field and are dispatched to concrete structs.
package streamprotocol

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/hochfrequenz/claude-session-monitor/internal/domain"
)

// Event type constants
const (
	TypeRepoState      = "repo_state"
	TypeTaskOutput     = "task_output"
	TypeTaskUpdate     = "task_update"
	TypeStuckDetected  = "stuck_detected"
	TypeStuckResolved  = "stuck_resolved"
	TypeStuckEscalated = "stuck_escalated"
)

// Event is the common surface of all inbound stream events.
type Event interface {
	EventType() string
	Repository() string
	EventTime() time.Time
}

// Header carries the fields shared by every event.
type Header struct {
	Type         string    `json:"type"`
	RepositoryID string    `json:"repositoryId"`
	Timestamp    time.Time `json:"timestamp"`
}

func (h Header) EventType() string    { return h.Type }
func (h Header) Repository() string   { return h.RepositoryID }
func (h Header) EventTime() time.Time { return h.Timestamp }

// TaskPayload describes the agent's current task on the wire.
type TaskPayload struct {
	ID       string            `json:"id"`
	Prompt   string            `json:"prompt,omitempty"`
	Status   domain.TaskStatus `json:"status"`
	Progress *int              `json:"progress,omitempty"`
}

// RepoStateEvent is a full authoritative snapshot of one repository's
// session state.
type RepoStateEvent struct {
	Header
	RepositoryName string               `json:"repositoryName,omitempty"`
	ClaudeStatus   domain.ClaudeStatus  `json:"claudeStatus"`
	SessionID      string               `json:"sessionId,omitempty"`
	SessionStatus  domain.SessionStatus `json:"sessionStatus,omitempty"`
	CurrentTask    *TaskPayload         `json:"currentTask,omitempty"`
	TimeElapsedMs  int64                `json:"timeElapsedMs"`
	NeedsAttention bool                 `json:"needsAttention,omitempty"`
}

// TaskOutputEvent signals that the current task produced output.
type TaskOutputEvent struct {
	Header
	TaskID string `json:"taskId"`
	Output string `json:"output,omitempty"`
}

// TaskUpdateEvent updates the current task without a full snapshot.
type TaskUpdateEvent struct {
	Header
	Task TaskPayload `json:"task"`
}

// StuckDetectedEvent is a server-side hint that a repository is stuck.
type StuckDetectedEvent struct {
	Header
	Reason   domain.StuckReason `json:"reason"`
	Severity domain.Severity    `json:"severity,omitempty"`
}

// StuckResolvedEvent signals that a server-reported stuck condition cleared.
type StuckResolvedEvent struct {
	Header
	Reason domain.StuckReason `json:"reason,omitempty"`
}

// StuckEscalatedEvent signals a server-side severity increase.
type StuckEscalatedEvent struct {
	Header
	Reason   domain.StuckReason `json:"reason"`
	Severity domain.Severity    `json:"severity"`
}

// Parse decodes a raw stream frame into its concrete event type.
func Parse(data []byte) (Event, error) {
	var h Header
	if err := json.Unmarshal(data, &h); err != nil {
		return nil, fmt.Errorf("decoding event header: %w", err)
	}
	if h.RepositoryID == "" {
		return nil, fmt.Errorf("event %q missing repositoryId", h.Type)
	}

	switch h.Type {
	case TypeRepoState:
		var ev RepoStateEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			return nil, fmt.Errorf("decoding repo_state event: %w", err)
		}
		return &ev, nil

	case TypeTaskOutput:
		var ev TaskOutputEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			return nil, fmt.Errorf("decoding task_output event: %w", err)
		}
		return &ev, nil

	case TypeTaskUpdate:
		var ev TaskUpdateEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			return nil, fmt.Errorf("decoding task_update event: %w", err)
		}
		return &ev, nil

	case TypeStuckDetected:
		var ev StuckDetectedEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			return nil, fmt.Errorf("decoding stuck_detected event: %w", err)
		}
		return &ev, nil

	case TypeStuckResolved:
		var ev StuckResolvedEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			return nil, fmt.Errorf("decoding stuck_resolved event: %w", err)
		}
		return &ev, nil

	case TypeStuckEscalated:
		var ev StuckEscalatedEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			return nil, fmt.Errorf("decoding stuck_escalated event: %w", err)
		}
		return &ev, nil
	}

	return nil, fmt.Errorf("unknown event type %q", h.Type)
}

package domain

// ClaudeStatus represents what a repository's agent is doing right now
type ClaudeStatus string

const (
	ClaudeIdle         ClaudeStatus = "idle"
	ClaudeThinking     ClaudeStatus = "thinking"
	ClaudeWriting      ClaudeStatus = "writing"
	ClaudeWaitingInput ClaudeStatus = "waiting_input"
	ClaudeStuck        ClaudeStatus = "stuck"
	ClaudePaused       ClaudeStatus = "paused"
)

// SessionStatus represents the lifecycle state of an agent session
type SessionStatus string

const (
	SessionActive    SessionStatus = "active"
	SessionPaused    SessionStatus = "paused"
	SessionIdle      SessionStatus = "idle"
	SessionCompleted SessionStatus = "completed"
)

// TaskStatus represents the execution state of the agent's current task
type TaskStatus string

const (
	TaskPending   TaskStatus = "pending"
	TaskRunning   TaskStatus = "running"
	TaskQABlocked TaskStatus = "qa_blocked"
	TaskFailed    TaskStatus = "failed"
	TaskCompleted TaskStatus = "completed"
)

// StuckReason identifies why a repository was flagged as stuck
type StuckReason string

const (
	ReasonNoOutput         StuckReason = "no_output"
	ReasonWaitingInput     StuckReason = "waiting_input"
	ReasonRepeatedFailures StuckReason = "repeated_failures"
	ReasonQAGateBlocked    StuckReason = "qa_gate_blocked"
	ReasonTimeout          StuckReason = "timeout"
)

// Severity represents how urgent a stuck alert is
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Rank returns an ordering value for severity comparisons.
// Higher means more urgent.
func (s Severity) Rank() int {
	switch s {
	case SeverityLow:
		return 1
	case SeverityMedium:
		return 2
	case SeverityHigh:
		return 3
	case SeverityCritical:
		return 4
	}
	return 0
}

// Sensitivity scales all stuck-detection thresholds
type Sensitivity string

const (
	SensitivityLow    Sensitivity = "low"
	SensitivityMedium Sensitivity = "medium"
	SensitivityHigh   Sensitivity = "high"
)

// Multiplier returns the threshold scale factor for a sensitivity level.
// Lower sensitivity means longer thresholds before flagging.
func (s Sensitivity) Multiplier() float64 {
	switch s {
	case SensitivityLow:
		return 1.5
	case SensitivityHigh:
		return 0.6
	}
	return 1.0
}

// EntityType identifies what kind of entity an optimistic mutation targets
type EntityType string

const (
	EntityTask     EntityType = "task"
	EntityPlan     EntityType = "plan"
	EntitySession  EntityType = "session"
	EntityPlanTask EntityType = "planTask"
)

package domain

import "time"

// TaskInfo describes the task an agent is currently working on
type TaskInfo struct {
	ID       string
	Prompt   string
	Status   TaskStatus
	Progress *int // percent complete, nil when unreported
}

// RepoSessionState is the live state of one monitored repository.
// It is owned by the repostate store and mutated only by applying
// stream events; everything else sees copies.
type RepoSessionState struct {
	RepositoryID   string
	RepositoryName string

	ClaudeStatus  ClaudeStatus
	SessionID     string        // empty when no active session
	SessionStatus SessionStatus // empty when no active session
	CurrentTask   *TaskInfo

	TimeElapsed    time.Duration // since session start, server-authoritative
	LastActivity   time.Time     // timestamp of the most recent event for this repo
	NeedsAttention bool

	// Detector bookkeeping. These fields are the only place where
	// prior events influence evaluation: counters and since-marks
	// survive across status transitions until explicitly reset.
	ConsecutiveFailures int
	LastFailureAt       time.Time // when the failure count crossed into stuck territory
	WaitingInputSince   time.Time // zero unless claude is waiting for input
	QABlockedSince      time.Time // zero unless the current task is QA-blocked
}

// Clone returns a deep copy safe to hand outside the owning store.
func (s *RepoSessionState) Clone() *RepoSessionState {
	cp := *s
	if s.CurrentTask != nil {
		task := *s.CurrentTask
		if s.CurrentTask.Progress != nil {
			p := *s.CurrentTask.Progress
			task.Progress = &p
		}
		cp.CurrentTask = &task
	}
	return &cp
}

// StuckCondition is the detector's verdict for a single repository:
// the reason it is stuck, how long it has been, and how urgent that is.
// A nil condition means the repository is healthy.
type StuckCondition struct {
	Reason         StuckReason
	Severity       Severity
	Since          time.Time
	ElapsedSeconds int
}

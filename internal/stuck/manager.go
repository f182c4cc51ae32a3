package stuck

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hochfrequenz/claude-session-monitor/internal/domain"
)

// Manager owns the authoritative alert set: at most one active alert
// per repository, keyed by repository id. It turns detector verdicts
// into create / escalate / resolve transitions.
type Manager struct {
	mu     sync.Mutex
	alerts map[string]*domain.StuckAlert
}

// ReconcileResult reports what changed during one reconcile call.
// Resolved and Created may both be set when the stuck reason changed
// mid-episode.
type ReconcileResult struct {
	Created   *domain.StuckAlert
	Escalated *domain.StuckAlert
	Resolved  *domain.StuckAlert
}

// NewManager creates an empty alert manager.
func NewManager() *Manager {
	return &Manager{alerts: make(map[string]*domain.StuckAlert)}
}

// Reconcile applies the detector's verdict for one repository. Call it
// once per state change, after evaluation. A nil condition resolves any
// active alert; acknowledgment state is discarded on resolution.
func (m *Manager) Reconcile(state *domain.RepoSessionState, cond *domain.StuckCondition, now time.Time) ReconcileResult {
	m.mu.Lock()
	defer m.mu.Unlock()

	var res ReconcileResult
	active := m.alerts[state.RepositoryID]

	if cond == nil {
		if active != nil {
			delete(m.alerts, state.RepositoryID)
			res.Resolved = active.Clone()
		}
		return res
	}

	if active != nil && active.Reason != cond.Reason {
		// The failure mode changed: this is a new episode, not an
		// escalation of the old one.
		delete(m.alerts, state.RepositoryID)
		res.Resolved = active.Clone()
		active = nil
	}

	if active == nil {
		alert := &domain.StuckAlert{
			ID:                   uuid.NewString(),
			RepositoryID:         state.RepositoryID,
			RepositoryName:       state.RepositoryName,
			SessionID:            state.SessionID,
			Reason:               cond.Reason,
			Severity:             cond.Severity,
			StuckDurationSeconds: cond.ElapsedSeconds,
			Description:          domain.DescribeReason(cond.Reason, state.RepositoryName, durationOf(cond)),
			SuggestedAction:      domain.SuggestedAction(cond.Reason),
			CreatedAt:            now,
			LastUpdatedAt:        now,
		}
		m.alerts[state.RepositoryID] = alert
		res.Created = alert.Clone()
		return res
	}

	// Same episode: refresh duration, escalate if severity increased.
	// Severity never decreases within an episode.
	active.StuckDurationSeconds = cond.ElapsedSeconds
	active.Description = domain.DescribeReason(cond.Reason, state.RepositoryName, durationOf(cond))
	active.LastUpdatedAt = now
	if cond.Severity.Rank() > active.Severity.Rank() {
		active.Severity = cond.Severity
		active.LastEscalatedAt = now
		res.Escalated = active.Clone()
	}
	return res
}

// Acknowledge marks the active alert for a repository as seen.
// Idempotent; it has no effect on severity or resolution. Returns false
// when the repository has no active alert.
func (m *Manager) Acknowledge(repoID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	alert, ok := m.alerts[repoID]
	if !ok {
		return false
	}
	alert.Acknowledged = true
	return true
}

// Get returns a copy of the active alert for a repository.
func (m *Manager) Get(repoID string) (*domain.StuckAlert, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	alert, ok := m.alerts[repoID]
	if !ok {
		return nil, false
	}
	return alert.Clone(), true
}

// Remove drops the active alert for a repository without treating it as
// resolved, used when the repository is unsubscribed.
func (m *Manager) Remove(repoID string) (*domain.StuckAlert, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	alert, ok := m.alerts[repoID]
	if !ok {
		return nil, false
	}
	delete(m.alerts, repoID)
	return alert, true
}

// Status builds the derived global view. Stuck count and highest
// severity consider unacknowledged alerts only; the per-reason counts
// and the alert list cover everything active. Alerts are returned in
// presentation order.
func (m *Manager) Status() domain.StuckStatus {
	m.mu.Lock()
	defer m.mu.Unlock()

	var status domain.StuckStatus
	for _, alert := range m.alerts {
		status.Alerts = append(status.Alerts, alert.Clone())

		switch alert.Reason {
		case domain.ReasonWaitingInput:
			status.WaitingInputCount++
		case domain.ReasonRepeatedFailures:
			status.FailedCount++
		case domain.ReasonQAGateBlocked:
			status.QABlockedCount++
		}

		if alert.Acknowledged {
			continue
		}
		status.TotalStuckCount++
		if alert.Severity.Rank() > status.HighestSeverity.Rank() {
			status.HighestSeverity = alert.Severity
		}
	}

	domain.SortAlerts(status.Alerts)
	return status
}

func durationOf(cond *domain.StuckCondition) time.Duration {
	return time.Duration(cond.ElapsedSeconds) * time.Second
}

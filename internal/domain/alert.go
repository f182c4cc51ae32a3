package domain

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

// StuckAlert is one stuck episode for a repository. The ID is stable
// for the lifetime of the episode; escalation changes severity but
// never the identity.
type StuckAlert struct {
	ID             string
	RepositoryID   string
	RepositoryName string
	SessionID      string

	Reason   StuckReason
	Severity Severity

	// StuckDurationSeconds is measured from episode start using
	// server-authoritative timestamps, not from alert creation.
	StuckDurationSeconds int

	Description     string
	SuggestedAction string

	Acknowledged    bool
	CreatedAt       time.Time
	LastEscalatedAt time.Time
	LastUpdatedAt   time.Time
}

// Clone returns a copy safe to hand outside the alert manager.
func (a *StuckAlert) Clone() *StuckAlert {
	cp := *a
	return &cp
}

// StuckStatus is the derived global view over all active alerts.
// Counts only consider unacknowledged alerts; the alert list itself
// includes acknowledged ones.
type StuckStatus struct {
	TotalStuckCount   int
	HighestSeverity   Severity // empty when no unacknowledged alerts
	WaitingInputCount int
	FailedCount       int
	QABlockedCount    int
	Alerts            []*StuckAlert
}

// SortAlerts orders alerts for presentation: unacknowledged before
// acknowledged, then descending severity, then descending duration.
// Consumers rely on this ordering; the manager itself stores alerts
// keyed by repository.
func SortAlerts(alerts []*StuckAlert) {
	sort.SliceStable(alerts, func(i, j int) bool {
		a, b := alerts[i], alerts[j]
		if a.Acknowledged != b.Acknowledged {
			return !a.Acknowledged
		}
		if a.Severity.Rank() != b.Severity.Rank() {
			return a.Severity.Rank() > b.Severity.Rank()
		}
		return a.StuckDurationSeconds > b.StuckDurationSeconds
	})
}

// DescribeReason returns a human-readable description for an alert.
func DescribeReason(reason StuckReason, repoName string, elapsed time.Duration) string {
	dur := humanizeDuration(elapsed)
	switch reason {
	case ReasonNoOutput:
		return fmt.Sprintf("%s has produced no output for %s", repoName, dur)
	case ReasonWaitingInput:
		return fmt.Sprintf("%s has been waiting for user input for %s", repoName, dur)
	case ReasonRepeatedFailures:
		return fmt.Sprintf("%s keeps failing the same task (stuck for %s)", repoName, dur)
	case ReasonQAGateBlocked:
		return fmt.Sprintf("%s has been blocked at a QA gate for %s", repoName, dur)
	case ReasonTimeout:
		return fmt.Sprintf("%s exceeded its session time budget (%s without progress)", repoName, dur)
	}
	return fmt.Sprintf("%s appears stuck (%s)", repoName, dur)
}

// SuggestedAction returns the recommended operator response for a reason.
func SuggestedAction(reason StuckReason) string {
	switch reason {
	case ReasonNoOutput:
		return "Check the session log; consider pausing and resuming the session"
	case ReasonWaitingInput:
		return "Open the session and answer the pending question"
	case ReasonRepeatedFailures:
		return "Inspect the failing task and adjust its prompt or dependencies"
	case ReasonQAGateBlocked:
		return "Review the QA gate output and approve or reject the change"
	case ReasonTimeout:
		return "Pause the session and split the task into smaller pieces"
	}
	return "Inspect the session"
}

// humanizeDuration renders a duration the way we show it to operators
// ("5 minutes", "about an hour").
func humanizeDuration(d time.Duration) string {
	now := time.Now()
	return strings.TrimSpace(humanize.RelTime(now.Add(-d), now, "", ""))
}

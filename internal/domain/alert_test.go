package domain

import (
	"strings"
	"testing"
	"time"
)

func TestSeverity_Rank(t *testing.T) {
	order := []Severity{SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical}
	for i := 1; i < len(order); i++ {
		if order[i].Rank() <= order[i-1].Rank() {
			t.Errorf("Rank(%s) = %d, should exceed Rank(%s) = %d",
				order[i], order[i].Rank(), order[i-1], order[i-1].Rank())
		}
	}
	if Severity("bogus").Rank() != 0 {
		t.Errorf("unknown severity should rank 0")
	}
}

func TestSensitivity_Multiplier(t *testing.T) {
	tests := []struct {
		level Sensitivity
		want  float64
	}{
		{SensitivityLow, 1.5},
		{SensitivityMedium, 1.0},
		{SensitivityHigh, 0.6},
		{Sensitivity("unknown"), 1.0},
	}
	for _, tt := range tests {
		if got := tt.level.Multiplier(); got != tt.want {
			t.Errorf("Multiplier(%s) = %v, want %v", tt.level, got, tt.want)
		}
	}
}

func TestSortAlerts(t *testing.T) {
	alerts := []*StuckAlert{
		{ID: "acked-high", Acknowledged: true, Severity: SeverityHigh, StuckDurationSeconds: 500},
		{ID: "low-short", Severity: SeverityLow, StuckDurationSeconds: 30},
		{ID: "high-long", Severity: SeverityHigh, StuckDurationSeconds: 400},
		{ID: "high-short", Severity: SeverityHigh, StuckDurationSeconds: 100},
	}

	SortAlerts(alerts)

	want := []string{"high-long", "high-short", "low-short", "acked-high"}
	for i, id := range want {
		if alerts[i].ID != id {
			t.Errorf("alerts[%d].ID = %s, want %s", i, alerts[i].ID, id)
		}
	}
}

func TestClone_Independent(t *testing.T) {
	progress := 40
	state := &RepoSessionState{
		RepositoryID: "repo-1",
		ClaudeStatus: ClaudeThinking,
		CurrentTask:  &TaskInfo{ID: "t1", Status: TaskRunning, Progress: &progress},
	}

	cp := state.Clone()
	*cp.CurrentTask.Progress = 90
	cp.CurrentTask.Status = TaskFailed

	if *state.CurrentTask.Progress != 40 {
		t.Errorf("mutating clone changed original progress: %d", *state.CurrentTask.Progress)
	}
	if state.CurrentTask.Status != TaskRunning {
		t.Errorf("mutating clone changed original task status: %s", state.CurrentTask.Status)
	}
}

func TestDescribeReason_CoversAllReasons(t *testing.T) {
	reasons := []StuckReason{
		ReasonNoOutput, ReasonWaitingInput, ReasonRepeatedFailures,
		ReasonQAGateBlocked, ReasonTimeout,
	}
	for _, r := range reasons {
		desc := DescribeReason(r, "backend-api", 5*time.Minute)
		if !strings.Contains(desc, "backend-api") {
			t.Errorf("DescribeReason(%s) = %q, missing repository name", r, desc)
		}
		if SuggestedAction(r) == "" {
			t.Errorf("SuggestedAction(%s) is empty", r)
		}
	}
}

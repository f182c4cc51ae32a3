package alerthistory

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/hochfrequenz/claude-session-monitor/internal/domain"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func testAlert(id, repoID string, sev domain.Severity) *domain.StuckAlert {
	return &domain.StuckAlert{
		ID:                   id,
		RepositoryID:         repoID,
		RepositoryName:       "backend-api",
		SessionID:            "sess-1",
		Reason:               domain.ReasonNoOutput,
		Severity:             sev,
		StuckDurationSeconds: 61,
	}
}

func TestRecordAndList(t *testing.T) {
	s := testStore(t)

	alert := testAlert("alert-1", "repo-1", domain.SeverityLow)
	if err := s.Record(TransitionCreated, alert); err != nil {
		t.Fatal(err)
	}
	alert.Severity = domain.SeverityHigh
	alert.StuckDurationSeconds = 240
	if err := s.Record(TransitionEscalated, alert); err != nil {
		t.Fatal(err)
	}
	if err := s.Record(TransitionResolved, alert); err != nil {
		t.Fatal(err)
	}
	if err := s.Record(TransitionCreated, testAlert("alert-2", "repo-2", domain.SeverityLow)); err != nil {
		t.Fatal(err)
	}

	entries, err := s.ListByRepository("repo-1", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 3 {
		t.Fatalf("ListByRepository len = %d, want 3", len(entries))
	}

	trail, err := s.ListByAlert("alert-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(trail) != 3 {
		t.Fatalf("ListByAlert len = %d, want 3", len(trail))
	}
	if trail[0].Transition != TransitionCreated || trail[2].Transition != TransitionResolved {
		t.Errorf("trail order = %s..%s, want created..resolved", trail[0].Transition, trail[2].Transition)
	}
	if trail[1].Severity != domain.SeverityHigh {
		t.Errorf("escalation severity = %q, want high", trail[1].Severity)
	}
}

func TestPrune(t *testing.T) {
	s := testStore(t)

	if err := s.Record(TransitionCreated, testAlert("alert-1", "repo-1", domain.SeverityLow)); err != nil {
		t.Fatal(err)
	}

	// Nothing is old enough yet.
	n, err := s.Prune(time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Errorf("pruned %d, want 0", n)
	}

	// A future cutoff removes everything.
	n, err = s.Prune(time.Now().Add(time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("pruned %d, want 1", n)
	}

	entries, err := s.ListByRepository("repo-1", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("entries after prune = %d, want 0", len(entries))
	}
}

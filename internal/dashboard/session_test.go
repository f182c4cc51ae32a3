package dashboard

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/hochfrequenz/claude-session-monitor/internal/config"
	"github.com/hochfrequenz/claude-session-monitor/internal/domain"
	"github.com/hochfrequenz/claude-session-monitor/internal/intents"
	"github.com/hochfrequenz/claude-session-monitor/internal/streamprotocol"
	"github.com/hochfrequenz/claude-session-monitor/internal/stuck"
)

var epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func snapshot(repoID string, at time.Time, mut ...func(*streamprotocol.RepoStateEvent)) *streamprotocol.RepoStateEvent {
	ev := &streamprotocol.RepoStateEvent{
		Header: streamprotocol.Header{
			Type:         streamprotocol.TypeRepoState,
			RepositoryID: repoID,
			Timestamp:    at,
		},
		RepositoryName: "repo " + repoID,
		ClaudeStatus:   domain.ClaudeThinking,
		SessionID:      "sess-" + repoID,
		SessionStatus:  domain.SessionActive,
	}
	for _, m := range mut {
		m(ev)
	}
	return ev
}

func newTestSession(t *testing.T, mutationURL string, opts Options) *Session {
	t.Helper()
	cfg := config.Default()
	cfg.Monitor.MutationAPIURL = mutationURL
	cfg.Detection.EnableToastNotifications = false
	return New(cfg, opts)
}

// alertRecorder collects alert transitions for assertions.
type alertRecorder struct {
	mu          sync.Mutex
	transitions []string
	last        *domain.StuckAlert
}

func (r *alertRecorder) listen(transition string, alert *domain.StuckAlert) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transitions = append(r.transitions, transition)
	r.last = alert
}

func (r *alertRecorder) seen() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.transitions...)
}

func TestHandleEvent_UpdatesStateAndListeners(t *testing.T) {
	var got *domain.RepoSessionState
	s := newTestSession(t, "http://127.0.0.1:0", Options{
		OnState: func(state *domain.RepoSessionState) { got = state },
	})

	s.HandleEvent(snapshot("repo-1", epoch))

	if got == nil || got.RepositoryID != "repo-1" {
		t.Fatalf("state listener got %+v, want repo-1", got)
	}
	if len(s.Repos()) != 1 {
		t.Fatalf("Repos() = %d entries, want 1", len(s.Repos()))
	}
	state, ok := s.Repo("repo-1")
	if !ok || state.SessionID != "sess-repo-1" {
		t.Fatalf("Repo(repo-1) = %+v, %v", state, ok)
	}
}

func TestSweep_CreatesEscalatesAndResolves(t *testing.T) {
	rec := &alertRecorder{}
	s := newTestSession(t, "http://127.0.0.1:0", Options{OnAlert: rec.listen})

	s.HandleEvent(snapshot("repo-1", epoch))

	// Under threshold: nothing yet.
	s.Sweep(epoch.Add(100 * time.Second))
	if n := s.Status().TotalStuckCount; n != 0 {
		t.Fatalf("before threshold: TotalStuckCount = %d, want 0", n)
	}

	// Past the 120s no-output threshold: low severity alert.
	s.Sweep(epoch.Add(130 * time.Second))
	alert, ok := s.manager.Get("repo-1")
	if !ok {
		t.Fatal("no alert after sweep past threshold")
	}
	if alert.Reason != domain.ReasonNoOutput || alert.Severity != domain.SeverityLow {
		t.Fatalf("alert = %s/%s, want no_output/low", alert.Reason, alert.Severity)
	}
	firstID := alert.ID

	// Silence continues: same episode escalates to high at 4x.
	s.Sweep(epoch.Add(500 * time.Second))
	alert, _ = s.manager.Get("repo-1")
	if alert.Severity != domain.SeverityHigh {
		t.Fatalf("severity after 500s = %s, want high", alert.Severity)
	}
	if alert.ID != firstID {
		t.Fatalf("escalation changed alert id %s -> %s", firstID, alert.ID)
	}

	// Fresh output resolves on the event path, no sweep needed.
	s.HandleEvent(&streamprotocol.TaskOutputEvent{
		Header: streamprotocol.Header{
			Type:         streamprotocol.TypeTaskOutput,
			RepositoryID: "repo-1",
			Timestamp:    epoch.Add(510 * time.Second),
		},
		TaskID: "task-1",
	})
	if _, ok := s.manager.Get("repo-1"); ok {
		t.Fatal("alert survived fresh activity")
	}

	want := []string{"created", "escalated", "resolved"}
	got := rec.seen()
	if len(got) != len(want) {
		t.Fatalf("transitions = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("transitions = %v, want %v", got, want)
		}
	}
}

func TestRepeatedFailures_AlertAndRecovery(t *testing.T) {
	s := newTestSession(t, "http://127.0.0.1:0", Options{})
	s.HandleEvent(snapshot("repo-1", epoch))

	taskEvent := func(n int, id string, status domain.TaskStatus) *streamprotocol.TaskUpdateEvent {
		return &streamprotocol.TaskUpdateEvent{
			Header: streamprotocol.Header{
				Type:         streamprotocol.TypeTaskUpdate,
				RepositoryID: "repo-1",
				Timestamp:    epoch.Add(time.Duration(n) * time.Second),
			},
			Task: streamprotocol.TaskPayload{ID: id, Status: status},
		}
	}

	s.HandleEvent(taskEvent(1, "t1", domain.TaskFailed))
	s.HandleEvent(taskEvent(2, "t2", domain.TaskFailed))
	if _, ok := s.manager.Get("repo-1"); ok {
		t.Fatal("alert before reaching the failure count")
	}

	s.HandleEvent(taskEvent(3, "t3", domain.TaskFailed))
	alert, ok := s.manager.Get("repo-1")
	if !ok || alert.Reason != domain.ReasonRepeatedFailures {
		t.Fatalf("alert = %+v, %v; want repeated_failures", alert, ok)
	}

	// A success resets the counter and the next evaluation resolves.
	s.HandleEvent(taskEvent(4, "t4", domain.TaskCompleted))
	if _, ok := s.manager.Get("repo-1"); ok {
		t.Fatal("alert survived a successful task")
	}
}

func TestDetectionDisabled_FreezesAlerts(t *testing.T) {
	s := newTestSession(t, "http://127.0.0.1:0", Options{})

	s.HandleEvent(snapshot("repo-1", epoch))
	s.Sweep(epoch.Add(130 * time.Second))
	if _, ok := s.manager.Get("repo-1"); !ok {
		t.Fatal("expected alert before disabling detection")
	}

	off := stuck.DefaultConfig()
	off.Enabled = false
	if err := s.ApplyDetection(off); err != nil {
		t.Fatal(err)
	}

	// Activity that would normally resolve must not touch the frozen
	// alert while detection is off.
	s.HandleEvent(&streamprotocol.TaskOutputEvent{
		Header: streamprotocol.Header{
			Type:         streamprotocol.TypeTaskOutput,
			RepositoryID: "repo-1",
			Timestamp:    epoch.Add(140 * time.Second),
		},
	})
	s.Sweep(epoch.Add(150 * time.Second))
	if _, ok := s.manager.Get("repo-1"); !ok {
		t.Fatal("alert resolved while detection disabled")
	}

	// Re-enabling picks reconciliation back up.
	if err := s.ApplyDetection(stuck.DefaultConfig()); err != nil {
		t.Fatal(err)
	}
	s.Sweep(epoch.Add(150 * time.Second))
	if _, ok := s.manager.Get("repo-1"); ok {
		t.Fatal("alert not resolved after re-enabling detection")
	}
}

func TestPauseSession_ConfirmAfterStreamReportsPaused(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	s := newTestSession(t, srv.URL, Options{})
	s.HandleEvent(snapshot("repo-1", epoch))

	done := make(chan error, 1)
	go func() {
		done <- s.PauseSession(context.Background(), "repo-1")
	}()

	// Wait for the optimistic entry, then let the stream independently
	// report the pause before the mutation response arrives.
	waitFor(t, func() bool { return s.PendingOperations() == 1 })
	s.HandleEvent(snapshot("repo-1", epoch.Add(time.Second), func(ev *streamprotocol.RepoStateEvent) {
		ev.SessionStatus = domain.SessionPaused
		ev.ClaudeStatus = domain.ClaudePaused
	}))

	close(release)
	if err := <-done; err != nil {
		t.Fatalf("PauseSession: %v", err)
	}

	// The late confirmation matched the original operation id and
	// removed the entry cleanly; the stream state stands.
	if n := s.PendingOperations(); n != 0 {
		t.Fatalf("PendingOperations = %d, want 0", n)
	}
	state, _ := s.Repo("repo-1")
	if state.SessionStatus != domain.SessionPaused {
		t.Fatalf("SessionStatus = %s, want paused", state.SessionStatus)
	}
}

func TestPauseSession_RollbackOnRejection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		w.Write([]byte(`{"error":"session is completing"}`))
	}))
	defer srv.Close()

	s := newTestSession(t, srv.URL, Options{})
	s.HandleEvent(snapshot("repo-1", epoch))

	err := s.PauseSession(context.Background(), "repo-1")
	var rejected *intents.MutationRejectedError
	if !errors.As(err, &rejected) {
		t.Fatalf("err = %v, want MutationRejectedError", err)
	}
	if n := s.PendingOperations(); n != 0 {
		t.Fatalf("PendingOperations after rollback = %d, want 0", n)
	}
}

func TestPauseSession_UnknownRepo(t *testing.T) {
	s := newTestSession(t, "http://127.0.0.1:0", Options{})
	if err := s.PauseSession(context.Background(), "ghost"); err == nil {
		t.Fatal("expected error for unknown repository")
	}
}

func TestAcknowledgeAlert(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	s := newTestSession(t, srv.URL, Options{})
	s.HandleEvent(snapshot("repo-1", epoch))

	if err := s.AcknowledgeAlert(context.Background(), "repo-1"); err == nil {
		t.Fatal("expected error when no alert is active")
	}

	s.Sweep(epoch.Add(130 * time.Second))
	if err := s.AcknowledgeAlert(context.Background(), "repo-1"); err != nil {
		t.Fatalf("AcknowledgeAlert: %v", err)
	}
	alert, _ := s.manager.Get("repo-1")
	if !alert.Acknowledged {
		t.Fatal("alert not acknowledged")
	}
	if n := s.PendingOperations(); n != 0 {
		t.Fatalf("PendingOperations = %d, want 0", n)
	}
}

func TestUpdateDetectionConfig(t *testing.T) {
	var calls int
	var status = http.StatusOK
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(status)
	}))
	defer srv.Close()

	s := newTestSession(t, srv.URL, Options{})

	// Invalid config is rejected locally, never reaching the API.
	bad := stuck.DefaultConfig()
	bad.NoOutputThresholdSeconds = -1
	if err := s.UpdateDetectionConfig(context.Background(), bad); err == nil {
		t.Fatal("expected validation error")
	}
	if calls != 0 {
		t.Fatalf("invalid config reached the API (%d calls)", calls)
	}

	next := stuck.DefaultConfig()
	next.NoOutputThresholdSeconds = 300
	if err := s.UpdateDetectionConfig(context.Background(), next); err != nil {
		t.Fatalf("UpdateDetectionConfig: %v", err)
	}
	if got := s.Detection().NoOutputThresholdSeconds; got != 300 {
		t.Fatalf("threshold = %d, want 300", got)
	}

	// Rejection restores the prior config.
	status = http.StatusUnprocessableEntity
	worse := stuck.DefaultConfig()
	worse.NoOutputThresholdSeconds = 600
	if err := s.UpdateDetectionConfig(context.Background(), worse); err == nil {
		t.Fatal("expected rejection")
	}
	if got := s.Detection().NoOutputThresholdSeconds; got != 300 {
		t.Fatalf("threshold after rollback = %d, want 300", got)
	}

	status = http.StatusOK
	if err := s.ResetDetectionConfig(context.Background()); err != nil {
		t.Fatalf("ResetDetectionConfig: %v", err)
	}
	if got := s.Detection(); got != stuck.DefaultConfig() {
		t.Fatalf("config after reset = %+v", got)
	}
}

func TestUnsubscribe_ClearsStateAlertAndOperations(t *testing.T) {
	s := newTestSession(t, "http://127.0.0.1:0", Options{})
	s.HandleEvent(snapshot("repo-1", epoch))
	s.HandleEvent(snapshot("repo-2", epoch))
	s.Sweep(epoch.Add(130 * time.Second))

	s.tracker.Register(domain.PendingOperation{
		OperationID:     "op-1",
		EntityType:      domain.EntitySession,
		EntityID:        "sess-repo-1",
		OptimisticState: domain.SessionPaused,
		StartedAt:       epoch,
	})

	s.Unsubscribe("repo-1")

	if _, ok := s.Repo("repo-1"); ok {
		t.Fatal("state survived unsubscribe")
	}
	if _, ok := s.manager.Get("repo-1"); ok {
		t.Fatal("alert survived unsubscribe")
	}
	if n := s.PendingOperations(); n != 0 {
		t.Fatalf("PendingOperations = %d, want 0", n)
	}

	// The other repository is untouched.
	if _, ok := s.Repo("repo-2"); !ok {
		t.Fatal("unrelated repository removed")
	}
	if _, ok := s.manager.Get("repo-2"); !ok {
		t.Fatal("unrelated alert removed")
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/hochfrequenz/claude-session-monitor/internal/config"
	"github.com/hochfrequenz/claude-session-monitor/internal/dashboard"
	"github.com/hochfrequenz/claude-session-monitor/internal/domain"
	"github.com/hochfrequenz/claude-session-monitor/internal/streamprotocol"
)

var epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func testSession(t *testing.T, mutationURL string) *dashboard.Session {
	t.Helper()
	cfg := config.Default()
	cfg.Monitor.MutationAPIURL = mutationURL
	cfg.Detection.EnableToastNotifications = false
	return dashboard.New(cfg, dashboard.Options{})
}

func seedRepo(sess *dashboard.Session, repoID string, at time.Time) {
	sess.HandleEvent(&streamprotocol.RepoStateEvent{
		Header: streamprotocol.Header{
			Type:         streamprotocol.TypeRepoState,
			RepositoryID: repoID,
			Timestamp:    at,
		},
		RepositoryName: "repo " + repoID,
		ClaudeStatus:   domain.ClaudeThinking,
		SessionID:      "sess-" + repoID,
		SessionStatus:  domain.SessionActive,
	})
}

func TestListReposHandler(t *testing.T) {
	sess := testSession(t, "http://127.0.0.1:0")
	seedRepo(sess, "repo-a", epoch)
	seedRepo(sess, "repo-b", epoch)

	server := NewServer(sess, nil, ":0")
	req := httptest.NewRequest("GET", "/api/repos", nil)
	w := httptest.NewRecorder()
	server.listReposHandler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Status = %d, want 200", w.Code)
	}

	var repos []RepoResponse
	json.NewDecoder(w.Body).Decode(&repos)
	if len(repos) != 2 {
		t.Fatalf("Repo count = %d, want 2", len(repos))
	}
	if repos[0].RepositoryID != "repo-a" || repos[0].SessionStatus != "active" {
		t.Errorf("repos[0] = %+v", repos[0])
	}
}

func TestGetRepoHandler_NotFound(t *testing.T) {
	server := NewServer(testSession(t, "http://127.0.0.1:0"), nil, ":0")

	req := httptest.NewRequest("GET", "/api/repos/ghost", nil)
	w := httptest.NewRecorder()
	server.repoActionHandler().ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("Status = %d, want 404", w.Code)
	}
}

func TestStuckStatusHandler_ExtrapolatesDuration(t *testing.T) {
	sess := testSession(t, "http://127.0.0.1:0")
	seedRepo(sess, "repo-a", epoch)
	// Quiet for 130s: a low severity no_output alert exists afterwards.
	sess.Sweep(epoch.Add(130 * time.Second))

	server := NewServer(sess, nil, ":0")
	server.now = func() time.Time { return epoch.Add(190 * time.Second) }

	req := httptest.NewRequest("GET", "/api/stuck", nil)
	w := httptest.NewRecorder()
	server.stuckStatusHandler().ServeHTTP(w, req)

	var status StuckStatusResponse
	json.NewDecoder(w.Body).Decode(&status)

	if status.TotalStuckCount != 1 {
		t.Fatalf("TotalStuckCount = %d, want 1", status.TotalStuckCount)
	}
	alert := status.Alerts[0]
	if alert.Reason != "no_output" || alert.Severity != "low" {
		t.Errorf("alert = %s/%s, want no_output/low", alert.Reason, alert.Severity)
	}
	// 130s recorded at the last reconcile plus 60s of request-time drift.
	if alert.StuckDurationSeconds != 190 {
		t.Errorf("StuckDurationSeconds = %d, want 190", alert.StuckDurationSeconds)
	}
}

func TestPauseIntentHandler(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/sessions/pause") {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer upstream.Close()

	sess := testSession(t, upstream.URL)
	seedRepo(sess, "repo-a", epoch)

	server := NewServer(sess, nil, ":0")
	req := httptest.NewRequest("POST", "/api/repos/repo-a/pause", nil)
	w := httptest.NewRecorder()
	server.repoActionHandler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Status = %d, want 200: %s", w.Code, w.Body.String())
	}
}

func TestPauseIntentHandler_RejectionKeepsUpstreamCode(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		w.Write([]byte(`{"error":"session is completing"}`))
	}))
	defer upstream.Close()

	sess := testSession(t, upstream.URL)
	seedRepo(sess, "repo-a", epoch)

	server := NewServer(sess, nil, ":0")
	req := httptest.NewRequest("POST", "/api/repos/repo-a/pause", nil)
	w := httptest.NewRecorder()
	server.repoActionHandler().ServeHTTP(w, req)

	if w.Code != http.StatusConflict {
		t.Errorf("Status = %d, want 409", w.Code)
	}
	var body map[string]string
	json.NewDecoder(w.Body).Decode(&body)
	if body["error"] != "session is completing" {
		t.Errorf("error = %q", body["error"])
	}
}

func TestConfigHandler_PutInvalid(t *testing.T) {
	server := NewServer(testSession(t, "http://127.0.0.1:0"), nil, ":0")

	req := httptest.NewRequest("PUT", "/api/config",
		strings.NewReader(`{"enabled":true,"sensitivityLevel":"extreme","noOutputThresholdSeconds":120,"waitingInputThresholdSeconds":60,"repeatedFailureCount":3}`))
	w := httptest.NewRecorder()
	server.configHandler().ServeHTTP(w, req)

	if w.Code != http.StatusUnprocessableEntity {
		t.Errorf("Status = %d, want 422", w.Code)
	}
}

func TestStatusHandler(t *testing.T) {
	sess := testSession(t, "http://127.0.0.1:0")
	seedRepo(sess, "repo-a", epoch)

	server := NewServer(sess, nil, ":0")
	req := httptest.NewRequest("GET", "/api/status", nil)
	w := httptest.NewRecorder()
	server.statusHandler().ServeHTTP(w, req)

	var status StatusResponse
	json.NewDecoder(w.Body).Decode(&status)

	if status.RepoCount != 1 {
		t.Errorf("RepoCount = %d, want 1", status.RepoCount)
	}
	if !status.DetectionEnabled {
		t.Error("DetectionEnabled = false, want true")
	}
}

package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/hochfrequenz/claude-session-monitor/internal/domain"
	"github.com/hochfrequenz/claude-session-monitor/internal/intents"
	"github.com/hochfrequenz/claude-session-monitor/internal/stuck"
)

// TaskResponse is the API shape of the agent's current task.
type TaskResponse struct {
	ID       string `json:"id"`
	Prompt   string `json:"prompt,omitempty"`
	Status   string `json:"status"`
	Progress *int   `json:"progress,omitempty"`
}

// RepoResponse is the API shape of one repository's session state.
type RepoResponse struct {
	RepositoryID        string        `json:"repositoryId"`
	RepositoryName      string        `json:"repositoryName"`
	ClaudeStatus        string        `json:"claudeStatus"`
	SessionID           string        `json:"sessionId,omitempty"`
	SessionStatus       string        `json:"sessionStatus,omitempty"`
	CurrentTask         *TaskResponse `json:"currentTask,omitempty"`
	TimeElapsedMs       int64         `json:"timeElapsedMs"`
	LastActivity        string        `json:"lastActivity"`
	NeedsAttention      bool          `json:"needsAttention"`
	ConsecutiveFailures int           `json:"consecutiveFailures,omitempty"`
}

// AlertResponse is the API shape of one stuck alert. The duration is
// extrapolated to request time so clients see a live number without
// the engine mutating alerts on a timer.
type AlertResponse struct {
	ID                   string `json:"id"`
	RepositoryID         string `json:"repositoryId"`
	RepositoryName       string `json:"repositoryName"`
	SessionID            string `json:"sessionId,omitempty"`
	Reason               string `json:"reason"`
	Severity             string `json:"severity"`
	StuckDurationSeconds int    `json:"stuckDurationSeconds"`
	Description          string `json:"description"`
	SuggestedAction      string `json:"suggestedAction"`
	Acknowledged         bool   `json:"acknowledged"`
	CreatedAt            string `json:"createdAt"`
}

// StuckStatusResponse is the derived global alert view.
type StuckStatusResponse struct {
	TotalStuckCount   int             `json:"totalStuckCount"`
	HighestSeverity   string          `json:"highestSeverity,omitempty"`
	WaitingInputCount int             `json:"waitingInputCount"`
	FailedCount       int             `json:"failedCount"`
	QABlockedCount    int             `json:"qaBlockedCount"`
	Alerts            []AlertResponse `json:"alerts"`
}

// StatusResponse summarizes the whole monitor.
type StatusResponse struct {
	Connection        ConnectionResponse `json:"connection"`
	RepoCount         int                `json:"repoCount"`
	PendingOperations int                `json:"pendingOperations"`
	TotalStuckCount   int                `json:"totalStuckCount"`
	HighestSeverity   string             `json:"highestSeverity,omitempty"`
	DetectionEnabled  bool               `json:"detectionEnabled"`
}

// ConnectionResponse reports stream transport health.
type ConnectionResponse struct {
	State       string `json:"state"`
	Reason      string `json:"reason,omitempty"`
	LastUpdated string `json:"lastUpdated,omitempty"`
}

// HistoryEntryResponse is one persisted alert transition.
type HistoryEntryResponse struct {
	AlertID              string `json:"alertId"`
	RepositoryID         string `json:"repositoryId"`
	RepositoryName       string `json:"repositoryName"`
	Reason               string `json:"reason"`
	Severity             string `json:"severity"`
	Transition           string `json:"transition"`
	StuckDurationSeconds int    `json:"stuckDurationSeconds"`
	Acknowledged         bool   `json:"acknowledged"`
	RecordedAt           string `json:"recordedAt"`
}

func repoToResponse(st *domain.RepoSessionState) RepoResponse {
	resp := RepoResponse{
		RepositoryID:        st.RepositoryID,
		RepositoryName:      st.RepositoryName,
		ClaudeStatus:        string(st.ClaudeStatus),
		SessionID:           st.SessionID,
		SessionStatus:       string(st.SessionStatus),
		TimeElapsedMs:       st.TimeElapsed.Milliseconds(),
		LastActivity:        st.LastActivity.Format(time.RFC3339),
		NeedsAttention:      st.NeedsAttention,
		ConsecutiveFailures: st.ConsecutiveFailures,
	}
	if st.CurrentTask != nil {
		resp.CurrentTask = &TaskResponse{
			ID:       st.CurrentTask.ID,
			Prompt:   st.CurrentTask.Prompt,
			Status:   string(st.CurrentTask.Status),
			Progress: st.CurrentTask.Progress,
		}
	}
	return resp
}

func alertToResponse(a *domain.StuckAlert, now time.Time) AlertResponse {
	duration := a.StuckDurationSeconds
	if extra := int(now.Sub(a.LastUpdatedAt) / time.Second); extra > 0 {
		duration += extra
	}
	return AlertResponse{
		ID:                   a.ID,
		RepositoryID:         a.RepositoryID,
		RepositoryName:       a.RepositoryName,
		SessionID:            a.SessionID,
		Reason:               string(a.Reason),
		Severity:             string(a.Severity),
		StuckDurationSeconds: duration,
		Description:          a.Description,
		SuggestedAction:      a.SuggestedAction,
		Acknowledged:         a.Acknowledged,
		CreatedAt:            a.CreatedAt.Format(time.RFC3339),
	}
}

func (s *Server) listReposHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}

		repos := s.session.Repos()
		responses := make([]RepoResponse, len(repos))
		for i, st := range repos {
			responses[i] = repoToResponse(st)
		}

		writeJSON(w, responses)
	}
}

// repoActionHandler covers /api/repos/{id} and its intent subroutes:
// GET /api/repos/{id}, POST /api/repos/{id}/pause|resume|acknowledge,
// DELETE /api/repos/{id}.
func (s *Server) repoActionHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		path := strings.TrimPrefix(r.URL.Path, "/api/repos/")
		if path == "" {
			writeError(w, http.StatusBadRequest, "repository ID required")
			return
		}

		repoID, action := path, ""
		if idx := strings.LastIndex(path, "/"); idx > 0 {
			repoID, action = path[:idx], path[idx+1:]
		}

		switch {
		case action == "" && r.Method == http.MethodGet:
			st, ok := s.session.Repo(repoID)
			if !ok {
				writeError(w, http.StatusNotFound, "repository not found")
				return
			}
			writeJSON(w, repoToResponse(st))

		case action == "" && r.Method == http.MethodDelete:
			s.session.Unsubscribe(repoID)
			writeJSON(w, map[string]string{"status": "unsubscribed"})

		case r.Method != http.MethodPost:
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")

		case action == "pause":
			s.runIntent(w, r, func() error {
				return s.session.PauseSession(r.Context(), repoID)
			}, "pausing")

		case action == "resume":
			s.runIntent(w, r, func() error {
				return s.session.ResumeSession(r.Context(), repoID)
			}, "resuming")

		case action == "acknowledge":
			s.runIntent(w, r, func() error {
				return s.session.AcknowledgeAlert(r.Context(), repoID)
			}, "acknowledged")

		default:
			writeError(w, http.StatusNotFound, "unknown action")
		}
	}
}

// runIntent maps intent outcomes onto HTTP: rejections keep their
// upstream status code, transport failures read as bad gateway.
func (s *Server) runIntent(w http.ResponseWriter, r *http.Request, intent func() error, status string) {
	err := intent()
	if err == nil {
		writeJSON(w, map[string]string{"status": status})
		return
	}

	var rejected *intents.MutationRejectedError
	if errors.As(err, &rejected) {
		writeError(w, rejected.StatusCode, rejected.Message)
		return
	}
	writeError(w, http.StatusBadGateway, err.Error())
}

func (s *Server) stuckStatusHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}

		now := s.now()
		status := s.session.Status()
		resp := StuckStatusResponse{
			TotalStuckCount:   status.TotalStuckCount,
			HighestSeverity:   string(status.HighestSeverity),
			WaitingInputCount: status.WaitingInputCount,
			FailedCount:       status.FailedCount,
			QABlockedCount:    status.QABlockedCount,
			Alerts:            make([]AlertResponse, len(status.Alerts)),
		}
		for i, a := range status.Alerts {
			resp.Alerts[i] = alertToResponse(a, now)
		}

		writeJSON(w, resp)
	}
}

func (s *Server) statusHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}

		conn := s.session.Connection()
		connResp := ConnectionResponse{
			State:  string(conn.State),
			Reason: conn.Reason,
		}
		if !conn.LastUpdated.IsZero() {
			connResp.LastUpdated = conn.LastUpdated.Format(time.RFC3339)
		}

		status := s.session.Status()
		writeJSON(w, StatusResponse{
			Connection:        connResp,
			RepoCount:         len(s.session.Repos()),
			PendingOperations: s.session.PendingOperations(),
			TotalStuckCount:   status.TotalStuckCount,
			HighestSeverity:   string(status.HighestSeverity),
			DetectionEnabled:  s.session.Detection().Enabled,
		})
	}
}

func (s *Server) configHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			writeJSON(w, s.session.Detection())

		case http.MethodPut:
			var cfg stuck.Config
			if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
				writeError(w, http.StatusBadRequest, "invalid config payload")
				return
			}

			err := s.session.UpdateDetectionConfig(r.Context(), cfg)
			if err == nil {
				writeJSON(w, s.session.Detection())
				return
			}

			var invalid *stuck.ValidationError
			if errors.As(err, &invalid) {
				writeError(w, http.StatusUnprocessableEntity, invalid.Error())
				return
			}
			var rejected *intents.MutationRejectedError
			if errors.As(err, &rejected) {
				writeError(w, rejected.StatusCode, rejected.Message)
				return
			}
			writeError(w, http.StatusBadGateway, err.Error())

		default:
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		}
	}
}

func (s *Server) configResetHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}

		if err := s.session.ResetDetectionConfig(r.Context()); err != nil {
			var rejected *intents.MutationRejectedError
			if errors.As(err, &rejected) {
				writeError(w, rejected.StatusCode, rejected.Message)
				return
			}
			writeError(w, http.StatusBadGateway, err.Error())
			return
		}

		writeJSON(w, s.session.Detection())
	}
}

func (s *Server) historyHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		if s.history == nil {
			writeError(w, http.StatusServiceUnavailable, "history not enabled")
			return
		}

		repoID := strings.TrimPrefix(r.URL.Path, "/api/history/")
		if repoID == "" {
			writeError(w, http.StatusBadRequest, "repository ID required")
			return
		}

		limit := 100
		if raw := r.URL.Query().Get("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n <= 0 {
				writeError(w, http.StatusBadRequest, "invalid limit")
				return
			}
			limit = n
		}

		entries, err := s.history.ListByRepository(repoID, limit)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}

		responses := make([]HistoryEntryResponse, len(entries))
		for i, e := range entries {
			responses[i] = HistoryEntryResponse{
				AlertID:              e.AlertID,
				RepositoryID:         e.RepositoryID,
				RepositoryName:       e.RepositoryName,
				Reason:               string(e.Reason),
				Severity:             string(e.Severity),
				Transition:           e.Transition,
				StuckDurationSeconds: e.StuckDurationSeconds,
				Acknowledged:         e.Acknowledged,
				RecordedAt:           e.RecordedAt.Format(time.RFC3339),
			}
		}

		writeJSON(w, responses)
	}
}

func (s *Server) reconnectHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}

		s.session.Reconnect()
		writeJSON(w, map[string]string{"status": "reconnecting"})
	}
}

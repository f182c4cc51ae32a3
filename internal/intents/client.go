// Package intents fires user-issued mutations (pause, resume,
// acknowledge, config updates) at the external mutation API and
// surfaces rejections as typed errors.
package intents

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hochfrequenz/claude-session-monitor/internal/stuck"
)

// MutationRejectedError reports that the server declined an intent. The
// caller rolls back the corresponding optimistic operation and shows
// the message to the user.
type MutationRejectedError struct {
	Operation  string
	StatusCode int
	Message    string
}

func (e *MutationRejectedError) Error() string {
	return fmt.Sprintf("%s rejected (%d): %s", e.Operation, e.StatusCode, e.Message)
}

// Client talks to the mutation API.
type Client struct {
	baseURL string
	client  *http.Client
}

// NewClient creates a mutation API client.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

type sessionIntent struct {
	RepositoryID string `json:"repositoryId"`
	SessionID    string `json:"sessionId"`
	OperationID  string `json:"operationId"`
}

type acknowledgeIntent struct {
	RepositoryID string `json:"repositoryId"`
	OperationID  string `json:"operationId,omitempty"`
}

// PauseSession asks the server to pause a repository's session.
func (c *Client) PauseSession(ctx context.Context, repoID, sessionID, operationID string) error {
	return c.post(ctx, "pauseSession", "/sessions/pause", sessionIntent{
		RepositoryID: repoID,
		SessionID:    sessionID,
		OperationID:  operationID,
	})
}

// ResumeSession asks the server to resume a paused session.
func (c *Client) ResumeSession(ctx context.Context, repoID, sessionID, operationID string) error {
	return c.post(ctx, "resumeSession", "/sessions/resume", sessionIntent{
		RepositoryID: repoID,
		SessionID:    sessionID,
		OperationID:  operationID,
	})
}

// AcknowledgeAlert records an alert acknowledgment server-side.
func (c *Client) AcknowledgeAlert(ctx context.Context, repoID, operationID string) error {
	return c.post(ctx, "acknowledgeAlert", "/alerts/acknowledge", acknowledgeIntent{
		RepositoryID: repoID,
		OperationID:  operationID,
	})
}

// UpdateDetectionConfig pushes a new stuck-detection configuration.
func (c *Client) UpdateDetectionConfig(ctx context.Context, cfg stuck.Config) error {
	return c.post(ctx, "updateStuckDetectionConfig", "/config/stuck-detection", cfg)
}

// ResetDetectionConfig restores the server-side defaults.
func (c *Client) ResetDetectionConfig(ctx context.Context) error {
	return c.post(ctx, "resetStuckDetectionConfig", "/config/stuck-detection/reset", struct{}{})
}

func (c *Client) post(ctx context.Context, operation, path string, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", operation, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", operation, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	return &MutationRejectedError{
		Operation:  operation,
		StatusCode: resp.StatusCode,
		Message:    readErrorMessage(resp.Body),
	}
}

func readErrorMessage(r io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(r, 4096))
	if err != nil || len(data) == 0 {
		return "no error detail"
	}

	var payload struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(data, &payload); err == nil {
		if payload.Error != "" {
			return payload.Error
		}
		if payload.Message != "" {
			return payload.Message
		}
	}
	return strings.TrimSpace(string(data))
}

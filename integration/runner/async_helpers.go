package runner

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Aksor9/AI-GameMaster/pkg/queue"
	"github.com/Aksor9/AI-GameMaster/pkg/state"
)

const (
	// ResultTimeout is the max time to wait for a worker result after
	// submitting an action.
	ResultTimeout = 60 * time.Second
)

// CreateSession creates a fresh session and returns its id.
func CreateSession(ctx context.Context, client *http.Client, baseURL string) (uuid.UUID, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/v1/sessions", nil)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to create session request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to send session request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusCreated {
		body, _ := io.ReadAll(resp.Body)
		return uuid.Nil, fmt.Errorf("session endpoint returned %d (expected 201): %s", resp.StatusCode, string(body))
	}

	var created struct {
		SessionID string `json:"session_id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		return uuid.Nil, fmt.Errorf("failed to parse session response: %w", err)
	}
	return uuid.Parse(created.SessionID)
}

// GetGameState retrieves the public view of the session.
func GetGameState(ctx context.Context, client *http.Client, baseURL string, sessionID uuid.UUID) (*state.GameState, error) {
	url := fmt.Sprintf("%s/v1/sessions/%s", baseURL, sessionID.String())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create session request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send session request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("session endpoint returned %d: %s", resp.StatusCode, string(body))
	}

	var gs state.GameState
	if err := json.NewDecoder(resp.Body).Decode(&gs); err != nil {
		return nil, fmt.Errorf("failed to decode session state: %w", err)
	}
	return &gs, nil
}

// PostAction submits an action and returns the queued task id.
func PostAction(ctx context.Context, client *http.Client, baseURL string, sessionID uuid.UUID, clientID, actorID, actionType string, payload json.RawMessage) (string, error) {
	actionReq := map[string]interface{}{
		"client_id":   clientID,
		"action_type": actionType,
	}
	if actorID != "" {
		actionReq["actor_id"] = actorID
	}
	if payload != nil {
		actionReq["payload"] = payload
	}

	reqBody, err := json.Marshal(actionReq)
	if err != nil {
		return "", fmt.Errorf("failed to marshal action request: %w", err)
	}

	url := fmt.Sprintf("%s/v1/sessions/%s/actions", baseURL, sessionID.String())
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(reqBody))
	if err != nil {
		return "", fmt.Errorf("failed to create action request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to send action request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusAccepted {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("action endpoint returned %d (expected 202): %s", resp.StatusCode, string(body))
	}

	var actionResp struct {
		TaskID string `json:"task_id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&actionResp); err != nil {
		return "", fmt.Errorf("failed to parse action response: %w", err)
	}
	return actionResp.TaskID, nil
}

// OpenEventStream subscribes to the client's result feed. Decoded results
// are delivered on the returned channel until the context is cancelled.
func OpenEventStream(ctx context.Context, baseURL, clientID string) (<-chan queue.Result, error) {
	url := fmt.Sprintf("%s/v1/events/clients/%s", baseURL, clientID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create stream request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")

	// No timeout: the stream stays open for the whole suite.
	resp, err := (&http.Client{}).Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to event stream: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		_ = resp.Body.Close()
		return nil, fmt.Errorf("event stream returned %d", resp.StatusCode)
	}

	ch := make(chan queue.Result, 16)
	go func() {
		defer close(ch)
		defer func() { _ = resp.Body.Close() }()

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := scanner.Text()
			if !strings.HasPrefix(line, "data: ") {
				continue
			}
			var result queue.Result
			if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &result); err != nil {
				continue
			}
			select {
			case ch <- result:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch, nil
}

// AwaitResult blocks until the next result event arrives or the timeout
// elapses. NPC-turn results may arrive between player results; callers
// that only care about the final state should drain with repeated calls.
func AwaitResult(ctx context.Context, events <-chan queue.Result, timeout time.Duration) (*queue.ResultEvent, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(timeout):
		return nil, fmt.Errorf("timeout waiting for worker result (waited %v)", timeout)
	case result, ok := <-events:
		if !ok {
			return nil, fmt.Errorf("event stream closed")
		}
		return &result.Result, nil
	}
}

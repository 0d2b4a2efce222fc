package main

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

// APIClient wraps the orchestrator's HTTP API for the console.
type APIClient struct {
	baseURL string
	client  *http.Client
}

func NewAPIClient(baseURL string, timeout time.Duration) *APIClient {
	return &APIClient{
		baseURL: baseURL,
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

type ErrorResponse struct {
	Error string `json:"error"`
}

type createSessionResponse struct {
	SessionID string `json:"session_id"`
	Phase     string `json:"game_phase"`
}

type actionRequest struct {
	ClientID   string          `json:"client_id"`
	ActorID    string          `json:"actor_id,omitempty"`
	ActionType string          `json:"action_type"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	Language   string          `json:"language,omitempty"`
}

func (a *APIClient) TestConnection() bool {
	resp, err := a.client.Get(a.baseURL + "/health")
	if err != nil {
		return false
	}
	defer func() {
		_ = resp.Body.Close() // Ignore error in defer
	}()
	return resp.StatusCode == http.StatusOK
}

func (a *APIClient) CreateSession() (uuid.UUID, error) {
	resp, err := a.client.Post(a.baseURL+"/v1/sessions", "application/json", nil)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer func() {
		_ = resp.Body.Close() // Ignore error in defer
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusCreated {
		var errorResp ErrorResponse
		if err := json.Unmarshal(body, &errorResp); err != nil {
			return uuid.Nil, fmt.Errorf("API returned status %d: %s", resp.StatusCode, string(body))
		}
		return uuid.Nil, fmt.Errorf("failed to create session: %s", errorResp.Error)
	}

	var created createSessionResponse
	if err := json.Unmarshal(body, &created); err != nil {
		return uuid.Nil, fmt.Errorf("failed to parse session response: %w", err)
	}

	sessionID, err := uuid.Parse(created.SessionID)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid session id in response: %w", err)
	}
	return sessionID, nil
}

func (a *APIClient) GetSession(sessionID uuid.UUID) (*state.GameState, error) {
	resp, err := a.client.Get(fmt.Sprintf("%s/v1/sessions/%s", a.baseURL, sessionID))
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer func() {
		_ = resp.Body.Close() // Ignore error in defer
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var errorResp ErrorResponse
		if err := json.Unmarshal(body, &errorResp); err != nil {
			return nil, fmt.Errorf("API returned status %d: %s", resp.StatusCode, string(body))
		}
		return nil, fmt.Errorf("failed to get session: %s", errorResp.Error)
	}

	var gs state.GameState
	if err := json.Unmarshal(body, &gs); err != nil {
		return nil, fmt.Errorf("failed to parse session response: %w", err)
	}
	return &gs, nil
}

func (a *APIClient) SubmitAction(sessionID uuid.UUID, req actionRequest) error {
	jsonData, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	resp, err := a.client.Post(
		fmt.Sprintf("%s/v1/sessions/%s/actions", a.baseURL, sessionID),
		"application/json",
		bytes.NewBuffer(jsonData),
	)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer func() {
		_ = resp.Body.Close() // Ignore error in defer
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusAccepted {
		var errorResp ErrorResponse
		if err := json.Unmarshal(body, &errorResp); err != nil {
			return fmt.Errorf("API returned status %d: %s", resp.StatusCode, string(body))
		}
		return fmt.Errorf("action rejected: %s", errorResp.Error)
	}
	return nil
}

// StreamEvents subscribes to the client's result feed and pushes decoded
// results onto ch until the context is cancelled or the stream closes.
// The channel is closed on return.
func (a *APIClient) StreamEvents(ctx context.Context, clientID string, ch chan<- queue.Result) error {
	defer close(ch)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		fmt.Sprintf("%s/v1/events/clients/%s", a.baseURL, clientID), nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")

	// SSE streams stay open indefinitely; the shared client timeout would
	// kill them.
	streamClient := &http.Client{}
	resp, err := streamClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to connect to event stream: %w", err)
	}
	defer func() {
		_ = resp.Body.Close() // Ignore error in defer
	}()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("event stream returned status %d", resp.StatusCode)
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue // event names and keepalive comments
		}
		var result queue.Result
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &result); err != nil {
			continue
		}
		select {
		case ch <- result:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		return fmt.Errorf("event stream closed: %w", err)
	}
	return nil
}

package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	queuesvc "github.com/Aksor9/AI-GameMaster/internal/services/queue"
	"github.com/Aksor9/AI-GameMaster/internal/storage"
	"github.com/Aksor9/AI-GameMaster/pkg/lang"
	"github.com/Aksor9/AI-GameMaster/pkg/queue"
)

// ActionHandler accepts a player action and enqueues it for the worker.
//
//	POST /v1/sessions/{sessionID}/actions
type ActionHandler struct {
	storage storage.Storage
	queue   *queuesvc.TaskQueue
	logger  *slog.Logger
}

func NewActionHandler(store storage.Storage, taskQueue *queuesvc.TaskQueue, logger *slog.Logger) *ActionHandler {
	return &ActionHandler{
		storage: store,
		queue:   taskQueue,
		logger:  logger,
	}
}

type ActionRequest struct {
	ClientID   string          `json:"client_id"`
	ActorID    string          `json:"actor_id,omitempty"`
	ActionType string          `json:"action_type"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	Language   string          `json:"language,omitempty"`
}

type ActionResponse struct {
	TaskID string `json:"task_id"`
	Status string `json:"status"`
}

func (h *ActionHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodPost {
		writeError(w, h.logger, http.StatusMethodNotAllowed, "Method not allowed. Only POST is supported.")
		return
	}

	sessionID, ok := sessionIDFromPath(r.URL.Path, "sessions")
	if !ok || !strings.HasSuffix(strings.Trim(r.URL.Path, "/"), "/actions") {
		writeError(w, h.logger, http.StatusBadRequest, "Invalid path. Expected /v1/sessions/{sessionID}/actions")
		return
	}

	var req ActionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, h.logger, http.StatusBadRequest, "Invalid request body.")
		return
	}
	if req.ClientID == "" {
		writeError(w, h.logger, http.StatusBadRequest, "client_id is required.")
		return
	}
	if strings.TrimSpace(req.ActionType) == "" {
		writeError(w, h.logger, http.StatusBadRequest, "action_type is required.")
		return
	}

	// Sessions are created explicitly; reject actions against unknown ids
	// here instead of letting the worker discover it later.
	gs, err := h.storage.LoadGameState(r.Context(), sessionID)
	if err != nil {
		h.logger.Error("Failed to load session", "error", err, "session_id", sessionID.String())
		writeError(w, h.logger, http.StatusInternalServerError, "Failed to load session.")
		return
	}
	if gs == nil {
		writeError(w, h.logger, http.StatusNotFound, "Session not found.")
		return
	}

	langCode, err := lang.Resolve(req.Language)
	if err != nil {
		writeError(w, h.logger, http.StatusBadRequest, "language must be one of: en, es, ca.")
		return
	}

	task := queue.NewPlayerActionTask(sessionID, req.ClientID, req.ActorID, queue.ClientAction{
		ActionType: req.ActionType,
		Payload:    req.Payload,
	}, langCode)

	if err := h.queue.Enqueue(r.Context(), task); err != nil {
		h.logger.Error("Failed to enqueue task", "error", err, "session_id", sessionID.String())
		writeError(w, h.logger, http.StatusInternalServerError, "Failed to enqueue action.")
		return
	}

	h.logger.Info("Action enqueued",
		"session_id", sessionID.String(),
		"task_id", task.TaskID,
		"action_type", req.ActionType,
	)

	w.WriteHeader(http.StatusAccepted)
	if err := json.NewEncoder(w).Encode(ActionResponse{
		TaskID: task.TaskID,
		Status: "queued",
	}); err != nil {
		h.logger.Error("Failed to encode action response", "error", err)
	}
}
